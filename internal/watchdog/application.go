package watchdog

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/sys/unix"

	"voiceguard/internal/settings"
)

// ServiceCheck confirms the service's own critical state: the IPC socket
// accepts connections and a helper has reported in recently.
type ServiceCheck struct {
	SocketPath string
	// LastActivity reports the most recent helper frame; zero means never.
	LastActivity func() time.Time
	// StaleAfter marks the helper as lost when no frame arrived within it.
	StaleAfter time.Duration
}

// Name implements Check.
func (c *ServiceCheck) Name() string { return "ipc-endpoint" }

// Layer implements Check.
func (c *ServiceCheck) Layer() Layer { return LayerService }

// Check implements Check.
func (c *ServiceCheck) Check(ctx context.Context) error {
	dialer := net.Dialer{Timeout: 3 * time.Second}
	conn, err := dialer.DialContext(ctx, "unix", c.SocketPath)
	if err != nil {
		return fmt.Errorf("ipc socket unreachable: %w", err)
	}
	_ = conn.Close()

	if c.LastActivity != nil && c.StaleAfter > 0 {
		last := c.LastActivity()
		if !last.IsZero() && time.Since(last) > c.StaleAfter {
			return fmt.Errorf("no helper activity for %s", time.Since(last).Round(time.Second))
		}
	}
	return nil
}

// ApplicationCheck validates the application's own dependencies: the
// settings database answers and the log directory is writable.
type ApplicationCheck struct {
	Store  *settings.Store
	LogDir string
}

// Name implements Check.
func (c *ApplicationCheck) Name() string { return "application-state" }

// Layer implements Check.
func (c *ApplicationCheck) Layer() Layer { return LayerApplication }

// Check implements Check.
func (c *ApplicationCheck) Check(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.Store.Ping(pingCtx); err != nil {
		return fmt.Errorf("settings database: %w", err)
	}
	if err := unix.Access(c.LogDir, unix.W_OK); err != nil {
		return fmt.Errorf("log directory %s not writable: %w", c.LogDir, err)
	}
	return nil
}
