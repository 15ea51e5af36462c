package daemon

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"voiceguard/internal/logging"
	"voiceguard/internal/watchdog"
)

// recoverer executes watchdog recovery actions for the daemon. Component
// restarts bounce the helper process, service restarts hand control back to
// the platform service manager, and system restarts reboot the host.
type recoverer struct {
	daemon *Daemon
}

// Recover implements watchdog.Recoverer.
func (r *recoverer) Recover(ctx context.Context, check string, action watchdog.RecoveryAction) error {
	d := r.daemon
	if err := d.notifier.NotifyWatchdogEscalation(ctx, check, string(action)); err != nil {
		d.logger.Debug("escalation notification failed", logging.Error(err))
	}

	switch action {
	case watchdog.ActionRestartComponent:
		return r.restartComponent(ctx, check)
	case watchdog.ActionRestartService:
		return r.restartHelper(ctx)
	case watchdog.ActionRestartSystem:
		return r.restartSystem(ctx)
	default:
		return fmt.Errorf("unknown recovery action %q", action)
	}
}

// restartComponent targets the failing piece without touching anything else.
// For process checks that is the named process; for everything else there is
// no finer-grained handle than the helper.
func (r *recoverer) restartComponent(ctx context.Context, check string) error {
	if name, ok := strings.CutPrefix(check, "process:"); ok {
		return r.terminateProcess(ctx, name)
	}
	return r.restartHelper(ctx)
}

// restartHelper terminates helper processes; the user session autostart (or
// the operator) brings them back. A grace period lets in-flight IPC drain.
func (r *recoverer) restartHelper(ctx context.Context) error {
	grace := time.Duration(r.daemon.cfg.Watchdog.RestartGracePeriodSeconds) * time.Second
	if grace > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(grace):
		}
	}
	return r.terminateProcess(ctx, "voiceguard-helper")
}

func (r *recoverer) terminateProcess(ctx context.Context, name string) error {
	cmd := exec.CommandContext(ctx, "pkill", "-TERM", "-x", name)
	if err := cmd.Run(); err != nil {
		// Exit status 1 means no process matched; nothing to restart then.
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return nil
		}
		return fmt.Errorf("terminate %s: %w", name, err)
	}
	r.daemon.logger.Warn("process terminated for recovery", logging.String("process", name))
	return nil
}

func (r *recoverer) restartSystem(ctx context.Context) error {
	r.daemon.logger.Error("escalating to system restart",
		logging.String(logging.FieldImpact, "host reboots"))
	cmd := exec.CommandContext(ctx, "shutdown", "-r", "now")
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("system restart: %w (%s)", err, string(output))
	}
	return nil
}
