// Package notify pushes operator notifications over ntfy. With no topic
// configured the service is a noop.
package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"voiceguard/internal/config"
)

const userAgent = "VoiceGuard/0.1.0"

// Service defines the notification surface exposed to the daemon and
// watchdog.
type Service interface {
	NotifyCommandDetected(ctx context.Context, command string, confidence float64) error
	NotifyShutdownExecuted(ctx context.Context, command string) error
	NotifyShutdownCancelled(ctx context.Context, command string) error
	NotifyWatchdogEscalation(ctx context.Context, check, action string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyCommandDetected(ctx context.Context, command string, confidence float64) error {
	data := payload{
		title:    "VoiceGuard - Command Detected",
		message:  fmt.Sprintf("Shutdown command heard: %q (confidence %.2f)", command, confidence),
		tags:     []string{"voiceguard", "command", "detected"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyShutdownExecuted(ctx context.Context, command string) error {
	data := payload{
		title:    "VoiceGuard - Shutdown Executed",
		message:  fmt.Sprintf("Machine shutdown executed for command %q", command),
		tags:     []string{"voiceguard", "shutdown", "executed"},
		priority: "urgent",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyShutdownCancelled(ctx context.Context, command string) error {
	data := payload{
		title:   "VoiceGuard - Shutdown Cancelled",
		message: fmt.Sprintf("Countdown cancelled for command %q", command),
		tags:    []string{"voiceguard", "shutdown", "cancelled"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyWatchdogEscalation(ctx context.Context, check, action string) error {
	data := payload{
		title:    "VoiceGuard - Recovery",
		message:  fmt.Sprintf("Watchdog recovering %s via %s", check, action),
		tags:     []string{"voiceguard", "watchdog", "recovery"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "VoiceGuard - Test",
		message:  "Notification system test",
		tags:     []string{"voiceguard", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyCommandDetected(context.Context, string, float64) error  { return nil }
func (noopService) NotifyShutdownExecuted(context.Context, string) error          { return nil }
func (noopService) NotifyShutdownCancelled(context.Context, string) error         { return nil }
func (noopService) NotifyWatchdogEscalation(context.Context, string, string) error { return nil }
func (noopService) TestNotification(context.Context) error                        { return nil }
