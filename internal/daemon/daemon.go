// Package daemon assembles the privileged service: the IPC server receiving
// helper messages, the shutdown arbiter, the watchdog, and flock-based
// locking to prevent multiple instances.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"voiceguard/internal/arbiter"
	"voiceguard/internal/config"
	"voiceguard/internal/deps"
	"voiceguard/internal/events"
	"voiceguard/internal/ipc"
	"voiceguard/internal/logging"
	"voiceguard/internal/notify"
	"voiceguard/internal/settings"
	"voiceguard/internal/watchdog"
)

// Daemon coordinates the service-side components and enforces
// single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *settings.Store
	recorder *events.Recorder
	arbiter  *arbiter.Arbiter
	server   *ipc.Server
	watchdog *watchdog.Watchdog
	hotplug  *watchdog.HotplugMonitor
	notifier notify.Service

	lockPath string
	lock     *flock.Flock
	pidPath  string

	mu         sync.Mutex
	lastStatus *ipc.StatusUpdatePayload
	statusAt   time.Time

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running         bool
	SessionState    arbiter.State
	CountdownLeft   int
	HelperConnected bool
	HelperStatus    *ipc.StatusUpdatePayload
	HelperStatusAt  time.Time
	SocketPath      string
	DatabasePath    string
	LockFilePath    string
	Health          map[string]error
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *settings.Store, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil {
		return nil, errors.New("daemon requires config, store, and logger")
	}

	recorder, err := events.NewRecorder(cfg.Paths.LogDir)
	if err != nil {
		return nil, fmt.Errorf("open audit recorder: %w", err)
	}

	notifier := notify.NewService(cfg)

	action := arbiter.NewSystemAction(cfg.Shutdown.Command, cfg.Shutdown.Args)
	arb := arbiter.New(action, recorder, arbiter.Options{
		CountdownSeconds: func() int {
			return store.GetInt(context.Background(), settings.KeyConfirmationDelay, settings.DefaultConfirmationDelay)
		},
		TestMode: func() bool {
			return store.GetBool(context.Background(), settings.KeyTestMode, false)
		},
	}, logger)

	server := ipc.NewServer(cfg.SocketPath(), logger)

	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		recorder: recorder,
		arbiter:  arb,
		server:   server,
		notifier: notifier,
		lockPath: filepath.Join(cfg.Paths.DataDir, "voiceguardd.lock"),
		pidPath:  filepath.Join(cfg.Paths.DataDir, "voiceguardd.pid"),
	}
	d.lock = flock.New(d.lockPath)

	d.watchdog = d.buildWatchdog(logger)
	d.hotplug = watchdog.NewHotplugMonitor(logger, d.handleSoundDevice)
	d.registerHandlers()
	return d, nil
}

func (d *Daemon) buildWatchdog(logger *slog.Logger) *watchdog.Watchdog {
	cfg := d.cfg
	checks := []watchdog.Check{
		&watchdog.ServiceCheck{
			SocketPath:   cfg.SocketPath(),
			LastActivity: d.server.LastActivity,
			StaleAfter:   3 * time.Duration(cfg.Watchdog.PollIntervalSeconds) * time.Second,
		},
		watchdog.NewSystemCheck(watchdog.SystemConfig{
			CPUPercentMax:    cfg.Watchdog.SystemCPUPercentMax,
			MemoryPercentMax: cfg.Watchdog.SystemMemoryPercentMax,
			DiskPercentMax:   cfg.Watchdog.SystemDiskPercentMax,
			MicrophoneDevice: cfg.Watchdog.MicrophoneDevice,
			NetworkProbeAddr: cfg.Watchdog.NetworkProbeAddr,
		}),
		&watchdog.ApplicationCheck{Store: d.store, LogDir: cfg.Paths.LogDir},
	}
	for _, name := range cfg.Watchdog.MonitoredProcesses {
		checks = append(checks, watchdog.NewProcessCheck(
			name,
			cfg.Watchdog.ProcessCPUPercentMax,
			cfg.Watchdog.ProcessMemoryMBMax,
			name == "voiceguard-helper",
		))
	}

	recoverer := &recoverer{daemon: d}
	manager := watchdog.NewRecoveryManager(recoverer, d.recorder, logger)
	return watchdog.New(checks, manager, d.recorder, watchdog.Options{
		PollInterval:       time.Duration(cfg.Watchdog.PollIntervalSeconds) * time.Second,
		DependencyInterval: time.Duration(cfg.Watchdog.DependencyIntervalHours) * time.Hour,
		ValidateDependencies: func(context.Context) error {
			return deps.Validate(cfg)
		},
	}, logger)
}

func (d *Daemon) registerHandlers() {
	d.server.Handle(ipc.TypeCommandDetected, d.handleCommandDetected)
	d.server.Handle(ipc.TypeCancelShutdown, d.handleCancelShutdown)
	d.server.Handle(ipc.TypeStatusUpdate, d.handleStatusUpdate)
	d.server.Handle(ipc.TypeConfigChange, d.handleConfigChange)
	d.server.SetConnectionHooks(
		func() { _ = d.recorder.Record(events.CodeHelperConnected, "", nil) },
		func() { _ = d.recorder.Record(events.CodeHelperLost, "", nil) },
	)
}

// Start acquires the daemon lock and launches the IPC server and watchdog.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another voiceguard daemon instance is already running")
	}

	if err := os.WriteFile(d.pidPath, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("write pid file: %w", err)
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.server.Serve(d.ctx); err != nil {
			d.logger.Error("ipc server exited", logging.Error(err))
		}
	}()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.watchdog.Run(d.ctx)
	}()

	if err := d.hotplug.Start(d.ctx); err != nil {
		d.logger.Warn("hotplug monitor failed to start", logging.Error(err))
	}

	d.running.Store(true)
	d.logger.Info("voiceguard daemon started",
		logging.String("socket", d.cfg.SocketPath()),
		logging.String("lock", d.lockPath))
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.hotplug.Stop()
	_ = d.server.Close()
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	_ = os.Remove(d.pidPath)
	d.running.Store(false)
	d.logger.Info("voiceguard daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if err := d.recorder.Close(); err != nil {
		return err
	}
	return d.store.Close()
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	state, remaining := d.arbiter.State()
	d.mu.Lock()
	lastStatus := d.lastStatus
	statusAt := d.statusAt
	d.mu.Unlock()
	return Status{
		Running:         d.running.Load(),
		SessionState:    state,
		CountdownLeft:   remaining,
		HelperConnected: d.server.ClientConnected(),
		HelperStatus:    lastStatus,
		HelperStatusAt:  statusAt,
		SocketPath:      d.cfg.SocketPath(),
		DatabasePath:    d.store.Path(),
		LockFilePath:    d.lockPath,
		Health:          d.watchdog.Health(),
	}
}

func (d *Daemon) handleCommandDetected(ctx context.Context, msg *ipc.Message) error {
	var payload ipc.CommandDetectedPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("decode command payload: %w", err)
	}

	d.logger.Warn("shutdown command received",
		logging.String("command", payload.Command),
		logging.Float64("confidence", payload.Confidence),
		logging.String(logging.FieldSource, payload.Source),
		logging.String(logging.FieldMessageID, msg.MessageID))
	_ = d.recorder.Record(events.CodeCommandDetected, payload.Command, map[string]any{
		"confidence": payload.Confidence,
		"source":     payload.Source,
		"text":       payload.OriginalText,
	})
	if err := d.notifier.NotifyCommandDetected(ctx, payload.Command, payload.Confidence); err != nil {
		d.logger.Debug("notification failed", logging.Error(err))
	}

	// The countdown runs in its own goroutine; the ACK must not wait on it.
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		err := d.arbiter.Trigger(d.ctx, arbiter.Trigger{
			Command:    payload.Command,
			Text:       payload.OriginalText,
			Confidence: payload.Confidence,
			Source:     payload.Source,
		})
		if errors.Is(err, arbiter.ErrSessionActive) {
			return
		}
		if err != nil {
			d.logger.Error("shutdown session failed", logging.Error(err))
			return
		}
		if d.arbiter.LastOutcome() == arbiter.StateCompleted && d.arbiter.LastError() == nil {
			_ = d.notifier.NotifyShutdownExecuted(context.Background(), payload.Command)
		}
	}()
	return nil
}

func (d *Daemon) handleCancelShutdown(ctx context.Context, msg *ipc.Message) error {
	var payload ipc.CancelShutdownPayload
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return fmt.Errorf("decode cancel payload: %w", err)
		}
	}
	if d.arbiter.Cancel(payload.Reason) {
		_ = d.notifier.NotifyShutdownCancelled(ctx, payload.Reason)
	}
	return nil
}

func (d *Daemon) handleStatusUpdate(_ context.Context, msg *ipc.Message) error {
	var payload ipc.StatusUpdatePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("decode status payload: %w", err)
	}
	d.mu.Lock()
	d.lastStatus = &payload
	d.statusAt = time.Now()
	d.mu.Unlock()
	d.logger.Debug("helper status",
		logging.String("state", payload.State),
		logging.Float64("voiced_ratio", payload.VoicedRatio))
	return nil
}

func (d *Daemon) handleConfigChange(_ context.Context, msg *ipc.Message) error {
	var payload ipc.ConfigChangePayload
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return fmt.Errorf("decode config change payload: %w", err)
		}
	}
	// Arbiter settings are read from the store per session, so noting the
	// change is all that is needed here.
	d.logger.Info("configuration change announced",
		logging.Any("keys", payload.Keys))
	return nil
}

func (d *Daemon) handleSoundDevice(_ context.Context, device, action string) {
	if action == "remove" {
		d.logger.Warn("sound device removed",
			logging.String("device", device),
			logging.String(logging.FieldImpact, "voice detection may be unavailable"))
		return
	}
	d.logger.Info("sound device added", logging.String("device", device))
}
