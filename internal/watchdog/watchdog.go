package watchdog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"voiceguard/internal/events"
	"voiceguard/internal/logging"
)

// Options configures the supervisor loop.
type Options struct {
	PollInterval       time.Duration
	DependencyInterval time.Duration
	// ValidateDependencies re-verifies external dependencies (binaries,
	// devices). Runs on the dependency interval, not every poll. May be nil.
	ValidateDependencies func(ctx context.Context) error
}

// Watchdog polls every check on a fixed interval and escalates sustained
// failures through the recovery manager.
type Watchdog struct {
	checks   []Check
	tracker  *FailureTracker
	recovery *RecoveryManager
	recorder *events.Recorder
	logger   *slog.Logger
	opts     Options

	mu         sync.Mutex
	lastHealth map[string]error
	lastDeps   time.Time
}

// New builds a watchdog over the given checks.
func New(checks []Check, recovery *RecoveryManager, recorder *events.Recorder, opts Options, logger *slog.Logger) *Watchdog {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 30 * time.Second
	}
	if opts.DependencyInterval <= 0 {
		opts.DependencyInterval = 6 * time.Hour
	}
	return &Watchdog{
		checks:     checks,
		tracker:    NewFailureTracker(),
		recovery:   recovery,
		recorder:   recorder,
		logger:     logging.NewComponentLogger(logger, "watchdog"),
		opts:       opts,
		lastHealth: make(map[string]error),
	}
}

// Run polls until ctx is cancelled.
func (w *Watchdog) Run(ctx context.Context) {
	w.logger.Info("watchdog started",
		logging.Duration("poll_interval", w.opts.PollInterval),
		logging.Int("checks", len(w.checks)))

	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watchdog stopped")
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

// Health returns the most recent result per check; nil means healthy.
func (w *Watchdog) Health() map[string]error {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]error, len(w.lastHealth))
	for name, err := range w.lastHealth {
		out[name] = err
	}
	return out
}

func (w *Watchdog) poll(ctx context.Context) {
	for _, check := range w.checks {
		err := check.Check(ctx)

		w.mu.Lock()
		w.lastHealth[check.Name()] = err
		w.mu.Unlock()

		if err == nil {
			if w.tracker.Count(check.Name()) > 0 {
				w.logger.Info("check recovered", logging.String("check", check.Name()))
			}
			w.tracker.Reset(check.Name())
			continue
		}

		streak := w.tracker.Fail(check.Name())
		w.logger.Warn("check failed",
			logging.String("check", check.Name()),
			logging.String("layer", check.Layer().String()),
			logging.Int("consecutive", streak),
			logging.Error(err))
		_ = w.recorder.Record(events.CodeWatchdogFailure, check.Name(), map[string]any{
			"layer":       check.Layer().String(),
			"consecutive": streak,
			"error":       err.Error(),
		})

		w.recovery.Trigger(ctx, check.Name(), ActionForStreak(streak))
	}

	w.maybeValidateDependencies(ctx)
}

func (w *Watchdog) maybeValidateDependencies(ctx context.Context) {
	if w.opts.ValidateDependencies == nil {
		return
	}
	w.mu.Lock()
	due := time.Since(w.lastDeps) >= w.opts.DependencyInterval
	if due {
		w.lastDeps = time.Now()
	}
	w.mu.Unlock()
	if !due {
		return
	}

	if err := w.opts.ValidateDependencies(ctx); err != nil {
		w.logger.Warn("dependency validation failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "reinstall or reconfigure the missing dependency"))
		return
	}
	w.logger.Info("dependency validation passed")
}
