// Package arbiter owns the shutdown decision: it receives detected commands,
// runs the cancellable confirmation countdown, and executes the machine
// shutdown. In test mode a detected command is logged and audited without
// starting a session. At most one session runs at a time; commands arriving
// during a session are rejected.
package arbiter

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"voiceguard/internal/events"
	"voiceguard/internal/logging"
)

// State is the arbiter's session state.
type State string

const (
	StateIdle             State = "idle"
	StateCountdownPending State = "countdown_pending"
	StateExecuting        State = "executing"
	StateCancelled        State = "cancelled"
	StateCompleted        State = "completed"
)

// ErrSessionActive is returned when a command arrives while a countdown or
// execution is already underway.
var ErrSessionActive = errors.New("shutdown session already active")

// Trigger describes the command that started a session.
type Trigger struct {
	Command    string
	Text       string
	Confidence float64
	Source     string
}

// Action performs the actual machine shutdown.
type Action interface {
	Execute(ctx context.Context) error
}

// Options configures the arbiter.
type Options struct {
	// CountdownSeconds reads the runtime countdown duration per session.
	CountdownSeconds func() int
	// TestMode reads whether execution is suppressed.
	TestMode func() bool
	// OnStateChange is invoked after every transition. May be nil.
	OnStateChange func(state State, remaining int)
}

// Arbiter runs shutdown sessions.
type Arbiter struct {
	action   Action
	recorder *events.Recorder
	logger   *slog.Logger
	opts     Options

	mu          sync.Mutex
	state       State
	remaining   int
	cancelFn    context.CancelFunc
	lastErr     error
	lastOutcome State

	// tick is swappable for tests.
	tick time.Duration
}

// New builds an arbiter in the idle state.
func New(action Action, recorder *events.Recorder, opts Options, logger *slog.Logger) *Arbiter {
	if opts.CountdownSeconds == nil {
		opts.CountdownSeconds = func() int { return 3 }
	}
	if opts.TestMode == nil {
		opts.TestMode = func() bool { return false }
	}
	return &Arbiter{
		action:   action,
		recorder: recorder,
		logger:   logging.NewComponentLogger(logger, "arbiter"),
		opts:     opts,
		state:    StateIdle,
		tick:     time.Second,
	}
}

// State returns the current state and remaining countdown seconds.
func (a *Arbiter) State() (State, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state, a.remaining
}

// LastError returns the action error from the most recent completed session,
// if any.
func (a *Arbiter) LastError() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastErr
}

// LastOutcome reports how the most recent trigger ended: StateCompleted for
// an executed session, StateCancelled for an aborted countdown, StateIdle
// when test mode suppressed the session.
func (a *Arbiter) LastOutcome() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastOutcome
}

// Trigger starts a shutdown session for the detected command. It returns
// ErrSessionActive if a session is already running. The countdown runs on
// the calling goroutine.
func (a *Arbiter) Trigger(ctx context.Context, trigger Trigger) error {
	a.mu.Lock()
	if a.state == StateCountdownPending || a.state == StateExecuting {
		a.mu.Unlock()
		a.logger.Warn("command rejected, session active",
			logging.String("command", trigger.Command))
		return ErrSessionActive
	}

	// Test mode short-circuits before any session starts: no countdown, no
	// state transition, the arbiter stays idle.
	if a.opts.TestMode() {
		a.lastOutcome = StateIdle
		a.mu.Unlock()
		a.logger.Warn("test mode active, shutdown suppressed",
			logging.String("command", trigger.Command),
			logging.Float64("confidence", trigger.Confidence),
			logging.String(logging.FieldSource, trigger.Source),
			logging.String(logging.FieldImpact, "machine stays up"))
		_ = a.recorder.Record(events.CodeTestModeTriggered, trigger.Command, map[string]any{
			"confidence": trigger.Confidence,
			"source":     trigger.Source,
		})
		return nil
	}

	seconds := a.opts.CountdownSeconds()
	if seconds < 0 {
		seconds = 0
	}
	sessionCtx, cancel := context.WithCancel(ctx)
	a.cancelFn = cancel
	a.lastErr = nil
	a.transitionLocked(StateCountdownPending, seconds)
	a.mu.Unlock()
	defer cancel()

	a.logger.Warn("shutdown countdown started",
		logging.String("command", trigger.Command),
		logging.Float64("confidence", trigger.Confidence),
		logging.String(logging.FieldSource, trigger.Source),
		logging.Int("seconds", seconds))
	_ = a.recorder.Record(events.CodeCountdownStarted, trigger.Command, map[string]any{
		"confidence": trigger.Confidence,
		"source":     trigger.Source,
		"seconds":    seconds,
	})

	if !a.countdown(sessionCtx, seconds) {
		a.mu.Lock()
		a.lastOutcome = StateCancelled
		a.transitionLocked(StateCancelled, 0)
		a.transitionLocked(StateIdle, 0)
		a.mu.Unlock()
		a.logger.Info("shutdown cancelled during countdown")
		_ = a.recorder.Record(events.CodeShutdownCancelled, trigger.Command, nil)
		return nil
	}

	a.mu.Lock()
	a.transitionLocked(StateExecuting, 0)
	a.mu.Unlock()

	err := a.action.Execute(ctx)
	if err != nil {
		a.logger.Error("shutdown action failed", logging.Error(err))
		_ = a.recorder.Record(events.CodeShutdownFailed, trigger.Command, map[string]any{
			"error": err.Error(),
		})
	} else {
		a.logger.Warn("shutdown executed", logging.String("command", trigger.Command))
		_ = a.recorder.Record(events.CodeShutdownExecuted, trigger.Command, nil)
	}
	a.finish(err)
	return err
}

// countdown ticks once per second. Returns false when cancelled.
func (a *Arbiter) countdown(ctx context.Context, seconds int) bool {
	for remaining := seconds; remaining > 0; remaining-- {
		a.mu.Lock()
		a.transitionLocked(StateCountdownPending, remaining)
		a.mu.Unlock()
		_ = a.recorder.Record(events.CodeCountdownTick, "", map[string]any{"remaining": remaining})

		select {
		case <-ctx.Done():
			return false
		case <-time.After(a.tick):
		}
	}
	return ctx.Err() == nil
}

// Cancel aborts the running countdown. It has no effect once the countdown
// has reached zero: at that point execution is committed.
func (a *Arbiter) Cancel(reason string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateCountdownPending || a.remaining <= 0 {
		a.logger.Info("cancel ignored",
			logging.String("state", string(a.state)),
			logging.String("reason", reason))
		return false
	}
	a.logger.Warn("cancel requested", logging.String("reason", reason))
	a.cancelFn()
	return true
}

func (a *Arbiter) finish(err error) {
	a.mu.Lock()
	a.lastErr = err
	a.lastOutcome = StateCompleted
	a.transitionLocked(StateCompleted, 0)
	a.transitionLocked(StateIdle, 0)
	a.mu.Unlock()
}

func (a *Arbiter) transitionLocked(state State, remaining int) {
	a.state = state
	a.remaining = remaining
	if a.opts.OnStateChange != nil {
		a.opts.OnStateChange(state, remaining)
	}
}
