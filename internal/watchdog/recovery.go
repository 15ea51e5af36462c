package watchdog

import (
	"context"
	"log/slog"
	"sync"

	"voiceguard/internal/events"
	"voiceguard/internal/logging"
)

// RecoveryAction is the remediation chosen for a failure streak.
type RecoveryAction string

const (
	ActionRestartComponent RecoveryAction = "restart_component"
	ActionRestartService   RecoveryAction = "restart_service"
	ActionRestartSystem    RecoveryAction = "restart_system"
)

// ActionForStreak maps consecutive failures to a recovery action: the first
// failure restarts the component, sustained failure restarts the service,
// and from the fourth on the whole system is restarted.
func ActionForStreak(consecutive int) RecoveryAction {
	switch {
	case consecutive <= 1:
		return ActionRestartComponent
	case consecutive <= 3:
		return ActionRestartService
	default:
		return ActionRestartSystem
	}
}

// Recoverer executes recovery actions.
type Recoverer interface {
	Recover(ctx context.Context, check string, action RecoveryAction) error
}

// RecoveryManager runs recovery asynchronously so a slow restart never
// blocks the poll loop, and collapses overlapping recoveries for the same
// check.
type RecoveryManager struct {
	recoverer Recoverer
	recorder  *events.Recorder
	logger    *slog.Logger

	mu       sync.Mutex
	inflight map[string]bool
}

// NewRecoveryManager builds a manager around the given recoverer.
func NewRecoveryManager(recoverer Recoverer, recorder *events.Recorder, logger *slog.Logger) *RecoveryManager {
	return &RecoveryManager{
		recoverer: recoverer,
		recorder:  recorder,
		logger:    logging.NewComponentLogger(logger, "recovery"),
		inflight:  make(map[string]bool),
	}
}

// Trigger fires the recovery action for check in the background. A recovery
// already running for the same check suppresses the new one.
func (m *RecoveryManager) Trigger(ctx context.Context, check string, action RecoveryAction) {
	m.mu.Lock()
	if m.inflight[check] {
		m.mu.Unlock()
		m.logger.Debug("recovery already in flight", logging.String("check", check))
		return
	}
	m.inflight[check] = true
	m.mu.Unlock()

	m.logger.Warn("triggering recovery",
		logging.String("check", check),
		logging.String("action", string(action)))
	_ = m.recorder.Record(events.CodeWatchdogRecovery, check, map[string]any{
		"action": string(action),
	})

	go func() {
		defer func() {
			m.mu.Lock()
			delete(m.inflight, check)
			m.mu.Unlock()
		}()
		if err := m.recoverer.Recover(ctx, check, action); err != nil {
			m.logger.Error("recovery failed",
				logging.String("check", check),
				logging.String("action", string(action)),
				logging.Error(err))
		}
	}()
}
