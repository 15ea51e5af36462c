// Package events records the audit trail of safety-relevant actions. Every
// detection, countdown, cancellation, and recovery lands here as one JSON
// line, separate from the operational logs so it survives log rotation and
// can be reviewed after an incident.
package events

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Code identifies the kind of audited event.
type Code string

const (
	CodeCommandDetected   Code = "command_detected"
	CodeCountdownStarted  Code = "countdown_started"
	CodeCountdownTick     Code = "countdown_tick"
	CodeShutdownExecuted  Code = "shutdown_executed"
	CodeShutdownCancelled Code = "shutdown_cancelled"
	CodeShutdownFailed    Code = "shutdown_failed"
	CodeTestModeTriggered Code = "test_mode_triggered"
	CodeWatchdogFailure   Code = "watchdog_failure"
	CodeWatchdogRecovery  Code = "watchdog_recovery"
	CodeHelperConnected   Code = "helper_connected"
	CodeHelperLost        Code = "helper_lost"
)

// Event is one audit record.
type Event struct {
	ID        string         `json:"id"`
	Code      Code           `json:"code"`
	Timestamp time.Time      `json:"timestamp"`
	Detail    string         `json:"detail,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Recorder appends events to a JSONL file. Safe for concurrent use.
type Recorder struct {
	mu   sync.Mutex
	file *os.File
}

// NewRecorder opens (or creates) the audit file under dir.
func NewRecorder(dir string) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure audit directory: %w", err)
	}
	path := filepath.Join(dir, "audit.jsonl")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit file: %w", err)
	}
	return &Recorder{file: file}, nil
}

// Record appends one event. Errors are returned but callers generally log
// and continue; an audit write failure must never block a safety action.
func (r *Recorder) Record(code Code, detail string, fields map[string]any) error {
	event := Event{
		ID:        uuid.NewString(),
		Code:      code,
		Timestamp: time.Now().UTC(),
		Detail:    detail,
		Fields:    fields,
	}
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	if _, err := r.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write audit event: %w", err)
	}
	return nil
}

// Close flushes and closes the audit file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// Nop returns a recorder that drops everything, for tests and console mode.
func Nop() *Recorder { return &Recorder{} }
