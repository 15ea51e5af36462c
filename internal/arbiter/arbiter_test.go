package arbiter

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"voiceguard/internal/events"
	"voiceguard/internal/logging"
)

type fakeAction struct {
	executed atomic.Int32
	err      error
}

func (a *fakeAction) Execute(context.Context) error {
	a.executed.Add(1)
	return a.err
}

func newTestArbiter(action Action, opts Options) *Arbiter {
	a := New(action, events.Nop(), opts, logging.NewNop())
	a.tick = time.Millisecond
	return a
}

func TestTriggerExecutesAfterCountdown(t *testing.T) {
	action := &fakeAction{}
	a := newTestArbiter(action, Options{CountdownSeconds: func() int { return 2 }})

	if err := a.Trigger(context.Background(), Trigger{Command: "kill switch"}); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if action.executed.Load() != 1 {
		t.Fatalf("action executed %d times", action.executed.Load())
	}
	if state, _ := a.State(); state != StateIdle {
		t.Fatalf("state after session = %s", state)
	}
	if outcome := a.LastOutcome(); outcome != StateCompleted {
		t.Fatalf("outcome = %s, want completed", outcome)
	}
}

func TestTestModeStaysIdle(t *testing.T) {
	action := &fakeAction{}
	var mu sync.Mutex
	var transitions []State
	a := newTestArbiter(action, Options{
		CountdownSeconds: func() int { return 1 },
		TestMode:         func() bool { return true },
		OnStateChange: func(state State, _ int) {
			mu.Lock()
			transitions = append(transitions, state)
			mu.Unlock()
		},
	})

	if err := a.Trigger(context.Background(), Trigger{Command: "force stop"}); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if action.executed.Load() != 0 {
		t.Fatal("test mode must not execute the action")
	}

	// A second trigger is accepted immediately since no session ran.
	if err := a.Trigger(context.Background(), Trigger{Command: "kill switch"}); err != nil {
		t.Fatalf("second trigger in test mode: %v", err)
	}

	// No countdown starts: the arbiter never leaves idle.
	mu.Lock()
	defer mu.Unlock()
	if len(transitions) != 0 {
		t.Fatalf("test mode produced transitions %v", transitions)
	}
	if state, _ := a.State(); state != StateIdle {
		t.Fatalf("state = %s, want idle", state)
	}
	if outcome := a.LastOutcome(); outcome != StateIdle {
		t.Fatalf("outcome = %s, want idle", outcome)
	}
}

func TestCancelDuringCountdown(t *testing.T) {
	action := &fakeAction{}
	started := make(chan struct{})
	var once sync.Once
	a := newTestArbiter(action, Options{
		CountdownSeconds: func() int { return 1000 },
		OnStateChange: func(state State, remaining int) {
			if state == StateCountdownPending && remaining > 0 {
				once.Do(func() { close(started) })
			}
		},
	})

	done := make(chan error, 1)
	go func() {
		done <- a.Trigger(context.Background(), Trigger{Command: "emergency shutdown"})
	}()

	<-started
	if !a.Cancel("operator") {
		t.Fatal("cancel during countdown must succeed")
	}
	if err := <-done; err != nil {
		t.Fatalf("cancelled session returned %v", err)
	}
	if action.executed.Load() != 0 {
		t.Fatal("cancelled session must not execute")
	}
	if outcome := a.LastOutcome(); outcome != StateCancelled {
		t.Fatalf("outcome = %s, want cancelled", outcome)
	}
}

func TestCancelIgnoredWhenIdle(t *testing.T) {
	a := newTestArbiter(&fakeAction{}, Options{})
	if a.Cancel("nothing running") {
		t.Fatal("cancel with no session must be ignored")
	}
}

func TestTriggerRejectedWhileSessionActive(t *testing.T) {
	action := &fakeAction{}
	started := make(chan struct{})
	var once sync.Once
	a := newTestArbiter(action, Options{
		CountdownSeconds: func() int { return 1000 },
		OnStateChange: func(state State, remaining int) {
			if state == StateCountdownPending && remaining > 0 {
				once.Do(func() { close(started) })
			}
		},
	})

	go func() {
		_ = a.Trigger(context.Background(), Trigger{Command: "emergency shutdown"})
	}()
	<-started

	err := a.Trigger(context.Background(), Trigger{Command: "kill switch"})
	if !errors.Is(err, ErrSessionActive) {
		t.Fatalf("err = %v, want ErrSessionActive", err)
	}
	a.Cancel("cleanup")
}

func TestActionFailureRecorded(t *testing.T) {
	action := &fakeAction{err: errors.New("shutdown refused")}
	a := newTestArbiter(action, Options{CountdownSeconds: func() int { return 0 }})

	err := a.Trigger(context.Background(), Trigger{Command: "shutdown now"})
	if err == nil {
		t.Fatal("action failure must propagate")
	}
	if lastErr := a.LastError(); lastErr == nil {
		t.Fatal("LastError must retain the action failure")
	}
}
