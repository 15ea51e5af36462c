package watchdog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"voiceguard/internal/events"
	"voiceguard/internal/logging"
)

func TestActionForStreak(t *testing.T) {
	cases := []struct {
		consecutive int
		want        RecoveryAction
	}{
		{1, ActionRestartComponent},
		{2, ActionRestartService},
		{3, ActionRestartService},
		{4, ActionRestartSystem},
		{10, ActionRestartSystem},
	}
	for _, tc := range cases {
		if got := ActionForStreak(tc.consecutive); got != tc.want {
			t.Errorf("ActionForStreak(%d) = %s, want %s", tc.consecutive, got, tc.want)
		}
	}
}

func TestFailureTrackerResets(t *testing.T) {
	tracker := NewFailureTracker()
	if got := tracker.Fail("mic"); got != 1 {
		t.Fatalf("first failure = %d", got)
	}
	if got := tracker.Fail("mic"); got != 2 {
		t.Fatalf("second failure = %d", got)
	}
	tracker.Reset("mic")
	if got := tracker.Fail("mic"); got != 1 {
		t.Fatalf("failure after reset = %d", got)
	}
	if got := tracker.Count("other"); got != 0 {
		t.Fatalf("unknown check count = %d", got)
	}
}

type scriptedCheck struct {
	name string
	errs []error
	idx  int
}

func (c *scriptedCheck) Name() string { return c.name }
func (c *scriptedCheck) Layer() Layer { return LayerApplication }

func (c *scriptedCheck) Check(context.Context) error {
	if c.idx >= len(c.errs) {
		return nil
	}
	err := c.errs[c.idx]
	c.idx++
	return err
}

type recordingRecoverer struct {
	mu      sync.Mutex
	actions []RecoveryAction
	done    chan struct{}
}

func (r *recordingRecoverer) Recover(_ context.Context, _ string, action RecoveryAction) error {
	r.mu.Lock()
	r.actions = append(r.actions, action)
	r.mu.Unlock()
	r.done <- struct{}{}
	return nil
}

// waitRecoveryIdle blocks until no recovery is in flight, so the next poll
// is not suppressed by the overlap guard.
func waitRecoveryIdle(t *testing.T, manager *RecoveryManager) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		manager.mu.Lock()
		idle := len(manager.inflight) == 0
		manager.mu.Unlock()
		if idle {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("recovery never went idle")
}

func TestPollEscalatesSustainedFailure(t *testing.T) {
	failure := errors.New("database gone")
	check := &scriptedCheck{
		name: "application-state",
		errs: []error{failure, failure, failure, failure},
	}
	recoverer := &recordingRecoverer{done: make(chan struct{}, 8)}
	manager := NewRecoveryManager(recoverer, events.Nop(), logging.NewNop())
	w := New([]Check{check}, manager, events.Nop(), Options{PollInterval: time.Hour}, logging.NewNop())

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		w.poll(ctx)
		select {
		case <-recoverer.done:
		case <-time.After(2 * time.Second):
			t.Fatalf("recovery %d never ran", i+1)
		}
		waitRecoveryIdle(t, manager)
	}

	recoverer.mu.Lock()
	defer recoverer.mu.Unlock()
	want := []RecoveryAction{
		ActionRestartComponent,
		ActionRestartService,
		ActionRestartService,
		ActionRestartSystem,
	}
	if len(recoverer.actions) != len(want) {
		t.Fatalf("recorded %d actions, want %d", len(recoverer.actions), len(want))
	}
	for i, action := range want {
		if recoverer.actions[i] != action {
			t.Errorf("action %d = %s, want %s", i, recoverer.actions[i], action)
		}
	}
}

func TestPollRecoveryResetsStreak(t *testing.T) {
	failure := errors.New("transient")
	check := &scriptedCheck{
		name: "ipc-endpoint",
		errs: []error{failure, nil, failure},
	}
	recoverer := &recordingRecoverer{done: make(chan struct{}, 8)}
	manager := NewRecoveryManager(recoverer, events.Nop(), logging.NewNop())
	w := New([]Check{check}, manager, events.Nop(), Options{PollInterval: time.Hour}, logging.NewNop())

	ctx := context.Background()
	w.poll(ctx)
	<-recoverer.done
	waitRecoveryIdle(t, manager)
	w.poll(ctx) // healthy poll resets the streak
	w.poll(ctx)
	<-recoverer.done
	waitRecoveryIdle(t, manager)

	recoverer.mu.Lock()
	defer recoverer.mu.Unlock()
	for i, action := range recoverer.actions {
		if action != ActionRestartComponent {
			t.Fatalf("action %d = %s; a reset streak must start at component restart", i, action)
		}
	}
}

func TestHealthSnapshot(t *testing.T) {
	failure := errors.New("down")
	check := &scriptedCheck{name: "ipc-endpoint", errs: []error{failure}}
	recoverer := &recordingRecoverer{done: make(chan struct{}, 2)}
	manager := NewRecoveryManager(recoverer, events.Nop(), logging.NewNop())
	w := New([]Check{check}, manager, events.Nop(), Options{PollInterval: time.Hour}, logging.NewNop())

	w.poll(context.Background())
	<-recoverer.done

	health := w.Health()
	if got := health["ipc-endpoint"]; !errors.Is(got, failure) {
		t.Fatalf("health entry = %v", got)
	}

	w.poll(context.Background())
	if got := w.Health()["ipc-endpoint"]; got != nil {
		t.Fatalf("healthy check must report nil, got %v", got)
	}
}
