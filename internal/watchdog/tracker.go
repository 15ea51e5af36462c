package watchdog

import "sync"

// FailureTracker counts consecutive failures per check. A healthy result
// resets the count, so escalation reflects sustained failure rather than
// one-off blips.
type FailureTracker struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewFailureTracker returns an empty tracker.
func NewFailureTracker() *FailureTracker {
	return &FailureTracker{counts: make(map[string]int)}
}

// Fail increments and returns the consecutive failure count for name.
func (t *FailureTracker) Fail(name string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[name]++
	return t.counts[name]
}

// Reset clears the count for name.
func (t *FailureTracker) Reset(name string) {
	t.mu.Lock()
	delete(t.counts, name)
	t.mu.Unlock()
}

// Count returns the current count for name.
func (t *FailureTracker) Count(name string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[name]
}
