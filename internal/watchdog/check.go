// Package watchdog supervises the whole system in layers: the service
// process itself, the helper and other monitored processes, host resources,
// and application-level dependencies. Consecutive failures escalate through
// increasingly heavy recovery actions.
package watchdog

import "context"

// Layer orders checks from innermost (our own process) to outermost (the
// host and its dependencies).
type Layer int

const (
	LayerService Layer = iota + 1
	LayerProcess
	LayerSystem
	LayerApplication
)

func (l Layer) String() string {
	switch l {
	case LayerService:
		return "service"
	case LayerProcess:
		return "process"
	case LayerSystem:
		return "system"
	case LayerApplication:
		return "application"
	default:
		return "unknown"
	}
}

// Check is one health probe. Check returns nil when healthy.
type Check interface {
	Name() string
	Layer() Layer
	Check(ctx context.Context) error
}
