// Package pool maintains a size-bounded set of pre-started workers that are
// acquired and released across many scenarios, avoiding repeated cold-start
// cost.
package pool

// State represents the lifecycle state of a pooled worker.
type State int

const (
	// StateStarting indicates the worker process is being pre-launched.
	StateStarting State = iota

	// StateIdle indicates the worker sits in the available queue.
	StateIdle

	// StateBusy indicates the worker is acquired and assigned a test.
	StateBusy

	// StateStopping indicates the worker is shutting down.
	StateStopping

	// StateFailed indicates a health check failed; the worker is retired
	// and the pool's effective size shrinks.
	StateFailed
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateIdle:
		return "idle"
	case StateBusy:
		return "busy"
	case StateStopping:
		return "stopping"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsUsable returns true if the worker can still serve tests.
func (s State) IsUsable() bool {
	return s == StateIdle || s == StateBusy
}
