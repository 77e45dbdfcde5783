// Package runner drives scenarios to completion: dispatch scripts to a fleet
// of workers, poll against a deadline, and produce structured results.
package runner

// Phase is the scenario execution state machine.
type Phase int

const (
	// PhasePending is the initial state before any worker is touched.
	PhasePending Phase = iota

	// PhaseLaunching indicates workers are being acquired or started.
	PhaseLaunching

	// PhaseRunning indicates the poll loop is monitoring workers.
	PhaseRunning

	// PhaseCompleted indicates every worker finished successfully.
	PhaseCompleted

	// PhaseFailed indicates at least one worker or the launch failed.
	PhaseFailed

	// PhaseTimedOut indicates the deadline expired with workers running.
	PhaseTimedOut
)

// String returns a human-readable name for the phase.
func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseLaunching:
		return "launching"
	case PhaseRunning:
		return "running"
	case PhaseCompleted:
		return "completed"
	case PhaseFailed:
		return "failed"
	case PhaseTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the phase ends the scenario.
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseFailed || p == PhaseTimedOut
}

// InstanceResult is the outcome for one worker within a scenario.
type InstanceResult struct {
	InstanceID      int                `json:"instance_id"`
	Role            string             `json:"role"`
	Success         bool               `json:"success"`
	DurationSeconds float64            `json:"duration_seconds"`
	Errors          []string           `json:"errors,omitempty"`
	Metrics         map[string]float64 `json:"metrics,omitempty"`
	LogTail         []string           `json:"log_tail,omitempty"`
}

// TestResult is the outcome for one scenario. Success is the AND of every
// instance's success; Errors carries scenario-level failures not attributable
// to a single worker (launch exceptions, pool exhaustion).
type TestResult struct {
	Scenario        string           `json:"scenario"`
	Success         bool             `json:"success"`
	Phase           string           `json:"phase"`
	StartTime       string           `json:"start_time"`
	DurationSeconds float64          `json:"duration_seconds"`
	Attempts        int              `json:"attempts"`
	Instances       []InstanceResult `json:"instances"`
	Errors          []string         `json:"errors,omitempty"`
}
