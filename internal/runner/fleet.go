package runner

import (
	"context"
	"errors"
	"fmt"

	"editorswarm/internal/scenario"
)

// Status is a point-in-time completion probe of one instance.
type Status struct {
	// Done is true once the instance's outcome is decided.
	Done bool

	// Success is meaningful only when Done.
	Success bool

	// Error describes the failure when Done && !Success.
	Error string
}

// Instance is one deployed worker as the runner sees it: identity, a
// completion probe, and finalization data. Both launch-mode and pool-mode
// workers implement it.
type Instance interface {
	ID() int
	Role() string

	// Probe returns the instance's completion status at this instant.
	// It never blocks.
	Probe() Status

	// LogTail returns the last n captured log lines.
	LogTail(n int) []string

	// Metrics returns resource-usage samples for finalization.
	Metrics() map[string]float64
}

// Fleet supplies workers for scenarios. LaunchFleet starts fresh processes
// per scenario; PoolFleet dispatches onto long-lived pooled workers.
type Fleet interface {
	// Deploy provides sc.Workers instances with scripts dispatched.
	// Configuration errors (unresolvable script, invalid option lengths)
	// are ConfigErrors; resource errors (exhaustion, spawn refusal that
	// prevents any deployment) are plain errors.
	Deploy(ctx context.Context, sc *scenario.Scenario) ([]Instance, error)

	// Reclaim tears down or releases everything Deploy handed out.
	// Safe to call when nothing is deployed.
	Reclaim()
}

// ConfigError marks a usage error that should surface synchronously to the
// caller instead of becoming a failed TestResult.
type ConfigError struct {
	msg string
}

func (e *ConfigError) Error() string {
	return e.msg
}

// NewConfigError creates a ConfigError.
func NewConfigError(format string, args ...any) *ConfigError {
	return &ConfigError{msg: fmt.Sprintf(format, args...)}
}

// IsConfigError reports whether err is a configuration error.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// resolveScripts maps each instance index to its role-resolved script.
// A missing resolvable script for a required role is a scenario-level
// configuration error.
func resolveScripts(sc *scenario.Scenario) ([]string, []string, error) {
	roles := make([]string, sc.Workers)
	scripts := make([]string, sc.Workers)
	for i := 0; i < sc.Workers; i++ {
		roles[i] = sc.RoleFor(i)
		if len(sc.Scripts) == 0 {
			continue
		}
		script, ok := sc.ScriptFor(roles[i])
		if !ok {
			return nil, nil, NewConfigError(
				"scenario %s: no script for role %q and no %q fallback",
				sc.Name, roles[i], scenario.RoleAll,
			)
		}
		scripts[i] = script
	}
	return roles, scripts, nil
}
