// Package scenario defines multi-worker test scenarios and loads suite files.
package scenario

import (
	"fmt"
	"time"
)

// RoleAll is the catch-all script key: a role without a role-specific script
// falls back to the script registered under RoleAll.
const RoleAll = "all"

// DefaultRole is assigned to instance indexes without an explicit role.
const DefaultRole = "client"

// Tag is a closed set of scenario attributes interpreted by explicit policy
// (retry eligibility, skipping, serialization), not string-matched markers.
type Tag string

const (
	// TagFlaky marks a scenario eligible for automatic retry.
	TagFlaky Tag = "flaky"

	// TagSlow marks a scenario expected to approach its deadline.
	TagSlow Tag = "slow"

	// TagSkip excludes a scenario from the run.
	TagSkip Tag = "skip"

	// TagSerial forbids running the scenario concurrently with others.
	TagSerial Tag = "serial"

	// TagNoRetry excludes a scenario from retry even when policy would
	// otherwise allow it.
	TagNoRetry Tag = "no-retry"
)

var knownTags = map[Tag]bool{
	TagFlaky:   true,
	TagSlow:    true,
	TagSkip:    true,
	TagSerial:  true,
	TagNoRetry: true,
}

// Scenario is an immutable multi-worker test definition.
type Scenario struct {
	// Name identifies the scenario in results and flake history.
	Name string `yaml:"name"`

	// Workers is the required worker count.
	Workers int `yaml:"workers"`

	// Roles maps instance index to role. Indexes without an entry get
	// DefaultRole.
	Roles map[int]string `yaml:"roles"`

	// Scripts maps role (or RoleAll) to the script dispatched at startup.
	Scripts map[string]string `yaml:"scripts"`

	// Deadline bounds scenario execution. Zero means the session default.
	Deadline Duration `yaml:"deadline"`

	// Tags attach policy attributes.
	Tags []Tag `yaml:"tags"`

	// ExtraArgs are appended to every worker's command line.
	ExtraArgs []string `yaml:"extra_args"`
}

// Validate checks structural invariants before any worker is touched.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("scenario name is required")
	}
	if s.Workers < 1 {
		return fmt.Errorf("scenario %s: workers must be at least 1 (got %d)", s.Name, s.Workers)
	}
	for idx := range s.Roles {
		if idx < 0 || idx >= s.Workers {
			return fmt.Errorf("scenario %s: role index %d outside [0, %d)", s.Name, idx, s.Workers)
		}
	}
	for _, tag := range s.Tags {
		if !knownTags[tag] {
			return fmt.Errorf("scenario %s: unknown tag %q", s.Name, tag)
		}
	}
	return nil
}

// RoleFor returns the role assigned to an instance index.
func (s *Scenario) RoleFor(index int) string {
	if role, ok := s.Roles[index]; ok {
		return role
	}
	return DefaultRole
}

// ScriptFor resolves the script for a role, falling back to the shared
// RoleAll entry. ok is false when neither exists.
func (s *Scenario) ScriptFor(role string) (script string, ok bool) {
	if script, ok = s.Scripts[role]; ok {
		return script, true
	}
	script, ok = s.Scripts[RoleAll]
	return script, ok
}

// HasTag reports whether the scenario carries the tag.
func (s *Scenario) HasTag(tag Tag) bool {
	for _, t := range s.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// DeadlineOrDefault returns the scenario deadline, or def when unset.
func (s *Scenario) DeadlineOrDefault(def time.Duration) time.Duration {
	if d := time.Duration(s.Deadline); d > 0 {
		return d
	}
	return def
}
