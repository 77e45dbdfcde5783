package scenario

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration with YAML support for values like "90s" or
// "5m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Suite is a YAML file of scenarios sharing session-level defaults.
type Suite struct {
	// Name labels the suite in reports.
	Name string `yaml:"name"`

	// DefaultDeadline applies to scenarios without their own deadline.
	DefaultDeadline Duration `yaml:"default_deadline"`

	Scenarios []Scenario `yaml:"scenarios"`
}

// LoadSuite reads and validates a suite file.
func LoadSuite(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading suite %s: %w", path, err)
	}

	var suite Suite
	if err := yaml.Unmarshal(data, &suite); err != nil {
		return nil, fmt.Errorf("parsing suite %s: %w", path, err)
	}

	if len(suite.Scenarios) == 0 {
		return nil, fmt.Errorf("suite %s: no scenarios defined", path)
	}
	seen := make(map[string]bool, len(suite.Scenarios))
	for i := range suite.Scenarios {
		s := &suite.Scenarios[i]
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("suite %s: %w", path, err)
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("suite %s: duplicate scenario %q", path, s.Name)
		}
		seen[s.Name] = true
	}
	return &suite, nil
}

// Runnable returns the scenarios that are not tagged skip.
func (s *Suite) Runnable() []Scenario {
	out := make([]Scenario, 0, len(s.Scenarios))
	for _, sc := range s.Scenarios {
		if sc.HasTag(TagSkip) {
			continue
		}
		out = append(out, sc)
	}
	return out
}
