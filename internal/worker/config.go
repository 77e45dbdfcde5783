// Package worker owns the lifecycle of external editor processes: spawn,
// readiness detection, log capture, resource-usage sampling, and shutdown.
package worker

import (
	"fmt"
	"os"
	"time"
)

// Environment variables every worker receives so it can self-configure
// without command-line parsing.
const (
	EnvInstanceID = "EDITOR_INSTANCE_ID"
	EnvRole       = "EDITOR_ROLE"
	EnvPort       = "EDITOR_PORT"
	EnvScratchDir = "EDITOR_SCRATCH_DIR"
)

// Config holds the immutable launch parameters for one worker instance.
type Config struct {
	// InstanceID is the numeric identity of this worker within its batch.
	InstanceID int

	// Role is a free-form role string, e.g. "server" or "client".
	Role string

	// Port is the network port assigned to this instance.
	Port int

	// Target is the path to the editor/engine binary.
	Target string

	// Project is the project file passed as the first argument, if any.
	Project string

	// Script is the startup script dispatched to the worker, if any.
	Script string

	// ExtraArgs are appended after the standard arguments.
	ExtraArgs []string

	// Env contains additional environment overrides (KEY=VALUE semantics,
	// keyed by name). Applied after the standard identity variables.
	Env map[string]string

	// ScratchDir is the isolated working directory for this instance.
	ScratchDir string

	// ReadyMarkers are log substrings that signal the worker is ready.
	ReadyMarkers []string

	// PollInterval is the readiness poll tick. Defaults to 500ms.
	PollInterval time.Duration

	// StopTimeout bounds graceful termination before force-kill.
	StopTimeout time.Duration

	// LogBufferLines caps the in-memory log tail. Defaults to 2000.
	LogBufferLines int
}

// Validate checks that the config can produce a launchable process.
func (c *Config) Validate() error {
	if c.Target == "" {
		return fmt.Errorf("worker %d: target binary not set", c.InstanceID)
	}
	if _, err := os.Stat(c.Target); err != nil {
		return fmt.Errorf("worker %d: target %q not found: %w", c.InstanceID, c.Target, err)
	}
	if c.Project != "" {
		if _, err := os.Stat(c.Project); err != nil {
			return fmt.Errorf("worker %d: project %q not found: %w", c.InstanceID, c.Project, err)
		}
	}
	if len(c.ReadyMarkers) == 0 {
		return fmt.Errorf("worker %d: no readiness markers configured", c.InstanceID)
	}
	return nil
}

// buildArgs constructs the command-line arguments for the worker process.
func (c *Config) buildArgs() []string {
	var args []string

	if c.Project != "" {
		args = append(args, c.Project)
	}
	if c.Script != "" {
		args = append(args, fmt.Sprintf("-startup-script=%s", c.Script))
	}

	args = append(args, c.ExtraArgs...)
	return args
}

// buildEnv constructs the process environment: the parent environment plus
// the identity contract, plus any per-instance overrides.
func (c *Config) buildEnv() []string {
	env := os.Environ()

	env = append(env,
		fmt.Sprintf("%s=%d", EnvInstanceID, c.InstanceID),
		fmt.Sprintf("%s=%s", EnvRole, c.Role),
		fmt.Sprintf("%s=%d", EnvPort, c.Port),
	)
	if c.ScratchDir != "" {
		env = append(env, fmt.Sprintf("%s=%s", EnvScratchDir, c.ScratchDir))
	}

	for k, v := range c.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}
