package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"editorswarm/internal/scenario"
)

const defaultPollInterval = 500 * time.Millisecond

// logTailLines is how many trailing log lines each InstanceResult keeps.
const logTailLines = 50

// Config holds runner settings.
type Config struct {
	// PollInterval is the completion poll tick. Defaults to 500ms.
	PollInterval time.Duration

	// DefaultDeadline applies to scenarios without their own deadline.
	DefaultDeadline time.Duration
}

// Runner executes scenarios against a fleet.
type Runner struct {
	fleet  Fleet
	cfg    Config
	logger *slog.Logger

	// OnPhase, when set, observes phase transitions (TUI, metrics).
	OnPhase func(scenarioName string, phase Phase)
}

// New creates a runner.
func New(fleet Fleet, cfg Config, logger *slog.Logger) *Runner {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.DefaultDeadline <= 0 {
		cfg.DefaultDeadline = 5 * time.Minute
	}
	return &Runner{fleet: fleet, cfg: cfg, logger: logger}
}

func (r *Runner) setPhase(name string, phase Phase) {
	r.logger.Debug("scenario_phase", "scenario", name, "phase", phase.String())
	if r.OnPhase != nil {
		r.OnPhase(name, phase)
	}
}

// Run executes one scenario to a TestResult.
//
// Configuration errors (invalid scenario, unresolvable required script) are
// returned as errors: they indicate a usage bug, not a flaky run. Everything
// else (launch failures, pool exhaustion, crashes, timeouts, panics) is
// converted into a failed TestResult; the runner never propagates raw
// runtime failures past its boundary.
func (r *Runner) Run(ctx context.Context, sc *scenario.Scenario) (result TestResult, err error) {
	if verr := sc.Validate(); verr != nil {
		return TestResult{}, NewConfigError("%v", verr)
	}

	start := time.Now()
	result = TestResult{
		Scenario:  sc.Name,
		StartTime: start.UTC().Format(time.RFC3339),
		Attempts:  1,
	}
	finalize := func(phase Phase) {
		result.Phase = phase.String()
		result.DurationSeconds = time.Since(start).Seconds()
		r.setPhase(sc.Name, phase)
	}

	defer func() {
		if rec := recover(); rec != nil {
			result.Success = false
			result.Errors = append(result.Errors, fmt.Sprintf("panic: %v", rec))
			finalize(PhaseFailed)
			err = nil
		}
	}()

	r.setPhase(sc.Name, PhaseLaunching)
	instances, derr := r.fleet.Deploy(ctx, sc)
	if derr != nil {
		if IsConfigError(derr) {
			return TestResult{}, derr
		}
		result.Success = false
		result.Errors = append(result.Errors, derr.Error())
		finalize(PhaseFailed)
		return result, nil
	}

	r.setPhase(sc.Name, PhaseRunning)
	deadline := sc.DeadlineOrDefault(r.cfg.DefaultDeadline)
	phase := r.monitor(ctx, sc, instances, deadline, &result)

	result.Success = true
	for _, inst := range result.Instances {
		if !inst.Success {
			result.Success = false
			break
		}
	}
	if len(result.Errors) > 0 {
		result.Success = false
	}
	finalize(phase)

	r.logger.Info("scenario_finished",
		"scenario", sc.Name,
		"success", result.Success,
		"phase", result.Phase,
		"duration", time.Since(start).String(),
	)
	return result, nil
}

// monitor polls all instances until every one is done or the deadline
// expires. On expiry, still-running instances are marked failed with a
// timeout error; they are NOT killed here. Teardown belongs to the fleet's
// Reclaim, keeping failure detection independent from cleanup.
func (r *Runner) monitor(ctx context.Context, sc *scenario.Scenario, instances []Instance, deadline time.Duration, result *TestResult) Phase {
	type track struct {
		inst    Instance
		done    bool
		status  Status
		elapsed time.Duration
		metrics map[string]float64
	}

	start := time.Now()
	tracks := make([]*track, len(instances))
	for i, inst := range instances {
		tracks[i] = &track{inst: inst}
	}

	deadlineTimer := time.NewTimer(deadline)
	defer deadlineTimer.Stop()
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	timedOut := false
	cancelled := false

poll:
	for {
		remaining := 0
		for _, tr := range tracks {
			if tr.done {
				continue
			}
			if status := tr.inst.Probe(); status.Done {
				tr.done = true
				tr.status = status
				tr.elapsed = time.Since(start)
				continue
			}
			// Sample usage while the process is still alive so the
			// final result has data even after it exits.
			if m := tr.inst.Metrics(); m != nil {
				tr.metrics = m
			}
			remaining++
		}
		if remaining == 0 {
			break
		}

		select {
		case <-ctx.Done():
			cancelled = true
			break poll
		case <-deadlineTimer.C:
			timedOut = true
			break poll
		case <-ticker.C:
		}
	}

	for _, tr := range tracks {
		ir := InstanceResult{
			InstanceID: tr.inst.ID(),
			Role:       tr.inst.Role(),
			Metrics:    tr.metrics,
			LogTail:    tr.inst.LogTail(logTailLines),
		}
		switch {
		case tr.done:
			ir.Success = tr.status.Success
			ir.DurationSeconds = tr.elapsed.Seconds()
			if !tr.status.Success && tr.status.Error != "" {
				ir.Errors = append(ir.Errors, tr.status.Error)
			}
		case cancelled:
			ir.Success = false
			ir.DurationSeconds = time.Since(start).Seconds()
			ir.Errors = append(ir.Errors, "cancelled")
		default:
			ir.Success = false
			ir.DurationSeconds = time.Since(start).Seconds()
			ir.Errors = append(ir.Errors, "timeout")
		}
		result.Instances = append(result.Instances, ir)
	}

	switch {
	case cancelled:
		result.Errors = append(result.Errors, "run cancelled")
		return PhaseFailed
	case timedOut:
		r.logger.Warn("scenario_deadline_expired",
			"scenario", sc.Name,
			"deadline", deadline.String(),
		)
		return PhaseTimedOut
	}

	for _, tr := range tracks {
		if !tr.status.Success {
			return PhaseFailed
		}
	}
	return PhaseCompleted
}
