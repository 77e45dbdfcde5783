package runner

import (
	"context"
	"strings"
	"time"

	"editorswarm/internal/flake"
	"editorswarm/internal/scenario"
)

// RunWithRetry executes a scenario under the retry policy, recording every
// attempt with the flake tracker: retried failures as reruns, the final
// attempt as passed or failed.
//
// Tag policy: no-retry forbids retrying regardless of config; flaky grants
// one retry even when the policy allows none.
func (r *Runner) RunWithRetry(ctx context.Context, sc *scenario.Scenario, policy flake.RetryConfig, tracker *flake.Tracker) (TestResult, error) {
	for attempt := 0; ; attempt++ {
		result, err := r.Run(ctx, sc)
		if err != nil {
			return result, err
		}
		result.Attempts = attempt + 1
		duration := time.Duration(result.DurationSeconds * float64(time.Second))

		if result.Success {
			tracker.Record(sc.Name, flake.OutcomePassed, duration, "")
			return result, nil
		}

		if !r.shouldRetry(sc, policy, attempt) || ctx.Err() != nil {
			tracker.Record(sc.Name, flake.OutcomeFailed, duration, firstError(result))
			return result, nil
		}

		tracker.Record(sc.Name, flake.OutcomeRerun, duration, firstError(result))
		r.logger.Info("scenario_retry",
			"scenario", sc.Name,
			"attempt", attempt+1,
			"flakiness_score", tracker.Score(sc.Name),
		)

		// Fresh workers for the rerun.
		r.fleet.Reclaim()

		if policy.Delay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(policy.Delay):
			}
		}
	}
}

func (r *Runner) shouldRetry(sc *scenario.Scenario, policy flake.RetryConfig, attempt int) bool {
	if sc.HasTag(scenario.TagNoRetry) {
		return false
	}
	if policy.ShouldRetry(sc.Name, attempt) {
		return true
	}
	return sc.HasTag(scenario.TagFlaky) && attempt == 0
}

// firstError summarizes a failed result for flake history.
func firstError(result TestResult) string {
	var parts []string
	parts = append(parts, result.Errors...)
	for _, inst := range result.Instances {
		parts = append(parts, inst.Errors...)
	}
	if len(parts) == 0 {
		return "failed"
	}
	if len(parts) > 3 {
		parts = parts[:3]
	}
	return strings.Join(parts, "; ")
}
