// Package stats aggregates scenario outcomes across a session: pass/fail
// counts, duration percentiles, and a human-readable end-of-run summary.
package stats

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/influxdata/tdigest"

	"editorswarm/internal/runner"
)

// SessionStats accumulates results as scenarios finish. Safe for concurrent
// recording.
type SessionStats struct {
	mu        sync.Mutex
	startTime time.Time

	durations *tdigest.TDigest

	total     int
	passed    int
	failed    int
	timedOut  int
	retried   int
	instances int

	failureReasons map[string]int
}

// NewSessionStats creates an empty session accumulator.
func NewSessionStats() *SessionStats {
	return &SessionStats{
		startTime:      time.Now(),
		durations:      tdigest.NewWithCompression(100), // ~100 centroids, ~10KB
		failureReasons: make(map[string]int),
	}
}

// Record folds one finished scenario into the session totals.
func (s *SessionStats) Record(result runner.TestResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	s.instances += len(result.Instances)
	s.durations.Add(result.DurationSeconds, 1)

	if result.Attempts > 1 {
		s.retried++
	}

	switch {
	case result.Success:
		s.passed++
	case result.Phase == runner.PhaseTimedOut.String():
		s.timedOut++
		s.failureReasons["timeout"]++
	default:
		s.failed++
		for _, inst := range result.Instances {
			for _, e := range inst.Errors {
				s.failureReasons[e]++
			}
		}
		for _, e := range result.Errors {
			s.failureReasons[e]++
		}
	}
}

// Summary is a point-in-time snapshot of session statistics.
type Summary struct {
	Total     int
	Passed    int
	Failed    int
	TimedOut  int
	Retried   int
	Instances int

	PassRate float64

	DurationP50 time.Duration
	DurationP95 time.Duration
	DurationP99 time.Duration

	Elapsed time.Duration

	FailureReasons map[string]int
}

// Snapshot computes the current summary.
func (s *SessionStats) Snapshot() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := Summary{
		Total:          s.total,
		Passed:         s.passed,
		Failed:         s.failed,
		TimedOut:       s.timedOut,
		Retried:        s.retried,
		Instances:      s.instances,
		Elapsed:        time.Since(s.startTime),
		FailureReasons: make(map[string]int, len(s.failureReasons)),
	}
	for k, v := range s.failureReasons {
		sum.FailureReasons[k] = v
	}
	if s.total > 0 {
		sum.PassRate = float64(s.passed) / float64(s.total)
		sum.DurationP50 = secondsToDuration(s.durations.Quantile(0.50))
		sum.DurationP95 = secondsToDuration(s.durations.Quantile(0.95))
		sum.DurationP99 = secondsToDuration(s.durations.Quantile(0.99))
	}
	return sum
}

func secondsToDuration(sec float64) time.Duration {
	return time.Duration(sec * float64(time.Second))
}

// Format renders the summary as a terminal block printed at session end.
func (s Summary) Format() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Scenarios: %d total, %d passed, %d failed, %d timed out",
		s.Total, s.Passed, s.Failed, s.TimedOut)
	if s.Retried > 0 {
		fmt.Fprintf(&b, " (%d retried)", s.Retried)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "Pass rate: %.1f%%  workers: %d  elapsed: %s\n",
		s.PassRate*100, s.Instances, s.Elapsed.Round(time.Second))
	fmt.Fprintf(&b, "Duration p50/p95/p99: %s / %s / %s\n",
		s.DurationP50.Round(10*time.Millisecond),
		s.DurationP95.Round(10*time.Millisecond),
		s.DurationP99.Round(10*time.Millisecond))

	if len(s.FailureReasons) > 0 {
		b.WriteString("Failure reasons:\n")
		type rc struct {
			reason string
			count  int
		}
		reasons := make([]rc, 0, len(s.FailureReasons))
		for r, c := range s.FailureReasons {
			reasons = append(reasons, rc{r, c})
		}
		sort.Slice(reasons, func(i, j int) bool {
			if reasons[i].count != reasons[j].count {
				return reasons[i].count > reasons[j].count
			}
			return reasons[i].reason < reasons[j].reason
		})
		for _, r := range reasons {
			fmt.Fprintf(&b, "  %4dx %s\n", r.count, r.reason)
		}
	}
	return b.String()
}
