// Package flake records pass/fail/retry outcomes per test across sessions and
// computes flakiness scores that drive retry policy and reporting.
package flake

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Outcome classifies one recorded run.
type Outcome string

const (
	OutcomePassed Outcome = "passed"
	OutcomeFailed Outcome = "failed"
	OutcomeRerun  Outcome = "rerun"
)

// historyCap bounds the per-test run history; oldest entries are dropped.
const historyCap = 100

// RunRecord is one historical run of a test.
type RunRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Outcome   Outcome   `json:"outcome"`
	Duration  float64   `json:"duration_seconds"`
	Error     string    `json:"error,omitempty"`
}

// Statistics accumulates per-test counters and bounded history.
type Statistics struct {
	TotalRuns int         `json:"total_runs"`
	Passed    int         `json:"passed"`
	Failed    int         `json:"failed"`
	Reruns    int         `json:"reruns"`
	History   []RunRecord `json:"history"`
}

// Score returns reruns/total_runs, 0 when no runs or no reruns.
func (s *Statistics) Score() float64 {
	if s.TotalRuns == 0 || s.Reruns == 0 {
		return 0
	}
	return float64(s.Reruns) / float64(s.TotalRuns)
}

// FlakyTest pairs a test identifier with its score for reporting.
type FlakyTest struct {
	ID        string  `json:"id"`
	Score     float64 `json:"score"`
	TotalRuns int     `json:"total_runs"`
	Reruns    int     `json:"reruns"`
}

// Tracker is the session-owned flakiness registry. Construct one per session
// and pass it to the components that record outcomes; there is no global
// instance.
type Tracker struct {
	path   string
	logger *slog.Logger

	mu    sync.Mutex
	stats map[string]*Statistics
}

// NewTracker creates a tracker backed by the history file at path. A missing
// or corrupt file is logged and treated as empty history, never fatal.
func NewTracker(path string, logger *slog.Logger) *Tracker {
	t := &Tracker{
		path:   path,
		logger: logger,
		stats:  make(map[string]*Statistics),
	}
	t.load()
	return t
}

func (t *Tracker) load() {
	if t.path == "" {
		return
	}

	data, err := os.ReadFile(t.path)
	if err != nil {
		if !os.IsNotExist(err) {
			t.logger.Warn("flake_history_unreadable", "path", t.path, "error", err)
		}
		return
	}

	var stats map[string]*Statistics
	if err := json.Unmarshal(data, &stats); err != nil {
		t.logger.Warn("flake_history_corrupt", "path", t.path, "error", err)
		return
	}
	// A null document or null entry decodes without error; drop those rather
	// than let the first lookup nil-deref.
	if stats == nil {
		t.logger.Warn("flake_history_corrupt", "path", t.path, "error", "null document")
		return
	}
	for id, s := range stats {
		if s == nil {
			t.logger.Warn("flake_history_entry_invalid", "path", t.path, "test", id)
			delete(stats, id)
		}
	}
	t.stats = stats
	t.logger.Debug("flake_history_loaded", "path", t.path, "tests", len(stats))
}

// Record appends a run to the test's bounded history and bumps the matching
// counter.
func (t *Tracker) Record(testID string, outcome Outcome, duration time.Duration, errMsg string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.stats[testID]
	if !ok {
		s = &Statistics{}
		t.stats[testID] = s
	}

	s.TotalRuns++
	switch outcome {
	case OutcomePassed:
		s.Passed++
	case OutcomeFailed:
		s.Failed++
	case OutcomeRerun:
		s.Reruns++
	}

	s.History = append(s.History, RunRecord{
		Timestamp: time.Now().UTC(),
		Outcome:   outcome,
		Duration:  duration.Seconds(),
		Error:     errMsg,
	})
	if len(s.History) > historyCap {
		s.History = s.History[len(s.History)-historyCap:]
	}
}

// Score returns the flakiness score for a test, 0 for unknown tests.
func (t *Tracker) Score(testID string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.stats[testID]
	if !ok {
		return 0
	}
	return s.Score()
}

// IsFlaky reports whether the test has ever needed a rerun.
func (t *Tracker) IsFlaky(testID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.stats[testID]
	return ok && s.Reruns > 0
}

// Statistics returns a copy of the test's stats.
func (t *Tracker) Statistics(testID string) (Statistics, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.stats[testID]
	if !ok {
		return Statistics{}, false
	}
	out := *s
	out.History = make([]RunRecord, len(s.History))
	copy(out.History, s.History)
	return out, true
}

// FlakyTests returns tests scoring at or above minScore, sorted descending.
func (t *Tracker) FlakyTests(minScore float64) []FlakyTest {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []FlakyTest
	for id, s := range t.stats {
		score := s.Score()
		if score >= minScore && s.Reruns > 0 {
			out = append(out, FlakyTest{
				ID:        id,
				Score:     score,
				TotalRuns: s.TotalRuns,
				Reruns:    s.Reruns,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Save writes the history file. I/O failures are returned for logging but the
// session continues with in-memory state.
func (t *Tracker) Save() error {
	if t.path == "" {
		return nil
	}

	t.mu.Lock()
	data, err := json.MarshalIndent(t.stats, "", "  ")
	t.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encoding flake history: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
		return fmt.Errorf("creating history dir: %w", err)
	}
	if err := os.WriteFile(t.path, data, 0o644); err != nil {
		return fmt.Errorf("writing flake history: %w", err)
	}
	return nil
}

// MarkdownReport renders a flakiness summary table for humans.
func (t *Tracker) MarkdownReport(minScore float64) string {
	flaky := t.FlakyTests(minScore)

	var b strings.Builder
	b.WriteString("# Flaky Test Report\n\n")
	if len(flaky) == 0 {
		b.WriteString("No flaky tests recorded.\n")
		return b.String()
	}

	fmt.Fprintf(&b, "%d flaky test(s) at or above score %.2f:\n\n", len(flaky), minScore)
	b.WriteString("| Test | Score | Reruns | Total Runs |\n")
	b.WriteString("|------|-------|--------|------------|\n")
	for _, ft := range flaky {
		fmt.Fprintf(&b, "| %s | %.2f | %d | %d |\n", ft.ID, ft.Score, ft.Reruns, ft.TotalRuns)
	}
	return b.String()
}
