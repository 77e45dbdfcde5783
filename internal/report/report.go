// Package report turns scenario results into session artifacts: a structured
// JSON file, a JUnit-compatible XML file for CI, and an HTML summary.
package report

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"editorswarm/internal/runner"
)

// Artifact file names within the results directory.
const (
	JSONFileName  = "results.json"
	JUnitFileName = "junit.xml"
	HTMLFileName  = "report.html"
)

// Summary is the roll-up over all collected results.
type Summary struct {
	Total    int     `json:"total"`
	Passed   int     `json:"passed"`
	Failed   int     `json:"failed"`
	PassRate float64 `json:"pass_rate"`
}

// Aggregator collects TestResults and writes the report artifacts. It only
// consumes runner output; it never touches workers.
type Aggregator struct {
	dir    string
	logger *slog.Logger

	mu      sync.Mutex
	results []runner.TestResult
}

// NewAggregator creates an aggregator writing into dir.
func NewAggregator(dir string, logger *slog.Logger) *Aggregator {
	return &Aggregator{dir: dir, logger: logger}
}

// Add collects one finished scenario result.
func (a *Aggregator) Add(result runner.TestResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.results = append(a.results, result)
}

// Results returns a copy of the collected results.
func (a *Aggregator) Results() []runner.TestResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]runner.TestResult, len(a.results))
	copy(out, a.results)
	return out
}

// Summary computes the roll-up over collected results.
func (a *Aggregator) Summary() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := Summary{Total: len(a.results)}
	for _, r := range a.results {
		if r.Success {
			s.Passed++
		} else {
			s.Failed++
		}
	}
	if s.Total > 0 {
		s.PassRate = float64(s.Passed) / float64(s.Total)
	}
	return s
}

// AllPassed reports whether every collected scenario succeeded. Drives the
// CLI exit code for CI gating.
func (a *Aggregator) AllPassed() bool {
	s := a.Summary()
	return s.Failed == 0
}

func (a *Aggregator) ensureDir() error {
	return os.MkdirAll(a.dir, 0o755)
}

// jsonReport is the top-level structure of results.json.
type jsonReport struct {
	GeneratedAt string              `json:"generated_at"`
	Summary     Summary             `json:"summary"`
	Results     []runner.TestResult `json:"results"`
}

// WriteJSON writes the structured results file and returns its path.
func (a *Aggregator) WriteJSON() (string, error) {
	if err := a.ensureDir(); err != nil {
		return "", fmt.Errorf("creating results dir: %w", err)
	}

	doc := jsonReport{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Summary:     a.Summary(),
		Results:     a.Results(),
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding results: %w", err)
	}

	path := filepath.Join(a.dir, JSONFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}

// JUnit document model: suite-per-scenario, case-per-instance.
type junitTestSuites struct {
	XMLName  xml.Name     `xml:"testsuites"`
	Tests    int          `xml:"tests,attr"`
	Failures int          `xml:"failures,attr"`
	Suites   []junitSuite `xml:"testsuite"`
}

type junitSuite struct {
	Name     string      `xml:"name,attr"`
	Tests    int         `xml:"tests,attr"`
	Failures int         `xml:"failures,attr"`
	Time     string      `xml:"time,attr"`
	Cases    []junitCase `xml:"testcase"`
}

type junitCase struct {
	Classname string        `xml:"classname,attr"`
	Name      string        `xml:"name,attr"`
	Time      string        `xml:"time,attr"`
	Failure   *junitFailure `xml:"failure,omitempty"`
}

type junitFailure struct {
	Message string `xml:"message,attr"`
	Body    string `xml:",chardata"`
}

// junitLogLines caps the log excerpt embedded in a failure body.
const junitLogLines = 50

// WriteJUnit writes the CI-consumable XML file and returns its path.
// Failed cases carry the joined error list as the failure message and the
// instance's trailing log lines as the body.
func (a *Aggregator) WriteJUnit() (string, error) {
	if err := a.ensureDir(); err != nil {
		return "", fmt.Errorf("creating results dir: %w", err)
	}

	results := a.Results()
	doc := junitTestSuites{}
	for _, res := range results {
		suite := junitSuite{
			Name:  res.Scenario,
			Tests: len(res.Instances),
			Time:  fmt.Sprintf("%.3f", res.DurationSeconds),
		}
		for _, inst := range res.Instances {
			c := junitCase{
				Classname: res.Scenario,
				Name:      fmt.Sprintf("instance_%d_%s", inst.InstanceID, inst.Role),
				Time:      fmt.Sprintf("%.3f", inst.DurationSeconds),
			}
			if !inst.Success {
				suite.Failures++
				tail := inst.LogTail
				if len(tail) > junitLogLines {
					tail = tail[len(tail)-junitLogLines:]
				}
				c.Failure = &junitFailure{
					Message: strings.Join(inst.Errors, "; "),
					Body:    strings.Join(tail, "\n"),
				}
			}
			suite.Cases = append(suite.Cases, c)
		}
		// Scenario-level errors become a synthetic case so CI still sees
		// launches that never produced instances.
		if len(res.Instances) == 0 && !res.Success {
			suite.Tests++
			suite.Failures++
			suite.Cases = append(suite.Cases, junitCase{
				Classname: res.Scenario,
				Name:      "scenario",
				Failure: &junitFailure{
					Message: strings.Join(res.Errors, "; "),
				},
			})
		}
		doc.Tests += suite.Tests
		doc.Failures += suite.Failures
		doc.Suites = append(doc.Suites, suite)
	}

	data, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding junit: %w", err)
	}

	path := filepath.Join(a.dir, JUnitFileName)
	out := append([]byte(xml.Header), data...)
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}

// WriteAll writes every artifact, logging failures but returning the first.
func (a *Aggregator) WriteAll() error {
	var firstErr error
	for _, write := range []func() (string, error){a.WriteJSON, a.WriteJUnit, a.WriteHTML} {
		path, err := write()
		if err != nil {
			a.logger.Error("report_write_failed", "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		a.logger.Info("report_written", "path", path)
	}
	return firstErr
}
