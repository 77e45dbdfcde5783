package session

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"editorswarm/internal/config"
	"editorswarm/internal/logging"
	"editorswarm/internal/report"
	"editorswarm/internal/scenario"
)

func shConfig(t *testing.T) *config.Config {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("sh-based workers require a POSIX shell")
	}

	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Target = "/bin/sh"
	cfg.BasePort = 27777
	cfg.ReadyMarkers = []string{"READY"}
	cfg.ReadyTimeout = 3 * time.Second
	cfg.StopTimeout = time.Second
	cfg.PollInterval = 20 * time.Millisecond
	cfg.Deadline = 5 * time.Second
	cfg.ResultsDir = filepath.Join(dir, "results")
	cfg.FlakeHistoryPath = filepath.Join(dir, "results", "flake_history.json")
	cfg.ScratchRoot = filepath.Join(dir, "scratch")
	cfg.MetricsAddr = "" // no listener in tests
	cfg.SkipPreflight = true
	return cfg
}

func shScenario(name, script string, workers int) scenario.Scenario {
	return scenario.Scenario{
		Name:      name,
		Workers:   workers,
		ExtraArgs: []string{"-c", script},
	}
}

// =============================================================================
// Tests: Wiring
// =============================================================================

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig() // no target
	if _, err := New(cfg, "test", logging.Discard()); err == nil {
		t.Fatal("New() accepted a config without a target")
	}
}

func TestNew_LaunchMode(t *testing.T) {
	s, err := New(shConfig(t), "test", logging.Discard())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if s.pool != nil || s.launcher == nil {
		t.Error("launch-mode session built a pool")
	}
}

func TestNew_PoolMode(t *testing.T) {
	cfg := shConfig(t)
	cfg.UsePool = true
	cfg.PoolSize = 2

	s, err := New(cfg, "test", logging.Discard())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if s.pool == nil || s.launcher != nil {
		t.Error("pool-mode session built a launcher")
	}
}

// =============================================================================
// Tests: End-to-End (launch mode, sh workers)
// =============================================================================

func TestSession_RunSuite(t *testing.T) {
	cfg := shConfig(t)
	s, err := New(cfg, "test", logging.Discard())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	suite := &scenario.Suite{
		Name: "smoke",
		Scenarios: []scenario.Scenario{
			shScenario("boots_clean", "echo READY; exit 0", 1),
			shScenario("exits_nonzero", "echo READY; exit 3", 1),
			shScenario("pair", "echo READY; exit 0", 2),
		},
	}

	if err := s.RunSuite(ctx, suite); err != nil {
		t.Fatalf("RunSuite() error: %v", err)
	}

	sum := s.Summary()
	if sum.Total != 3 || sum.Passed != 2 || sum.Failed != 1 {
		t.Errorf("Summary() = %+v", sum)
	}
	if s.AllPassed() {
		t.Error("AllPassed() = true with a failing scenario")
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	// Close writes the artifacts.
	data, err := os.ReadFile(filepath.Join(cfg.ResultsDir, report.JSONFileName))
	if err != nil {
		t.Fatalf("results.json not written: %v", err)
	}
	var doc struct {
		Summary report.Summary `json:"summary"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	if doc.Summary.Total != 3 || doc.Summary.Failed != 1 {
		t.Errorf("artifact summary = %+v", doc.Summary)
	}

	if _, err := os.Stat(cfg.FlakeHistoryPath); err != nil {
		t.Errorf("flake history not written: %v", err)
	}
}

func TestSession_ConfigErrorAbortsSuite(t *testing.T) {
	s, err := New(shConfig(t), "test", logging.Discard())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx := context.Background()
	suite := &scenario.Suite{
		Name: "broken",
		Scenarios: []scenario.Scenario{
			{Name: "no_workers", Workers: 0},
		},
	}
	if err := s.RunSuite(ctx, suite); err == nil {
		t.Fatal("RunSuite() swallowed a configuration error")
	}
	s.Close()
}

// answeringWorker is an editor stand-in for pool mode: it reports ready,
// then answers every dispatched command file with a passing result file.
const answeringWorker = `#!/bin/sh
echo READY
while :; do
  if [ -f "$EDITOR_SCRATCH_DIR/command.json" ] && [ ! -f "$EDITOR_SCRATCH_DIR/result.json" ]; then
    printf '{"success":true}' > "$EDITOR_SCRATCH_DIR/.result.tmp"
    mv "$EDITOR_SCRATCH_DIR/.result.tmp" "$EDITOR_SCRATCH_DIR/result.json"
  fi
  sleep 0.05
done
`

func TestSession_PoolMode(t *testing.T) {
	cfg := shConfig(t)
	cfg.UsePool = true
	cfg.PoolSize = 2
	cfg.AcquireTimeout = 2 * time.Second

	target := filepath.Join(t.TempDir(), "editor.sh")
	if err := os.WriteFile(target, []byte(answeringWorker), 0o755); err != nil {
		t.Fatal(err)
	}
	cfg.Target = target

	s, err := New(cfg, "test", logging.Discard())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if ps := s.PoolStats(); ps.Idle != 2 {
		t.Fatalf("pool stats after start = %+v, want 2 idle", ps)
	}

	suite := &scenario.Suite{
		Name: "pooled",
		Scenarios: []scenario.Scenario{
			{Name: "first", Workers: 1},
			{Name: "second", Workers: 2},
		},
	}

	if err := s.RunSuite(ctx, suite); err != nil {
		t.Fatalf("RunSuite() error: %v", err)
	}

	sum := s.Summary()
	if sum.Total != 2 || sum.Passed != 2 {
		t.Errorf("Summary() = %+v, want 2 passed", sum)
	}
	// All leases returned.
	if ps := s.PoolStats(); ps.Idle != 2 || ps.Busy != 0 {
		t.Errorf("pool stats after suite = %+v", ps)
	}
}

func TestSession_PoolStats_LaunchMode(t *testing.T) {
	s, err := New(shConfig(t), "test", logging.Discard())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if ps := s.PoolStats(); ps.Size != 0 {
		t.Errorf("PoolStats() = %+v in launch mode", ps)
	}
	if hm := s.HostMetrics(); hm != nil {
		t.Errorf("HostMetrics() = %+v with scraping disabled", hm)
	}
}
