package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"editorswarm/internal/config"
)

// =============================================================================
// Tests: Session Logger
// =============================================================================

func TestSessionLogger_WritesToSink(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LogFormat = "text"

	var buf bytes.Buffer
	logger := sessionLogger(cfg, &buf)
	logger.Info("suite_started", "suite", "smoke")

	if !strings.Contains(buf.String(), "suite_started") {
		t.Errorf("log output missing event: %q", buf.String())
	}
}

func TestSessionLogger_TUIDiscardsLogs(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.TUIEnabled = true

	var buf bytes.Buffer
	logger := sessionLogger(cfg, &buf)
	logger.Info("suite_started", "suite", "smoke")
	logger.Error("worker_exited", "code", 1)

	// The dashboard owns the terminal; nothing may reach the sink.
	if buf.Len() != 0 {
		t.Errorf("TUI mode wrote %d bytes to the log sink: %q", buf.Len(), buf.String())
	}
}

// =============================================================================
// Tests: Run Command Exit Path
// =============================================================================

func TestRunCommand_FailingSuiteReturnsSentinel(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}

	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Target = "/bin/sh"
	cfg.BasePort = 28777
	cfg.ReadyMarkers = []string{"READY"}
	cfg.ResultsDir = filepath.Join(dir, "results")
	cfg.FlakeHistoryPath = filepath.Join(dir, "results", "flake_history.json")
	cfg.ScratchRoot = filepath.Join(dir, "scratch")
	cfg.MetricsAddr = ""
	cfg.LogFormat = "text"
	cfg.SkipPreflight = true

	cfgData, err := json.Marshal(cfg)
	if err != nil {
		t.Fatal(err)
	}
	cfgPath := filepath.Join(dir, "config.json")
	if err := os.WriteFile(cfgPath, cfgData, 0o644); err != nil {
		t.Fatal(err)
	}

	suitePath := filepath.Join(dir, "suite.yaml")
	suite := `name: gate
scenarios:
  - name: exits_nonzero
    workers: 1
    extra_args: ["-c", "echo READY; exit 3"]
`
	if err := os.WriteFile(suitePath, []byte(suite), 0o644); err != nil {
		t.Fatal(err)
	}

	root := newRootCmd()
	root.SetArgs([]string{"run", suitePath, "--config", cfgPath})

	// A failed scenario must surface as the sentinel error, not a raw
	// os.Exit, so deferred teardown runs and main picks the exit code.
	err = root.Execute()
	if !errors.Is(err, errSuiteFailed) {
		t.Fatalf("Execute() = %v, want errSuiteFailed", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "results", "results.json")); err != nil {
		t.Errorf("results.json not written: %v", err)
	}
}
