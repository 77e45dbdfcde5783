package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

// =============================================================================
// Tests: parseLevel
// =============================================================================

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// =============================================================================
// Tests: NewWithWriter
// =============================================================================

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "json", "info", false)

	logger.Info("worker_started", "instance_id", 3, "port", 7780)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v\noutput: %s", err, buf.String())
	}
	if entry["msg"] != "worker_started" {
		t.Errorf("msg = %v, want worker_started", entry["msg"])
	}
	if entry["instance_id"] != float64(3) {
		t.Errorf("instance_id = %v, want 3", entry["instance_id"])
	}
}

func TestNewWithWriter_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "text", "info", false)

	logger.Info("pool_initialized", "size", 4)

	out := buf.String()
	if !strings.Contains(out, "pool_initialized") {
		t.Errorf("text output missing message: %s", out)
	}
	if !strings.Contains(out, "size=4") {
		t.Errorf("text output missing attribute: %s", out)
	}
}

func TestNewWithWriter_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "json", "warn", false)

	logger.Info("should_be_dropped")
	logger.Warn("should_appear")

	out := buf.String()
	if strings.Contains(out, "should_be_dropped") {
		t.Error("info message logged despite warn level")
	}
	if !strings.Contains(out, "should_appear") {
		t.Error("warn message missing")
	}
}

func TestNewWithWriter_VerboseOverridesLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "json", "error", true)

	logger.Debug("debug_visible")

	if !strings.Contains(buf.String(), "debug_visible") {
		t.Error("verbose flag should force debug level")
	}
}

// =============================================================================
// Tests: Discard
// =============================================================================

func TestDiscard(t *testing.T) {
	logger := Discard()
	// Must not panic and must swallow output.
	logger.Info("ignored")
	logger.Error("also_ignored")
}
