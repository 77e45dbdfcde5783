// Package config provides configuration management for editorswarm.
package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config holds all configuration options for a test session.
type Config struct {
	// Worker target
	Target  string `json:"target"`  // path to the editor/engine binary
	Project string `json:"project"` // project file passed as the first argument

	// Orchestration
	BasePort int  `json:"base_port"`
	PoolSize int  `json:"pool_size"` // 0 disables the pool (launch per scenario)
	UsePool  bool `json:"use_pool"`

	// Timeouts and polling
	ReadyTimeout   time.Duration `json:"ready_timeout"`
	StopTimeout    time.Duration `json:"stop_timeout"`
	AcquireTimeout time.Duration `json:"acquire_timeout"`
	Deadline       time.Duration `json:"deadline"` // default scenario deadline
	PollInterval   time.Duration `json:"poll_interval"`

	// Readiness detection
	ReadyMarkers []string `json:"ready_markers"`

	// Worker output capture
	LogBufferLines int `json:"log_buffer_lines"`

	// Retry policy
	MaxRetries int           `json:"max_retries"`
	RetryDelay time.Duration `json:"retry_delay"`

	// Artifacts
	ResultsDir       string `json:"results_dir"`
	FlakeHistoryPath string `json:"flake_history_path"`
	ScratchRoot      string `json:"scratch_root"`

	// Pool policy: retire workers whose inter-test cleanup failed instead of
	// requeueing them in a degraded-idle state.
	RetireOnCleanupFailure bool `json:"retire_on_cleanup_failure"`

	// Observability
	MetricsAddr        string        `json:"metrics_addr"`
	HostMetricsURL     string        `json:"host_metrics_url"` // node_exporter, optional
	HostScrapeInterval time.Duration `json:"host_scrape_interval"`
	Verbose            bool          `json:"verbose"`
	LogFormat          string        `json:"log_format"` // json, text
	TUIEnabled         bool          `json:"tui"`

	// Diagnostic modes
	SkipPreflight bool `json:"skip_preflight"`
}

// DefaultReadyMarkers are log substrings that indicate an editor instance
// finished initializing and can accept its startup script.
var DefaultReadyMarkers = []string{
	"Engine is initialized",
	"Bringing World",
	"LogLoad: Took",
}

// DefaultConfig returns the baseline configuration. Callers override fields
// from a config file or flags before Validate.
func DefaultConfig() *Config {
	return &Config{
		BasePort: 7777,
		PoolSize: 4,
		UsePool:  false,

		ReadyTimeout:   60 * time.Second,
		StopTimeout:    10 * time.Second,
		AcquireTimeout: 60 * time.Second,
		Deadline:       5 * time.Minute,
		PollInterval:   500 * time.Millisecond,

		ReadyMarkers:   DefaultReadyMarkers,
		LogBufferLines: 2000,

		MaxRetries: 0,
		RetryDelay: time.Second,

		ResultsDir:       "test_results",
		FlakeHistoryPath: filepath.Join("test_results", "flake_history.json"),
		ScratchRoot:      filepath.Join(os.TempDir(), "editorswarm"),

		MetricsAddr:        "0.0.0.0:17092",
		HostScrapeInterval: 5 * time.Second,
		LogFormat:          "json",
	}
}
