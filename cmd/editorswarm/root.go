package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"editorswarm/internal/config"
)

// version is stamped at build time via -ldflags.
var version = "dev"

var (
	flagConfig string

	flagTarget      string
	flagProject     string
	flagBasePort    int
	flagPool        bool
	flagPoolSize    int
	flagResultsDir  string
	flagScratchRoot string

	flagReadyTimeout time.Duration
	flagDeadline     time.Duration
	flagMaxRetries   int

	flagMetricsAddr   string
	flagHostMetrics   string
	flagLogFormat     string
	flagVerbose       bool
	flagTUI           bool
	flagSkipPreflight bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "editorswarm",
		Short:         "Swarm test orchestrator for external editor processes",
		SilenceUsage:  true,
		SilenceErrors: true, // main prints errors and picks the exit code
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "JSON config file (flags override)")
	pf.StringVar(&flagTarget, "target", "", "path to the editor binary")
	pf.StringVar(&flagProject, "project", "", "project file passed to every worker")
	pf.IntVar(&flagBasePort, "base-port", 0, "first port of the worker port block")
	pf.BoolVar(&flagPool, "pool", false, "use a persistent pre-warmed worker pool")
	pf.IntVar(&flagPoolSize, "pool-size", 0, "worker pool size")
	pf.StringVar(&flagResultsDir, "results-dir", "", "artifact output directory")
	pf.StringVar(&flagScratchRoot, "scratch-root", "", "root for per-worker scratch dirs")
	pf.DurationVar(&flagReadyTimeout, "ready-timeout", 0, "per-worker readiness timeout")
	pf.DurationVar(&flagDeadline, "deadline", 0, "default scenario deadline")
	pf.IntVar(&flagMaxRetries, "max-retries", -1, "retry budget per scenario")
	pf.StringVar(&flagMetricsAddr, "metrics-addr", "", "prometheus listen address (empty disables)")
	pf.StringVar(&flagHostMetrics, "host-metrics-url", "", "node_exporter URL to scrape")
	pf.StringVar(&flagLogFormat, "log-format", "", "log format: json or text")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")
	pf.BoolVar(&flagTUI, "tui", false, "live terminal dashboard")
	pf.BoolVar(&flagSkipPreflight, "skip-preflight", false, "skip startup environment checks")

	root.AddCommand(newRunCmd())
	root.AddCommand(newReportCmd())
	root.AddCommand(newFlakyCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// buildConfig layers defaults, the optional config file, and flags.
func buildConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()

	if flagConfig != "" {
		data, err := os.ReadFile(flagConfig)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", flagConfig, err)
		}
	}

	if flagTarget != "" {
		cfg.Target = flagTarget
	}
	if flagProject != "" {
		cfg.Project = flagProject
	}
	if flagBasePort != 0 {
		cfg.BasePort = flagBasePort
	}
	if flagPool {
		cfg.UsePool = true
	}
	if flagPoolSize != 0 {
		cfg.PoolSize = flagPoolSize
	}
	if flagResultsDir != "" {
		cfg.ResultsDir = flagResultsDir
	}
	if flagScratchRoot != "" {
		cfg.ScratchRoot = flagScratchRoot
	}
	if flagReadyTimeout != 0 {
		cfg.ReadyTimeout = flagReadyTimeout
	}
	if flagDeadline != 0 {
		cfg.Deadline = flagDeadline
	}
	if flagMaxRetries >= 0 {
		cfg.MaxRetries = flagMaxRetries
	}
	if flagMetricsAddr != "" {
		cfg.MetricsAddr = flagMetricsAddr
	}
	if flagHostMetrics != "" {
		cfg.HostMetricsURL = flagHostMetrics
	}
	if flagLogFormat != "" {
		cfg.LogFormat = flagLogFormat
	}
	if flagVerbose {
		cfg.Verbose = true
	}
	if flagTUI {
		cfg.TUIEnabled = true
	}
	if flagSkipPreflight {
		cfg.SkipPreflight = true
	}

	return cfg, nil
}
