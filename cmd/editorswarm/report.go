package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"editorswarm/internal/logging"
	"editorswarm/internal/report"
	"editorswarm/internal/runner"
	"editorswarm/internal/stats"
)

var flagRegenerate bool

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize results from a previous run",
		RunE:  showReport,
	}
	cmd.Flags().BoolVar(&flagRegenerate, "regenerate", false, "rewrite the JUnit and HTML artifacts")
	return cmd
}

func showReport(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig()
	if err != nil {
		return err
	}

	path := filepath.Join(cfg.ResultsDir, report.JSONFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("no results at %s (run a suite first): %w", path, err)
	}

	var doc struct {
		GeneratedAt string              `json:"generated_at"`
		Results     []runner.TestResult `json:"results"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	session := stats.NewSessionStats()
	for _, r := range doc.Results {
		session.Record(r)
	}

	fmt.Printf("Results from %s (generated %s)\n\n", path, doc.GeneratedAt)
	fmt.Print(session.Snapshot().Format())

	if flagRegenerate {
		logger := logging.NewWithWriter(os.Stderr, cfg.LogFormat, "info", cfg.Verbose)
		agg := report.NewAggregator(cfg.ResultsDir, logger)
		for _, r := range doc.Results {
			agg.Add(r)
		}
		if _, err := agg.WriteJUnit(); err != nil {
			return err
		}
		if _, err := agg.WriteHTML(); err != nil {
			return err
		}
		fmt.Printf("\nRegenerated %s and %s in %s\n",
			report.JUnitFileName, report.HTMLFileName, cfg.ResultsDir)
	}
	return nil
}
