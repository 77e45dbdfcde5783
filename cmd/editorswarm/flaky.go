package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"editorswarm/internal/flake"
	"editorswarm/internal/logging"
)

var flagMinScore float64

func newFlakyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flaky",
		Short: "Report flaky tests from the recorded run history",
		RunE:  showFlaky,
	}
	cmd.Flags().Float64Var(&flagMinScore, "min-score", 0.1, "minimum flakiness score to report")
	return cmd
}

func showFlaky(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfg.FlakeHistoryPath); err != nil {
		return fmt.Errorf("no flake history at %s (run a suite first)", cfg.FlakeHistoryPath)
	}

	logger := logging.NewWithWriter(os.Stderr, cfg.LogFormat, "warn", cfg.Verbose)
	tracker := flake.NewTracker(cfg.FlakeHistoryPath, logger)

	fmt.Print(tracker.MarkdownReport(flagMinScore))
	return nil
}
