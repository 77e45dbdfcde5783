package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"editorswarm/internal/config"
	"editorswarm/internal/logging"
	"editorswarm/internal/runner"
	"editorswarm/internal/scenario"
	"editorswarm/internal/session"
	"editorswarm/internal/tui"
)

// errSuiteFailed reports a clean run with failing scenarios. main maps it to
// exit code 1 without an error banner, so CI gates on the exit code while
// deferred teardown still runs.
var errSuiteFailed = errors.New("one or more scenarios failed")

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <suite.yaml>",
		Short: "Run a scenario suite",
		Args:  cobra.ExactArgs(1),
		RunE:  runSuite,
	}
}

func runSuite(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig()
	if err != nil {
		return err
	}

	logger := sessionLogger(cfg, os.Stderr)

	suite, err := scenario.LoadSuite(args[0])
	if err != nil {
		return fmt.Errorf("loading suite: %w", err)
	}

	sess, err := session.New(cfg, version, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sess.Start(ctx); err != nil {
		sess.Close()
		return err
	}

	var suiteErr error
	if cfg.TUIEnabled {
		suiteErr = runWithDashboard(ctx, sess, suite, cfg.Target, cfg.MetricsAddr)
	} else {
		suiteErr = sess.RunSuite(ctx, suite)
	}

	summary := sess.Summary()
	closeErr := sess.Close()

	fmt.Fprintln(os.Stdout)
	fmt.Fprint(os.Stdout, summary.Format())

	if suiteErr != nil {
		return suiteErr
	}
	if closeErr != nil {
		return closeErr
	}
	if !sess.AllPassed() {
		return errSuiteFailed
	}
	return nil
}

// sessionLogger builds the run logger. The dashboard owns the terminal in
// TUI mode, so logs are discarded instead of tearing the alt screen.
func sessionLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	if cfg.TUIEnabled {
		return logging.Discard()
	}
	return logging.NewWithWriter(w, cfg.LogFormat, "info", cfg.Verbose)
}

// runWithDashboard runs the suite behind a live bubbletea dashboard.
func runWithDashboard(ctx context.Context, sess *session.Session, suite *scenario.Suite, target, metricsAddr string) error {
	model := tui.New(tui.Config{
		Target:      target,
		SuiteName:   suite.Name,
		Scenarios:   len(suite.Runnable()),
		MetricsAddr: metricsAddr,
		Source:      sess,
	})
	program := tea.NewProgram(model, tea.WithAltScreen())

	sess.OnResult = func(result runner.TestResult) {
		tui.SendResult(program, result)
	}

	done := make(chan error, 1)
	go func() {
		done <- sess.RunSuite(ctx, suite)
		tui.SendQuit(program)
	}()

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}
	return <-done
}
