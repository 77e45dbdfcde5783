// Package session assembles a complete test session: resources, fleet,
// runner, flake history, statistics, reporting, and observability. All
// components are constructor-injected; nothing here is a process-wide
// singleton, so parallel sessions in one binary never collide.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"editorswarm/internal/config"
	"editorswarm/internal/flake"
	"editorswarm/internal/metrics"
	"editorswarm/internal/pool"
	"editorswarm/internal/preflight"
	"editorswarm/internal/report"
	"editorswarm/internal/resource"
	"editorswarm/internal/runner"
	"editorswarm/internal/scenario"
	"editorswarm/internal/stats"
	"editorswarm/internal/worker"
)

// Session owns every component of one test run.
type Session struct {
	cfg    *config.Config
	logger *slog.Logger

	resources *resource.Manager
	launcher  *worker.Launcher // launch mode
	pool      *pool.Pool       // pool mode
	fleet     runner.Fleet
	runner    *runner.Runner

	tracker    *flake.Tracker
	aggregator *report.Aggregator
	stats      *stats.SessionStats

	collector     *metrics.Collector
	metricsServer *metrics.Server
	hostScraper   *metrics.HostScraper
	scrapeCancel  context.CancelFunc

	// OnResult, when set, observes each finished scenario (TUI).
	OnResult func(result runner.TestResult)
}

// New wires a session from configuration. The fleet flavor follows
// cfg.UsePool: a persistent pre-warmed pool, or per-scenario launches.
func New(cfg *config.Config, version string, logger *slog.Logger) (*Session, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	s := &Session{
		cfg:        cfg,
		logger:     logger,
		resources:  resource.NewManager(cfg.BasePort, cfg.ScratchRoot, logger),
		tracker:    flake.NewTracker(cfg.FlakeHistoryPath, logger),
		aggregator: report.NewAggregator(cfg.ResultsDir, logger),
		stats:      stats.NewSessionStats(),
		collector: metrics.NewCollector(metrics.CollectorConfig{
			Version:  version,
			Target:   cfg.Target,
			PoolSize: cfg.PoolSize,
		}),
	}

	if cfg.MetricsAddr != "" {
		s.metricsServer = metrics.NewServer(cfg.MetricsAddr, s.collector, logger)
	}
	s.hostScraper = metrics.NewHostScraper(cfg.HostMetricsURL, cfg.HostScrapeInterval, logger)

	if cfg.UsePool {
		s.pool = pool.New(pool.Config{
			Size:                   cfg.PoolSize,
			Target:                 cfg.Target,
			Project:                cfg.Project,
			ReadyMarkers:           cfg.ReadyMarkers,
			ReadyTimeout:           cfg.ReadyTimeout,
			StopTimeout:            cfg.StopTimeout,
			AcquireTimeout:         cfg.AcquireTimeout,
			PollInterval:           cfg.PollInterval,
			LogBufferLines:         cfg.LogBufferLines,
			StartRetries:           2,
			RetireOnCleanupFailure: cfg.RetireOnCleanupFailure,
		}, s.resources, logger, func(wcfg worker.Config) pool.Process {
			s.collector.WorkerStarted()
			return worker.New(wcfg, logger)
		})
		s.fleet = runner.NewPoolFleet(s.pool, logger)
	} else {
		s.launcher = worker.NewLauncher(worker.LauncherConfig{
			Target:         cfg.Target,
			Project:        cfg.Project,
			ReadyMarkers:   cfg.ReadyMarkers,
			ReadyTimeout:   cfg.ReadyTimeout,
			StopTimeout:    cfg.StopTimeout,
			PollInterval:   cfg.PollInterval,
			LogBufferLines: cfg.LogBufferLines,
		}, s.resources, logger)
		s.fleet = runner.NewLaunchFleet(s.launcher, cfg.StopTimeout, logger)
	}

	s.runner = runner.New(s.fleet, runner.Config{
		PollInterval:    cfg.PollInterval,
		DefaultDeadline: cfg.Deadline,
	}, logger)

	return s, nil
}

// Start brings up the session: preflight, observability, and (in pool mode)
// the warm worker pool.
func (s *Session) Start(ctx context.Context) error {
	if !s.cfg.SkipPreflight {
		result := preflight.RunAll(preflight.Params{
			Target:      s.cfg.Target,
			Project:     s.cfg.Project,
			Workers:     s.maxWorkers(),
			BasePort:    s.cfg.BasePort,
			ScratchRoot: s.cfg.ScratchRoot,
		})
		if !result.Passed {
			return fmt.Errorf("preflight checks failed:\n%s", result.Format())
		}
		s.logger.Info("preflight_passed", "checks", len(result.Checks))
	}

	if s.metricsServer != nil {
		if err := s.metricsServer.Start(); err != nil {
			return fmt.Errorf("starting metrics server: %w", err)
		}
	}
	if s.hostScraper != nil {
		scrapeCtx, cancel := context.WithCancel(context.Background())
		s.scrapeCancel = cancel
		go s.hostScraper.Run(scrapeCtx)
	}

	if s.pool != nil {
		if err := s.pool.Initialize(ctx); err != nil {
			return fmt.Errorf("initializing worker pool: %w", err)
		}
		s.recordPoolStats()
	}

	s.logger.Info("session_started",
		"mode", s.mode(),
		"target", s.cfg.Target,
	)
	return nil
}

// RunSuite executes every runnable scenario in the suite under the session
// retry policy. Configuration errors abort the suite; runtime failures are
// recorded and the suite continues.
func (s *Session) RunSuite(ctx context.Context, suite *scenario.Suite) error {
	scenarios := suite.Runnable()
	s.logger.Info("suite_started",
		"suite", suite.Name,
		"scenarios", len(scenarios),
		"skipped", len(suite.Scenarios)-len(scenarios),
	)

	for i := range scenarios {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.RunScenario(ctx, &scenarios[i]); err != nil {
			return fmt.Errorf("scenario %q: %w", scenarios[i].Name, err)
		}
	}
	return nil
}

// RunScenario executes one scenario and folds the result into the session.
// The error is non-nil only for configuration mistakes.
func (s *Session) RunScenario(ctx context.Context, sc *scenario.Scenario) error {
	result, err := s.runner.RunWithRetry(ctx, sc, s.retryPolicy(), s.tracker)
	if err != nil {
		return err
	}

	// Fresh workers (launch mode) or returned leases (pool mode) for the
	// next scenario.
	s.fleet.Reclaim()

	s.aggregator.Add(result)
	s.stats.Record(result)
	s.recordMetrics(result)
	if s.OnResult != nil {
		s.OnResult(result)
	}
	return nil
}

func (s *Session) retryPolicy() flake.RetryConfig {
	return flake.RetryConfig{
		MaxRetries: s.cfg.MaxRetries,
		Delay:      s.cfg.RetryDelay,
	}
}

func (s *Session) recordMetrics(result runner.TestResult) {
	outcome := "failed"
	switch {
	case result.Success:
		outcome = "passed"
	case result.Phase == runner.PhaseTimedOut.String():
		outcome = "timed_out"
	}
	s.collector.ScenarioFinished(outcome,
		time.Duration(result.DurationSeconds*float64(time.Second)),
		result.Attempts,
	)
	s.recordPoolStats()

	if s.launcher != nil {
		var read, dropped int64
		for _, w := range s.launcher.Workers() {
			r, d, _ := w.PipelineStats()
			read += r
			dropped += d
		}
		if read > 0 {
			s.collector.PipelineTotals(uint64(read), uint64(dropped))
		}
	}
}

func (s *Session) recordPoolStats() {
	if s.pool == nil {
		return
	}
	ps := s.pool.Stats()
	s.collector.PoolSnapshot(ps.Idle, ps.Busy, ps.Starting, ps.Failed)
}

// Summary returns the session statistics snapshot.
func (s *Session) Summary() stats.Summary {
	return s.stats.Snapshot()
}

// PoolStats returns pool occupancy, or zero stats in launch mode.
func (s *Session) PoolStats() pool.Stats {
	if s.pool == nil {
		return pool.Stats{}
	}
	return s.pool.Stats()
}

// HostMetrics returns the latest host snapshot, or nil when scraping is off.
func (s *Session) HostMetrics() *metrics.HostMetrics {
	return s.hostScraper.Metrics()
}

// Tracker exposes the flake history for reporting commands.
func (s *Session) Tracker() *flake.Tracker {
	return s.tracker
}

// AllPassed reports whether every scenario so far succeeded.
func (s *Session) AllPassed() bool {
	return s.aggregator.AllPassed()
}

// Close tears the session down: workers, observability, and artifacts. It
// always attempts every step and returns the first failure.
func (s *Session) Close() error {
	var errs []error

	if s.pool != nil {
		s.pool.Shutdown()
	}
	if s.launcher != nil {
		s.launcher.ShutdownAll(s.cfg.StopTimeout)
	}

	if s.scrapeCancel != nil {
		s.scrapeCancel()
	}
	if s.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.metricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server shutdown: %w", err))
		}
		cancel()
	}

	if err := s.tracker.Save(); err != nil {
		errs = append(errs, fmt.Errorf("saving flake history: %w", err))
	}
	if err := s.aggregator.WriteAll(); err != nil {
		errs = append(errs, fmt.Errorf("writing reports: %w", err))
	}

	s.logger.Info("session_closed",
		"scenarios", s.stats.Snapshot().Total,
	)
	return errors.Join(errs...)
}

func (s *Session) mode() string {
	if s.cfg.UsePool {
		return "pool"
	}
	return "launch"
}

// maxWorkers is the largest concurrent worker count preflight must plan for.
func (s *Session) maxWorkers() int {
	if s.cfg.UsePool {
		return s.cfg.PoolSize
	}
	// Launch mode sizes per scenario; 8 is a generous planning bound.
	return 8
}
