// Package metrics provides Prometheus metrics for the editor swarm: scenario
// outcomes, worker fleet health, pool occupancy, and log pipeline health.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector owns every swarm metric. All metrics live on a registry injected
// at construction, so parallel sessions and tests never collide.
type Collector struct {
	registry *prometheus.Registry

	perWorkerEnabled bool
	startTime        time.Time

	// --- Panel 1: Session Overview ---
	swarmInfo      *prometheus.GaugeVec
	poolSize       prometheus.Gauge
	elapsedSeconds prometheus.Gauge

	// --- Panel 2: Scenario Outcomes ---
	scenariosTotal          *prometheus.CounterVec
	scenarioRetriesTotal    prometheus.Counter
	scenarioDurationSeconds prometheus.Histogram

	// --- Panel 3: Worker Fleet ---
	workerStartsTotal prometheus.Counter
	workerExitsTotal  *prometheus.CounterVec
	workersByState    *prometheus.GaugeVec
	workerRSSBytes    prometheus.Gauge
	workerCPUSeconds  prometheus.Gauge

	// --- Panel 4: Log Pipeline ---
	logLinesReadTotal    prometheus.Counter
	logLinesDroppedTotal prometheus.Counter
	logDropRate          prometheus.Gauge

	// --- Per-worker (optional, high cardinality) ---
	perWorkerRSS *prometheus.GaugeVec

	mu               sync.Mutex
	prevLinesRead    uint64
	prevLinesDropped uint64
}

// CollectorConfig holds configuration for the collector.
type CollectorConfig struct {
	Version   string
	Target    string
	PoolSize  int
	PerWorker bool
}

// NewCollector creates a collector with its own registry.
func NewCollector(cfg CollectorConfig) *Collector {
	return NewCollectorWithRegistry(cfg, prometheus.NewRegistry())
}

// NewCollectorWithRegistry creates a collector on the given registry.
func NewCollectorWithRegistry(cfg CollectorConfig, registry *prometheus.Registry) *Collector {
	c := &Collector{
		registry:         registry,
		perWorkerEnabled: cfg.PerWorker,
		startTime:        time.Now(),

		swarmInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "editor_swarm_info",
				Help: "Information about the session (value always 1)",
			},
			[]string{"version", "target"},
		),
		poolSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "editor_swarm_pool_size",
				Help: "Configured worker pool size (0 = launch mode)",
			},
		),
		elapsedSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "editor_swarm_elapsed_seconds",
				Help: "Seconds since the session started",
			},
		),

		scenariosTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "editor_swarm_scenarios_total",
				Help: "Finished scenarios by result",
			},
			[]string{"result"}, // "passed" | "failed" | "timed_out"
		),
		scenarioRetriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "editor_swarm_scenario_retries_total",
				Help: "Total scenario rerun attempts",
			},
		),
		scenarioDurationSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "editor_swarm_scenario_duration_seconds",
				Help:    "Scenario wall-clock duration distribution",
				Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200, 1800},
			},
		),

		workerStartsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "editor_swarm_worker_starts_total",
				Help: "Total worker process starts",
			},
		),
		workerExitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "editor_swarm_worker_exits_total",
				Help: "Worker exits by exit code category",
			},
			[]string{"category"}, // "success" | "error" | "signal"
		),
		workersByState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "editor_swarm_pool_workers",
				Help: "Pool workers by state",
			},
			[]string{"state"}, // "idle" | "busy" | "starting" | "failed"
		),
		workerRSSBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "editor_swarm_worker_rss_bytes",
				Help: "Total resident memory across live workers",
			},
		),
		workerCPUSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "editor_swarm_worker_cpu_seconds",
				Help: "Total CPU time consumed across live workers",
			},
		),

		logLinesReadTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "editor_swarm_log_lines_read_total",
				Help: "Worker log lines read across the fleet",
			},
		),
		logLinesDroppedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "editor_swarm_log_lines_dropped_total",
				Help: "Worker log lines dropped (sink backpressure)",
			},
		),
		logDropRate: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "editor_swarm_log_drop_rate",
				Help: "Overall log line drop rate (0.0-1.0)",
			},
		),
	}

	registry.MustRegister(
		c.swarmInfo,
		c.poolSize,
		c.elapsedSeconds,

		c.scenariosTotal,
		c.scenarioRetriesTotal,
		c.scenarioDurationSeconds,

		c.workerStartsTotal,
		c.workerExitsTotal,
		c.workersByState,
		c.workerRSSBytes,
		c.workerCPUSeconds,

		c.logLinesReadTotal,
		c.logLinesDroppedTotal,
		c.logDropRate,
	)

	if cfg.PerWorker {
		c.perWorkerRSS = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "editor_swarm_worker_rss_bytes_per_worker",
				Help: "Per-worker resident memory (high cardinality, optional)",
			},
			[]string{"instance_id"},
		)
		registry.MustRegister(c.perWorkerRSS)
	}

	c.swarmInfo.WithLabelValues(cfg.Version, cfg.Target).Set(1)
	c.poolSize.Set(float64(cfg.PoolSize))

	return c
}

// Registry returns the registry backing this collector, for the HTTP server.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ScenarioFinished records one completed scenario run.
func (c *Collector) ScenarioFinished(result string, duration time.Duration, attempts int) {
	c.scenariosTotal.WithLabelValues(result).Inc()
	c.scenarioDurationSeconds.Observe(duration.Seconds())
	if attempts > 1 {
		c.scenarioRetriesTotal.Add(float64(attempts - 1))
	}
	c.elapsedSeconds.Set(time.Since(c.startTime).Seconds())
}

// WorkerStarted records a worker process start.
func (c *Collector) WorkerStarted() {
	c.workerStartsTotal.Inc()
}

// WorkerExited records a worker exit by exit code category.
func (c *Collector) WorkerExited(exitCode int) {
	category := "error"
	switch {
	case exitCode == 0:
		category = "success"
	case exitCode > 128:
		category = "signal"
	}
	c.workerExitsTotal.WithLabelValues(category).Inc()
}

// PoolSnapshot updates the pool state gauges.
func (c *Collector) PoolSnapshot(idle, busy, starting, failed int) {
	c.workersByState.WithLabelValues("idle").Set(float64(idle))
	c.workersByState.WithLabelValues("busy").Set(float64(busy))
	c.workersByState.WithLabelValues("starting").Set(float64(starting))
	c.workersByState.WithLabelValues("failed").Set(float64(failed))
}

// FleetUsage updates the aggregate resource gauges from sampled workers.
func (c *Collector) FleetUsage(totalRSS int, totalCPUSeconds float64) {
	c.workerRSSBytes.Set(float64(totalRSS))
	c.workerCPUSeconds.Set(totalCPUSeconds)
}

// WorkerUsage updates the per-worker RSS gauge. No-op unless enabled.
func (c *Collector) WorkerUsage(instanceID, rssBytes int) {
	if !c.perWorkerEnabled {
		return
	}
	c.perWorkerRSS.WithLabelValues(strconv.Itoa(instanceID)).Set(float64(rssBytes))
}

// RemoveWorker drops per-worker series for a retired worker.
func (c *Collector) RemoveWorker(instanceID int) {
	if !c.perWorkerEnabled {
		return
	}
	c.perWorkerRSS.DeleteLabelValues(strconv.Itoa(instanceID))
}

// PipelineTotals folds fleet-wide log pipeline counters into the metrics.
// Callers pass cumulative totals; deltas are computed here.
func (c *Collector) PipelineTotals(linesRead, linesDropped uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if d := linesRead - c.prevLinesRead; linesRead >= c.prevLinesRead && d > 0 {
		c.logLinesReadTotal.Add(float64(d))
	}
	if d := linesDropped - c.prevLinesDropped; linesDropped >= c.prevLinesDropped && d > 0 {
		c.logLinesDroppedTotal.Add(float64(d))
	}
	c.prevLinesRead = linesRead
	c.prevLinesDropped = linesDropped

	rate := float64(0)
	if linesRead > 0 {
		rate = float64(linesDropped) / float64(linesRead)
	}
	c.logDropRate.Set(rate)
}
