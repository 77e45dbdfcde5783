package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"editorswarm/internal/resource"
	"editorswarm/internal/worker"
)

// ErrExhausted is the sentinel matched by errors.Is when no idle worker
// became available within the acquire timeout.
var ErrExhausted = errors.New("pool exhausted")

// ExhaustedError carries pool sizing detail alongside the sentinel.
type ExhaustedError struct {
	Size      int
	Available int
	Timeout   time.Duration
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("pool exhausted: no idle worker within %v (size %d, available %d)",
		e.Timeout, e.Size, e.Available)
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrExhausted
}

// Process is the slice of the worker lifecycle the pool drives. *worker.Worker
// implements it; tests substitute fakes.
type Process interface {
	Start() bool
	WaitForReady(ctx context.Context, timeout time.Duration) bool
	Stop(timeout time.Duration) bool
	IsRunning() bool
	IsReady() bool
	Logs(lastN int) []string
	ExitCode() (code int, ok bool)
	Done() <-chan struct{}
	Usage() (worker.UsageSample, error)
}

// SpawnFunc creates a Process from a worker config. The default spawns a real
// worker.Worker.
type SpawnFunc func(cfg worker.Config) Process

// PooledWorker wraps a Process with pool bookkeeping. State transitions only
// happen while mu is held.
type PooledWorker struct {
	ID         int
	Port       int
	ScratchDir string

	mu          sync.Mutex
	state       State
	currentTest string
	proc        Process
}

// State returns the worker's current pool state.
func (pw *PooledWorker) State() State {
	pw.mu.Lock()
	defer pw.mu.Unlock()
	return pw.state
}

// CurrentTest returns the test identifier assigned while Busy, or "".
func (pw *PooledWorker) CurrentTest() string {
	pw.mu.Lock()
	defer pw.mu.Unlock()
	return pw.currentTest
}

// Process returns the underlying worker process.
func (pw *PooledWorker) Process() Process {
	return pw.proc
}

// Config holds pool settings.
type Config struct {
	Size           int
	Target         string
	Project        string
	ReadyMarkers   []string
	ReadyTimeout   time.Duration
	StopTimeout    time.Duration
	AcquireTimeout time.Duration
	PollInterval   time.Duration
	LogBufferLines int

	// StartRetries is how many times a worker slot retries its pre-launch
	// before the slot is marked Failed.
	StartRetries int
	Backoff      BackoffConfig

	// RetireOnCleanupFailure retires a worker whose inter-test cleanup
	// failed instead of requeueing it in a degraded-idle state.
	RetireOnCleanupFailure bool
}

// Pool is a long-lived, size-bounded collection of pre-started workers.
type Pool struct {
	cfg       Config
	resources *resource.Manager
	logger    *slog.Logger
	spawn     SpawnFunc

	available chan *PooledWorker

	mu          sync.Mutex
	workers     []*PooledWorker
	initialized bool
}

// New creates a pool. spawn may be nil, in which case real worker processes
// are launched.
func New(cfg Config, resources *resource.Manager, logger *slog.Logger, spawn SpawnFunc) *Pool {
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = 60 * time.Second
	}
	if cfg.Backoff == (BackoffConfig{}) {
		cfg.Backoff = DefaultBackoffConfig()
	}
	if spawn == nil {
		spawn = func(wc worker.Config) Process {
			return worker.New(wc, logger)
		}
	}
	return &Pool{
		cfg:       cfg,
		resources: resources,
		logger:    logger,
		spawn:     spawn,
		available: make(chan *PooledWorker, cfg.Size),
	}
}

// Initialize pre-launches Size workers concurrently, each with its own port
// and scratch directory, and enqueues the ready ones as Idle. Idempotent:
// calls after the first are no-ops. Slots that never start are marked Failed
// and shrink the pool's effective size; Initialize fails only when no worker
// at all came up.
func (p *Pool) Initialize(ctx context.Context) error {
	p.mu.Lock()
	if p.initialized {
		p.mu.Unlock()
		return nil
	}
	p.initialized = true
	p.mu.Unlock()

	workers := make([]*PooledWorker, p.cfg.Size)
	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Size; i++ {
		owner := fmt.Sprintf("pool-%d", i)
		pw := &PooledWorker{
			ID:    i,
			Port:  p.resources.AllocatePort(owner),
			state: StateStarting,
		}
		if dir, err := p.resources.CreateScratchDir(owner); err != nil {
			p.logger.Warn("pool_scratch_unavailable", "worker_id", i, "error", err)
		} else {
			pw.ScratchDir = dir
		}
		workers[i] = pw

		wg.Add(1)
		go func(pw *PooledWorker) {
			defer wg.Done()
			p.startSlot(ctx, pw)
		}(pw)
	}
	wg.Wait()

	p.mu.Lock()
	p.workers = workers
	p.mu.Unlock()

	stats := p.Stats()
	p.logger.Info("pool_initialized",
		"size", p.cfg.Size,
		"idle", stats.Idle,
		"failed", stats.Failed,
	)
	if stats.Idle == 0 {
		return fmt.Errorf("pool initialization: none of %d workers became ready", p.cfg.Size)
	}
	return nil
}

// startSlot starts one worker slot with retries and enqueues it when ready.
func (p *Pool) startSlot(ctx context.Context, pw *PooledWorker) {
	backoff := NewBackoff(pw.ID, time.Now().UnixNano(), p.cfg.Backoff)

	for attempt := 0; ; attempt++ {
		proc := p.spawn(worker.Config{
			InstanceID:     pw.ID,
			Role:           "pooled",
			Port:           pw.Port,
			Target:         p.cfg.Target,
			Project:        p.cfg.Project,
			ScratchDir:     pw.ScratchDir,
			ReadyMarkers:   p.cfg.ReadyMarkers,
			PollInterval:   p.cfg.PollInterval,
			StopTimeout:    p.cfg.StopTimeout,
			LogBufferLines: p.cfg.LogBufferLines,
		})

		if proc.Start() && proc.WaitForReady(ctx, p.cfg.ReadyTimeout) {
			pw.mu.Lock()
			pw.proc = proc
			pw.state = StateIdle
			pw.mu.Unlock()
			p.available <- pw
			return
		}
		proc.Stop(p.cfg.StopTimeout)

		if attempt >= p.cfg.StartRetries || ctx.Err() != nil {
			pw.mu.Lock()
			pw.proc = proc
			pw.state = StateFailed
			pw.mu.Unlock()
			p.logger.Error("pool_worker_start_failed",
				"worker_id", pw.ID,
				"attempts", attempt+1,
			)
			return
		}

		delay := backoff.Next()
		p.logger.Warn("pool_worker_start_retry",
			"worker_id", pw.ID,
			"attempt", attempt+1,
			"delay", delay.String(),
		)
		select {
		case <-ctx.Done():
		case <-time.After(delay):
		}
	}
}

// Acquire blocks until an idle worker is available or the timeout elapses,
// failing with an ExhaustedError naming pool size and current availability.
// A worker whose process died while idle is retired on the spot and the wait
// continues against the original deadline.
func (p *Pool) Acquire(ctx context.Context, testID string) (*PooledWorker, error) {
	deadline := time.NewTimer(p.cfg.AcquireTimeout)
	defer deadline.Stop()

	for {
		select {
		case pw := <-p.available:
			pw.mu.Lock()
			if !pw.proc.IsRunning() {
				// Died while idle: retire, keep waiting.
				pw.state = StateFailed
				pw.mu.Unlock()
				p.logger.Warn("pool_worker_dead_on_acquire", "worker_id", pw.ID)
				continue
			}
			pw.state = StateBusy
			pw.currentTest = testID
			pw.mu.Unlock()

			p.logger.Debug("pool_worker_acquired",
				"worker_id", pw.ID,
				"test_id", testID,
			)
			return pw, nil

		case <-ctx.Done():
			return nil, ctx.Err()

		case <-deadline.C:
			stats := p.Stats()
			return nil, &ExhaustedError{
				Size:      p.cfg.Size,
				Available: stats.Idle,
				Timeout:   p.cfg.AcquireTimeout,
			}
		}
	}
}

// Release runs inter-test isolation cleanup and returns the worker to the
// available queue. A dead process retires the worker instead. Cleanup
// failures are logged; whether they retire the worker or requeue it degraded
// is the RetireOnCleanupFailure policy.
func (p *Pool) Release(pw *PooledWorker) {
	pw.mu.Lock()
	if pw.state != StateBusy {
		pw.mu.Unlock()
		return
	}
	testID := pw.currentTest
	pw.currentTest = ""

	if !pw.proc.IsRunning() {
		pw.state = StateFailed
		pw.mu.Unlock()
		p.logger.Warn("pool_worker_dead_on_release",
			"worker_id", pw.ID,
			"test_id", testID,
		)
		return
	}

	cleanupErr := p.resources.PurgeScratchDir(fmt.Sprintf("pool-%d", pw.ID))
	if cleanupErr != nil {
		p.logger.Warn("pool_cleanup_failed",
			"worker_id", pw.ID,
			"test_id", testID,
			"error", cleanupErr,
		)
		if p.cfg.RetireOnCleanupFailure {
			pw.state = StateFailed
			proc := pw.proc
			pw.mu.Unlock()
			proc.Stop(p.cfg.StopTimeout)
			return
		}
		// Degraded-idle: a worker that cannot be cleaned is safer back in
		// the queue than lost entirely.
	}

	pw.state = StateIdle
	pw.mu.Unlock()
	p.available <- pw

	p.logger.Debug("pool_worker_released", "worker_id", pw.ID, "test_id", testID)
}

// Shutdown stops every tracked worker concurrently regardless of state and
// clears the pool. The pool may be re-initialized afterwards.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	workers := p.workers
	p.workers = nil
	p.initialized = false
	p.mu.Unlock()

	// Drain the queue so no acquirer receives a stopping worker.
	for {
		select {
		case <-p.available:
			continue
		default:
		}
		break
	}

	var wg sync.WaitGroup
	for _, pw := range workers {
		wg.Add(1)
		go func(pw *PooledWorker) {
			defer wg.Done()
			pw.mu.Lock()
			pw.state = StateStopping
			proc := pw.proc
			pw.mu.Unlock()
			if proc != nil {
				proc.Stop(p.cfg.StopTimeout)
			}
		}(pw)
	}
	wg.Wait()

	for _, pw := range workers {
		owner := fmt.Sprintf("pool-%d", pw.ID)
		p.resources.ReleasePort(pw.Port)
		p.resources.CleanupScratchDir(owner)
	}

	p.logger.Info("pool_shutdown", "count", len(workers))
}

// Stats is a point-in-time snapshot of pool occupancy.
type Stats struct {
	Size     int `json:"size"`
	Idle     int `json:"idle"`
	Busy     int `json:"busy"`
	Starting int `json:"starting"`
	Failed   int `json:"failed"`
}

// Stats counts workers by state.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	workers := p.workers
	p.mu.Unlock()

	stats := Stats{Size: p.cfg.Size}
	for _, pw := range workers {
		switch pw.State() {
		case StateIdle:
			stats.Idle++
		case StateBusy:
			stats.Busy++
		case StateStarting, StateStopping:
			stats.Starting++
		case StateFailed:
			stats.Failed++
		}
	}
	return stats
}

// Workers returns the tracked workers (for reporting and TUI display).
func (p *Pool) Workers() []*PooledWorker {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*PooledWorker, len(p.workers))
	copy(out, p.workers)
	return out
}
