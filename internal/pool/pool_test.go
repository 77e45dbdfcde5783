package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"editorswarm/internal/logging"
	"editorswarm/internal/resource"
	"editorswarm/internal/worker"
)

// fakeProc is an in-memory Process so pool behavior can be tested without
// spawning real editor instances.
type fakeProc struct {
	startOK bool
	readyOK bool

	mu      sync.Mutex
	running bool
	ready   bool
	stops   int

	done     chan struct{}
	doneOnce sync.Once
}

func newFakeProc(startOK, readyOK bool) *fakeProc {
	return &fakeProc{startOK: startOK, readyOK: readyOK, done: make(chan struct{})}
}

func (f *fakeProc) Start() bool {
	if !f.startOK {
		return false
	}
	f.mu.Lock()
	f.running = true
	f.mu.Unlock()
	return true
}

func (f *fakeProc) WaitForReady(ctx context.Context, timeout time.Duration) bool {
	if !f.readyOK {
		return false
	}
	f.mu.Lock()
	f.ready = true
	f.mu.Unlock()
	return true
}

func (f *fakeProc) Stop(timeout time.Duration) bool {
	f.mu.Lock()
	f.running = false
	f.stops++
	f.mu.Unlock()
	f.doneOnce.Do(func() { close(f.done) })
	return true
}

func (f *fakeProc) kill() {
	f.mu.Lock()
	f.running = false
	f.mu.Unlock()
	f.doneOnce.Do(func() { close(f.done) })
}

func (f *fakeProc) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeProc) IsReady() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

func (f *fakeProc) Logs(lastN int) []string { return nil }

func (f *fakeProc) ExitCode() (int, bool) {
	select {
	case <-f.done:
		return 0, true
	default:
		return 0, false
	}
}

func (f *fakeProc) Done() <-chan struct{} { return f.done }

func (f *fakeProc) Usage() (worker.UsageSample, error) {
	return worker.UsageSample{}, nil
}

func testPool(t *testing.T, size int, spawn SpawnFunc) *Pool {
	t.Helper()
	resources := resource.NewManager(7777, t.TempDir(), logging.Discard())
	return New(Config{
		Size:           size,
		Target:         "/bin/true",
		ReadyMarkers:   []string{"READY"},
		ReadyTimeout:   time.Second,
		StopTimeout:    time.Second,
		AcquireTimeout: 300 * time.Millisecond,
		Backoff: BackoffConfig{
			Initial:    time.Millisecond,
			Max:        5 * time.Millisecond,
			Multiplier: 1.5,
			JitterPct:  0.1,
		},
	}, resources, logging.Discard(), spawn)
}

func healthySpawn(procs *sync.Map) SpawnFunc {
	return func(cfg worker.Config) Process {
		p := newFakeProc(true, true)
		procs.Store(cfg.InstanceID, p)
		return p
	}
}

// =============================================================================
// Tests: Initialize
// =============================================================================

func TestInitialize_AllIdle(t *testing.T) {
	var procs sync.Map
	p := testPool(t, 3, healthySpawn(&procs))

	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	defer p.Shutdown()

	stats := p.Stats()
	if stats.Idle != 3 || stats.Failed != 0 {
		t.Errorf("Stats() = %+v, want 3 idle", stats)
	}

	// Distinct ports per worker.
	seen := make(map[int]bool)
	for _, pw := range p.Workers() {
		if seen[pw.Port] {
			t.Errorf("port %d assigned twice", pw.Port)
		}
		seen[pw.Port] = true
	}
}

func TestInitialize_Idempotent(t *testing.T) {
	var procs sync.Map
	spawns := int32(0)
	p := testPool(t, 2, func(cfg worker.Config) Process {
		atomic.AddInt32(&spawns, 1)
		return healthySpawn(&procs)(cfg)
	})

	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("first Initialize() error: %v", err)
	}
	defer p.Shutdown()

	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("second Initialize() error: %v", err)
	}
	if got := atomic.LoadInt32(&spawns); got != 2 {
		t.Errorf("spawn count = %d after repeated Initialize, want 2", got)
	}
}

func TestInitialize_RetriesFailedStart(t *testing.T) {
	attempts := int32(0)
	p := testPool(t, 1, func(cfg worker.Config) Process {
		// First attempt refuses to start, second succeeds.
		if atomic.AddInt32(&attempts, 1) == 1 {
			return newFakeProc(false, false)
		}
		return newFakeProc(true, true)
	})
	p.cfg.StartRetries = 2

	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	defer p.Shutdown()

	if got := atomic.LoadInt32(&attempts); got != 2 {
		t.Errorf("attempts = %d, want 2", got)
	}
	if stats := p.Stats(); stats.Idle != 1 {
		t.Errorf("Stats() = %+v, want 1 idle", stats)
	}
}

func TestInitialize_AllFailed(t *testing.T) {
	p := testPool(t, 2, func(cfg worker.Config) Process {
		return newFakeProc(false, false)
	})

	if err := p.Initialize(context.Background()); err == nil {
		t.Fatal("Initialize() = nil, want error when no worker came up")
	}
	if stats := p.Stats(); stats.Failed != 2 {
		t.Errorf("Stats() = %+v, want 2 failed", stats)
	}
}

// =============================================================================
// Tests: Acquire / Release
// =============================================================================

func TestAcquireRelease_Cycle(t *testing.T) {
	var procs sync.Map
	p := testPool(t, 2, healthySpawn(&procs))

	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	defer p.Shutdown()

	pw, err := p.Acquire(context.Background(), "login_test")
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	if pw.State() != StateBusy {
		t.Errorf("state = %v, want busy", pw.State())
	}
	if pw.CurrentTest() != "login_test" {
		t.Errorf("CurrentTest() = %q, want login_test", pw.CurrentTest())
	}

	p.Release(pw)
	if pw.State() != StateIdle {
		t.Errorf("state after release = %v, want idle", pw.State())
	}
	if pw.CurrentTest() != "" {
		t.Errorf("CurrentTest() after release = %q, want empty", pw.CurrentTest())
	}
}

func TestAcquire_BoundedBusy(t *testing.T) {
	var procs sync.Map
	const size = 3
	p := testPool(t, size, healthySpawn(&procs))

	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	defer p.Shutdown()

	var (
		busy    int32
		maxBusy int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pw, err := p.Acquire(context.Background(), "stress")
			if err != nil {
				t.Errorf("Acquire() error: %v", err)
				return
			}
			cur := atomic.AddInt32(&busy, 1)
			for {
				prev := atomic.LoadInt32(&maxBusy)
				if cur <= prev || atomic.CompareAndSwapInt32(&maxBusy, prev, cur) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&busy, -1)
			p.Release(pw)
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&maxBusy); got > size {
		t.Errorf("max concurrent busy = %d, want <= %d", got, size)
	}
}

func TestAcquire_TimesOutWhenExhausted(t *testing.T) {
	var procs sync.Map
	p := testPool(t, 1, healthySpawn(&procs))

	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	defer p.Shutdown()

	pw, err := p.Acquire(context.Background(), "holder")
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}

	_, err = p.Acquire(context.Background(), "waiter")
	if err == nil {
		t.Fatal("second Acquire() = nil, want exhaustion error")
	}
	if !errors.Is(err, ErrExhausted) {
		t.Errorf("error %v does not match ErrExhausted", err)
	}
	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("error %T is not *ExhaustedError", err)
	}
	if exhausted.Size != 1 {
		t.Errorf("ExhaustedError.Size = %d, want 1", exhausted.Size)
	}

	p.Release(pw)
}

func TestAcquire_BlocksUntilRelease(t *testing.T) {
	var procs sync.Map
	p := testPool(t, 1, healthySpawn(&procs))

	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	defer p.Shutdown()

	pw, err := p.Acquire(context.Background(), "first")
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		p.Release(pw)
	}()

	got, err := p.Acquire(context.Background(), "second")
	if err != nil {
		t.Fatalf("waiting Acquire() error: %v", err)
	}
	if got != pw {
		t.Error("waiting acquire received a different worker")
	}
}

func TestAcquire_RetiresDeadWorker(t *testing.T) {
	var procs sync.Map
	p := testPool(t, 1, healthySpawn(&procs))

	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	defer p.Shutdown()

	// Kill the idle worker's process behind the pool's back.
	v, _ := procs.Load(0)
	v.(*fakeProc).kill()

	_, err := p.Acquire(context.Background(), "doomed")
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("Acquire() error = %v, want exhaustion after dead worker retired", err)
	}
	if stats := p.Stats(); stats.Failed != 1 {
		t.Errorf("Stats() = %+v, want 1 failed", stats)
	}
}

func TestRelease_DeadWorkerRetired(t *testing.T) {
	var procs sync.Map
	p := testPool(t, 1, healthySpawn(&procs))

	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	defer p.Shutdown()

	pw, err := p.Acquire(context.Background(), "crasher")
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}

	v, _ := procs.Load(0)
	v.(*fakeProc).kill()
	p.Release(pw)

	if pw.State() != StateFailed {
		t.Errorf("state = %v, want failed for dead worker", pw.State())
	}
	if stats := p.Stats(); stats.Idle != 0 {
		t.Errorf("dead worker requeued: %+v", stats)
	}
}

// =============================================================================
// Tests: Shutdown
// =============================================================================

func TestShutdown_StopsAllAndClears(t *testing.T) {
	var procs sync.Map
	resources := resource.NewManager(7777, t.TempDir(), logging.Discard())
	p := New(Config{
		Size:           2,
		Target:         "/bin/true",
		ReadyMarkers:   []string{"READY"},
		AcquireTimeout: 100 * time.Millisecond,
		StopTimeout:    time.Second,
	}, resources, logging.Discard(), healthySpawn(&procs))

	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}

	p.Shutdown()

	procs.Range(func(_, v any) bool {
		if v.(*fakeProc).IsRunning() {
			t.Error("worker still running after shutdown")
		}
		return true
	})
	if got := resources.AllocatedPorts(); got != 0 {
		t.Errorf("AllocatedPorts() = %d after shutdown, want 0", got)
	}
	if got := len(p.Workers()); got != 0 {
		t.Errorf("pool still tracks %d workers", got)
	}
}
