package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"editorswarm/internal/resource"
)

// LaunchSpec describes one batch launch. Roles, Scripts, ExtraArgs, and Env
// are optional; when provided their length must equal Count.
type LaunchSpec struct {
	Count     int
	Roles     []string
	Scripts   []string
	ExtraArgs [][]string
	Env       []map[string]string
}

// LaunchFailure identifies one instance that failed to start or become ready.
type LaunchFailure struct {
	InstanceID int
	Reason     string
}

func (f LaunchFailure) String() string {
	return fmt.Sprintf("instance %d: %s", f.InstanceID, f.Reason)
}

// LauncherConfig holds settings shared by every worker a Launcher creates.
type LauncherConfig struct {
	Target         string
	Project        string
	ReadyMarkers   []string
	ReadyTimeout   time.Duration
	StopTimeout    time.Duration
	PollInterval   time.Duration
	LogBufferLines int
}

// Launcher creates and supervises a batch of workers for one scenario.
// Ports and scratch directories come from the resource manager; both are
// returned on shutdown.
type Launcher struct {
	cfg       LauncherConfig
	resources *resource.Manager
	logger    *slog.Logger

	mu      sync.Mutex
	workers []*Worker
	ports   map[*Worker]int
}

// NewLauncher creates a launcher.
func NewLauncher(cfg LauncherConfig, resources *resource.Manager, logger *slog.Logger) *Launcher {
	return &Launcher{
		cfg:       cfg,
		resources: resources,
		logger:    logger,
		ports:     make(map[*Worker]int),
	}
}

// validateSpec checks the per-instance option slices before any spawn.
func validateSpec(spec LaunchSpec) error {
	if spec.Count < 1 {
		return fmt.Errorf("launch count must be at least 1 (got %d)", spec.Count)
	}
	if spec.Roles != nil && len(spec.Roles) != spec.Count {
		return fmt.Errorf("roles length %d does not match count %d", len(spec.Roles), spec.Count)
	}
	if spec.Scripts != nil && len(spec.Scripts) != spec.Count {
		return fmt.Errorf("scripts length %d does not match count %d", len(spec.Scripts), spec.Count)
	}
	if spec.ExtraArgs != nil && len(spec.ExtraArgs) != spec.Count {
		return fmt.Errorf("extra_args length %d does not match count %d", len(spec.ExtraArgs), spec.Count)
	}
	if spec.Env != nil && len(spec.Env) != spec.Count {
		return fmt.Errorf("env length %d does not match count %d", len(spec.Env), spec.Count)
	}
	return nil
}

// Launch starts spec.Count workers concurrently and waits for all of them to
// become ready. All started workers are returned, including those that failed
// readiness; the failure list tells the caller which instances are unusable.
// The caller decides whether failures sink the scenario.
//
// The returned error is non-nil only for validation errors, raised before any
// process is spawned.
func (l *Launcher) Launch(ctx context.Context, spec LaunchSpec) ([]*Worker, []LaunchFailure, error) {
	if err := validateSpec(spec); err != nil {
		return nil, nil, err
	}

	workers := make([]*Worker, spec.Count)
	for i := 0; i < spec.Count; i++ {
		cfg := Config{
			InstanceID:     i,
			Target:         l.cfg.Target,
			Project:        l.cfg.Project,
			Port:           l.resources.AllocatePort(fmt.Sprintf("launch-%d", i)),
			ReadyMarkers:   l.cfg.ReadyMarkers,
			PollInterval:   l.cfg.PollInterval,
			StopTimeout:    l.cfg.StopTimeout,
			LogBufferLines: l.cfg.LogBufferLines,
		}
		if spec.Roles != nil {
			cfg.Role = spec.Roles[i]
		}
		if spec.Scripts != nil {
			cfg.Script = spec.Scripts[i]
		}
		if spec.ExtraArgs != nil {
			cfg.ExtraArgs = spec.ExtraArgs[i]
		}
		if spec.Env != nil {
			cfg.Env = spec.Env[i]
		}

		dir, err := l.resources.CreateScratchDir(fmt.Sprintf("%d", i))
		if err != nil {
			l.logger.Warn("scratch_dir_unavailable", "instance_id", i, "error", err)
		} else {
			cfg.ScratchDir = dir
		}

		workers[i] = New(cfg, l.logger)
	}

	// Start all instances concurrently: batch latency is the slowest
	// instance, not the sum.
	var (
		failMu   sync.Mutex
		failures []LaunchFailure
		wg       sync.WaitGroup
	)
	for _, w := range workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			if !w.Start() {
				failMu.Lock()
				failures = append(failures, LaunchFailure{
					InstanceID: w.Config().InstanceID,
					Reason:     "failed to start",
				})
				failMu.Unlock()
				return
			}
			if !w.WaitForReady(ctx, l.cfg.ReadyTimeout) {
				failMu.Lock()
				failures = append(failures, LaunchFailure{
					InstanceID: w.Config().InstanceID,
					Reason:     "not ready within timeout",
				})
				failMu.Unlock()
			}
		}(w)
	}
	wg.Wait()

	l.mu.Lock()
	l.workers = append(l.workers, workers...)
	for _, w := range workers {
		l.ports[w] = w.Config().Port
	}
	l.mu.Unlock()

	l.logger.Info("launch_complete",
		"count", spec.Count,
		"failed", len(failures),
	)
	return workers, failures, nil
}

// Workers returns the instances currently tracked by the launcher.
func (l *Launcher) Workers() []*Worker {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Worker, len(l.workers))
	copy(out, l.workers)
	return out
}

// ShutdownAll stops every tracked worker concurrently, releases their ports
// and scratch directories, and clears internal bookkeeping.
func (l *Launcher) ShutdownAll(timeout time.Duration) {
	l.mu.Lock()
	workers := l.workers
	ports := l.ports
	l.workers = nil
	l.ports = make(map[*Worker]int)
	l.mu.Unlock()

	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			w.Stop(timeout)
		}(w)
	}
	wg.Wait()

	for w, port := range ports {
		l.resources.ReleasePort(port)
		l.resources.CleanupScratchDir(fmt.Sprintf("%d", w.Config().InstanceID))
	}

	l.logger.Info("shutdown_complete", "count", len(workers))
}
