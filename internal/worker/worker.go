package worker

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

const (
	defaultPollInterval = 500 * time.Millisecond
	defaultStopTimeout  = 10 * time.Second
	drainTimeout        = 5 * time.Second
)

// Worker is a mutable runtime wrapper around one external editor process.
//
// Lifecycle: created -> started -> ready -> stopped | crashed | killed.
// A Worker is owned by exactly one component (launcher or pool) at a time.
type Worker struct {
	cfg    Config
	logger *slog.Logger

	cmd   *exec.Cmd
	cmdMu sync.Mutex

	logs     *LogBuffer
	pipeline *Pipeline

	ready     atomic.Bool
	running   atomic.Bool
	startTime time.Time

	// exited is closed by the wait goroutine once the process is gone;
	// exitCode is valid only after exited is closed.
	exited   chan struct{}
	exitCode atomic.Int64
}

// New creates a worker in the not-started state.
func New(cfg Config, logger *slog.Logger) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = defaultStopTimeout
	}
	return &Worker{
		cfg:    cfg,
		logger: logger,
		logs:   NewLogBuffer(cfg.LogBufferLines),
		exited: make(chan struct{}),
	}
}

// Config returns the worker's launch parameters.
func (w *Worker) Config() Config {
	return w.cfg
}

// Start launches the external process and begins asynchronous log capture.
// Returns false, never panics, when the process cannot be spawned or a
// required path is missing. A failed start leaves no process handle.
func (w *Worker) Start() bool {
	if err := w.cfg.Validate(); err != nil {
		w.logger.Error("worker_start_failed",
			"instance_id", w.cfg.InstanceID,
			"error", err,
		)
		return false
	}

	cmd := exec.Command(w.cfg.Target, w.cfg.buildArgs()...)
	cmd.Env = w.cfg.buildEnv()
	if w.cfg.ScratchDir != "" {
		cmd.Dir = w.cfg.ScratchDir
	}

	// Own process group so Stop can signal the whole tree.
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}

	// One combined pipe for stdout+stderr keeps log ordering close to what
	// the editor actually interleaved.
	pr, pw, err := os.Pipe()
	if err != nil {
		w.logger.Error("worker_pipe_failed",
			"instance_id", w.cfg.InstanceID,
			"error", err,
		)
		return false
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	w.startTime = time.Now()
	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		w.logger.Error("worker_spawn_failed",
			"instance_id", w.cfg.InstanceID,
			"target", w.cfg.Target,
			"error", err,
		)
		return false
	}

	// Parent must drop its write end after Start so the reader sees EOF
	// when the child exits.
	pw.Close()

	w.cmdMu.Lock()
	w.cmd = cmd
	w.cmdMu.Unlock()
	w.running.Store(true)

	w.pipeline = NewPipeline(w.cfg.InstanceID, w.cfg.LogBufferLines)
	go w.pipeline.RunReader(pr)
	go w.pipeline.RunSink(w.consumeLine)

	go w.wait(cmd, pr)

	w.logger.Info("worker_started",
		"instance_id", w.cfg.InstanceID,
		"role", w.cfg.Role,
		"port", w.cfg.Port,
		"pid", cmd.Process.Pid,
	)
	return true
}

// wait blocks on process exit, records the exit code, and closes exited.
func (w *Worker) wait(cmd *exec.Cmd, pr *os.File) {
	waitErr := cmd.Wait()
	w.exitCode.Store(int64(extractExitCode(waitErr)))
	w.running.Store(false)

	// Give the reader a bounded window to drain buffered output to EOF.
	// A grandchild holding the write end open must not wedge shutdown.
	select {
	case <-w.pipeline.Done():
	case <-time.After(drainTimeout):
		w.logger.Warn("worker_log_drain_timeout",
			"instance_id", w.cfg.InstanceID,
			"timeout", drainTimeout.String(),
		)
	}
	pr.Close()
	close(w.exited)

	w.logger.Info("worker_exited",
		"instance_id", w.cfg.InstanceID,
		"exit_code", w.exitCode.Load(),
		"uptime", time.Since(w.startTime).String(),
	)
}

// consumeLine stores a captured log line and checks readiness markers.
func (w *Worker) consumeLine(line string) {
	w.logs.Append(line)

	if !w.ready.Load() {
		for _, marker := range w.cfg.ReadyMarkers {
			if strings.Contains(line, marker) {
				w.ready.Store(true)
				w.logger.Debug("worker_ready_marker",
					"instance_id", w.cfg.InstanceID,
					"marker", marker,
				)
				return
			}
		}
	}
}

// WaitForReady polls until a readiness marker appears in the captured logs,
// the process exits (failure), the timeout elapses (failure), or the context
// is cancelled.
func (w *Worker) WaitForReady(ctx context.Context, timeout time.Duration) bool {
	if w.ready.Load() {
		return true
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-w.exited:
			// A crash during the readiness wait is a hard failure.
			w.logger.Warn("worker_exited_before_ready",
				"instance_id", w.cfg.InstanceID,
				"exit_code", w.exitCode.Load(),
			)
			return false
		case <-deadline.C:
			w.logger.Warn("worker_ready_timeout",
				"instance_id", w.cfg.InstanceID,
				"timeout", timeout.String(),
			)
			return false
		case <-ticker.C:
			if w.ready.Load() {
				return true
			}
		}
	}
}

// Stop requests graceful termination, waits up to timeout, then force-kills.
// Always clears the process handle on return. Idempotent: stopping an
// already-stopped worker returns true. Returns false only when the graceful
// window elapsed and SIGKILL was required.
func (w *Worker) Stop(timeout time.Duration) bool {
	w.cmdMu.Lock()
	cmd := w.cmd
	w.cmd = nil
	w.cmdMu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return true
	}

	select {
	case <-w.exited:
		// Already gone.
		return true
	default:
	}

	if timeout <= 0 {
		timeout = w.cfg.StopTimeout
	}

	// SIGTERM the whole process group; fall back to the process itself.
	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err == nil {
		syscall.Kill(-pgid, syscall.SIGTERM)
	} else {
		cmd.Process.Signal(syscall.SIGTERM)
	}

	select {
	case <-w.exited:
		return true
	case <-time.After(timeout):
	}

	w.logger.Warn("worker_force_kill",
		"instance_id", w.cfg.InstanceID,
		"pid", cmd.Process.Pid,
	)
	if pgid, err := syscall.Getpgid(cmd.Process.Pid); err == nil {
		syscall.Kill(-pgid, syscall.SIGKILL)
	} else {
		cmd.Process.Kill()
	}

	// SIGKILL cannot be ignored; wait for the reaper to observe it.
	<-w.exited
	return false
}

// IsRunning reports whether the process is currently alive.
func (w *Worker) IsRunning() bool {
	return w.running.Load()
}

// IsReady reports whether a readiness marker has been observed.
func (w *Worker) IsReady() bool {
	return w.ready.Load()
}

// Done returns a channel closed when the process has exited.
func (w *Worker) Done() <-chan struct{} {
	return w.exited
}

// ExitCode returns the process exit code. ok is false while still running
// or never started.
func (w *Worker) ExitCode() (code int, ok bool) {
	select {
	case <-w.exited:
		return int(w.exitCode.Load()), true
	default:
		return 0, false
	}
}

// Logs returns a snapshot of the last n captured log lines.
func (w *Worker) Logs(lastN int) []string {
	return w.logs.Tail(lastN)
}

// Pid returns the process id, or 0 if not running.
func (w *Worker) Pid() int {
	w.cmdMu.Lock()
	defer w.cmdMu.Unlock()
	if w.cmd == nil || w.cmd.Process == nil {
		return 0
	}
	return w.cmd.Process.Pid
}

// Uptime returns time since start while running, 0 otherwise.
func (w *Worker) Uptime() time.Duration {
	if !w.running.Load() {
		return 0
	}
	return time.Since(w.startTime)
}

// PipelineStats returns log-capture health counters for this worker.
func (w *Worker) PipelineStats() (read, dropped, stored int64) {
	if w.pipeline == nil {
		return 0, 0, 0
	}
	return w.pipeline.Stats()
}

// extractExitCode extracts the exit code from a Wait() error.
func extractExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				// Signal exit: 128 + signal number
				return 128 + int(status.Signal())
			}
			return status.ExitStatus()
		}
	}

	// Unknown error, assume exit code 1
	return 1
}
