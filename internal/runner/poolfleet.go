package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"editorswarm/internal/pool"
	"editorswarm/internal/scenario"
)

// Dispatch protocol for pooled workers: the orchestrator drops a command
// file into the worker's scratch directory; the worker executes it and
// writes a result file when done.
const (
	CommandFileName = "command.json"
	ResultFileName  = "result.json"
)

// Command is what a pooled worker picks up from its scratch directory.
type Command struct {
	Test   string `json:"test"`
	Role   string `json:"role"`
	Script string `json:"script,omitempty"`
}

// CommandResult is what a pooled worker writes back on completion.
type CommandResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// PoolFleet deploys scenarios onto long-lived pooled workers. Completion is
// the appearance of a result file, not process exit: the worker outlives the
// scenario.
type PoolFleet struct {
	pool   *pool.Pool
	logger *slog.Logger

	mu     sync.Mutex
	leased []*pool.PooledWorker
}

// NewPoolFleet creates a fleet backed by an initialized worker pool.
func NewPoolFleet(p *pool.Pool, logger *slog.Logger) *PoolFleet {
	return &PoolFleet{pool: p, logger: logger}
}

// Deploy acquires sc.Workers pooled workers and dispatches their commands.
// On acquisition failure every already-acquired worker is released before the
// error is returned.
func (f *PoolFleet) Deploy(ctx context.Context, sc *scenario.Scenario) ([]Instance, error) {
	roles, scripts, err := resolveScripts(sc)
	if err != nil {
		return nil, err
	}

	var leased []*pool.PooledWorker
	instances := make([]Instance, 0, sc.Workers)
	for i := 0; i < sc.Workers; i++ {
		pw, err := f.pool.Acquire(ctx, sc.Name)
		if err != nil {
			for _, got := range leased {
				f.pool.Release(got)
			}
			return nil, err
		}
		leased = append(leased, pw)

		if err := dispatchCommand(pw, sc.Name, roles[i], scripts[i]); err != nil {
			for _, got := range leased {
				f.pool.Release(got)
			}
			return nil, fmt.Errorf("dispatching to worker %d: %w", pw.ID, err)
		}

		instances = append(instances, &poolInstance{
			pw:         pw,
			index:      i,
			role:       roles[i],
			resultPath: filepath.Join(pw.ScratchDir, ResultFileName),
		})
	}

	f.mu.Lock()
	f.leased = append(f.leased, leased...)
	f.mu.Unlock()
	return instances, nil
}

// dispatchCommand clears any stale result and writes the command file.
func dispatchCommand(pw *pool.PooledWorker, test, role, script string) error {
	if pw.ScratchDir == "" {
		return fmt.Errorf("worker %d has no scratch dir", pw.ID)
	}
	os.Remove(filepath.Join(pw.ScratchDir, ResultFileName))

	data, err := json.Marshal(Command{Test: test, Role: role, Script: script})
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(pw.ScratchDir, CommandFileName), data, 0o644)
}

// Reclaim releases every leased worker back to the pool.
func (f *PoolFleet) Reclaim() {
	f.mu.Lock()
	leased := f.leased
	f.leased = nil
	f.mu.Unlock()

	for _, pw := range leased {
		f.pool.Release(pw)
	}
}

// poolInstance adapts a pooled worker lease to the Instance probe model.
type poolInstance struct {
	pw         *pool.PooledWorker
	index      int
	role       string
	resultPath string
}

func (pi *poolInstance) ID() int {
	return pi.index
}

func (pi *poolInstance) Role() string {
	return pi.role
}

// Probe checks for the result file first so a worker that finished and then
// crashed still reports its real outcome.
func (pi *poolInstance) Probe() Status {
	data, err := os.ReadFile(pi.resultPath)
	if err == nil {
		var res CommandResult
		if err := json.Unmarshal(data, &res); err != nil {
			return Status{Done: true, Success: false, Error: fmt.Sprintf("unreadable result file: %v", err)}
		}
		return Status{Done: true, Success: res.Success, Error: res.Error}
	}

	if !pi.pw.Process().IsRunning() {
		code, ok := pi.pw.Process().ExitCode()
		if ok {
			return Status{Done: true, Success: false, Error: fmt.Sprintf("exited with error (code %d)", code)}
		}
		return Status{Done: true, Success: false, Error: "exited with error"}
	}
	return Status{}
}

func (pi *poolInstance) LogTail(n int) []string {
	return pi.pw.Process().Logs(n)
}

func (pi *poolInstance) Metrics() map[string]float64 {
	sample, err := pi.pw.Process().Usage()
	if err != nil {
		return nil
	}
	return map[string]float64{
		"rss_bytes":   float64(sample.RSSBytes),
		"cpu_seconds": sample.CPUSeconds,
		"threads":     float64(sample.Threads),
	}
}
