package worker

import (
	"fmt"

	"github.com/prometheus/procfs"
)

// UsageSample is a point-in-time resource snapshot for one worker process.
type UsageSample struct {
	RSSBytes   int     `json:"rss_bytes"`
	VSizeBytes uint    `json:"vsize_bytes"`
	CPUSeconds float64 `json:"cpu_seconds"`
	Threads    int     `json:"threads"`
}

// Usage samples the worker's current memory and CPU consumption from /proc.
// Fails when the process is not running or /proc is unavailable.
func (w *Worker) Usage() (UsageSample, error) {
	pid := w.Pid()
	if pid == 0 {
		return UsageSample{}, fmt.Errorf("worker %d: not running", w.cfg.InstanceID)
	}

	proc, err := procfs.NewProc(pid)
	if err != nil {
		return UsageSample{}, fmt.Errorf("worker %d: reading /proc/%d: %w", w.cfg.InstanceID, pid, err)
	}

	stat, err := proc.Stat()
	if err != nil {
		return UsageSample{}, fmt.Errorf("worker %d: stat for pid %d: %w", w.cfg.InstanceID, pid, err)
	}

	return UsageSample{
		RSSBytes:   stat.ResidentMemory(),
		VSizeBytes: stat.VirtualMemory(),
		CPUSeconds: stat.CPUTime(),
		Threads:    stat.NumThreads,
	}, nil
}
