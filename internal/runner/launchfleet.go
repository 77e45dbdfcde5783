package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"editorswarm/internal/scenario"
	"editorswarm/internal/worker"
)

// LaunchFleet deploys a fresh batch of workers per scenario. Completion is
// process exit: zero exit code means the instance's script ran to success.
type LaunchFleet struct {
	launcher    *worker.Launcher
	stopTimeout time.Duration
	logger      *slog.Logger
}

// NewLaunchFleet creates a fleet backed by a worker launcher.
func NewLaunchFleet(launcher *worker.Launcher, stopTimeout time.Duration, logger *slog.Logger) *LaunchFleet {
	return &LaunchFleet{
		launcher:    launcher,
		stopTimeout: stopTimeout,
		logger:      logger,
	}
}

// Deploy launches sc.Workers fresh instances with role-resolved scripts.
func (f *LaunchFleet) Deploy(ctx context.Context, sc *scenario.Scenario) ([]Instance, error) {
	roles, scripts, err := resolveScripts(sc)
	if err != nil {
		return nil, err
	}

	spec := worker.LaunchSpec{
		Count: sc.Workers,
		Roles: roles,
	}
	if len(sc.Scripts) > 0 {
		spec.Scripts = scripts
	}
	if len(sc.ExtraArgs) > 0 {
		spec.ExtraArgs = make([][]string, sc.Workers)
		for i := range spec.ExtraArgs {
			spec.ExtraArgs[i] = sc.ExtraArgs
		}
	}

	workers, failures, err := f.launcher.Launch(ctx, spec)
	if err != nil {
		// Length validation failed before any spawn.
		return nil, NewConfigError("scenario %s: %v", sc.Name, err)
	}

	failed := make(map[int]string, len(failures))
	for _, lf := range failures {
		failed[lf.InstanceID] = lf.Reason
	}

	instances := make([]Instance, len(workers))
	for i, w := range workers {
		instances[i] = &launchInstance{
			worker:    w,
			launchErr: failed[w.Config().InstanceID],
		}
	}
	return instances, nil
}

// Reclaim stops every launched worker and frees its resources.
func (f *LaunchFleet) Reclaim() {
	f.launcher.ShutdownAll(f.stopTimeout)
}

// launchInstance adapts a launched worker to the Instance probe model.
type launchInstance struct {
	worker    *worker.Worker
	launchErr string
}

func (li *launchInstance) ID() int {
	return li.worker.Config().InstanceID
}

func (li *launchInstance) Role() string {
	return li.worker.Config().Role
}

// Probe decides the outcome at the moment the process stops running: zero
// exit code is success, anything else is a failure.
func (li *launchInstance) Probe() Status {
	if li.launchErr != "" {
		return Status{Done: true, Success: false, Error: li.launchErr}
	}
	if li.worker.IsRunning() {
		return Status{}
	}

	code, ok := li.worker.ExitCode()
	if !ok {
		return Status{Done: true, Success: false, Error: "failed to start"}
	}
	if code == 0 {
		return Status{Done: true, Success: true}
	}
	return Status{
		Done:    true,
		Success: false,
		Error:   fmt.Sprintf("exited with error (code %d)", code),
	}
}

func (li *launchInstance) LogTail(n int) []string {
	return li.worker.Logs(n)
}

func (li *launchInstance) Metrics() map[string]float64 {
	sample, err := li.worker.Usage()
	if err != nil {
		return nil
	}
	return map[string]float64{
		"rss_bytes":   float64(sample.RSSBytes),
		"cpu_seconds": sample.CPUSeconds,
		"threads":     float64(sample.Threads),
	}
}
