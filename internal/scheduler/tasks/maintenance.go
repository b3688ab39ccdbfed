// Package tasks wires the coordinator's periodic maintenance into the
// scheduler: the aging sweep and the helper health check, both every minute.
package tasks

import (
	"context"
	"time"

	"github.com/fasttube/fasttube/internal/scheduler"
)

// Coordinator is the subset of the download coordinator the tasks drive.
type Coordinator interface {
	Sweep(ctx context.Context) error
	HealthCheck(ctx context.Context) error
}

// Register adds the maintenance tasks to the scheduler.
func Register(s *scheduler.Scheduler, c Coordinator) error {
	if err := s.RegisterTask(scheduler.TaskConfig{
		ID:          "downloads-sweep",
		Name:        "Download Sweep",
		Description: "Removes aged terminal downloads and fails silently stuck ones",
		Every:       time.Minute,
		Func:        c.Sweep,
	}); err != nil {
		return err
	}

	return s.RegisterTask(scheduler.TaskConfig{
		ID:          "helper-health",
		Name:        "Helper Health Check",
		Description: "Reconnects to the native helper when downloads exist but the channel is down",
		Every:       time.Minute,
		Func:        c.HealthCheck,
		RunOnStart:  true,
	})
}
