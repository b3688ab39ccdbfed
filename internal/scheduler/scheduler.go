// Package scheduler runs the daemon's periodic maintenance jobs on fixed
// intervals and exposes them for inspection and manual triggering.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
)

// TaskFunc is the function signature for scheduled tasks.
type TaskFunc func(ctx context.Context) error

// TaskConfig describes one periodic task.
type TaskConfig struct {
	ID          string
	Name        string
	Description string
	Every       time.Duration
	Func        TaskFunc
	RunOnStart  bool // execute once immediately when the scheduler starts
}

// TaskInfo is the API-facing view of a task.
type TaskInfo struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Every       string     `json:"every"`
	LastRun     *time.Time `json:"lastRun,omitempty"`
	NextRun     *time.Time `json:"nextRun,omitempty"`
	Running     bool       `json:"running"`
}

type taskEntry struct {
	config  TaskConfig
	job     gocron.Job
	lastRun *time.Time
	running bool
}

// Scheduler manages the periodic maintenance tasks.
type Scheduler struct {
	gocron gocron.Scheduler
	logger zerolog.Logger
	tasks  map[string]*taskEntry
	mu     sync.RWMutex
}

// New creates a scheduler.
func New(logger zerolog.Logger) (*Scheduler, error) {
	gs, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}

	return &Scheduler{
		gocron: gs,
		logger: logger.With().Str("component", "scheduler").Logger(),
		tasks:  make(map[string]*taskEntry),
	}, nil
}

// RegisterTask adds a periodic task. Task ids must be unique.
func (s *Scheduler) RegisterTask(config TaskConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[config.ID]; exists {
		return fmt.Errorf("task with ID %q already registered", config.ID)
	}
	if config.Every <= 0 {
		return fmt.Errorf("task %q needs a positive interval", config.ID)
	}

	job, err := s.gocron.NewJob(
		gocron.DurationJob(config.Every),
		gocron.NewTask(func() { s.executeTask(config.ID) }),
		gocron.WithName(config.Name),
		gocron.WithTags(config.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to create job for task %q: %w", config.ID, err)
	}

	s.tasks[config.ID] = &taskEntry{config: config, job: job}

	s.logger.Info().
		Str("id", config.ID).
		Dur("every", config.Every).
		Bool("runOnStart", config.RunOnStart).
		Msg("registered task")

	return nil
}

func (s *Scheduler) executeTask(taskID string) {
	s.mu.Lock()
	entry, exists := s.tasks[taskID]
	if !exists || entry.running {
		s.mu.Unlock()
		return
	}
	entry.running = true
	s.mu.Unlock()

	started := time.Now()
	err := entry.config.Func(context.Background())

	s.mu.Lock()
	entry.running = false
	entry.lastRun = &started
	s.mu.Unlock()

	if err != nil {
		s.logger.Error().Err(err).
			Str("id", taskID).
			Dur("duration", time.Since(started)).
			Msg("task failed")
		return
	}
	s.logger.Debug().
		Str("id", taskID).
		Dur("duration", time.Since(started)).
		Msg("task completed")
}

// Start begins interval scheduling and kicks off RunOnStart tasks.
func (s *Scheduler) Start() error {
	s.gocron.Start()

	s.mu.RLock()
	var startupTasks []string
	for id, entry := range s.tasks {
		if entry.config.RunOnStart {
			startupTasks = append(startupTasks, id)
		}
	}
	s.mu.RUnlock()

	for _, taskID := range startupTasks {
		go s.executeTask(taskID)
	}
	return nil
}

// Stop shuts the scheduler down, waiting for running tasks.
func (s *Scheduler) Stop() error {
	return s.gocron.Shutdown()
}

// RunNow triggers a task immediately, outside its interval.
func (s *Scheduler) RunNow(taskID string) error {
	s.mu.RLock()
	entry, exists := s.tasks[taskID]
	s.mu.RUnlock()

	if !exists {
		return fmt.Errorf("task %q not found", taskID)
	}
	if entry.running {
		return fmt.Errorf("task %q is already running", taskID)
	}

	go s.executeTask(taskID)
	return nil
}

// ListTasks returns all registered tasks.
func (s *Scheduler) ListTasks() []TaskInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]TaskInfo, 0, len(s.tasks))
	for _, entry := range s.tasks {
		tasks = append(tasks, s.infoLocked(entry))
	}
	return tasks
}

// GetTask returns one task by id.
func (s *Scheduler) GetTask(taskID string) (*TaskInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, exists := s.tasks[taskID]
	if !exists {
		return nil, fmt.Errorf("task %q not found", taskID)
	}
	info := s.infoLocked(entry)
	return &info, nil
}

func (s *Scheduler) infoLocked(entry *taskEntry) TaskInfo {
	info := TaskInfo{
		ID:          entry.config.ID,
		Name:        entry.config.Name,
		Description: entry.config.Description,
		Every:       entry.config.Every.String(),
		LastRun:     entry.lastRun,
		Running:     entry.running,
	}
	if nextRun, err := entry.job.NextRun(); err == nil {
		info.NextRun = &nextRun
	}
	return info
}
