package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

// Task is a periodic maintenance routine.
type Task func(ctx context.Context) error

// Scheduler runs maintenance tasks such as export cleanup on fixed intervals.
type Scheduler struct {
	scheduler *gocron.Scheduler
	ctx       context.Context
	cancel    context.CancelFunc
	logger    *zap.Logger
}

// New creates a scheduler operating in UTC.
func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{scheduler: s, ctx: ctx, cancel: cancel, logger: logger}
}

// Every registers task to run every interval, starting immediately once the scheduler starts.
func (s *Scheduler) Every(interval time.Duration, name string, task Task) error {
	if interval <= 0 {
		return fmt.Errorf("interval for %s must be positive", name)
	}
	_, err := s.scheduler.Every(interval).Tag(name).Do(func() {
		s.run(name, task)
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	return nil
}

// Start runs scheduled tasks in the background.
func (s *Scheduler) Start() {
	s.scheduler.StartAsync()
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.scheduler.Jobs())))
}

// Stop halts future runs and cancels in-flight task contexts.
func (s *Scheduler) Stop() {
	s.cancel()
	s.scheduler.Stop()
}

func (s *Scheduler) run(name string, task Task) {
	started := time.Now()
	if err := task(s.ctx); err != nil {
		s.logger.Error("scheduled task failed", zap.String("task", name), zap.Error(err))
		return
	}
	s.logger.Debug("scheduled task finished", zap.String("task", name), zap.Duration("elapsed", time.Since(started)))
}
