package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"

	"pdf-rag-chat/internal/logger"
)

// Scheduler runs background maintenance jobs.
type Scheduler struct {
	scheduler *gocron.Scheduler
	cancel    context.CancelFunc
	ctx       context.Context
}

// NewScheduler creates a new scheduler
func NewScheduler() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()

	return &Scheduler{
		scheduler: s,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.scheduler.StartAsync()
}

// Stop stops the scheduler and cancels the context handed to running jobs.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.scheduler.Stop()
}

// ScheduleInterval schedules job every duration, first run after one full
// interval. A run is skipped while the previous one is still going.
func (s *Scheduler) ScheduleInterval(
	tag string,
	duration time.Duration,
	job func(ctx context.Context) error,
) error {
	_, err := s.scheduler.Every(duration).
		Tag(tag).
		SingletonMode().
		WaitForSchedule().
		Do(func() {
			if err := job(s.ctx); err != nil {
				logger.Warn("Scheduled job failed", "job", tag, "error", err)
			}
		})
	return err
}

// RemoveJob removes a scheduled job by tag
func (s *Scheduler) RemoveJob(tag string) error {
	return s.scheduler.RemoveByTag(tag)
}

// Len returns the number of scheduled jobs.
func (s *Scheduler) Len() int {
	return s.scheduler.Len()
}
