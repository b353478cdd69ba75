package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/scrutor/internal/common"
	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/queue"
)

// Scheduler periodically re-enqueues analysis for jobs stuck in ANALYZING,
// e.g. after a crash between dequeue and completion. The task queue
// deduplicates, so a job whose analysis is still pending is not enqueued
// twice.
type Scheduler struct {
	jobs      interfaces.JobStorage
	taskQueue interfaces.TaskQueue
	config    *common.SchedulerConfig
	stale     time.Duration
	cron      *cron.Cron
	logger    arbor.ILogger
}

// New creates the stuck-job sweep scheduler
func New(jobs interfaces.JobStorage, taskQueue interfaces.TaskQueue, config *common.Config, logger arbor.ILogger) *Scheduler {
	return &Scheduler{
		jobs:      jobs,
		taskQueue: taskQueue,
		config:    &config.Scheduler,
		stale:     config.GetStaleAfter(),
		cron:      cron.New(cron.WithSeconds()),
		logger:    logger,
	}
}

// Start schedules the sweep. A disabled scheduler is a no-op.
func (s *Scheduler) Start() error {
	if !s.config.Enabled {
		s.logger.Debug().Msg("Scheduler disabled")
		return nil
	}

	if _, err := s.cron.AddFunc(s.config.Schedule, s.Sweep); err != nil {
		return err
	}
	s.cron.Start()

	s.logger.Info().
		Str("schedule", s.config.Schedule).
		Dur("stale_after", s.stale).
		Msg("Stuck-job scheduler started")
	return nil
}

// Stop halts the cron loop, waiting for a running sweep to finish
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Sweep re-enqueues analysis for jobs stuck in ANALYZING past the cutoff
func (s *Scheduler) Sweep() {
	ctx := context.Background()
	cutoff := time.Now().UTC().Add(-s.stale)

	stale, err := s.jobs.ListStaleAnalyzing(ctx, cutoff)
	if err != nil {
		s.logger.Error().Err(err).Msg("Stuck-job sweep failed")
		return
	}
	if len(stale) == 0 {
		return
	}

	s.logger.Warn().Int("count", len(stale)).Msg("Found jobs stuck in analysis")

	for _, job := range stale {
		if _, err := s.taskQueue.Enqueue(ctx, queue.TaskAnalyzeJob, map[string]string{"job_id": job.ID}); err != nil {
			s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to re-enqueue stuck job")
		}
	}
}
