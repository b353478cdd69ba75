package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/scrutor/internal/common"
	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/models"
	"github.com/ternarybob/scrutor/internal/queue"
)

// Orchestrator drives the job lifecycle from the request side: creating jobs,
// submitting them to the scraping provider and handling retries. Retry runs
// under a per-job lock so two concurrent retry requests can never both reach
// the provider for the same job - each scrape submission is billable.
type Orchestrator struct {
	jobs      interfaces.JobStorage
	provider  interfaces.ProviderClient
	taskQueue interfaces.TaskQueue
	events    interfaces.EventService
	locks     *common.KeyedMutex
	logger    arbor.ILogger
}

// New creates an orchestrator
func New(jobs interfaces.JobStorage, provider interfaces.ProviderClient, taskQueue interfaces.TaskQueue, events interfaces.EventService, logger arbor.ILogger) *Orchestrator {
	return &Orchestrator{
		jobs:      jobs,
		provider:  provider,
		taskQueue: taskQueue,
		events:    events,
		locks:     common.NewKeyedMutex(),
		logger:    logger,
	}
}

func (o *Orchestrator) publish(jobID, userID string, status models.JobStatus, message string) {
	o.events.Publish(models.JobStatusEvent{
		JobID:     jobID,
		UserID:    userID,
		Status:    status,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
}

// CreateJob stores a new job and submits it to the provider. On submission
// failure the job is left FAILED with the provider's error and the error is
// returned for the handler to surface.
func (o *Orchestrator) CreateJob(ctx context.Context, userID, prompt, countryCode string) (*models.ScrapeJob, error) {
	job, err := o.jobs.CreateJob(ctx, userID, prompt)
	if err != nil {
		return nil, err
	}

	if err := o.submit(ctx, job.ID, userID, prompt, countryCode); err != nil {
		return nil, err
	}

	return o.jobs.GetJob(ctx, job.ID)
}

// submit triggers the provider scrape and records the outcome on the job
func (o *Orchestrator) submit(ctx context.Context, jobID, userID, prompt, countryCode string) error {
	trackingID, err := o.provider.Submit(ctx, jobID, prompt, countryCode)
	if err != nil {
		o.logger.Error().Err(err).Str("job_id", jobID).Msg("Provider submission failed")
		if failErr := o.jobs.MarkFailed(ctx, jobID, err.Error()); failErr != nil {
			o.logger.Warn().Err(failErr).Str("job_id", jobID).Msg("Could not mark job failed")
		}
		o.publish(jobID, userID, models.JobStatusFailed, "Scrape submission failed")
		return err
	}

	if err := o.jobs.MarkSubmitted(ctx, jobID, trackingID); err != nil {
		return err
	}
	o.publish(jobID, userID, models.JobStatusRunning, "Scrape started")
	return nil
}

// RetryJob restarts a terminal job. Jobs holding usable scraped data retry
// the analysis phase only; everything else goes through a full resubmission.
func (o *Orchestrator) RetryJob(ctx context.Context, jobID, userID string) (*models.ScrapeJob, error) {
	o.locks.Lock(jobID)
	defer o.locks.Unlock(jobID)

	job, err := o.jobs.GetJobOwned(ctx, jobID, userID)
	if err != nil {
		return nil, err
	}
	if !job.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: cannot retry job in status %s", models.ErrInvalidTransition, job.Status)
	}

	// Analysis-only retry needs usable raw data and the persisted analysis
	// prompt; raw data without a saved prompt falls through to a full
	// resubmission.
	if job.HasScrapingData() && job.AnalysisPrompt != "" {
		if err := o.jobs.ResetForAnalysisRetry(ctx, jobID); err != nil {
			return nil, err
		}
		o.publish(jobID, userID, models.JobStatusAnalyzing, "Job analysis retry started")

		if _, err := o.taskQueue.Enqueue(ctx, queue.TaskAnalyzeJob, map[string]string{"job_id": jobID}); err != nil {
			return nil, err
		}
		o.logger.Info().Str("job_id", jobID).Msg("Analysis-only retry enqueued")
	} else {
		if err := o.jobs.ResetForFullRetry(ctx, jobID); err != nil {
			return nil, err
		}
		o.publish(jobID, userID, models.JobStatusPending, "Job retry started")

		if err := o.submit(ctx, jobID, userID, job.OriginalPrompt, ""); err != nil {
			return nil, err
		}
		o.logger.Info().Str("job_id", jobID).Msg("Full retry submitted")
	}

	return o.jobs.GetJob(ctx, jobID)
}

// RetryInfo reports which retry path the job would take
func (o *Orchestrator) RetryInfo(ctx context.Context, jobID, userID string) (*models.SmartRetryInfo, error) {
	return o.jobs.SmartRetryInfo(ctx, jobID, userID)
}
