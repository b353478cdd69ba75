package badger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/scrutor/internal/common"
	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/models"
)

// JobStorage implements the JobStorage interface for Badger. Each transition
// runs under a per-job lock so concurrent writers (webhook delivery, retry
// requests, the analysis worker) serialize against each other.
type JobStorage struct {
	db     *BadgerDB
	locks  *common.KeyedMutex
	logger arbor.ILogger
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		locks:  common.NewKeyedMutex(),
		logger: logger,
	}
}

// NewJobStorageFromStore wraps an existing badgerhold store. Useful for
// tests and embedded setups that manage the store lifecycle themselves.
func NewJobStorageFromStore(store *badgerhold.Store, logger arbor.ILogger) interfaces.JobStorage {
	return NewJobStorage(&BadgerDB{store: store}, logger)
}

// CreateJob stores a new PENDING job for the owner
func (s *JobStorage) CreateJob(ctx context.Context, userID, prompt string) (*models.ScrapeJob, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", models.ErrInvalidArgument)
	}
	prompt = strings.TrimSpace(prompt)
	if len(prompt) < models.PromptMinLength || len(prompt) > models.PromptMaxLength {
		return nil, fmt.Errorf("%w: prompt must be between %d and %d characters",
			models.ErrInvalidArgument, models.PromptMinLength, models.PromptMaxLength)
	}

	job := &models.ScrapeJob{
		ID:             uuid.New().String(),
		UserID:         userID,
		OriginalPrompt: prompt,
		Status:         models.JobStatusPending,
		CreatedAt:      time.Now().UTC(),
	}

	if err := s.db.Store().Insert(job.ID, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	s.logger.Debug().Str("job_id", job.ID).Str("user_id", userID).Msg("Job created")
	return job, nil
}

// GetJob returns the job regardless of owner
func (s *JobStorage) GetJob(ctx context.Context, jobID string) (*models.ScrapeJob, error) {
	var job models.ScrapeJob
	if err := s.db.Store().Get(jobID, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, models.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// GetJobOwned returns the job only when it belongs to userID. A job owned by
// someone else is indistinguishable from a missing one.
func (s *JobStorage) GetJobOwned(ctx context.Context, jobID, userID string) (*models.ScrapeJob, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, models.ErrJobNotFound
	}
	return job, nil
}

// GetJobByTrackingID finds the owner's job by provider tracking id
func (s *JobStorage) GetJobByTrackingID(ctx context.Context, userID, trackingID string) (*models.ScrapeJob, error) {
	var jobs []*models.ScrapeJob
	err := s.db.Store().Find(&jobs, badgerhold.Where("TrackingID").Eq(trackingID).And("UserID").Eq(userID))
	if err != nil {
		return nil, fmt.Errorf("failed to find job by tracking id: %w", err)
	}
	if len(jobs) == 0 {
		return nil, models.ErrJobNotFound
	}
	return jobs[0], nil
}

// ListJobsByUser returns the owner's jobs, newest first
func (s *JobStorage) ListJobsByUser(ctx context.Context, userID string) ([]*models.ScrapeJob, error) {
	var jobs []*models.ScrapeJob
	err := s.db.Store().Find(&jobs, badgerhold.Where("UserID").Eq(userID).SortBy("CreatedAt").Reverse())
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

// DeleteJob removes the owner's job
func (s *JobStorage) DeleteJob(ctx context.Context, jobID, userID string) error {
	s.locks.Lock(jobID)
	defer s.locks.Unlock(jobID)

	if _, err := s.GetJobOwned(ctx, jobID, userID); err != nil {
		return err
	}
	if err := s.db.Store().Delete(jobID, &models.ScrapeJob{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return models.ErrJobNotFound
		}
		return fmt.Errorf("failed to delete job: %w", err)
	}
	s.logger.Debug().Str("job_id", jobID).Msg("Job deleted")
	return nil
}

// transition loads the job, applies mutate under the per-job lock and writes
// the result back. mutate returning an error abandons the write.
func (s *JobStorage) transition(jobID string, mutate func(*models.ScrapeJob) error) error {
	s.locks.Lock(jobID)
	defer s.locks.Unlock(jobID)

	var job models.ScrapeJob
	if err := s.db.Store().Get(jobID, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return models.ErrJobNotFound
		}
		return fmt.Errorf("failed to get job: %w", err)
	}

	if err := mutate(&job); err != nil {
		return err
	}

	if err := s.db.Store().Update(jobID, &job); err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	return nil
}

// MarkSubmitted records the provider tracking id and moves PENDING or FAILED
// to RUNNING. A job already ANALYZING keeps its status and only records the
// tracking id: the webhook can land before the trigger call returns, and the
// late tracking id must not drag the job backwards.
func (s *JobStorage) MarkSubmitted(ctx context.Context, jobID, trackingID string) error {
	if trackingID == "" {
		return fmt.Errorf("%w: tracking id is required", models.ErrInvalidArgument)
	}
	err := s.transition(jobID, func(job *models.ScrapeJob) error {
		switch job.Status {
		case models.JobStatusPending, models.JobStatusFailed:
			job.TrackingID = trackingID
			job.Status = models.JobStatusRunning
			job.Error = ""
			job.CompletedAt = nil
			return nil
		case models.JobStatusAnalyzing:
			job.TrackingID = trackingID
			return nil
		default:
			return fmt.Errorf("%w: cannot submit job in status %s", models.ErrInvalidTransition, job.Status)
		}
	})
	if err == nil {
		s.logger.Info().Str("job_id", jobID).Str("tracking_id", trackingID).Msg("Job submitted to provider")
	}
	return err
}

// MarkAnalyzing moves RUNNING or FAILED -> ANALYZING. A job already ANALYZING
// is left untouched so redelivered queue messages stay harmless; resuming from
// FAILED clears the prior error so the worker can rerun cleanly.
func (s *JobStorage) MarkAnalyzing(ctx context.Context, jobID string) error {
	return s.transition(jobID, func(job *models.ScrapeJob) error {
		switch job.Status {
		case models.JobStatusRunning, models.JobStatusFailed:
			job.Status = models.JobStatusAnalyzing
			job.Error = ""
			job.CompletedAt = nil
			return nil
		case models.JobStatusAnalyzing:
			return nil
		default:
			return fmt.Errorf("%w: cannot start analysis from status %s", models.ErrInvalidTransition, job.Status)
		}
	})
}

// SaveRawData stores the provider's webhook payload and forces the job to
// ANALYZING regardless of its current status. A delivery can land while the
// job is still PENDING (the trigger call has not returned yet); the payload
// is accepted and MarkSubmitted fills in the tracking id afterwards.
func (s *JobStorage) SaveRawData(ctx context.Context, jobID string, data []map[string]interface{}) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: raw data must not be empty", models.ErrInvalidArgument)
	}
	return s.transition(jobID, func(job *models.ScrapeJob) error {
		job.RawResults = data
		job.Status = models.JobStatusAnalyzing
		job.Error = ""
		job.CompletedAt = nil
		return nil
	})
}

// SaveAnalysisPrompt persists the prompt handed to the LLM
func (s *JobStorage) SaveAnalysisPrompt(ctx context.Context, jobID, prompt string) error {
	if prompt == "" {
		return fmt.Errorf("%w: analysis prompt must not be empty", models.ErrInvalidArgument)
	}
	return s.transition(jobID, func(job *models.ScrapeJob) error {
		if job.Status != models.JobStatusAnalyzing {
			return fmt.Errorf("%w: cannot save analysis prompt in status %s", models.ErrInvalidTransition, job.Status)
		}
		job.AnalysisPrompt = prompt
		return nil
	})
}

// SaveReport validates the report against the schema before writing it
func (s *JobStorage) SaveReport(ctx context.Context, jobID string, report *models.SEOReport) error {
	if report == nil {
		return fmt.Errorf("%w: report must not be nil", models.ErrInvalidArgument)
	}
	if err := report.Validate(); err != nil {
		return err
	}
	return s.transition(jobID, func(job *models.ScrapeJob) error {
		if job.Status != models.JobStatusAnalyzing {
			return fmt.Errorf("%w: cannot save report in status %s", models.ErrInvalidTransition, job.Status)
		}
		job.Report = report
		return nil
	})
}

// MarkCompleted moves ANALYZING -> COMPLETED and stamps CompletedAt. The
// report must already be stored.
func (s *JobStorage) MarkCompleted(ctx context.Context, jobID string) error {
	err := s.transition(jobID, func(job *models.ScrapeJob) error {
		if job.Status != models.JobStatusAnalyzing {
			return fmt.Errorf("%w: cannot complete job in status %s", models.ErrInvalidTransition, job.Status)
		}
		if job.Report == nil {
			return fmt.Errorf("%w: cannot complete job without a report", models.ErrInvalidTransition)
		}
		now := time.Now().UTC()
		job.Status = models.JobStatusCompleted
		job.CompletedAt = &now
		job.Error = ""
		return nil
	})
	if err == nil {
		s.logger.Info().Str("job_id", jobID).Msg("Job completed")
	}
	return err
}

// MarkFailed moves any non-terminal status -> FAILED with the error message
func (s *JobStorage) MarkFailed(ctx context.Context, jobID, errMsg string) error {
	if errMsg == "" {
		return fmt.Errorf("%w: error message is required", models.ErrInvalidArgument)
	}
	err := s.transition(jobID, func(job *models.ScrapeJob) error {
		if job.Status.IsTerminal() {
			return fmt.Errorf("%w: cannot fail job in terminal status %s", models.ErrInvalidTransition, job.Status)
		}
		now := time.Now().UTC()
		job.Status = models.JobStatusFailed
		job.Error = errMsg
		job.CompletedAt = &now
		return nil
	})
	if err == nil {
		s.logger.Warn().Str("job_id", jobID).Str("error", errMsg).Msg("Job failed")
	}
	return err
}

// ResetForFullRetry moves FAILED or COMPLETED back to PENDING. Provider state
// and results are cleared; the analysis prompt survives for auditability.
func (s *JobStorage) ResetForFullRetry(ctx context.Context, jobID string) error {
	return s.transition(jobID, func(job *models.ScrapeJob) error {
		if !job.Status.IsTerminal() {
			return fmt.Errorf("%w: cannot retry job in status %s", models.ErrInvalidTransition, job.Status)
		}
		job.Status = models.JobStatusPending
		job.TrackingID = ""
		job.RawResults = nil
		job.Report = nil
		job.Error = ""
		job.CompletedAt = nil
		return nil
	})
}

// ResetForAnalysisRetry moves FAILED or COMPLETED back to ANALYZING, keeping
// the scraped data so the provider is not re-invoked.
func (s *JobStorage) ResetForAnalysisRetry(ctx context.Context, jobID string) error {
	return s.transition(jobID, func(job *models.ScrapeJob) error {
		if !job.Status.IsTerminal() {
			return fmt.Errorf("%w: cannot retry job in status %s", models.ErrInvalidTransition, job.Status)
		}
		if !job.HasScrapingData() {
			return fmt.Errorf("%w: analysis retry requires scraped data", models.ErrInvalidTransition)
		}
		job.Status = models.JobStatusAnalyzing
		job.Report = nil
		job.Error = ""
		job.CompletedAt = nil
		return nil
	})
}

// SmartRetryInfo reports whether the owner's job can skip the scrape phase.
// A missing or foreign-owned job answers with all flags false rather than an
// error, so the probe never leaks whether the job id exists.
func (s *JobStorage) SmartRetryInfo(ctx context.Context, jobID, userID string) (*models.SmartRetryInfo, error) {
	job, err := s.GetJobOwned(ctx, jobID, userID)
	if err != nil {
		if errors.Is(err, models.ErrJobNotFound) {
			return &models.SmartRetryInfo{}, nil
		}
		return nil, err
	}
	return &models.SmartRetryInfo{
		CanRetryAnalysisOnly: job.HasScrapingData() && job.HasAnalysisPrompt(),
		HasScrapingData:      job.HasScrapingData(),
		HasAnalysisPrompt:    job.HasAnalysisPrompt(),
	}, nil
}

// ListStaleAnalyzing returns jobs stuck in ANALYZING since before the cutoff
func (s *JobStorage) ListStaleAnalyzing(ctx context.Context, cutoff time.Time) ([]*models.ScrapeJob, error) {
	var jobs []*models.ScrapeJob
	err := s.db.Store().Find(&jobs, badgerhold.Where("Status").Eq(models.JobStatusAnalyzing).And("CreatedAt").Lt(cutoff))
	if err != nil {
		return nil, fmt.Errorf("failed to list stale jobs: %w", err)
	}
	return jobs, nil
}
