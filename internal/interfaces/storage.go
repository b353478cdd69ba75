package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/scrutor/internal/models"
)

// JobStorage persists scrape jobs. Status changes go through the named
// transition methods below; there is deliberately no generic field setter,
// so every write path enforces the lifecycle rules in one place.
type JobStorage interface {
	// CreateJob stores a new PENDING job for the owner.
	CreateJob(ctx context.Context, userID, prompt string) (*models.ScrapeJob, error)

	GetJob(ctx context.Context, jobID string) (*models.ScrapeJob, error)
	// GetJobOwned returns the job only when it belongs to userID.
	GetJobOwned(ctx context.Context, jobID, userID string) (*models.ScrapeJob, error)
	GetJobByTrackingID(ctx context.Context, userID, trackingID string) (*models.ScrapeJob, error)
	// ListJobsByUser returns the owner's jobs, newest first.
	ListJobsByUser(ctx context.Context, userID string) ([]*models.ScrapeJob, error)
	DeleteJob(ctx context.Context, jobID, userID string) error

	// MarkSubmitted records the provider tracking id and moves PENDING or
	// FAILED -> RUNNING. On a job already ANALYZING only the tracking id is
	// recorded, covering a webhook that beat the trigger response.
	MarkSubmitted(ctx context.Context, jobID, trackingID string) error
	// MarkAnalyzing moves RUNNING or FAILED -> ANALYZING. Calling it on a
	// job already ANALYZING is a no-op so queue redeliveries stay safe.
	MarkAnalyzing(ctx context.Context, jobID string) error
	// SaveRawData stores a validated webhook delivery and forces the job
	// into ANALYZING from any status, clearing any prior error.
	SaveRawData(ctx context.Context, jobID string, data []map[string]interface{}) error
	SaveAnalysisPrompt(ctx context.Context, jobID, prompt string) error
	// SaveReport validates the report against the schema before writing.
	SaveReport(ctx context.Context, jobID string, report *models.SEOReport) error
	// MarkCompleted moves ANALYZING -> COMPLETED and stamps CompletedAt.
	MarkCompleted(ctx context.Context, jobID string) error
	// MarkFailed moves any non-terminal status -> FAILED with the error
	// message, stamping CompletedAt.
	MarkFailed(ctx context.Context, jobID, errMsg string) error

	// ResetForFullRetry moves FAILED or COMPLETED back to PENDING, clearing
	// tracking id, raw results, report, error and completion time. The
	// analysis prompt is kept.
	ResetForFullRetry(ctx context.Context, jobID string) error
	// ResetForAnalysisRetry moves FAILED or COMPLETED back to ANALYZING,
	// keeping raw results and clearing only report, error and completion
	// time.
	ResetForAnalysisRetry(ctx context.Context, jobID string) error
	// SmartRetryInfo reports whether the owner's job can skip the scrape
	// phase on retry. A missing or foreign-owned job answers with all
	// flags false rather than an error.
	SmartRetryInfo(ctx context.Context, jobID, userID string) (*models.SmartRetryInfo, error)

	// ListStaleAnalyzing returns jobs stuck in ANALYZING since before the
	// cutoff, for the scheduler sweep.
	ListStaleAnalyzing(ctx context.Context, cutoff time.Time) ([]*models.ScrapeJob, error)
}

// AuthStorage persists API keys.
type AuthStorage interface {
	SaveAPIKey(ctx context.Context, key *models.APIKey) error
	// GetAPIKeysByPrefix returns candidate keys sharing the raw key's
	// 8-character prefix.
	GetAPIKeysByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	TouchAPIKey(ctx context.Context, keyID string) error
}

// QueueStorage is the badger-backed task queue.
type QueueStorage interface {
	Enqueue(ctx context.Context, task, payload string) (string, error)
	// Dequeue returns the next visible pending message, marking it in
	// flight until the visibility timeout. Returns nil when the queue is
	// empty.
	Dequeue(ctx context.Context) (*models.QueueMessage, error)
	// Ack marks the message done.
	Ack(ctx context.Context, messageID string) error
	// Fail records the error; the message is redelivered after the
	// visibility timeout, or dead-lettered once the receive limit is hit.
	Fail(ctx context.Context, messageID, errMsg string) (dead bool, err error)
	// HasPending reports whether an undelivered message for the task and
	// payload already exists.
	HasPending(ctx context.Context, task, payload string) (bool, error)
}

// StorageManager owns the shared badger connection and the stores on it.
type StorageManager interface {
	Jobs() JobStorage
	Auth() AuthStorage
	Queue() QueueStorage
	Close() error
}
