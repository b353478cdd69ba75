package badger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/scrutor/internal/models"
)

func newTestDB(t *testing.T) *BadgerDB {
	t.Helper()

	options := badgerhold.DefaultOptions
	options.Dir = t.TempDir()
	options.ValueDir = options.Dir
	options.Logger = nil

	store, err := badgerhold.Open(options)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return &BadgerDB{store: store}
}

func validReport() *models.SEOReport {
	return &models.SEOReport{
		Meta: &models.ReportMeta{
			EntityName:       "Acme Corp",
			EntityType:       "business",
			AnalysisDate:     "2025-06-01",
			DataSourcesCount: 3,
			ConfidenceScore:  0.9,
		},
		Inventory: &models.Inventory{
			TotalSources:  3,
			UniqueDomains: []string{"example.com"},
		},
		ContentAnalysis: &models.ContentAnalysis{
			Sentiment: &models.Sentiment{Overall: "positive"},
		},
		Keywords:         &models.Keywords{},
		SocialPresence:   &models.SocialPresence{},
		BacklinkAnalysis: &models.BacklinkAnalysis{},
	}
}

func TestJobLifecycle(t *testing.T) {
	storage := NewJobStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()

	job, err := storage.CreateJob(ctx, "user-1", "research acme corp seo")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Empty(t, job.TrackingID)
	assert.Nil(t, job.CompletedAt)

	require.NoError(t, storage.MarkSubmitted(ctx, job.ID, "snap-123"))
	got, err := storage.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, got.Status)
	assert.Equal(t, "snap-123", got.TrackingID)

	data := []map[string]interface{}{{"url": "https://example.com", "answer_text": "hello"}}
	require.NoError(t, storage.SaveRawData(ctx, job.ID, data))

	// Validated webhook delivery forces the job into ANALYZING.
	got, err = storage.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusAnalyzing, got.Status)

	require.NoError(t, storage.MarkAnalyzing(ctx, job.ID))
	require.NoError(t, storage.SaveAnalysisPrompt(ctx, job.ID, "analyze this"))
	require.NoError(t, storage.SaveReport(ctx, job.ID, validReport()))
	require.NoError(t, storage.MarkCompleted(ctx, job.ID))

	got, err = storage.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	require.NotNil(t, got.Report)
	assert.Equal(t, "Acme Corp", got.Report.Meta.EntityName)
}

func TestCreateJob_PromptBounds(t *testing.T) {
	storage := NewJobStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()

	_, err := storage.CreateJob(ctx, "user-1", "x")
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	long := make([]byte, models.PromptMaxLength+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err = storage.CreateJob(ctx, "user-1", string(long))
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	_, err = storage.CreateJob(ctx, "user-1", "ok")
	assert.NoError(t, err)
}

func TestInvalidTransitions(t *testing.T) {
	storage := NewJobStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()

	job, err := storage.CreateJob(ctx, "user-1", "some prompt")
	require.NoError(t, err)

	// PENDING: cannot analyze or complete
	assert.ErrorIs(t, storage.MarkAnalyzing(ctx, job.ID), models.ErrInvalidTransition)
	assert.ErrorIs(t, storage.MarkCompleted(ctx, job.ID), models.ErrInvalidTransition)

	// Submitting with an empty tracking id is rejected
	assert.ErrorIs(t, storage.MarkSubmitted(ctx, job.ID, ""), models.ErrInvalidArgument)

	require.NoError(t, storage.MarkSubmitted(ctx, job.ID, "snap-1"))
	// Double submit is rejected
	assert.ErrorIs(t, storage.MarkSubmitted(ctx, job.ID, "snap-2"), models.ErrInvalidTransition)

	// Completing without a report is rejected
	require.NoError(t, storage.MarkAnalyzing(ctx, job.ID))
	assert.ErrorIs(t, storage.MarkCompleted(ctx, job.ID), models.ErrInvalidTransition)

	// MarkAnalyzing from ANALYZING is a no-op
	assert.NoError(t, storage.MarkAnalyzing(ctx, job.ID))

	// Failing a terminal job is rejected
	require.NoError(t, storage.MarkFailed(ctx, job.ID, "llm unavailable"))
	assert.ErrorIs(t, storage.MarkFailed(ctx, job.ID, "again"), models.ErrInvalidTransition)
}

func TestMarkFailed(t *testing.T) {
	storage := NewJobStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()

	job, err := storage.CreateJob(ctx, "user-1", "some prompt")
	require.NoError(t, err)

	require.NoError(t, storage.MarkFailed(ctx, job.ID, "provider timeout"))

	got, err := storage.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.Equal(t, "provider timeout", got.Error)
	require.NotNil(t, got.CompletedAt)
	assert.WithinDuration(t, time.Now(), *got.CompletedAt, 5*time.Second)

	// A failure without a diagnostic message is rejected
	other, err := storage.CreateJob(ctx, "user-1", "another prompt")
	require.NoError(t, err)
	assert.ErrorIs(t, storage.MarkFailed(ctx, other.ID, ""), models.ErrInvalidArgument)
}

func TestSaveRawDataBeforeSubmit(t *testing.T) {
	storage := NewJobStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()

	job, err := storage.CreateJob(ctx, "user-1", "some prompt")
	require.NoError(t, err)

	// Delivery lands while the trigger call is still in flight
	require.NoError(t, storage.SaveRawData(ctx, job.ID, []map[string]interface{}{{"url": "u"}}))

	got, err := storage.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusAnalyzing, got.Status)
	assert.Empty(t, got.TrackingID)

	// The late tracking id is recorded without regressing the status
	require.NoError(t, storage.MarkSubmitted(ctx, job.ID, "snap-late"))

	got, err = storage.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusAnalyzing, got.Status)
	assert.Equal(t, "snap-late", got.TrackingID)
	assert.Len(t, got.RawResults, 1)
}

func TestResumeFromFailed(t *testing.T) {
	storage := NewJobStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()

	job, err := storage.CreateJob(ctx, "user-1", "some prompt")
	require.NoError(t, err)
	require.NoError(t, storage.MarkFailed(ctx, job.ID, "provider timeout"))

	// A redelivered analyze task resumes a job another path marked FAILED
	require.NoError(t, storage.MarkAnalyzing(ctx, job.ID))

	got, err := storage.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusAnalyzing, got.Status)
	assert.Empty(t, got.Error)
	assert.Nil(t, got.CompletedAt)

	// Resubmission after a failure goes back through RUNNING
	other, err := storage.CreateJob(ctx, "user-1", "another prompt")
	require.NoError(t, err)
	require.NoError(t, storage.MarkFailed(ctx, other.ID, "trigger rejected"))
	require.NoError(t, storage.MarkSubmitted(ctx, other.ID, "snap-2"))

	got, err = storage.GetJob(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, got.Status)
	assert.Equal(t, "snap-2", got.TrackingID)
	assert.Empty(t, got.Error)
	assert.Nil(t, got.CompletedAt)
}

func TestResetForFullRetry(t *testing.T) {
	storage := NewJobStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()

	job, err := storage.CreateJob(ctx, "user-1", "some prompt")
	require.NoError(t, err)
	require.NoError(t, storage.MarkSubmitted(ctx, job.ID, "snap-1"))
	require.NoError(t, storage.SaveRawData(ctx, job.ID, []map[string]interface{}{{"url": "u"}}))
	require.NoError(t, storage.MarkAnalyzing(ctx, job.ID))
	require.NoError(t, storage.SaveAnalysisPrompt(ctx, job.ID, "the prompt"))
	require.NoError(t, storage.MarkFailed(ctx, job.ID, "boom"))

	require.NoError(t, storage.ResetForFullRetry(ctx, job.ID))

	got, err := storage.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, got.Status)
	assert.Empty(t, got.TrackingID)
	assert.Nil(t, got.RawResults)
	assert.Nil(t, got.Report)
	assert.Empty(t, got.Error)
	assert.Nil(t, got.CompletedAt)
	// analysis prompt is kept
	assert.Equal(t, "the prompt", got.AnalysisPrompt)

	// Retry from a non-terminal status is rejected
	assert.ErrorIs(t, storage.ResetForFullRetry(ctx, job.ID), models.ErrInvalidTransition)
}

func TestResetForAnalysisRetry(t *testing.T) {
	storage := NewJobStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()

	job, err := storage.CreateJob(ctx, "user-1", "some prompt")
	require.NoError(t, err)
	require.NoError(t, storage.MarkSubmitted(ctx, job.ID, "snap-1"))
	require.NoError(t, storage.SaveRawData(ctx, job.ID, []map[string]interface{}{{"url": "u"}}))
	require.NoError(t, storage.MarkAnalyzing(ctx, job.ID))
	require.NoError(t, storage.MarkFailed(ctx, job.ID, "llm error"))

	require.NoError(t, storage.ResetForAnalysisRetry(ctx, job.ID))

	got, err := storage.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusAnalyzing, got.Status)
	assert.NotNil(t, got.RawResults)
	assert.Nil(t, got.Report)
	assert.Nil(t, got.CompletedAt)
}

func TestResetForAnalysisRetry_RequiresData(t *testing.T) {
	storage := NewJobStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()

	job, err := storage.CreateJob(ctx, "user-1", "some prompt")
	require.NoError(t, err)
	require.NoError(t, storage.MarkFailed(ctx, job.ID, "submit failed"))

	assert.ErrorIs(t, storage.ResetForAnalysisRetry(ctx, job.ID), models.ErrInvalidTransition)
}

func TestSaveReport_RejectsInvalidSchema(t *testing.T) {
	storage := NewJobStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()

	job, err := storage.CreateJob(ctx, "user-1", "some prompt")
	require.NoError(t, err)
	require.NoError(t, storage.MarkSubmitted(ctx, job.ID, "snap-1"))
	require.NoError(t, storage.MarkAnalyzing(ctx, job.ID))

	// Missing report_meta and inventory
	err = storage.SaveReport(ctx, job.ID, &models.SEOReport{})
	require.Error(t, err)
	assert.True(t, models.IsSchemaValidationError(err))

	got, err := storage.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Report)
}

func TestOwnerScoping(t *testing.T) {
	storage := NewJobStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()

	job, err := storage.CreateJob(ctx, "user-1", "some prompt")
	require.NoError(t, err)

	_, err = storage.GetJobOwned(ctx, job.ID, "user-2")
	assert.ErrorIs(t, err, models.ErrJobNotFound)

	got, err := storage.GetJobOwned(ctx, job.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)

	// Delete is owner-scoped too
	assert.ErrorIs(t, storage.DeleteJob(ctx, job.ID, "user-2"), models.ErrJobNotFound)
	require.NoError(t, storage.DeleteJob(ctx, job.ID, "user-1"))

	_, err = storage.GetJob(ctx, job.ID)
	assert.ErrorIs(t, err, models.ErrJobNotFound)
}

func TestGetJobByTrackingID(t *testing.T) {
	storage := NewJobStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()

	job, err := storage.CreateJob(ctx, "user-1", "some prompt")
	require.NoError(t, err)
	require.NoError(t, storage.MarkSubmitted(ctx, job.ID, "snap-abc"))

	got, err := storage.GetJobByTrackingID(ctx, "user-1", "snap-abc")
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)

	_, err = storage.GetJobByTrackingID(ctx, "user-2", "snap-abc")
	assert.ErrorIs(t, err, models.ErrJobNotFound)

	_, err = storage.GetJobByTrackingID(ctx, "user-1", "snap-missing")
	assert.ErrorIs(t, err, models.ErrJobNotFound)
}

func TestListJobsByUser(t *testing.T) {
	storage := NewJobStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := storage.CreateJob(ctx, "user-1", "some prompt")
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}
	_, err := storage.CreateJob(ctx, "user-2", "other prompt")
	require.NoError(t, err)

	jobs, err := storage.ListJobsByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	// Newest first
	assert.True(t, jobs[0].CreatedAt.After(jobs[2].CreatedAt) || jobs[0].CreatedAt.Equal(jobs[2].CreatedAt))

	jobs, err = storage.ListJobsByUser(ctx, "user-3")
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestSmartRetryInfo(t *testing.T) {
	storage := NewJobStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()

	job, err := storage.CreateJob(ctx, "user-1", "some prompt")
	require.NoError(t, err)

	info, err := storage.SmartRetryInfo(ctx, job.ID, "user-1")
	require.NoError(t, err)
	assert.False(t, info.CanRetryAnalysisOnly)
	assert.False(t, info.HasScrapingData)

	require.NoError(t, storage.MarkSubmitted(ctx, job.ID, "snap-1"))
	require.NoError(t, storage.SaveRawData(ctx, job.ID, []map[string]interface{}{{"url": "u"}}))

	// Raw data alone is not enough for an analysis-only retry.
	info, err = storage.SmartRetryInfo(ctx, job.ID, "user-1")
	require.NoError(t, err)
	assert.False(t, info.CanRetryAnalysisOnly)
	assert.True(t, info.HasScrapingData)
	assert.False(t, info.HasAnalysisPrompt)

	require.NoError(t, storage.SaveAnalysisPrompt(ctx, job.ID, "the prompt"))

	info, err = storage.SmartRetryInfo(ctx, job.ID, "user-1")
	require.NoError(t, err)
	assert.True(t, info.CanRetryAnalysisOnly)
	assert.True(t, info.HasAnalysisPrompt)

	// A foreign-owned job answers all-false instead of revealing it exists
	info, err = storage.SmartRetryInfo(ctx, job.ID, "user-2")
	require.NoError(t, err)
	assert.False(t, info.CanRetryAnalysisOnly)
	assert.False(t, info.HasScrapingData)
	assert.False(t, info.HasAnalysisPrompt)

	// Same for an unknown job id
	info, err = storage.SmartRetryInfo(ctx, "no-such-job", "user-1")
	require.NoError(t, err)
	assert.False(t, info.CanRetryAnalysisOnly)
	assert.False(t, info.HasScrapingData)
	assert.False(t, info.HasAnalysisPrompt)
}

func TestListStaleAnalyzing(t *testing.T) {
	storage := NewJobStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()

	job, err := storage.CreateJob(ctx, "user-1", "some prompt")
	require.NoError(t, err)
	require.NoError(t, storage.MarkSubmitted(ctx, job.ID, "snap-1"))
	require.NoError(t, storage.MarkAnalyzing(ctx, job.ID))

	stale, err := storage.ListStaleAnalyzing(ctx, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Empty(t, stale)

	stale, err = storage.ListStaleAnalyzing(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, job.ID, stale[0].ID)
}

func TestConcurrentTransitions(t *testing.T) {
	storage := NewJobStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()

	job, err := storage.CreateJob(ctx, "user-1", "some prompt")
	require.NoError(t, err)

	// Many concurrent submit attempts: exactly one wins
	results := make(chan error, 10)
	for i := 0; i < 10; i++ {
		go func(n int) {
			results <- storage.MarkSubmitted(ctx, job.ID, "snap-1")
		}(i)
	}

	var succeeded int
	for i := 0; i < 10; i++ {
		if err := <-results; err == nil {
			succeeded++
		} else {
			assert.True(t, errors.Is(err, models.ErrInvalidTransition))
		}
	}
	assert.Equal(t, 1, succeeded)
}
