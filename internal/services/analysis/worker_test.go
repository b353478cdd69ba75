package analysis

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/models"
	badgerstorage "github.com/ternarybob/scrutor/internal/storage/badger"
)

// stubLLM returns a canned response or error
type stubLLM struct {
	response string
	err      error
	gotMsgs  []interfaces.Message
}

func (s *stubLLM) Chat(ctx context.Context, messages []interfaces.Message) (string, error) {
	s.gotMsgs = messages
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func (s *stubLLM) ProviderName() string { return "stub" }
func (s *stubLLM) Close() error         { return nil }

// eventCollector records published events synchronously
type eventCollector struct {
	mu     sync.Mutex
	events []models.JobStatusEvent
}

func (c *eventCollector) Subscribe(handler interfaces.JobEventHandler) {}
func (c *eventCollector) Publish(event models.JobStatusEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}
func (c *eventCollector) Close() error { return nil }

func (c *eventCollector) statuses() []models.JobStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.JobStatus, len(c.events))
	for i, e := range c.events {
		out[i] = e.Status
	}
	return out
}

func newJobStorage(t *testing.T) interfaces.JobStorage {
	t.Helper()

	options := badgerhold.DefaultOptions
	options.Dir = t.TempDir()
	options.ValueDir = options.Dir
	options.Logger = nil

	store, err := badgerhold.Open(options)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return badgerstorage.NewJobStorageFromStore(store, arbor.NewLogger())
}

const validReportJSON = `{
	"meta": {
		"entity_name": "Acme",
		"entity_type": "business",
		"analysis_date": "2025-05-01",
		"data_sources_count": 1,
		"confidence_score": 0.8
	},
	"inventory": {"total_sources": 1, "unique_domains": ["acme.com"]},
	"content_analysis": {"content_themes": [], "sentiment": {"overall": "positive"}},
	"keywords": {"content_keywords": [], "keyword_themes": []},
	"social_presence": {"platforms": []},
	"backlink_analysis": {"total_backlinks": 0, "referring_domains": 0, "backlink_sources": []}
}`

func seedRunningJob(t *testing.T, jobs interfaces.JobStorage, withData bool) *models.ScrapeJob {
	t.Helper()
	ctx := context.Background()

	job, err := jobs.CreateJob(ctx, "user-1", "research acme")
	require.NoError(t, err)
	require.NoError(t, jobs.MarkSubmitted(ctx, job.ID, "snap-1"))
	if withData {
		require.NoError(t, jobs.SaveRawData(ctx, job.ID, []map[string]interface{}{
			{"url": "https://acme.com", "answer_text": "acme is a business"},
		}))
	}
	return job
}

func TestAnalyze_Success(t *testing.T) {
	jobs := newJobStorage(t)
	llm := &stubLLM{response: validReportJSON}
	collector := &eventCollector{}
	worker := NewWorker(jobs, llm, collector, arbor.NewLogger())
	ctx := context.Background()

	job := seedRunningJob(t, jobs, true)

	require.NoError(t, worker.Analyze(ctx, job.ID))

	got, err := jobs.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	require.NotNil(t, got.Report)
	assert.Equal(t, "Acme", got.Report.Meta.EntityName)
	assert.NotEmpty(t, got.AnalysisPrompt)

	assert.Equal(t, []models.JobStatus{models.JobStatusAnalyzing, models.JobStatusCompleted}, collector.statuses())

	// The LLM got a system instruction and the scraped data
	require.Len(t, llm.gotMsgs, 2)
	assert.Equal(t, "system", llm.gotMsgs[0].Role)
	assert.Contains(t, llm.gotMsgs[1].Content, "acme is a business")
}

func TestAnalyze_FencedResponse(t *testing.T) {
	jobs := newJobStorage(t)
	llm := &stubLLM{response: "```json\n" + validReportJSON + "\n```"}
	collector := &eventCollector{}
	worker := NewWorker(jobs, llm, collector, arbor.NewLogger())

	job := seedRunningJob(t, jobs, true)
	require.NoError(t, worker.Analyze(context.Background(), job.ID))

	got, err := jobs.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
}

func TestAnalyze_ResumesFailedJob(t *testing.T) {
	jobs := newJobStorage(t)
	llm := &stubLLM{response: validReportJSON}
	collector := &eventCollector{}
	worker := NewWorker(jobs, llm, collector, arbor.NewLogger())
	ctx := context.Background()

	// The job has data but a previous run failed; a redelivered task resumes it
	job := seedRunningJob(t, jobs, true)
	require.NoError(t, jobs.MarkFailed(ctx, job.ID, "model overloaded"))

	require.NoError(t, worker.Analyze(ctx, job.ID))

	got, err := jobs.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.Empty(t, got.Error)
	require.NotNil(t, got.Report)

	assert.Equal(t, []models.JobStatus{models.JobStatusAnalyzing, models.JobStatusCompleted}, collector.statuses())
}

func TestAnalyze_NoScrapingData(t *testing.T) {
	jobs := newJobStorage(t)
	collector := &eventCollector{}
	worker := NewWorker(jobs, &stubLLM{response: validReportJSON}, collector, arbor.NewLogger())
	ctx := context.Background()

	job := seedRunningJob(t, jobs, false)

	require.NoError(t, worker.Analyze(ctx, job.ID))

	got, err := jobs.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.Contains(t, got.Error, "no scraping data")

	assert.Equal(t, []models.JobStatus{models.JobStatusFailed}, collector.statuses())
}

func TestAnalyze_LLMError(t *testing.T) {
	jobs := newJobStorage(t)
	collector := &eventCollector{}
	worker := NewWorker(jobs, &stubLLM{err: fmt.Errorf("model overloaded")}, collector, arbor.NewLogger())
	ctx := context.Background()

	job := seedRunningJob(t, jobs, true)

	require.NoError(t, worker.Analyze(ctx, job.ID))

	got, err := jobs.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.Contains(t, got.Error, "model overloaded")

	assert.Equal(t, []models.JobStatus{models.JobStatusAnalyzing, models.JobStatusFailed}, collector.statuses())
}

func TestAnalyze_InvalidReport(t *testing.T) {
	jobs := newJobStorage(t)
	collector := &eventCollector{}
	worker := NewWorker(jobs, &stubLLM{response: `{"meta": null}`}, collector, arbor.NewLogger())
	ctx := context.Background()

	job := seedRunningJob(t, jobs, true)

	require.NoError(t, worker.Analyze(ctx, job.ID))

	got, err := jobs.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.Nil(t, got.Report)
}

func TestAnalyze_MissingJob(t *testing.T) {
	jobs := newJobStorage(t)
	collector := &eventCollector{}
	worker := NewWorker(jobs, &stubLLM{response: validReportJSON}, collector, arbor.NewLogger())

	require.NoError(t, worker.Analyze(context.Background(), "no-such-job"))
	assert.Equal(t, []models.JobStatus{models.JobStatusFailed}, collector.statuses())
}

func TestExtractJSON(t *testing.T) {
	assert.Equal(t, `{"a":1}`, extractJSON("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, extractJSON("here you go: {\"a\":1} hope that helps"))
	assert.Equal(t, `{"a":1}`, extractJSON(`{"a":1}`))
}
