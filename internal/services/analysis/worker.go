package analysis

import (
	"context"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/models"
)

// Worker runs the analysis phase for a job: it feeds the scraped payload to
// the LLM, validates the response against the report schema and moves the job
// to its terminal status. Every exit path, success or failure, publishes
// exactly one status event so live subscribers always learn the outcome.
type Worker struct {
	jobs   interfaces.JobStorage
	llm    interfaces.LLMService
	events interfaces.EventService
	logger arbor.ILogger
}

// NewWorker creates an analysis worker
func NewWorker(jobs interfaces.JobStorage, llm interfaces.LLMService, events interfaces.EventService, logger arbor.ILogger) *Worker {
	return &Worker{
		jobs:   jobs,
		llm:    llm,
		events: events,
		logger: logger,
	}
}

var _ interfaces.AnalysisService = (*Worker)(nil)

func (w *Worker) publish(jobID, userID string, status models.JobStatus, message string) {
	w.events.Publish(models.JobStatusEvent{
		JobID:     jobID,
		UserID:    userID,
		Status:    status,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
}

// fail marks the job FAILED and publishes the failure event. A job already in
// a terminal state is left alone but the event still goes out.
func (w *Worker) fail(ctx context.Context, jobID, userID, reason string) error {
	if err := w.jobs.MarkFailed(ctx, jobID, reason); err != nil {
		w.logger.Warn().Err(err).Str("job_id", jobID).Msg("Could not mark job failed")
	}
	w.publish(jobID, userID, models.JobStatusFailed, "Job analysis failed")
	return nil
}

// Analyze runs the full analysis flow for the job. Returning an error signals
// the queue to redeliver; terminal failures are absorbed here after the job
// is marked FAILED.
func (w *Worker) Analyze(ctx context.Context, jobID string) error {
	job, err := w.jobs.GetJob(ctx, jobID)
	if err != nil {
		w.logger.Error().Err(err).Str("job_id", jobID).Msg("No job found for analysis")
		w.publish(jobID, "", models.JobStatusFailed, "Job analysis failed")
		return nil
	}

	if !job.HasScrapingData() {
		w.logger.Error().Str("job_id", jobID).Msg("No scraping data available for job")
		return w.fail(ctx, jobID, job.UserID, "no scraping data available")
	}

	if err := w.jobs.MarkAnalyzing(ctx, jobID); err != nil {
		w.logger.Error().Err(err).Str("job_id", jobID).Msg("Cannot start analysis")
		w.publish(jobID, job.UserID, job.Status, "Job analysis could not start")
		return nil
	}
	w.publish(jobID, job.UserID, models.JobStatusAnalyzing, "Job analysis started")

	analysisPrompt, err := buildAnalysisPrompt(job.OriginalPrompt, job.RawResults)
	if err != nil {
		return w.fail(ctx, jobID, job.UserID, err.Error())
	}
	if err := w.jobs.SaveAnalysisPrompt(ctx, jobID, analysisPrompt); err != nil {
		return w.fail(ctx, jobID, job.UserID, err.Error())
	}

	w.logger.Info().Str("job_id", jobID).Str("provider", w.llm.ProviderName()).Msg("Running LLM analysis")

	response, err := w.llm.Chat(ctx, []interfaces.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: analysisPrompt},
	})
	if err != nil {
		w.logger.Error().Err(err).Str("job_id", jobID).Msg("LLM analysis failed")
		return w.fail(ctx, jobID, job.UserID, err.Error())
	}

	report, err := models.ParseSEOReport([]byte(extractJSON(response)))
	if err != nil {
		w.logger.Error().Err(err).Str("job_id", jobID).Msg("SEO report schema validation failed")
		return w.fail(ctx, jobID, job.UserID, err.Error())
	}

	if err := w.jobs.SaveReport(ctx, jobID, report); err != nil {
		return w.fail(ctx, jobID, job.UserID, err.Error())
	}
	if err := w.jobs.MarkCompleted(ctx, jobID); err != nil {
		return w.fail(ctx, jobID, job.UserID, err.Error())
	}

	w.publish(jobID, job.UserID, models.JobStatusCompleted, "Job analysis completed successfully")
	w.logger.Info().Str("job_id", jobID).Msg("Analysis completed")
	return nil
}

// extractJSON strips markdown code fences some models wrap around JSON
// output and trims to the outermost object.
func extractJSON(response string) string {
	s := strings.TrimSpace(response)

	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
