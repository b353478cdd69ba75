package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/models"
	"github.com/ternarybob/scrutor/internal/services/orchestrator"
)

// JobHandler handles job-related API requests
type JobHandler struct {
	orchestrator *orchestrator.Orchestrator
	jobStorage   interfaces.JobStorage
	logger       arbor.ILogger
}

// NewJobHandler creates a new job handler
func NewJobHandler(orch *orchestrator.Orchestrator, jobStorage interfaces.JobStorage, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		orchestrator: orch,
		jobStorage:   jobStorage,
		logger:       logger,
	}
}

// CreateJobRequest is the body of POST /api/jobs.
type CreateJobRequest struct {
	Prompt      string `json:"prompt"`
	CountryCode string `json:"country_code,omitempty"`
	// ExistingJobID routes the request through the retry flow instead of
	// creating a new job.
	ExistingJobID string `json:"existing_job_id,omitempty"`
}

// CreateJobHandler creates a new research job and dispatches it to the
// scraping provider
// POST /api/jobs
func (h *JobHandler) CreateJobHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := UserIDFromContext(ctx)
	if !ok {
		WriteError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.ExistingJobID != "" {
		job, err := h.orchestrator.RetryJob(ctx, req.ExistingJobID, userID)
		if err != nil {
			h.logger.Warn().Err(err).Str("job_id", req.ExistingJobID).Msg("Retry via create endpoint failed")
			WriteServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, job)
		return
	}

	prompt := strings.TrimSpace(req.Prompt)
	if len(prompt) < models.PromptMinLength || len(prompt) > models.PromptMaxLength {
		WriteError(w, http.StatusBadRequest, "prompt must be between 2 and 255 characters")
		return
	}
	if req.CountryCode != "" && len(req.CountryCode) != 2 {
		WriteError(w, http.StatusBadRequest, "country_code must be a two-letter code")
		return
	}

	job, err := h.orchestrator.CreateJob(ctx, userID, prompt, req.CountryCode)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to create job")
		// The job record exists in FAILED state; report the submission error.
		WriteServiceError(w, err)
		return
	}

	h.logger.Info().Str("job_id", job.ID).Str("user_id", userID).Msg("Job created")
	WriteJSON(w, http.StatusCreated, job)
}

// ListJobsHandler returns the caller's jobs, newest first
// GET /api/jobs
func (h *JobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := UserIDFromContext(ctx)
	if !ok {
		WriteError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	jobs, err := h.jobStorage.ListJobsByUser(ctx, userID)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to list jobs")
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// GetJobHandler returns a single owned job
// GET /api/jobs/{id}
func (h *JobHandler) GetJobHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := UserIDFromContext(ctx)
	if !ok {
		WriteError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	jobID := jobIDFromPath(r.URL.Path)
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "job ID is required")
		return
	}

	job, err := h.jobStorage.GetJobOwned(ctx, jobID, userID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, job)
}

// GetJobBySnapshotHandler looks up an owned job by the provider's snapshot id
// GET /api/jobs/by-snapshot/{trackingId}
func (h *JobHandler) GetJobBySnapshotHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := UserIDFromContext(ctx)
	if !ok {
		WriteError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	trackingID := strings.TrimPrefix(r.URL.Path, "/api/jobs/by-snapshot/")
	if trackingID == "" || strings.Contains(trackingID, "/") {
		WriteError(w, http.StatusBadRequest, "snapshot ID is required")
		return
	}

	job, err := h.jobStorage.GetJobByTrackingID(ctx, userID, trackingID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, job)
}

// RetryJobHandler restarts a terminal job, re-running only the analysis phase
// when usable scraped data is already on hand
// POST /api/jobs/{id}/retry
func (h *JobHandler) RetryJobHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := UserIDFromContext(ctx)
	if !ok {
		WriteError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	jobID := jobIDFromPath(strings.TrimSuffix(r.URL.Path, "/retry"))
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "job ID is required")
		return
	}

	job, err := h.orchestrator.RetryJob(ctx, jobID, userID)
	if err != nil {
		h.logger.Warn().Err(err).Str("job_id", jobID).Msg("Retry failed")
		WriteServiceError(w, err)
		return
	}

	h.logger.Info().Str("job_id", jobID).Str("status", string(job.Status)).Msg("Job retry accepted")
	WriteJSON(w, http.StatusOK, job)
}

// GetRetryInfoHandler reports which retry path the job would take
// GET /api/jobs/{id}/retry-info
func (h *JobHandler) GetRetryInfoHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := UserIDFromContext(ctx)
	if !ok {
		WriteError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	jobID := jobIDFromPath(strings.TrimSuffix(r.URL.Path, "/retry-info"))
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "job ID is required")
		return
	}

	info, err := h.orchestrator.RetryInfo(ctx, jobID, userID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, info)
}

// DeleteJobHandler removes an owned job and all of its stored data
// DELETE /api/jobs/{id}
func (h *JobHandler) DeleteJobHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := UserIDFromContext(ctx)
	if !ok {
		WriteError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	jobID := jobIDFromPath(r.URL.Path)
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "job ID is required")
		return
	}

	if err := h.jobStorage.DeleteJob(ctx, jobID, userID); err != nil {
		h.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to delete job")
		WriteServiceError(w, err)
		return
	}

	h.logger.Info().Str("job_id", jobID).Msg("Job deleted")
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"job_id":  jobID,
		"message": "Job deleted successfully",
	})
}

// jobIDFromPath extracts the job id from /api/jobs/{id} style paths.
func jobIDFromPath(path string) string {
	pathParts := strings.Split(strings.Trim(path, "/"), "/")
	if len(pathParts) < 3 {
		return ""
	}
	return pathParts[2]
}
