package models

import (
	"time"
)

// JobStatus represents the lifecycle state of a scrape job
type JobStatus string

const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusAnalyzing JobStatus = "ANALYZING"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusFailed    JobStatus = "FAILED"
)

// IsTerminal reports whether the status is a terminal state.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// IsValid reports whether the status is one of the five known values.
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusPending, JobStatusRunning, JobStatusAnalyzing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// Prompt length bounds enforced at creation and on the HTTP surface.
const (
	PromptMinLength = 2
	PromptMaxLength = 255
)

// ScrapeJob tracks one user-initiated research request through scraping and
// analysis.
//
// Lifecycle: PENDING -> RUNNING -> ANALYZING -> COMPLETED/FAILED, with retry
// transitions back to PENDING (full retry) or ANALYZING (analysis-only retry).
// All mutations go through the named JobStorage transition operations so that
// status and its dependent fields always change together:
//   - TrackingID set => status is never PENDING
//   - CompletedAt set <=> status is COMPLETED or FAILED
//   - Report set => it passed schema validation at write time
type ScrapeJob struct {
	ID     string `badgerhold:"key" json:"id"`
	UserID string `badgerhold:"index" json:"user_id"`

	// OriginalPrompt is the user's research prompt, 2..255 chars.
	OriginalPrompt string `json:"original_prompt"`

	// AnalysisPrompt is the full prompt sent to the LLM, persisted for
	// auditability and for smart-retry eligibility. Set once per analysis
	// attempt.
	AnalysisPrompt string `json:"analysis_prompt,omitempty"`

	// TrackingID is the provider's snapshot handle used to correlate webhook
	// deliveries. Empty until submission succeeds; cleared on full retry.
	TrackingID string `badgerhold:"index" json:"tracking_id,omitempty"`

	Status JobStatus `badgerhold:"index" json:"status"`

	// RawResults is the payload delivered by the provider webhook. Always a
	// list; a single-object delivery is wrapped before storage.
	RawResults []map[string]interface{} `json:"raw_results,omitempty"`

	// Report is the schema-validated analysis output.
	Report *SEOReport `json:"report,omitempty"`

	// Error holds the last failure description. Cleared whenever a forward
	// transition is attempted.
	Error string `json:"error,omitempty"`

	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `badgerhold:"index" json:"created_at"`
}

// HasScrapingData reports whether the webhook has delivered a non-empty
// payload for this job.
func (j *ScrapeJob) HasScrapingData() bool {
	return len(j.RawResults) > 0
}

// HasAnalysisPrompt reports whether an analysis prompt has been persisted.
func (j *ScrapeJob) HasAnalysisPrompt() bool {
	return j.AnalysisPrompt != ""
}

// SmartRetryInfo is the tri-state retry eligibility probe. Re-scraping is
// paid and rate-limited while re-analysis is cheap, so the retry flow must
// never re-invoke the provider when usable raw data already exists.
type SmartRetryInfo struct {
	CanRetryAnalysisOnly bool `json:"can_retry_analysis_only"`
	HasScrapingData      bool `json:"has_scraping_data"`
	HasAnalysisPrompt    bool `json:"has_analysis_prompt"`
}
