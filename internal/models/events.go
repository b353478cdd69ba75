package models

import (
	"fmt"
	"time"
)

// JobStatusEvent is the payload published on every job status transition and
// fanned out to the user's live feed and the job's room.
type JobStatusEvent struct {
	JobID     string    `json:"job_id"`
	UserID    string    `json:"user_id"`
	Status    JobStatus `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// UserGroup returns the subscriber group key covering all of a user's jobs.
func UserGroup(userID string) string {
	return fmt.Sprintf("user:%s:jobs", userID)
}

// JobGroup returns the subscriber group key for a single job's room.
func JobGroup(jobID string) string {
	return fmt.Sprintf("job:%s", jobID)
}
