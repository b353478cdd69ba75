package interfaces

import (
	"context"

	"github.com/ternarybob/scrutor/internal/models"
)

// Message is a single turn in an LLM conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// LLMService generates text from a conversation. Implementations wrap a
// specific provider SDK.
type LLMService interface {
	Chat(ctx context.Context, messages []Message) (string, error)
	ProviderName() string
	Close() error
}

// ProviderClient submits scrape requests to the data provider.
type ProviderClient interface {
	// Submit triggers a scrape for the prompt and returns the provider's
	// tracking id. countryCode is a two-letter code, empty for default.
	Submit(ctx context.Context, jobID, prompt, countryCode string) (string, error)
}

// TaskQueue enqueues background tasks for the dispatcher.
type TaskQueue interface {
	Enqueue(ctx context.Context, task string, payload map[string]string) (string, error)
}

// JobEventHandler receives job status events published on the bus.
type JobEventHandler func(event models.JobStatusEvent)

// EventService is the in-process pub/sub bus for job status changes.
type EventService interface {
	Subscribe(handler JobEventHandler)
	Publish(event models.JobStatusEvent)
	Close() error
}

// AuthService issues and verifies API keys.
type AuthService interface {
	// IssueKey mints a new key for the user and returns the raw secret,
	// shown exactly once.
	IssueKey(ctx context.Context, userID, name string) (string, *models.APIKey, error)
	// Authenticate resolves a raw key to its owning user id.
	Authenticate(ctx context.Context, rawKey string) (string, error)
}

// AnalysisService runs the LLM analysis phase for a job.
type AnalysisService interface {
	Analyze(ctx context.Context, jobID string) error
}
