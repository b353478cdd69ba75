package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/scrutor/internal/interfaces"
)

// Task names understood by the dispatcher
const (
	TaskAnalyzeJob = "analyze_job"
)

// TaskQueue is the producer side of the queue: it encodes task payloads and
// hands them to storage.
type TaskQueue struct {
	storage interfaces.QueueStorage
	logger  arbor.ILogger
}

// NewTaskQueue creates the producer wrapper over queue storage
func NewTaskQueue(storage interfaces.QueueStorage, logger arbor.ILogger) interfaces.TaskQueue {
	return &TaskQueue{
		storage: storage,
		logger:  logger,
	}
}

// Enqueue encodes the payload and stores the task message. Enqueueing a task
// whose identical payload is already pending is skipped, so repeated webhook
// deliveries do not fan out into duplicate work.
func (q *TaskQueue) Enqueue(ctx context.Context, task string, payload map[string]string) (string, error) {
	encoded, err := EncodePayload(payload)
	if err != nil {
		return "", err
	}

	pending, err := q.storage.HasPending(ctx, task, encoded)
	if err != nil {
		return "", err
	}
	if pending {
		q.logger.Debug().Str("task", task).Msg("Identical task already pending, skipping enqueue")
		return "", nil
	}

	return q.storage.Enqueue(ctx, task, encoded)
}

// EncodePayload renders a payload map as canonical JSON (keys sorted)
func EncodePayload(payload map[string]string) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode task payload: %w", err)
	}
	return string(data), nil
}

// DecodePayload parses a payload produced by EncodePayload
func DecodePayload(encoded string) (map[string]string, error) {
	var payload map[string]string
	if err := json.Unmarshal([]byte(encoded), &payload); err != nil {
		return nil, fmt.Errorf("failed to decode task payload: %w", err)
	}
	return payload, nil
}
