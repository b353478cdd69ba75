package badger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/models"
)

// QueueStorage implements the QueueStorage interface for Badger. Dequeued
// messages stay invisible until the visibility timeout elapses; messages
// that exceed maxReceive deliveries are dead-lettered.
type QueueStorage struct {
	db                *BadgerDB
	logger            arbor.ILogger
	visibilityTimeout time.Duration
	maxReceive        int

	// Serializes dequeue so two workers never take the same message.
	dequeueMu sync.Mutex
}

// NewQueueStorage creates a new QueueStorage instance
func NewQueueStorage(db *BadgerDB, logger arbor.ILogger, visibilityTimeout time.Duration, maxReceive int) interfaces.QueueStorage {
	return &QueueStorage{
		db:                db,
		logger:            logger,
		visibilityTimeout: visibilityTimeout,
		maxReceive:        maxReceive,
	}
}

// NewQueueStorageFromStore wraps an existing badgerhold store. Useful for
// tests that manage the store lifecycle themselves.
func NewQueueStorageFromStore(store *badgerhold.Store, logger arbor.ILogger, visibilityTimeout time.Duration, maxReceive int) interfaces.QueueStorage {
	return NewQueueStorage(&BadgerDB{store: store}, logger, visibilityTimeout, maxReceive)
}

// Enqueue stores a new pending message, immediately visible
func (s *QueueStorage) Enqueue(ctx context.Context, task, payload string) (string, error) {
	if task == "" {
		return "", fmt.Errorf("%w: task name is required", models.ErrInvalidArgument)
	}

	msg := &models.QueueMessage{
		ID:         uuid.New().String(),
		Task:       task,
		Payload:    payload,
		Status:     models.QueueMessagePending,
		VisibleAt:  time.Now().UTC(),
		EnqueuedAt: time.Now().UTC(),
	}

	if err := s.db.Store().Insert(msg.ID, msg); err != nil {
		return "", fmt.Errorf("failed to enqueue message: %w", err)
	}

	s.logger.Debug().Str("message_id", msg.ID).Str("task", task).Msg("Message enqueued")
	return msg.ID, nil
}

// Dequeue returns the next visible message, oldest first, marking it in
// flight. In-flight messages whose visibility timeout lapsed are picked up
// again here. Returns nil when nothing is available.
func (s *QueueStorage) Dequeue(ctx context.Context) (*models.QueueMessage, error) {
	s.dequeueMu.Lock()
	defer s.dequeueMu.Unlock()

	now := time.Now().UTC()

	var candidates []*models.QueueMessage
	err := s.db.Store().Find(&candidates,
		badgerhold.Where("Status").In(models.QueueMessagePending, models.QueueMessageInFlight).
			SortBy("EnqueuedAt"))
	if err != nil {
		return nil, fmt.Errorf("failed to scan queue: %w", err)
	}

	for _, msg := range candidates {
		if msg.VisibleAt.After(now) {
			continue
		}

		msg.Status = models.QueueMessageInFlight
		msg.ReceiveCount++
		msg.VisibleAt = now.Add(s.visibilityTimeout)

		if err := s.db.Store().Update(msg.ID, msg); err != nil {
			return nil, fmt.Errorf("failed to mark message in flight: %w", err)
		}

		s.logger.Trace().
			Str("message_id", msg.ID).
			Str("task", msg.Task).
			Int("receive_count", msg.ReceiveCount).
			Msg("Message dequeued")
		return msg, nil
	}

	return nil, nil
}

// Ack marks the message done
func (s *QueueStorage) Ack(ctx context.Context, messageID string) error {
	var msg models.QueueMessage
	if err := s.db.Store().Get(messageID, &msg); err != nil {
		if err == badgerhold.ErrNotFound {
			return fmt.Errorf("message not found: %s", messageID)
		}
		return fmt.Errorf("failed to get message: %w", err)
	}

	msg.Status = models.QueueMessageDone
	if err := s.db.Store().Update(messageID, &msg); err != nil {
		return fmt.Errorf("failed to ack message: %w", err)
	}
	return nil
}

// Fail records the error. The message becomes visible again after the
// visibility timeout unless the receive limit is reached, in which case it
// is dead-lettered and dead=true is returned.
func (s *QueueStorage) Fail(ctx context.Context, messageID, errMsg string) (bool, error) {
	var msg models.QueueMessage
	if err := s.db.Store().Get(messageID, &msg); err != nil {
		if err == badgerhold.ErrNotFound {
			return false, fmt.Errorf("message not found: %s", messageID)
		}
		return false, fmt.Errorf("failed to get message: %w", err)
	}

	msg.LastError = errMsg

	dead := msg.ReceiveCount >= s.maxReceive
	if dead {
		msg.Status = models.QueueMessageDead
		s.logger.Warn().
			Str("message_id", messageID).
			Str("task", msg.Task).
			Int("receive_count", msg.ReceiveCount).
			Str("error", errMsg).
			Msg("Message dead-lettered")
	} else {
		msg.Status = models.QueueMessagePending
		msg.VisibleAt = time.Now().UTC().Add(s.visibilityTimeout)
	}

	if err := s.db.Store().Update(messageID, &msg); err != nil {
		return false, fmt.Errorf("failed to update message: %w", err)
	}
	return dead, nil
}

// HasPending reports whether an undelivered message for the task and payload
// already exists. Used to avoid double-enqueueing the same work.
func (s *QueueStorage) HasPending(ctx context.Context, task, payload string) (bool, error) {
	count, err := s.db.Store().Count(&models.QueueMessage{},
		badgerhold.Where("Task").Eq(task).
			And("Payload").Eq(payload).
			And("Status").In(models.QueueMessagePending, models.QueueMessageInFlight))
	if err != nil {
		return false, fmt.Errorf("failed to count pending messages: %w", err)
	}
	return count > 0, nil
}
