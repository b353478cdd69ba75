package models

import (
	"time"
)

// QueueMessageStatus is the delivery state of a queued task message.
type QueueMessageStatus string

const (
	QueueMessagePending  QueueMessageStatus = "pending"
	QueueMessageInFlight QueueMessageStatus = "in_flight"
	QueueMessageDone     QueueMessageStatus = "done"
	QueueMessageDead     QueueMessageStatus = "dead"
)

// QueueMessage is one persisted background task. Messages become invisible
// for the visibility timeout after dequeue; a message received more than
// MaxReceive times is dead-lettered instead of redelivered.
type QueueMessage struct {
	ID           string             `badgerhold:"key" json:"id"`
	Task         string             `badgerhold:"index" json:"task"`
	Payload      string             `json:"payload"`
	Status       QueueMessageStatus `badgerhold:"index" json:"status"`
	ReceiveCount int                `json:"receive_count"`
	VisibleAt    time.Time          `json:"visible_at"`
	EnqueuedAt   time.Time          `json:"enqueued_at"`
	LastError    string             `json:"last_error,omitempty"`
}
