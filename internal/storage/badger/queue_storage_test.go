package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestQueueEnqueueDequeueAck(t *testing.T) {
	storage := NewQueueStorage(newTestDB(t), arbor.NewLogger(), time.Minute, 3)
	ctx := context.Background()

	id, err := storage.Enqueue(ctx, "analyze_job", `{"job_id":"j1"}`)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msg, err := storage.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "analyze_job", msg.Task)
	assert.Equal(t, `{"job_id":"j1"}`, msg.Payload)
	assert.Equal(t, 1, msg.ReceiveCount)

	// In flight: not visible to a second dequeue
	second, err := storage.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, second)

	require.NoError(t, storage.Ack(ctx, msg.ID))

	// Done: gone for good
	third, err := storage.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, third)
}

func TestQueueOrdering(t *testing.T) {
	storage := NewQueueStorage(newTestDB(t), arbor.NewLogger(), time.Minute, 3)
	ctx := context.Background()

	_, err := storage.Enqueue(ctx, "analyze_job", "first")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = storage.Enqueue(ctx, "analyze_job", "second")
	require.NoError(t, err)

	msg, err := storage.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "first", msg.Payload)
}

func TestQueueVisibilityTimeout(t *testing.T) {
	// Tiny visibility timeout so redelivery happens within the test
	storage := NewQueueStorage(newTestDB(t), arbor.NewLogger(), 20*time.Millisecond, 3)
	ctx := context.Background()

	_, err := storage.Enqueue(ctx, "analyze_job", "payload")
	require.NoError(t, err)

	msg, err := storage.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, msg)

	// Invisible until the timeout lapses
	invisible, err := storage.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, invisible)

	time.Sleep(30 * time.Millisecond)

	redelivered, err := storage.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, redelivered)
	assert.Equal(t, msg.ID, redelivered.ID)
	assert.Equal(t, 2, redelivered.ReceiveCount)
}

func TestQueueDeadLetter(t *testing.T) {
	storage := NewQueueStorage(newTestDB(t), arbor.NewLogger(), time.Millisecond, 2)
	ctx := context.Background()

	_, err := storage.Enqueue(ctx, "analyze_job", "payload")
	require.NoError(t, err)

	// First receive and failure: redelivered
	msg, err := storage.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, msg)
	dead, err := storage.Fail(ctx, msg.ID, "worker error")
	require.NoError(t, err)
	assert.False(t, dead)

	time.Sleep(5 * time.Millisecond)

	// Second receive hits the limit: dead-lettered
	msg, err = storage.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, 2, msg.ReceiveCount)
	dead, err = storage.Fail(ctx, msg.ID, "worker error again")
	require.NoError(t, err)
	assert.True(t, dead)

	time.Sleep(5 * time.Millisecond)

	// Dead messages are never redelivered
	gone, err := storage.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestQueueHasPending(t *testing.T) {
	storage := NewQueueStorage(newTestDB(t), arbor.NewLogger(), time.Minute, 3)
	ctx := context.Background()

	has, err := storage.HasPending(ctx, "analyze_job", "p1")
	require.NoError(t, err)
	assert.False(t, has)

	_, err = storage.Enqueue(ctx, "analyze_job", "p1")
	require.NoError(t, err)

	has, err = storage.HasPending(ctx, "analyze_job", "p1")
	require.NoError(t, err)
	assert.True(t, has)

	// Still pending while in flight
	msg, err := storage.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, msg)
	has, err = storage.HasPending(ctx, "analyze_job", "p1")
	require.NoError(t, err)
	assert.True(t, has)

	require.NoError(t, storage.Ack(ctx, msg.ID))
	has, err = storage.HasPending(ctx, "analyze_job", "p1")
	require.NoError(t, err)
	assert.False(t, has)
}
