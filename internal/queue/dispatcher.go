package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/scrutor/internal/interfaces"
)

// HandlerFunc processes one queue message payload. Returning an error sends
// the message back for redelivery until the receive limit dead-letters it.
type HandlerFunc func(ctx context.Context, payload string) error

// Dispatcher polls the persistent queue with a pool of workers and routes
// messages to registered task handlers.
type Dispatcher struct {
	storage      interfaces.QueueStorage
	handlers     map[string]HandlerFunc
	deadHandlers map[string]HandlerFunc
	pollInterval time.Duration
	concurrency  int
	logger       arbor.ILogger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewDispatcher creates a dispatcher over the queue storage
func NewDispatcher(storage interfaces.QueueStorage, pollInterval time.Duration, concurrency int, logger arbor.ILogger) *Dispatcher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Dispatcher{
		storage:      storage,
		handlers:     make(map[string]HandlerFunc),
		deadHandlers: make(map[string]HandlerFunc),
		pollInterval: pollInterval,
		concurrency:  concurrency,
		logger:       logger,
	}
}

// Register binds a handler to a task name. Must be called before Start.
func (d *Dispatcher) Register(task string, handler HandlerFunc) {
	d.handlers[task] = handler
}

// RegisterDeadHandler binds a handler invoked once when a message for the
// task is dead-lettered. Must be called before Start.
func (d *Dispatcher) RegisterDeadHandler(task string, handler HandlerFunc) {
	d.deadHandlers[task] = handler
}

// Start launches the worker pool
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return fmt.Errorf("dispatcher already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.started = true

	for i := 0; i < d.concurrency; i++ {
		d.wg.Add(1)
		go d.worker(runCtx, i)
	}

	d.logger.Info().
		Int("concurrency", d.concurrency).
		Dur("poll_interval", d.pollInterval).
		Msg("Queue dispatcher started")
	return nil
}

// Stop halts polling and waits for in-flight handlers to finish
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return
	}
	d.cancel()
	d.started = false
	d.mu.Unlock()

	d.wg.Wait()
	d.logger.Info().Msg("Queue dispatcher stopped")
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Drain available messages before sleeping again
			for {
				if ctx.Err() != nil {
					return
				}
				if !d.processOne(ctx) {
					break
				}
			}
		}
	}
}

// processOne handles a single message. Returns false when the queue is empty.
func (d *Dispatcher) processOne(ctx context.Context) bool {
	msg, err := d.storage.Dequeue(ctx)
	if err != nil {
		d.logger.Error().Err(err).Msg("Queue dequeue failed")
		return false
	}
	if msg == nil {
		return false
	}

	handler, ok := d.handlers[msg.Task]
	if !ok {
		d.logger.Error().Str("task", msg.Task).Str("message_id", msg.ID).Msg("No handler registered for task")
		d.failMessage(ctx, msg.ID, msg.Task, msg.Payload, "no handler registered")
		return true
	}

	if err := d.runHandler(ctx, handler, msg.Payload); err != nil {
		d.logger.Error().
			Err(err).
			Str("task", msg.Task).
			Str("message_id", msg.ID).
			Msg("Task handler failed")
		d.failMessage(ctx, msg.ID, msg.Task, msg.Payload, err.Error())
		return true
	}

	if err := d.storage.Ack(ctx, msg.ID); err != nil {
		d.logger.Error().Err(err).Str("message_id", msg.ID).Msg("Failed to ack message")
	}
	return true
}

// runHandler isolates handler panics so a bad payload cannot kill a worker
func (d *Dispatcher) runHandler(ctx context.Context, handler HandlerFunc, payload string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler(ctx, payload)
}

func (d *Dispatcher) failMessage(ctx context.Context, messageID, task, payload, errMsg string) {
	dead, err := d.storage.Fail(ctx, messageID, errMsg)
	if err != nil {
		d.logger.Error().Err(err).Str("message_id", messageID).Msg("Failed to record message failure")
		return
	}
	if dead {
		if deadHandler, ok := d.deadHandlers[task]; ok {
			if err := deadHandler(ctx, payload); err != nil {
				d.logger.Error().Err(err).Str("task", task).Msg("Dead-letter handler failed")
			}
		}
	}
}
