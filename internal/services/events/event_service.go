package events

import (
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/models"
)

// Service implements EventService with a simple pub/sub pattern. There is a
// single event kind (job status changed); subscribers fan it out to their own
// audiences, e.g. the websocket hub routes it to the owner's feed and the
// job's room.
type Service struct {
	subscribers []interfaces.JobEventHandler
	mu          sync.RWMutex
	closed      bool
	logger      arbor.ILogger
}

// NewService creates a new event service
func NewService(logger arbor.ILogger) interfaces.EventService {
	return &Service{
		logger: logger,
	}
}

// Subscribe registers a handler for job status events
func (s *Service) Subscribe(handler interfaces.JobEventHandler) {
	if handler == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.subscribers = append(s.subscribers, handler)

	s.logger.Debug().
		Int("subscriber_count", len(s.subscribers)).
		Msg("Event handler subscribed")
}

// Publish delivers the event to all subscribers asynchronously. A slow or
// panicking subscriber never blocks the publisher.
func (s *Service) Publish(event models.JobStatusEvent) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return
	}
	handlers := make([]interfaces.JobEventHandler, len(s.subscribers))
	copy(handlers, s.subscribers)
	s.mu.RUnlock()

	s.logger.Debug().
		Str("job_id", event.JobID).
		Str("status", string(event.Status)).
		Int("subscriber_count", len(handlers)).
		Msg("Publishing job status event")

	for _, handler := range handlers {
		go func(h interfaces.JobEventHandler) {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error().
						Str("job_id", event.JobID).
						Str("panic", fmt.Sprintf("%v", r)).
						Msg("Event handler panicked")
				}
			}()
			h(event)
		}(handler)
	}
}

// Close stops delivery of further events
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.subscribers = nil
	return nil
}
