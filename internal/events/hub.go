// Package events provides the in-process pub/sub hub the interaction layer
// subscribes to. The core publishes plain-data events; rendering them into
// user-facing messages happens outside this module.
package events

import (
	"log/slog"
	"sync"

	"github.com/sailclub/sailcredit/internal/model"
)

// SubscriberBuffer is the per-subscriber channel capacity
const SubscriberBuffer = 64

// Sink receives published events
type Sink interface {
	Publish(event model.Event)
}

// Hub fans events out to subscribers. Slow subscribers drop events rather
// than block the publishing goroutine.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[*Subscription]bool
	logger      *slog.Logger
	closed      bool
}

// Subscription is one subscriber's handle on the hub
type Subscription struct {
	hub *Hub
	ch  chan model.Event
}

// Ensure Hub implements Sink
var _ Sink = (*Hub)(nil)

// NewHub creates a Hub
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		subscribers: make(map[*Subscription]bool),
		logger:      logger.With(slog.String("component", "events")),
	}
}

// Subscribe registers a new subscriber
func (h *Hub) Subscribe() *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub := &Subscription{hub: h, ch: make(chan model.Event, SubscriberBuffer)}
	if !h.closed {
		h.subscribers[sub] = true
	} else {
		close(sub.ch)
	}
	return sub
}

// Events returns the subscriber's event channel. It is closed when the
// subscription is cancelled or the hub shuts down.
func (s *Subscription) Events() <-chan model.Event {
	return s.ch
}

// Close cancels the subscription
func (s *Subscription) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	if s.hub.subscribers[s] {
		delete(s.hub.subscribers, s)
		close(s.ch)
	}
}

// Publish delivers the event to every subscriber that has buffer room
func (h *Hub) Publish(event model.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	dropped := 0
	for sub := range h.subscribers {
		select {
		case sub.ch <- event:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		h.logger.Warn("event dropped - subscriber buffer full",
			slog.String("event_type", string(event.Type)),
			slog.Int("dropped", dropped),
		)
	}
}

// SubscriberCount returns the number of active subscriptions
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Close shuts down the hub and closes all subscriber channels
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subscribers {
		close(sub.ch)
		delete(h.subscribers, sub)
	}
}

// NopSink discards all events
type NopSink struct{}

// Publish discards the event
func (NopSink) Publish(model.Event) {}

var _ Sink = NopSink{}
