// Package stream fans round events out to connected clients through
// per-subscriber bounded queues. Publishing never blocks the caller: a
// subscriber that cannot keep up is disconnected and must resubscribe for a
// fresh snapshot.
package stream

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/spinhall/roulette/internal/domain"
)

// DefaultQueueDepth is the per-subscriber event queue capacity.
const DefaultQueueDepth = 64

// Hub manages subscribers and event delivery.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]*Subscriber
	depth  int
	logger *slog.Logger
}

// Subscriber is one connected client's queue. The Events channel is closed
// when the subscriber is disconnected, by overflow or by Unsubscribe.
type Subscriber struct {
	ID       string
	PlayerID string // empty for anonymous subscribers
	events   chan domain.Event
	closed   bool
}

// Events returns the subscriber's delivery channel.
func (s *Subscriber) Events() <-chan domain.Event { return s.events }

// NewHub creates a hub with the given per-subscriber queue depth.
func NewHub(depth int, logger *slog.Logger) *Hub {
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	return &Hub{
		subs:   make(map[string]*Subscriber),
		depth:  depth,
		logger: logger,
	}
}

// Subscribe registers a subscriber and queues the snapshot event as its first
// delivery. The snapshot callback runs with the hub locked, so an event
// published concurrently is either reflected in the snapshot or queued behind
// it, never lost. playerID may be empty for anonymous streams.
func (h *Hub) Subscribe(playerID string, snapshot func() domain.Event) *Subscriber {
	sub := &Subscriber{
		ID:       uuid.New().String(),
		PlayerID: playerID,
		events:   make(chan domain.Event, h.depth),
	}

	h.mu.Lock()
	sub.events <- snapshot()
	h.subs[sub.ID] = sub
	h.mu.Unlock()

	return sub
}

// Unsubscribe removes a subscriber and closes its channel. Idempotent.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.drop(id)
}

// Publish enqueues the event for every subscriber with a non-blocking send.
// Subscribers whose queues are full are disconnected.
func (h *Hub) Publish(event domain.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, sub := range h.subs {
		select {
		case sub.events <- event:
		default:
			h.logger.Warn("subscriber queue overflow, disconnecting",
				"subscriber", id, "event", event.Type)
			h.drop(id)
		}
	}
}

// Count returns the number of active subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Shutdown disconnects every subscriber.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id := range h.subs {
		h.drop(id)
	}
}

// drop must be called with h.mu held.
func (h *Hub) drop(id string) {
	sub, ok := h.subs[id]
	if !ok {
		return
	}
	delete(h.subs, id)
	if !sub.closed {
		sub.closed = true
		close(sub.events)
	}
}
