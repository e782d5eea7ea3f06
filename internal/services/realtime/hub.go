// Package realtime fans broker events out to connected staff and customer
// sessions. Rooms are plain strings; a session subscribes to the rooms its
// identity grants and receives every event routed to any of them.
package realtime

import (
	"sync"

	"github.com/google/uuid"

	"tableside/internal/logger"
	"tableside/internal/models"
)

// subscriberBuffer bounds each session's in-flight events. A session that
// cannot drain its buffer loses events rather than stalling the hub.
const subscriberBuffer = 16

// Subscription is one connected session's membership in a set of rooms
type Subscription struct {
	ID     uuid.UUID
	Rooms  []string
	Events chan models.Event

	closed bool // guarded by the hub mutex
}

// Hub routes events to room subscribers. All methods are safe for
// concurrent use.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Subscription]struct{}
	logger *logger.Logger
}

// NewHub creates an empty hub
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[*Subscription]struct{}),
		logger: log,
	}
}

// Subscribe joins the given rooms and returns the subscription. The caller
// must Unsubscribe when the session ends.
func (h *Hub) Subscribe(rooms []string) *Subscription {
	sub := &Subscription{
		ID:     uuid.New(),
		Rooms:  rooms,
		Events: make(chan models.Event, subscriberBuffer),
	}

	h.mu.Lock()
	for _, room := range rooms {
		members, ok := h.rooms[room]
		if !ok {
			members = make(map[*Subscription]struct{})
			h.rooms[room] = members
		}
		members[sub] = struct{}{}
	}
	h.mu.Unlock()

	return sub
}

// Unsubscribe removes the subscription from its rooms and closes its
// event channel. Empty rooms are deleted. Safe to call more than once.
// Closing happens under the write lock so Broadcast, which sends under the
// read lock, can never hit a closed channel.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sub.closed {
		return
	}
	sub.closed = true

	for _, room := range sub.Rooms {
		members, ok := h.rooms[room]
		if !ok {
			continue
		}
		delete(members, sub)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}

	close(sub.Events)
}

// Broadcast delivers the event to every subscriber of any of its rooms,
// at most once per subscriber. Delivery is non-blocking: a subscriber with
// a full buffer drops the event. The sends happen under the read lock,
// which excludes a concurrent Unsubscribe closing the channel mid-send.
func (h *Hub) Broadcast(event models.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	targets := make(map[*Subscription]struct{})
	for _, room := range event.Rooms() {
		for sub := range h.rooms[room] {
			targets[sub] = struct{}{}
		}
	}

	for sub := range targets {
		select {
		case sub.Events <- event:
		default:
			h.logger.Warn("event_dropped", "Subscriber buffer full, event dropped", "", map[string]interface{}{
				"subscription_id": sub.ID,
				"event_type":      event.Type,
			})
		}
	}
}

// RoomCount reports how many rooms currently have subscribers
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}
