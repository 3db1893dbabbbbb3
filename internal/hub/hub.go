// Package hub broadcasts ordered sprint events to subscribers. Each
// sprint id is a room with its own subscriber set and a monotonic
// sequence counter starting at 0.
package hub

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/ray-manaloto/guilde-lite-tdd-sprint-sub000/internal/domain"
)

// ErrSlowSubscriber is returned by Subscriber.Send when the subscriber
// cannot accept the message without blocking.
var ErrSlowSubscriber = errors.New("subscriber send buffer full")

// Subscriber receives serialized events for a room. Send must not block
// indefinitely; a failed send drops the subscriber from the room.
type Subscriber interface {
	ID() string
	Send(data []byte) error
}

// Hub manages per-room subscriber sets and sequence counters.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]map[string]Subscriber
	seq   map[string]int64
}

// New creates an empty hub.
func New() *Hub {
	return &Hub{
		rooms: make(map[string]map[string]Subscriber),
		seq:   make(map[string]int64),
	}
}

// Subscribe adds a subscriber to a room.
func (h *Hub) Subscribe(room string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]Subscriber)
	}
	h.rooms[room][sub.ID()] = sub
}

// Unsubscribe removes a subscriber from a room.
func (h *Hub) Unsubscribe(room string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs := h.rooms[room]; subs != nil {
		delete(subs, sub.ID())
		if len(subs) == 0 {
			delete(h.rooms, room)
		}
	}
}

// SubscriberCount returns the number of subscribers in a room.
func (h *Hub) SubscriberCount(room string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[room])
}

// BroadcastEvent stamps the next sequence number for the room, serializes
// the wire event and sends it to every subscriber. A subscriber whose
// send fails is removed; there is no retry or backpressure. The stamped
// sequence is returned so callers can persist matching timeline entries.
func (h *Hub) BroadcastEvent(room string, eventType domain.EventType, data map[string]interface{}) int64 {
	h.mu.Lock()
	seq := h.seq[room]
	h.seq[room] = seq + 1

	event := domain.WireEvent{
		Event:     string(eventType),
		SprintID:  room,
		Timestamp: domain.WireTimestamp(time.Now()),
		Sequence:  seq,
		Data:      data,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		h.mu.Unlock()
		log.Printf("ERROR: failed to marshal event %s for sprint %s: %v", eventType, room, err)
		return seq
	}
	h.sendLocked(room, payload)
	h.mu.Unlock()
	return seq
}

// BroadcastSprintUpdate sends the legacy flat shape to the room. Legacy
// messages carry no sequence number.
func (h *Hub) BroadcastSprintUpdate(room, status, phase, details string) {
	payload, err := json.Marshal(domain.SprintUpdate{
		Type:     domain.SprintUpdateType,
		SprintID: room,
		Status:   status,
		Phase:    phase,
		Details:  details,
	})
	if err != nil {
		log.Printf("ERROR: failed to marshal sprint update for %s: %v", room, err)
		return
	}
	h.mu.Lock()
	h.sendLocked(room, payload)
	h.mu.Unlock()
}

func (h *Hub) sendLocked(room string, payload []byte) {
	subs := h.rooms[room]
	for id, sub := range subs {
		if err := sub.Send(payload); err != nil {
			log.Printf("WARN: dropping subscriber %s from sprint %s: %v", id, room, err)
			delete(subs, id)
		}
	}
	if len(subs) == 0 {
		delete(h.rooms, room)
	}
}
