package telemetry

import (
	"sync"

	"github.com/ray-manaloto/guilde-lite-tdd-sprint-sub000/internal/domain"
)

// RingBuffer is a bounded in-memory backend that drops the oldest event
// on overflow.
type RingBuffer struct {
	mu    sync.Mutex
	buf   []domain.TelemetryEvent
	start int
	count int
}

// NewRingBuffer creates a ring buffer holding at most size events.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = 1
	}
	return &RingBuffer{buf: make([]domain.TelemetryEvent, size)}
}

// Name implements Backend.
func (r *RingBuffer) Name() string { return "ring" }

// Record implements Backend.
func (r *RingBuffer) Record(event domain.TelemetryEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = event
		r.count++
		return nil
	}
	// Full: overwrite the oldest slot.
	r.buf[r.start] = event
	r.start = (r.start + 1) % len(r.buf)
	return nil
}

// Flush implements Backend; the ring has nothing to drain.
func (r *RingBuffer) Flush() error { return nil }

// Query returns up to limit events matching the filters, oldest first.
// Zero values ("", 0) match everything.
func (r *RingBuffer) Query(eventType domain.TelemetryEventType, agentName string, limit int) []domain.TelemetryEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.TelemetryEvent
	for i := 0; i < r.count; i++ {
		event := r.buf[(r.start+i)%len(r.buf)]
		if eventType != "" && event.Type != eventType {
			continue
		}
		if agentName != "" && event.AgentName != agentName {
			continue
		}
		out = append(out, event)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Len returns the number of buffered events.
func (r *RingBuffer) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}
