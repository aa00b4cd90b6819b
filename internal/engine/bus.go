package engine

import (
	"sync"
	"time"
)

// EventKind classifies bus events.
type EventKind string

const (
	EventProgress EventKind = "progress"
	EventAction   EventKind = "action"
	EventDataset  EventKind = "dataset"
)

// Event is an immutable, monotonically-sequenced progress record. Events are
// created only by the bus on publish.
type Event struct {
	SequenceID uint64    `json:"sequence_id"`
	Timestamp  time.Time `json:"ts"`
	Kind       EventKind `json:"kind"`
	Payload    any       `json:"payload"`
}

// EventBus retains events in a bounded ring buffer. Oldest entries are
// evicted once capacity is exceeded, a documented lossy boundary for slow
// consumers. Publishing never blocks on consumers.
type EventBus struct {
	mu   sync.Mutex
	seq  uint64
	buf  []Event
	head int
	size int
}

// NewEventBus creates a bus retaining up to capacity events.
func NewEventBus(capacity int) *EventBus {
	if capacity <= 0 {
		capacity = 2000
	}
	return &EventBus{buf: make([]Event, capacity)}
}

// Publish assigns the next sequence id, timestamps the event, appends it and
// returns the stored copy.
func (b *EventBus) Publish(kind EventKind, payload any) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	ev := Event{
		SequenceID: b.seq,
		Timestamp:  time.Now().UTC(),
		Kind:       kind,
		Payload:    payload,
	}

	if b.size < len(b.buf) {
		b.buf[(b.head+b.size)%len(b.buf)] = ev
		b.size++
	} else {
		b.buf[b.head] = ev
		b.head = (b.head + 1) % len(b.buf)
	}
	return ev
}

// Query returns all retained events with a sequence id greater than since, in
// publish order, plus the highest retained sequence id so a polling consumer
// always has its next bookmark even when nothing new exists.
func (b *EventBus) Query(since uint64) ([]Event, uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Event, 0)
	for i := 0; i < b.size; i++ {
		ev := b.buf[(b.head+i)%len(b.buf)]
		if ev.SequenceID > since {
			out = append(out, ev)
		}
	}

	last := since
	if b.size > 0 {
		last = b.buf[(b.head+b.size-1)%len(b.buf)].SequenceID
	}
	return out, last
}

// LastID returns the highest sequence id ever assigned.
func (b *EventBus) LastID() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}
