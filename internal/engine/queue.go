package engine

import (
	"context"
	"sync"
	"time"

	"github.com/acme/contact-dialer/internal/domain"
)

// WorkQueue is an unbounded FIFO of contact items. Enqueue never blocks and
// never rejects; Dequeue polls until an item arrives or the context ends.
type WorkQueue struct {
	mu    sync.Mutex
	items []*domain.ContactItem
}

// NewWorkQueue constructs an empty queue.
func NewWorkQueue() *WorkQueue {
	return &WorkQueue{}
}

// Enqueue appends the item to the tail.
func (q *WorkQueue) Enqueue(item *domain.ContactItem) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
}

// Dequeue removes and returns the head item, waiting with a bounded poll
// interval so callers stay responsive to cancellation. It returns false only
// when the context is done.
func (q *WorkQueue) Dequeue(ctx context.Context, poll time.Duration) (*domain.ContactItem, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return item, true
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, false
		case <-time.After(poll):
		}
	}
}

// DrainAll atomically removes every queued item and returns how many were
// discarded.
func (q *WorkQueue) DrainAll() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	q.items = nil
	return n
}

// Depth reports the number of queued items.
func (q *WorkQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
