package engine

import (
	"context"
	"testing"
	"time"

	"github.com/acme/contact-dialer/internal/domain"
)

func TestWorkQueueFIFOOrder(t *testing.T) {
	q := NewWorkQueue()
	first := &domain.ContactItem{Name: "first"}
	second := &domain.ContactItem{Name: "second"}
	third := &domain.ContactItem{Name: "third"}

	q.Enqueue(first)
	q.Enqueue(second)
	q.Enqueue(third)

	if q.Depth() != 3 {
		t.Fatalf("expected depth 3, got %d", q.Depth())
	}

	ctx := context.Background()
	for _, want := range []*domain.ContactItem{first, second, third} {
		got, ok := q.Dequeue(ctx, time.Millisecond)
		if !ok {
			t.Fatal("expected dequeue to succeed")
		}
		if got != want {
			t.Fatalf("expected %q, got %q", want.Name, got.Name)
		}
	}

	if q.Depth() != 0 {
		t.Fatalf("expected empty queue, got depth %d", q.Depth())
	}
}

func TestWorkQueueDequeueStopsOnContext(t *testing.T) {
	q := NewWorkQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	if _, ok := q.Dequeue(ctx, 2*time.Millisecond); ok {
		t.Fatal("expected dequeue to fail on empty queue with cancelled context")
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("dequeue did not observe cancellation promptly: %v", elapsed)
	}
}

func TestWorkQueueDequeueWaitsForItem(t *testing.T) {
	q := NewWorkQueue()
	item := &domain.ContactItem{Name: "late"}

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Enqueue(item)
	}()

	got, ok := q.Dequeue(context.Background(), 2*time.Millisecond)
	if !ok || got != item {
		t.Fatalf("expected to receive late item, got %v ok=%v", got, ok)
	}
}

func TestWorkQueueDrainAll(t *testing.T) {
	q := NewWorkQueue()
	for i := 0; i < 5; i++ {
		q.Enqueue(&domain.ContactItem{})
	}

	if drained := q.DrainAll(); drained != 5 {
		t.Fatalf("expected 5 drained, got %d", drained)
	}
	if q.Depth() != 0 {
		t.Fatalf("expected empty queue after drain, got %d", q.Depth())
	}
	if drained := q.DrainAll(); drained != 0 {
		t.Fatalf("expected second drain to remove nothing, got %d", drained)
	}
}
