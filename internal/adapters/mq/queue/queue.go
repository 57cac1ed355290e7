// Package queue provides the bounded command mailbox feeding the runner loop.
package queue

import (
	"context"
	"sync"

	"github.com/okian/skincheck/pkg/metrics"
)

const defaultCapacity = 64

// Queue is a bounded FIFO with non-blocking enqueue and channel-based dequeue.
type Queue[T any] struct {
	items    chan T
	capacity int

	mu     sync.RWMutex
	closed bool
}

// New creates a queue with configuration options.
func New[T any](opts ...Option) *Queue[T] {
	cfg := config{capacity: defaultCapacity}
	for _, opt := range opts {
		opt(&cfg)
	}

	q := &Queue[T]{
		items:    make(chan T, cfg.capacity),
		capacity: cfg.capacity,
	}
	metrics.UpdateMailboxCapacity(q.capacity)
	metrics.UpdateMailboxSize(0)
	return q
}

// Enqueue adds item without blocking. It fails with ErrFull when the queue
// is at capacity and ErrClosed after Close.
func (q *Queue[T]) Enqueue(ctx context.Context, item T) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordErrorByComponent("mailbox", "closed")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case q.items <- item:
		metrics.UpdateMailboxSize(len(q.items))
		return nil
	default:
		metrics.RecordMailboxRejected()
		metrics.RecordErrorByComponent("mailbox", "full")
		return ErrFull
	}
}

// Dequeue returns the receive side. It is closed by Close once drained.
func (q *Queue[T]) Dequeue() <-chan T {
	return q.items
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	n := len(q.items)
	metrics.UpdateMailboxSize(n)
	return n
}

// Cap returns the capacity.
func (q *Queue[T]) Cap() int { return q.capacity }

// Close stops accepting items. Queued items can still be received.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	close(q.items)
	q.closed = true
}

// IsClosed reports whether Close was called.
func (q *Queue[T]) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
