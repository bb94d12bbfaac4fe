// Package queue buffers access log entries between request handlers and the
// sink worker.
package queue

import (
	"context"
	"sync"

	"github.com/okian/fighterstats/internal/adapters/accesslog"
	"github.com/okian/fighterstats/pkg/metrics"
)

// DefaultCapacity bounds the number of pending entries.
const DefaultCapacity = 10000

// Entry is the payload flowing through the queue.
type Entry = accesslog.Entry

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds an entry to the queue.
	// Returns false if the queue is full or closed and the entry was not enqueued.
	Enqueue(ctx context.Context, e Entry) bool

	// Dequeue returns a channel that receives entries as they become available.
	// The channel is closed once the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan Entry

	// Len returns the current number of queued entries.
	Len(ctx context.Context) int

	// Close stops accepting entries. Entries already queued remain readable.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	entries  chan Entry
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: DefaultCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.entries = make(chan Entry, q.capacity)

	metrics.UpdateAccessLogQueue(0, q.capacity)
	return q
}

// Enqueue adds an entry to the queue without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, e Entry) bool { //nolint:gocritic // hugeParam: Entry must be passed by value for channel semantics
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordErrorByComponent("queue", "closed")
		return false
	}

	select {
	case q.entries <- e:
		metrics.UpdateAccessLogQueue(len(q.entries), q.capacity)
		return true
	case <-ctx.Done():
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return false
	default:
		metrics.RecordErrorByComponent("queue", "queue_full")
		return false
	}
}

// Dequeue returns a channel that will receive entries as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Entry {
	out := make(chan Entry)
	go func() {
		defer close(out)
		for e := range q.entries {
			select {
			case out <- e:
				metrics.UpdateAccessLogQueue(len(q.entries), q.capacity)
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the current number of queued entries.
func (q *InMemoryQueue) Len(_ context.Context) int {
	return len(q.entries)
}

// Capacity returns the configured bound.
func (q *InMemoryQueue) Capacity() int {
	return q.capacity
}

// Close gracefully shuts down the queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.entries)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
