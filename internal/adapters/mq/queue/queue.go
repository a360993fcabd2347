// Package queue holds simulation units waiting for a local worker.
//
// The queue is a bounded buffered channel. Enqueue never blocks; a full or
// closed queue rejects the unit and the caller decides what to do with it.
package queue

import (
	"context"
	"sync"

	"github.com/okian/simbot/internal/domain/fingerprint"
	"github.com/okian/simbot/internal/domain/model"
	"github.com/okian/simbot/pkg/metrics"
)

const defaultQueueCapacity = 1024

// Unit is one simulation to execute: the request plus the identity needed to
// route its result back to the player, boss and cache entry it belongs to.
type Unit struct {
	ID      string                  `json:"id"`
	Player  string                  `json:"player"`
	Boss    string                  `json:"boss"`
	Key     fingerprint.Key         `json:"key"`
	Request model.SimulationRequest `json:"request"`
}

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a unit. It returns ErrClosed or ErrFull when the unit was not accepted.
	Enqueue(ctx context.Context, u Unit) error

	// Dequeue returns the channel units are read from. It is closed by Close
	// once every buffered unit has been received.
	Dequeue(ctx context.Context) <-chan Unit

	// Len returns the current number of queued units.
	Len(ctx context.Context) int

	// Close stops accepting units. Buffered units remain readable.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	units    chan Unit
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.units = make(chan Unit, q.capacity)
	metrics.UpdateQueueDepth(0)
	return q
}

// Enqueue adds a unit to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, u Unit) error { //nolint:gocritic // hugeParam: Unit is passed by value for channel semantics
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordErrorByComponent("queue", "closed")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return err
	}

	select {
	case q.units <- u:
		metrics.UpdateQueueDepth(len(q.units))
		return nil
	default:
		metrics.RecordErrorByComponent("queue", "queue_full")
		return ErrFull
	}
}

// Dequeue returns the receive side of the queue. Every caller shares the same
// channel, so each unit is delivered to exactly one reader.
func (q *InMemoryQueue) Dequeue(_ context.Context) <-chan Unit {
	return q.units
}

// Len returns the current number of queued units.
func (q *InMemoryQueue) Len(_ context.Context) int {
	size := len(q.units)
	metrics.UpdateQueueDepth(size)
	return size
}

// Close gracefully shuts down the queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.units)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
