// Package progress carries lifecycle events of an orchestration run.
//
// A Reporter is a bounded channel with a non-blocking Publish: when the
// consumer falls behind and the buffer is full, the event is dropped and
// counted. Upstreams see every published event before the buffer does.
package progress

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/okian/simbot/internal/domain/model"
	"github.com/okian/simbot/pkg/logger"
	"github.com/okian/simbot/pkg/metrics"
)

const defaultCapacity = 256

// Upstream receives a copy of every event, e.g. a message bus.
type Upstream interface {
	Publish(ctx context.Context, ev model.ProgressEvent) error
}

// Stats counts events by delivery result.
type Stats struct {
	Published int64 `json:"published"`
	Dropped   int64 `json:"dropped"`
}

// Reporter is the event channel of one run. Safe for concurrent use.
type Reporter struct {
	events    chan model.ProgressEvent
	upstreams []Upstream
	log       logger.Logger

	mu     sync.RWMutex
	closed bool

	published atomic.Int64
	dropped   atomic.Int64
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithUpstream adds an upstream. Upstream failures are logged and never reach the publisher.
func WithUpstream(u Upstream) Option {
	return func(r *Reporter) {
		if u != nil {
			r.upstreams = append(r.upstreams, u)
		}
	}
}

// WithLogger sets a logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Reporter) {
		if l != nil {
			r.log = l
		}
	}
}

// New creates a reporter buffering up to capacity events.
func New(capacity int, opts ...Option) *Reporter {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	r := &Reporter{
		events: make(chan model.ProgressEvent, capacity),
		log:    logger.GetOrNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Publish offers ev to the upstreams and the channel. It never blocks on the
// channel; a full buffer drops the event. Publishing after Close is a no-op.
func (r *Reporter) Publish(ev model.ProgressEvent) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}

	for _, u := range r.upstreams {
		if err := u.Publish(context.Background(), ev); err != nil {
			metrics.RecordProgressEvent(string(ev.Kind), "upstream_error")
			r.log.Warn(context.Background(), "progress upstream failed",
				logger.String("kind", string(ev.Kind)),
				logger.Error(err),
			)
		}
	}

	select {
	case r.events <- ev:
		r.published.Add(1)
		metrics.RecordProgressEvent(string(ev.Kind), "published")
	default:
		r.dropped.Add(1)
		metrics.RecordProgressEvent(string(ev.Kind), "dropped")
		r.log.Debug(context.Background(), "progress event dropped", logger.String("kind", string(ev.Kind)))
	}
}

// Events returns the receive side. It is closed by Close after buffered events.
func (r *Reporter) Events() <-chan model.ProgressEvent {
	return r.events
}

// Close ends the stream. Safe to call more than once.
func (r *Reporter) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	close(r.events)
}

// Stats returns delivery counters.
func (r *Reporter) Stats() Stats {
	return Stats{Published: r.published.Load(), Dropped: r.dropped.Load()}
}
