package orchestrator

import (
	"time"

	"github.com/okian/simbot/internal/domain/simcache"
	"github.com/okian/simbot/pkg/logger"
)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCache sets the run-scoped simulation cache.
func WithCache(c *simcache.Cache) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.cache = c
		}
	}
}

// WithReporter sets the progress event sink. It is closed when Run returns.
func WithReporter(r Reporter) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.reporter = r
		}
	}
}

// WithRunID tags events and log lines.
func WithRunID(id string) Option {
	return func(o *Orchestrator) {
		o.runID = id
	}
}

// WithStateHook is called on every state transition.
func WithStateHook(f func(from, to State)) Option {
	return func(o *Orchestrator) {
		o.onState = f
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets a logger.
func WithLogger(l logger.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}
