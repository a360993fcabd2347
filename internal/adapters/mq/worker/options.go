// Package worker runs simulation units on local workers.
package worker

import (
	"time"

	"github.com/okian/simbot/pkg/logger"
)

// Option applies a configuration option to the Pool.
type Option func(*Pool)

// WithWorkers sets the number of concurrent simulations. Values below 1 mean runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.size = n
		}
	}
}

// WithTimeout sets the per-unit simulation timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithQueue replaces the default in-memory queue.
func WithQueue(q Queue) Option {
	return func(p *Pool) {
		if q != nil {
			p.queue = q
		}
	}
}

// WithLogger sets a custom logger for the pool and its workers.
func WithLogger(l logger.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}
