package remote

import (
	"net/http"
	"time"

	"github.com/okian/simbot/pkg/logger"
)

// Option applies a configuration option to the Scheduler.
type Option func(*Scheduler)

// WithHTTPClient shares an existing client. Its transport is the connection session for every unit.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.client = c
		}
	}
}

// WithMaxConns bounds the number of units in flight at once.
func WithMaxConns(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.maxConns = n
		}
	}
}

// WithTimeout bounds each remote call.
func WithTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets a logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}
