package service

import (
	"time"

	"github.com/okian/simbot/internal/adapters/mq/worker"
	"github.com/okian/simbot/internal/adapters/repository"
	"github.com/okian/simbot/internal/domain/progress"
	"github.com/okian/simbot/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithRunner sets the simulator used by the local scheduler.
func WithRunner(r worker.Runner) Option {
	return func(s *Service) {
		s.runner = r
	}
}

// WithStore sets the run store. The default is an in-memory store created on Start.
func WithStore(st repository.Store) Option {
	return func(s *Service) {
		if st != nil {
			s.store = st
		}
	}
}

// WithUpstream mirrors every progress event to u.
func WithUpstream(u progress.Upstream) Option {
	return func(s *Service) {
		s.upstream = u
	}
}

// WithIDGenerator replaces the run ID source.
func WithIDGenerator(f func() string) Option {
	return func(s *Service) {
		if f != nil {
			s.newID = f
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSubscriberBuffer sets the per-subscriber event buffer.
func WithSubscriberBuffer(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.subBuffer = n
		}
	}
}
