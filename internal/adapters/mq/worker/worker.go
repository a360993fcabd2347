// Package worker runs simulation units on local workers.
//
// A Pool is the local scheduling strategy: units are queued on a bounded
// in-memory queue and N workers each run one simulation at a time. Units
// queued between two AwaitAll calls form a batch; AwaitAll returns once every
// unit of the batch produced exactly one result, and the pool is then ready
// for the next batch.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/okian/simbot/internal/adapters/mq/queue"
	"github.com/okian/simbot/internal/domain/model"
	"github.com/okian/simbot/pkg/logger"
	"github.com/okian/simbot/pkg/metrics"
)

const (
	defaultTimeout      = 5 * time.Minute
	poolShutdownTimeout = 30 * time.Second
	strategyLocal       = "local"
)

// Unit is the payload flowing through the scheduler.
type Unit = queue.Unit

// Result is the terminal outcome of one unit. It carries its unit so results
// can be consumed in any order.
type Result struct {
	Unit Unit
	DPS  float64
	Err  error
}

// SimulationResult converts the result to the value stored in the simulation cache.
func (r Result) SimulationResult() model.SimulationResult {
	return model.SimulationResult{DPS: r.DPS, Err: r.Err}
}

// Scheduler accepts units and hands back their results.
type Scheduler interface {
	// Queue accepts a unit for execution. An error means the unit was not
	// accepted and will not appear in AwaitAll.
	Queue(ctx context.Context, u Unit) error

	// AwaitAll blocks until every accepted unit is terminal and returns their
	// results. If ctx ends first, the units still pending are returned as failures.
	AwaitAll(ctx context.Context) []Result
}

// Runner executes one simulation.
type Runner interface {
	Run(ctx context.Context, req model.SimulationRequest, timeout time.Duration) (float64, error)
}

// Queue defines how the pool stores units for its workers.
type Queue interface {
	Enqueue(ctx context.Context, u Unit) error
	Dequeue(ctx context.Context) <-chan Unit
	Close() error
}

// InMemoryWorker runs units read from the queue, one at a time.
type InMemoryWorker struct {
	name    string
	queue   Queue
	runner  Runner
	timeout time.Duration
	report  func(Result)

	done   chan struct{}
	logger logger.Logger
}

func newInMemoryWorker(name string, p *Pool) *InMemoryWorker {
	return &InMemoryWorker{
		name:    name,
		queue:   p.queue,
		runner:  p.runner,
		timeout: p.timeout,
		report:  p.complete,
		done:    make(chan struct{}),
		logger:  p.logger.Named(name),
	}
}

// Run starts the worker loop. It returns when ctx ends or the queue is closed and drained.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	units := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-units:
			if !ok {
				return
			}
			w.report(w.process(ctx, u))
		}
	}
}

// process runs one unit. A panicking runner becomes a failed result.
func (w *InMemoryWorker) process(ctx context.Context, u Unit) (res Result) { //nolint:gocritic // hugeParam: Unit is passed by value for channel semantics
	res.Unit = u
	start := time.Now()
	metrics.AddUnitsInFlight(strategyLocal, 1)

	defer func() {
		metrics.AddUnitsInFlight(strategyLocal, -1)
		if r := recover(); r != nil {
			res.DPS = 0
			res.Err = fmt.Errorf("%w: %v", ErrRunnerPanic, r)
			metrics.RecordErrorByComponent("worker", "panic")
			w.logger.Error(ctx, "runner panicked",
				logger.String("unit", u.ID),
				logger.Any("panic", r),
			)
		}
	}()

	res.DPS, res.Err = w.runner.Run(ctx, u.Request, w.timeout)
	if res.Err != nil {
		w.logger.Warn(ctx, "simulation failed",
			logger.String("unit", u.ID),
			logger.String("player", u.Player),
			logger.String("boss", u.Boss),
			logger.Error(res.Err),
		)
		return res
	}
	w.logger.Debug(ctx, "simulation finished",
		logger.String("unit", u.ID),
		logger.Float64("dps", res.DPS),
		logger.Duration("elapsed", time.Since(start)),
	)
	return res
}

// Pool manages multiple workers and tracks the current batch.
type Pool struct {
	queue   Queue
	runner  Runner
	size    int
	timeout time.Duration
	workers []*InMemoryWorker
	logger  logger.Logger

	startOnce sync.Once
	cancel    context.CancelFunc

	mu      sync.Mutex
	started bool
	closed  bool
	pending map[string]Unit
	results []Result
	idle    chan struct{}
}

var _ Scheduler = (*Pool)(nil)

// NewPool creates a pool running units on runner. Call Start before queueing.
func NewPool(runner Runner, opts ...Option) *Pool {
	p := &Pool{
		runner:  runner,
		size:    runtime.NumCPU(),
		timeout: defaultTimeout,
		logger:  logger.GetOrNop().Named("worker-pool"),
		pending: make(map[string]Unit),
		idle:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.size < 1 {
		p.size = 1
	}
	if p.queue == nil {
		p.queue = queue.NewInMemoryQueue()
	}

	p.workers = make([]*InMemoryWorker, p.size)
	for i := range p.workers {
		p.workers[i] = newInMemoryWorker("worker-"+strconv.Itoa(i), p)
	}
	return p
}

// Start launches the workers. Later calls are no-ops. The workers outlive
// ctx: only Shutdown stops them, so a running simulation is bounded by the
// pool timeout rather than by the caller's context.
func (p *Pool) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		var runCtx context.Context
		runCtx, p.cancel = context.WithCancel(context.WithoutCancel(ctx))

		p.mu.Lock()
		p.started = true
		p.mu.Unlock()

		for _, w := range p.workers {
			go w.Run(runCtx)
		}
		p.logger.Info(ctx, "worker pool started", logger.Int("workers", len(p.workers)))
	})
}

// Queue adds a unit to the current batch.
func (p *Pool) Queue(ctx context.Context, u Unit) error { //nolint:gocritic // hugeParam: Unit is passed by value for channel semantics
	p.mu.Lock()
	switch {
	case p.closed:
		p.mu.Unlock()
		return ErrClosed
	case !p.started:
		p.mu.Unlock()
		return ErrNotStarted
	}
	if _, dup := p.pending[u.ID]; dup {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateID, u.ID)
	}
	p.pending[u.ID] = u
	p.mu.Unlock()

	if err := p.queue.Enqueue(ctx, u); err != nil {
		p.mu.Lock()
		delete(p.pending, u.ID)
		p.signalIfIdle()
		p.mu.Unlock()
		return fmt.Errorf("queue unit %s: %w", u.ID, err)
	}
	metrics.RecordUnitQueued(strategyLocal)
	return nil
}

// AwaitAll blocks until the current batch is complete, then starts a new batch.
func (p *Pool) AwaitAll(ctx context.Context) []Result {
	for {
		p.mu.Lock()
		if len(p.pending) == 0 {
			out := p.results
			p.results = nil
			p.mu.Unlock()
			return out
		}
		idle := p.idle
		p.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			p.abandon(ctx, ctx.Err())
		}
	}
}

// Pending returns the number of units of the current batch without a result.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

func (p *Pool) complete(res Result) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// results of abandoned units are dropped
	if _, ok := p.pending[res.Unit.ID]; !ok {
		return
	}
	delete(p.pending, res.Unit.ID)
	p.results = append(p.results, res)
	p.signalIfIdle()
}

// signalIfIdle wakes AwaitAll callers once the batch is empty. Caller holds mu.
func (p *Pool) signalIfIdle() {
	if len(p.pending) != 0 {
		return
	}
	close(p.idle)
	p.idle = make(chan struct{})
}

// abandon turns every pending unit into a failed result.
func (p *Pool) abandon(ctx context.Context, cause error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.pending) == 0 {
		return
	}
	p.logger.Warn(ctx, "abandoning pending units", logger.Int("count", len(p.pending)), logger.Error(cause))
	for id, u := range p.pending {
		p.results = append(p.results, Result{Unit: u, Err: fmt.Errorf("%w: %w", ErrAbandoned, cause)})
		delete(p.pending, id)
	}
	p.signalIfIdle()
}

// Close stops accepting units. Queued units still run.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()
	return p.queue.Close()
}

// Shutdown closes the pool and waits for the workers to drain the queue.
// Units still pending when ctx ends are abandoned.
func (p *Pool) Shutdown(ctx context.Context) error {
	if err := p.Close(); err != nil {
		p.logger.Error(ctx, "error closing queue", logger.Error(err))
	}

	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	if !started {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut bool
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			timedOut = true
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
		if timedOut {
			break
		}
	}
	p.cancel()
	p.abandon(ctx, ErrClosed)

	if timedOut {
		return fmt.Errorf("worker pool shutdown: %w", shutdownCtx.Err())
	}
	return nil
}
