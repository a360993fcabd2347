// Package remote schedules simulation units on a remote worker over HTTP.
//
// Every queued unit is posted in its own goroutine to the worker endpoint
// through one shared http.Client. A semaphore bounds the number of calls in
// flight. Any failure of a call becomes that unit's result; other units are
// unaffected.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	httpworker "github.com/okian/simbot/internal/adapters/http/worker"
	"github.com/okian/simbot/internal/adapters/mq/worker"
	"github.com/okian/simbot/pkg/logger"
	"github.com/okian/simbot/pkg/metrics"
)

const (
	defaultMaxConns = 32
	defaultTimeout  = 6 * time.Minute
	strategyRemote  = "remote"
	maxResponseSize = 64 << 10
)

// Scheduler posts units to a remote simulation worker.
type Scheduler struct {
	endpoint string
	client   *http.Client
	maxConns int
	timeout  time.Duration
	sem      chan struct{}
	logger   logger.Logger

	mu      sync.Mutex
	closed  bool
	pending map[string]worker.Unit
	results []worker.Result
	idle    chan struct{}
	wg      sync.WaitGroup
}

var _ worker.Scheduler = (*Scheduler)(nil)

// New creates a scheduler posting to endpoint, e.g. http://sim-worker:9080/simulate.
func New(endpoint string, opts ...Option) *Scheduler {
	s := &Scheduler{
		endpoint: endpoint,
		maxConns: defaultMaxConns,
		timeout:  defaultTimeout,
		logger:   logger.GetOrNop().Named("remote-scheduler"),
		pending:  make(map[string]worker.Unit),
		idle:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = &http.Client{
			Timeout: s.timeout,
			Transport: &http.Transport{
				MaxIdleConns:        s.maxConns,
				MaxIdleConnsPerHost: s.maxConns,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	s.sem = make(chan struct{}, s.maxConns)
	return s
}

// Queue dispatches u. The call returns at once; the result is collected by AwaitAll.
func (s *Scheduler) Queue(ctx context.Context, u worker.Unit) error { //nolint:gocritic // hugeParam: Unit is passed by value to its goroutine
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return worker.ErrClosed
	}
	if _, dup := s.pending[u.ID]; dup {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", worker.ErrDuplicateID, u.ID)
	}
	s.pending[u.ID] = u
	s.wg.Add(1)
	s.mu.Unlock()

	metrics.RecordUnitQueued(strategyRemote)
	go func() {
		defer s.wg.Done()
		dps, err := s.dispatch(ctx, u)
		s.complete(worker.Result{Unit: u, DPS: dps, Err: err})
	}()
	return nil
}

// AwaitAll blocks until every dispatched unit of the batch has a result.
func (s *Scheduler) AwaitAll(ctx context.Context) []worker.Result {
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			out := s.results
			s.results = nil
			s.mu.Unlock()
			return out
		}
		idle := s.idle
		s.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			s.abandon(ctx, ctx.Err())
		}
	}
}

// Close stops accepting units and waits for calls in flight.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wg.Wait()
	s.client.CloseIdleConnections()
	return nil
}

func (s *Scheduler) dispatch(ctx context.Context, u worker.Unit) (float64, error) { //nolint:gocritic // hugeParam: Unit is passed by value to its goroutine
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	defer func() { <-s.sem }()

	metrics.AddUnitsInFlight(strategyRemote, 1)
	defer metrics.AddUnitsInFlight(strategyRemote, -1)

	dps, err := s.post(ctx, u)
	if err != nil {
		metrics.RecordErrorByComponent("remote_scheduler", "dispatch")
		s.logger.Warn(ctx, "remote simulation failed",
			logger.String("unit", u.ID),
			logger.String("player", u.Player),
			logger.String("boss", u.Boss),
			logger.Error(err),
		)
		return 0, err
	}
	return dps, nil
}

func (s *Scheduler) post(ctx context.Context, u worker.Unit) (float64, error) { //nolint:gocritic // hugeParam: Unit is passed by value to its goroutine
	req := u.Request
	body, err := json.Marshal(httpworker.Request{SimParams: &req})
	if err != nil {
		return 0, fmt.Errorf("marshal unit %s: %w", u.ID, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("post unit %s: %w", u.ID, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	if resp.StatusCode != http.StatusOK {
		var failure struct {
			Error string `json:"error"`
		}
		msg := http.StatusText(resp.StatusCode)
		if json.Unmarshal(raw, &failure) == nil && failure.Error != "" {
			msg = failure.Error
		}
		return 0, &WorkerError{StatusCode: resp.StatusCode, Message: msg}
	}

	var ok httpworker.Response
	if err := json.Unmarshal(raw, &ok); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return ok.DPS, nil
}

func (s *Scheduler) complete(res worker.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pending[res.Unit.ID]; !ok {
		return
	}
	delete(s.pending, res.Unit.ID)
	s.results = append(s.results, res)
	s.signalIfIdle()
}

// signalIfIdle wakes AwaitAll callers once the batch is empty. Caller holds mu.
func (s *Scheduler) signalIfIdle() {
	if len(s.pending) != 0 {
		return
	}
	close(s.idle)
	s.idle = make(chan struct{})
}

func (s *Scheduler) abandon(ctx context.Context, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		return
	}
	s.logger.Warn(ctx, "abandoning pending units", logger.Int("count", len(s.pending)), logger.Error(cause))
	for id, u := range s.pending {
		s.results = append(s.results, worker.Result{Unit: u, Err: fmt.Errorf("%w: %w", worker.ErrAbandoned, cause)})
		delete(s.pending, id)
	}
	s.signalIfIdle()
}
