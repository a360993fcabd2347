// Package service runs guild evaluations on behalf of the HTTP API.
//
// Every run gets its own orchestrator, simulation cache, scheduler and
// progress reporter; nothing but the upstream clients is shared between
// runs. Run records live in a repository.Store and are updated as progress
// events arrive.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/simbot/internal/adapters/mq/remote"
	"github.com/okian/simbot/internal/adapters/mq/worker"
	"github.com/okian/simbot/internal/adapters/repository"
	"github.com/okian/simbot/internal/config"
	"github.com/okian/simbot/internal/domain/model"
	"github.com/okian/simbot/internal/domain/orchestrator"
	"github.com/okian/simbot/internal/domain/progress"
	"github.com/okian/simbot/internal/domain/simcache"
	"github.com/okian/simbot/pkg/logger"
)

// remoteSlack is added to the simulator timeout for the remote HTTP round trip.
const remoteSlack = 30 * time.Second

// RunRequest starts a run. Empty fields fall back to the configuration.
type RunRequest struct {
	Guild  string `json:"guild"`
	Realm  string `json:"realm"`
	Region string `json:"region"`
}

// Service owns the runs of the process.
type Service struct {
	mu sync.RWMutex

	cfg      *config.Config
	roster   orchestrator.Roster
	logs     orchestrator.Logs
	runner   worker.Runner
	store    repository.Store
	upstream progress.Upstream

	newID     func() string
	now       func() time.Time
	subBuffer int
	logger    logger.Logger

	// State
	started   bool
	baseCtx   context.Context
	stop      context.CancelFunc
	ownsStore bool
	active    map[string]*activeRun
	wg        sync.WaitGroup
}

type activeRun struct {
	orch *orchestrator.Orchestrator
	subs map[chan model.ProgressEvent]struct{}
}

// New constructs a Service. Call Start before creating runs.
func New(cfg *config.Config, roster orchestrator.Roster, logs orchestrator.Logs, opts ...Option) *Service {
	s := &Service{
		cfg:       cfg,
		roster:    roster,
		logs:      logs,
		newID:     uuid.NewString,
		now:       time.Now,
		subBuffer: 64,
		active:    make(map[string]*activeRun),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start prepares the service. Runs are bound to ctx.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.GetOrNop().Named("service")
	}
	if s.cfg.Scheduler == config.SchedulerLocal && s.runner == nil {
		return ErrNoRunner
	}

	s.baseCtx, s.stop = context.WithCancel(ctx)
	if s.store == nil {
		s.store = repository.NewMemoryStore(s.baseCtx)
		s.ownsStore = true
	}
	s.started = true
	s.logger.Info(ctx, "service started",
		logger.String("scheduler", s.cfg.Scheduler),
		logger.Int("workers", s.cfg.WorkerCount),
	)
	return nil
}

// Stop cancels every active run, waits for them to finish and closes the store it created.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	for _, ar := range s.active {
		ar.orch.Cancel()
	}
	s.mu.Unlock()

	s.logger.Info(context.Background(), "stopping service...")
	s.wg.Wait()
	s.stop()
	if s.ownsStore {
		if closer, ok := s.store.(interface{ Close() error }); ok {
			_ = closer.Close()
		}
	}
	s.logger.Info(context.Background(), "service stopped")
}

// StartRun validates req and starts a run in the background.
func (s *Service) StartRun(ctx context.Context, req RunRequest) (repository.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return repository.Run{}, ErrNotStarted
	}

	params, err := s.params(req)
	if err != nil {
		return repository.Run{}, err
	}

	id := s.newID()
	sched, closeSched := s.newScheduler()
	var ropts []progress.Option
	if s.upstream != nil {
		ropts = append(ropts, progress.WithUpstream(s.upstream))
	}
	ropts = append(ropts, progress.WithLogger(s.logger))
	reporter := progress.New(s.cfg.EventBuffer, ropts...)

	orch := orchestrator.New(s.roster, s.logs, sched, params,
		orchestrator.WithCache(simcache.New(simcache.WithLogger(s.logger))),
		orchestrator.WithReporter(reporter),
		orchestrator.WithRunID(id),
		orchestrator.WithClock(s.now),
		orchestrator.WithLogger(s.logger),
		orchestrator.WithStateHook(func(_, to orchestrator.State) {
			_, _ = s.store.Update(context.Background(), id, func(r *repository.Run) { r.State = string(to) })
		}),
	)

	record := repository.Run{
		ID:        id,
		Guild:     params.Guild,
		Realm:     params.Realm,
		Region:    params.Region,
		Status:    repository.StatusRunning,
		State:     string(orchestrator.StateIdle),
		CreatedAt: s.now(),
	}
	if err := s.store.Create(ctx, record); err != nil {
		closeSched()
		return repository.Run{}, fmt.Errorf("create run: %w", err)
	}
	s.active[id] = &activeRun{orch: orch, subs: make(map[chan model.ProgressEvent]struct{})}

	pumped := make(chan struct{})
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		defer close(pumped)
		s.pump(id, reporter)
	}()
	go func() {
		defer s.wg.Done()
		s.execute(id, orch, closeSched, pumped)
	}()

	s.logger.Info(ctx, "run created",
		logger.String("run_id", id),
		logger.String("guild", params.Guild),
		logger.String("realm", params.Realm),
	)
	return record, nil
}

// GetRun returns the record of a run.
func (s *Service) GetRun(ctx context.Context, id string) (repository.Run, error) {
	st, err := s.runStore()
	if err != nil {
		return repository.Run{}, err
	}
	return st.Get(ctx, id)
}

// ListRuns returns up to limit records, newest first.
func (s *Service) ListRuns(ctx context.Context, limit int) ([]repository.Run, error) {
	st, err := s.runStore()
	if err != nil {
		return nil, err
	}
	return st.List(ctx, limit)
}

// Cancel asks a running run to stop. Finished runs yield ErrNotRunning.
func (s *Service) Cancel(ctx context.Context, id string) error {
	s.mu.RLock()
	ar, ok := s.active[id]
	store := s.store
	s.mu.RUnlock()

	if ok {
		ar.orch.Cancel()
		return nil
	}
	if store == nil {
		return ErrNotStarted
	}
	if _, err := store.Get(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s", ErrNotRunning, id)
}

// Subscribe streams the progress events of a running run. The channel is
// closed when the run ends or unsubscribe is called; for a finished run it
// is returned closed. A slow subscriber loses events rather than stalling the run.
func (s *Service) Subscribe(ctx context.Context, id string) (<-chan model.ProgressEvent, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store == nil {
		return nil, nil, ErrNotStarted
	}
	ch := make(chan model.ProgressEvent, s.subBuffer)
	ar, ok := s.active[id]
	if !ok {
		if _, err := s.store.Get(ctx, id); err != nil {
			return nil, nil, err
		}
		close(ch)
		return ch, func() {}, nil
	}

	ar.subs[ch] = struct{}{}
	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if cur, ok := s.active[id]; ok {
				if _, ok := cur.subs[ch]; ok {
					delete(cur.subs, ch)
					close(ch)
				}
			}
		})
	}
	return ch, unsubscribe, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":     s.started,
		"scheduler":   s.cfg.Scheduler,
		"workerCount": s.cfg.WorkerCount,
		"activeRuns":  len(s.active),
	}
	if s.store != nil {
		stats["storedRuns"] = s.store.Count(context.Background())
	}
	return stats
}

func (s *Service) runStore() (repository.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.store == nil {
		return nil, ErrNotStarted
	}
	return s.store, nil
}

func (s *Service) params(req RunRequest) (orchestrator.Params, error) {
	guild := firstNonEmpty(req.Guild, s.cfg.Guild)
	realm := firstNonEmpty(req.Realm, s.cfg.Realm)
	if guild == "" || realm == "" {
		return orchestrator.Params{}, fmt.Errorf("%w: guild and realm are required", ErrInvalidRequest)
	}
	region, err := model.ParseRegion(firstNonEmpty(req.Region, s.cfg.Region))
	if err != nil {
		return orchestrator.Params{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	difficulty, err := model.ParseDifficulty(s.cfg.RaidDifficulty)
	if err != nil {
		return orchestrator.Params{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return orchestrator.Params{
		Guild:      guild,
		Realm:      realm,
		Region:     region,
		Difficulty: difficulty,
		Locale:     s.cfg.Locale,
		Level:      s.cfg.MaxLevel,
		Weeks:      s.cfg.WeeksToExamine,
		Iterations: s.cfg.SimIterations,
		Profiles:   s.cfg.FightProfile,
	}, nil
}

// newScheduler builds the run's scheduler and the function that releases it.
func (s *Service) newScheduler() (worker.Scheduler, func()) {
	timeout := time.Duration(s.cfg.SimTimeoutSec) * time.Second
	if s.cfg.Scheduler == config.SchedulerRemote {
		r := remote.New(s.cfg.RemoteEndpoint,
			remote.WithMaxConns(s.cfg.RemoteMaxConns),
			remote.WithTimeout(timeout+remoteSlack),
			remote.WithLogger(s.logger),
		)
		return r, func() { _ = r.Close() }
	}

	pool := worker.NewPool(s.runner,
		worker.WithWorkers(s.cfg.WorkerCount),
		worker.WithTimeout(timeout),
		worker.WithLogger(s.logger),
	)
	pool.Start(s.baseCtx)
	return pool, func() { _ = pool.Shutdown(context.Background()) }
}

// pump folds events into the run record and fans them out to subscribers.
// It returns when the reporter is closed at the end of the run.
func (s *Service) pump(id string, reporter *progress.Reporter) {
	tracker := progress.NewTracker()
	for ev := range reporter.Events() {
		tracker.Observe(ev)
		snap := tracker.Snapshot()
		_, _ = s.store.Update(context.Background(), id, func(r *repository.Run) { r.Progress = snap })
		s.broadcast(id, ev)
	}
	stats := reporter.Stats()
	if stats.Dropped > 0 {
		s.logger.Warn(context.Background(), "progress events dropped",
			logger.String("run_id", id),
			logger.Any("stats", stats),
		)
	}
}

func (s *Service) broadcast(id string, ev model.ProgressEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ar, ok := s.active[id]
	if !ok {
		return
	}
	for ch := range ar.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (s *Service) execute(id string, orch *orchestrator.Orchestrator, closeSched func(), pumped <-chan struct{}) {
	report, err := orch.Run(s.baseCtx)
	<-pumped
	closeSched()

	s.mu.Lock()
	if ar, ok := s.active[id]; ok {
		for ch := range ar.subs {
			close(ch)
		}
		delete(s.active, id)
	}
	s.mu.Unlock()

	update := func(r *repository.Run) {
		r.State = string(orch.State())
		switch {
		case err != nil:
			r.Status = repository.StatusFailed
			r.Error = err.Error()
		case report.Cancelled:
			r.Status = repository.StatusCancelled
			r.Report = report
		default:
			r.Status = repository.StatusDone
			r.Report = report
		}
	}
	if _, uerr := s.store.Update(context.Background(), id, update); uerr != nil {
		s.logger.Error(context.Background(), "run record lost", logger.String("run_id", id), logger.Error(uerr))
	}

	if err != nil {
		level := s.logger.Error
		if errors.Is(err, orchestrator.ErrInvalidParams) {
			level = s.logger.Warn
		}
		level(context.Background(), "run failed", logger.String("run_id", id), logger.Error(err))
	}

}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
