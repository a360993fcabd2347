package suite

import (
	"context"
	"time"

	"github.com/okian/simbot/internal/adapters/mq/worker"
	"github.com/okian/simbot/internal/domain/fingerprint"
	"github.com/okian/simbot/internal/domain/model"
	"github.com/okian/simbot/internal/domain/simcache"
	"github.com/okian/simbot/pkg/logger"
)

const defaultIterations = 100

// Publisher receives progress events.
type Publisher interface {
	Publish(ev model.ProgressEvent)
}

type nopPublisher struct{}

func (nopPublisher) Publish(model.ProgressEvent) {}

// Aggregator runs player suites against a run-scoped cache and scheduler.
type Aggregator struct {
	cache      *simcache.Cache
	scheduler  worker.Scheduler
	region     model.Region
	runID      string
	iterations int
	profile    ProfileFunc
	cancelled  func() bool
	publisher  Publisher
	now        func() time.Time
	log        logger.Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithIterations sets the simulator iteration count.
func WithIterations(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.iterations = n
		}
	}
}

// WithProfiles sets the boss to fight profile mapping.
func WithProfiles(f ProfileFunc) Option {
	return func(a *Aggregator) {
		if f != nil {
			a.profile = f
		}
	}
}

// WithCancelFlag sets the cancellation flag polled before queueing each unit.
func WithCancelFlag(f func() bool) Option {
	return func(a *Aggregator) {
		if f != nil {
			a.cancelled = f
		}
	}
}

// WithPublisher sets the progress event sink.
func WithPublisher(p Publisher) Option {
	return func(a *Aggregator) {
		if p != nil {
			a.publisher = p
		}
	}
}

// WithRunID tags published events.
func WithRunID(id string) Option {
	return func(a *Aggregator) {
		a.runID = id
	}
}

// WithClock replaces time.Now for elapsed time.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

// WithLogger sets a logger.
func WithLogger(l logger.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.log = l
		}
	}
}

// NewAggregator creates an aggregator for one run.
func NewAggregator(cache *simcache.Cache, scheduler worker.Scheduler, region model.Region, opts ...Option) *Aggregator {
	a := &Aggregator{
		cache:      cache,
		scheduler:  scheduler,
		region:     region,
		iterations: defaultIterations,
		profile:    func(string) string { return "Patchwerk" },
		cancelled:  func() bool { return false },
		publisher:  nopPublisher{},
		now:        time.Now,
		log:        logger.GetOrNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RunSuite simulates and scores every boss of one player. It never fails:
// simulation problems become per-boss markers. Bosses reached after
// cancellation are marked cancelled and queue nothing.
func (a *Aggregator) RunSuite(ctx context.Context, player model.Player, records map[string][]model.BossEncounterRecord) model.PlayerSuite {
	start := a.now()
	plans := Plan(player.Name, model.RealmSlug(player.Realm), a.region, records, a.profile, a.iterations)

	entries := make(map[fingerprint.Key]*simcache.Entry, len(plans))
	owned := make(map[fingerprint.Key]bool)
	for _, p := range plans {
		if p.NoKills {
			continue
		}
		if _, seen := entries[p.Key]; seen {
			continue
		}
		if a.cancelled() {
			a.log.Debug(ctx, "cancelled before queueing", logger.String("player", player.Name), logger.String("boss", p.Boss))
			continue
		}

		e, owner := a.cache.Acquire(ctx, p.Key)
		entries[p.Key] = e
		if !owner {
			a.log.Debug(ctx, "reusing cached simulation",
				logger.String("player", player.Name),
				logger.String("spec", string(p.Request.Spec)),
				logger.String("fight_profile", p.Request.FightProfile),
			)
			continue
		}

		u := worker.Unit{ID: string(p.Key), Player: player.Name, Boss: p.Boss, Key: p.Key, Request: p.Request}
		if err := a.scheduler.Queue(ctx, u); err != nil {
			a.log.Warn(ctx, "unit not queued", logger.String("unit", u.ID), logger.Error(err))
			a.cache.Resolve(p.Key, model.SimulationResult{Err: err})
			continue
		}
		owned[p.Key] = true
	}

	if len(owned) > 0 {
		for _, r := range a.scheduler.AwaitAll(ctx) {
			a.cache.Resolve(r.Unit.Key, r.SimulationResult())
			delete(owned, r.Unit.Key)
		}
		// a scheduler that lost a unit leaves its entry unresolved
		for key := range owned {
			a.log.Error(ctx, "no result for queued unit", logger.String("unit", string(key)))
			a.cache.Release(key)
		}
	}

	results := make(map[fingerprint.Key]model.SimulationResult, len(entries))
	for key, e := range entries {
		res, err := e.Wait(ctx)
		if err != nil {
			res = model.SimulationResult{Err: err}
		}
		results[key] = res
	}

	suite := Assemble(player.Name, plans, results)
	suite.ElapsedSeconds = a.now().Sub(start).Seconds()

	for _, b := range suite.Bosses {
		if !b.Scored() {
			continue
		}
		a.log.Info(ctx, "boss scored",
			logger.String("player", player.Name),
			logger.String("boss", b.Boss),
			logger.Int("fights", b.NumFights),
			logger.Float64("average_dps", b.AverageDPS),
			logger.Float64("sim_dps", b.SimDPS),
			logger.Float64("percent_potential", b.PercentPotential),
		)
		a.publisher.Publish(model.ProgressEvent{RunID: a.runID, Kind: model.EventBossCompleted, Player: player.Name, Boss: b.Boss})
	}
	return suite
}
