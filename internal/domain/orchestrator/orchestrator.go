// Package orchestrator drives one guild run: roster, logs, simulations, report.
//
// A run moves through idle, fetching_roster, fetching_talent_data (only when
// the log client has no talent table), then scheduling, running and
// aggregating once per DPS player in roster order, and ends in done.
// Cancel is cooperative: the flag is polled before each player and before
// each unit is queued, units already dispatched finish normally, and the
// report carries whatever completed.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/simbot/internal/adapters/mq/worker"
	"github.com/okian/simbot/internal/domain/model"
	"github.com/okian/simbot/internal/domain/simcache"
	"github.com/okian/simbot/internal/domain/suite"
	"github.com/okian/simbot/pkg/logger"
	"github.com/okian/simbot/pkg/metrics"
)

const defaultMetric = "dps"

// Roster fetches guild members and the talent table.
type Roster interface {
	GetGuildMembers(ctx context.Context, realm, guild, locale string, level int) (map[model.Role][]model.Player, []string, error)
	GetAllTalents(ctx context.Context, locale string) (model.TalentData, error)
}

// Logs fetches a player's historical kills.
type Logs interface {
	HasTalentData() bool
	SetTalentData(data model.TalentData)
	GetAllParses(ctx context.Context, player, realmSlug string, region model.Region, metric string, difficulty model.Difficulty, weeks int) (map[string][]model.BossEncounterRecord, error)
}

// Reporter receives progress events and is closed at the end of the run.
type Reporter interface {
	Publish(ev model.ProgressEvent)
	Close()
}

type nopReporter struct{}

func (nopReporter) Publish(model.ProgressEvent) {}
func (nopReporter) Close()                      {}

// Params describe the guild and the simulation settings of a run.
type Params struct {
	Guild      string
	Realm      string
	Region     model.Region
	Difficulty model.Difficulty
	Locale     string
	Level      int
	Weeks      int
	Metric     string
	Iterations int
	Profiles   suite.ProfileFunc
}

// Orchestrator runs one guild evaluation. It is single use.
type Orchestrator struct {
	roster    Roster
	logs      Logs
	scheduler worker.Scheduler
	params    Params

	cache    *simcache.Cache
	reporter Reporter
	runID    string
	onState  func(from, to State)
	now      func() time.Time
	log      logger.Logger

	started   atomic.Bool
	cancelled atomic.Bool

	mu    sync.RWMutex
	state State
}

// New creates an orchestrator. The scheduler must be dedicated to this run.
func New(roster Roster, logs Logs, scheduler worker.Scheduler, params Params, opts ...Option) *Orchestrator {
	if params.Metric == "" {
		params.Metric = defaultMetric
	}
	o := &Orchestrator{
		roster:    roster,
		logs:      logs,
		scheduler: scheduler,
		params:    params,
		reporter:  nopReporter{},
		now:       time.Now,
		log:       logger.GetOrNop().Named("orchestrator"),
		state:     StateIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.cache == nil {
		o.cache = simcache.New(simcache.WithLogger(o.log))
	}
	metrics.UpdateOrchestratorState("", string(StateIdle))
	return o
}

// State returns the current phase.
func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// Cancel asks the run to stop at the next safe point. Safe to call at any time.
func (o *Orchestrator) Cancel() {
	if o.cancelled.CompareAndSwap(false, true) {
		o.log.Info(context.Background(), "cancellation requested", logger.String("run_id", o.runID))
	}
}

// Cancelled reports whether Cancel was called.
func (o *Orchestrator) Cancelled() bool {
	return o.cancelled.Load()
}

// Run performs the evaluation. Only roster and talent table failures are
// returned as errors; everything else ends up in the report.
func (o *Orchestrator) Run(ctx context.Context) (*model.GuildReport, error) {
	if !o.started.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRun
	}
	defer o.reporter.Close()
	defer o.transition(StateDone)

	metrics.AddRunsActive(1)
	defer metrics.AddRunsActive(-1)

	p := o.params
	if p.Guild == "" || p.Realm == "" {
		return nil, fmt.Errorf("%w: guild and realm are required", ErrInvalidParams)
	}
	log := o.log.With(logger.String("run_id", o.runID), logger.String("guild", p.Guild))

	// ending ctx only requests a cancel; dispatched units finish or time out
	stop := context.AfterFunc(ctx, o.Cancel)
	defer stop()
	if ctx.Err() != nil {
		o.Cancel()
	}
	work := context.WithoutCancel(ctx)

	o.transition(StateFetchingRoster)
	byRole, _, err := o.roster.GetGuildMembers(work, p.Realm, p.Guild, p.Locale, p.Level)
	if err != nil {
		log.Error(ctx, "roster fetch failed", logger.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrRoster, err)
	}

	if !o.logs.HasTalentData() {
		o.transition(StateFetchingTalentData)
		data, err := o.roster.GetAllTalents(work, p.Locale)
		if err != nil {
			log.Error(ctx, "talent table fetch failed", logger.Error(err))
			return nil, fmt.Errorf("%w: %w", ErrNoTalentData, err)
		}
		o.logs.SetTalentData(data)
	}

	players := byRole[model.RoleDPS]
	o.reporter.Publish(model.ProgressEvent{RunID: o.runID, Kind: model.EventRunStarted, Total: len(players)})
	log.Info(ctx, "run started", logger.Int("players", len(players)))

	agg := suite.NewAggregator(o.cache, o.scheduler, p.Region,
		suite.WithIterations(p.Iterations),
		suite.WithProfiles(p.Profiles),
		suite.WithCancelFlag(o.Cancelled),
		suite.WithPublisher(o.reporter),
		suite.WithRunID(o.runID),
		suite.WithClock(o.now),
		suite.WithLogger(log),
	)

	report := &model.GuildReport{
		Guild:   p.Guild,
		Realm:   p.Realm,
		Region:  p.Region,
		Players: make(map[string]model.PlayerSuite, len(players)),
	}
	suites := make([]model.PlayerSuite, 0, len(players))

	for _, player := range players {
		if o.Cancelled() {
			o.transition(StateCancelling)
			break
		}
		ps := o.runPlayer(work, log, agg, player)
		report.Players[player.Name] = ps
		report.Order = append(report.Order, player.Name)
		suites = append(suites, ps)
		o.reporter.Publish(model.ProgressEvent{RunID: o.runID, Kind: model.EventPlayerCompleted, Player: player.Name})
	}
	if o.Cancelled() && o.State() != StateCancelling {
		o.transition(StateCancelling)
	}

	report.GuildAverage = suite.GuildAverage(suites)
	report.Cancelled = o.Cancelled()

	o.reporter.Publish(model.ProgressEvent{RunID: o.runID, Kind: model.EventRunFinished, Total: len(players)})
	log.Info(ctx, "run finished",
		logger.Int("players", len(report.Order)),
		logger.Float64("guild_avg", report.GuildAverage),
		logger.Bool("cancelled", report.Cancelled),
		logger.Any("cache", o.cache.Stats()),
	)
	return report, nil
}

func (o *Orchestrator) runPlayer(ctx context.Context, log logger.Logger, agg *suite.Aggregator, player model.Player) model.PlayerSuite {
	p := o.params
	start := o.now()
	log = log.With(logger.String("player", player.Name))

	o.transition(StateScheduling)
	records, err := o.logs.GetAllParses(ctx, player.Name, model.RealmSlug(player.Realm), p.Region, p.Metric, p.Difficulty, p.Weeks)
	if err != nil {
		log.Warn(ctx, "player skipped", logger.Error(err))
		metrics.RecordPlayerProcessed("error")
		return model.PlayerSuite{
			Player:         player.Name,
			Bosses:         []model.BossScore{},
			ElapsedSeconds: o.now().Sub(start).Seconds(),
			Error:          playerError(err),
		}
	}

	o.transition(StateRunning)
	ps := agg.RunSuite(ctx, player, records)
	o.transition(StateAggregating)

	outcome := "scored"
	for _, b := range ps.Bosses {
		if b.Error == model.MarkerCancelled {
			outcome = "cancelled"
			break
		}
	}
	metrics.RecordPlayerProcessed(outcome)
	log.Info(ctx, "player completed",
		logger.Float64("average_performance", ps.AveragePerformance),
		logger.Float64("elapsed_seconds", ps.ElapsedSeconds),
	)
	return ps
}

// playerError is the report text of a per-player failure.
func playerError(err error) string {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "Run was cancelled before this player was evaluated."
	}
	return err.Error()
}

func (o *Orchestrator) transition(to State) {
	o.mu.Lock()
	from := o.state
	if from == to || from.Terminal() {
		o.mu.Unlock()
		return
	}
	o.state = to
	o.mu.Unlock()

	metrics.UpdateOrchestratorState(string(from), string(to))
	o.log.Debug(context.Background(), "state transition",
		logger.String("from", string(from)),
		logger.String("to", string(to)),
	)
	if o.onState != nil {
		o.onState(from, to)
	}
}
