package suite_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/okian/simbot/internal/adapters/mq/worker"
	"github.com/okian/simbot/internal/adapters/simc"
	"github.com/okian/simbot/internal/domain/fingerprint"
	"github.com/okian/simbot/internal/domain/model"
	"github.com/okian/simbot/internal/domain/simcache"
	"github.com/okian/simbot/internal/domain/suite"
	. "github.com/smartystreets/goconvey/convey"
)

var profiles = map[string]string{
	"Goroth":              "Patchwerk",
	"Demonic Inquisition": "HecticAddCleave",
	"Harjatan":            "Patchwerk",
}

func profile(boss string) string { return profiles[boss] }

func kill(dps, ilvl, pct float64, spec string, talents ...int) model.BossEncounterRecord {
	return model.BossEncounterRecord{DPS: dps, ItemLevel: ilvl, HistoricalPercent: pct, Spec: spec, Talents: talents}
}

func redrimerRecords() map[string][]model.BossEncounterRecord {
	return map[string][]model.BossEncounterRecord{
		"Goroth": {
			kill(800000, 905, 80, "Frost", 1, 1, 3, 3, 1, 2, 1),
			kill(900000, 907, 90, "Frost", 1, 1, 3, 3, 1, 2, 1),
		},
		"Harjatan": {},
		"Demonic Inquisition": {
			kill(600000, 906, 70, "Frost", 1, 1, 1, 1, 1, 1, 1),
			kill(600000, 906, 70, "Frost", 2, 2, 2, 2, 2, 2, 2),
		},
	}
}

// stubScheduler runs units synchronously in AwaitAll.
type stubScheduler struct {
	mu     sync.Mutex
	run    func(u worker.Unit) (float64, error)
	batch  []worker.Unit
	queued []worker.Unit
}

func (s *stubScheduler) Queue(_ context.Context, u worker.Unit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batch = append(s.batch, u)
	s.queued = append(s.queued, u)
	return nil
}

func (s *stubScheduler) AwaitAll(_ context.Context) []worker.Result {
	s.mu.Lock()
	batch := s.batch
	s.batch = nil
	s.mu.Unlock()

	out := make([]worker.Result, 0, len(batch))
	for _, u := range batch {
		dps, err := s.run(u)
		out = append(out, worker.Result{Unit: u, DPS: dps, Err: err})
	}
	return out
}

func bySimProfile(u worker.Unit) (float64, error) {
	switch u.Request.FightProfile {
	case "Patchwerk":
		return 1000000, nil
	case "HecticAddCleave":
		return 750000, nil
	}
	return 0, errors.New("unknown profile")
}

type recorder struct {
	mu     sync.Mutex
	events []model.ProgressEvent
}

func (r *recorder) Publish(ev model.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func TestPlan(t *testing.T) {
	Convey("Given Redrimer's records", t, func() {
		plans := suite.Plan("Redrimer", "aerie-peak", model.RegionUS, redrimerRecords(), profile, 100)

		Convey("Then bosses are planned in name order", func() {
			So(plans, ShouldHaveLength, 3)
			So(plans[0].Boss, ShouldEqual, "Demonic Inquisition")
			So(plans[1].Boss, ShouldEqual, "Goroth")
			So(plans[2].Boss, ShouldEqual, "Harjatan")
		})

		Convey("Then a boss with N kills uses the mean of the N values", func() {
			g := plans[1]
			So(g.NumFights, ShouldEqual, 2)
			So(g.AverageDPS, ShouldAlmostEqual, 850000.0, 1e-9)
			So(g.AverageIlvl, ShouldAlmostEqual, 906.0, 1e-9)
			So(g.AverageHistoricalPercent, ShouldAlmostEqual, 85.0, 1e-9)
		})

		Convey("Then the request is built from the best kill", func() {
			g := plans[1]
			So(g.Request.Spec, ShouldEqual, model.SpecFrost)
			So(g.Request.Talents, ShouldEqual, "1133121")
			So(g.Request.FightProfile, ShouldEqual, "Patchwerk")
			So(g.Request.Iterations, ShouldEqual, 100)
			So(g.Key, ShouldEqual, fingerprint.Of(model.RegionUS, "aerie-peak", "Redrimer", model.SpecFrost, "Patchwerk"))
		})

		Convey("Then the first of equal best kills wins", func() {
			So(plans[0].Request.Talents, ShouldEqual, "1111111")
		})

		Convey("Then a boss without kills is flagged", func() {
			So(plans[2].NoKills, ShouldBeTrue)
		})
	})

	Convey("Given a best kill logged as beastmastery", t, func() {
		records := map[string][]model.BossEncounterRecord{"Goroth": {kill(500000, 900, 50, "BeastMastery", 1, 2, 3)}}
		plans := suite.Plan("Verrota", "aerie-peak", model.RegionUS, records, profile, 100)

		Convey("Then the simulator spelling is used", func() {
			So(plans[0].Request.Spec, ShouldEqual, model.SpecBeastMastery)
		})
	})
}

func TestAssemble(t *testing.T) {
	Convey("Given plans and results", t, func() {
		plans := suite.Plan("Redrimer", "aerie-peak", model.RegionUS, redrimerRecords(), profile, 100)
		results := map[fingerprint.Key]model.SimulationResult{
			plans[0].Key: {DPS: 750000},
			plans[1].Key: {DPS: 1000000},
		}

		s := suite.Assemble("Redrimer", plans, results)

		Convey("Then percent of potential is mean over simulated times 100", func() {
			So(s.Bosses[1].PercentPotential, ShouldAlmostEqual, 85.0, 1e-9)
			So(s.Bosses[1].SimDPS, ShouldEqual, 1000000.0)
			So(s.Bosses[0].PercentPotential, ShouldAlmostEqual, 80.0, 1e-9)
		})

		Convey("Then bosses without kills are marked and excluded", func() {
			So(s.Bosses[2].Error, ShouldEqual, model.MarkerNoKillsLogged)
			So(s.Bosses[2].Message, ShouldEqual, "No kills logged for this boss.")
			So(s.AveragePerformance, ShouldAlmostEqual, 82.5, 1e-9)
		})

		Convey("Then assembling twice gives byte-identical JSON", func() {
			first, err := json.Marshal(suite.Assemble("Redrimer", plans, results))
			So(err, ShouldBeNil)
			second, err := json.Marshal(suite.Assemble("Redrimer", plans, results))
			So(err, ShouldBeNil)
			So(string(second), ShouldEqual, string(first))
		})

		Convey("When a simulation failed", func() {
			results[plans[1].Key] = model.SimulationResult{Err: errors.New("sim timed out")}
			s := suite.Assemble("Redrimer", plans, results)

			Convey("Then that boss carries a sim error and leaves the average", func() {
				So(s.Bosses[1].Error, ShouldEqual, model.MarkerSimError)
				So(s.Bosses[1].Message, ShouldEqual, "SimulationCraft threw an error while running the sim.")
				So(s.AveragePerformance, ShouldAlmostEqual, 80.0, 1e-9)
			})
		})

		Convey("When a result is missing", func() {
			delete(results, plans[0].Key)
			s := suite.Assemble("Redrimer", plans, results)

			Convey("Then the boss is marked cancelled", func() {
				So(s.Bosses[0].Error, ShouldEqual, model.MarkerCancelled)
			})
		})
	})

	Convey("Given a player with no kills on any boss", t, func() {
		records := map[string][]model.BossEncounterRecord{"Goroth": nil, "Harjatan": {}}
		plans := suite.Plan("Lunaraura", "aerie-peak", model.RegionUS, records, profile, 100)
		s := suite.Assemble("Lunaraura", plans, nil)

		Convey("Then every boss is no-kills and the average is 0", func() {
			for _, b := range s.Bosses {
				So(b.Error, ShouldEqual, model.MarkerNoKillsLogged)
			}
			So(s.AveragePerformance, ShouldEqual, 0.0)
		})
	})
}

func TestGuildAverage(t *testing.T) {
	Convey("Given suites with and without whole-suite errors", t, func() {
		suites := []model.PlayerSuite{
			{Player: "Redrimer", AveragePerformance: 74.0},
			{Player: "Lunaraura", AveragePerformance: 76.0},
			{Player: "Verrota", Error: "No logs on record."},
		}

		Convey("Then errored players leave the denominator", func() {
			So(suite.GuildAverage(suites), ShouldAlmostEqual, 75.0, 1e-9)
		})

		Convey("Then a player cut off by cancellation before any score is left out", func() {
			cut := model.PlayerSuite{Player: "Lunaraura", Bosses: []model.BossScore{
				{Boss: "Goroth", Error: model.MarkerCancelled},
				{Boss: "Harjatan", Error: model.MarkerNoKillsLogged},
			}}
			So(suite.GuildAverage(append(suites, cut)), ShouldAlmostEqual, 75.0, 1e-9)
		})

		Convey("Then a player with scored bosses before the cancel still counts", func() {
			partial := model.PlayerSuite{Player: "Lunaraura", AveragePerformance: 90, Bosses: []model.BossScore{
				{Boss: "Goroth", SimDPS: 1000000, PercentPotential: 90},
				{Boss: "Harjatan", Error: model.MarkerCancelled},
			}}
			So(suite.GuildAverage(append(suites, partial)), ShouldAlmostEqual, 80.0, 1e-9)
		})

		Convey("Then no eligible players average to 0", func() {
			So(suite.GuildAverage(suites[2:]), ShouldEqual, 0.0)
			So(suite.GuildAverage(nil), ShouldEqual, 0.0)
		})
	})
}

func TestRunSuite(t *testing.T) {
	Convey("Given an aggregator over a stub scheduler", t, func() {
		ctx := context.Background()
		cache := simcache.New()
		sched := &stubScheduler{run: bySimProfile}
		events := &recorder{}
		player := model.Player{Name: "Redrimer", Realm: "Aerie Peak", Level: 110, Role: model.RoleDPS, Spec: "Frost"}

		agg := suite.NewAggregator(cache, sched, model.RegionUS,
			suite.WithProfiles(profile),
			suite.WithPublisher(events),
			suite.WithRunID("run-1"),
		)

		Convey("When the suite runs", func() {
			s := agg.RunSuite(ctx, player, redrimerRecords())

			Convey("Then each distinct configuration is simulated once", func() {
				So(sched.queued, ShouldHaveLength, 2)
				So(sched.queued[0].Request.RealmSlug, ShouldEqual, "Aerie Peak")
			})

			Convey("Then the suite is scored", func() {
				So(s.Player, ShouldEqual, "Redrimer")
				So(s.AveragePerformance, ShouldAlmostEqual, 82.5, 1e-9)
				So(s.Error, ShouldBeEmpty)
			})

			Convey("Then a boss event is published per scored boss", func() {
				So(events.events, ShouldHaveLength, 2)
				So(events.events[0].Kind, ShouldEqual, model.EventBossCompleted)
				So(events.events[0].RunID, ShouldEqual, "run-1")
				So(events.events[0].Boss, ShouldEqual, "Demonic Inquisition")
			})

			Convey("Then a second run of the same suite reuses the cache", func() {
				again := agg.RunSuite(ctx, player, redrimerRecords())
				So(sched.queued, ShouldHaveLength, 2)
				So(again.Bosses, ShouldResemble, s.Bosses)
			})
		})

		Convey("When a simulation fails", func() {
			calls := 0
			sched.run = func(u worker.Unit) (float64, error) {
				calls++
				if u.Request.FightProfile == "Patchwerk" {
					return 0, errors.New("simulator exited with status 1")
				}
				return bySimProfile(u)
			}
			first := agg.RunSuite(ctx, player, redrimerRecords())
			second := agg.RunSuite(ctx, player, redrimerRecords())

			Convey("Then the cached failure is reused without running again", func() {
				So(calls, ShouldEqual, 2)
				So(first.Bosses[1].Error, ShouldEqual, model.MarkerSimError)
				So(second.Bosses[1].Error, ShouldEqual, model.MarkerSimError)
				So(cache.Stats().Poisoned, ShouldEqual, int64(1))
			})
		})

		Convey("When the run is already cancelled", func() {
			cancelled := suite.NewAggregator(cache, sched, model.RegionUS,
				suite.WithProfiles(profile),
				suite.WithCancelFlag(func() bool { return true }),
			)
			s := cancelled.RunSuite(ctx, player, redrimerRecords())

			Convey("Then nothing is queued and simulated bosses are marked cancelled", func() {
				So(sched.queued, ShouldBeEmpty)
				So(s.Bosses[0].Error, ShouldEqual, model.MarkerCancelled)
				So(s.Bosses[1].Error, ShouldEqual, model.MarkerCancelled)
				So(s.Bosses[2].Error, ShouldEqual, model.MarkerNoKillsLogged)
				So(s.AveragePerformance, ShouldEqual, 0.0)
			})
		})
	})
}

func TestRunSuiteTimeout(t *testing.T) {
	Convey("Given a simulator that never finishes in time", t, func() {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "simc")
		So(os.WriteFile(path, []byte("#!/bin/sh\nexec sleep 10\n"), 0o755), ShouldBeNil) //nolint:gosec // test executable

		runner, err := simc.New(path, simc.WithWaitDelay(100*time.Millisecond))
		So(err, ShouldBeNil)
		pool := worker.NewPool(runner, worker.WithWorkers(2), worker.WithTimeout(200*time.Millisecond))
		pool.Start(ctx)
		defer func() { _ = pool.Shutdown(ctx) }()

		agg := suite.NewAggregator(simcache.New(), pool, model.RegionUS, suite.WithProfiles(profile))
		records := map[string][]model.BossEncounterRecord{"Goroth": {kill(800000, 905, 80, "Frost", 1, 1, 3, 3, 1, 2, 1)}}

		s := agg.RunSuite(ctx, model.Player{Name: "Redrimer", Realm: "Aerie Peak"}, records)

		Convey("Then the boss carries a sim error instead of failing the suite", func() {
			So(s.Bosses, ShouldHaveLength, 1)
			So(s.Bosses[0].Error, ShouldEqual, model.MarkerSimError)
			So(s.AveragePerformance, ShouldEqual, 0.0)
		})
	})
}
