package simcache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/simbot/internal/domain/fingerprint"
	"github.com/okian/simbot/internal/domain/model"
	"github.com/okian/simbot/internal/domain/simcache"
	"github.com/smartystreets/goconvey/convey"
)

func TestCacheAcquire(t *testing.T) {
	convey.Convey("Given an empty cache", t, func() {
		ctx := context.Background()
		c := simcache.New()
		key := fingerprint.Of(model.RegionUS, "aerie-peak", "Redrimer", model.SpecFrost, "Patchwerk")

		convey.Convey("When the same key is acquired twice", func() {
			first, owner1 := c.Acquire(ctx, key)
			second, owner2 := c.Acquire(ctx, key)

			convey.Convey("Then only the first caller owns it and both share the entry", func() {
				convey.So(owner1, convey.ShouldBeTrue)
				convey.So(owner2, convey.ShouldBeFalse)
				convey.So(second, convey.ShouldEqual, first)
				convey.So(c.Stats().Misses, convey.ShouldEqual, int64(1))
				convey.So(c.Stats().Hits, convey.ShouldEqual, int64(1))
			})

			convey.Convey("And resolving wakes the waiter with the result", func() {
				go c.Resolve(key, model.SimulationResult{DPS: 845266})
				res, err := second.Wait(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(res.DPS, convey.ShouldEqual, 845266.0)
			})
		})

		convey.Convey("When a failure is resolved", func() {
			_, _ = c.Acquire(ctx, key)
			boom := errors.New("sim timed out")
			c.Resolve(key, model.SimulationResult{Err: boom})

			convey.Convey("Then later lookups get the same failure without owning the entry", func() {
				e, owner := c.Acquire(ctx, key)
				convey.So(owner, convey.ShouldBeFalse)
				res, err := e.Wait(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(res.Err, convey.ShouldEqual, boom)
				convey.So(c.Stats().Poisoned, convey.ShouldEqual, int64(1))
			})
		})

		convey.Convey("When the owner releases the entry", func() {
			_, _ = c.Acquire(ctx, key)
			waiter, _ := c.Acquire(ctx, key)
			c.Release(key)

			convey.Convey("Then waiters see ErrReleased and the key can be owned again", func() {
				_, err := waiter.Wait(ctx)
				convey.So(errors.Is(err, simcache.ErrReleased), convey.ShouldBeTrue)
				_, owner := c.Acquire(ctx, key)
				convey.So(owner, convey.ShouldBeTrue)
			})
		})

		convey.Convey("When waiting on an entry that never resolves", func() {
			e, _ := c.Acquire(ctx, key)
			wctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
			defer cancel()

			convey.Convey("Then the context ends the wait", func() {
				_, err := e.Wait(wctx)
				convey.So(errors.Is(err, context.DeadlineExceeded), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When resolving an unknown key", func() {
			c.Resolve("ffffffffffffffff", model.SimulationResult{DPS: 1})

			convey.Convey("Then nothing is stored", func() {
				_, ok := c.Lookup("ffffffffffffffff")
				convey.So(ok, convey.ShouldBeFalse)
			})
		})
	})
}

func TestCacheConcurrentOwnership(t *testing.T) {
	convey.Convey("Given many goroutines racing for one key", t, func() {
		ctx := context.Background()
		c := simcache.New()
		key := fingerprint.Of(model.RegionUS, "aerie-peak", "Verrota", model.SpecBeastMastery, "Patchwerk")

		var owners atomic.Int32
		var runs atomic.Int32
		var wg sync.WaitGroup
		results := make([]float64, 32)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				e, owner := c.Acquire(ctx, key)
				if owner {
					owners.Add(1)
					runs.Add(1)
					c.Resolve(key, model.SimulationResult{DPS: 1109791})
				}
				res, err := e.Wait(ctx)
				if err == nil {
					results[i] = res.DPS
				}
			}(i)
		}
		wg.Wait()

		convey.Convey("Then exactly one owner ran the simulation and everyone saw its result", func() {
			convey.So(owners.Load(), convey.ShouldEqual, int64(1))
			convey.So(runs.Load(), convey.ShouldEqual, int64(1))
			for _, r := range results {
				convey.So(r, convey.ShouldEqual, 1109791.0)
			}
			convey.So(c.Stats().Size, convey.ShouldEqual, 1)
		})
	})
}
