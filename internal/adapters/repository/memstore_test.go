package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/simbot/internal/domain/model"
)

func fixedClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2017, 7, 20, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func newStore(t *testing.T, opts ...Option) *MemoryStore {
	t.Helper()
	opts = append([]Option{WithClock(fixedClock()), WithMetricsUpdateInterval(time.Hour)}, opts...)
	s := NewMemoryStore(context.Background(), opts...)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMemoryStore_BasicOperations(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	if count := store.Count(ctx); count != 0 {
		t.Errorf("expected count 0, got %d", count)
	}

	err := store.Create(ctx, Run{ID: "run-1", Guild: "Ludicrous Speed", Realm: "Aerie Peak", Region: model.RegionUS, Status: StatusRunning})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count := store.Count(ctx); count != 1 {
		t.Errorf("expected count 1, got %d", count)
	}

	got, err := store.Get(ctx, "run-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Guild != "Ludicrous Speed" || got.Status != StatusRunning {
		t.Errorf("unexpected record %+v", got)
	}
	if got.CreatedAt.IsZero() || got.FinishedAt != nil {
		t.Errorf("unexpected timestamps %+v", got)
	}

	if err := store.Create(ctx, Run{ID: "run-1"}); !errors.Is(err, ErrExists) {
		t.Errorf("expected ErrExists, got %v", err)
	}
	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_Update(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	if err := store.Create(ctx, Run{ID: "run-1", Status: StatusRunning}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	updated, err := store.Update(ctx, "run-1", func(r *Run) {
		r.ID = "hijacked"
		r.State = "running"
		r.Progress.PlayersDone = 2
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.ID != "run-1" {
		t.Errorf("ID must not change, got %s", updated.ID)
	}
	if updated.Progress.PlayersDone != 2 || updated.FinishedAt != nil {
		t.Errorf("unexpected record %+v", updated)
	}

	report := &model.GuildReport{Guild: "Ludicrous Speed", GuildAverage: 74.2}
	done, err := store.Update(ctx, "run-1", func(r *Run) {
		r.Status = StatusDone
		r.Report = report
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if done.FinishedAt == nil {
		t.Fatal("expected FinishedAt to be set on completion")
	}
	first := *done.FinishedAt

	again, _ := store.Update(ctx, "run-1", func(r *Run) { r.State = "done" })
	if !again.FinishedAt.Equal(first) {
		t.Errorf("FinishedAt moved from %v to %v", first, *again.FinishedAt)
	}
	if again.Report.GuildAverage != 74.2 {
		t.Errorf("expected report to be kept, got %+v", again.Report)
	}

	if _, err := store.Update(ctx, "missing", func(*Run) {}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_List(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	for i := 1; i <= 5; i++ {
		if err := store.Create(ctx, Run{ID: fmt.Sprintf("run-%d", i), Status: StatusRunning}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	all, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 5 || all[0].ID != "run-5" || all[4].ID != "run-1" {
		t.Errorf("expected newest first, got %v", ids(all))
	}

	top, _ := store.List(ctx, 2)
	if len(top) != 2 || top[1].ID != "run-4" {
		t.Errorf("unexpected page %v", ids(top))
	}

	if _, err := store.List(ctx, -1); !errors.Is(err, ErrInvalidLimit) {
		t.Errorf("expected ErrInvalidLimit, got %v", err)
	}
}

func TestMemoryStore_Prune(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, WithRetention(2))

	for i := 1; i <= 5; i++ {
		status := StatusDone
		if i == 1 {
			status = StatusRunning
		}
		if err := store.Create(ctx, Run{ID: fmt.Sprintf("run-%d", i), Status: status}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if removed := store.prune(); removed != 2 {
		t.Errorf("expected 2 pruned, got %d", removed)
	}
	all, _ := store.List(ctx, 0)
	want := []string{"run-5", "run-4", "run-1"}
	if got := ids(all); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	if removed := store.prune(); removed != 0 {
		t.Errorf("expected nothing more to prune, got %d", removed)
	}
}

func TestMemoryStore_Concurrent(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	if err := store.Create(ctx, Run{ID: "run-1", Status: StatusRunning}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = store.Update(ctx, "run-1", func(r *Run) { r.Progress.BossesDone++ })
			_, _ = store.Get(ctx, "run-1")
			_, _ = store.List(ctx, 1)
		}()
	}
	wg.Wait()

	got, _ := store.Get(ctx, "run-1")
	if got.Progress.BossesDone != 50 {
		t.Errorf("expected 50 updates, got %d", got.Progress.BossesDone)
	}
}

func TestMemoryStore_Close(t *testing.T) {
	store := NewMemoryStore(context.Background(), WithMetricsUpdateInterval(time.Millisecond))
	time.Sleep(5 * time.Millisecond)
	if err := store.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func BenchmarkMemoryStore_Update(b *testing.B) {
	ctx := context.Background()
	store := NewMemoryStore(ctx)
	defer store.Close()
	_ = store.Create(ctx, Run{ID: "run-1", Status: StatusRunning})

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, _ = store.Update(ctx, "run-1", func(r *Run) { r.Progress.BossesDone++ })
		}
	})
}

func ids(runs []Run) []string {
	out := make([]string, len(runs))
	for i, r := range runs {
		out[i] = r.ID
	}
	return out
}
