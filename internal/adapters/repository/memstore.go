package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/simbot/pkg/metrics"
)

// MemoryStore is an in-memory Store. Records are kept in creation order;
// once more than the retention of finished runs exist, the oldest finished
// ones are pruned by the background updater.
type MemoryStore struct {
	mu    sync.RWMutex
	byID  map[string]*Run
	order []string

	retention             int
	metricsUpdateInterval time.Duration
	now                   func() time.Time

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs a store and starts its background updater, which
// stops when ctx ends or Close is called.
func NewMemoryStore(ctx context.Context, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		byID:                  make(map[string]*Run),
		retention:             100,
		metricsUpdateInterval: 5 * time.Second,
		now:                   time.Now,
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startMetricsUpdater(ctx)
	return s
}

// Close stops the background updater.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

// Create implements Store.Create.
func (s *MemoryStore) Create(_ context.Context, run Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[run.ID]; ok {
		return fmt.Errorf("%w: %s", ErrExists, run.ID)
	}
	now := s.now()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now
	s.byID[run.ID] = &run
	s.order = append(s.order, run.ID)
	return nil
}

// Get implements Store.Get.
func (s *MemoryStore) Get(_ context.Context, id string) (Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.byID[id]
	if !ok {
		return Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *r, nil
}

// Update implements Store.Update. The ID cannot be changed.
func (s *MemoryStore) Update(_ context.Context, id string, fn func(*Run)) (Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byID[id]
	if !ok {
		return Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	wasFinished := r.Status.Finished()
	fn(r)
	r.ID = id
	r.UpdatedAt = s.now()
	if !wasFinished && r.Status.Finished() && r.FinishedAt == nil {
		t := r.UpdatedAt
		r.FinishedAt = &t
	}
	return *r, nil
}

// List implements Store.List.
func (s *MemoryStore) List(_ context.Context, limit int) ([]Run, error) {
	if limit < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.order)
	if limit == 0 || limit > n {
		limit = n
	}
	out := make([]Run, 0, limit)
	for i := n - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *s.byID[s.order[i]])
	}
	return out, nil
}

// Count implements Store.Count.
func (s *MemoryStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// startMetricsUpdater starts a background goroutine that prunes and updates store metrics
func (s *MemoryStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.prune()
				s.updateMetrics()
			}
		}
	}()
}

// prune drops the oldest finished records beyond the retention.
func (s *MemoryStore) prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	finished := 0
	for _, id := range s.order {
		if s.byID[id].Status.Finished() {
			finished++
		}
	}
	excess := finished - s.retention
	if excess <= 0 {
		return 0
	}

	kept := s.order[:0]
	removed := 0
	for _, id := range s.order {
		if removed < excess && s.byID[id].Status.Finished() {
			delete(s.byID, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return removed
}

func (s *MemoryStore) updateMetrics() {
	counts := map[Status]int{StatusRunning: 0, StatusDone: 0, StatusFailed: 0, StatusCancelled: 0}
	s.mu.RLock()
	for _, r := range s.byID {
		counts[r.Status]++
	}
	s.mu.RUnlock()

	for status, n := range counts {
		metrics.UpdateRunsStored(string(status), n)
	}
}
