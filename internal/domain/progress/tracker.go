package progress

import (
	"sync"

	"github.com/okian/simbot/internal/domain/model"
)

// Snapshot is a point-in-time view of a run's progress.
type Snapshot struct {
	Total         int     `json:"total"`
	PlayersDone   int     `json:"players_done"`
	BossesDone    int     `json:"bosses_done"`
	Percent       float64 `json:"percent"`
	CurrentPlayer string  `json:"current_player,omitempty"`
	Finished      bool    `json:"finished"`
}

// Tracker folds events into a Snapshot. Safe for concurrent use.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Observe applies one event.
func (t *Tracker) Observe(ev model.ProgressEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch ev.Kind {
	case model.EventRunStarted:
		t.snap.Total = ev.Total
	case model.EventBossCompleted:
		t.snap.BossesDone++
		t.snap.CurrentPlayer = ev.Player
	case model.EventPlayerCompleted:
		t.snap.PlayersDone++
		t.snap.CurrentPlayer = ""
	case model.EventRunFinished:
		t.snap.Finished = true
	}

	switch {
	case t.snap.Finished:
		t.snap.Percent = 100
	case t.snap.Total > 0:
		t.snap.Percent = float64(t.snap.PlayersDone) / float64(t.snap.Total) * 100
	}
}

// Snapshot returns the current view.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap
}
