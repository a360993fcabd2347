// Package repository keeps the records of guild runs.
package repository

import (
	"context"
	"time"

	"github.com/okian/simbot/internal/domain/model"
	"github.com/okian/simbot/internal/domain/progress"
)

// Status is the lifecycle position of a run record.
type Status string

const (
	StatusRunning   Status = "running"
	StatusDone      Status = "done"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Finished reports whether the run has ended.
func (s Status) Finished() bool {
	return s == StatusDone || s == StatusFailed || s == StatusCancelled
}

// Run is one guild run as seen by API clients.
type Run struct {
	ID         string             `json:"id"`
	Guild      string             `json:"guild"`
	Realm      string             `json:"realm"`
	Region     model.Region       `json:"region"`
	Status     Status             `json:"status"`
	State      string             `json:"state"`
	Progress   progress.Snapshot  `json:"progress"`
	Report     *model.GuildReport `json:"report,omitempty"`
	Error      string             `json:"error,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
	FinishedAt *time.Time         `json:"finished_at,omitempty"`
}

// Store provides read/write access to run records.
type Store interface {
	// Create adds a new record. Returns ErrExists if the ID is taken.
	Create(ctx context.Context, run Run) error

	// Get returns a copy of the record. Returns ErrNotFound if unknown.
	Get(ctx context.Context, id string) (Run, error)

	// Update applies fn to the record under the store lock and returns the result.
	// Returns ErrNotFound if unknown.
	Update(ctx context.Context, id string, fn func(*Run)) (Run, error)

	// List returns up to limit records, newest first. A limit of 0 means all.
	List(ctx context.Context, limit int) ([]Run, error)

	// Count returns the number of records held.
	Count(ctx context.Context) int
}
