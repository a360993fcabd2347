package worker

import "errors"

// Sentinel kinds for scheduler errors.
var (
	ErrClosed      = errors.New("scheduler closed")
	ErrNotStarted  = errors.New("worker pool not started")
	ErrDuplicateID = errors.New("unit already pending")
	ErrRunnerPanic = errors.New("simulation runner panicked")
	ErrAbandoned   = errors.New("unit abandoned before completion")
)
