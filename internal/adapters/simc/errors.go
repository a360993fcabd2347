package simc

import (
	"errors"
	"fmt"
	"time"

	"github.com/okian/simbot/internal/domain/model"
)

var (
	// ErrConfiguration is returned by New when the simulator path is unusable.
	ErrConfiguration = errors.New("simc: bad simulator configuration")
	// ErrParse is returned when the output carries no throughput figure.
	ErrParse = errors.New("simc: no dps found in simulator output")
)

// TimeoutError is returned when the simulator did not finish in time. The process has been killed.
type TimeoutError struct {
	Request model.SimulationRequest
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("simc: sim timed out after %s with string %q", e.Timeout, e.Request.String())
}

// ProcessError is returned for a nonzero exit or, when captured, any stderr output.
type ProcessError struct {
	Request  model.SimulationRequest
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ProcessError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("simc: process error (exit %d): %s", e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("simc: process error (exit %d): %v", e.ExitCode, e.Err)
}

func (e *ProcessError) Unwrap() error { return e.Err }
