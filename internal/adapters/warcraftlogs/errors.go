package warcraftlogs

import (
	"errors"
	"fmt"
)

// Log analytics failures of one player. The first two texts end up in reports.
var ( //nolint:stylecheck // report text
	ErrNoLogs          = errors.New("No logs on record.")
	ErrNoRecentKills   = errors.New("No kills in the given time window.")
	ErrNoTalentData    = errors.New("talent data not set")
	ErrInvalidArgument = errors.New("invalid argument")
)

// ServerError is an unusable log service response.
type ServerError struct {
	StatusCode int
	Err        error
}

func (e *ServerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("WarcraftLogs server error %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("WarcraftLogs server error %d", e.StatusCode)
}

func (e *ServerError) Unwrap() error { return e.Err }
