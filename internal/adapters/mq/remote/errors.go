package remote

import (
	"errors"
	"fmt"
)

// ErrDecode is returned when the worker's answer cannot be read.
var ErrDecode = errors.New("invalid worker response")

// WorkerError is a failure reported by the remote simulation worker.
type WorkerError struct {
	StatusCode int
	Message    string
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("remote worker returned %d: %s", e.StatusCode, e.Message)
}
