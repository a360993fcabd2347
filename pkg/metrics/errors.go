package metrics

import (
	"errors"
)

// ErrNotFound is returned by Value when no sample matches the requested metric.
var ErrNotFound = errors.New("metric not found")
