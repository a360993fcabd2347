package service

import "errors"

// Sentinel errors returned by the Service.
var (
	ErrNotStarted     = errors.New("service not started")
	ErrNoRunner       = errors.New("local scheduler requires a simulation runner")
	ErrInvalidRequest = errors.New("invalid run request")
	ErrNotRunning     = errors.New("run is not running")
)
