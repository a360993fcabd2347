package model

import "errors"

// ErrUnknownValue is returned when a string does not name a member of a closed enumeration.
var ErrUnknownValue = errors.New("unknown value")
