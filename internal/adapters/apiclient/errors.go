package apiclient

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDecode is returned when a response body is not the expected JSON.
var ErrDecode = errors.New("apiclient: decode response")

// TransportError is a network level failure: no response was received.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error calling %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Kind classifies an upstream failure reason.
type Kind string

const (
	KindRealmNotFound     Kind = "realm_not_found"
	KindGuildNotFound     Kind = "guild_not_found"
	KindCharacterNotFound Kind = "character_not_found"
	KindUnknown           Kind = "unknown"
)

// UpstreamError is a response whose body reports a failure.
// Message carries the upstream text unchanged.
type UpstreamError struct {
	Kind       Kind
	Message    string
	StatusCode int
	URL        string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error (%s, status %d): %s", e.Kind, e.StatusCode, e.Message)
}

// classify maps a failure reason to a Kind.
func classify(reason string) Kind {
	r := strings.ToLower(reason)
	switch {
	case strings.Contains(r, "realm not found"):
		return KindRealmNotFound
	case strings.Contains(r, "guild not found"):
		return KindGuildNotFound
	case strings.Contains(r, "character not found"):
		return KindCharacterNotFound
	default:
		return KindUnknown
	}
}
