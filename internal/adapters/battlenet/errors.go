package battlenet

import (
	"errors"
	"fmt"
)

// ErrNoMembers is wrapped when the guild response carries no member list.
var ErrNoMembers = errors.New("battlenet: guild response has no members")

// RosterKind classifies a roster failure.
type RosterKind string

const (
	RosterRealmNotFound RosterKind = "realm_not_found"
	RosterGuildNotFound RosterKind = "guild_not_found"
	RosterUnavailable   RosterKind = "unavailable"
)

// RosterError reports that the guild roster could not be fetched.
type RosterError struct {
	Kind  RosterKind
	Realm string
	Guild string
	Err   error
}

func (e *RosterError) Error() string {
	return fmt.Sprintf("roster %s/%s: %s: %v", e.Realm, e.Guild, e.Kind, e.Err)
}

func (e *RosterError) Unwrap() error { return e.Err }
