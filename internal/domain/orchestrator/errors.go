package orchestrator

import "errors"

// Sentinel errors. Roster failures keep their *battlenet.RosterError in the chain.
var (
	ErrAlreadyRun    = errors.New("orchestrator: run already started")
	ErrRoster        = errors.New("orchestrator: guild roster unavailable")
	ErrNoTalentData  = errors.New("orchestrator: talent data unavailable")
	ErrInvalidParams = errors.New("orchestrator: invalid parameters")
)
