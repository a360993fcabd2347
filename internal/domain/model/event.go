package model

// EventKind tags a ProgressEvent.
type EventKind string

const (
	EventRunStarted      EventKind = "run_started"
	EventBossCompleted   EventKind = "boss_completed"
	EventPlayerCompleted EventKind = "player_completed"
	EventRunFinished     EventKind = "run_finished"
)

// ProgressEvent is a lifecycle notification of an orchestration run.
// Total is set on run_started, Player on boss and player events, Boss on boss events.
type ProgressEvent struct {
	RunID  string    `json:"run_id,omitempty"`
	Kind   EventKind `json:"kind"`
	Total  int       `json:"total,omitempty"`
	Player string    `json:"player,omitempty"`
	Boss   string    `json:"boss,omitempty"`
}
