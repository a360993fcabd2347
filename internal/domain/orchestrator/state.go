package orchestrator

// State is a phase of one orchestration run.
type State string

const (
	StateIdle               State = "idle"
	StateFetchingRoster     State = "fetching_roster"
	StateFetchingTalentData State = "fetching_talent_data"
	StateScheduling         State = "scheduling"
	StateRunning            State = "running"
	StateAggregating        State = "aggregating"
	StateCancelling         State = "cancelling"
	StateDone               State = "done"
)

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateDone
}
