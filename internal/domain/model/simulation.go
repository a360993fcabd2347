package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// BossEncounterRecord is one historical kill of a boss by a player.
type BossEncounterRecord struct {
	Boss              string    `json:"boss"`
	ItemLevel         float64   `json:"ilvl"`
	DPS               float64   `json:"dps"`
	HistoricalPercent float64   `json:"historical_percent"`
	Talents           []int     `json:"talents"`
	Spec              string    `json:"spec"`
	Timestamp         time.Time `json:"timestamp"`
}

// SimulationRequest holds everything the simulator needs for one run.
type SimulationRequest struct {
	Region       Region `json:"region"`
	RealmSlug    string `json:"realm_slug"`
	Character    string `json:"character_name"`
	Spec         Spec   `json:"spec"`
	Talents      string `json:"talent_string"`
	FightProfile string `json:"fight_style"`
	Iterations   int    `json:"iterations"`
}

// Args returns the simulator parameter list for the request.
func (r SimulationRequest) Args() []string {
	return []string{
		fmt.Sprintf("armory=%s,%s,%s", r.Region, r.RealmSlug, r.Character),
		"spec=" + string(r.Spec),
		"talents=" + r.Talents,
		"fight_style=" + r.FightProfile,
		"iterations=" + strconv.Itoa(r.Iterations),
	}
}

// String renders the request the way it is passed to the simulator.
func (r SimulationRequest) String() string {
	return strings.Join(r.Args(), " ")
}

// TalentString joins talent choices into the simulator's digit string.
func TalentString(talents []int) string {
	var b strings.Builder
	for _, t := range talents {
		b.WriteString(strconv.Itoa(t))
	}
	return b.String()
}

// SimulationResult is the outcome of one simulation: a throughput figure or a failure.
type SimulationResult struct {
	DPS float64
	Err error
}

// OK reports whether the simulation produced a usable figure.
func (r SimulationResult) OK() bool {
	return r.Err == nil && r.DPS > 0
}
