package model

// Marker replaces a score on a boss that could not be scored.
type Marker string

const (
	MarkerNone          Marker = ""
	MarkerNoKillsLogged Marker = "no_kills_logged"
	MarkerSimError      Marker = "sim_error"
	MarkerCancelled     Marker = "cancelled"
)

// Message returns the human readable text for the marker.
func (m Marker) Message() string {
	switch m {
	case MarkerNoKillsLogged:
		return "No kills logged for this boss."
	case MarkerSimError:
		return "SimulationCraft threw an error while running the sim."
	case MarkerCancelled:
		return "Run was cancelled before this boss was simulated."
	default:
		return ""
	}
}

// BossScore is one boss line of a player's suite. When Error is set only Boss is meaningful.
type BossScore struct {
	Boss                     string  `json:"boss_name"`
	AverageDPS               float64 `json:"average_dps,omitempty"`
	NumFights                int     `json:"num_fights,omitempty"`
	SimDPS                   float64 `json:"sim_dps,omitempty"`
	PercentPotential         float64 `json:"percent_potential,omitempty"`
	AverageIlvl              float64 `json:"average_ilvl,omitempty"`
	AverageHistoricalPercent float64 `json:"average_historical_percent,omitempty"`
	Error                    Marker  `json:"error,omitempty"`
	Message                  string  `json:"message,omitempty"`
}

// Scored reports whether the boss has a percent-of-potential value.
func (b BossScore) Scored() bool {
	return b.Error == MarkerNone
}

// PlayerSuite is the per-player report of one run.
type PlayerSuite struct {
	Player             string      `json:"player"`
	Bosses             []BossScore `json:"bosses"`
	AveragePerformance float64     `json:"average_performance"`
	ElapsedSeconds     float64     `json:"elapsed_time"`
	Error              string      `json:"error,omitempty"`
}

// GuildReport is the terminal artifact of one orchestration run.
type GuildReport struct {
	Guild        string                 `json:"guild"`
	Realm        string                 `json:"realm"`
	Region       Region                 `json:"region"`
	Players      map[string]PlayerSuite `json:"players"`
	Order        []string               `json:"order"`
	GuildAverage float64                `json:"guild_avg"`
	Cancelled    bool                   `json:"cancelled"`
}
