package suite

import (
	"github.com/okian/simbot/internal/domain/fingerprint"
	"github.com/okian/simbot/internal/domain/model"
)

// Assemble builds a player's suite from its plans and the simulation results
// known so far. A plan whose key has no result was never simulated and is
// marked cancelled. Assemble is pure; ElapsedSeconds is left to the caller.
func Assemble(player string, plans []BossPlan, results map[fingerprint.Key]model.SimulationResult) model.PlayerSuite {
	suite := model.PlayerSuite{
		Player: player,
		Bosses: make([]model.BossScore, 0, len(plans)),
	}

	var sum float64
	var scored int
	for _, p := range plans {
		if p.NoKills {
			suite.Bosses = append(suite.Bosses, marked(p.Boss, model.MarkerNoKillsLogged))
			continue
		}
		res, ok := results[p.Key]
		switch {
		case !ok:
			suite.Bosses = append(suite.Bosses, marked(p.Boss, model.MarkerCancelled))
			continue
		case !res.OK():
			suite.Bosses = append(suite.Bosses, marked(p.Boss, model.MarkerSimError))
			continue
		}

		pct := p.AverageDPS / res.DPS * 100
		suite.Bosses = append(suite.Bosses, model.BossScore{
			Boss:                     p.Boss,
			AverageDPS:               p.AverageDPS,
			NumFights:                p.NumFights,
			SimDPS:                   res.DPS,
			PercentPotential:         pct,
			AverageIlvl:              p.AverageIlvl,
			AverageHistoricalPercent: p.AverageHistoricalPercent,
		})
		sum += pct
		scored++
	}

	if scored > 0 {
		suite.AveragePerformance = sum / float64(scored)
	}
	return suite
}

func marked(boss string, m model.Marker) model.BossScore {
	return model.BossScore{Boss: boss, Error: m, Message: m.Message()}
}

// GuildAverage is the mean AveragePerformance of the suites without a
// whole-suite error, or 0 when there are none. A suite cut short by
// cancellation before any boss was scored is left out as well.
func GuildAverage(suites []model.PlayerSuite) float64 {
	var sum float64
	var n int
	for _, s := range suites {
		if s.Error != "" || cancelledUnscored(s) {
			continue
		}
		sum += s.AveragePerformance
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func cancelledUnscored(s model.PlayerSuite) bool {
	cancelled := false
	for _, b := range s.Bosses {
		if b.Scored() {
			return false
		}
		if b.Error == model.MarkerCancelled {
			cancelled = true
		}
	}
	return cancelled
}
