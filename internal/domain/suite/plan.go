// Package suite turns a player's historical kills into a scored suite.
//
// For every boss the best observed configuration (maximum DPS kill) is
// simulated once; the player's mean observed DPS over the boss is then
// compared to the simulated figure. Bosses are always processed in name
// order so equal inputs give equal suites.
package suite

import (
	"sort"

	"github.com/okian/simbot/internal/domain/fingerprint"
	"github.com/okian/simbot/internal/domain/model"
)

// BossPlan is the simulation planned for one boss.
type BossPlan struct {
	Boss                     string
	NoKills                  bool
	NumFights                int
	AverageDPS               float64
	AverageIlvl              float64
	AverageHistoricalPercent float64
	Request                  model.SimulationRequest
	Key                      fingerprint.Key
}

// ProfileFunc maps a boss to its fight profile.
type ProfileFunc func(boss string) string

// Plan builds the boss plans of one player, sorted by boss name.
func Plan(player, realmSlug string, region model.Region, records map[string][]model.BossEncounterRecord, profile ProfileFunc, iterations int) []BossPlan {
	bosses := make([]string, 0, len(records))
	for boss := range records {
		bosses = append(bosses, boss)
	}
	sort.Strings(bosses)

	plans := make([]BossPlan, 0, len(bosses))
	for _, boss := range bosses {
		kills := records[boss]
		if len(kills) == 0 {
			plans = append(plans, BossPlan{Boss: boss, NoKills: true})
			continue
		}

		var sumDPS, sumIlvl, sumPct float64
		best := 0
		for i, k := range kills {
			sumDPS += k.DPS
			sumIlvl += k.ItemLevel
			sumPct += k.HistoricalPercent
			// strict comparison: the first of equal kills wins
			if k.DPS > kills[best].DPS {
				best = i
			}
		}
		n := float64(len(kills))

		req := model.SimulationRequest{
			Region:       region,
			RealmSlug:    realmSlug,
			Character:    player,
			Spec:         model.NormalizeSpec(kills[best].Spec),
			Talents:      model.TalentString(kills[best].Talents),
			FightProfile: profile(boss),
			Iterations:   iterations,
		}
		plans = append(plans, BossPlan{
			Boss:                     boss,
			NumFights:                len(kills),
			AverageDPS:               sumDPS / n,
			AverageIlvl:              sumIlvl / n,
			AverageHistoricalPercent: sumPct / n,
			Request:                  req,
			Key:                      fingerprint.ForRequest(req),
		})
	}
	return plans
}
