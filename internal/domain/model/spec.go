package model

import "strings"

// Spec is a normalized class specialization name as the simulator expects it.
type Spec string

// Known specializations, one entry per name. Names shared between classes
// (frost, holy, protection, restoration) appear once.
const (
	SpecAffliction    Spec = "affliction"
	SpecArcane        Spec = "arcane"
	SpecArms          Spec = "arms"
	SpecAssassination Spec = "assassination"
	SpecBalance       Spec = "balance"
	SpecBeastMastery  Spec = "beast_mastery"
	SpecBlood         Spec = "blood"
	SpecBrewmaster    Spec = "brewmaster"
	SpecDemonology    Spec = "demonology"
	SpecDestruction   Spec = "destruction"
	SpecDiscipline    Spec = "discipline"
	SpecElemental     Spec = "elemental"
	SpecEnhancement   Spec = "enhancement"
	SpecFeral         Spec = "feral"
	SpecFire          Spec = "fire"
	SpecFrost         Spec = "frost"
	SpecFury          Spec = "fury"
	SpecGuardian      Spec = "guardian"
	SpecHavoc         Spec = "havoc"
	SpecHoly          Spec = "holy"
	SpecMarksmanship  Spec = "marksmanship"
	SpecMistweaver    Spec = "mistweaver"
	SpecOutlaw        Spec = "outlaw"
	SpecProtection    Spec = "protection"
	SpecRestoration   Spec = "restoration"
	SpecRetribution   Spec = "retribution"
	SpecShadow        Spec = "shadow"
	SpecSubtlety      Spec = "subtlety"
	SpecSurvival      Spec = "survival"
	SpecUnholy        Spec = "unholy"
	SpecVengeance     Spec = "vengeance"
	SpecWindwalker    Spec = "windwalker"
)

var knownSpecs = map[Spec]struct{}{
	SpecAffliction: {}, SpecArcane: {}, SpecArms: {}, SpecAssassination: {},
	SpecBalance: {}, SpecBeastMastery: {}, SpecBlood: {}, SpecBrewmaster: {},
	SpecDemonology: {}, SpecDestruction: {}, SpecDiscipline: {}, SpecElemental: {},
	SpecEnhancement: {}, SpecFeral: {}, SpecFire: {}, SpecFrost: {},
	SpecFury: {}, SpecGuardian: {}, SpecHavoc: {}, SpecHoly: {},
	SpecMarksmanship: {}, SpecMistweaver: {}, SpecOutlaw: {}, SpecProtection: {},
	SpecRestoration: {}, SpecRetribution: {}, SpecShadow: {}, SpecSubtlety: {},
	SpecSurvival: {}, SpecUnholy: {}, SpecVengeance: {}, SpecWindwalker: {},
}

// specAliases maps the log service's spelling (lowercased, spaces removed)
// to the simulator's spelling. Only names that differ are listed.
var specAliases = map[string]Spec{
	"beastmastery": SpecBeastMastery,
}

// NormalizeSpec lowercases s, removes spaces and applies the alias table.
// Unknown names pass through in that normalized form.
func NormalizeSpec(s string) Spec {
	n := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
	if alias, ok := specAliases[n]; ok {
		return alias
	}
	return Spec(n)
}

// Known reports whether s is one of the enumerated specializations.
func (s Spec) Known() bool {
	_, ok := knownSpecs[s]
	return ok
}
