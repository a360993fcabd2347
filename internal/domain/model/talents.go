package model

// TalentData is the roster service's talent table keyed by numeric class id ("1".."12").
type TalentData map[string]ClassTalents

// ClassTalents holds one class's talent grid as talents[tier][column][variant].
// A column has several variants when the talent differs per spec.
type ClassTalents struct {
	Class   string            `json:"class"`
	Talents [][][]TalentEntry `json:"talents"`
}

// TalentEntry is one talent choice. Spec is nil for talents shared by every spec.
type TalentEntry struct {
	Tier   int         `json:"tier"`
	Column int         `json:"column"`
	Spell  TalentSpell `json:"spell"`
	Spec   *TalentSpec `json:"spec,omitempty"`
}

// TalentSpell identifies the spell a talent grants.
type TalentSpell struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// TalentSpec names the spec a talent variant belongs to.
type TalentSpec struct {
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}
