// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strings"
)

// Role is the combat role a roster service assigns to a character.
type Role string

const (
	RoleDPS     Role = "DPS"
	RoleHealing Role = "HEALING"
	RoleTank    Role = "TANK"
)

// ParseRole maps a roster role string to a Role.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToUpper(strings.TrimSpace(s))); r {
	case RoleDPS, RoleHealing, RoleTank:
		return r, nil
	default:
		return "", fmt.Errorf("%w: role %q", ErrUnknownValue, s)
	}
}

// Region is a game region.
type Region string

const (
	RegionUS Region = "US"
	RegionEU Region = "EU"
	RegionKR Region = "KR"
	RegionTW Region = "TW"
	RegionCN Region = "CN"
)

// ParseRegion accepts a region in any case.
func ParseRegion(s string) (Region, error) {
	switch r := Region(strings.ToUpper(strings.TrimSpace(s))); r {
	case RegionUS, RegionEU, RegionKR, RegionTW, RegionCN:
		return r, nil
	default:
		return "", fmt.Errorf("%w: region %q", ErrUnknownValue, s)
	}
}

// Difficulty is a raid difficulty tier.
type Difficulty string

const (
	DifficultyLFR    Difficulty = "lfr"
	DifficultyNormal Difficulty = "normal"
	DifficultyHeroic Difficulty = "heroic"
	DifficultyMythic Difficulty = "mythic"
)

var difficultyCodes = map[Difficulty]int{
	DifficultyLFR:    2,
	DifficultyNormal: 3,
	DifficultyHeroic: 4,
	DifficultyMythic: 5,
}

// ParseDifficulty accepts a difficulty name in any case.
func ParseDifficulty(s string) (Difficulty, error) {
	d := Difficulty(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := difficultyCodes[d]; !ok {
		return "", fmt.Errorf("%w: difficulty %q", ErrUnknownValue, s)
	}
	return d, nil
}

// Code returns the numeric difficulty used by the log analytics service, or 0 if unknown.
func (d Difficulty) Code() int {
	return difficultyCodes[d]
}

// Player is one roster member as of the run's roster snapshot.
type Player struct {
	Name  string `json:"name"`
	Realm string `json:"realm"`
	Level int    `json:"level"`
	Role  Role   `json:"role"`
	Spec  Spec   `json:"spec"`
}
