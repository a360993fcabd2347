// Package fingerprint derives simulation cache keys.
//
// A key covers exactly the inputs that change what the simulator is asked to
// model for a player: the character (region, realm slug and name), its
// normalized spec and the fight profile. Timestamps, iteration counts and per-call metadata never enter it.
package fingerprint

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/okian/simbot/internal/domain/model"
)

// Key identifies a simulation configuration within a run.
type Key string

// Of returns the key for a character, normalized spec and fight profile.
// Region, realm slug and player name compare case-insensitively; spec is
// normalized again so callers holding a raw log-service spelling get the same key.
func Of(region model.Region, realmSlug, player string, spec model.Spec, fightProfile string) Key {
	d := xxhash.New()
	writeField(d, strings.ToUpper(strings.TrimSpace(string(region))))
	writeField(d, strings.ToLower(strings.TrimSpace(realmSlug)))
	writeField(d, strings.ToLower(strings.TrimSpace(player)))
	writeField(d, string(model.NormalizeSpec(string(spec))))
	writeField(d, fightProfile)
	return Key(fmt.Sprintf("%016x", d.Sum64()))
}

// ForRequest returns the key of a simulation request.
func ForRequest(req model.SimulationRequest) Key {
	return Of(req.Region, req.RealmSlug, req.Character, req.Spec, req.FightProfile)
}

// writeField length-prefixes s so ("ab","c") and ("a","bc") hash differently.
func writeField(d *xxhash.Digest, s string) {
	var n [8]byte
	binary.LittleEndian.PutUint64(n[:], uint64(len(s)))
	_, _ = d.Write(n[:])
	_, _ = d.WriteString(s)
}
