package model

import (
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RealmSlug returns realm in compatibility-decomposed form with combining marks
// removed, e.g. "Aggra (Português)" becomes "Aggra (Portugues)".
func RealmSlug(realm string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	out, _, err := transform.String(t, realm)
	if err != nil {
		return realm
	}
	return out
}
