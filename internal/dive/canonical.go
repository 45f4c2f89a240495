package dive

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// CanonicalText normalizes user-visible metadata text before comparison or
// persistence: NFC normalization plus trimmed surrounding whitespace.
//
// Site and buddy names arrive from several sources (device memos, cloud
// exports, manual entry) that disagree about Unicode composition; without
// NFC, "Révillagigedo" typed on two platforms compares unequal and the
// first-non-nil merge rule produces visually duplicate values.
func CanonicalText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// CanonicalMeta returns a copy of m with every text field canonicalized.
// Nil fields stay nil; pointer identity is not preserved.
func CanonicalMeta(m Metadata) Metadata {
	out := m
	out.Site = canonicalPtr(m.Site)
	out.Notes = canonicalPtr(m.Notes)
	out.Buddy = canonicalPtr(m.Buddy)
	out.Environment = canonicalPtr(m.Environment)
	out.DecoModel = canonicalPtr(m.DecoModel)
	return out
}

func canonicalPtr(s *string) *string {
	if s == nil {
		return nil
	}
	c := CanonicalText(*s)
	return &c
}
