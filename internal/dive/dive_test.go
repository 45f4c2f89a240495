package dive

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprint_Equal(t *testing.T) {
	a := Fingerprint{0x01, 0x02, 0x03}
	b := Fingerprint{0x01, 0x02, 0x03}
	c := Fingerprint{0x01, 0x02, 0x04}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestFingerprint_Equal_NilNeverMatches(t *testing.T) {
	var empty Fingerprint
	assert.False(t, empty.Equal(empty), "nil fingerprint must not match itself")
	assert.False(t, empty.Equal(Fingerprint{0x01}))
	assert.False(t, Fingerprint{0x01}.Equal(empty))
}

func TestAddGasMix_DeduplicatesByComposition(t *testing.T) {
	d := &Dive{}
	d.AddGasMix(GasMix{O2: 32})
	d.AddGasMix(GasMix{O2: 50})
	d.AddGasMix(GasMix{O2: 32}) // repeat after a gas switch back

	assert.Equal(t, []GasMix{{O2: 32}, {O2: 50}}, d.GasMixes)
}

func TestCanonicalText_NFC(t *testing.T) {
	// "é" as combining sequence vs precomposed
	decomposed := "Révillagigedo"
	precomposed := "Révillagigedo"

	assert.Equal(t, CanonicalText(precomposed), CanonicalText(decomposed))
	assert.Equal(t, "reef", CanonicalText("  reef "))
}

func TestCanonicalMeta_PreservesNil(t *testing.T) {
	site := " Blue Holé "
	m := CanonicalMeta(Metadata{Site: &site})

	assert.NotNil(t, m.Site)
	assert.Nil(t, m.Notes)
	assert.Nil(t, m.Buddy)
	assert.Equal(t, CanonicalText(site), *m.Site)
}
