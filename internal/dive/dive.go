package dive

import (
	"bytes"
	"encoding/hex"
	"time"
)

// DeviceID is a stable identifier for a physical or logical dive-log source:
// a BLE peripheral serial, or a named offline export such as
// "shearwater-cloud". It partitions fingerprints and drives the
// cross-device dedup rules.
type DeviceID string

// Fingerprint is an opaque byte sequence identifying one log entry on the
// device that produced it. Only equality is meaningful; the contents are
// firmware-specific and must never be interpreted.
type Fingerprint []byte

// Equal reports whether two fingerprints are byte-identical.
// A nil fingerprint equals nothing, including another nil.
func (f Fingerprint) Equal(other Fingerprint) bool {
	if len(f) == 0 || len(other) == 0 {
		return false
	}
	return bytes.Equal(f, other)
}

// String renders the fingerprint as lowercase hex for logs and diagnostics.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f)
}

// Sample is one point in a dive's time series. Offset is seconds from dive
// start and is non-decreasing within one dive (decoder contract).
type Sample struct {
	Offset      int     // seconds from dive start
	Depth       float64 // meters
	Temperature float64 // degrees C; 0 means not reported

	// Optional sensor fields. Nil when the computer did not report them.
	Ceiling  *float64 // deco ceiling, meters
	GTR      *int     // gas time remaining, minutes
	Setpoint *float64 // CCR setpoint, bar
}

// GasMix is a breathing gas by composition. Percentages sum to 100 with
// nitrogen as the remainder.
type GasMix struct {
	O2 int
	He int
}

// Metadata carries the scalar descriptive fields subject to the
// first-non-nil merge rule. Pointers distinguish "absent" from "empty".
type Metadata struct {
	Site        *string
	Notes       *string
	Buddy       *string
	Environment *string
	GFLow       *int
	GFHigh      *int
	DecoModel   *string
}

// Dive is one decoded dive log entry as emitted by a decoder, before
// reconciliation. Instances are transient; persisted form lives in the store.
type Dive struct {
	Device     DeviceID
	DeviceName string

	Start      time.Time
	End        time.Time
	BottomTime time.Duration

	MaxDepth float64
	AvgDepth float64
	MinTemp  float64
	MaxTemp  float64

	Rebreather   bool
	DecoRequired bool

	Fingerprint Fingerprint
	Samples     []Sample
	GasMixes    []GasMix
	Meta        Metadata
}

// AddGasMix appends m unless a mix of identical composition is already
// present. Dive computers commonly report the same mix once per gas switch.
func (d *Dive) AddGasMix(m GasMix) {
	for _, existing := range d.GasMixes {
		if existing == m {
			return
		}
	}
	d.GasMixes = append(d.GasMixes, m)
}

// Duration returns the recorded length of the dive.
func (d *Dive) Duration() time.Duration {
	if d.End.Before(d.Start) {
		return 0
	}
	return d.End.Sub(d.Start)
}

// LastSample returns the final sample and true, or a zero Sample and false
// for an empty series.
func (d *Dive) LastSample() (Sample, bool) {
	if len(d.Samples) == 0 {
		return Sample{}, false
	}
	return d.Samples[len(d.Samples)-1], true
}
