// Package trim removes the trailing surface-timeout padding many dive
// computers log after the diver surfaces: a run of near-zero-depth samples
// at the very end of a dive.
package trim

import (
	"time"

	"github.com/tideworn/logbook/internal/dive"
)

// DefaultThreshold is the depth (meters) at or below which a trailing
// sample counts as surface padding.
const DefaultThreshold = 1.0

// Apply truncates d's trailing run of samples at or below threshold and
// recomputes BottomTime and End from the last retained sample's offset.
// It reports whether anything was truncated.
//
// Only the trailing run is inspected: mid-dive samples at or below the
// threshold (a genuine surface interval on a multi-level dive) are never
// touched. If every sample is at or below the threshold, or the last
// above-threshold sample is already final, d is left unchanged.
//
// Apply is idempotent: a second call on a trimmed dive is a no-op.
func Apply(d *dive.Dive, threshold float64) bool {
	last := -1
	for i := len(d.Samples) - 1; i >= 0; i-- {
		if d.Samples[i].Depth > threshold {
			last = i
			break
		}
	}
	if last < 0 || last == len(d.Samples)-1 {
		return false
	}

	d.Samples = d.Samples[:last+1]
	offset := time.Duration(d.Samples[last].Offset) * time.Second
	d.BottomTime = offset
	d.End = d.Start.Add(offset)
	return true
}
