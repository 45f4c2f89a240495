package trim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tideworn/logbook/internal/dive"
)

func diveWithDepths(depths ...float64) *dive.Dive {
	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	d := &dive.Dive{Start: start}
	for i, depth := range depths {
		d.Samples = append(d.Samples, dive.Sample{Offset: i * 10, Depth: depth})
	}
	if n := len(depths); n > 0 {
		offset := time.Duration(d.Samples[n-1].Offset) * time.Second
		d.BottomTime = offset
		d.End = start.Add(offset)
	}
	return d
}

func TestApply_TruncatesSurfacePadding(t *testing.T) {
	d := diveWithDepths(0.5, 12, 18, 9, 0.8, 0.3, 0.2)

	require.True(t, Apply(d, DefaultThreshold))
	assert.Len(t, d.Samples, 4)
	assert.Equal(t, 9.0, d.Samples[3].Depth)
	assert.Equal(t, 30*time.Second, d.BottomTime)
	assert.Equal(t, d.Start.Add(30*time.Second), d.End)
}

func TestApply_LeavesMidDiveSurfaceIntervalAlone(t *testing.T) {
	// Surface interval between two descents, then padding at the end.
	d := diveWithDepths(8, 0.4, 0.4, 11, 0.6, 0.6)

	require.True(t, Apply(d, DefaultThreshold))
	assert.Len(t, d.Samples, 4)
	assert.Equal(t, 0.4, d.Samples[1].Depth, "mid-dive surface samples stay")
	assert.Equal(t, 11.0, d.Samples[3].Depth)
}

func TestApply_NoPaddingUnchanged(t *testing.T) {
	d := diveWithDepths(5, 12, 8)
	before := *d

	assert.False(t, Apply(d, DefaultThreshold))
	assert.Equal(t, before.BottomTime, d.BottomTime)
	assert.Equal(t, before.End, d.End)
	assert.Len(t, d.Samples, 3)
}

func TestApply_AllBelowThresholdUnchanged(t *testing.T) {
	d := diveWithDepths(0.2, 0.5, 0.9)

	assert.False(t, Apply(d, DefaultThreshold))
	assert.Len(t, d.Samples, 3)
}

func TestApply_ExactlyAtThresholdIsPadding(t *testing.T) {
	// Depth equal to the threshold is not strictly greater, so the trailing
	// 1.0 samples are part of the trimmed-away tail.
	d := diveWithDepths(1.0, 14, 1.0, 1.0)

	require.True(t, Apply(d, 1.0))
	assert.Len(t, d.Samples, 2)
	assert.Equal(t, 14.0, d.Samples[1].Depth)
}

func TestApply_Idempotent(t *testing.T) {
	d := diveWithDepths(3, 20, 15, 0.5, 0.5)

	require.True(t, Apply(d, DefaultThreshold))
	trimmedOnce := *d
	samples := append([]dive.Sample(nil), d.Samples...)

	assert.False(t, Apply(d, DefaultThreshold))
	assert.Equal(t, trimmedOnce.BottomTime, d.BottomTime)
	assert.Equal(t, trimmedOnce.End, d.End)
	assert.Equal(t, samples, d.Samples)
}

func TestApply_EmptySeries(t *testing.T) {
	d := &dive.Dive{}
	assert.False(t, Apply(d, DefaultThreshold))
}
