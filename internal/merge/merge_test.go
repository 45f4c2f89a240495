package merge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tideworn/logbook/internal/dive"
	"github.com/tideworn/logbook/internal/ident"
)

var base = time.Date(2026, 7, 4, 9, 0, 0, 0, time.UTC)

func row(device dive.DeviceID, offset time.Duration, maxDepth float64, fp byte) *dive.Dive {
	return &dive.Dive{
		Device:      device,
		Start:       base.Add(offset),
		End:         base.Add(offset + 45*time.Minute),
		BottomTime:  45 * time.Minute,
		MaxDepth:    maxDepth,
		Fingerprint: dive.Fingerprint{fp},
	}
}

func strptr(s string) *string { return &s }

func TestBatch_TwoDevicesWithinWindowMerge(t *testing.T) {
	rows := []*dive.Dive{
		row("dev-a", 0, 30, 0x01),
		row("dev-b", 30*time.Second, 28, 0x02),
	}

	out := Batch(rows, ident.NewFixedGenerator("group-1"))
	require.Len(t, out, 1)

	m := out[0]
	require.NotNil(t, m.GroupID)
	assert.Equal(t, "group-1", *m.GroupID)
	assert.Equal(t, 30.0, m.Dive.MaxDepth)
	require.Len(t, m.Sources, 2)
	assert.Equal(t, dive.Fingerprint{0x01}, m.Sources[0].Fingerprint)
	assert.Equal(t, dive.Fingerprint{0x02}, m.Sources[1].Fingerprint)
}

func TestBatch_SameDeviceNeverMerges(t *testing.T) {
	rows := []*dive.Dive{
		row("dev-a", 0, 30, 0x01),
		row("dev-a", 30*time.Second, 28, 0x02),
	}

	out := Batch(rows, ident.NewFixedGenerator())
	require.Len(t, out, 2)
	assert.Nil(t, out[0].GroupID)
	assert.Nil(t, out[1].GroupID)
}

func TestBatch_WindowBoundary(t *testing.T) {
	atWindow := Batch([]*dive.Dive{
		row("dev-a", 0, 30, 0x01),
		row("dev-b", Window, 28, 0x02),
	}, ident.NewFixedGenerator("g"))
	assert.Len(t, atWindow, 1, "start exactly at the window edge merges")

	pastWindow := Batch([]*dive.Dive{
		row("dev-a", 0, 30, 0x01),
		row("dev-b", Window+time.Second, 28, 0x02),
	}, ident.NewFixedGenerator())
	assert.Len(t, pastWindow, 2, "one second past the window stays separate")
}

func TestBatch_MetadataFirstNonNilInOriginalOrder(t *testing.T) {
	a := row("dev-a", 10*time.Second, 30, 0x01)
	a.Meta.Site = strptr("Reef")
	a.Meta.Notes = strptr("Great vis")

	b := row("dev-b", 0, 28, 0x02)
	b.Meta.Buddy = strptr("Bob")
	b.Meta.Environment = strptr("Reef")
	b.Meta.Site = strptr("Wrong Site") // later in batch order, discarded

	// b starts earlier, so it anchors the sorted cluster; the metadata rule
	// still walks rows in batch order, a first.
	out := Batch([]*dive.Dive{a, b}, ident.NewFixedGenerator("g"))
	require.Len(t, out, 1)

	meta := out[0].Dive.Meta
	require.NotNil(t, meta.Site)
	assert.Equal(t, "Reef", *meta.Site)
	assert.Equal(t, "Great vis", *meta.Notes)
	assert.Equal(t, "Bob", *meta.Buddy)
	assert.Equal(t, "Reef", *meta.Environment)
	assert.Len(t, out[0].Sources, 2)
}

func TestBatch_ExtremaAcrossRows(t *testing.T) {
	a := row("dev-a", 0, 30, 0x01)
	a.MinTemp, a.MaxTemp = 12, 16
	a.End = base.Add(40 * time.Minute)
	a.BottomTime = 40 * time.Minute

	b := row("dev-b", time.Minute, 33, 0x02)
	b.MinTemp, b.MaxTemp = 10, 18
	b.DecoRequired = true

	out := Batch([]*dive.Dive{a, b}, ident.NewFixedGenerator("g"))
	require.Len(t, out, 1)

	m := out[0].Dive
	assert.Equal(t, 33.0, m.MaxDepth)
	assert.Equal(t, 10.0, m.MinTemp)
	assert.Equal(t, 18.0, m.MaxTemp)
	assert.Equal(t, a.Start, m.Start, "merged start anchors at earliest row")
	assert.Equal(t, b.End, m.End, "merged end extends to latest row")
	assert.Equal(t, 45*time.Minute, m.BottomTime)
	assert.True(t, m.DecoRequired)
}

func TestBatch_SamplesFromDensestRow(t *testing.T) {
	a := row("dev-a", 0, 30, 0x01)
	a.Samples = []dive.Sample{{Offset: 0, Depth: 5}}

	b := row("dev-b", time.Minute, 28, 0x02)
	b.Samples = []dive.Sample{
		{Offset: 0, Depth: 4},
		{Offset: 10, Depth: 20},
		{Offset: 20, Depth: 28},
	}

	out := Batch([]*dive.Dive{a, b}, ident.NewFixedGenerator("g"))
	require.Len(t, out, 1)
	assert.Len(t, out[0].Dive.Samples, 3)
}

func TestBatch_GasMixesUnionedByComposition(t *testing.T) {
	a := row("dev-a", 0, 30, 0x01)
	a.GasMixes = []dive.GasMix{{O2: 32}}
	b := row("dev-b", time.Minute, 28, 0x02)
	b.GasMixes = []dive.GasMix{{O2: 32}, {O2: 50}}

	out := Batch([]*dive.Dive{a, b}, ident.NewFixedGenerator("g"))
	require.Len(t, out, 1)
	assert.Equal(t, []dive.GasMix{{O2: 32}, {O2: 50}}, out[0].Dive.GasMixes)
}

func TestBatch_ThreeDevicesOneCluster(t *testing.T) {
	out := Batch([]*dive.Dive{
		row("dev-a", 0, 30, 0x01),
		row("dev-b", 40*time.Second, 31, 0x02),
		row("dev-c", 80*time.Second, 29, 0x03),
	}, ident.NewFixedGenerator("g"))

	require.Len(t, out, 1)
	assert.Len(t, out[0].Sources, 3)
	assert.Equal(t, 31.0, out[0].Dive.MaxDepth)
}

func TestBatch_SingletonKeepsFingerprintSource(t *testing.T) {
	out := Batch([]*dive.Dive{row("dev-a", 0, 30, 0x05)}, ident.NewFixedGenerator())
	require.Len(t, out, 1)
	assert.Nil(t, out[0].GroupID)
	require.Len(t, out[0].Sources, 1)
	assert.Equal(t, dive.Fingerprint{0x05}, out[0].Sources[0].Fingerprint)
}

func TestBatch_Empty(t *testing.T) {
	assert.Empty(t, Batch(nil, ident.NewFixedGenerator()))
}
