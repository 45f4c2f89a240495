// Package merge groups per-device rows of a batch import into logical
// dives. A diver wearing two computers produces one row per device for the
// same physical dive; archive exports deliver them side by side with no
// shared key beyond start-time proximity.
package merge

import (
	"sort"
	"time"

	"github.com/tideworn/logbook/internal/dive"
)

// Window is the start-time tolerance within which rows from different
// devices in one batch are presumed to describe the same physical dive.
// Incremental re-imports attaching to an already-merged dive go through
// the dedup index, which honors its own 300s cross-device tolerance.
const Window = 120 * time.Second

// IDGenerator supplies merge-group ids. Production uses UUIDv7; tests use
// a fixed sequence for deterministic output.
type IDGenerator interface {
	Generate() string
}

// Source names one contributing row of a merged dive. Every row's own
// fingerprint is preserved individually: N rows yield N source
// fingerprints, never one unioned value.
type Source struct {
	Device      dive.DeviceID
	Fingerprint dive.Fingerprint
}

// Merged is one logical dive produced from a batch.
type Merged struct {
	// Dive carries the unioned values. For a singleton it is the input row
	// itself, untouched.
	Dive *dive.Dive

	// GroupID is set only when two or more rows merged. Once persisted it
	// is permanent.
	GroupID *string

	// Sources lists contributing rows in their original batch order.
	Sources []Source
}

// Batch clusters rows by start-time proximity and merges each cluster into
// one logical dive. Results are ordered by cluster start time.
//
// Clustering walks rows sorted by start time ascending: a row joins the
// current cluster when its device is not already present AND its start is
// within Window of the cluster anchor; otherwise the cluster closes and a
// new one opens anchored at that row. A second row from a device already
// in the cluster therefore always starts a new cluster, however close its
// start time; back-to-back dives on one computer are distinct dives.
func Batch(rows []*dive.Dive, gen IDGenerator) []*Merged {
	ordered := make([]indexed, len(rows))
	for i, r := range rows {
		ordered[i] = indexed{row: r, pos: i}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].row.Start.Before(ordered[j].row.Start)
	})

	var clusters [][]indexed
	for _, it := range ordered {
		n := len(clusters)
		if n > 0 && fits(clusters[n-1], it) {
			clusters[n-1] = append(clusters[n-1], it)
			continue
		}
		clusters = append(clusters, []indexed{it})
	}

	out := make([]*Merged, 0, len(clusters))
	for _, cluster := range clusters {
		if len(cluster) == 1 {
			row := cluster[0].row
			out = append(out, &Merged{
				Dive:    row,
				Sources: []Source{{Device: row.Device, Fingerprint: row.Fingerprint}},
			})
			continue
		}

		// The metadata union visits rows in original batch order, not the
		// sorted cluster order.
		members := append([]indexed(nil), cluster...)
		sort.SliceStable(members, func(i, j int) bool { return members[i].pos < members[j].pos })
		original := make([]*dive.Dive, len(members))
		for i, m := range members {
			original[i] = m.row
		}

		id := gen.Generate()
		merged := &Merged{
			Dive:    union(cluster[0].row, original),
			GroupID: &id,
		}
		for _, r := range original {
			merged.Sources = append(merged.Sources, Source{Device: r.Device, Fingerprint: r.Fingerprint})
		}
		out = append(out, merged)
	}
	return out
}

// indexed pairs a row with its original batch position, which drives the
// first-non-nil metadata rule.
type indexed struct {
	row *dive.Dive
	pos int
}

// fits reports whether it can join the cluster: device not already present
// and start within Window of the anchor (the cluster's first row).
func fits(cluster []indexed, it indexed) bool {
	for _, member := range cluster {
		if member.row.Device == it.row.Device {
			return false
		}
	}
	anchor := cluster[0].row.Start
	delta := it.row.Start.Sub(anchor)
	if delta < 0 {
		delta = -delta
	}
	return delta <= Window
}

// union builds the merged logical dive. anchor is the earliest-starting
// row; original holds all rows in batch order.
func union(anchor *dive.Dive, original []*dive.Dive) *dive.Dive {
	primary := primaryRow(original)

	merged := &dive.Dive{
		Device:     anchor.Device,
		DeviceName: anchor.DeviceName,
		Start:      anchor.Start,
		End:        anchor.End,
		AvgDepth:   primary.AvgDepth,
		MinTemp:    anchor.MinTemp,
		Samples:    append([]dive.Sample(nil), primary.Samples...),
	}

	for _, r := range original {
		if r.End.After(merged.End) {
			merged.End = r.End
		}
		if r.BottomTime > merged.BottomTime {
			merged.BottomTime = r.BottomTime
		}
		if r.MaxDepth > merged.MaxDepth {
			merged.MaxDepth = r.MaxDepth
		}
		if r.MinTemp < merged.MinTemp {
			merged.MinTemp = r.MinTemp
		}
		if r.MaxTemp > merged.MaxTemp {
			merged.MaxTemp = r.MaxTemp
		}
		merged.Rebreather = merged.Rebreather || r.Rebreather
		merged.DecoRequired = merged.DecoRequired || r.DecoRequired
		for _, m := range r.GasMixes {
			merged.AddGasMix(m)
		}
		mergeMeta(&merged.Meta, r.Meta)
	}
	return merged
}

// primaryRow picks the row whose sample series the merged dive keeps: the
// one with the most samples, earliest batch position winning ties.
func primaryRow(original []*dive.Dive) *dive.Dive {
	primary := original[0]
	for _, r := range original[1:] {
		if len(r.Samples) > len(primary.Samples) {
			primary = r
		}
	}
	return primary
}

// mergeMeta applies the first-non-nil rule field by field. Later conflicting
// values are discarded on purpose; downstream behavior depends on this.
func mergeMeta(dst *dive.Metadata, src dive.Metadata) {
	if dst.Site == nil {
		dst.Site = src.Site
	}
	if dst.Notes == nil {
		dst.Notes = src.Notes
	}
	if dst.Buddy == nil {
		dst.Buddy = src.Buddy
	}
	if dst.Environment == nil {
		dst.Environment = src.Environment
	}
	if dst.GFLow == nil {
		dst.GFLow = src.GFLow
	}
	if dst.GFHigh == nil {
		dst.GFHigh = src.GFHigh
	}
	if dst.DecoModel == nil {
		dst.DecoModel = src.DecoModel
	}
}
