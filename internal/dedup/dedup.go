// Package dedup decides whether a freshly decoded dive duplicates one
// already persisted. "The same physical dive" can arrive several times:
// live over radio, again from an offline archive export, and once per each
// simultaneously-worn computer, with no authoritative shared key.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/tideworn/logbook/internal/dive"
)

// CrossDeviceTolerance is the start-time window within which a dive from a
// different device is presumed to be the same physical dive.
const CrossDeviceTolerance = 300 * time.Second

// Catalog is the slice of the store the index needs. *store.Store satisfies
// it; tests may substitute fakes.
type Catalog interface {
	FindDiveByFingerprint(ctx context.Context, fp dive.Fingerprint) (string, bool, error)
	FindDiveByDeviceAndTimeWindow(ctx context.Context, device dive.DeviceID, start time.Time, tolerance time.Duration) (string, bool, error)
	SaveSourceFingerprint(ctx context.Context, diveID string, device dive.DeviceID, fp dive.Fingerprint) error
}

// Result reports the dedup decision for one candidate dive.
type Result struct {
	// Duplicate is true when the candidate matches a stored dive and must
	// not be persisted as a new row.
	Duplicate bool

	// DiveID is the existing dive's id when Duplicate is true.
	DiveID string
}

// Index evaluates the dedup contract once per decoded dive, before
// persistence.
type Index struct {
	catalog   Catalog
	tolerance time.Duration
}

// NewIndex creates an index over the catalog with the standard
// cross-device tolerance.
func NewIndex(c Catalog) *Index {
	return &Index{catalog: c, tolerance: CrossDeviceTolerance}
}

// NewIndexWithTolerance overrides the window; used by tests probing the
// boundary.
func NewIndexWithTolerance(c Catalog, tolerance time.Duration) *Index {
	return &Index{catalog: c, tolerance: tolerance}
}

// Check applies the dedup rules to a candidate dive:
//
//  1. An exact fingerprint match anywhere in the store, regardless of
//     owning device, is a duplicate of that dive.
//  2. Otherwise a stored dive from a DIFFERENT device starting within the
//     tolerance is a duplicate; the candidate's fingerprint (if any) is
//     linked to it, idempotently. Same-device proximity is never a
//     duplicate: back-to-back dives on one computer are legitimate.
//  3. Otherwise the candidate is new and the caller persists it, recording
//     its fingerprint as the first source fingerprint.
func (ix *Index) Check(ctx context.Context, d *dive.Dive) (Result, error) {
	if len(d.Fingerprint) > 0 {
		id, ok, err := ix.catalog.FindDiveByFingerprint(ctx, d.Fingerprint)
		if err != nil {
			return Result{}, fmt.Errorf("dedup: %w", err)
		}
		if ok {
			return Result{Duplicate: true, DiveID: id}, nil
		}
	}

	id, ok, err := ix.catalog.FindDiveByDeviceAndTimeWindow(ctx, d.Device, d.Start, ix.tolerance)
	if err != nil {
		return Result{}, fmt.Errorf("dedup: %w", err)
	}
	if ok {
		if len(d.Fingerprint) > 0 {
			if err := ix.catalog.SaveSourceFingerprint(ctx, id, d.Device, d.Fingerprint); err != nil {
				return Result{}, fmt.Errorf("dedup: link fingerprint: %w", err)
			}
		}
		return Result{Duplicate: true, DiveID: id}, nil
	}

	return Result{}, nil
}
