package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tideworn/logbook/internal/dive"
)

// FindDiveByFingerprint returns the id of the dive owning an exact
// fingerprint match, regardless of which device contributed it.
// ok is false when no dive owns the fingerprint.
func (s *Store) FindDiveByFingerprint(ctx context.Context, fp dive.Fingerprint) (id string, ok bool, err error) {
	if len(fp) == 0 {
		return "", false, nil
	}
	err = s.db.QueryRowContext(ctx, `
		SELECT dive_id FROM source_fingerprints WHERE fingerprint = ? LIMIT 1
	`, []byte(fp)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("find by fingerprint: %w", err)
	}
	return id, true, nil
}

// FindDiveByDeviceAndTimeWindow returns the earliest-starting dive whose
// owning device differs from device and whose start time lies within
// tolerance of start (inclusive both sides). Same-device rows are excluded:
// back-to-back dives on one computer are legitimate, not duplicates.
func (s *Store) FindDiveByDeviceAndTimeWindow(ctx context.Context, device dive.DeviceID, start time.Time, tolerance time.Duration) (id string, ok bool, err error) {
	lo := start.Add(-tolerance).Unix()
	hi := start.Add(tolerance).Unix()

	err = s.db.QueryRowContext(ctx, `
		SELECT id FROM dives
		WHERE device_id != ? AND start_ts BETWEEN ? AND ?
		ORDER BY start_ts ASC, id ASC
		LIMIT 1
	`, string(device), lo, hi).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("find by time window: %w", err)
	}
	return id, true, nil
}

// LastFingerprint returns the device's most recently linked fingerprint, or
// nil when the device is unknown or has none. The next live transfer sends
// it to the computer to request only newer entries.
func (s *Store) LastFingerprint(ctx context.Context, device dive.DeviceID) (dive.Fingerprint, error) {
	var fp []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT last_fingerprint FROM devices WHERE id = ?
	`, string(device)).Scan(&fp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last fingerprint: %w", err)
	}
	return dive.Fingerprint(fp), nil
}

// SourceFingerprint is one (device, fingerprint) pair attached to a dive.
type SourceFingerprint struct {
	Device      dive.DeviceID
	Fingerprint dive.Fingerprint
}

// SourceFingerprints returns every source fingerprint attached to a dive,
// in insertion order.
func (s *Store) SourceFingerprints(ctx context.Context, diveID string) ([]SourceFingerprint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT device_id, fingerprint FROM source_fingerprints
		WHERE dive_id = ?
		ORDER BY rowid ASC
	`, diveID)
	if err != nil {
		return nil, fmt.Errorf("source fingerprints: %w", err)
	}
	defer rows.Close()

	var out []SourceFingerprint
	for rows.Next() {
		var sf SourceFingerprint
		var device string
		var fp []byte
		if err := rows.Scan(&device, &fp); err != nil {
			return nil, fmt.Errorf("source fingerprints: %w", err)
		}
		sf.Device = dive.DeviceID(device)
		sf.Fingerprint = dive.Fingerprint(fp)
		out = append(out, sf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("source fingerprints: %w", err)
	}
	return out, nil
}

// GetDive loads one persisted dive row.
func (s *Store) GetDive(ctx context.Context, id string) (*DiveRecord, error) {
	rec := &DiveRecord{}
	var device string
	var startTS, endTS, bottomSecs int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, device_id, group_id, start_ts, end_ts, bottom_secs,
		       max_depth, avg_depth, min_temp, max_temp, rebreather, deco_required,
		       site, notes, buddy, environment, gf_low, gf_high, deco_model
		FROM dives WHERE id = ?
	`, id).Scan(
		&rec.ID, &device, &rec.GroupID, &startTS, &endTS, &bottomSecs,
		&rec.MaxDepth, &rec.AvgDepth, &rec.MinTemp, &rec.MaxTemp,
		&rec.Rebreather, &rec.DecoRequired,
		&rec.Meta.Site, &rec.Meta.Notes, &rec.Meta.Buddy, &rec.Meta.Environment,
		&rec.Meta.GFLow, &rec.Meta.GFHigh, &rec.Meta.DecoModel,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get dive %s: not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get dive: %w", err)
	}
	rec.Device = dive.DeviceID(device)
	rec.Start = time.Unix(startTS, 0).UTC()
	rec.End = time.Unix(endTS, 0).UTC()
	rec.BottomTime = time.Duration(bottomSecs) * time.Second
	return rec, nil
}

// ListDives returns all dives ordered by start time ascending.
func (s *Store) ListDives(ctx context.Context) ([]*DiveRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM dives ORDER BY start_ts ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list dives: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list dives: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list dives: %w", err)
	}

	out := make([]*DiveRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := s.GetDive(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Samples returns a dive's sample series ordered by offset.
func (s *Store) Samples(ctx context.Context, diveID string) ([]dive.Sample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT offset_secs, depth, temp, ceiling, gtr, setpoint
		FROM samples WHERE dive_id = ?
		ORDER BY offset_secs ASC, rowid ASC
	`, diveID)
	if err != nil {
		return nil, fmt.Errorf("samples: %w", err)
	}
	defer rows.Close()

	var out []dive.Sample
	for rows.Next() {
		var sm dive.Sample
		var temp sql.NullFloat64
		if err := rows.Scan(&sm.Offset, &sm.Depth, &temp, &sm.Ceiling, &sm.GTR, &sm.Setpoint); err != nil {
			return nil, fmt.Errorf("samples: %w", err)
		}
		if temp.Valid {
			sm.Temperature = temp.Float64
		}
		out = append(out, sm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("samples: %w", err)
	}
	return out, nil
}

// CountDives returns the number of persisted dive rows.
func (s *Store) CountDives(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dives`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count dives: %w", err)
	}
	return n, nil
}
