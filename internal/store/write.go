package store

import (
	"context"
	"fmt"
	"time"

	"github.com/tideworn/logbook/internal/dive"
)

// DiveRecord is the persisted form of one logical dive. GroupID is set only
// for dives produced by merging rows from two or more devices; it is never
// reassigned once written.
type DiveRecord struct {
	ID         string
	Device     dive.DeviceID
	GroupID    *string
	Start      time.Time
	End        time.Time
	BottomTime time.Duration

	MaxDepth float64
	AvgDepth float64
	MinTemp  float64
	MaxTemp  float64

	Rebreather   bool
	DecoRequired bool

	Meta dive.Metadata
}

// NewDiveRecord converts a decoded dive into its persisted form under the
// given id, canonicalizing metadata text on the way in.
func NewDiveRecord(id string, d *dive.Dive) *DiveRecord {
	return &DiveRecord{
		ID:           id,
		Device:       d.Device,
		Start:        d.Start,
		End:          d.End,
		BottomTime:   d.BottomTime,
		MaxDepth:     d.MaxDepth,
		AvgDepth:     d.AvgDepth,
		MinTemp:      d.MinTemp,
		MaxTemp:      d.MaxTemp,
		Rebreather:   d.Rebreather,
		DecoRequired: d.DecoRequired,
		Meta:         dive.CanonicalMeta(d.Meta),
	}
}

// SaveDive inserts one dive row with its samples and gas mixes in a single
// transaction. Inserting an id that already exists is a silent no-op
// (idempotent re-import).
func (s *Store) SaveDive(ctx context.Context, rec *DiveRecord, samples []dive.Sample, mixes []dive.GasMix) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save dive: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO dives
		(id, device_id, group_id, start_ts, end_ts, bottom_secs,
		 max_depth, avg_depth, min_temp, max_temp, rebreather, deco_required,
		 site, notes, buddy, environment, gf_low, gf_high, deco_model)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		rec.ID,
		string(rec.Device),
		rec.GroupID,
		rec.Start.Unix(),
		rec.End.Unix(),
		int64(rec.BottomTime/time.Second),
		rec.MaxDepth,
		rec.AvgDepth,
		rec.MinTemp,
		rec.MaxTemp,
		rec.Rebreather,
		rec.DecoRequired,
		rec.Meta.Site,
		rec.Meta.Notes,
		rec.Meta.Buddy,
		rec.Meta.Environment,
		rec.Meta.GFLow,
		rec.Meta.GFHigh,
		rec.Meta.DecoModel,
	)
	if err != nil {
		return fmt.Errorf("save dive: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Row already present: keep the original samples and mixes.
		return tx.Commit()
	}

	for _, sm := range samples {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO samples (dive_id, offset_secs, depth, temp, ceiling, gtr, setpoint)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, rec.ID, sm.Offset, sm.Depth, sm.Temperature, sm.Ceiling, sm.GTR, sm.Setpoint); err != nil {
			return fmt.Errorf("save sample: %w", err)
		}
	}

	for _, m := range mixes {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO gas_mixes (dive_id, o2, he) VALUES (?, ?, ?)
		`, rec.ID, m.O2, m.He); err != nil {
			return fmt.Errorf("save gas mix: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save dive: %w", err)
	}
	return nil
}

// SaveSourceFingerprint links a (device, fingerprint) pair to a dive and
// advances the device's last-seen fingerprint. The UNIQUE constraint plus
// ON CONFLICT DO NOTHING makes re-presenting the same pair a no-op, so
// linking is idempotent.
func (s *Store) SaveSourceFingerprint(ctx context.Context, diveID string, device dive.DeviceID, fp dive.Fingerprint) error {
	if len(fp) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save fingerprint: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO source_fingerprints (dive_id, device_id, fingerprint)
		VALUES (?, ?, ?)
		ON CONFLICT(device_id, fingerprint) DO NOTHING
	`, diveID, string(device), []byte(fp)); err != nil {
		return fmt.Errorf("save fingerprint: %w", err)
	}

	// The decoder emits dives newest-last, so the most recent link is the
	// sync anchor for the next transfer.
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO devices (id, last_fingerprint) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET last_fingerprint = excluded.last_fingerprint
	`, string(device), []byte(fp)); err != nil {
		return fmt.Errorf("save fingerprint: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save fingerprint: %w", err)
	}
	return nil
}

// UpsertDevice records a device's display name without touching its
// last-seen fingerprint.
func (s *Store) UpsertDevice(ctx context.Context, id dive.DeviceID, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO devices (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
	`, string(id), dive.CanonicalText(name))
	if err != nil {
		return fmt.Errorf("upsert device: %w", err)
	}
	return nil
}
