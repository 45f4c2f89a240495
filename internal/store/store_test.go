package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tideworn/logbook/internal/dive"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "logbook.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testDive(device dive.DeviceID, start time.Time) *dive.Dive {
	return &dive.Dive{
		Device:     device,
		Start:      start,
		End:        start.Add(40 * time.Minute),
		BottomTime: 40 * time.Minute,
		MaxDepth:   28.5,
		AvgDepth:   16.2,
		MinTemp:    11,
		MaxTemp:    14,
		Samples: []dive.Sample{
			{Offset: 0, Depth: 1.2, Temperature: 14},
			{Offset: 10, Depth: 8.4, Temperature: 13},
			{Offset: 20, Depth: 28.5, Temperature: 11},
		},
		GasMixes: []dive.GasMix{{O2: 32}},
	}
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}
}

func TestSaveDive_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	start := time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC)
	d := testDive("petrel-123", start)
	site := "Lighthouse Reef"
	d.Meta.Site = &site

	rec := NewDiveRecord("dive-1", d)
	if err := s.SaveDive(ctx, rec, d.Samples, d.GasMixes); err != nil {
		t.Fatalf("SaveDive() failed: %v", err)
	}

	got, err := s.GetDive(ctx, "dive-1")
	if err != nil {
		t.Fatalf("GetDive() failed: %v", err)
	}
	if got.Device != "petrel-123" {
		t.Errorf("device = %q, want petrel-123", got.Device)
	}
	if !got.Start.Equal(start) {
		t.Errorf("start = %v, want %v", got.Start, start)
	}
	if got.MaxDepth != 28.5 {
		t.Errorf("max depth = %v, want 28.5", got.MaxDepth)
	}
	if got.Meta.Site == nil || *got.Meta.Site != "Lighthouse Reef" {
		t.Errorf("site = %v, want Lighthouse Reef", got.Meta.Site)
	}
	if got.GroupID != nil {
		t.Errorf("group id = %v, want nil", got.GroupID)
	}

	samples, err := s.Samples(ctx, "dive-1")
	if err != nil {
		t.Fatalf("Samples() failed: %v", err)
	}
	if len(samples) != 3 {
		t.Fatalf("got %d samples, want 3", len(samples))
	}
	if samples[2].Depth != 28.5 {
		t.Errorf("last sample depth = %v, want 28.5", samples[2].Depth)
	}
}

func TestSaveDive_DuplicateIDIsNoOp(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	start := time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC)
	d := testDive("dev-a", start)
	rec := NewDiveRecord("dive-1", d)

	if err := s.SaveDive(ctx, rec, d.Samples, nil); err != nil {
		t.Fatalf("first SaveDive() failed: %v", err)
	}
	if err := s.SaveDive(ctx, rec, d.Samples, nil); err != nil {
		t.Fatalf("second SaveDive() failed: %v", err)
	}

	samples, err := s.Samples(ctx, "dive-1")
	if err != nil {
		t.Fatalf("Samples() failed: %v", err)
	}
	if len(samples) != 3 {
		t.Errorf("got %d samples after re-save, want 3 (no duplication)", len(samples))
	}
}

func TestSourceFingerprint_IdempotentLink(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	start := time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC)
	d := testDive("dev-a", start)
	if err := s.SaveDive(ctx, NewDiveRecord("dive-1", d), nil, nil); err != nil {
		t.Fatalf("SaveDive() failed: %v", err)
	}

	fp := dive.Fingerprint{0x01, 0x02}
	for i := 0; i < 3; i++ {
		if err := s.SaveSourceFingerprint(ctx, "dive-1", "dev-a", fp); err != nil {
			t.Fatalf("SaveSourceFingerprint() iteration %d failed: %v", i, err)
		}
	}

	fps, err := s.SourceFingerprints(ctx, "dive-1")
	if err != nil {
		t.Fatalf("SourceFingerprints() failed: %v", err)
	}
	if len(fps) != 1 {
		t.Errorf("got %d fingerprint rows, want 1", len(fps))
	}
}

func TestFindDiveByFingerprint(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	start := time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC)
	d := testDive("dev-a", start)
	if err := s.SaveDive(ctx, NewDiveRecord("dive-1", d), nil, nil); err != nil {
		t.Fatalf("SaveDive() failed: %v", err)
	}
	fp := dive.Fingerprint{0xca, 0xfe}
	if err := s.SaveSourceFingerprint(ctx, "dive-1", "dev-a", fp); err != nil {
		t.Fatalf("SaveSourceFingerprint() failed: %v", err)
	}

	id, ok, err := s.FindDiveByFingerprint(ctx, fp)
	if err != nil || !ok || id != "dive-1" {
		t.Errorf("FindDiveByFingerprint() = (%q, %v, %v), want (dive-1, true, nil)", id, ok, err)
	}

	// Lookup is device-agnostic: the fingerprint matches from any owner.
	_, ok, err = s.FindDiveByFingerprint(ctx, dive.Fingerprint{0xde, 0xad})
	if err != nil || ok {
		t.Errorf("unknown fingerprint: ok = %v, err = %v, want false, nil", ok, err)
	}

	_, ok, _ = s.FindDiveByFingerprint(ctx, nil)
	if ok {
		t.Error("nil fingerprint must never match")
	}
}

func TestFindDiveByDeviceAndTimeWindow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	start := time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC)
	d := testDive("dev-a", start)
	if err := s.SaveDive(ctx, NewDiveRecord("dive-1", d), nil, nil); err != nil {
		t.Fatalf("SaveDive() failed: %v", err)
	}

	// Different device inside the window: match.
	id, ok, err := s.FindDiveByDeviceAndTimeWindow(ctx, "dev-b", start.Add(200*time.Second), 300*time.Second)
	if err != nil || !ok || id != "dive-1" {
		t.Errorf("cross-device lookup = (%q, %v, %v), want (dive-1, true, nil)", id, ok, err)
	}

	// Exactly at the tolerance boundary: still a match.
	_, ok, _ = s.FindDiveByDeviceAndTimeWindow(ctx, "dev-b", start.Add(300*time.Second), 300*time.Second)
	if !ok {
		t.Error("start exactly 300s away must match a 300s tolerance")
	}

	// One second past the boundary: no match.
	_, ok, _ = s.FindDiveByDeviceAndTimeWindow(ctx, "dev-b", start.Add(301*time.Second), 300*time.Second)
	if ok {
		t.Error("start 301s away must not match a 300s tolerance")
	}

	// Same device inside the window: excluded.
	_, ok, _ = s.FindDiveByDeviceAndTimeWindow(ctx, "dev-a", start.Add(10*time.Second), 300*time.Second)
	if ok {
		t.Error("same-device rows must be excluded from the window lookup")
	}
}

func TestLastFingerprint(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	fp, err := s.LastFingerprint(ctx, "dev-a")
	if err != nil {
		t.Fatalf("LastFingerprint() failed: %v", err)
	}
	if fp != nil {
		t.Errorf("unknown device fingerprint = %v, want nil", fp)
	}

	start := time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC)
	d := testDive("dev-a", start)
	if err := s.SaveDive(ctx, NewDiveRecord("dive-1", d), nil, nil); err != nil {
		t.Fatalf("SaveDive() failed: %v", err)
	}
	if err := s.SaveSourceFingerprint(ctx, "dive-1", "dev-a", dive.Fingerprint{0x01}); err != nil {
		t.Fatalf("SaveSourceFingerprint() failed: %v", err)
	}
	if err := s.SaveSourceFingerprint(ctx, "dive-1", "dev-a", dive.Fingerprint{0x02}); err != nil {
		t.Fatalf("SaveSourceFingerprint() failed: %v", err)
	}

	fp, err = s.LastFingerprint(ctx, "dev-a")
	if err != nil {
		t.Fatalf("LastFingerprint() failed: %v", err)
	}
	if fp.String() != "02" {
		t.Errorf("last fingerprint = %s, want 02", fp)
	}
}

func TestUpsertDevice_KeepsLastFingerprint(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	start := time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC)
	d := testDive("dev-a", start)
	if err := s.SaveDive(ctx, NewDiveRecord("dive-1", d), nil, nil); err != nil {
		t.Fatalf("SaveDive() failed: %v", err)
	}
	if err := s.SaveSourceFingerprint(ctx, "dive-1", "dev-a", dive.Fingerprint{0x07}); err != nil {
		t.Fatalf("SaveSourceFingerprint() failed: %v", err)
	}
	if err := s.UpsertDevice(ctx, "dev-a", "Petrel 3"); err != nil {
		t.Fatalf("UpsertDevice() failed: %v", err)
	}

	fp, err := s.LastFingerprint(ctx, "dev-a")
	if err != nil {
		t.Fatalf("LastFingerprint() failed: %v", err)
	}
	if fp.String() != "07" {
		t.Errorf("naming the device must not clear its fingerprint, got %s", fp)
	}
}

func TestListDives_OrderedByStart(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"later", "earlier"} {
		d := testDive("dev-a", base.Add(time.Duration(1-i)*time.Hour))
		if err := s.SaveDive(ctx, NewDiveRecord(id, d), nil, nil); err != nil {
			t.Fatalf("SaveDive(%s) failed: %v", id, err)
		}
	}

	dives, err := s.ListDives(ctx)
	if err != nil {
		t.Fatalf("ListDives() failed: %v", err)
	}
	if len(dives) != 2 || dives[0].ID != "earlier" || dives[1].ID != "later" {
		t.Errorf("unexpected order: %v", []string{dives[0].ID, dives[1].ID})
	}
}
