package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tideworn/logbook/internal/dedup"
	"github.com/tideworn/logbook/internal/dive"
	"github.com/tideworn/logbook/internal/ident"
	"github.com/tideworn/logbook/internal/merge"
	"github.com/tideworn/logbook/internal/store"
	"github.com/tideworn/logbook/internal/trim"
)

// BatchOptions holds flags for the batch command.
type BatchOptions struct {
	*RootOptions
	Database      string
	TrimThreshold float64

	// IDs allows overriding the id generator (for testing).
	IDs ident.Generator
}

// NewBatchCommand creates the batch command.
func NewBatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "batch <archive.yaml>",
		Short: "Import a multi-device archive export",
		Long: `Import a YAML archive exported from a desktop log manager.

Rows from different devices recording the same dive are merged into one
logical dive with a shared group id; every contributing fingerprint is
preserved. Dives already in the database are skipped.

Example:
  logbook batch --db ./logbook.db ./shearwater-export.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().Float64Var(&opts.TrimThreshold, "trim-threshold", trim.DefaultThreshold, "surface padding depth threshold in meters")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runBatch(cmd *cobra.Command, opts *BatchOptions, path string) error {
	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	archive, err := LoadArchive(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load archive", err)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	ids := opts.IDs
	if ids == nil {
		ids = ident.UUIDv7Generator{}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	summary, err := importBatch(ctx, st, archive, ids, opts.TrimThreshold)
	if err != nil {
		return WrapExitError(ExitFailure, "batch import failed", err)
	}
	return out.Success(summary)
}

type batchSummary struct {
	Rows    int `json:"rows"`
	Merged  int `json:"merged"`
	New     int `json:"new"`
	Skipped int `json:"skipped"`
}

func (s batchSummary) String() string {
	return fmt.Sprintf("%d rows -> %d dives: %d new, %d skipped", s.Rows, s.Merged, s.New, s.Skipped)
}

// importBatch trims and clusters the archive rows, then persists each
// merged dive that is not already present. Row-scoped store failures skip
// that dive and continue.
func importBatch(ctx context.Context, st *store.Store, archive *Archive, ids ident.Generator, threshold float64) (batchSummary, error) {
	rows := archive.Rows()
	for _, row := range rows {
		trim.Apply(row, threshold)
	}

	merged := merge.Batch(rows, ids)
	summary := batchSummary{Rows: len(rows), Merged: len(merged)}

	index := dedup.NewIndex(st)
	for _, m := range merged {
		// A merged dive is already present when any contributing
		// fingerprint is known; the remaining fingerprints then attach to
		// the existing dive rather than creating a second one.
		existing := ""
		for _, src := range m.Sources {
			id, ok, err := st.FindDiveByFingerprint(ctx, src.Fingerprint)
			if err != nil {
				return summary, err
			}
			if ok {
				existing = id
				break
			}
		}
		if existing != "" {
			slog.Debug("duplicate dive in archive", "existing", existing, "start", m.Dive.Start)
			attachSources(ctx, st, archive, existing, m.Sources)
			summary.Skipped++
			continue
		}

		res, err := index.Check(ctx, m.Dive)
		if err != nil {
			return summary, err
		}
		if res.Duplicate {
			slog.Debug("duplicate dive in archive", "existing", res.DiveID, "start", m.Dive.Start)
			attachSources(ctx, st, archive, res.DiveID, m.Sources)
			summary.Skipped++
			continue
		}

		rec := store.NewDiveRecord(ids.Generate(), m.Dive)
		rec.GroupID = m.GroupID
		if err := st.SaveDive(ctx, rec, m.Dive.Samples, m.Dive.GasMixes); err != nil {
			slog.Error("failed to save dive, skipping", "start", m.Dive.Start, "error", err)
			summary.Skipped++
			continue
		}
		attachSources(ctx, st, archive, rec.ID, m.Sources)
		summary.New++
	}
	return summary, nil
}

// attachSources links every contributing fingerprint to the dive,
// registering the owning devices on the way. Links are idempotent.
func attachSources(ctx context.Context, st *store.Store, archive *Archive, diveID string, sources []merge.Source) {
	for _, src := range sources {
		if err := st.UpsertDevice(ctx, src.Device, deviceName(archive, src.Device)); err != nil {
			slog.Warn("failed to record device", "device", src.Device, "error", err)
		}
		if err := st.SaveSourceFingerprint(ctx, diveID, src.Device, src.Fingerprint); err != nil {
			slog.Warn("failed to record fingerprint", "dive", diveID, "device", src.Device, "error", err)
		}
	}
}

func deviceName(a *Archive, id dive.DeviceID) string {
	for _, d := range a.Devices {
		if d.ID == string(id) {
			return d.Name
		}
	}
	return ""
}
