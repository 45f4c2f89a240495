package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tideworn/logbook/internal/dive"
	"github.com/tideworn/logbook/internal/profile"
	"github.com/tideworn/logbook/internal/session"
	"github.com/tideworn/logbook/internal/sim"
	"github.com/tideworn/logbook/internal/store"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	Database  string
	Profiles  string
	TracePath string
	SimPath   string

	// Radio allows overriding the radio stack (for testing). If nil, it is
	// built from the --sim archive.
	Radio session.Radio
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <device-name>",
		Short: "Import dives from a device",
		Long: `Import new dives from a dive computer into the logbook database.

The transfer requests only entries newer than the last synced fingerprint,
skips duplicates already imported from other devices, and trims trailing
surface padding. Ctrl-C cancels cooperatively: dives already saved are kept.

No radio stack is linked in this build; --sim serves a device from a YAML
archive over the full transport and decoding path.

Example:
  logbook import --db ./logbook.db --sim ./export.yaml "Perdix 2"
  logbook import --db ./logbook.db --sim ./export.yaml --trace fail.trace "Teric"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Profiles, "profiles", "", "directory of device profile overrides")
	cmd.Flags().StringVar(&opts.TracePath, "trace", "", "write the I/O trace to this file on failure")
	cmd.Flags().StringVar(&opts.SimPath, "sim", "", "serve the device from a YAML archive")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runImport(cmd *cobra.Command, opts *ImportOptions, target string) error {
	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	profiles, err := profile.Load(opts.Profiles)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load device profiles", err)
	}
	prof := profiles.Lookup(target)
	slog.Debug("device profile resolved", "profile", prof.Name, "trim_threshold", prof.TrimThreshold)

	radio := opts.Radio
	if radio == nil {
		if opts.SimPath == "" {
			return NewExitError(ExitCommandError, "no radio stack available: pass --sim <archive>")
		}
		radio, err = simRadio(opts.SimPath, prof)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load simulated device archive", err)
		}
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

	s := session.New(st, radio,
		session.WithTrimThreshold(prof.TrimThreshold),
		session.WithProgress(func(p session.Progress) {
			out.VerboseLog("progress: %d saved, %d skipped", p.Saved, p.Skipped)
		}),
	)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, cancelling import", "signal", sig)
			s.Cancel()
		case <-ctx.Done():
		}
	}()

	result, err := s.Import(ctx, target)
	if err != nil {
		if opts.TracePath != "" {
			if traceErr := writeTraceFile(s, opts.TracePath); traceErr != nil {
				slog.Error("failed to write trace", "path", opts.TracePath, "error", traceErr)
			} else {
				out.VerboseLog("trace written to %s", opts.TracePath)
			}
		}
		_ = out.Error(session.Describe(err, result), nil)
		return WrapExitError(ExitFailure, "import failed", err)
	}
	if result == nil {
		return out.Success("import cancelled, nothing saved")
	}
	return out.Success(importSummary{
		Device:  result.DeviceName,
		New:     result.NewDives,
		Skipped: result.SkippedDives,
	})
}

type importSummary struct {
	Device  string `json:"device"`
	New     int    `json:"new"`
	Skipped int    `json:"skipped"`
}

func (s importSummary) String() string {
	return fmt.Sprintf("%s: %d new dives, %d skipped", s.Device, s.New, s.Skipped)
}

// simRadio builds a radio serving every device in the archive, each
// reachable under both its name and id, honoring the profile's MTU and
// delivery mode.
func simRadio(path string, prof profile.Profile) (session.Radio, error) {
	a, err := LoadArchive(path)
	if err != nil {
		return nil, err
	}
	radio := sim.NewRadio()
	radio.SetWriteMode(prof.WriteMode)
	for _, ad := range a.Devices {
		dev := sim.NewDevice(dive.DeviceID(ad.ID), ad.Name)
		if prof.MTU > 0 {
			dev.SetMTU(prof.MTU)
		}
		for _, row := range ad.Dives {
			dev.AddDive(row.toDive(dive.DeviceID(ad.ID), ad.Name))
		}
		radio.Register(ad.Name, dev)
		radio.Register(ad.ID, dev)
	}
	return radio, nil
}

// writeTraceFile saves the session's I/O trace as JSON entries, one per
// line, readable by the trace command.
func writeTraceFile(s *session.Session, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, e := range s.Trace() {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}
