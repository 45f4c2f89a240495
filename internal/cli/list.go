package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tideworn/logbook/internal/store"
)

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	Database string
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List logged dives",
		Long: `List the logged dives in chronological order. A dive merged from
several devices appears once, with every contributing device named.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

type listEntry struct {
	ID       string   `json:"id"`
	Start    string   `json:"start"`
	Duration string   `json:"duration"`
	MaxDepth float64  `json:"max_depth"`
	Devices  []string `json:"devices"`
	Site     string   `json:"site,omitempty"`
	GroupID  string   `json:"group_id,omitempty"`
}

func runList(cmd *cobra.Command, opts *ListOptions) error {
	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
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

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	records, err := st.ListDives(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list dives", err)
	}

	entries := make([]listEntry, 0, len(records))
	for _, rec := range records {
		sources, err := st.SourceFingerprints(ctx, rec.ID)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to read dive sources", err)
		}
		devices := make([]string, 0, len(sources))
		seen := map[string]bool{}
		for _, src := range sources {
			name := string(src.Device)
			if !seen[name] {
				seen[name] = true
				devices = append(devices, name)
			}
		}
		if len(devices) == 0 {
			devices = []string{string(rec.Device)}
		}

		e := listEntry{
			ID:       rec.ID,
			Start:    rec.Start.UTC().Format(time.RFC3339),
			Duration: rec.End.Sub(rec.Start).Round(time.Second).String(),
			MaxDepth: rec.MaxDepth,
			Devices:  devices,
		}
		if rec.Meta.Site != nil {
			e.Site = *rec.Meta.Site
		}
		if rec.GroupID != nil {
			e.GroupID = *rec.GroupID
		}
		entries = append(entries, e)
	}

	if opts.Format == "json" {
		return out.Success(entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(out.Writer, "no dives logged")
		return nil
	}
	for _, e := range entries {
		line := fmt.Sprintf("%s  %s  %6.1fm  %-8s  %s",
			e.ID, e.Start, e.MaxDepth, e.Duration, strings.Join(e.Devices, "+"))
		if e.Site != "" {
			line += "  " + e.Site
		}
		fmt.Fprintln(out.Writer, line)
	}
	return nil
}
