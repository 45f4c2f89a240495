package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tideworn/logbook/internal/transport"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace <trace-file>",
		Short: "Render a saved I/O trace",
		Long: `Render a trace file written by import --trace as a hex dump,
one block per stream operation, for diagnosing failed transfers.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(cmd, opts, args[0])
		},
	}

	return cmd
}

func runTrace(cmd *cobra.Command, opts *TraceOptions, path string) error {
	entries, err := readTraceFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read trace", err)
	}
	if len(entries) == 0 {
		return NewExitError(ExitCommandError, "trace file holds no entries")
	}

	if opts.Format == "json" {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(entries)
	}
	return transport.WriteHexDump(cmd.OutOrStdout(), entries)
}

// readTraceFile parses one JSON trace entry per line.
func readTraceFile(path string) ([]transport.TraceEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []transport.TraceEntry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var e transport.TraceEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("line %d: %w", len(entries)+1, err)
		}
		entries = append(entries, e)
	}
	return entries, sc.Err()
}
