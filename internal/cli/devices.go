package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tideworn/logbook/internal/profile"
	"github.com/tideworn/logbook/internal/transport"
)

// DevicesOptions holds flags for the devices command.
type DevicesOptions struct {
	*RootOptions
	Profiles string
}

// NewDevicesCommand creates the devices command.
func NewDevicesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DevicesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List known device profiles",
		Long: `List the device profiles in effect: builtins plus any overrides
from the profile directory. The profile decides chunk size, delivery mode,
and the surface-padding threshold for matching devices.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDevices(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Profiles, "profiles", "", "directory of device profile overrides")

	return cmd
}

type profileEntry struct {
	Name          string   `json:"name"`
	Match         []string `json:"match"`
	MTU           int      `json:"mtu,omitempty"`
	WriteMode     string   `json:"write_mode"`
	TrimThreshold float64  `json:"trim_threshold"`
}

func runDevices(cmd *cobra.Command, opts *DevicesOptions) error {
	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	registry, err := profile.Load(opts.Profiles)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load device profiles", err)
	}

	entries := make([]profileEntry, 0)
	for _, p := range registry.Profiles() {
		entries = append(entries, profileEntry{
			Name:          p.Name,
			Match:         p.Match,
			MTU:           p.MTU,
			WriteMode:     writeModeName(p.WriteMode),
			TrimThreshold: p.TrimThreshold,
		})
	}

	if opts.Format == "json" {
		return out.Success(entries)
	}
	for _, e := range entries {
		line := fmt.Sprintf("%-10s match=%v mode=%s trim=%.1fm", e.Name, e.Match, e.WriteMode, e.TrimThreshold)
		if e.MTU > 0 {
			line += fmt.Sprintf(" mtu=%d", e.MTU)
		}
		fmt.Fprintln(out.Writer, line)
	}
	return nil
}

func writeModeName(m transport.WriteMode) string {
	if m == transport.WriteWithoutResponse {
		return "unconfirmed"
	}
	return "confirmed"
}
