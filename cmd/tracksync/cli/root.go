// Package cli implements the tracksync command-line interface.
package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"tracksync.io/cli/cmd/tracksync/cli/logging"
	"tracksync.io/cli/cmd/tracksync/cli/settings"
	"tracksync.io/cli/cmd/tracksync/cli/telemetry"
)

const gettingStarted = `

Getting Started:
  Run 'tracksync setup' to connect your issue tracker and install the
  coding-assistant hooks, then 'tracksync daemon start' to begin syncing
  sessions.

`

const accessibilityHelp = `
Environment Variables:
  ACCESSIBLE    Set to any value (e.g., ACCESSIBLE=1) to enable accessibility
                mode. This uses simpler text prompts instead of interactive
                TUI elements, which works better with screen readers.
`

// Version information (can be set at build time)
var (
	Version = "dev"
	Commit  = "unknown"
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tracksync",
		Short: "Sync coding sessions to your issue tracker",
		Long:  "A daemon that mirrors coding-assistant sessions into your issue tracker" + gettingStarted + accessibilityHelp,
		// Let main.go handle error printing to avoid duplication
		SilenceErrors: true,
		// Hide completion command from help but keep it functional
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			logging.SetLogLevelGetter(func() string {
				s, err := settings.Load()
				if err != nil {
					return ""
				}
				return s.LogLevel
			})
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			// Load telemetry preference from settings (nil defaults to disabled)
			var telemetryEnabled *bool
			if s, err := settings.Load(); err == nil {
				telemetryEnabled = s.Telemetry
			}

			telemetryClient := telemetry.NewClient(Version, telemetryEnabled)
			defer telemetryClient.Close()
			telemetryClient.TrackCommand(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newSetupCmd())
	cmd.AddCommand(newDaemonCmd())
	cmd.AddCommand(newQueueCmd())
	cmd.AddCommand(newHooksCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("tracksync %s (%s)\n", Version, Commit)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
