// ABOUTME: Root command for the megamicros CLI
// ABOUTME: Wires subcommands and the shared logging flags
package cli

import (
	"github.com/spf13/cobra"

	"github.com/megamicros/megamicros-go/internal/logx"
)

// NewRootCmd creates the root megamicros command.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "megamicros",
		Short: "Replay and inspect MegaMicros antenna recordings",
		Long: `Megamicros replays MuH5 recordings at real-time pace, streams the
frames to bench clients over websocket, and talks to an aidb database.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().String("log-level", "info", "console log level (debug, info, warn, error, or off)")
	root.PersistentFlags().String("file-log-level", "off", "file log level (debug, info, warn, error, or off)")
	root.PersistentFlags().String("log-file", logx.DefaultLogFile, "log file path")

	root.AddCommand(
		newPlayCmd(),
		newInfoCmd(),
		newDiscoverCmd(),
		newDbCmd(),
	)

	return root
}
