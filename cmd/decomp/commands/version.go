package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Version and BuildTime are set by main from linker flags.
var (
	Version   = "dev"
	BuildTime = ""
)

var versionCmd = &cobra.Command{
	Use:               "version",
	Short:             "Print version information",
	Args:              cobra.NoArgs,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if jsonOutput(cmd) {
			return writeJSON(out, map[string]string{
				"version":    Version,
				"build_time": BuildTime,
				"go":         runtime.Version(),
			})
		}
		fmt.Fprintf(out, "decomp version %s", Version)
		if BuildTime != "" {
			fmt.Fprintf(out, " (built %s)", BuildTime)
		}
		fmt.Fprintf(out, " %s\n", runtime.Version())
		return nil
	},
}

func init() {
	RootCmd.AddCommand(versionCmd)
}
