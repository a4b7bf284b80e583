package commands

import (
	"github.com/spf13/cobra"

	"github.com/l3aro/go-decomp/pkg/decomp"
)

// cfgCmd represents the cfg command
var cfgCmd = &cobra.Command{
	Use:   "cfg <file> [function]",
	Short: "Print control-flow graphs",
	Long: `Builds the control-flow graph of every function in a file, or of the named
function, and prints each block with its predecessors and its successors.
With --json, outputs blocks, edges and cyclomatic complexity.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return inspect(cmd, args, func(rep *decomp.FunctionReport) (any, string, bool) {
			if rep.CFG == nil {
				return nil, "", false
			}
			return rep.CFG.Info(), rep.CFG.String(), true
		})
	},
}

func init() {
	RootCmd.AddCommand(cfgCmd)
}
