package commands

import (
	"github.com/spf13/cobra"

	"github.com/l3aro/go-decomp/pkg/decomp"
)

// groupsCmd represents the groups command
var groupsCmd = &cobra.Command{
	Use:   "groups <file> [function]",
	Short: "Print the recovered structure trees",
	Long: `Recovers the nested structure of every function in a file, or of the named
function, and prints it as an indented tree. Blocks that could not be
structured appear under Irreducible or Unstructured regions.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return inspect(cmd, args, func(rep *decomp.FunctionReport) (any, string, bool) {
			if rep.Tree == nil {
				return nil, "", false
			}
			return rep.Tree.Info(), rep.Tree.String(), true
		})
	},
}

func init() {
	RootCmd.AddCommand(groupsCmd)
}
