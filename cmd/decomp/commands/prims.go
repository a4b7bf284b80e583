package commands

import (
	"github.com/spf13/cobra"

	"github.com/l3aro/go-decomp/pkg/cfa"
	"github.com/l3aro/go-decomp/pkg/decomp"
)

// structureInfo is the JSON form of one primitive or residue region.
type structureInfo struct {
	Kind    string   `json:"kind"`
	Label   string   `json:"label"`
	Detail  string   `json:"detail"`
	Members []string `json:"members"`
}

type primsInfo struct {
	Function   string          `json:"function"`
	Reducible  bool            `json:"reducible"`
	Structures []structureInfo `json:"structures"`
}

func newPrimsInfo(res *cfa.Result) *primsInfo {
	info := &primsInfo{Function: res.Function, Reducible: res.Reducible()}
	for _, s := range res.Structures() {
		si := structureInfo{Label: res.Label(s.ID()), Detail: res.Describe(s)}
		switch s := s.(type) {
		case cfa.Primitive:
			si.Kind = s.Kind().String()
		case *cfa.Region:
			si.Kind = s.Kind.String()
		}
		for _, id := range s.Members() {
			si.Members = append(si.Members, res.Label(id))
		}
		info.Structures = append(info.Structures, si)
	}
	return info
}

// primsCmd represents the prims command
var primsCmd = &cobra.Command{
	Use:   "prims <file> [function]",
	Short: "Print the primitives found by structural analysis",
	Long: `Runs structural analysis on every function in a file, or on the named
function, and prints the primitives in the order they were found, followed by
any regions that could not be structured.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return inspect(cmd, args, func(rep *decomp.FunctionReport) (any, string, bool) {
			if rep.Result == nil {
				return nil, "", false
			}
			return newPrimsInfo(rep.Result), rep.Result.String(), true
		})
	},
}

func init() {
	RootCmd.AddCommand(primsCmd)
}
