// Package cfg builds Control Flow Graphs (CFGs) from a function's basic
// blocks and their terminators.
package cfg

import (
	"fmt"

	"github.com/l3aro/go-decomp/pkg/graph"
)

// ExitLabel is the label of the synthetic virtual exit node.
const ExitLabel = "<exit>"

// MalformedFunctionError reports a function that cannot be turned into a CFG.
type MalformedFunctionError struct {
	Function string
	Block    string // empty when the problem is not tied to one block
	Reason   string
}

func (e *MalformedFunctionError) Error() string {
	if e.Block == "" {
		return fmt.Sprintf("function %s: %s", e.Function, e.Reason)
	}
	return fmt.Sprintf("function %s: block %s: %s", e.Function, e.Block, e.Reason)
}

// Is reports the error as malformed input.
func (e *MalformedFunctionError) Is(target error) bool {
	return target == graph.ErrMalformedInput
}

// BlockInfo is the serialisable form of one CFG node.
type BlockInfo struct {
	ID           int      `json:"id"`           // Node ID in the CFG
	Label        string   `json:"label"`        // Block label from the front-end
	Ordinal      int      `json:"ordinal"`      // Position in the function's block order
	Lines        []string `json:"lines"`        // Opaque instruction text
	Predecessors []string `json:"predecessors"` // Labels of predecessor blocks
}

// EdgeInfo is the serialisable form of one CFG edge.
type EdgeInfo struct {
	Source string `json:"source"`          // Source block label
	Target string `json:"target"`          // Target block label, ExitLabel for returns
	Kind   string `json:"kind"`            // Edge kind (br, true, false, case, default, ...)
	Value  string `json:"value,omitempty"` // Switch case value
}

// Info is a JSON-friendly snapshot of a ControlFlowGraph.
type Info struct {
	FunctionName         string      `json:"function_name"`         // Name of the function
	Blocks               []BlockInfo `json:"blocks"`                // Blocks in original order
	Edges                []EdgeInfo  `json:"edges"`                 // Edges grouped by source
	EntryBlock           string      `json:"entry_block"`           // Label of the entry block
	ExitBlocks           []string    `json:"exit_blocks"`           // Blocks with an edge to the virtual exit
	CyclomaticComplexity int         `json:"cyclomatic_complexity"` // E - N + 2 over the graph with its exit
}
