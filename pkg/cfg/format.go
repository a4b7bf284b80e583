package cfg

import (
	"strings"

	"github.com/l3aro/go-decomp/pkg/graph"
)

// String renders the CFG as a block listing. Each block is framed by its
// predecessors (↙‾) and its successors with edge kinds (↘_).
func (c *ControlFlowGraph) String() string {
	var sb strings.Builder
	for i, n := range c.Nodes() {
		if i > 0 {
			sb.WriteString("\n")
		}
		if preds := c.PredIDs(n.ID); len(preds) > 0 {
			sb.WriteString("  ↙‾")
			for _, p := range preds {
				sb.WriteString(" " + c.g.Node(p).Label)
			}
			sb.WriteString("\n")
		}

		sb.WriteString("  " + n.Label)
		if n.ID == c.Entry() {
			sb.WriteString(" (entry)")
		}
		sb.WriteString("\n")
		for _, line := range c.lines[n.ID] {
			sb.WriteString("      " + line + "\n")
		}

		if out := c.Successors(n.ID); len(out) > 0 {
			sb.WriteString("  ↘_")
			for _, e := range out {
				sb.WriteString(" " + c.g.Node(e.To).Label + "[" + e.Kind.String() + "]")
			}
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// Info returns a JSON-friendly snapshot of the graph.
func (c *ControlFlowGraph) Info() *Info {
	info := &Info{
		FunctionName: c.name,
		Blocks:       make([]BlockInfo, 0, c.Len()),
		EntryBlock:   c.g.Node(c.Entry()).Label,
	}

	for _, n := range c.Nodes() {
		preds := make([]string, 0, len(c.PredIDs(n.ID)))
		for _, p := range c.PredIDs(n.ID) {
			preds = append(preds, c.g.Node(p).Label)
		}
		info.Blocks = append(info.Blocks, BlockInfo{
			ID:           int(n.ID),
			Label:        n.Label,
			Ordinal:      n.Ordinal,
			Lines:        c.lines[n.ID],
			Predecessors: preds,
		})
	}

	for _, e := range c.Edges() {
		info.Edges = append(info.Edges, EdgeInfo{
			Source: c.g.Node(e.From).Label,
			Target: c.g.Node(e.To).Label,
			Kind:   e.Kind.Type.String(),
			Value:  e.Kind.Value,
		})
		if e.To == c.exit {
			info.ExitBlocks = append(info.ExitBlocks, c.g.Node(e.From).Label)
		}
	}

	info.CyclomaticComplexity = cyclomatic(c.g)
	return info
}

func cyclomatic(g *graph.Graph) int {
	edges := 0
	for _, id := range g.NodeIDs() {
		edges += len(g.SuccIDs(id))
	}
	return edges - g.Len() + 2
}
