package cfg

import (
	"fmt"

	"github.com/l3aro/go-decomp/pkg/graph"
	"github.com/l3aro/go-decomp/pkg/ir"
)

// ControlFlowGraph is the read-only graph of a function's reachable blocks
// plus a virtual exit that every returning block flows into.
type ControlFlowGraph struct {
	name    string
	g       *graph.Graph
	exit    graph.NodeID
	lines   map[graph.NodeID][]string
	byLabel map[string]graph.NodeID
}

// New builds the CFG of fn. Blocks unreachable from the entry are pruned.
func New(fn *ir.Function) (*ControlFlowGraph, error) {
	if fn == nil || len(fn.Blocks) == 0 {
		name := ""
		if fn != nil {
			name = fn.Name
		}
		return nil, &MalformedFunctionError{Function: name, Reason: "entry block is absent"}
	}

	index, err := validate(fn)
	if err != nil {
		return nil, err
	}

	reachable, err := reachableBlocks(fn, index)
	if err != nil {
		return nil, err
	}

	c := &ControlFlowGraph{
		name:    fn.Name,
		g:       graph.New(),
		lines:   make(map[graph.NodeID][]string),
		byLabel: make(map[string]graph.NodeID),
	}
	for i, b := range fn.Blocks {
		if !reachable[i] {
			continue
		}
		id := c.g.AddNode(b.Name, i)
		c.byLabel[b.Name] = id
		c.lines[id] = b.Lines
	}
	c.exit = c.g.AddNode(ExitLabel, -1)

	for i, b := range fn.Blocks {
		if !reachable[i] {
			continue
		}
		from := c.byLabel[b.Name]
		for _, e := range c.edgesOf(from, b.Term) {
			if err := c.g.AddEdge(e); err != nil {
				return nil, &MalformedFunctionError{Function: fn.Name, Block: b.Name, Reason: err.Error()}
			}
		}
	}
	return c, nil
}

// validate checks every block, reachable or not, and indexes them by name.
func validate(fn *ir.Function) (map[string]int, error) {
	malformed := func(block, format string, args ...interface{}) error {
		return &MalformedFunctionError{Function: fn.Name, Block: block, Reason: fmt.Sprintf(format, args...)}
	}

	index := make(map[string]int, len(fn.Blocks))
	for i, b := range fn.Blocks {
		if b == nil || b.Name == "" {
			return nil, malformed("", "block %d has no name", i)
		}
		if _, dup := index[b.Name]; dup {
			return nil, malformed(b.Name, "duplicate block name")
		}
		index[b.Name] = i
	}

	for _, b := range fn.Blocks {
		t := b.Term
		if t == nil || t.Kind == ir.TermNone {
			return nil, malformed(b.Name, "block has no terminator")
		}
		switch t.Kind {
		case ir.TermBr:
			if len(t.Targets) != 1 {
				return nil, malformed(b.Name, "br needs 1 target, has %d", len(t.Targets))
			}
		case ir.TermCondBr:
			if len(t.Targets) != 2 {
				return nil, malformed(b.Name, "condbr needs 2 targets, has %d", len(t.Targets))
			}
		case ir.TermSwitch:
			if t.Default == "" {
				return nil, malformed(b.Name, "switch has no default target")
			}
			seen := make(map[string]bool, len(t.Cases))
			for _, cs := range t.Cases {
				if seen[cs.Value] {
					return nil, malformed(b.Name, "duplicate switch case value %s", cs.Value)
				}
				seen[cs.Value] = true
			}
		case ir.TermIndirectBr:
			if len(t.Targets) == 0 {
				return nil, malformed(b.Name, "indirectbr has no targets")
			}
		case ir.TermRet, ir.TermUnreachable:
		case ir.TermUnsupported:
			return nil, malformed(b.Name, "unsupported terminator %q", t.Text)
		default:
			return nil, malformed(b.Name, "unknown terminator kind %s", t.Kind)
		}
		for _, dest := range t.Destinations() {
			if _, ok := index[dest]; !ok {
				return nil, malformed(b.Name, "branch target %q does not exist", dest)
			}
		}
	}
	return index, nil
}

// reachableBlocks returns the positions of blocks reachable from the entry.
func reachableBlocks(fn *ir.Function, index map[string]int) (map[int]bool, error) {
	full := graph.New()
	for i, b := range fn.Blocks {
		full.AddNode(b.Name, i)
	}
	for i, b := range fn.Blocks {
		seen := make(map[string]bool)
		for _, dest := range b.Term.Destinations() {
			if seen[dest] {
				continue
			}
			seen[dest] = true
			e := graph.Edge{From: graph.NodeID(i), To: graph.NodeID(index[dest]), Kind: graph.Kind(graph.Unconditional)}
			if err := full.AddEdge(e); err != nil {
				return nil, &MalformedFunctionError{Function: fn.Name, Block: b.Name, Reason: err.Error()}
			}
		}
	}

	reachable := make(map[int]bool)
	for id := range graph.Reachable(full, full.Entry()) {
		reachable[int(id)] = true
	}
	return reachable, nil
}

// edgesOf translates a terminator into labelled edges leaving from.
func (c *ControlFlowGraph) edgesOf(from graph.NodeID, t *ir.Terminator) []graph.Edge {
	edge := func(to string, kind graph.EdgeKind) graph.Edge {
		return graph.Edge{From: from, To: c.byLabel[to], Kind: kind}
	}

	switch t.Kind {
	case ir.TermBr:
		return []graph.Edge{edge(t.Targets[0], graph.Kind(graph.Unconditional))}
	case ir.TermCondBr:
		if t.Targets[0] == t.Targets[1] {
			return []graph.Edge{edge(t.Targets[0], graph.Kind(graph.Unconditional))}
		}
		return []graph.Edge{
			edge(t.Targets[0], graph.Kind(graph.BranchTrue)),
			edge(t.Targets[1], graph.Kind(graph.BranchFalse)),
		}
	case ir.TermSwitch:
		edges := make([]graph.Edge, 0, len(t.Cases)+1)
		for _, cs := range t.Cases {
			edges = append(edges, edge(cs.Target, graph.Case(cs.Value)))
		}
		return append(edges, edge(t.Default, graph.Kind(graph.SwitchDefault)))
	case ir.TermIndirectBr:
		var edges []graph.Edge
		seen := make(map[string]bool)
		for _, target := range t.Targets {
			if seen[target] {
				continue
			}
			seen[target] = true
			edges = append(edges, edge(target, graph.EdgeKind{Type: graph.Indirect, Value: target}))
		}
		return edges
	case ir.TermRet:
		return []graph.Edge{{From: from, To: c.exit, Kind: graph.Kind(graph.Return)}}
	case ir.TermUnreachable:
		return []graph.Edge{{From: from, To: c.exit, Kind: graph.Kind(graph.Unreachable)}}
	}
	return nil
}

// Name returns the function name.
func (c *ControlFlowGraph) Name() string {
	return c.name
}

// Graph exposes the underlying graph, virtual exit included.
func (c *ControlFlowGraph) Graph() *graph.Graph {
	return c.g
}

// Entry returns the entry node.
func (c *ControlFlowGraph) Entry() graph.NodeID {
	return c.g.Entry()
}

// Exit returns the virtual exit node.
func (c *ControlFlowGraph) Exit() graph.NodeID {
	return c.exit
}

// Node returns the node for id.
func (c *ControlFlowGraph) Node(id graph.NodeID) graph.Node {
	return c.g.Node(id)
}

// Nodes returns the block nodes in original block order, without the exit.
func (c *ControlFlowGraph) Nodes() []graph.Node {
	nodes := c.g.Nodes()
	return nodes[:len(nodes)-1]
}

// Len returns the number of block nodes, not counting the exit.
func (c *ControlFlowGraph) Len() int {
	return c.g.Len() - 1
}

// Lookup finds a block node by label.
func (c *ControlFlowGraph) Lookup(label string) (graph.NodeID, bool) {
	id, ok := c.byLabel[label]
	return id, ok
}

// Lines returns the instruction text the front-end attached to a block.
func (c *ControlFlowGraph) Lines(id graph.NodeID) []string {
	return c.lines[id]
}

// Successors returns the edges leaving id.
func (c *ControlFlowGraph) Successors(id graph.NodeID) []graph.Edge {
	return c.g.Out(id)
}

// Predecessors returns the edges entering id.
func (c *ControlFlowGraph) Predecessors(id graph.NodeID) []graph.Edge {
	return c.g.In(id)
}

// Edges returns all edges, exit edges included.
func (c *ControlFlowGraph) Edges() []graph.Edge {
	return c.g.Edges()
}

// NodeIDs implements graph.Directed.
func (c *ControlFlowGraph) NodeIDs() []graph.NodeID { return c.g.NodeIDs() }

// SuccIDs implements graph.Directed.
func (c *ControlFlowGraph) SuccIDs(id graph.NodeID) []graph.NodeID { return c.g.SuccIDs(id) }

// PredIDs implements graph.Directed.
func (c *ControlFlowGraph) PredIDs(id graph.NodeID) []graph.NodeID { return c.g.PredIDs(id) }
