package cfa

import (
	"fmt"

	"github.com/l3aro/go-decomp/pkg/cfg"
	"github.com/l3aro/go-decomp/pkg/dom"
	"github.com/l3aro/go-decomp/pkg/graph"
)

// AmbiguousMergeError is returned when a switch has two equally good merge
// candidates and picking either would be arbitrary.
type AmbiguousMergeError struct {
	Function   string
	Dispatch   string
	Candidates []string
}

func (e *AmbiguousMergeError) Error() string {
	return fmt.Sprintf("function %s: switch at %s has ambiguous merge %v", e.Function, e.Dispatch, e.Candidates)
}

// Is reports the error as an internal invariant violation.
func (e *AmbiguousMergeError) Is(target error) bool {
	return target == graph.ErrInternalInvariant
}

// Result is the outcome of structural analysis of one function.
type Result struct {
	Function string
	// Nodes are the CFG block nodes, without the virtual exit.
	Nodes []graph.Node
	// Entry is the CFG entry node.
	Entry graph.NodeID
	// Primitives in the order they were found. Inner primitives come first.
	Primitives []Primitive
	// Residue holds the regions no primitive could describe.
	Residue []*Region
	// Root is the single node the function reduced to.
	Root graph.NodeID

	arena      *arena
	structures []Structure
	byID       map[graph.NodeID]Structure
}

// Reducible reports whether the function reduced without residue.
func (r *Result) Reducible() bool {
	return len(r.Residue) == 0
}

// Structures returns primitives and regions interleaved in emission order,
// which is ascending synthetic ID order.
func (r *Result) Structures() []Structure {
	return r.structures
}

// Structure returns the structure that created the synthetic node id.
func (r *Result) Structure(id graph.NodeID) (Structure, bool) {
	s, ok := r.byID[id]
	return s, ok
}

// Label returns a block label for CFG nodes and "(first...last)" for
// synthetic ones.
func (r *Result) Label(id graph.NodeID) string {
	return r.arena.label(id)
}

// Leaves returns the CFG nodes a node covers, in block order.
func (r *Result) Leaves(id graph.NodeID) []graph.NodeID {
	if id < 0 || int(id) >= len(r.arena.leaves) {
		return nil
	}
	return append([]graph.NodeID(nil), r.arena.leaves[id]...)
}

// Synthetic reports whether id was created by a collapse.
func (r *Result) Synthetic(id graph.NodeID) bool {
	return r.arena.synthetic(id)
}

type analyzer struct {
	g          *cfg.ControlFlowGraph
	a          *arena
	w          *working
	prims      []Primitive
	residue    []*Region
	structures []Structure
}

func (an *analyzer) newBase(id, entry graph.NodeID) base {
	return base{
		id:      id,
		entry:   entry,
		exit:    an.w.single(id),
		members: an.a.leaves[id],
	}
}

func (an *analyzer) emit(p Primitive) {
	an.prims = append(an.prims, p)
	an.structures = append(an.structures, p)
}

// FindAll reduces g to a single node and reports every primitive matched on
// the way. tree must be the dominator tree of g; it is computed when nil.
// Patterns are tried at each node in descending RPO rank, so inner
// structures collapse before the ones around them, and every match restarts
// the scan. When nothing matches, a residue region is collapsed instead.
func FindAll(g *cfg.ControlFlowGraph, tree *dom.Tree) (*Result, error) {
	if tree == nil {
		t, err := dom.Compute(g)
		if err != nil {
			return nil, fmt.Errorf("dominators of %s: %w", g.Name(), err)
		}
		tree = t
	}
	if tree.Entry() != g.Entry() {
		return nil, fmt.Errorf("dominator tree rooted at %d, cfg entry is %d: %w",
			tree.Entry(), g.Entry(), graph.ErrInternalInvariant)
	}

	a := newArena(g, tree)
	an := &analyzer{g: g, a: a, w: newWorking(g, a)}

	for {
		w := an.w
		if len(w.alive) == 1 && !w.hasSelf(w.entry) {
			break
		}

		matched := false
		for _, n := range w.scanOrder() {
			ok, err := an.matchAt(n)
			if err != nil {
				return nil, err
			}
			if ok {
				matched = true
				break
			}
		}
		if !matched {
			if err := an.fallback(); err != nil {
				return nil, err
			}
		}
	}

	res := &Result{
		Function:   g.Name(),
		Nodes:      g.Nodes(),
		Entry:      g.Entry(),
		Primitives: an.prims,
		Residue:    an.residue,
		Root:       an.w.entry,
		arena:      a,
		structures: an.structures,
		byID:       make(map[graph.NodeID]Structure, len(an.structures)),
	}
	for _, s := range an.structures {
		res.byID[s.ID()] = s
	}

	if got := len(a.leaves[res.Root]); got != len(res.Nodes) {
		return nil, fmt.Errorf("function %s: root covers %d of %d blocks: %w",
			g.Name(), got, len(res.Nodes), graph.ErrInternalInvariant)
	}
	return res, nil
}
