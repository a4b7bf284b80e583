package cfa

import (
	"github.com/l3aro/go-decomp/pkg/dom"
	"github.com/l3aro/go-decomp/pkg/graph"
)

// RegionKind says why a region could not be structured.
type RegionKind uint8

const (
	// Irreducible regions contain a cycle with more than one entry.
	Irreducible RegionKind = iota
	// Unstructured regions are acyclic but match no primitive.
	Unstructured
)

func (k RegionKind) String() string {
	if k == Irreducible {
		return "Irreducible"
	}
	return "Unstructured"
}

// Region is a residue subgraph that no primitive matched, collapsed so
// reduction can continue around it. Node IDs are working-graph nodes and may
// be synthetic.
type Region struct {
	Kind      RegionKind
	Nodes     []graph.NodeID // in rank order
	Entries   []graph.NodeID // nodes entered from outside
	Edges     []graph.Edge   // edges between Nodes
	BackEdges []graph.Edge   // the subset of Edges that retreat in RPO

	id      graph.NodeID
	members []graph.NodeID
}

// ID implements Structure.
func (r *Region) ID() graph.NodeID { return r.id }

// EntryNode implements Structure with the first entry in rank order.
func (r *Region) EntryNode() graph.NodeID { return r.Entries[0] }

// Members implements Structure.
func (r *Region) Members() []graph.NodeID {
	return append([]graph.NodeID(nil), r.members...)
}

// Slots implements Structure.
func (r *Region) Slots() []Slot {
	slots := make([]Slot, len(r.Nodes))
	for i, n := range r.Nodes {
		role := ""
		if containsNode(r.Entries, n) {
			role = "entry"
		}
		slots[i] = Slot{Node: n, Role: role}
	}
	return slots
}

var _ Structure = (*Region)(nil)

// fallback collapses one residue region when no pattern matches anywhere.
// It prefers the innermost multi-entry cycle, then the smallest acyclic
// single-exit region, then everything that is left.
func (an *analyzer) fallback() error {
	w := an.w
	tree, err := w.dominators()
	if err != nil {
		return err
	}

	var core []graph.NodeID
	for _, comp := range w.forwardCycles(tree, nil) {
		sortByRank(w, comp)
		if core == nil || w.less(core[0], comp[0]) {
			core = comp
		}
	}
	if core != nil {
		an.region(Irreducible, core)
		return nil
	}

	for _, c := range w.scanOrder() {
		if len(w.out[c]) < 2 {
			continue
		}
		if nodes := an.grow(c); nodes != nil {
			an.region(Unstructured, nodes)
			return nil
		}
	}

	an.region(Unstructured, w.NodeIDs())
	return nil
}

// forwardCycles returns the strongly connected components left once back
// edges are removed. A graph is reducible exactly when there are none. When
// within is non-nil only edges between its nodes count.
func (w *working) forwardCycles(tree *dom.Tree, within map[graph.NodeID]bool) [][]graph.NodeID {
	keep := func(from, to graph.NodeID) bool {
		if within != nil && (!within[from] || !within[to]) {
			return false
		}
		return !tree.Dominates(to, from)
	}
	return graph.StronglyConnected(w, keep)
}

// grow extends {c} one successor at a time, taking only nodes whose
// predecessors are all inside, until a single exit remains.
func (an *analyzer) grow(c graph.NodeID) []graph.NodeID {
	w := an.w
	nodes := []graph.NodeID{c}
	in := map[graph.NodeID]bool{c: true}
	for {
		var ext []graph.NodeID
		for _, n := range nodes {
			for _, e := range w.out[n] {
				if !in[e.to] {
					ext = appendUnique(ext, e.to)
				}
			}
		}
		if len(nodes) >= 2 && len(ext) <= 1 {
			return nodes
		}
		sortByRank(w, ext)

		next := graph.NoNode
		for _, s := range ext {
			if s != w.entry && w.predsWithin(s, in) {
				next = s
				break
			}
		}
		if next == graph.NoNode {
			return nil
		}
		nodes = append(nodes, next)
		in[next] = true
	}
}

func (an *analyzer) region(kind RegionKind, nodes []graph.NodeID) {
	w := an.w
	sortByRank(w, nodes)
	set := make(map[graph.NodeID]bool, len(nodes))
	for _, n := range nodes {
		set[n] = true
	}

	r := &Region{Kind: kind, Nodes: nodes, Edges: w.internalEdges(set, nodes)}
	for _, n := range nodes {
		if n == w.entry || !w.predsWithin(n, set) {
			r.Entries = append(r.Entries, n)
		}
	}
	for _, e := range r.Edges {
		if w.rank(e.To) <= w.rank(e.From) {
			r.BackEdges = append(r.BackEdges, e)
		}
	}

	r.id = w.collapse(nodes, r.Entries[0], w.rank(r.Entries[0]))
	r.members = w.a.leaves[r.id]
	an.structures = append(an.structures, r)
	an.residue = append(an.residue, r)
}
