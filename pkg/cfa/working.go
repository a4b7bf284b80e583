package cfa

import (
	"sort"

	"github.com/l3aro/go-decomp/pkg/cfg"
	"github.com/l3aro/go-decomp/pkg/dom"
	"github.com/l3aro/go-decomp/pkg/graph"
)

// arena holds every node CFA ever creates. CFG nodes keep their IDs; each
// collapse appends one synthetic node, so ID order is emission order.
type arena struct {
	labels []string
	rank   []int            // RPO index of the CFG node control enters through
	entry  []graph.NodeID   // slot control enters through, self for CFG nodes
	leaves [][]graph.NodeID // covered CFG nodes in block order
	base   int              // first synthetic ID
}

func newArena(c *cfg.ControlFlowGraph, tree *dom.Tree) *arena {
	n := c.Graph().Len()
	a := &arena{
		labels: make([]string, n),
		rank:   make([]int, n),
		entry:  make([]graph.NodeID, n),
		leaves: make([][]graph.NodeID, n),
		base:   n,
	}
	for _, node := range c.Graph().Nodes() {
		a.labels[node.ID] = node.Label
		a.entry[node.ID] = node.ID
		a.leaves[node.ID] = []graph.NodeID{node.ID}
		if idx, ok := tree.Index(node.ID); ok {
			a.rank[node.ID] = idx
		} else {
			a.rank[node.ID] = -1
		}
	}
	return a
}

// add registers a synthetic node covering slots and entered through entry.
func (a *arena) add(slots []graph.NodeID, entry graph.NodeID, rank int) graph.NodeID {
	id := graph.NodeID(len(a.labels))
	var leaves []graph.NodeID
	for _, s := range slots {
		leaves = append(leaves, a.leaves[s]...)
	}
	sort.Slice(leaves, func(i, j int) bool { return leaves[i] < leaves[j] })

	a.leaves = append(a.leaves, leaves)
	a.entry = append(a.entry, entry)
	a.rank = append(a.rank, rank)
	a.labels = append(a.labels, "")
	a.labels[id] = "(" + a.label(a.leader(id)) + "..." + a.label(leaves[len(leaves)-1]) + ")"
	return id
}

func (a *arena) synthetic(id graph.NodeID) bool {
	return int(id) >= a.base
}

// leader follows entry slots down to the CFG node control enters through.
func (a *arena) leader(id graph.NodeID) graph.NodeID {
	for a.synthetic(id) {
		id = a.entry[id]
	}
	return id
}

func (a *arena) label(id graph.NodeID) string {
	if id < 0 || int(id) >= len(a.labels) {
		return "?"
	}
	return a.labels[id]
}

// wedge is a working-graph edge: all control transfers between one pair of
// working nodes, with the CFG edge kinds they carry.
type wedge struct {
	to    graph.NodeID
	kinds []graph.EdgeKind
}

func (e wedge) has(t graph.EdgeType) bool {
	for _, k := range e.kinds {
		if k.Type == t {
			return true
		}
	}
	return false
}

func (e wedge) multiway() bool {
	for _, k := range e.kinds {
		if k.Multiway() {
			return true
		}
	}
	return false
}

// working is the mutable overlay CFA reduces. The virtual exit is not part
// of it, so returning blocks have no successors here.
type working struct {
	a     *arena
	entry graph.NodeID
	alive map[graph.NodeID]bool
	out   map[graph.NodeID][]wedge
	in    map[graph.NodeID][]graph.NodeID
	tree  *dom.Tree // nil when stale
}

func newWorking(c *cfg.ControlFlowGraph, a *arena) *working {
	w := &working{
		a:     a,
		entry: c.Entry(),
		alive: make(map[graph.NodeID]bool),
		out:   make(map[graph.NodeID][]wedge),
		in:    make(map[graph.NodeID][]graph.NodeID),
	}
	for _, n := range c.Nodes() {
		w.alive[n.ID] = true
	}
	for _, e := range c.Edges() {
		if e.To == c.Exit() {
			continue
		}
		w.out[e.From] = mergeEdge(w.out[e.From], wedge{to: e.To, kinds: []graph.EdgeKind{e.Kind}})
		w.in[e.To] = appendUnique(w.in[e.To], e.From)
	}
	return w
}

// mergeEdge appends e to list, folding it into an existing edge with the
// same target.
func mergeEdge(list []wedge, e wedge) []wedge {
	for i := range list {
		if list[i].to == e.to {
			kinds := append([]graph.EdgeKind(nil), list[i].kinds...)
			list[i].kinds = append(kinds, e.kinds...)
			return list
		}
	}
	return append(list, wedge{to: e.to, kinds: append([]graph.EdgeKind(nil), e.kinds...)})
}

// Entry implements graph.Directed.
func (w *working) Entry() graph.NodeID {
	return w.entry
}

// NodeIDs implements graph.Directed, ordered by rank.
func (w *working) NodeIDs() []graph.NodeID {
	ids := make([]graph.NodeID, 0, len(w.alive))
	for id := range w.alive {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return w.less(ids[i], ids[j]) })
	return ids
}

// SuccIDs implements graph.Directed.
func (w *working) SuccIDs(id graph.NodeID) []graph.NodeID {
	edges := w.out[id]
	ids := make([]graph.NodeID, len(edges))
	for i, e := range edges {
		ids[i] = e.to
	}
	return ids
}

// PredIDs implements graph.Directed.
func (w *working) PredIDs(id graph.NodeID) []graph.NodeID {
	return w.in[id]
}

// less orders nodes by rank, then by ID.
func (w *working) less(x, y graph.NodeID) bool {
	rx, ry := w.a.rank[x], w.a.rank[y]
	if rx != ry {
		return rx < ry
	}
	return x < y
}

func (w *working) rank(id graph.NodeID) int {
	return w.a.rank[id]
}

// scanOrder is the order patterns are tried in: descending rank, so inner
// structures are seen before the nodes that enclose them.
func (w *working) scanOrder() []graph.NodeID {
	ids := w.NodeIDs()
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
	return ids
}

func (w *working) edge(from, to graph.NodeID) (wedge, bool) {
	for _, e := range w.out[from] {
		if e.to == to {
			return e, true
		}
	}
	return wedge{}, false
}

func (w *working) hasSelf(id graph.NodeID) bool {
	_, ok := w.edge(id, id)
	return ok
}

// single returns the only successor of id, or graph.NoNode.
func (w *working) single(id graph.NodeID) graph.NodeID {
	if len(w.out[id]) == 1 {
		return w.out[id][0].to
	}
	return graph.NoNode
}

// predsWithin reports whether every predecessor of id is in set.
func (w *working) predsWithin(id graph.NodeID, set map[graph.NodeID]bool) bool {
	for _, p := range w.in[id] {
		if !set[p] {
			return false
		}
	}
	return true
}

// onlyPred reports whether p is the one and only predecessor of id.
func (w *working) onlyPred(id, p graph.NodeID) bool {
	return len(w.in[id]) == 1 && w.in[id][0] == p
}

// dominators returns the dominator tree of the current working graph.
func (w *working) dominators() (*dom.Tree, error) {
	if w.tree != nil {
		return w.tree, nil
	}
	t, err := dom.Compute(w)
	if err != nil {
		return nil, err
	}
	w.tree = t
	return t, nil
}

// collapse replaces slots by a new node entered through entry. Edges between
// slots disappear; edges leaving or entering the set are moved to the new
// node and merged by target.
func (w *working) collapse(slots []graph.NodeID, entry graph.NodeID, rank int) graph.NodeID {
	set := make(map[graph.NodeID]bool, len(slots))
	for _, s := range slots {
		set[s] = true
	}
	id := w.a.add(slots, entry, rank)

	var out []wedge
	var in []graph.NodeID
	for _, s := range slots {
		for _, e := range w.out[s] {
			if !set[e.to] {
				out = mergeEdge(out, e)
			}
		}
		for _, p := range w.in[s] {
			if !set[p] {
				in = appendUnique(in, p)
			}
		}
	}

	for _, p := range in {
		var rewired []wedge
		for _, e := range w.out[p] {
			if set[e.to] {
				e.to = id
			}
			rewired = mergeEdge(rewired, e)
		}
		w.out[p] = rewired
	}
	for _, e := range out {
		var preds []graph.NodeID
		for _, p := range w.in[e.to] {
			if set[p] {
				p = id
			}
			preds = appendUnique(preds, p)
		}
		w.in[e.to] = preds
	}

	for _, s := range slots {
		delete(w.alive, s)
		delete(w.out, s)
		delete(w.in, s)
	}
	w.alive[id] = true
	w.out[id] = out
	w.in[id] = in
	if set[w.entry] {
		w.entry = id
	}
	w.tree = nil
	return id
}

// internalEdges lists the CFG-kind edges between members, for regions.
func (w *working) internalEdges(set map[graph.NodeID]bool, order []graph.NodeID) []graph.Edge {
	var edges []graph.Edge
	for _, m := range order {
		for _, e := range w.out[m] {
			if !set[e.to] {
				continue
			}
			for _, k := range e.kinds {
				edges = append(edges, graph.Edge{From: m, To: e.to, Kind: k})
			}
		}
	}
	return edges
}

func appendUnique(ids []graph.NodeID, id graph.NodeID) []graph.NodeID {
	for _, x := range ids {
		if x == id {
			return ids
		}
	}
	return append(ids, id)
}

func sortByRank(w *working, ids []graph.NodeID) {
	sort.Slice(ids, func(i, j int) bool { return w.less(ids[i], ids[j]) })
}
