package graph

import (
	"sort"

	gonum "gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
	"gonum.org/v1/gonum/graph/traverse"
)

// toGonum copies d into a gonum directed graph. Self edges are dropped since
// simple graphs reject them; keep, when non-nil, filters the other edges.
func toGonum(d Directed, keep func(from, to NodeID) bool) *simple.DirectedGraph {
	g := simple.NewDirectedGraph()
	ids := d.NodeIDs()
	for _, id := range ids {
		g.AddNode(simple.Node(id))
	}
	for _, id := range ids {
		for _, s := range d.SuccIDs(id) {
			if s == id {
				continue
			}
			if keep != nil && !keep(id, s) {
				continue
			}
			g.SetEdge(g.NewEdge(simple.Node(id), simple.Node(s)))
		}
	}
	return g
}

// Reachable returns the set of nodes reachable from from, including from.
func Reachable(d Directed, from NodeID) map[NodeID]bool {
	g := toGonum(d, nil)

	var df traverse.DepthFirst
	df.Walk(g, simple.Node(from), nil)

	seen := make(map[NodeID]bool)
	for _, id := range d.NodeIDs() {
		if df.Visited(simple.Node(id)) {
			seen[id] = true
		}
	}
	return seen
}

// StronglyConnected returns the strongly connected components of d with at
// least two nodes, ignoring edges rejected by keep. Each component is sorted
// by ID and components are ordered by their smallest ID.
func StronglyConnected(d Directed, keep func(from, to NodeID) bool) [][]NodeID {
	var comps [][]NodeID
	for _, scc := range topo.TarjanSCC(toGonum(d, keep)) {
		if len(scc) < 2 {
			continue
		}
		comps = append(comps, sortedIDs(scc))
	}
	sort.Slice(comps, func(i, j int) bool { return comps[i][0] < comps[j][0] })
	return comps
}

func sortedIDs(nodes []gonum.Node) []NodeID {
	ids := make([]NodeID, len(nodes))
	for i, n := range nodes {
		ids[i] = NodeID(n.ID())
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
