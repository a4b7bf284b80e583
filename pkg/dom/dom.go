// Package dom computes dominator trees and dominance frontiers with the
// iterative algorithm of Cooper, Harvey and Kennedy ("A Simple, Fast
// Dominance Algorithm"), evaluated over reverse postorder.
package dom

import (
	"fmt"
	"sort"
	"strings"

	"github.com/l3aro/go-decomp/pkg/graph"
)

// UnreachableEntryError is returned when the entry of a multi-node graph has
// no successors, so nothing else can be dominated by it.
type UnreachableEntryError struct {
	Entry graph.NodeID
	Nodes int
}

func (e *UnreachableEntryError) Error() string {
	return fmt.Sprintf("entry %d has no successors in a graph of %d nodes", e.Entry, e.Nodes)
}

// Is reports the error as an internal invariant violation.
func (e *UnreachableEntryError) Is(target error) bool {
	return target == graph.ErrInternalInvariant
}

// Tree is an immutable dominator tree over the nodes reachable from entry.
type Tree struct {
	entry    graph.NodeID
	rpo      []graph.NodeID
	index    map[graph.NodeID]int
	idom     map[graph.NodeID]graph.NodeID
	children map[graph.NodeID][]graph.NodeID
	pre      map[graph.NodeID]int
	post     map[graph.NodeID]int
	frontier map[graph.NodeID][]graph.NodeID

	// Iterations is the number of passes the fixed point needed.
	Iterations int
}

// Compute builds the dominator tree of g.
func Compute(g graph.Directed) (*Tree, error) {
	entry := g.Entry()
	nodes := g.NodeIDs()
	if entry == graph.NoNode || (len(nodes) > 1 && len(g.SuccIDs(entry)) == 0) {
		return nil, &UnreachableEntryError{Entry: entry, Nodes: len(nodes)}
	}

	t := &Tree{
		entry:    entry,
		rpo:      ReversePostorder(g),
		index:    make(map[graph.NodeID]int),
		idom:     make(map[graph.NodeID]graph.NodeID),
		children: make(map[graph.NodeID][]graph.NodeID),
	}
	for i, id := range t.rpo {
		t.index[id] = i
	}

	t.idom[entry] = entry
	for changed := true; changed; {
		changed = false
		t.Iterations++
		for _, b := range t.rpo[1:] {
			newIdom := graph.NoNode
			for _, p := range g.PredIDs(b) {
				if _, ok := t.idom[p]; !ok {
					continue
				}
				if newIdom == graph.NoNode {
					newIdom = p
				} else {
					newIdom = t.intersect(p, newIdom)
				}
			}
			if newIdom == graph.NoNode {
				continue
			}
			if old, ok := t.idom[b]; !ok || old != newIdom {
				t.idom[b] = newIdom
				changed = true
			}
		}
	}

	for _, b := range t.rpo[1:] {
		p := t.idom[b]
		t.children[p] = append(t.children[p], b)
	}
	t.number()
	t.frontier = t.frontiers(g)
	return t, nil
}

func (t *Tree) intersect(a, b graph.NodeID) graph.NodeID {
	for a != b {
		for t.index[a] > t.index[b] {
			a = t.idom[a]
		}
		for t.index[b] > t.index[a] {
			b = t.idom[b]
		}
	}
	return a
}

// number assigns pre/post visit numbers on the dominator tree so Dominates
// is an interval check.
func (t *Tree) number() {
	t.pre = make(map[graph.NodeID]int, len(t.rpo))
	t.post = make(map[graph.NodeID]int, len(t.rpo))

	type frame struct {
		id   graph.NodeID
		next int
	}
	clock := 0
	stack := []frame{{id: t.entry}}
	t.pre[t.entry] = clock
	clock++
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		kids := t.children[top.id]
		if top.next < len(kids) {
			c := kids[top.next]
			top.next++
			t.pre[c] = clock
			clock++
			stack = append(stack, frame{id: c})
			continue
		}
		t.post[top.id] = clock
		clock++
		stack = stack[:len(stack)-1]
	}
}

// frontiers walks up from each predecessor of a join node until reaching the
// join's immediate dominator. The entry is also entered from outside, so any
// predecessor makes it a join, and its walk runs up to and including the
// entry itself.
func (t *Tree) frontiers(g graph.Directed) map[graph.NodeID][]graph.NodeID {
	df := make(map[graph.NodeID][]graph.NodeID)
	for _, b := range t.rpo {
		preds := g.PredIDs(b)
		stop := t.idom[b]
		if b == t.entry {
			stop = graph.NoNode
		} else if len(preds) < 2 {
			continue
		}
		for _, p := range preds {
			if !t.Contains(p) {
				continue
			}
			for runner := p; runner != stop; runner = t.idom[runner] {
				df[runner] = appendUnique(df[runner], b)
				if runner == t.entry {
					break
				}
			}
		}
	}
	for id := range df {
		ids := df[id]
		sort.Slice(ids, func(i, j int) bool { return t.index[ids[i]] < t.index[ids[j]] })
	}
	return df
}

// Entry returns the root of the tree.
func (t *Tree) Entry() graph.NodeID {
	return t.entry
}

// Contains reports whether id is reachable from the entry.
func (t *Tree) Contains(id graph.NodeID) bool {
	_, ok := t.index[id]
	return ok
}

// Idom returns the immediate dominator of id. The entry is its own idom.
func (t *Tree) Idom(id graph.NodeID) (graph.NodeID, bool) {
	d, ok := t.idom[id]
	return d, ok
}

// Children returns the nodes immediately dominated by id, in RPO order.
func (t *Tree) Children(id graph.NodeID) []graph.NodeID {
	return t.children[id]
}

// Dominates reports whether a dominates b. Every node dominates itself.
func (t *Tree) Dominates(a, b graph.NodeID) bool {
	pa, okA := t.pre[a]
	pb, okB := t.pre[b]
	if !okA || !okB {
		return false
	}
	return pa <= pb && t.post[b] <= t.post[a]
}

// StrictlyDominates reports whether a dominates b and a != b.
func (t *Tree) StrictlyDominates(a, b graph.NodeID) bool {
	return a != b && t.Dominates(a, b)
}

// IsBackEdge reports whether e's destination dominates its source.
func (t *Tree) IsBackEdge(e graph.Edge) bool {
	return t.Dominates(e.To, e.From)
}

// Frontier returns the dominance frontier of id in RPO order.
func (t *Tree) Frontier(id graph.NodeID) []graph.NodeID {
	return t.frontier[id]
}

// ReversePostorder returns the reachable nodes in reverse postorder.
func (t *Tree) ReversePostorder() []graph.NodeID {
	return append([]graph.NodeID(nil), t.rpo...)
}

// Index returns the reverse-postorder position of id.
func (t *Tree) Index(id graph.NodeID) (int, bool) {
	i, ok := t.index[id]
	return i, ok
}

// Format renders the tree one node per line, indented by depth.
func (t *Tree) Format(label func(graph.NodeID) string) string {
	var sb strings.Builder
	var walk func(id graph.NodeID, depth int)
	walk = func(id graph.NodeID, depth int) {
		sb.WriteString(strings.Repeat("  ", depth))
		sb.WriteString(label(id))
		if df := t.frontier[id]; len(df) > 0 {
			names := make([]string, len(df))
			for i, d := range df {
				names[i] = label(d)
			}
			sb.WriteString("  df={" + strings.Join(names, ", ") + "}")
		}
		sb.WriteString("\n")
		for _, c := range t.children[id] {
			walk(c, depth+1)
		}
	}
	walk(t.entry, 0)
	return sb.String()
}

// ReversePostorder returns the nodes of g reachable from its entry in
// reverse postorder of a depth-first walk that visits successors in order.
func ReversePostorder(g graph.Directed) []graph.NodeID {
	entry := g.Entry()
	if entry == graph.NoNode {
		return nil
	}

	type frame struct {
		id    graph.NodeID
		succs []graph.NodeID
		next  int
	}
	visited := map[graph.NodeID]bool{entry: true}
	stack := []frame{{id: entry, succs: g.SuccIDs(entry)}}
	var post []graph.NodeID
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next < len(top.succs) {
			s := top.succs[top.next]
			top.next++
			if !visited[s] {
				visited[s] = true
				stack = append(stack, frame{id: s, succs: g.SuccIDs(s)})
			}
			continue
		}
		post = append(post, top.id)
		stack = stack[:len(stack)-1]
	}

	for i, j := 0, len(post)-1; i < j; i, j = i+1, j-1 {
		post[i], post[j] = post[j], post[i]
	}
	return post
}

func appendUnique(ids []graph.NodeID, id graph.NodeID) []graph.NodeID {
	for _, x := range ids {
		if x == id {
			return ids
		}
	}
	return append(ids, id)
}
