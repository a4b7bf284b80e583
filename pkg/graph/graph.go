// Package graph defines the directed-graph model shared by every analysis
// stage: nodes keyed by stable integer IDs, labelled control edges, and
// adjacency lists in insertion order.
package graph

import (
	"fmt"
	"strconv"
)

// NodeID is a stable key into a node arena. IDs are never reused.
type NodeID int

// NoNode marks an absent node reference.
const NoNode NodeID = -1

// Node is a basic-block identity.
type Node struct {
	ID      NodeID `json:"id"`
	Label   string `json:"label"`
	Ordinal int    `json:"ordinal"` // position in the function's block order, -1 if synthetic
}

func (n Node) String() string {
	return n.Label
}

// EdgeType classifies how a terminator produced an edge.
type EdgeType uint8

const (
	Unconditional EdgeType = iota // br, or condbr with equal targets
	BranchTrue                    // condbr taken
	BranchFalse                   // condbr not taken
	SwitchCase                    // switch arm, Value holds the case value
	SwitchDefault                 // switch default arm
	Indirect                      // indirectbr target
	Return                        // block to virtual exit via ret
	Unreachable                   // block to virtual exit via unreachable
)

func (t EdgeType) String() string {
	switch t {
	case Unconditional:
		return "br"
	case BranchTrue:
		return "true"
	case BranchFalse:
		return "false"
	case SwitchCase:
		return "case"
	case SwitchDefault:
		return "default"
	case Indirect:
		return "indirect"
	case Return:
		return "ret"
	case Unreachable:
		return "unreachable"
	default:
		return "EdgeType(" + strconv.Itoa(int(t)) + ")"
	}
}

// EdgeKind is an edge type plus its switch-case value, if any.
type EdgeKind struct {
	Type  EdgeType `json:"type"`
	Value string   `json:"value,omitempty"`
}

// Kind returns an EdgeKind without a value.
func Kind(t EdgeType) EdgeKind {
	return EdgeKind{Type: t}
}

// Case returns the kind of a switch arm for value.
func Case(value string) EdgeKind {
	return EdgeKind{Type: SwitchCase, Value: value}
}

// Multiway reports whether the kind belongs to a multi-way terminator, whose
// edges may share a destination.
func (k EdgeKind) Multiway() bool {
	return k.Type == SwitchCase || k.Type == SwitchDefault || k.Type == Indirect
}

func (k EdgeKind) String() string {
	switch k.Type {
	case SwitchCase, Indirect:
		if k.Value != "" {
			return k.Type.String() + " " + k.Value
		}
	}
	return k.Type.String()
}

// Edge is a labelled control transfer.
type Edge struct {
	From NodeID   `json:"from"`
	To   NodeID   `json:"to"`
	Kind EdgeKind `json:"kind"`
}

func (e Edge) String() string {
	return fmt.Sprintf("%d -[%s]-> %d", e.From, e.Kind, e.To)
}

// Directed is the read-only view the dominator and reachability code needs.
// Successor and predecessor lists are distinct and in a fixed order.
type Directed interface {
	Entry() NodeID
	NodeIDs() []NodeID
	SuccIDs(id NodeID) []NodeID
	PredIDs(id NodeID) []NodeID
}

// Graph is an append-only node arena with labelled adjacency lists.
type Graph struct {
	nodes []Node
	out   [][]Edge
	in    [][]Edge
	entry NodeID
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{entry: NoNode}
}

// AddNode appends a node and returns its ID.
func (g *Graph) AddNode(label string, ordinal int) NodeID {
	id := NodeID(len(g.nodes))
	g.nodes = append(g.nodes, Node{ID: id, Label: label, Ordinal: ordinal})
	g.out = append(g.out, nil)
	g.in = append(g.in, nil)
	if g.entry == NoNode {
		g.entry = id
	}
	return id
}

// AddEdge inserts e. A second edge between the same pair is rejected with
// ErrDuplicateEdge unless both edges are multi-way and differ in kind.
func (g *Graph) AddEdge(e Edge) error {
	if !g.Has(e.From) || !g.Has(e.To) {
		return fmt.Errorf("edge %s: %w", e, ErrUnknownNode)
	}
	for _, existing := range g.out[e.From] {
		if existing.To != e.To {
			continue
		}
		if existing.Kind == e.Kind || !existing.Kind.Multiway() || !e.Kind.Multiway() {
			return fmt.Errorf("edge %s: %w", e, ErrDuplicateEdge)
		}
	}
	g.out[e.From] = append(g.out[e.From], e)
	g.in[e.To] = append(g.in[e.To], e)
	return nil
}

// Has reports whether id names a node of g.
func (g *Graph) Has(id NodeID) bool {
	return id >= 0 && int(id) < len(g.nodes)
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Node returns the node for id. It panics on an unknown id.
func (g *Graph) Node(id NodeID) Node {
	return g.nodes[id]
}

// Nodes returns all nodes in ID order.
func (g *Graph) Nodes() []Node {
	return append([]Node(nil), g.nodes...)
}

// SetEntry overrides the entry node. The first added node is the default.
func (g *Graph) SetEntry(id NodeID) {
	g.entry = id
}

// Entry returns the entry node ID.
func (g *Graph) Entry() NodeID {
	return g.entry
}

// Out returns the outgoing edges of id in insertion order.
func (g *Graph) Out(id NodeID) []Edge {
	return g.out[id]
}

// In returns the incoming edges of id in insertion order.
func (g *Graph) In(id NodeID) []Edge {
	return g.in[id]
}

// Edges returns every edge grouped by source node.
func (g *Graph) Edges() []Edge {
	var edges []Edge
	for _, out := range g.out {
		edges = append(edges, out...)
	}
	return edges
}

// NodeIDs implements Directed.
func (g *Graph) NodeIDs() []NodeID {
	ids := make([]NodeID, len(g.nodes))
	for i := range g.nodes {
		ids[i] = NodeID(i)
	}
	return ids
}

// SuccIDs implements Directed.
func (g *Graph) SuccIDs(id NodeID) []NodeID {
	return distinct(g.out[id], func(e Edge) NodeID { return e.To })
}

// PredIDs implements Directed.
func (g *Graph) PredIDs(id NodeID) []NodeID {
	return distinct(g.in[id], func(e Edge) NodeID { return e.From })
}

func distinct(edges []Edge, end func(Edge) NodeID) []NodeID {
	ids := make([]NodeID, 0, len(edges))
	for _, e := range edges {
		id := end(e)
		if !containsID(ids, id) {
			ids = append(ids, id)
		}
	}
	return ids
}

func containsID(ids []NodeID, id NodeID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
