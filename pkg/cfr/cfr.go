// Package cfr turns the flat list of structures found by cfa into a single
// rooted tree of groups, one group per primitive, residue region or block.
package cfr

import (
	"fmt"
	"sort"
	"strings"

	"github.com/l3aro/go-decomp/pkg/cfa"
	"github.com/l3aro/go-decomp/pkg/graph"
)

// Kind is the kind of a group.
type Kind uint8

const (
	Block Kind = iota
	Sequence
	IfThen
	IfThenElse
	SelfLoop
	WhileLoop
	DoWhileLoop
	NaturalLoop
	Switch
	Irreducible
	Unstructured
)

var kindNames = map[Kind]string{
	Block:        "Block",
	Sequence:     "Sequence",
	IfThen:       "IfThen",
	IfThenElse:   "IfThenElse",
	SelfLoop:     "SelfLoop",
	WhileLoop:    "WhileLoop",
	DoWhileLoop:  "DoWhileLoop",
	NaturalLoop:  "NaturalLoop",
	Switch:       "Switch",
	Irreducible:  "Irreducible",
	Unstructured: "Unstructured",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", k)
}

func kindOf(s cfa.Structure) Kind {
	switch v := s.(type) {
	case *cfa.Region:
		if v.Kind == cfa.Irreducible {
			return Irreducible
		}
		return Unstructured
	case cfa.Primitive:
		switch v.Kind() {
		case cfa.KindSequence:
			return Sequence
		case cfa.KindIfThen:
			return IfThen
		case cfa.KindIfThenElse:
			return IfThenElse
		case cfa.KindSelfLoop:
			return SelfLoop
		case cfa.KindWhileLoop:
			return WhileLoop
		case cfa.KindDoWhileLoop:
			return DoWhileLoop
		case cfa.KindNaturalLoop:
			return NaturalLoop
		case cfa.KindSwitch:
			return Switch
		}
	}
	return Unstructured
}

// Group is a node of the region tree. Leaves are Block groups, one per CFG
// block; every other group owns the groups of its slots.
type Group struct {
	Kind     Kind
	Role     string // slot role inside the parent, e.g. "cond" or "case 1"
	Node     graph.NodeID
	Label    string
	Prim     cfa.Primitive // set for primitive groups
	Region   *cfa.Region   // set for residue groups
	Children []*Group

	leaves []graph.NodeID
}

// OverlapConflictError reports a structure whose members cut across a group
// built earlier.
type OverlapConflictError struct {
	Structure string
	Group     string
	Reason    string
}

func (e *OverlapConflictError) Error() string {
	return fmt.Sprintf("structure %s conflicts with %s: %s", e.Structure, e.Group, e.Reason)
}

// Is reports the error as an internal invariant violation.
func (e *OverlapConflictError) Is(target error) bool {
	return target == graph.ErrInternalInvariant
}

// IncompleteCoverageError reports blocks the tree misses or holds twice.
type IncompleteCoverageError struct {
	Missing   []string
	Duplicate []string
}

func (e *IncompleteCoverageError) Error() string {
	return fmt.Sprintf("group tree coverage: missing %v, duplicate %v", e.Missing, e.Duplicate)
}

// Is reports the error as an internal invariant violation.
func (e *IncompleteCoverageError) Is(target error) bool {
	return target == graph.ErrInternalInvariant
}

// New builds the group tree of an analysis result.
func New(res *cfa.Result) (*Group, error) {
	return Build(res.Nodes, res.Structures(), res.Label)
}

// Build assembles the tree from CFG nodes and structures in ascending ID
// order. Each structure adopts the groups already built for its slots.
// Several top-level groups end up under a synthetic Sequence ordered by
// block position.
func Build(nodes []graph.Node, structures []cfa.Structure, label func(graph.NodeID) string) (*Group, error) {
	byNode := make(map[graph.NodeID]*Group, len(nodes)+len(structures))
	owner := make(map[graph.NodeID]*Group, len(nodes))
	for _, n := range nodes {
		byNode[n.ID] = &Group{Kind: Block, Node: n.ID, Label: n.Label, leaves: []graph.NodeID{n.ID}}
	}

	top := func(leaf graph.NodeID) *Group {
		if g, ok := owner[leaf]; ok {
			return g
		}
		return byNode[leaf]
	}

	for _, s := range structures {
		name := label(s.ID())
		members := s.Members()
		inside := make(map[graph.NodeID]bool, len(members))
		for _, m := range members {
			inside[m] = true
		}

		tops := make(map[*Group]bool)
		for _, m := range members {
			g := top(m)
			if g == nil {
				return nil, &OverlapConflictError{Structure: name, Group: fmt.Sprint(m), Reason: "member is not a block"}
			}
			if tops[g] {
				continue
			}
			for _, leaf := range g.leaves {
				if !inside[leaf] {
					return nil, &OverlapConflictError{Structure: name, Group: g.Label, Reason: "group is only partly inside"}
				}
			}
			tops[g] = true
		}

		g := &Group{Kind: kindOf(s), Node: s.ID(), Label: name}
		switch v := s.(type) {
		case *cfa.Region:
			g.Region = v
		case cfa.Primitive:
			g.Prim = v
		}

		for _, slot := range s.Slots() {
			child, ok := byNode[slot.Node]
			if !ok || !tops[child] {
				return nil, &OverlapConflictError{Structure: name, Group: label(slot.Node), Reason: "slot is not a top-level group of the members"}
			}
			delete(tops, child)
			child.Role = slot.Role
			g.Children = append(g.Children, child)
			g.leaves = append(g.leaves, child.leaves...)
		}
		if len(tops) > 0 {
			return nil, &OverlapConflictError{Structure: name, Group: firstLabel(tops), Reason: "member group is not a slot"}
		}

		sort.Slice(g.leaves, func(i, j int) bool { return g.leaves[i] < g.leaves[j] })
		for _, leaf := range g.leaves {
			owner[leaf] = g
		}
		byNode[s.ID()] = g
	}

	var roots []*Group
	seen := make(map[*Group]bool)
	for _, n := range nodes {
		if g := top(n.ID); !seen[g] {
			seen[g] = true
			roots = append(roots, g)
		}
	}

	var root *Group
	switch len(roots) {
	case 0:
		return nil, &IncompleteCoverageError{}
	case 1:
		root = roots[0]
	default:
		root = &Group{Kind: Sequence, Node: graph.NoNode, Label: "(root)", Children: roots}
		for _, r := range roots {
			root.leaves = append(root.leaves, r.leaves...)
		}
	}
	if err := checkCoverage(root, nodes); err != nil {
		return nil, err
	}
	return root, nil
}

func firstLabel(groups map[*Group]bool) string {
	var labels []string
	for g := range groups {
		labels = append(labels, g.Label)
	}
	sort.Strings(labels)
	return labels[0]
}

func checkCoverage(root *Group, nodes []graph.Node) error {
	count := make(map[graph.NodeID]int, len(nodes))
	root.Walk(func(g *Group, _ int) bool {
		if g.Kind == Block {
			count[g.Node]++
		}
		return true
	})

	var missing, dup []string
	for _, n := range nodes {
		switch c := count[n.ID]; {
		case c == 0:
			missing = append(missing, n.Label)
		case c > 1:
			dup = append(dup, n.Label)
		}
		delete(count, n.ID)
	}
	for id := range count {
		dup = append(dup, fmt.Sprint(id))
	}
	if len(missing) > 0 || len(dup) > 0 {
		return &IncompleteCoverageError{Missing: missing, Duplicate: dup}
	}
	return nil
}

// Walk visits g and its descendants depth-first in child order. Returning
// false from fn skips the children of that group.
func (g *Group) Walk(fn func(g *Group, depth int) bool) {
	g.walk(fn, 0)
}

func (g *Group) walk(fn func(*Group, int) bool, depth int) {
	if !fn(g, depth) {
		return
	}
	for _, c := range g.Children {
		c.walk(fn, depth+1)
	}
}

// Leaves returns the block nodes under g in block order.
func (g *Group) Leaves() []graph.NodeID {
	return append([]graph.NodeID(nil), g.leaves...)
}

// HasIrreducible reports whether any group under g is an irreducible region.
func (g *Group) HasIrreducible() bool {
	found := false
	g.Walk(func(c *Group, _ int) bool {
		if c.Kind == Irreducible {
			found = true
		}
		return !found
	})
	return found
}

// Count returns the number of groups of each kind under g, g included.
func (g *Group) Count() map[Kind]int {
	counts := make(map[Kind]int)
	g.Walk(func(c *Group, _ int) bool {
		counts[c.Kind]++
		return true
	})
	return counts
}

// String renders the tree with two-space indentation, one group per line.
func (g *Group) String() string {
	var sb strings.Builder
	g.Walk(func(c *Group, depth int) bool {
		sb.WriteString(strings.Repeat("  ", depth))
		if c.Role != "" {
			sb.WriteString(c.Role + ": ")
		}
		if c.Kind == Block {
			sb.WriteString(c.Label)
		} else {
			sb.WriteString(c.Kind.String() + " " + c.Label)
		}
		sb.WriteString("\n")
		return true
	})
	return sb.String()
}
