// Package cfa finds structural primitives in a control-flow graph by
// repeatedly matching and collapsing known shapes until a fixed point.
package cfa

import (
	"strings"

	"github.com/l3aro/go-decomp/pkg/graph"
)

// Kind identifies a primitive shape.
type Kind uint8

const (
	KindSequence Kind = iota
	KindIfThen
	KindIfThenElse
	KindSelfLoop
	KindWhileLoop
	KindDoWhileLoop
	KindNaturalLoop
	KindSwitch
)

func (k Kind) String() string {
	switch k {
	case KindSequence:
		return "Sequence"
	case KindIfThen:
		return "IfThen"
	case KindIfThenElse:
		return "IfThenElse"
	case KindSelfLoop:
		return "SelfLoop"
	case KindWhileLoop:
		return "WhileLoop"
	case KindDoWhileLoop:
		return "DoWhileLoop"
	case KindNaturalLoop:
		return "NaturalLoop"
	case KindSwitch:
		return "Switch"
	default:
		return "Unknown"
	}
}

// Slot is one direct child of a structure, in the structure's child order.
type Slot struct {
	Node graph.NodeID
	Role string
}

// Structure is anything CFA collapsed into a synthetic node: a Primitive or
// a residue Region.
type Structure interface {
	// ID is the synthetic node that replaced the structure's slots.
	ID() graph.NodeID
	// EntryNode is the slot control enters through.
	EntryNode() graph.NodeID
	// Slots lists the collapsed working nodes in child order.
	Slots() []Slot
	// Members lists the CFG nodes covered, in block order.
	Members() []graph.NodeID
}

// Primitive is a matched structural shape. The set of implementations is
// closed: Sequence, IfThen, IfThenElse, SelfLoop, WhileLoop, DoWhileLoop,
// NaturalLoop and Switch.
type Primitive interface {
	Structure
	Kind() Kind
	// ExitNode is the single successor after collapse, or graph.NoNode.
	ExitNode() graph.NodeID
	primitive()
}

type base struct {
	id      graph.NodeID
	entry   graph.NodeID
	exit    graph.NodeID
	members []graph.NodeID
}

func (b *base) ID() graph.NodeID        { return b.id }
func (b *base) EntryNode() graph.NodeID { return b.entry }
func (b *base) ExitNode() graph.NodeID  { return b.exit }

func (b *base) Members() []graph.NodeID {
	return append([]graph.NodeID(nil), b.members...)
}

func (*base) primitive() {}

// Sequence is a straight-line chain.
type Sequence struct {
	base
	Nodes []graph.NodeID
}

func (*Sequence) Kind() Kind { return KindSequence }

func (p *Sequence) Slots() []Slot {
	slots := make([]Slot, len(p.Nodes))
	for i, n := range p.Nodes {
		slots[i] = Slot{Node: n}
	}
	return slots
}

// IfThen is a one-armed conditional. Negated means the arm hangs off the
// false edge. Returns marks an arm that leaves the function instead of
// reaching Merge.
type IfThen struct {
	base
	Cond, Then, Merge graph.NodeID
	MergeAbsorbed     bool
	Negated           bool
	Returns           bool
}

func (*IfThen) Kind() Kind { return KindIfThen }

func (p *IfThen) Slots() []Slot {
	slots := []Slot{{p.Cond, "cond"}, {p.Then, "then"}}
	if p.MergeAbsorbed {
		slots = append(slots, Slot{p.Merge, "merge"})
	}
	return slots
}

// IfThenElse is a two-armed conditional. Merge is graph.NoNode when both
// arms leave the function.
type IfThenElse struct {
	base
	Cond, Then, Else, Merge graph.NodeID
	MergeAbsorbed           bool
}

func (*IfThenElse) Kind() Kind { return KindIfThenElse }

func (p *IfThenElse) Slots() []Slot {
	slots := []Slot{{p.Cond, "cond"}, {p.Then, "then"}, {p.Else, "else"}}
	if p.MergeAbsorbed {
		slots = append(slots, Slot{p.Merge, "merge"})
	}
	return slots
}

// SelfLoop is a single node branching to itself.
type SelfLoop struct {
	base
	Header  graph.NodeID
	Negated bool
}

func (*SelfLoop) Kind() Kind { return KindSelfLoop }

func (p *SelfLoop) Slots() []Slot {
	return []Slot{{p.Header, "header"}}
}

// WhileLoop tests at the header and runs a single-node body.
type WhileLoop struct {
	base
	Header, Body, Exit graph.NodeID
	Negated            bool
}

func (*WhileLoop) Kind() Kind { return KindWhileLoop }

func (p *WhileLoop) Slots() []Slot {
	return []Slot{{p.Header, "header"}, {p.Body, "body"}}
}

// DoWhileLoop runs Header first each iteration; Latch ends the iteration
// and decides whether to repeat.
type DoWhileLoop struct {
	base
	Header, Latch, Exit graph.NodeID
	Negated             bool
}

func (*DoWhileLoop) Kind() Kind { return KindDoWhileLoop }

func (p *DoWhileLoop) Slots() []Slot {
	return []Slot{{p.Header, "header"}, {p.Latch, "latch"}}
}

// NaturalLoop is any other single-entry loop.
type NaturalLoop struct {
	base
	Header graph.NodeID
	Body   []graph.NodeID
	Exits  []graph.NodeID
}

func (*NaturalLoop) Kind() Kind { return KindNaturalLoop }

func (p *NaturalLoop) Slots() []Slot {
	slots := []Slot{{p.Header, "header"}}
	for _, b := range p.Body {
		slots = append(slots, Slot{b, "body"})
	}
	return slots
}

// SwitchArm is one case body of a Switch.
type SwitchArm struct {
	Body        graph.NodeID
	Values      []string
	Default     bool
	Fallthrough bool // Body continues into another arm
}

// Role returns the slot role of the arm, e.g. "case 1, 2" or "default".
func (a SwitchArm) Role() string {
	role := ""
	if len(a.Values) > 0 {
		role = "case " + strings.Join(a.Values, ", ")
	}
	if a.Default {
		if role != "" {
			role += ", "
		}
		role += "default"
	}
	return role
}

// Switch is a multi-way dispatch. Default is the default arm's body, or
// graph.NoNode when the default goes straight to Merge. MergeCases holds the
// case values that jump straight to Merge.
type Switch struct {
	base
	Dispatch      graph.NodeID
	Arms          []SwitchArm
	Default       graph.NodeID
	Merge         graph.NodeID
	MergeAbsorbed bool
	MergeCases    []string
}

func (*Switch) Kind() Kind { return KindSwitch }

func (p *Switch) Slots() []Slot {
	slots := []Slot{{p.Dispatch, "dispatch"}}
	for _, a := range p.Arms {
		slots = append(slots, Slot{a.Body, a.Role()})
	}
	if p.MergeAbsorbed {
		slots = append(slots, Slot{p.Merge, "merge"})
	}
	return slots
}

var (
	_ Primitive = (*Sequence)(nil)
	_ Primitive = (*IfThen)(nil)
	_ Primitive = (*IfThenElse)(nil)
	_ Primitive = (*SelfLoop)(nil)
	_ Primitive = (*WhileLoop)(nil)
	_ Primitive = (*DoWhileLoop)(nil)
	_ Primitive = (*NaturalLoop)(nil)
	_ Primitive = (*Switch)(nil)
)
