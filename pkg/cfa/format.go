package cfa

import (
	"fmt"
	"strings"

	"github.com/l3aro/go-decomp/pkg/graph"
)

// Describe renders one structure on a single line, e.g.
// "if (A) { B } else { C } merge D".
func (r *Result) Describe(s Structure) string {
	l := r.Label
	list := func(ids []graph.NodeID) string {
		labels := make([]string, len(ids))
		for i, id := range ids {
			labels[i] = l(id)
		}
		return strings.Join(labels, ", ")
	}
	cond := func(c graph.NodeID, negated bool) string {
		if negated {
			return "!" + l(c)
		}
		return l(c)
	}
	follow := func(m graph.NodeID, absorbed bool) string {
		switch {
		case m == graph.NoNode:
			return ""
		case absorbed:
			return " merge " + l(m)
		default:
			return " exit " + l(m)
		}
	}

	switch p := s.(type) {
	case *Sequence:
		labels := make([]string, len(p.Nodes))
		for i, n := range p.Nodes {
			labels[i] = l(n)
		}
		return "sequence " + strings.Join(labels, " -> ")
	case *IfThen:
		arm := l(p.Then)
		if p.Returns {
			arm += "; return"
		}
		return fmt.Sprintf("if (%s) { %s }%s", cond(p.Cond, p.Negated), arm, follow(p.Merge, p.MergeAbsorbed))
	case *IfThenElse:
		return fmt.Sprintf("if (%s) { %s } else { %s }%s", l(p.Cond), l(p.Then), l(p.Else), follow(p.Merge, p.MergeAbsorbed))
	case *SelfLoop:
		return fmt.Sprintf("do { %s } while (%s)", l(p.Header), cond(p.Header, p.Negated))
	case *WhileLoop:
		return fmt.Sprintf("while (%s) { %s } exit %s", cond(p.Header, p.Negated), l(p.Body), l(p.Exit))
	case *DoWhileLoop:
		return fmt.Sprintf("do { %s } while (%s) exit %s", l(p.Header), cond(p.Latch, p.Negated), l(p.Exit))
	case *NaturalLoop:
		out := fmt.Sprintf("loop %s { %s }", l(p.Header), list(p.Body))
		if len(p.Exits) > 0 {
			out += " exits [" + list(p.Exits) + "]"
		}
		return out
	case *Switch:
		var arms []string
		for _, a := range p.Arms {
			arm := a.Role() + ": " + l(a.Body)
			if a.Fallthrough {
				arm += "; fallthrough"
			}
			arms = append(arms, arm)
		}
		if len(p.MergeCases) > 0 {
			arms = append(arms, "case "+strings.Join(p.MergeCases, ", ")+": break")
		}
		return fmt.Sprintf("switch (%s) { %s }%s", l(p.Dispatch), strings.Join(arms, "; "), follow(p.Merge, p.MergeAbsorbed))
	case *Region:
		return fmt.Sprintf("%s { %s } entries [%s]", strings.ToLower(p.Kind.String()), list(p.Nodes), list(p.Entries))
	}
	return fmt.Sprintf("%T", s)
}

// String lists every structure in emission order.
func (r *Result) String() string {
	var sb strings.Builder
	state := "reducible"
	if !r.Reducible() {
		state = fmt.Sprintf("%d residue region(s)", len(r.Residue))
	}
	fmt.Fprintf(&sb, "%s: %d primitive(s), %s\n", r.Function, len(r.Primitives), state)
	for _, s := range r.structures {
		kind := "Region"
		if p, ok := s.(Primitive); ok {
			kind = p.Kind().String()
		}
		fmt.Fprintf(&sb, "  %-12s %-12s %s\n", kind, r.Label(s.ID()), r.Describe(s))
	}
	return sb.String()
}
