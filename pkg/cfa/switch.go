package cfa

import (
	"github.com/l3aro/go-decomp/pkg/graph"
)

// switchAt matches a multi-way dispatch at d. Each target is either a case
// body or the merge. Bodies may fall through into each other but not loop.
func (an *analyzer) switchAt(d graph.NodeID) (bool, error) {
	w := an.w
	out := w.out[d]
	if len(out) < 2 {
		return false, nil
	}
	multi := false
	for _, e := range out {
		if e.to == d {
			return false, nil
		}
		multi = multi || e.multiway()
	}
	if !multi {
		return false, nil
	}

	targets := w.SuccIDs(d)
	candidates := map[graph.NodeID]bool{}
	for _, t := range targets {
		candidates[t] = true
		if s := w.single(t); s != graph.NoNode && s != d {
			candidates[s] = true
		}
	}

	// A merge some body flows into beats one only the dispatch reaches.
	var strong, weak []graph.NodeID
	for c := range candidates {
		ok, direct, err := an.switchValid(d, targets, c)
		if err != nil {
			return false, err
		}
		switch {
		case !ok:
		case direct:
			weak = append(weak, c)
		default:
			strong = append(strong, c)
		}
	}
	sortByRank(w, strong)
	sortByRank(w, weak)

	m := graph.NoNode
	if len(strong) > 0 {
		if len(strong) > 1 && w.rank(strong[0]) == w.rank(strong[1]) {
			return false, &AmbiguousMergeError{
				Function:   an.g.Name(),
				Dispatch:   an.a.label(d),
				Candidates: []string{an.a.label(strong[0]), an.a.label(strong[1])},
			}
		}
		m = strong[0]
	} else if ok, _, err := an.switchValid(d, targets, graph.NoNode); err != nil {
		return false, err
	} else if !ok {
		if len(weak) == 0 {
			return false, nil
		}
		m = weak[0]
		for _, e := range out {
			if e.has(graph.SwitchDefault) && containsNode(weak, e.to) {
				m = e.to
			}
		}
	}

	bodies := map[graph.NodeID]bool{}
	for _, t := range targets {
		if t != m {
			bodies[t] = true
		}
	}

	sw := &Switch{Dispatch: d, Default: graph.NoNode, Merge: m}
	slots := []graph.NodeID{d}
	for _, e := range out {
		var values []string
		def := false
		for _, k := range e.kinds {
			switch k.Type {
			case graph.SwitchDefault:
				def = true
			case graph.SwitchCase, graph.Indirect:
				values = append(values, k.Value)
			default:
				values = append(values, k.Type.String())
			}
		}
		if e.to == m {
			sw.MergeCases = append(sw.MergeCases, values...)
			if def {
				sw.MergeCases = append(sw.MergeCases, "default")
			}
			continue
		}
		if def {
			sw.Default = e.to
		}
		sw.Arms = append(sw.Arms, SwitchArm{
			Body:        e.to,
			Values:      values,
			Default:     def,
			Fallthrough: bodies[w.single(e.to)],
		})
		slots = append(slots, e.to)
	}

	region := map[graph.NodeID]bool{d: true}
	for b := range bodies {
		region[b] = true
	}
	if an.absorbable(m, region) {
		sw.MergeAbsorbed = true
		slots = append(slots, m)
	}

	id := w.collapse(slots, d, w.rank(d))
	sw.base = an.newBase(id, d)
	an.emit(sw)
	return true, nil
}

// switchValid reports whether the targets of d other than m form well-shaped
// case bodies around merge m. m may be graph.NoNode when every body leaves
// the function. direct is set when only the dispatch itself reaches m.
func (an *analyzer) switchValid(d graph.NodeID, targets []graph.NodeID, m graph.NodeID) (ok, direct bool, err error) {
	w := an.w
	if m == d {
		return false, false, nil
	}
	if back, err := an.backTo(d, m); err != nil || back {
		return false, false, err
	}

	bodies := map[graph.NodeID]bool{}
	for _, t := range targets {
		if t != m {
			bodies[t] = true
		}
	}
	if len(bodies) == 0 {
		return false, false, nil
	}

	allowed := map[graph.NodeID]bool{d: true}
	for b := range bodies {
		allowed[b] = true
	}

	fromBody := false
	for b := range bodies {
		if b == w.entry || w.hasSelf(b) || len(w.out[b]) > 1 || !w.predsWithin(b, allowed) {
			return false, false, nil
		}
		next := w.single(b)
		switch {
		case next == graph.NoNode:
		case next == m:
			fromBody = true
		case !bodies[next]:
			return false, false, nil
		}
	}
	if m != graph.NoNode && !fromBody && !containsNode(targets, m) {
		return false, false, nil
	}

	// fallthrough chains must end
	for b := range bodies {
		seen := map[graph.NodeID]bool{}
		for cur := b; bodies[cur]; cur = w.single(cur) {
			if seen[cur] {
				return false, false, nil
			}
			seen[cur] = true
		}
	}
	return true, m != graph.NoNode && !fromBody, nil
}

func containsNode(ids []graph.NodeID, id graph.NodeID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
