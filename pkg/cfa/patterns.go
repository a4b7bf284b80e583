package cfa

import (
	"github.com/l3aro/go-decomp/pkg/graph"
)

// matchAt tries each pattern at n in priority order and collapses the first
// match.
func (an *analyzer) matchAt(n graph.NodeID) (bool, error) {
	if an.w.hasSelf(n) {
		an.selfLoop(n)
		return true, nil
	}

	matchers := []func(graph.NodeID) (bool, error){
		an.loop,
		an.ifThenElse,
		an.ifThen,
		an.switchAt,
		an.sequence,
	}
	for _, m := range matchers {
		ok, err := m(n)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

func (an *analyzer) selfLoop(h graph.NodeID) {
	self, _ := an.w.edge(h, h)
	negated := self.has(graph.BranchFalse) && !self.has(graph.BranchTrue)

	id := an.w.collapse([]graph.NodeID{h}, h, an.w.rank(h))
	an.emit(&SelfLoop{base: an.newBase(id, h), Header: h, Negated: negated})
}

// loop matches n as the header of a natural loop: n dominates the source of
// one of its incoming edges. The exits are never absorbed, and a body that is
// not reducible on its own does not match.
func (an *analyzer) loop(n graph.NodeID) (bool, error) {
	w := an.w
	tree, err := w.dominators()
	if err != nil {
		return false, err
	}

	var latches []graph.NodeID
	for _, p := range w.in[n] {
		if p != n && tree.Dominates(n, p) {
			latches = append(latches, p)
		}
	}
	if len(latches) == 0 {
		return false, nil
	}

	inLoop := map[graph.NodeID]bool{n: true}
	var body []graph.NodeID
	stack := append([]graph.NodeID(nil), latches...)
	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if inLoop[v] {
			continue
		}
		inLoop[v] = true
		body = append(body, v)
		stack = append(stack, w.in[v]...)
	}
	sortByRank(w, body)

	// a multi-entry cycle inside the body becomes a residue region first
	if len(w.forwardCycles(tree, inLoop)) > 0 {
		return false, nil
	}

	var exits []graph.NodeID
	for _, m := range append([]graph.NodeID{n}, body...) {
		for _, e := range w.out[m] {
			if !inLoop[e.to] {
				exits = appendUnique(exits, e.to)
			}
		}
	}

	slots := append([]graph.NodeID{n}, body...)
	if len(body) == 1 {
		b := body[0]
		bodyEdge, _ := w.edge(n, b)
		switch {
		case len(w.out[n]) == 2 && len(exits) == 1 && w.onlyPred(b, n) && w.single(b) == n:
			id := w.collapse(slots, n, w.rank(n))
			an.emit(&WhileLoop{
				base:    an.newBase(id, n),
				Header:  n,
				Body:    b,
				Exit:    exits[0],
				Negated: bodyEdge.has(graph.BranchFalse) && !bodyEdge.has(graph.BranchTrue),
			})
			return true, nil

		case w.single(n) == b && w.onlyPred(b, n) && len(w.out[b]) == 2 && len(exits) == 1:
			back, _ := w.edge(b, n)
			id := w.collapse(slots, n, w.rank(n))
			an.emit(&DoWhileLoop{
				base:    an.newBase(id, n),
				Header:  n,
				Latch:   b,
				Exit:    exits[0],
				Negated: back.has(graph.BranchFalse) && !back.has(graph.BranchTrue),
			})
			return true, nil
		}
	}

	id := w.collapse(slots, n, w.rank(n))
	an.emit(&NaturalLoop{base: an.newBase(id, n), Header: n, Body: body, Exits: exits})
	return true, nil
}

// twoWay returns the successors of c with the true-edge target first, or
// false when c does not branch two ways.
func (an *analyzer) twoWay(c graph.NodeID) (first, second graph.NodeID, ok bool) {
	out := an.w.out[c]
	if len(out) != 2 {
		return graph.NoNode, graph.NoNode, false
	}
	if out[1].has(graph.BranchTrue) && !out[0].has(graph.BranchTrue) {
		return out[1].to, out[0].to, true
	}
	return out[0].to, out[1].to, true
}

// arm reports whether a can be the arm of a conditional at c.
func (an *analyzer) arm(c, a graph.NodeID) bool {
	return a != c && a != an.w.entry && an.w.onlyPred(a, c) && len(an.w.out[a]) <= 1
}

// backTo reports whether the merge m is really a loop header reached from c.
func (an *analyzer) backTo(c, m graph.NodeID) (bool, error) {
	if m == graph.NoNode {
		return false, nil
	}
	if m == c {
		return true, nil
	}
	tree, err := an.w.dominators()
	if err != nil {
		return false, err
	}
	return tree.Dominates(m, c), nil
}

// absorbable reports whether merge m can join the region, i.e. all of its
// predecessors are already inside.
func (an *analyzer) absorbable(m graph.NodeID, region map[graph.NodeID]bool) bool {
	w := an.w
	return m != graph.NoNode && m != w.entry && !region[m] && !w.hasSelf(m) && w.predsWithin(m, region)
}

func (an *analyzer) ifThenElse(c graph.NodeID) (bool, error) {
	w := an.w
	t, e, ok := an.twoWay(c)
	if !ok || !an.arm(c, t) || !an.arm(c, e) {
		return false, nil
	}

	mt, me := w.single(t), w.single(e)
	if mt != graph.NoNode && me != graph.NoNode && mt != me {
		return false, nil
	}
	m := mt
	if m == graph.NoNode {
		m = me
	}
	if back, err := an.backTo(c, m); err != nil || back {
		return false, err
	}

	region := map[graph.NodeID]bool{c: true, t: true, e: true}
	absorb := an.absorbable(m, region)
	slots := []graph.NodeID{c, t, e}
	if absorb {
		slots = append(slots, m)
	}

	id := w.collapse(slots, c, w.rank(c))
	an.emit(&IfThenElse{
		base:          an.newBase(id, c),
		Cond:          c,
		Then:          t,
		Else:          e,
		Merge:         m,
		MergeAbsorbed: absorb,
	})
	return true, nil
}

func (an *analyzer) ifThen(c graph.NodeID) (bool, error) {
	w := an.w
	first, second, ok := an.twoWay(c)
	if !ok {
		return false, nil
	}

	for _, pair := range [][2]graph.NodeID{{first, second}, {second, first}} {
		a, m := pair[0], pair[1]
		if m == c || !an.arm(c, a) {
			continue
		}
		returns := len(w.out[a]) == 0
		if !returns && w.single(a) != m {
			continue
		}
		if back, err := an.backTo(c, m); err != nil {
			return false, err
		} else if back {
			continue
		}

		armEdge, _ := w.edge(c, a)
		region := map[graph.NodeID]bool{c: true, a: true}
		absorb := an.absorbable(m, region)
		slots := []graph.NodeID{c, a}
		if absorb {
			slots = append(slots, m)
		}

		id := w.collapse(slots, c, w.rank(c))
		an.emit(&IfThen{
			base:          an.newBase(id, c),
			Cond:          c,
			Then:          a,
			Merge:         m,
			MergeAbsorbed: absorb,
			Negated:       !armEdge.has(graph.BranchTrue) && armEdge.has(graph.BranchFalse),
			Returns:       returns,
		})
		return true, nil
	}
	return false, nil
}

// sequence matches the maximal straight-line chain through n.
func (an *analyzer) sequence(n graph.NodeID) (bool, error) {
	w := an.w
	linked := func(x, y graph.NodeID) bool {
		return x != y && y != w.entry && w.single(x) == y && w.onlyPred(y, x)
	}

	chain := []graph.NodeID{n}
	in := map[graph.NodeID]bool{n: true}
	for cur := n; ; {
		next := w.single(cur)
		if next == graph.NoNode || in[next] || !linked(cur, next) {
			break
		}
		chain = append(chain, next)
		in[next] = true
		cur = next
	}
	for cur := n; len(w.in[cur]) == 1; {
		prev := w.in[cur][0]
		if in[prev] || !linked(prev, cur) {
			break
		}
		chain = append([]graph.NodeID{prev}, chain...)
		in[prev] = true
		cur = prev
	}

	// a chain closing on itself keeps its head outside
	for _, p := range w.in[chain[0]] {
		if in[p] {
			chain = chain[1:]
			break
		}
	}
	if len(chain) < 2 {
		return false, nil
	}

	id := w.collapse(chain, chain[0], w.rank(chain[0]))
	an.emit(&Sequence{base: an.newBase(id, chain[0]), Nodes: chain})
	return true, nil
}
