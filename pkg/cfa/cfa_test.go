package cfa

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-decomp/pkg/cfg"
	"github.com/l3aro/go-decomp/pkg/dom"
	"github.com/l3aro/go-decomp/pkg/graph"
	"github.com/l3aro/go-decomp/pkg/ir"
)

func blk(name string, term *ir.Terminator) *ir.Block {
	return &ir.Block{Name: name, Term: term}
}

func analyze(t *testing.T, blocks ...*ir.Block) *Result {
	t.Helper()
	c, err := cfg.New(&ir.Function{Name: "f", Blocks: blocks})
	require.NoError(t, err)
	res, err := FindAll(c, nil)
	require.NoError(t, err)
	return res
}

func kindsOf(res *Result) []Kind {
	out := make([]Kind, len(res.Primitives))
	for i, p := range res.Primitives {
		out[i] = p.Kind()
	}
	return out
}

func labelsOf(res *Result, ids []graph.NodeID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = res.Label(id)
	}
	return out
}

func TestFindAll_Diamond(t *testing.T) {
	res := analyze(t,
		blk("A", ir.CondBr("B", "C")),
		blk("B", ir.Br("D")),
		blk("C", ir.Br("D")),
		blk("D", ir.Ret()),
	)

	require.Equal(t, []Kind{KindIfThenElse}, kindsOf(res))
	ite := res.Primitives[0].(*IfThenElse)
	assert.Equal(t, "A", res.Label(ite.Cond))
	assert.Equal(t, "B", res.Label(ite.Then))
	assert.Equal(t, "C", res.Label(ite.Else))
	assert.Equal(t, "D", res.Label(ite.Merge))
	assert.True(t, ite.MergeAbsorbed)
	assert.Equal(t, graph.NoNode, ite.ExitNode())

	assert.True(t, res.Reducible())
	assert.Equal(t, ite.ID(), res.Root)
	assert.Equal(t, "(A...D)", res.Label(res.Root))
	assert.Equal(t, []string{"A", "B", "C", "D"}, labelsOf(res, res.Leaves(res.Root)))
	assert.Equal(t, "if (A) { B } else { C } merge D", res.Describe(ite))
}

func TestFindAll_SelfLoopInSequence(t *testing.T) {
	res := analyze(t,
		blk("A", ir.Br("B")),
		blk("B", ir.CondBr("B", "C")),
		blk("C", ir.Ret()),
	)

	require.Equal(t, []Kind{KindSelfLoop, KindSequence}, kindsOf(res))
	loop := res.Primitives[0].(*SelfLoop)
	assert.Equal(t, "B", res.Label(loop.Header))
	assert.Equal(t, []string{"B"}, labelsOf(res, loop.Members()))
	assert.False(t, loop.Negated)

	seq := res.Primitives[1].(*Sequence)
	assert.Equal(t, []string{"A", "(B...B)", "C"}, labelsOf(res, seq.Nodes))
	assert.Equal(t, loop.ID(), seq.Nodes[1])
	assert.True(t, res.Reducible())
}

func TestFindAll_IrreducibleResidue(t *testing.T) {
	res := analyze(t,
		blk("A", ir.CondBr("B", "C")),
		blk("B", ir.CondBr("C", "E")),
		blk("C", ir.CondBr("B", "E")),
		blk("E", ir.Ret()),
	)

	assert.False(t, res.Reducible())
	require.Len(t, res.Residue, 1)
	r := res.Residue[0]
	assert.Equal(t, Irreducible, r.Kind)
	assert.Equal(t, []string{"B", "C"}, labelsOf(res, r.Nodes))
	assert.Equal(t, []string{"B", "C"}, labelsOf(res, r.Entries))
	assert.Len(t, r.Edges, 2)
	require.Len(t, r.BackEdges, 1)
	assert.Equal(t, "C", res.Label(r.BackEdges[0].From))
	assert.Equal(t, "B", res.Label(r.BackEdges[0].To))

	require.Equal(t, []Kind{KindSequence}, kindsOf(res))
	seq := res.Primitives[0].(*Sequence)
	assert.Equal(t, []graph.NodeID{seq.Nodes[0], r.ID(), seq.Nodes[2]}, seq.Nodes)
	assert.Equal(t, "A", res.Label(seq.Nodes[0]))
	assert.Equal(t, "E", res.Label(seq.Nodes[2]))
}

func TestFindAll_IrreducibleInsideLoop(t *testing.T) {
	res := analyze(t,
		blk("E", ir.Br("H")),
		blk("H", ir.CondBr("A", "X")),
		blk("A", ir.CondBr("B", "C")),
		blk("B", ir.CondBr("C", "L")),
		blk("C", ir.CondBr("B", "L")),
		blk("L", ir.Br("H")),
		blk("X", ir.Ret()),
	)

	assert.False(t, res.Reducible())
	require.Len(t, res.Residue, 1)
	region := res.Residue[0]
	assert.Equal(t, Irreducible, region.Kind)
	assert.Equal(t, []string{"B", "C"}, labelsOf(res, region.Members()))
	assert.Len(t, region.Entries, 2)
	assert.Len(t, region.BackEdges, 1)

	var loop Primitive
	for _, p := range res.Primitives {
		if isLoop(p.Kind()) && subset(region.Members(), p.Members()) {
			loop = p
		}
	}
	require.NotNil(t, loop, "the loop around the region is still recovered")
	assert.Greater(t, loop.ID(), region.ID(), "the region collapses before the loop")
	assert.Equal(t, []string{"A", "B", "C", "H", "L", "X"}, sortedLabels(res, loop.Members()))
}

func TestFindAll_WhileLoop(t *testing.T) {
	res := analyze(t,
		blk("P", ir.Br("H")),
		blk("H", ir.CondBr("B", "X")),
		blk("B", ir.Br("H")),
		blk("X", ir.Ret()),
	)

	require.Equal(t, []Kind{KindWhileLoop, KindSequence}, kindsOf(res))
	loop := res.Primitives[0].(*WhileLoop)
	assert.Equal(t, "H", res.Label(loop.Header))
	assert.Equal(t, "B", res.Label(loop.Body))
	assert.Equal(t, "X", res.Label(loop.Exit))
	assert.Equal(t, loop.Exit, loop.ExitNode())
	assert.Equal(t, "while (H) { B } exit X", res.Describe(loop))
}

func TestFindAll_NegatedWhileLoop(t *testing.T) {
	res := analyze(t,
		blk("P", ir.Br("H")),
		blk("H", ir.CondBr("X", "B")),
		blk("B", ir.Br("H")),
		blk("X", ir.Ret()),
	)

	require.Equal(t, []Kind{KindWhileLoop, KindSequence}, kindsOf(res))
	assert.True(t, res.Primitives[0].(*WhileLoop).Negated)
}

func TestFindAll_DoWhileLoop(t *testing.T) {
	res := analyze(t,
		blk("P", ir.Br("H")),
		blk("H", ir.Br("L")),
		blk("L", ir.CondBr("H", "X")),
		blk("X", ir.Ret()),
	)

	require.Equal(t, []Kind{KindDoWhileLoop, KindSequence}, kindsOf(res))
	loop := res.Primitives[0].(*DoWhileLoop)
	assert.Equal(t, "H", res.Label(loop.Header))
	assert.Equal(t, "L", res.Label(loop.Latch))
	assert.Equal(t, "X", res.Label(loop.Exit))
}

func TestFindAll_NaturalLoopWithBreak(t *testing.T) {
	res := analyze(t,
		blk("E", ir.Br("H")),
		blk("H", ir.CondBr("B", "X")),
		blk("B", ir.CondBr("C", "Y")),
		blk("C", ir.Br("H")),
		blk("X", ir.Br("Y")),
		blk("Y", ir.Ret()),
	)

	require.Equal(t, []Kind{KindNaturalLoop, KindIfThen, KindSequence}, kindsOf(res))
	loop := res.Primitives[0].(*NaturalLoop)
	assert.Equal(t, "H", res.Label(loop.Header))
	assert.Equal(t, []string{"B", "C"}, labelsOf(res, loop.Body))
	assert.Equal(t, []string{"X", "Y"}, labelsOf(res, loop.Exits))
	assert.Equal(t, graph.NoNode, loop.ExitNode())

	ifThen := res.Primitives[1].(*IfThen)
	assert.Equal(t, loop.ID(), ifThen.Cond)
	assert.Equal(t, "X", res.Label(ifThen.Then))
	assert.True(t, ifThen.MergeAbsorbed)
	assert.True(t, res.Reducible())
}

func TestFindAll_NestedLoops(t *testing.T) {
	res := analyze(t,
		blk("E", ir.Br("H1")),
		blk("H1", ir.CondBr("B1", "X")),
		blk("B1", ir.Br("H2")),
		blk("H2", ir.CondBr("B2", "L1")),
		blk("B2", ir.Br("H2")),
		blk("L1", ir.Br("H1")),
		blk("X", ir.Ret()),
	)

	require.Equal(t, []Kind{KindWhileLoop, KindSequence, KindWhileLoop, KindSequence}, kindsOf(res))
	inner := res.Primitives[0].(*WhileLoop)
	outer := res.Primitives[2].(*WhileLoop)
	assert.Equal(t, "H2", res.Label(inner.Header))
	assert.Equal(t, "H1", res.Label(outer.Header))
	assert.Subset(t, outer.Members(), inner.Members())
	assert.Equal(t, []string{"B1", "H2", "B2", "L1"}, labelsOf(res, res.Leaves(outer.Body)))
}

func TestFindAll_SwitchWithFallthrough(t *testing.T) {
	res := analyze(t,
		blk("S", ir.Switch("D",
			ir.Case{Value: "1", Target: "A"},
			ir.Case{Value: "2", Target: "B"},
			ir.Case{Value: "3", Target: "M"})),
		blk("A", ir.Br("B")),
		blk("B", ir.Br("M")),
		blk("D", ir.Br("M")),
		blk("M", ir.Ret()),
	)

	require.Equal(t, []Kind{KindSwitch}, kindsOf(res))
	sw := res.Primitives[0].(*Switch)
	assert.Equal(t, "S", res.Label(sw.Dispatch))
	assert.Equal(t, "M", res.Label(sw.Merge))
	assert.True(t, sw.MergeAbsorbed)
	assert.Equal(t, "D", res.Label(sw.Default))
	assert.Equal(t, []string{"3"}, sw.MergeCases)

	require.Len(t, sw.Arms, 3)
	assert.Equal(t, "case 1", sw.Arms[0].Role())
	assert.True(t, sw.Arms[0].Fallthrough)
	assert.False(t, sw.Arms[1].Fallthrough)
	assert.Equal(t, "default", sw.Arms[2].Role())

	roles := make([]string, 0)
	for _, s := range sw.Slots() {
		roles = append(roles, s.Role)
	}
	assert.Equal(t, []string{"dispatch", "case 1", "case 2", "default", "merge"}, roles)
	assert.Equal(t, "switch (S) { case 1: A; fallthrough; case 2: B; default: D; case 3: break } merge M", res.Describe(sw))
}

func TestFindAll_SwitchSharedTarget(t *testing.T) {
	res := analyze(t,
		blk("S", ir.Switch("M",
			ir.Case{Value: "1", Target: "A"},
			ir.Case{Value: "2", Target: "A"})),
		blk("A", ir.Br("M")),
		blk("M", ir.Ret()),
	)

	// two distinct targets only, so the dispatch reads as a conditional
	require.Len(t, res.Primitives, 1)
	assert.True(t, res.Reducible())
	assert.Len(t, res.Leaves(res.Root), 3)
}

func TestSwitchArm_Role(t *testing.T) {
	tests := []struct {
		arm  SwitchArm
		want string
	}{
		{SwitchArm{Values: []string{"1"}}, "case 1"},
		{SwitchArm{Values: []string{"1", "2", "3"}}, "case 1, 2, 3"},
		{SwitchArm{Values: []string{"0"}, Default: true}, "case 0, default"},
		{SwitchArm{Default: true}, "default"},
		{SwitchArm{}, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.arm.Role())
	}
}

func TestFindAll_GuardClause(t *testing.T) {
	res := analyze(t,
		blk("E", ir.CondBr("A", "M")),
		blk("A", ir.CondBr("R", "M")),
		blk("R", ir.Ret()),
		blk("M", ir.Ret()),
	)

	require.Equal(t, []Kind{KindIfThen, KindIfThen}, kindsOf(res))
	guard := res.Primitives[0].(*IfThen)
	assert.Equal(t, "A", res.Label(guard.Cond))
	assert.Equal(t, "R", res.Label(guard.Then))
	assert.True(t, guard.Returns)
	assert.False(t, guard.MergeAbsorbed)
	assert.Equal(t, "if (A) { R; return } exit M", res.Describe(guard))

	outer := res.Primitives[1].(*IfThen)
	assert.Equal(t, guard.ID(), outer.Then)
	assert.True(t, outer.MergeAbsorbed)
}

func TestFindAll_BothArmsReturn(t *testing.T) {
	res := analyze(t,
		blk("A", ir.CondBr("B", "C")),
		blk("B", ir.Unreachable()),
		blk("C", ir.Ret()),
	)

	require.Equal(t, []Kind{KindIfThenElse}, kindsOf(res))
	ite := res.Primitives[0].(*IfThenElse)
	assert.Equal(t, graph.NoNode, ite.Merge)
	assert.False(t, ite.MergeAbsorbed)
}

func TestFindAll_ShortCircuitIsUnstructured(t *testing.T) {
	res := analyze(t,
		blk("A", ir.CondBr("B", "C")),
		blk("B", ir.CondBr("C", "D")),
		blk("C", ir.Br("D")),
		blk("D", ir.Ret()),
	)

	require.Len(t, res.Residue, 1)
	r := res.Residue[0]
	assert.Equal(t, Unstructured, r.Kind)
	assert.Equal(t, []string{"A", "B", "C"}, labelsOf(res, r.Nodes))
	assert.Equal(t, []string{"A"}, labelsOf(res, r.Entries))
	assert.Empty(t, r.BackEdges)
	assert.Equal(t, []Kind{KindSequence}, kindsOf(res))
}

func TestFindAll_Trivial(t *testing.T) {
	t.Run("single block", func(t *testing.T) {
		res := analyze(t, blk("A", ir.Ret()))
		assert.Empty(t, res.Primitives)
		assert.True(t, res.Reducible())
		assert.Equal(t, "A", res.Label(res.Root))
		assert.False(t, res.Synthetic(res.Root))
	})

	t.Run("infinite self loop", func(t *testing.T) {
		res := analyze(t, blk("A", ir.Br("A")))
		assert.Equal(t, []Kind{KindSelfLoop}, kindsOf(res))
		assert.True(t, res.Synthetic(res.Root))
	})

	t.Run("entry self loop", func(t *testing.T) {
		res := analyze(t,
			blk("A", ir.CondBr("A", "B")),
			blk("B", ir.Ret()),
		)
		assert.Equal(t, []Kind{KindSelfLoop, KindSequence}, kindsOf(res))
	})
}

func TestFindAll_Deterministic(t *testing.T) {
	blocks := []*ir.Block{
		blk("E", ir.Br("H")),
		blk("H", ir.CondBr("B", "X")),
		blk("B", ir.CondBr("C", "Y")),
		blk("C", ir.Br("H")),
		blk("X", ir.Br("Y")),
		blk("Y", ir.Switch("Z", ir.Case{Value: "0", Target: "P"}, ir.Case{Value: "1", Target: "Q"})),
		blk("P", ir.Br("Z")),
		blk("Q", ir.Ret()),
		blk("Z", ir.Ret()),
	}

	first := analyze(t, blocks...).String()
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, analyze(t, blocks...).String())
	}
}

func TestFindAll_Containment(t *testing.T) {
	graphs := map[string][]*ir.Block{
		"nested": {
			blk("E", ir.Br("H1")),
			blk("H1", ir.CondBr("B1", "X")),
			blk("B1", ir.CondBr("H2", "L1")),
			blk("H2", ir.CondBr("H2", "L1")),
			blk("L1", ir.Br("H1")),
			blk("X", ir.Ret()),
		},
		"irreducible": {
			blk("A", ir.CondBr("B", "C")),
			blk("B", ir.CondBr("C", "E")),
			blk("C", ir.CondBr("B", "E")),
			blk("E", ir.Ret()),
		},
		"switch": {
			blk("S", ir.Switch("D", ir.Case{Value: "1", Target: "A"}, ir.Case{Value: "2", Target: "B"})),
			blk("A", ir.Ret()),
			blk("B", ir.Br("D")),
			blk("D", ir.Ret()),
		},
	}

	for name, blocks := range graphs {
		t.Run(name, func(t *testing.T) {
			res := analyze(t, blocks...)
			assert.Len(t, res.Leaves(res.Root), len(res.Nodes))

			structs := res.Structures()
			for i, s := range structs {
				var fromSlots []graph.NodeID
				for _, slot := range s.Slots() {
					fromSlots = append(fromSlots, res.Leaves(slot.Node)...)
				}
				assert.ElementsMatch(t, s.Members(), fromSlots, "members are the union of slot leaves")

				for _, other := range structs[i+1:] {
					a, b := s.Members(), other.Members()
					nested := subset(a, b) || subset(b, a)
					assert.True(t, nested || disjoint(a, b), "%s and %s overlap", res.Describe(s), res.Describe(other))
				}
			}
		})
	}
}

func subset(small, big []graph.NodeID) bool {
	set := make(map[graph.NodeID]bool, len(big))
	for _, id := range big {
		set[id] = true
	}
	for _, id := range small {
		if !set[id] {
			return false
		}
	}
	return true
}

func disjoint(a, b []graph.NodeID) bool {
	set := make(map[graph.NodeID]bool, len(a))
	for _, id := range a {
		set[id] = true
	}
	for _, id := range b {
		if set[id] {
			return false
		}
	}
	return true
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "NaturalLoop", KindNaturalLoop.String())
	assert.Equal(t, "Unknown", Kind(99).String())
	assert.Equal(t, "Irreducible", Irreducible.String())
}

func isLoop(k Kind) bool {
	return k == KindWhileLoop || k == KindDoWhileLoop || k == KindNaturalLoop
}

func sortedLabels(res *Result, ids []graph.NodeID) []string {
	out := labelsOf(res, ids)
	sort.Strings(out)
	return out
}

// randomFunction builds a function of 2 to 12 blocks named b0, b1, ...
// with random terminators and targets.
func randomFunction(rng *rand.Rand) *ir.Function {
	n := 2 + rng.Intn(11)
	target := func() string { return fmt.Sprintf("b%d", rng.Intn(n)) }

	fn := &ir.Function{Name: "f"}
	for i := 0; i < n; i++ {
		var term *ir.Terminator
		switch r := rng.Intn(10); {
		case r < 2:
			term = ir.Ret()
		case r < 5:
			term = ir.Br(target())
		case r < 9:
			term = ir.CondBr(target(), target())
		default:
			term = ir.Switch(target(),
				ir.Case{Value: "0", Target: target()},
				ir.Case{Value: "1", Target: target()})
		}
		fn.Blocks = append(fn.Blocks, blk(fmt.Sprintf("b%d", i), term))
	}
	return fn
}

// irreducible reports whether c keeps a cycle once its back edges are
// removed.
func irreducible(t *testing.T, c *cfg.ControlFlowGraph) bool {
	t.Helper()
	tree, err := dom.Compute(c)
	require.NoError(t, err)
	forward := func(from, to graph.NodeID) bool { return !tree.Dominates(to, from) }
	return len(graph.StronglyConnected(c, forward)) > 0
}

func TestFindAll_RandomFunctions(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	sawIrreducible := 0

	for i := 0; i < 2000; i++ {
		fn := randomFunction(rng)
		c, err := cfg.New(fn)
		require.NoError(t, err)

		res, err := FindAll(c, nil)
		require.NoError(t, err, "function %d", i)
		again, err := FindAll(c, nil)
		require.NoError(t, err)
		require.Equal(t, res.String(), again.String(), "function %d is not deterministic", i)

		var blocks []graph.NodeID
		for _, n := range res.Nodes {
			blocks = append(blocks, n.ID)
		}
		require.ElementsMatch(t, blocks, res.Leaves(res.Root), "function %d root coverage", i)

		structs := res.Structures()
		for j, s := range structs {
			var fromSlots []graph.NodeID
			for _, slot := range s.Slots() {
				fromSlots = append(fromSlots, res.Leaves(slot.Node)...)
			}
			require.ElementsMatch(t, s.Members(), fromSlots, "function %d: %s", i, res.Describe(s))
			for _, other := range structs[j+1:] {
				a, b := s.Members(), other.Members()
				require.True(t, subset(a, b) || subset(b, a) || disjoint(a, b),
					"function %d: %s and %s overlap", i, res.Describe(s), res.Describe(other))
			}
		}

		hasRegion := false
		for _, r := range res.Residue {
			if r.Kind == Irreducible {
				hasRegion = true
			}
		}
		want := irreducible(t, c)
		require.Equal(t, want, hasRegion, "function %d:\n%s", i, res.String())
		if res.Reducible() {
			require.False(t, want, "function %d has no residue but is irreducible", i)
		}
		if want {
			sawIrreducible++
		}

		checkSelfLoops(t, c, res, i)
	}

	assert.Greater(t, sawIrreducible, 0)
}

// checkSelfLoops asserts that a block whose only back edge is its own
// self-edge becomes a SelfLoop and never the header of another loop.
func checkSelfLoops(t *testing.T, c *cfg.ControlFlowGraph, res *Result, i int) {
	t.Helper()
	tree, err := dom.Compute(c)
	require.NoError(t, err)

	for _, n := range res.Nodes {
		self, otherBack := false, false
		for _, p := range c.PredIDs(n.ID) {
			switch {
			case p == n.ID:
				self = true
			case tree.Dominates(n.ID, p):
				otherBack = true
			}
		}
		if !self || otherBack {
			continue
		}

		found := false
		for _, p := range res.Primitives {
			switch p := p.(type) {
			case *SelfLoop:
				found = found || p.Header == n.ID
			case *WhileLoop:
				require.NotEqual(t, n.ID, p.Header, "function %d: %s", i, n.Label)
			case *DoWhileLoop:
				require.NotEqual(t, n.ID, p.Header, "function %d: %s", i, n.Label)
			case *NaturalLoop:
				require.NotEqual(t, n.ID, p.Header, "function %d: %s", i, n.Label)
			}
		}
		require.True(t, found, "function %d: %s is not a SelfLoop", i, n.Label)
	}
}
