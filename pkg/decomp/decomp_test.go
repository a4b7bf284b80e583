package decomp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-decomp/internal/config"
	"github.com/l3aro/go-decomp/internal/log"
	"github.com/l3aro/go-decomp/pkg/graph"
	"github.com/l3aro/go-decomp/pkg/ir"
)

func blk(name string, term *ir.Terminator, lines ...string) *ir.Block {
	return &ir.Block{Name: name, Term: term, Lines: lines}
}

func diamond(name string) *ir.Function {
	return &ir.Function{Name: name, Blocks: []*ir.Block{
		blk("A", ir.CondBr("B", "C")),
		blk("B", ir.Br("D")),
		blk("C", ir.Br("D")),
		blk("D", ir.Ret()),
	}}
}

func irreducible() *ir.Function {
	return &ir.Function{Name: "tangle", Blocks: []*ir.Block{
		blk("A", ir.CondBr("B", "C")),
		blk("B", ir.Br("C")),
		blk("C", ir.CondBr("B", "D")),
		blk("D", ir.Ret()),
	}}
}

func broken() *ir.Function {
	return &ir.Function{Name: "broken", Blocks: []*ir.Block{
		blk("A", ir.Br("nowhere")),
	}}
}

// chain returns a straight-line function of n blocks.
func chain(name string, n int) *ir.Function {
	fn := &ir.Function{Name: name}
	for i := 0; i < n; i++ {
		term := ir.Ret()
		if i+1 < n {
			term = ir.Br(fmt.Sprintf("b%d", i+1))
		}
		fn.Blocks = append(fn.Blocks, blk(fmt.Sprintf("b%d", i), term))
	}
	return fn
}

func TestAnalyzeFunction(t *testing.T) {
	rep := AnalyzeFunction(context.Background(), diamond("max"))
	require.NoError(t, rep.Err)

	assert.NotNil(t, rep.CFG)
	assert.NotNil(t, rep.Dom)
	assert.NotNil(t, rep.Result)
	require.NotNil(t, rep.Tree)
	assert.Positive(t, rep.Duration)

	s := rep.Summary
	assert.Equal(t, "max", s.Function)
	assert.Equal(t, 4, s.Blocks)
	assert.Positive(t, s.Edges)
	assert.True(t, s.Reducible)
	assert.Equal(t, map[string]int{"IfThenElse": 1}, s.Primitives)
	assert.Equal(t, 1, s.PrimitiveCount())
	assert.Equal(t, rep.Tree.String(), s.Structure)
	assert.False(t, s.Failed())
	assert.Equal(t, ClassNone, s.ErrorClass)
}

func TestAnalyzeFunction_Errors(t *testing.T) {
	t.Run("malformed", func(t *testing.T) {
		rep := AnalyzeFunction(context.Background(), broken())
		require.Error(t, rep.Err)
		assert.ErrorIs(t, rep.Err, graph.ErrMalformedInput)
		assert.Nil(t, rep.CFG)
		assert.Nil(t, rep.Tree)
		assert.Equal(t, ClassMalformed, rep.Summary.ErrorClass)
		assert.True(t, rep.Summary.Failed())
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		rep := AnalyzeFunction(ctx, diamond("f"))
		assert.ErrorIs(t, rep.Err, context.Canceled)
		assert.Equal(t, ClassCancelled, rep.Summary.ErrorClass)
	})

	t.Run("residue is not an error", func(t *testing.T) {
		rep := AnalyzeFunction(context.Background(), irreducible())
		require.NoError(t, rep.Err)
		assert.False(t, rep.Summary.Reducible)
		assert.Equal(t, 1, rep.Summary.Irreducible)
		assert.Contains(t, rep.Summary.Structure, "Irreducible")
	})
}

func TestStage_RecoversPanic(t *testing.T) {
	err := stage(context.Background(), "f", "cfa", func() error {
		panic("boom")
	})
	var pe *PanicError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "cfa", pe.Stage)
	assert.Equal(t, "boom", pe.Value)
	assert.NotEmpty(t, pe.Stack)
	assert.ErrorIs(t, err, graph.ErrInternalInvariant)
	assert.Equal(t, ClassInternal, Classify(err))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ClassNone},
		{"malformed", fmt.Errorf("wrapped: %w", graph.ErrMalformedInput), ClassMalformed},
		{"internal", graph.ErrInternalInvariant, ClassInternal},
		{"skipped", &SkippedError{Function: "f", Blocks: 9, Limit: 3}, ClassSkipped},
		{"deadline", context.DeadlineExceeded, ClassCancelled},
		{"other", errors.New("disk on fire"), ClassOther},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint(diamond("one"))
	assert.Len(t, a, 64)
	assert.Equal(t, a, Fingerprint(diamond("two")), "the name is not part of the fingerprint")

	changed := diamond("one")
	changed.Blocks[1].Lines = []string{"x = 1"}
	assert.NotEqual(t, a, Fingerprint(changed))

	swapped := diamond("one")
	swapped.Blocks[0].Term = ir.CondBr("C", "B")
	assert.NotEqual(t, a, Fingerprint(swapped))
}

func testModule() *ir.Module {
	return &ir.Module{Name: "demo", Functions: []*ir.Function{
		diamond("max"),
		broken(),
		irreducible(),
		chain("long", 12),
	}}
}

func TestAnalyzeModule(t *testing.T) {
	a := &Analyzer{Workers: 3, MaxBlocks: 10, Logger: log.Nop()}
	rep, err := a.AnalyzeModule(context.Background(), testModule())
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, rep.RunID)
	assert.Equal(t, "demo", rep.Module)
	require.Len(t, rep.Functions, 4)

	var names []string
	for _, f := range rep.Functions {
		names = append(names, f.Function)
	}
	assert.Equal(t, []string{"max", "broken", "tangle", "long"}, names, "reports keep module order")

	failed := rep.Failed()
	require.Len(t, failed, 2)
	assert.Equal(t, ClassMalformed, failed[0].Summary.ErrorClass)
	assert.Equal(t, ClassSkipped, failed[1].Summary.ErrorClass)

	irr := rep.Irreducible()
	require.Len(t, irr, 1)
	assert.Equal(t, "tangle", irr[0].Function)

	sums := rep.Summaries()
	require.Len(t, sums, 4)
	assert.True(t, sums[0].Reducible)
}

func TestAnalyzeModule_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := (&Analyzer{}).AnalyzeModule(ctx, testModule())
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, rep)
	assert.Empty(t, rep.Functions)
}

func TestAnalyzeModule_Cache(t *testing.T) {
	a := &Analyzer{Workers: 2, Cache: NewSummaryCache(100)}

	first, err := a.AnalyzeModule(context.Background(), testModule())
	require.NoError(t, err)
	for _, f := range first.Functions {
		assert.False(t, f.Cached, f.Function)
	}

	second, err := a.AnalyzeModule(context.Background(), testModule())
	require.NoError(t, err)
	for i, f := range second.Functions {
		assert.True(t, f.Cached, f.Function)
		assert.Equal(t, first.Functions[i].Summary, f.Summary)
	}

	// same shape under another name is served from the cache with its own name
	m := &ir.Module{Name: "other", Functions: []*ir.Function{diamond("min")}}
	third, err := a.AnalyzeModule(context.Background(), m)
	require.NoError(t, err)
	require.Len(t, third.Functions, 1)
	assert.True(t, third.Functions[0].Cached)
	assert.Equal(t, "min", third.Functions[0].Summary.Function)
}

func TestAnalyzeModule_Logs(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(log.LoggerConfig{Level: log.WarnLevel, JSONOutput: true, Stderr: &buf})

	a := NewAnalyzer(&config.Config{Workers: 1}, logger)
	_, err := a.AnalyzeModule(context.Background(), testModule())
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "analysis failed")
	assert.Contains(t, out, `"function":"broken"`)
	assert.Contains(t, out, "unstructured control flow")
	assert.Contains(t, out, "run_id")
}

func TestOpenSummaryCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache", "summaries.msgpack")

	c, err := OpenSummaryCache(path, 10)
	require.NoError(t, err, "a missing file is an empty cache")
	assert.Equal(t, 0, c.Len())

	rep := AnalyzeFunction(context.Background(), diamond("max"))
	c.Set(rep.Fingerprint, rep.Summary)
	require.NoError(t, c.PersistToFile(path))

	reopened, err := OpenSummaryCache(path, 10)
	require.NoError(t, err)
	got, ok := reopened.Get(rep.Fingerprint)
	require.True(t, ok)
	assert.Equal(t, rep.Summary, got)
}
