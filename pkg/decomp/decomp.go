// Package decomp runs control-flow recovery over whole modules: CFG
// construction, dominators, structural analysis and region assembly for
// every function, in parallel, with tracing and a summary cache.
package decomp

import (
	"context"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/l3aro/go-decomp/pkg/cfa"
	"github.com/l3aro/go-decomp/pkg/cfg"
	"github.com/l3aro/go-decomp/pkg/cfr"
	"github.com/l3aro/go-decomp/pkg/dom"
	"github.com/l3aro/go-decomp/pkg/ir"
)

var tracer = otel.Tracer("github.com/l3aro/go-decomp/pkg/decomp")

// FunctionReport is the outcome of analysing one function. The stage
// results are nil from the first failing stage on, and for reports served
// from the cache.
type FunctionReport struct {
	Function    string
	Fingerprint string
	CFG         *cfg.ControlFlowGraph
	Dom         *dom.Tree
	Result      *cfa.Result
	Tree        *cfr.Group
	Err         error
	Duration    time.Duration
	Cached      bool
	Summary     Summary
}

// AnalyzeFunction runs every stage on fn. Failures, panics included, end up
// in the report's Err; the function itself never fails.
func AnalyzeFunction(ctx context.Context, fn *ir.Function) *FunctionReport {
	start := time.Now()
	rep := &FunctionReport{Function: fn.Name, Fingerprint: Fingerprint(fn)}

	ctx, span := tracer.Start(ctx, "decomp.AnalyzeFunction",
		trace.WithAttributes(
			attribute.String("function", fn.Name),
			attribute.Int("blocks", len(fn.Blocks)),
		),
	)
	defer span.End()

	rep.Err = rep.run(ctx, fn)
	rep.Duration = time.Since(start)
	rep.Summary = summarize(rep)

	if rep.Err != nil {
		span.RecordError(rep.Err)
		span.SetStatus(codes.Error, rep.Err.Error())
	} else {
		span.SetAttributes(
			attribute.Bool("reducible", rep.Summary.Reducible),
			attribute.Int("primitives", rep.Summary.PrimitiveCount()),
		)
	}
	return rep
}

func (r *FunctionReport) run(ctx context.Context, fn *ir.Function) error {
	var err error
	if err = stage(ctx, fn.Name, "cfg", func() (err error) {
		r.CFG, err = cfg.New(fn)
		return err
	}); err != nil {
		return err
	}
	if err = stage(ctx, fn.Name, "dom", func() (err error) {
		r.Dom, err = dom.Compute(r.CFG)
		return err
	}); err != nil {
		return err
	}
	if err = stage(ctx, fn.Name, "cfa", func() (err error) {
		r.Result, err = cfa.FindAll(r.CFG, r.Dom)
		return err
	}); err != nil {
		return err
	}
	return stage(ctx, fn.Name, "cfr", func() (err error) {
		r.Tree, err = cfr.New(r.Result)
		return err
	})
}

// stage runs f in its own span and turns a panic into a PanicError.
func stage(ctx context.Context, function, name string, f func() error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, span := tracer.Start(ctx, "decomp."+name)
	defer span.End()

	defer func() {
		if p := recover(); p != nil {
			err = &PanicError{Function: function, Stage: name, Value: p, Stack: debug.Stack()}
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()
	return f()
}
