package decomp

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/l3aro/go-decomp/internal/config"
	"github.com/l3aro/go-decomp/internal/log"
	"github.com/l3aro/go-decomp/pkg/ir"
)

// Analyzer analyses the functions of a module concurrently. The zero value
// uses one worker, no block limit, no cache and a discarding logger.
type Analyzer struct {
	Workers   int
	MaxBlocks int
	Logger    log.Logger
	Cache     *SummaryCache
}

// NewAnalyzer configures an Analyzer from cfg. The cache is left nil; open
// one with OpenSummaryCache when cfg enables it.
func NewAnalyzer(cfg *config.Config, logger log.Logger) *Analyzer {
	return &Analyzer{
		Workers:   cfg.Workers,
		MaxBlocks: cfg.MaxBlocks,
		Logger:    logger,
	}
}

// ModuleReport collects the function reports of one module, in module
// order.
type ModuleReport struct {
	RunID     uuid.UUID
	Module    string
	Functions []*FunctionReport
	Duration  time.Duration
}

// Failed returns the reports that ended in an error.
func (m *ModuleReport) Failed() []*FunctionReport {
	var out []*FunctionReport
	for _, r := range m.Functions {
		if r.Summary.Failed() {
			out = append(out, r)
		}
	}
	return out
}

// Irreducible returns the successful reports that left residue.
func (m *ModuleReport) Irreducible() []*FunctionReport {
	var out []*FunctionReport
	for _, r := range m.Functions {
		if !r.Summary.Failed() && !r.Summary.Reducible {
			out = append(out, r)
		}
	}
	return out
}

// Summaries returns the summary of every function.
func (m *ModuleReport) Summaries() []Summary {
	out := make([]Summary, len(m.Functions))
	for i, r := range m.Functions {
		out[i] = r.Summary
	}
	return out
}

// AnalyzeModule analyses every function of m. One function failing does not
// stop the others; its error is in its report. The returned error is only
// set when ctx is done, together with the reports finished so far.
func (a *Analyzer) AnalyzeModule(ctx context.Context, m *ir.Module) (*ModuleReport, error) {
	start := time.Now()
	rep := &ModuleReport{RunID: uuid.New(), Module: m.Name}

	ctx, span := tracer.Start(ctx, "decomp.AnalyzeModule",
		trace.WithAttributes(
			attribute.String("module", m.Name),
			attribute.String("run_id", rep.RunID.String()),
			attribute.Int("functions", len(m.Functions)),
		),
	)
	defer span.End()

	logger := a.logger().With("run_id", rep.RunID.String(), "module", m.Name)
	logger.Debug("analysing module", "functions", len(m.Functions), "workers", a.workers())

	reports := make([]*FunctionReport, len(m.Functions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers())
	for i, fn := range m.Functions {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			reports[i] = a.analyze(gctx, fn, logger)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range reports {
		if r != nil {
			rep.Functions = append(rep.Functions, r)
		}
	}
	rep.Duration = time.Since(start)

	span.SetAttributes(
		attribute.Int("failed", len(rep.Failed())),
		attribute.Int("irreducible", len(rep.Irreducible())),
	)
	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return rep, err
	}
	logger.Info("module analysed",
		"functions", len(rep.Functions),
		"failed", len(rep.Failed()),
		"irreducible", len(rep.Irreducible()),
		"duration", rep.Duration.String(),
	)
	return rep, nil
}

func (a *Analyzer) analyze(ctx context.Context, fn *ir.Function, logger log.Logger) *FunctionReport {
	if a.MaxBlocks > 0 && len(fn.Blocks) > a.MaxBlocks {
		rep := &FunctionReport{
			Function:    fn.Name,
			Fingerprint: Fingerprint(fn),
			Err:         &SkippedError{Function: fn.Name, Blocks: len(fn.Blocks), Limit: a.MaxBlocks},
		}
		rep.Summary = summarize(rep)
		logger.Debug("function skipped", "function", fn.Name, "blocks", len(fn.Blocks))
		return rep
	}

	fp := Fingerprint(fn)
	if a.Cache != nil {
		if s, ok := a.Cache.Get(fp); ok {
			s.Function = fn.Name
			logger.Debug("cache hit", "function", fn.Name)
			return &FunctionReport{Function: fn.Name, Fingerprint: fp, Cached: true, Summary: s}
		}
	}

	rep := AnalyzeFunction(ctx, fn)
	class := Classify(rep.Err)
	if a.Cache != nil && (class == ClassNone || class == ClassMalformed) {
		a.Cache.Set(fp, rep.Summary)
	}

	switch {
	case rep.Err != nil:
		logger.Warn("analysis failed", "function", fn.Name, "class", string(class), "error", rep.Err.Error())
	case !rep.Summary.Reducible:
		logger.Warn("unstructured control flow",
			"function", fn.Name,
			"irreducible", rep.Summary.Irreducible,
			"unstructured", rep.Summary.Unstructured,
		)
	default:
		logger.Debug("function analysed",
			"function", fn.Name,
			"blocks", rep.Summary.Blocks,
			"primitives", rep.Summary.PrimitiveCount(),
			"duration", rep.Duration.String(),
		)
	}
	return rep
}

func (a *Analyzer) workers() int {
	if a.Workers <= 0 {
		return 1
	}
	return a.Workers
}

func (a *Analyzer) logger() log.Logger {
	if a.Logger == nil {
		return log.Nop()
	}
	return a.Logger
}
