// Package gossa loads Go packages through golang.org/x/tools/go/ssa and
// exposes every function body with its SSA basic blocks.
package gossa

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"

	"github.com/l3aro/go-decomp/pkg/ir"
)

const loadMode = packages.NeedName |
	packages.NeedFiles |
	packages.NeedCompiledGoFiles |
	packages.NeedImports |
	packages.NeedDeps |
	packages.NeedTypes |
	packages.NeedTypesSizes |
	packages.NeedSyntax |
	packages.NeedTypesInfo

// Loader builds SSA for a package directory or pattern.
type Loader struct {
	// Tests includes the packages' test files.
	Tests bool
}

// Load type-checks and builds the packages named by path. path is either a
// directory, loaded as ".", or a package pattern such as "./...".
func (l Loader) Load(ctx context.Context, path string) (*ir.Module, error) {
	cfg := &packages.Config{Mode: loadMode, Context: ctx, Tests: l.Tests}
	pattern := path
	if st, err := os.Stat(path); err == nil && st.IsDir() {
		cfg.Dir = path
		pattern = "."
	}

	pkgs, err := packages.Load(cfg, pattern)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	var errs []string
	packages.Visit(pkgs, nil, func(p *packages.Package) {
		for _, e := range p.Errors {
			errs = append(errs, e.Error())
		}
	})
	if len(errs) > 0 {
		return nil, fmt.Errorf("loading %s: %s", path, strings.Join(errs, "; "))
	}

	prog, ssaPkgs := ssautil.Packages(pkgs, ssa.InstantiateGenerics)
	prog.Build()

	own := make(map[*ssa.Package]bool)
	for _, p := range ssaPkgs {
		if p != nil {
			own[p] = true
		}
	}

	var funcs []*ssa.Function
	for fn := range ssautil.AllFunctions(prog) {
		if fn.Blocks == nil || !own[fn.Pkg] {
			continue
		}
		funcs = append(funcs, fn)
	}
	sort.Slice(funcs, func(i, j int) bool { return funcs[i].String() < funcs[j].String() })

	m := &ir.Module{Name: path, Source: path}
	for _, fn := range funcs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m.Functions = append(m.Functions, Convert(fn))
	}
	return m, nil
}

// Convert maps one SSA function. Blocks are named "<index>.<comment>" the
// way ssa prints them.
func Convert(fn *ssa.Function) *ir.Function {
	out := &ir.Function{Name: fn.String()}
	for _, b := range fn.Blocks {
		blk := &ir.Block{Name: blockName(b)}
		n := len(b.Instrs)
		for i, instr := range b.Instrs {
			if i == n-1 {
				blk.Term = convertTerm(b, instr)
				break
			}
			blk.Lines = append(blk.Lines, render(instr))
		}
		out.Blocks = append(out.Blocks, blk)
	}
	return out
}

func blockName(b *ssa.BasicBlock) string {
	if b.Comment == "" {
		return fmt.Sprintf("%d", b.Index)
	}
	return fmt.Sprintf("%d.%s", b.Index, b.Comment)
}

func convertTerm(b *ssa.BasicBlock, instr ssa.Instruction) *ir.Terminator {
	var t *ir.Terminator
	switch instr.(type) {
	case *ssa.If:
		t = ir.CondBr(blockName(b.Succs[0]), blockName(b.Succs[1]))
	case *ssa.Jump:
		t = ir.Br(blockName(b.Succs[0]))
	case *ssa.Return:
		t = ir.Ret()
	case *ssa.Panic:
		t = ir.Unreachable()
	default:
		t = &ir.Terminator{Kind: ir.TermUnsupported}
	}
	t.Text = render(instr)
	return t
}

func render(instr ssa.Instruction) string {
	if v, ok := instr.(ssa.Value); ok && v.Name() != "" {
		return v.Name() + " = " + instr.String()
	}
	return instr.String()
}
