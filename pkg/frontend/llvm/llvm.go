// Package llvm loads LLVM IR assembly (.ll) into decomp's function shape.
package llvm

import (
	"context"
	"fmt"
	"strings"

	"github.com/llir/llvm/asm"
	lir "github.com/llir/llvm/ir"

	"github.com/l3aro/go-decomp/pkg/ir"
)

// Loader parses .ll files with llir/llvm.
type Loader struct{}

// Load parses the assembly file at path. Function declarations without a
// body are skipped.
func (Loader) Load(ctx context.Context, path string) (*ir.Module, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, err := asm.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	out := Convert(m)
	out.Name = path
	out.Source = path
	return out, nil
}

// Parse parses assembly held in memory. name is used in error messages.
func Parse(name, content string) (*ir.Module, error) {
	m, err := asm.ParseString(name, content)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", name, err)
	}
	out := Convert(m)
	out.Name = name
	return out, nil
}

// Convert maps every defined function of m.
func Convert(m *lir.Module) *ir.Module {
	out := &ir.Module{Name: m.SourceFilename}
	for _, f := range m.Funcs {
		if len(f.Blocks) == 0 {
			continue
		}
		out.Functions = append(out.Functions, convertFunc(f))
	}
	return out
}

func convertFunc(f *lir.Func) *ir.Function {
	fn := &ir.Function{Name: f.Name()}
	for _, b := range f.Blocks {
		blk := &ir.Block{Name: b.Name()}
		for _, inst := range b.Insts {
			blk.Lines = append(blk.Lines, strings.TrimSpace(inst.LLString()))
		}
		blk.Term = convertTerm(b.Term)
		fn.Blocks = append(fn.Blocks, blk)
	}
	return fn
}

func convertTerm(t lir.Terminator) *ir.Terminator {
	if t == nil {
		return nil
	}

	var out *ir.Terminator
	switch t := t.(type) {
	case *lir.TermRet:
		out = ir.Ret()
	case *lir.TermBr:
		out = ir.Br(blockName(t.Target))
	case *lir.TermCondBr:
		out = ir.CondBr(blockName(t.TargetTrue), blockName(t.TargetFalse))
	case *lir.TermSwitch:
		out = ir.Switch(blockName(t.TargetDefault))
		for _, c := range t.Cases {
			out.Cases = append(out.Cases, ir.Case{Value: ident(c.X), Target: blockName(c.Target)})
		}
	case *lir.TermIndirectBr:
		targets := make([]string, 0, len(t.ValidTargets))
		for _, v := range t.ValidTargets {
			targets = append(targets, blockName(v))
		}
		out = ir.IndirectBr(targets...)
	case *lir.TermUnreachable:
		out = ir.Unreachable()
	default:
		// invoke, callbr, resume and the EH pads
		out = &ir.Terminator{Kind: ir.TermUnsupported}
	}
	out.Text = strings.TrimSpace(t.LLString())
	return out
}

// blockName resolves a branch target to its block label.
func blockName(v any) string {
	if b, ok := v.(*lir.Block); ok {
		return b.Name()
	}
	return strings.TrimPrefix(ident(v), "%")
}

func ident(v any) string {
	if id, ok := v.(interface{ Ident() string }); ok {
		return id.Ident()
	}
	return fmt.Sprint(v)
}
