// Package ir defines the function shape consumed by control-flow recovery.
//
// Front-ends translate their own representation (LLVM IR, Go SSA, Go source)
// into these types. Only block identity and the edge-producing shape of each
// terminator matter; instructions are carried as opaque lines for display.
package ir

import "fmt"

// TermKind identifies the edge-producing shape of a terminator.
type TermKind uint8

const (
	TermNone        TermKind = iota // missing terminator
	TermBr                          // unconditional branch
	TermCondBr                      // two-way conditional branch (true, false)
	TermSwitch                      // multi-way switch with default
	TermIndirectBr                  // computed branch over a fixed target list
	TermRet                         // return from the function
	TermUnreachable                 // control never continues
	TermUnsupported                 // terminator the analysis cannot model
)

var termNames = [...]string{
	TermNone:        "none",
	TermBr:          "br",
	TermCondBr:      "condbr",
	TermSwitch:      "switch",
	TermIndirectBr:  "indirectbr",
	TermRet:         "ret",
	TermUnreachable: "unreachable",
	TermUnsupported: "unsupported",
}

func (k TermKind) String() string {
	if int(k) < len(termNames) {
		return termNames[k]
	}
	return fmt.Sprintf("TermKind(%d)", k)
}

// ParseTermKind maps a terminator name back to its kind.
func ParseTermKind(s string) (TermKind, error) {
	for k, name := range termNames {
		if name == s {
			return TermKind(k), nil
		}
	}
	return TermNone, fmt.Errorf("unknown terminator kind %q", s)
}

// Case is one arm of a switch terminator.
type Case struct {
	Value  string
	Target string
}

// Terminator describes how control leaves a block.
type Terminator struct {
	Kind TermKind

	// Targets holds the branch destinations: one for Br, [true, false] for
	// CondBr, the valid destinations for IndirectBr.
	Targets []string

	// Cases and Default are used by Switch only.
	Cases   []Case
	Default string

	// Text is the front-end's rendering of the terminator instruction.
	Text string
}

// Br returns an unconditional branch to target.
func Br(target string) *Terminator {
	return &Terminator{Kind: TermBr, Targets: []string{target}}
}

// CondBr returns a conditional branch.
func CondBr(ifTrue, ifFalse string) *Terminator {
	return &Terminator{Kind: TermCondBr, Targets: []string{ifTrue, ifFalse}}
}

// Switch returns a multi-way branch.
func Switch(def string, cases ...Case) *Terminator {
	return &Terminator{Kind: TermSwitch, Default: def, Cases: cases}
}

// IndirectBr returns a computed branch over targets.
func IndirectBr(targets ...string) *Terminator {
	return &Terminator{Kind: TermIndirectBr, Targets: targets}
}

// Ret returns a return terminator.
func Ret() *Terminator {
	return &Terminator{Kind: TermRet}
}

// Unreachable returns an unreachable terminator.
func Unreachable() *Terminator {
	return &Terminator{Kind: TermUnreachable}
}

// Destinations lists every block the terminator may transfer to, in
// terminator order. Switch lists its cases before the default.
func (t *Terminator) Destinations() []string {
	if t == nil {
		return nil
	}
	switch t.Kind {
	case TermSwitch:
		dests := make([]string, 0, len(t.Cases)+1)
		for _, c := range t.Cases {
			dests = append(dests, c.Target)
		}
		if t.Default != "" {
			dests = append(dests, t.Default)
		}
		return dests
	default:
		return append([]string(nil), t.Targets...)
	}
}

// Block is a basic block: a label, opaque instruction text, and a terminator.
type Block struct {
	Name  string
	Lines []string
	Term  *Terminator
}

// Function is an ordered list of blocks; the first block is the entry.
type Function struct {
	Name   string
	Blocks []*Block
}

// Entry returns the entry block, or nil for a function without blocks.
func (f *Function) Entry() *Block {
	if len(f.Blocks) == 0 {
		return nil
	}
	return f.Blocks[0]
}

// Block looks up a block by name.
func (f *Function) Block(name string) *Block {
	for _, b := range f.Blocks {
		if b.Name == name {
			return b
		}
	}
	return nil
}

// Module groups the functions loaded from one input.
type Module struct {
	Name      string
	Source    string
	Functions []*Function
}

// Function looks up a function by name.
func (m *Module) Function(name string) *Function {
	for _, f := range m.Functions {
		if f.Name == name {
			return f
		}
	}
	return nil
}
