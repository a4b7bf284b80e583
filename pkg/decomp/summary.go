package decomp

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strconv"

	"github.com/l3aro/go-decomp/pkg/cfa"
	"github.com/l3aro/go-decomp/pkg/ir"
)

// fingerprintVersion changes whenever analysis output for the same input
// may change, so stale cache entries stop matching.
const fingerprintVersion = "decomp-summary-v1"

// Summary is the serializable digest of one function's analysis.
type Summary struct {
	Function     string         `json:"function" msgpack:"function"`
	Fingerprint  string         `json:"fingerprint" msgpack:"fingerprint"`
	Blocks       int            `json:"blocks" msgpack:"blocks"`
	Edges        int            `json:"edges" msgpack:"edges"`
	Primitives   map[string]int `json:"primitives,omitempty" msgpack:"primitives,omitempty"`
	Reducible    bool           `json:"reducible" msgpack:"reducible"`
	Irreducible  int            `json:"irreducible_regions" msgpack:"irreducible_regions"`
	Unstructured int            `json:"unstructured_regions" msgpack:"unstructured_regions"`
	Structure    string         `json:"structure,omitempty" msgpack:"structure,omitempty"`
	Error        string         `json:"error,omitempty" msgpack:"error,omitempty"`
	ErrorClass   ErrorClass     `json:"error_class,omitempty" msgpack:"error_class,omitempty"`
}

// Failed reports whether the analysis ended in an error.
func (s Summary) Failed() bool {
	return s.Error != ""
}

// PrimitiveCount is the total number of primitives found.
func (s Summary) PrimitiveCount() int {
	n := 0
	for _, c := range s.Primitives {
		n += c
	}
	return n
}

// Fingerprint hashes everything about fn the analysis depends on: block
// names, instruction lines and terminator shapes. The function name is not
// part of it.
func Fingerprint(fn *ir.Function) string {
	h := sha256.New()
	field := func(w io.Writer, s string) {
		io.WriteString(w, strconv.Itoa(len(s)))
		io.WriteString(w, ":")
		io.WriteString(w, s)
	}

	field(h, fingerprintVersion)
	for _, b := range fn.Blocks {
		field(h, "block")
		field(h, b.Name)
		for _, l := range b.Lines {
			field(h, l)
		}
		if b.Term == nil {
			field(h, "noterm")
			continue
		}
		field(h, b.Term.Kind.String())
		field(h, b.Term.Text)
		for _, t := range b.Term.Targets {
			field(h, t)
		}
		for _, c := range b.Term.Cases {
			field(h, c.Value)
			field(h, c.Target)
		}
		field(h, b.Term.Default)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// summarize fills the summary of a finished report.
func summarize(r *FunctionReport) Summary {
	s := Summary{
		Function:    r.Function,
		Fingerprint: r.Fingerprint,
	}
	if r.CFG != nil {
		s.Blocks = r.CFG.Len()
		s.Edges = len(r.CFG.Edges())
	}
	if r.Result != nil {
		s.Reducible = r.Result.Reducible()
		s.Primitives = make(map[string]int)
		for _, p := range r.Result.Primitives {
			s.Primitives[p.Kind().String()]++
		}
		for _, reg := range r.Result.Residue {
			if reg.Kind == cfa.Irreducible {
				s.Irreducible++
			} else {
				s.Unstructured++
			}
		}
	}
	if r.Tree != nil {
		s.Structure = r.Tree.String()
	}
	if r.Err != nil {
		s.Error = r.Err.Error()
		s.ErrorClass = Classify(r.Err)
	}
	return s
}
