package decomp

import (
	"context"
	"errors"
	"fmt"

	"github.com/l3aro/go-decomp/pkg/graph"
)

// ErrorClass groups analysis failures by who has to act on them.
type ErrorClass string

const (
	ClassNone      ErrorClass = ""
	ClassMalformed ErrorClass = "malformed" // bad input IR
	ClassInternal  ErrorClass = "internal"  // analyzer defect
	ClassSkipped   ErrorClass = "skipped"   // over the configured block limit
	ClassCancelled ErrorClass = "cancelled"
	ClassOther     ErrorClass = "other"
)

// ErrSkipped marks functions left out by the block limit.
var ErrSkipped = errors.New("function skipped")

// Classify maps err onto an ErrorClass.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, graph.ErrMalformedInput):
		return ClassMalformed
	case errors.Is(err, graph.ErrInternalInvariant):
		return ClassInternal
	case errors.Is(err, ErrSkipped):
		return ClassSkipped
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ClassCancelled
	}
	return ClassOther
}

// PanicError is a panic recovered inside one of the analysis stages.
type PanicError struct {
	Function string
	Stage    string
	Value    any
	Stack    []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("function %s: panic in %s: %v", e.Function, e.Stage, e.Value)
}

// Is reports the error as an internal invariant violation.
func (e *PanicError) Is(target error) bool {
	return target == graph.ErrInternalInvariant
}

// SkippedError reports a function larger than the block limit.
type SkippedError struct {
	Function string
	Blocks   int
	Limit    int
}

func (e *SkippedError) Error() string {
	return fmt.Sprintf("function %s: %d blocks exceeds limit of %d", e.Function, e.Blocks, e.Limit)
}

func (e *SkippedError) Unwrap() error { return ErrSkipped }
