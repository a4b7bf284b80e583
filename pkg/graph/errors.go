package graph

import "errors"

// Error categories. Typed errors from the analysis packages match one of
// these with errors.Is so callers can tell bad input from analyzer defects.
var (
	// ErrMalformedInput marks a function that cannot be turned into a CFG.
	ErrMalformedInput = errors.New("malformed input")

	// ErrInternalInvariant marks a violated analysis invariant.
	ErrInternalInvariant = errors.New("internal invariant violation")
)

var (
	ErrDuplicateEdge = errors.New("duplicate edge")
	ErrUnknownNode   = errors.New("unknown node")
)
