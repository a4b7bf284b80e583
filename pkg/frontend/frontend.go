// Package frontend turns input files into ir modules. Each kind of input has
// its own loader; Detect picks one from the path.
package frontend

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/l3aro/go-decomp/internal/config"
	"github.com/l3aro/go-decomp/pkg/frontend/gossa"
	"github.com/l3aro/go-decomp/pkg/frontend/gosrc"
	"github.com/l3aro/go-decomp/pkg/frontend/llvm"
	"github.com/l3aro/go-decomp/pkg/ir"
)

// ErrUnknownFrontend is returned for a kind with no loader or a path whose
// kind cannot be detected.
var ErrUnknownFrontend = errors.New("unknown frontend")

// Loader reads one input into a module.
type Loader interface {
	Load(ctx context.Context, path string) (*ir.Module, error)
}

// YAMLLoader reads CFG fixtures written in the ir YAML layout.
type YAMLLoader struct{}

// Load implements Loader.
func (YAMLLoader) Load(ctx context.Context, path string) (*ir.Module, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return ir.LoadYAML(path)
}

// ForKind returns the loader for kind. FrontendAuto is not a loader; resolve
// it with Detect first.
func ForKind(kind config.Frontend) (Loader, error) {
	switch kind {
	case config.FrontendLLVM:
		return llvm.Loader{}, nil
	case config.FrontendGoSSA:
		return gossa.Loader{}, nil
	case config.FrontendGoSrc:
		return gosrc.Loader{}, nil
	case config.FrontendYAML:
		return YAMLLoader{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFrontend, kind)
}

// Detect guesses the front-end from a path: .ll files are LLVM, .go files
// are Go source, .yaml/.yml files are fixtures, and directories or package
// patterns go through Go SSA.
func Detect(path string) (config.Frontend, error) {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".ll"):
		return config.FrontendLLVM, nil
	case strings.HasSuffix(lower, ".go"):
		return config.FrontendGoSrc, nil
	case strings.HasSuffix(lower, ".yaml"), strings.HasSuffix(lower, ".yml"):
		return config.FrontendYAML, nil
	case strings.Contains(path, "..."):
		return config.FrontendGoSSA, nil
	}
	if st, err := os.Stat(path); err == nil && st.IsDir() {
		return config.FrontendGoSSA, nil
	}
	return "", fmt.Errorf("%w: cannot detect input kind of %s", ErrUnknownFrontend, path)
}

// Load reads path with the loader for kind, detecting the kind when it is
// FrontendAuto or empty.
func Load(ctx context.Context, kind config.Frontend, path string) (*ir.Module, error) {
	if kind == "" || kind == config.FrontendAuto {
		detected, err := Detect(path)
		if err != nil {
			return nil, err
		}
		kind = detected
	}
	l, err := ForKind(kind)
	if err != nil {
		return nil, err
	}
	return l.Load(ctx, path)
}
