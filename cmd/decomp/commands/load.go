package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/l3aro/go-decomp/internal/config"
	"github.com/l3aro/go-decomp/internal/scanner"
	"github.com/l3aro/go-decomp/pkg/frontend"
	"github.com/l3aro/go-decomp/pkg/ir"
)

// loadModule reads one input with the configured front-end.
func loadModule(ctx context.Context, path string) (*ir.Module, error) {
	m, err := frontend.Load(ctx, settings.Frontend, path)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	logger.Debug("module loaded", "path", path, "module", m.Name, "functions", len(m.Functions))
	return m, nil
}

// selectFunctions returns the function named name, or every function when
// name is empty.
func selectFunctions(m *ir.Module, name string) ([]*ir.Function, error) {
	if name == "" {
		return m.Functions, nil
	}
	if fn := m.Function(name); fn != nil {
		return []*ir.Function{fn}, nil
	}
	if suggestions := similarFunctions(m, name); len(suggestions) > 0 {
		return nil, fmt.Errorf("function %q not found in %s\nDid you mean: %s?", name, m.Name, strings.Join(suggestions, ", "))
	}
	return nil, fmt.Errorf("function %q not found in %s", name, m.Name)
}

// similarFunctions finds functions whose names contain name, ignoring case.
func similarFunctions(m *ir.Module, name string) []string {
	lower := strings.ToLower(name)
	var out []string
	for _, fn := range m.Functions {
		if strings.Contains(strings.ToLower(fn.Name), lower) {
			out = append(out, fn.Name)
		}
	}
	sort.Strings(out)
	return out
}

// input is one thing to load: a file with its front-end, or a Go package
// pattern.
type input struct {
	path string
	kind config.Frontend
}

// collectInputs expands the command line into loadable inputs. Package
// patterns and everything under an explicit gossa front-end are loaded as
// packages; other paths are scanned for files.
func collectInputs(paths []string) ([]input, error) {
	var out []input
	var roots []string
	for _, p := range paths {
		if settings.Frontend == config.FrontendGoSSA || strings.Contains(p, "...") {
			out = append(out, input{path: p, kind: config.FrontendGoSSA})
			continue
		}
		roots = append(roots, p)
	}
	if len(roots) == 0 {
		return out, nil
	}

	files, err := scanner.ScanAll(roots, scanner.OptionsFromConfig(settings))
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if settings.Frontend != config.FrontendAuto && settings.Frontend != f.Kind {
			continue
		}
		out = append(out, input{path: f.FullPath, kind: f.Kind})
	}
	return out, nil
}
