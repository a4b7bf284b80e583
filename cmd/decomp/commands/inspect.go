package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-decomp/pkg/decomp"
)

// view renders one function report. ok is false when the stage the view
// needs did not run.
type view func(rep *decomp.FunctionReport) (value any, text string, ok bool)

// inspect loads args[0], analyses the function named by args[1] or every
// function, and prints each with v. Per-function failures are reported and
// counted without stopping the others.
func inspect(cmd *cobra.Command, args []string, v view) error {
	ctx := cmd.Context()
	m, err := loadModule(ctx, args[0])
	if err != nil {
		return err
	}
	name := ""
	if len(args) > 1 {
		name = args[1]
	}
	fns, err := selectFunctions(m, name)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var values []any
	failed := 0
	for i, fn := range fns {
		rep := decomp.AnalyzeFunction(ctx, fn)
		value, text, ok := v(rep)
		if !ok {
			failed++
			logger.Error("analysis failed", "function", fn.Name, "error", rep.Err.Error())
			continue
		}
		if jsonOutput(cmd) {
			values = append(values, value)
			continue
		}
		if i > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprintf(out, "=== %s ===\n%s", fn.Name, text)
	}

	if jsonOutput(cmd) {
		if err := writeJSON(out, values); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d function(s) failed", failed, len(fns))
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}
