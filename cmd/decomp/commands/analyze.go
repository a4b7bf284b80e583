package commands

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-decomp/internal/config"
	"github.com/l3aro/go-decomp/pkg/decomp"
	"github.com/l3aro/go-decomp/pkg/dirty"
)

// analyzeResult is the JSON output of the analyze command.
type analyzeResult struct {
	Modules []moduleResult `json:"modules"`
	Failed  int            `json:"failed"`
	Skipped int            `json:"unchanged,omitempty"`
	Cache   *cacheResult   `json:"cache,omitempty"`
}

type moduleResult struct {
	Path       string           `json:"path"`
	Module     string           `json:"module"`
	RunID      string           `json:"run_id"`
	DurationMS int64            `json:"duration_ms"`
	Functions  []decomp.Summary `json:"functions"`
	Error      string           `json:"error,omitempty"`
}

type cacheResult struct {
	Entries int     `json:"entries"`
	HitRate float64 `json:"hit_rate"`
}

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze <path>...",
	Short: "Analyse files and directories in parallel",
	Long: `Scans the given files and directories for .ll, .go and .cfg.yaml inputs,
or loads Go package patterns such as ./..., and recovers the structure of
every function. Results are cached by function fingerprint across runs.
With --changed, files that did not change since their last clean run are
skipped.

Exits with an error when any function fails; functions that only leave
irreducible regions are reported but do not fail the run.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAnalyze(cmd, args)
	},
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	start := time.Now()

	inputs, err := collectInputs(args)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return fmt.Errorf("no analysable inputs under %s", strings.Join(args, ", "))
	}

	onlyChanged, _ := cmd.Flags().GetBool("changed")
	if onlyChanged && !settings.CacheEnabled {
		return fmt.Errorf("--changed needs the cache")
	}

	analyzer := decomp.NewAnalyzer(settings, logger)
	var tracker *dirty.Tracker
	if settings.CacheEnabled {
		c, err := decomp.OpenSummaryCache(settings.CachePath(), settings.CacheSize)
		if err != nil {
			logger.Warn("starting with an empty cache", "error", err.Error())
		}
		analyzer.Cache = c

		tracker, err = dirty.Open(filepath.Join(settings.CacheDir, dirty.DefaultStateFile))
		if err != nil {
			logger.Warn("starting without input state", "error", err.Error())
		}
	}

	result := &analyzeResult{}
	for _, in := range inputs {
		// packages span many files and are always analysed
		tracked := tracker != nil && in.kind != config.FrontendGoSSA
		if tracked && onlyChanged {
			changed, err := tracker.Changed(ctx, in.path)
			if err != nil {
				return err
			}
			if !changed {
				logger.Debug("unchanged, skipped", "path", in.path)
				result.Skipped++
				continue
			}
		}

		mr := moduleResult{Path: in.path}
		m, err := loadModule(ctx, in.path)
		if err != nil {
			// a file that does not load fails the run but not the others
			logger.Error("load failed", "path", in.path, "error", err.Error())
			mr.Error = err.Error()
			result.Failed++
			result.Modules = append(result.Modules, mr)
			if tracked {
				tracker.Forget(in.path)
			}
			continue
		}

		rep, err := analyzer.AnalyzeModule(ctx, m)
		if err != nil {
			return err
		}
		mr.Module = rep.Module
		mr.RunID = rep.RunID.String()
		mr.DurationMS = rep.Duration.Milliseconds()
		mr.Functions = rep.Summaries()
		result.Failed += len(rep.Failed())
		result.Modules = append(result.Modules, mr)

		if tracked {
			if len(rep.Failed()) == 0 {
				if err := tracker.Record(in.path); err != nil {
					logger.Warn("input state not recorded", "path", in.path, "error", err.Error())
				}
			} else {
				tracker.Forget(in.path)
			}
		}
	}

	if analyzer.Cache != nil {
		result.Cache = &cacheResult{Entries: analyzer.Cache.Len(), HitRate: analyzer.Cache.HitRate()}
		if err := analyzer.Cache.PersistToFile(settings.CachePath()); err != nil {
			logger.Warn("cache not saved", "path", settings.CachePath(), "error", err.Error())
		}
	}
	if tracker != nil {
		if err := tracker.Save(); err != nil {
			logger.Warn("input state not saved", "error", err.Error())
		}
	}
	logger.Info("analysis finished",
		"inputs", len(inputs),
		"unchanged", result.Skipped,
		"failed", result.Failed,
		"duration", time.Since(start).String(),
	)

	out := cmd.OutOrStdout()
	if jsonOutput(cmd) {
		if err := writeJSON(out, result); err != nil {
			return err
		}
	} else {
		printAnalyzeTable(out, result)
	}

	if result.Failed > 0 {
		return fmt.Errorf("%d failure(s)", result.Failed)
	}
	return nil
}

func printAnalyzeTable(out io.Writer, result *analyzeResult) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MODULE\tFUNCTION\tBLOCKS\tPRIMITIVES\tSTATUS")
	var functions, irreducible int
	for _, m := range result.Modules {
		if m.Error != "" {
			fmt.Fprintf(w, "%s\t-\t-\t-\tload error: %s\n", m.Path, m.Error)
			continue
		}
		for _, s := range m.Functions {
			functions++
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", m.Module, s.Function, s.Blocks, s.PrimitiveCount(), status(s))
			if !s.Failed() && !s.Reducible {
				irreducible++
			}
		}
	}
	w.Flush()

	fmt.Fprintf(out, "\n%d module(s), %d function(s), %d with residue, %d failure(s)\n",
		len(result.Modules), functions, irreducible, result.Failed)
	if result.Skipped > 0 {
		fmt.Fprintf(out, "%d unchanged input(s) skipped\n", result.Skipped)
	}
	if result.Cache != nil {
		fmt.Fprintf(out, "cache: %d entries, %.0f%% hit rate\n", result.Cache.Entries, result.Cache.HitRate*100)
	}
}

func status(s decomp.Summary) string {
	switch {
	case s.Failed():
		return fmt.Sprintf("%s: %s", s.ErrorClass, s.Error)
	case s.Reducible:
		return "structured"
	}
	var parts []string
	if s.Irreducible > 0 {
		parts = append(parts, fmt.Sprintf("%d irreducible", s.Irreducible))
	}
	if s.Unstructured > 0 {
		parts = append(parts, fmt.Sprintf("%d unstructured", s.Unstructured))
	}
	return strings.Join(parts, ", ")
}

func init() {
	analyzeCmd.Flags().Bool("changed", false, "Skip files unchanged since their last clean run")
	RootCmd.AddCommand(analyzeCmd)
}
