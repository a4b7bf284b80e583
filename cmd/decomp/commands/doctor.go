package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-decomp/internal/config"
	"github.com/l3aro/go-decomp/internal/healthcheck"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, cache and front-ends",
	Long: `Validates the effective configuration, opens the persisted summary cache
and checks that every front-end can run.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := effectiveConfigPath(cmd)
		result, err := healthcheck.Check(settings, configPath, configPath)
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}

		out := cmd.OutOrStdout()
		if jsonOutput(cmd) {
			if err := writeJSON(out, result); err != nil {
				return err
			}
		} else {
			if result.EffectivePath == "" {
				fmt.Fprintln(out, "Using config: defaults (no config file found)")
			} else {
				fmt.Fprintf(out, "Using config: %s (%s)\n", result.EffectivePath, result.EffectiveScope)
			}
			fmt.Fprintln(out)
			displayComponents(out, result)
		}

		if !result.OK() {
			return fmt.Errorf("health check failed: one or more components are not usable")
		}
		return nil
	},
}

// effectiveConfigPath is the file the settings came from: --config, then the
// project file, then the global one.
func effectiveConfigPath(cmd *cobra.Command) string {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return path
	}
	for _, path := range []string{config.ProjectConfigFilePath(), config.GlobalConfigFilePath()} {
		if fileExists(path) {
			return path
		}
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func displayComponents(out io.Writer, result *healthcheck.HealthCheckResult) {
	fmt.Fprintln(out, "Cache:")
	printComponent(out, result.Cache)

	fmt.Fprintln(out, "\nFront-ends:")
	for _, f := range result.Frontends {
		printComponent(out, f)
	}
}

func printComponent(out io.Writer, s healthcheck.ComponentStatus) {
	fmt.Fprintf(out, "  %s %s: %s", formatStatusIcon(s.Status), s.Name, s.Status)
	if s.Detail != "" {
		fmt.Fprintf(out, " (%s)", s.Detail)
	}
	fmt.Fprintln(out)
	if s.Error != "" {
		fmt.Fprintf(out, "    Error: %s\n", s.Error)
	}
}

func formatStatusIcon(status string) string {
	switch status {
	case healthcheck.StatusReady:
		return "✓"
	case healthcheck.StatusEmpty, healthcheck.StatusDisabled:
		return "○"
	case healthcheck.StatusStale:
		return "◐"
	case healthcheck.StatusError:
		return "✗"
	default:
		return "?"
	}
}

func init() {
	RootCmd.AddCommand(doctorCmd)
}
