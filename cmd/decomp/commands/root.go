// Package commands provides the CLI commands for the decomp tool.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-decomp/internal/config"
	"github.com/l3aro/go-decomp/internal/log"
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "decomp",
	Short: "decomp - Recover structured control flow from basic-block graphs",
	Long: `decomp reads functions from LLVM IR, Go packages, Go source or YAML
fixtures and recovers sequences, conditionals, loops and switches from their
control-flow graphs.

Commands:
  cfg         Print control-flow graphs
  prims       Print the primitives found by structural analysis
  groups      Print the recovered structure trees
  analyze     Analyse files and directories in parallel
  init        Create a configuration file interactively
  doctor      Check configuration, cache and front-ends
  version     Print version information

Use "decomp [command] --help" for more information about a command.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

var (
	// settings is the effective configuration after flags are applied.
	settings *config.Config
	logger   log.Logger = log.Default()
)

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return RootCmd.Execute()
}

// setup loads the configuration, applies flag overrides and builds the
// logger.
func setup(cmd *cobra.Command, args []string) error {
	var err error
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		settings, err = config.LoadFromFile(path)
	} else {
		settings, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("frontend") {
		v, _ := flags.GetString("frontend")
		settings.Frontend = config.Frontend(v)
	}
	if flags.Changed("workers") {
		settings.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("max-blocks") {
		settings.MaxBlocks, _ = flags.GetInt("max-blocks")
	}
	if flags.Changed("log-level") {
		settings.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-json") {
		settings.LogJSON, _ = flags.GetBool("log-json")
	}
	if noCache, _ := flags.GetBool("no-cache"); noCache {
		settings.CacheEnabled = false
	}
	if err := settings.Validate(); err != nil {
		return err
	}

	level, err := log.ParseLevel(settings.LogLevel)
	if err != nil {
		return err
	}
	logger = log.New(log.LoggerConfig{
		Level:      level,
		JSONOutput: settings.LogJSON,
		NoColor:    !settings.Color,
	})
	return nil
}

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func init() {
	pf := RootCmd.PersistentFlags()
	pf.String("config", "", "Config file path (default: project, then global config)")
	pf.String("frontend", "", "Input front-end: auto, llvm, gossa, gosrc or yaml")
	pf.BoolP("json", "j", false, "Output as JSON")
	pf.Int("workers", 0, "Functions analysed concurrently")
	pf.Int("max-blocks", 0, "Skip functions with more blocks than this")
	pf.String("log-level", "", "Log level: debug, info, warn or error")
	pf.Bool("log-json", false, "Log as JSON lines")
	pf.Bool("no-cache", false, "Do not read or write the summary cache")
}
