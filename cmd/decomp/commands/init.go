package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/l3aro/go-decomp/internal/config"
	"github.com/l3aro/go-decomp/internal/healthcheck"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a decomp configuration interactively",
	Long: `Guides you through setting up decomp step by step: the input front-end,
parallelism, the summary cache and logging. Writes the result to the global
or the project config file and runs a health check on it.`,
	Args: cobra.NoArgs,
	// init must work when the existing config does not load
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInit()
	},
}

func positiveInt(s string) error {
	if n, err := strconv.Atoi(s); err != nil || n <= 0 {
		return fmt.Errorf("enter a positive number")
	}
	return nil
}

func nonNegativeInt(s string) error {
	if n, err := strconv.Atoi(s); err != nil || n < 0 {
		return fmt.Errorf("enter 0 or a positive number")
	}
	return nil
}

func runInit() error {
	cfg := config.DefaultConfig()

	// === SECTION 1: Inputs ===
	frontendChoice := string(cfg.Frontend)
	workers := strconv.Itoa(cfg.Workers)
	maxBlocks := strconv.Itoa(cfg.MaxBlocks)
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Front-end").
				Description("How input files are turned into functions").
				Options(
					huh.NewOption("Detect from the path", string(config.FrontendAuto)),
					huh.NewOption("LLVM IR (.ll)", string(config.FrontendLLVM)),
					huh.NewOption("Go packages via SSA", string(config.FrontendGoSSA)),
					huh.NewOption("Go source via tree-sitter", string(config.FrontendGoSrc)),
					huh.NewOption("YAML CFG fixtures", string(config.FrontendYAML)),
				).
				Value(&frontendChoice),
			huh.NewInput().
				Title("Workers").
				Description("Functions analysed concurrently").
				Validate(positiveInt).
				Value(&workers),
			huh.NewInput().
				Title("Block limit").
				Description("Skip functions with more blocks than this, 0 for no limit").
				Validate(nonNegativeInt).
				Value(&maxBlocks),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	// === SECTION 2: Cache ===
	cacheEnabled := cfg.CacheEnabled
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Summary cache").
				Description("Reuse results for functions that did not change between runs?").
				Affirmative("Yes").
				Negative("No").
				Value(&cacheEnabled),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	cacheDir := cfg.CacheDir
	cacheSize := strconv.Itoa(cfg.CacheSize)
	if cacheEnabled {
		form = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Cache directory").
					Placeholder(cfg.CacheDir).
					Value(&cacheDir),
				huh.NewInput().
					Title("Cache size").
					Description("Maximum number of cached function summaries").
					Validate(positiveInt).
					Value(&cacheSize),
			),
		)
		if err := form.Run(); err != nil {
			return fmt.Errorf("interactive prompt failed: %w", err)
		}
	}

	// === SECTION 3: Logging ===
	logLevel := cfg.LogLevel
	logJSON := cfg.LogJSON
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Log level").
				Options(
					huh.NewOption("Debug", "debug"),
					huh.NewOption("Info", "info"),
					huh.NewOption("Warn", "warn"),
					huh.NewOption("Error", "error"),
				).
				Value(&logLevel),
			huh.NewConfirm().
				Title("JSON logs").
				Description("Write logs as JSON lines instead of console text?").
				Value(&logJSON),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	// === SECTION 4: Config Location ===
	var saveLocationChoice string
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Save Configuration").
				Description("Where to save the configuration file?").
				Options(
					huh.NewOption("Project (./.decomp/config.yaml)", "project"),
					huh.NewOption("Global (~/.decomp/config.yaml)", "global"),
				).
				Value(&saveLocationChoice),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	configPath := config.ProjectConfigFilePath()
	if saveLocationChoice == "global" {
		configPath = config.GlobalConfigFilePath()
	}

	if _, err := os.Stat(configPath); err == nil {
		var overwrite bool
		form = huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title("Config file exists").
					Description(fmt.Sprintf("Overwrite existing config at %s?", configPath)).
					Affirmative("Overwrite").
					Negative("Cancel").
					Value(&overwrite),
			),
		)
		if err := form.Run(); err != nil {
			return fmt.Errorf("interactive prompt failed: %w", err)
		}
		if !overwrite {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	// === Build config struct ===
	cfg.Frontend = config.Frontend(frontendChoice)
	cfg.Workers, _ = strconv.Atoi(workers)
	cfg.MaxBlocks, _ = strconv.Atoi(maxBlocks)
	cfg.CacheEnabled = cacheEnabled
	if cacheEnabled {
		cfg.CacheDir = cacheDir
		cfg.CacheSize, _ = strconv.Atoi(cacheSize)
	}
	cfg.LogLevel = logLevel
	cfg.LogJSON = logJSON

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	fmt.Println("\n=== Configuration Preview ===")
	fmt.Printf("Config path: %s\n", configPath)
	fmt.Printf("Front-end: %s\n", cfg.Frontend)
	fmt.Printf("Workers: %d\n", cfg.Workers)
	if cfg.MaxBlocks > 0 {
		fmt.Printf("Block limit: %d\n", cfg.MaxBlocks)
	}
	if cfg.CacheEnabled {
		fmt.Printf("Cache: %s (%d entries)\n", cfg.CachePath(), cfg.CacheSize)
	} else {
		fmt.Println("Cache: disabled")
	}
	fmt.Printf("Log level: %s\n", cfg.LogLevel)
	fmt.Println("================================")

	if err := cfg.Save(configPath); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	fmt.Printf("Configuration saved to: %s\n", configPath)

	// === SECTION 5: Health Check ===
	fmt.Println("\n=== Running Health Check ===")

	loadedCfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("loading saved config: %w", err)
	}
	result, err := healthcheck.Check(loadedCfg, configPath, configPath)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	absPath, _ := filepath.Abs(configPath)
	fmt.Printf("\nConfig Scope: %s\n", result.SavedScope)
	fmt.Printf("Config Path: %s\n\n", absPath)
	displayComponents(os.Stdout, result)

	fmt.Println("\n=== Initialization Complete ===")
	return nil
}

func init() {
	RootCmd.AddCommand(initCmd)
}
