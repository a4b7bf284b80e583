package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Frontend names the loader used for input files.
type Frontend string

const (
	FrontendAuto  Frontend = "auto"
	FrontendLLVM  Frontend = "llvm"
	FrontendGoSSA Frontend = "gossa"
	FrontendGoSrc Frontend = "gosrc"
	FrontendYAML  Frontend = "yaml"
)

const defaultDirName = ".decomp"

// Config holds all configuration for decomp
type Config struct {
	// Frontend selects how input files are turned into functions
	Frontend Frontend `yaml:"frontend" env:"DECOMP_FRONTEND"`

	// Workers bounds how many functions are analysed concurrently
	Workers int `yaml:"workers" env:"DECOMP_WORKERS"`

	// MaxBlocks skips functions with more blocks than this, 0 for no limit
	MaxBlocks int `yaml:"max_blocks" env:"DECOMP_MAX_BLOCKS"`

	// Summary cache
	CacheEnabled bool   `yaml:"cache_enabled" env:"DECOMP_CACHE_ENABLED"`
	CacheDir     string `yaml:"cache_dir" env:"DECOMP_CACHE_DIR"`
	CacheSize    int    `yaml:"cache_size" env:"DECOMP_CACHE_SIZE"`

	// Logging
	LogLevel string `yaml:"log_level" env:"DECOMP_LOG_LEVEL"`
	LogJSON  bool   `yaml:"log_json" env:"DECOMP_LOG_JSON"`
	Color    bool   `yaml:"color" env:"DECOMP_COLOR"`

	// Exclude holds extra ignore patterns for directory scans
	Exclude []string `yaml:"exclude" env:"DECOMP_EXCLUDE"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Frontend:     FrontendAuto,
		Workers:      4,
		MaxBlocks:    0,
		CacheEnabled: true,
		CacheDir:     filepath.Join(defaultDirName, "cache"),
		CacheSize:    10000,
		LogLevel:     "info",
		LogJSON:      false,
		Color:        true,
	}
}

// GlobalConfigFilePath returns the global config file path (~/.decomp/config.yaml)
func GlobalConfigFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(defaultDirName, "config.yaml")
	}
	return filepath.Join(home, defaultDirName, "config.yaml")
}

// ProjectConfigFilePath returns the project-level config file path (./.decomp/config.yaml)
func ProjectConfigFilePath() string {
	return filepath.Join(defaultDirName, "config.yaml")
}

// Load reads configuration with the following priority (highest to lowest):
// 1. Environment variables, including those from ./.env
// 2. Project-level config (./.decomp/config.yaml)
// 3. Global config (~/.decomp/config.yaml)
// 4. Defaults
func Load() (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range []string{GlobalConfigFilePath(), ProjectConfigFilePath()} {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile reads configuration from a specific YAML file path
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	if data, err := os.ReadFile(path); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv exports variables from a dotenv file without overriding the
// real environment. A missing file is fine.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	return nil
}

// Save writes the configuration to the specified YAML file path.
// It creates parent directories if they don't exist.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return nil
}

// CachePath is the file the summary cache persists to.
func (c *Config) CachePath() string {
	return filepath.Join(c.CacheDir, "summaries.msgpack")
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DECOMP_FRONTEND"); v != "" {
		cfg.Frontend = Frontend(v)
	}
	if v := os.Getenv("DECOMP_WORKERS"); v != "" {
		if i := parseInt(v); i > 0 {
			cfg.Workers = i
		}
	}
	if v := os.Getenv("DECOMP_MAX_BLOCKS"); v != "" {
		if i := parseInt(v); i >= 0 {
			cfg.MaxBlocks = i
		}
	}
	if v := os.Getenv("DECOMP_CACHE_ENABLED"); v != "" {
		cfg.CacheEnabled = parseBool(v)
	}
	if v := os.Getenv("DECOMP_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}
	if v := os.Getenv("DECOMP_CACHE_SIZE"); v != "" {
		if i := parseInt(v); i > 0 {
			cfg.CacheSize = i
		}
	}
	if v := os.Getenv("DECOMP_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DECOMP_LOG_JSON"); v != "" {
		cfg.LogJSON = parseBool(v)
	}
	if v := os.Getenv("DECOMP_COLOR"); v != "" {
		cfg.Color = parseBool(v)
	}
	if os.Getenv("NO_COLOR") != "" {
		cfg.Color = false
	}
	if v := os.Getenv("DECOMP_EXCLUDE"); v != "" {
		cfg.Exclude = nil
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.Exclude = append(cfg.Exclude, p)
			}
		}
	}
}

// Validate checks that the configuration has valid required fields
func (c *Config) Validate() error {
	switch c.Frontend {
	case FrontendAuto, FrontendLLVM, FrontendGoSSA, FrontendGoSrc, FrontendYAML:
	default:
		return fmt.Errorf("invalid frontend: %s (must be auto, llvm, gossa, gosrc or yaml)", c.Frontend)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if c.MaxBlocks < 0 {
		return fmt.Errorf("max_blocks must be non-negative")
	}
	if c.CacheEnabled {
		if c.CacheDir == "" {
			return fmt.Errorf("cache_dir is required when cache_enabled is true")
		}
		if c.CacheSize <= 0 {
			return fmt.Errorf("cache_size must be positive")
		}
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log_level: %s", c.LogLevel)
	}
	return nil
}

// parseInt attempts to parse a string as int, -1 on failure
func parseInt(s string) int {
	var i int
	if _, err := fmt.Sscanf(s, "%d", &i); err != nil {
		return -1
	}
	return i
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}
