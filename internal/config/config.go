// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultSourceDir     = "../docs"
	DefaultOutputDir     = "build"
	DefaultSourceBaseURL = "https://github.com/lenra-io/lenra_cli/blob/beta/"
	DefaultIndexName     = "index"
	DefaultConcurrency   = 32

	// RepoRootAuto asks the builder to locate the enclosing git worktree.
	RepoRootAuto = "auto"
)

// Environment variables that override values read from the config file.
const (
	EnvSourceDir     = "DOCPAGES_SOURCE_DIR"
	EnvOutputDir     = "DOCPAGES_OUTPUT_DIR"
	EnvSourceBaseURL = "DOCPAGES_SOURCE_BASE_URL"
	EnvLogLevel      = "DOCPAGES_LOG_LEVEL"
	EnvConcurrency   = "DOCPAGES_CONCURRENCY"
)

// Config holds the configuration from the docpages.yaml file.
type Config struct {
	SourceDir     string `yaml:"source_dir"`
	OutputDir     string `yaml:"output_dir"`
	SourceBaseURL string `yaml:"source_base_url"`
	IndexName     string `yaml:"index_name"`
	// RepoRoot controls how sourceFile paths are made repository-relative:
	// empty strips leading "../" segments, "auto" discovers the git worktree,
	// anything else is used as the root directory.
	RepoRoot    string `yaml:"repo_root"`
	Sanitize    bool   `yaml:"sanitize"`
	EditML      bool   `yaml:"editml"`
	Concurrency int    `yaml:"concurrency"`
	LogLevel    string `yaml:"log_level"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		SourceDir:     DefaultSourceDir,
		OutputDir:     DefaultOutputDir,
		SourceBaseURL: DefaultSourceBaseURL,
		IndexName:     DefaultIndexName,
		Concurrency:   DefaultConcurrency,
		LogLevel:      "info",
	}
}

// Load reads the config file at path on top of the defaults. A missing file
// is not an error. Values from the environment (and an optional .env file in
// the working directory) take precedence over the file.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("could not read config file at %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("could not parse config file %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("could not load .env: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvSourceDir); v != "" {
		c.SourceDir = v
	}
	if v := os.Getenv(EnvOutputDir); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv(EnvSourceBaseURL); v != "" {
		c.SourceBaseURL = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvConcurrency); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvConcurrency, v, err)
		}
		c.Concurrency = n
	}
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if strings.TrimSpace(c.SourceDir) == "" {
		return errors.New("source_dir must not be empty")
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		return errors.New("output_dir must not be empty")
	}
	if c.IndexName == "" {
		return errors.New("index_name must not be empty")
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	return nil
}

// Marshal renders the config as YAML, used when scaffolding a new project.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
