// Package config loads bundlecache settings from a YAML file with
// environment variable overrides, and owns the global logger setup.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Configuration constants and environment variables.
const (
	// DefaultConfigFileName is looked up inside the default directory.
	DefaultConfigFileName = "config.yaml"

	// DefaultDirName is the cache directory under the user home.
	DefaultDirName = ".bundlecache"

	// EnvDir overrides the cache directory.
	EnvDir = "BUNDLECACHE_DIR"

	// EnvPrefix overrides the key prefix.
	EnvPrefix = "BUNDLECACHE_PREFIX"

	// EnvMaxAge overrides the prune staleness threshold (duration
	// string, e.g. "720h").
	EnvMaxAge = "BUNDLECACHE_MAX_AGE"

	// EnvLogLevel overrides the log level.
	EnvLogLevel = "BUNDLECACHE_LOG_LEVEL"
)

// Config is the on-disk configuration for the bundlecache CLI.
type Config struct {
	// Roots are the absolute repository roots used for key derivation.
	Roots []string `yaml:"roots"`

	// Dir is the cache directory. Defaults to ~/.bundlecache.
	Dir string `yaml:"dir"`

	// Prefix namespaces keys within the shared store.
	Prefix string `yaml:"prefix"`

	// Prune holds sweep tuning.
	Prune PruneConfig `yaml:"prune"`

	// Logging holds logger settings.
	Logging LoggingConfig `yaml:"logging"`
}

// PruneConfig tunes the eviction sweep.
type PruneConfig struct {
	// MaxAge is the staleness threshold as a Go duration string.
	// Empty means the built-in 30 day default.
	MaxAge string `yaml:"max_age"`

	// BatchSize is entries classified per sweep batch (0 = default).
	BatchSize int `yaml:"batch_size"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	// Level is a zerolog level name ("debug", "info", ...).
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Dir:     DefaultDir(),
		Logging: LoggingConfig{Level: "info"},
	}
}

// DefaultDir returns ~/.bundlecache, falling back to a relative
// directory when the home directory cannot be resolved.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultDirName
	}
	return filepath.Join(home, DefaultDirName)
}

// Load reads the configuration file at path, then applies environment
// overrides. A missing file is not an error: defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = filepath.Join(DefaultDir(), DefaultConfigFileName)
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Fall through to env overrides with defaults.
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if uErr := yaml.Unmarshal(data, cfg); uErr != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, uErr)
		}
		if cfg.Dir == "" {
			cfg.Dir = DefaultDir()
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays BUNDLECACHE_* environment variables onto the
// loaded values. Environment wins over the file.
func (c *Config) applyEnv() {
	if v := os.Getenv(EnvDir); v != "" {
		c.Dir = v
	}
	if v := os.Getenv(EnvPrefix); v != "" {
		c.Prefix = v
	}
	if v := os.Getenv(EnvMaxAge); v != "" {
		c.Prune.MaxAge = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the parts of the configuration that fail loudly at
// startup rather than quietly at use time.
func (c *Config) Validate() error {
	if _, err := c.MaxAge(); err != nil {
		return err
	}
	if c.Prune.BatchSize < 0 {
		return fmt.Errorf("prune.batch_size cannot be negative, got %d", c.Prune.BatchSize)
	}
	for _, root := range c.Roots {
		if !filepath.IsAbs(root) {
			return fmt.Errorf("root %q must be an absolute path", root)
		}
	}
	return nil
}

// MaxAge parses the configured staleness threshold. Zero means "use
// the built-in default".
func (c *Config) MaxAge() (time.Duration, error) {
	if c.Prune.MaxAge == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Prune.MaxAge)
	if err != nil {
		return 0, fmt.Errorf("invalid prune.max_age %q: %w", c.Prune.MaxAge, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("prune.max_age must be positive, got %s", c.Prune.MaxAge)
	}
	return d, nil
}
