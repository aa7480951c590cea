// Package cli implements the bundlecache maintenance commands.
package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bundlex/bundlecache/internal/cache"
	"github.com/bundlex/bundlecache/internal/config"
)

// logger is the package-level logger for CLI operations.
var logger zerolog.Logger //nolint:gochecknoglobals // Required for zerolog context integration

// NewRootCmd creates the root Cobra command for the bundlecache CLI.
// It wires up logging and the maintenance subcommands (stats, prune,
// get, clear).
func NewRootCmd(ver string) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "bundlecache",
		Short:   "Inspect and maintain the bundle optimizer's artifact cache",
		Long:    "bundlecache: inspect, prune, and clear the on-disk cache of compiled bundle artifacts",
		Version: ver,
		Example: `  # Show per-namespace entry counts
  bundlecache stats

  # Evict entries untouched for more than 30 days
  bundlecache prune

  # See what a 7-day prune would evict, without evicting
  bundlecache prune --max-age 168h --dry-run`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return setupLogging(cmd)
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	cmd.PersistentFlags().String("config", "", "config file path (default ~/.bundlecache/config.yaml)")
	cmd.PersistentFlags().String("dir", "", "cache directory (overrides config)")
	cmd.PersistentFlags().String("prefix", "", "cache key prefix (overrides config)")

	cmd.AddCommand(newStatsCmd(), newPruneCmd(), newGetCmd(), newClearCmd())

	return cmd
}

// setupLogging configures the global logger from config file, environment,
// and CLI flags. --debug wins over everything else.
func setupLogging(cmd *cobra.Command) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	if initErr := config.InitLogger(cfg.Logging.Level, ""); initErr != nil {
		return initErr
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		config.SetLogLevel("debug")
	}
	logger = config.GetLogger().With().Str("component", "cli").Logger()

	return nil
}

// loadConfig resolves the effective configuration for a command,
// applying the --dir and --prefix flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
		cfg.Dir = dir
	}
	if prefix, _ := cmd.Flags().GetString("prefix"); prefix != "" {
		cfg.Prefix = prefix
	}

	return cfg, nil
}

// openCache opens the cache described by the effective configuration.
// Commands that only inspect the store still go through the full cache
// so key derivation matches what the build pipeline sees.
func openCache(cmd *cobra.Command) (*cache.Cache, *config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}

	roots := cfg.Roots
	if len(roots) == 0 {
		// Fall back to the working directory so inspection commands
		// work without a config file.
		wd, wdErr := filepath.Abs(".")
		if wdErr != nil {
			return nil, nil, fmt.Errorf("failed to resolve working directory: %w", wdErr)
		}
		roots = []string{wd}
	}

	maxAge, err := cfg.MaxAge()
	if err != nil {
		return nil, nil, err
	}

	c, err := cache.New(cache.Config{
		Roots:  roots,
		Dir:    cfg.Dir,
		Prefix: cfg.Prefix,
		MaxAge: maxAge,
		// The CLI is short-lived; never let the background sweep race
		// an explicit command.
		PruneDelay:     time.Hour,
		PruneBatchSize: cfg.Prune.BatchSize,
	})
	if err != nil {
		return nil, nil, err
	}

	return c, cfg, nil
}
