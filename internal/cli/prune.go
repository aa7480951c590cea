package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bundlex/bundlecache/internal/cache"
)

// newPruneCmd creates the prune command for evicting stale entries on demand.
func newPruneCmd() *cobra.Command {
	var (
		maxAge time.Duration
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Evict entries not accessed within the staleness threshold",
		Long: `Evicts every cache entry whose last-access marker is older than the
staleness threshold (or unparsable) from all four namespaces.

This is the same sweep the cache schedules for itself after startup,
run immediately and with a configurable threshold.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, _, err := openCache(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			threshold := maxAge
			if threshold <= 0 {
				threshold = cache.DefaultMaxAge
			}

			start := time.Now()
			removed, err := c.Prune(threshold, dryRun)
			if err != nil {
				return fmt.Errorf("prune failed after evicting %d entries: %w", removed, err)
			}

			logger.Debug().
				Int("removed", removed).
				Dur("elapsed", time.Since(start)).
				Msg("prune complete")

			if dryRun {
				cmd.Printf("Would evict %d entries (threshold %s)\n", removed, threshold)
			} else {
				cmd.Printf("Evicted %d entries (threshold %s)\n", removed, threshold)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "staleness threshold (default 720h)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be evicted without evicting")

	return cmd
}
