package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newClearCmd creates the clear command for dropping the whole cache.
func newClearCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every entry from all namespaces",
		Long: `Drops every entry from all four namespaces. The store file itself is
kept; the build pipeline repopulates it on the next run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear the cache without --yes")
			}

			c, cfg, err := openCache(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			if err := c.Clear(); err != nil {
				return err
			}

			logger.Info().Str("dir", cfg.Dir).Msg("cache cleared")
			cmd.Printf("Cleared cache at %s\n", cfg.Dir)
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm clearing the cache")

	return cmd
}
