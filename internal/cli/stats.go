package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newStatsCmd creates the stats command for inspecting cache contents.
func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show per-namespace entry counts and store size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, cfg, err := openCache(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			st, err := c.Stats()
			if err != nil {
				return fmt.Errorf("failed to gather stats: %w", err)
			}

			cmd.Printf("Cache: %s\n", cfg.Dir)
			cmd.Printf("  codes:      %d\n", st.Codes)
			cmd.Printf("  hashes:     %d\n", st.Hashes)
			cmd.Printf("  sourceMaps: %d\n", st.SourceMaps)
			cmd.Printf("  atimes:     %d\n", st.Atimes)
			cmd.Printf("  size:       %s\n", formatBytes(st.SizeBytes))

			return nil
		},
	}
}

// formatBytes renders a byte count in a human-readable unit.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
