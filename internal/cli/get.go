package cli

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/bundlex/bundlecache/internal/hashutil"
)

// newGetCmd creates the get command for inspecting a single entry.
func newGetCmd() *cobra.Command {
	var showCode bool

	cmd := &cobra.Command{
		Use:   "get <path>",
		Short: "Show the cached artifacts for a source file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := openCache(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			path := args[0]
			cmd.Printf("key: %s\n", c.Key(path))

			if hash, ok := c.GetFileHash(path); ok {
				cmd.Printf("hash: %s\n", hash)
				// When the source file is reachable, say whether the
				// cached artifacts are still current.
				if _, statErr := os.Stat(path); statErr == nil {
					if current, hErr := hashutil.FileHash(path); hErr == nil {
						if current == hash {
							cmd.Println("state: current")
						} else {
							cmd.Printf("state: stale (file is now %s)\n", current)
						}
					}
				}
			} else {
				cmd.Println("hash: (miss)")
			}

			if code, ok := c.GetCode(path); ok {
				if showCode {
					cmd.Printf("code:\n%s\n", code)
				} else {
					cmd.Printf("code: %d bytes\n", len(code))
				}
			} else {
				cmd.Println("code: (miss)")
			}

			if sm, ok := c.GetSourceMap(path); ok {
				encoded, mErr := json.Marshal(sm)
				if mErr != nil {
					cmd.Println("sourceMap: (unreadable)")
				} else {
					cmd.Printf("sourceMap: %s\n", encoded)
				}
			} else {
				cmd.Println("sourceMap: (miss)")
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&showCode, "code", false, "print the full compiled output instead of its size")

	return cmd
}
