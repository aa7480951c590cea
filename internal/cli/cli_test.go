package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bundlex/bundlecache/internal/cache"
	"github.com/bundlex/bundlecache/internal/config"
	"github.com/bundlex/bundlecache/internal/hashutil"
)

// execute runs the root command with the given args and returns its
// combined output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCmd("test")
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// seedCache writes a config file pointing at a temp store, populates
// one entry, and returns the config path and cache directory.
func seedCache(t *testing.T) (configPath, cacheDir string) {
	t.Helper()

	cacheDir = t.TempDir()
	configPath = filepath.Join(t.TempDir(), "config.yaml")
	content := "roots:\n  - /repo\ndir: " + cacheDir + "\nprefix: \"v1:\"\n"
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0600))

	nop := zerolog.Nop()
	c, err := cache.New(cache.Config{
		Roots:      []string{"/repo"},
		Dir:        cacheDir,
		Prefix:     "v1:",
		Logger:     &nop,
		PruneDelay: time.Hour,
	})
	require.NoError(t, err)
	c.Update("/repo/src/a.ts", cache.Entry{
		ContentHash: "h1",
		Code:        "COMPILED_A",
		SourceMap:   map[string]any{"version": float64(3)},
	})
	require.NoError(t, c.Close())

	return configPath, cacheDir
}

func TestStatsCommand(t *testing.T) {
	configPath, cacheDir := seedCache(t)

	out, err := execute(t, "stats", "--config", configPath)
	require.NoError(t, err)

	assert.Contains(t, out, cacheDir)
	assert.Contains(t, out, "codes:      1")
	assert.Contains(t, out, "hashes:     1")
	assert.Contains(t, out, "sourceMaps: 1")
	assert.Contains(t, out, "atimes:     1")
}

func TestGetCommand(t *testing.T) {
	configPath, _ := seedCache(t)

	out, err := execute(t, "get", "/repo/src/a.ts", "--config", configPath)
	require.NoError(t, err)

	assert.Contains(t, out, "key: v1:src/a.ts")
	assert.Contains(t, out, "hash: h1")
	assert.Contains(t, out, "code: 10 bytes")
	assert.Contains(t, out, `"version":3`)

	t.Run("FullCode", func(t *testing.T) {
		out, err := execute(t, "get", "/repo/src/a.ts", "--config", configPath, "--code")
		require.NoError(t, err)
		assert.Contains(t, out, "COMPILED_A")
	})

	t.Run("StateForExistingFile", func(t *testing.T) {
		srcDir := t.TempDir()
		srcPath := filepath.Join(srcDir, "mod.ts")
		require.NoError(t, os.WriteFile(srcPath, []byte("export const x = 1\n"), 0600))

		current, err := hashutil.FileHash(srcPath)
		require.NoError(t, err)

		cacheDir := t.TempDir()
		cfgPath := filepath.Join(t.TempDir(), "config.yaml")
		content := "roots:\n  - " + srcDir + "\ndir: " + cacheDir + "\nprefix: \"v1:\"\n"
		require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0600))

		nop := zerolog.Nop()
		c, err := cache.New(cache.Config{
			Roots:      []string{srcDir},
			Dir:        cacheDir,
			Prefix:     "v1:",
			Logger:     &nop,
			PruneDelay: time.Hour,
		})
		require.NoError(t, err)
		c.Update(srcPath, cache.Entry{ContentHash: current, Code: "compiled"})
		require.NoError(t, c.Close())

		out, err := execute(t, "get", srcPath, "--config", cfgPath)
		require.NoError(t, err)
		assert.Contains(t, out, "state: current")

		require.NoError(t, os.WriteFile(srcPath, []byte("export const x = 2\n"), 0600))
		out, err = execute(t, "get", srcPath, "--config", cfgPath)
		require.NoError(t, err)
		assert.Contains(t, out, "state: stale")
	})

	t.Run("Miss", func(t *testing.T) {
		out, err := execute(t, "get", "/repo/src/missing.ts", "--config", configPath)
		require.NoError(t, err)
		assert.Contains(t, out, "hash: (miss)")
		assert.Contains(t, out, "code: (miss)")
		assert.Contains(t, out, "sourceMap: (miss)")
	})
}

func TestPruneCommand(t *testing.T) {
	configPath, _ := seedCache(t)

	// The freshly seeded entry is inside any sane threshold.
	out, err := execute(t, "prune", "--config", configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Evicted 0 entries")

	t.Run("DryRun", func(t *testing.T) {
		out, err := execute(t, "prune", "--config", configPath, "--dry-run", "--max-age", "1h")
		require.NoError(t, err)
		assert.Contains(t, out, "Would evict")
	})
}

func TestClearCommand(t *testing.T) {
	configPath, _ := seedCache(t)

	_, err := execute(t, "clear", "--config", configPath)
	require.Error(t, err, "clear must demand confirmation")

	out, err := execute(t, "clear", "--config", configPath, "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Cleared cache")

	out, err = execute(t, "stats", "--config", configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "codes:      0")
}

func TestFlagOverrides(t *testing.T) {
	configPath, _ := seedCache(t)
	otherDir := t.TempDir()

	// --dir points stats at a different, empty store.
	out, err := execute(t, "stats", "--config", configPath, "--dir", otherDir)
	require.NoError(t, err)
	assert.Contains(t, out, "codes:      0")

	// --prefix changes key derivation, so the seeded entry misses.
	out, err = execute(t, "get", "/repo/src/a.ts", "--config", configPath, "--prefix", "v2:")
	require.NoError(t, err)
	assert.Contains(t, out, "key: v2:src/a.ts")
	assert.Contains(t, out, "code: (miss)")
}

func TestDebugFlagRaisesLogLevel(t *testing.T) {
	configPath, _ := seedCache(t)

	_, err := execute(t, "stats", "--config", configPath)
	require.NoError(t, err)
	assert.Equal(t, "info", config.GetLogger().GetLevel().String())

	_, err = execute(t, "stats", "--config", configPath, "--debug")
	require.NoError(t, err)
	assert.Equal(t, "debug", config.GetLogger().GetLevel().String())
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "4.0 KiB", formatBytes(4096))
	assert.Equal(t, "1.5 MiB", formatBytes(3*1024*1024/2))
}
