// Package hashutil computes the content hashes the build pipeline
// stores alongside cached artifacts. A consumer hashes the current
// source file, compares against Cache.GetFileHash, and recompiles only
// on mismatch.
package hashutil

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Sum returns the content hash of a blob as a hex string.
func Sum(data []byte) string {
	return strconv.FormatUint(xxhash.Sum64(data), 16)
}

// SumString is Sum for string input without copying.
func SumString(s string) string {
	return strconv.FormatUint(xxhash.Sum64String(s), 16)
}

// FileHash streams a file through the hash and returns the same form
// of hex string as Sum over the file's contents.
func FileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return strconv.FormatUint(h.Sum64(), 16), nil
}
