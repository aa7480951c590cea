package cache

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Common configuration errors.
var (
	ErrNoRoots      = errors.New("at least one root directory is required")
	ErrRelativeRoot = errors.New("cache root must be an absolute path")
)

// validateRoots ensures every configured root is an absolute path and
// returns the roots in cleaned form. Order is preserved: the first root
// is the fallback when a path is under none of them.
func validateRoots(roots []string) ([]string, error) {
	if len(roots) == 0 {
		return nil, ErrNoRoots
	}

	cleaned := make([]string, 0, len(roots))
	for _, root := range roots {
		if !filepath.IsAbs(root) {
			return nil, fmt.Errorf("%w: %q", ErrRelativeRoot, root)
		}
		cleaned = append(cleaned, filepath.Clean(root))
	}

	return cleaned, nil
}

// Key derives the cache key for a source file path. The same path, root
// set, and prefix always produce the same key byte-for-byte.
//
// The path is resolved to absolute form, made relative to the first
// configured root that is an ancestor of it (or the first root when
// none is), normalized to forward slashes, and prefixed with the
// configured namespace prefix.
func (c *Cache) Key(path string) string {
	return deriveKey(c.prefix, c.roots, path)
}

func deriveKey(prefix string, roots []string, path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		// Abs only fails when the working directory is unavailable;
		// fall back to the cleaned input so derivation stays total.
		abs = filepath.Clean(path)
	}

	root := roots[0]
	for _, r := range roots {
		if isAncestor(r, abs) {
			root = r
			break
		}
	}

	rel, err := filepath.Rel(root, abs)
	if err != nil {
		rel = abs
	}

	return prefix + filepath.ToSlash(rel)
}

// isAncestor reports whether dir is path itself or one of its ancestors.
func isAncestor(dir, path string) bool {
	if dir == path {
		return true
	}
	if !strings.HasSuffix(dir, string(filepath.Separator)) {
		dir += string(filepath.Separator)
	}
	return strings.HasPrefix(path, dir)
}
