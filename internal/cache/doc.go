// Package cache provides a persistent, self-pruning store for build
// artifacts produced by the bundle optimizer: compiled module output,
// source maps, and content hashes, keyed by source file path.
//
// Entries live in a single bbolt database with four namespaces (codes,
// hashes, sourceMaps, atimes) sharing one key space. The cache is an
// optional performance layer: every storage fault degrades to a miss,
// never to an error the build pipeline has to handle, and a corrupted
// cache directory can simply be deleted and rebuilt.
//
// A one-shot background sweep, scheduled shortly after construction,
// evicts entries that have not been touched for 30 days.
package cache
