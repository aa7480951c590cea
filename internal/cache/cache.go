package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"
	"golang.org/x/sync/errgroup"
)

// cacheFileName is the bbolt database file created inside the cache directory.
const cacheFileName = "cache.db"

// Namespace buckets. All four share the same key space; an entry may
// exist in any subset of them.
var (
	bucketCodes      = []byte("codes")
	bucketHashes     = []byte("hashes")
	bucketSourceMaps = []byte("sourceMaps")
	bucketAtimes     = []byte("atimes")
)

var allBuckets = [][]byte{bucketCodes, bucketHashes, bucketSourceMaps, bucketAtimes}

// Entry is the set of artifacts stored for one source file by Update.
type Entry struct {
	// ContentHash identifies the source file contents the artifacts were
	// built from. Callers compare it against the current file hash to
	// decide whether the cached output is still valid.
	ContentHash string

	// Code is the compiled output text.
	Code string

	// SourceMap is the source map object for Code. May be nil.
	SourceMap map[string]any
}

// Config carries the construction parameters for a Cache.
type Config struct {
	// Roots is the ordered set of absolute repository roots used for key
	// normalization. Construction fails if any entry is not absolute.
	Roots []string

	// Dir is the directory holding the on-disk store. Created if missing.
	Dir string

	// Prefix namespaces keys so that caches built with different
	// compiler configurations can share one directory.
	Prefix string

	// Log is an optional diagnostic sink. When set, every get/put emits
	// a single line describing the operation, namespace, and key.
	Log io.Writer

	// Logger overrides the stderr logger used for storage faults.
	// Mostly useful in tests; leave nil for the default.
	Logger *zerolog.Logger

	// MaxAge is the staleness threshold for the pruning sweep.
	// Defaults to 30 days.
	MaxAge time.Duration

	// PruneDelay is how long after construction the one-shot sweep
	// fires. Defaults to 30 minutes.
	PruneDelay time.Duration

	// PruneBatchSize is the number of atimes entries classified per
	// sweep batch. Defaults to 1000.
	PruneBatchSize int

	// PruneYield is the pause between sweep batches that removed
	// nothing. Defaults to 1ms.
	PruneYield time.Duration
}

// Cache memoizes build artifacts across optimizer runs. All methods are
// safe for concurrent use; storage faults degrade to misses.
type Cache struct {
	// db is the backing bbolt store. Nil only for a zero-value Cache.
	db *bolt.DB

	// roots is the cleaned, ordered root set for key derivation.
	roots []string

	// prefix is prepended to every derived key.
	prefix string

	// diag is the optional diagnostic sink. Nil disables tracing.
	// diagMu serializes writes: Update and the atime refresh emit
	// lines from concurrent goroutines.
	diag   io.Writer
	diagMu sync.Mutex

	// log always reaches stderr; storage faults are reported here
	// regardless of whether a diagnostic sink was supplied.
	log zerolog.Logger

	// marker is the generation marker: one timestamp captured at
	// construction and written as the access time for every entry
	// touched during this process's lifetime. Not a true LRU clock.
	marker []byte

	// pruneTimer fires the one-shot sweep. Stopped by Close.
	pruneTimer *time.Timer

	maxAge     time.Duration
	batchSize  int
	pruneYield time.Duration

	// touches tracks in-flight fire-and-forget atime writes so Close
	// can drain them before closing the store.
	touches sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

// New opens (creating if necessary) the cache store under cfg.Dir and
// schedules the one-shot pruning sweep. The only fatal condition is a
// configuration error: a missing, or non-absolute, root. Anything the
// store itself does wrong later degrades to cache misses.
func New(cfg Config) (*Cache, error) {
	roots, err := validateRoots(cfg.Roots)
	if err != nil {
		return nil, err
	}

	if cfg.Dir == "" {
		return nil, errors.New("cache directory cannot be empty")
	}
	if err := os.MkdirAll(cfg.Dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := bolt.Open(filepath.Join(cfg.Dir, cacheFileName), 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache store: %w", err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			if _, bErr := tx.CreateBucketIfNotExists(name); bErr != nil {
				return bErr
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create cache namespaces: %w", err)
	}

	var logger zerolog.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
			With().Timestamp().Logger()
	}
	logger = logger.With().
		Str("component", "cache").
		Str("cache_id", ulid.Make().String()).
		Logger()

	c := &Cache{
		db:         db,
		roots:      roots,
		prefix:     cfg.Prefix,
		diag:       cfg.Log,
		log:        logger,
		marker:     []byte(strconv.FormatInt(time.Now().UnixMilli(), 10)),
		maxAge:     cfg.MaxAge,
		batchSize:  cfg.PruneBatchSize,
		pruneYield: cfg.PruneYield,
	}
	if c.maxAge <= 0 {
		c.maxAge = DefaultMaxAge
	}
	if c.batchSize <= 0 {
		c.batchSize = defaultPruneBatchSize
	}
	if c.pruneYield <= 0 {
		c.pruneYield = defaultPruneYield
	}

	delay := cfg.PruneDelay
	if delay <= 0 {
		delay = defaultPruneDelay
	}
	// Go timers never keep the process alive on their own; if the host
	// exits before the delay elapses the sweep is simply skipped.
	c.pruneTimer = time.AfterFunc(delay, c.backgroundPrune)

	return c, nil
}

// GetFileHash returns the stored content hash for path, or ok=false on
// a miss. It is a pure read: it does not touch the access marker.
func (c *Cache) GetFileHash(path string) (string, bool) {
	v, ok := c.safeGet(bucketHashes, c.Key(path))
	if !ok {
		return "", false
	}
	return string(v), true
}

// GetCode returns the compiled output stored for path, or ok=false on a
// miss. A hit also refreshes the entry's access marker asynchronously;
// the refresh never blocks or fails the read.
func (c *Cache) GetCode(path string) (string, bool) {
	key := c.Key(path)
	v, ok := c.safeGet(bucketCodes, key)
	if !ok {
		return "", false
	}

	c.touches.Add(1)
	go func() {
		defer c.touches.Done()
		c.safePut(bucketAtimes, key, c.marker)
	}()

	return string(v), true
}

// GetSourceMap returns the parsed source map stored for path, or
// ok=false on a miss. A stored value that fails to parse as JSON is
// treated as a miss, consistent with the rest of the fault model.
func (c *Cache) GetSourceMap(path string) (map[string]any, bool) {
	key := c.Key(path)
	v, ok := c.safeGet(bucketSourceMaps, key)
	if !ok {
		return nil, false
	}

	var m map[string]any
	if err := json.Unmarshal(v, &m); err != nil {
		c.reportError("GET", bucketSourceMaps, key, err)
		return nil, false
	}
	if m == nil {
		// A stored JSON null means "no source map was produced".
		return nil, false
	}
	return m, true
}

// Update stores the artifacts for path: the generation marker, the
// content hash, the compiled code, and the serialized source map (the
// sourceMaps write is skipped when no source map was produced). The
// writes run concurrently and independently; a failed write is logged
// and dropped without affecting the others. Update returns once every
// write attempt has finished.
func (c *Cache) Update(path string, entry Entry) {
	key := c.Key(path)

	var g errgroup.Group
	g.Go(func() error {
		c.safePut(bucketAtimes, key, c.marker)
		return nil
	})
	g.Go(func() error {
		c.safePut(bucketHashes, key, []byte(entry.ContentHash))
		return nil
	})
	g.Go(func() error {
		c.safePut(bucketCodes, key, []byte(entry.Code))
		return nil
	})
	g.Go(func() error {
		if entry.SourceMap == nil {
			return nil
		}
		encoded, err := json.Marshal(entry.SourceMap)
		if err != nil {
			c.reportError("PUT", bucketSourceMaps, key, err)
			return nil
		}
		c.safePut(bucketSourceMaps, key, encoded)
		return nil
	})
	_ = g.Wait()
}

// Close cancels the pending pruning sweep, drains in-flight access
// marker writes, and closes the store. Safe to call more than once.
func (c *Cache) Close() error {
	c.closeOnce.Do(func() {
		if c.pruneTimer != nil {
			c.pruneTimer.Stop()
		}
		c.touches.Wait()
		if c.db != nil {
			c.closeErr = c.db.Close()
		}
	})
	return c.closeErr
}

// Stats describes the current contents of the store.
type Stats struct {
	// Per-namespace entry counts.
	Codes      int
	Hashes     int
	SourceMaps int
	Atimes     int

	// SizeBytes is the size of the database file on disk.
	SizeBytes int64
}

// Stats counts the entries in each namespace and measures the database
// file. Unlike the get/put path this propagates storage errors, since
// its callers are maintenance tooling rather than the build pipeline.
func (c *Cache) Stats() (Stats, error) {
	var st Stats
	err := c.db.View(func(tx *bolt.Tx) error {
		st.Codes = tx.Bucket(bucketCodes).Stats().KeyN
		st.Hashes = tx.Bucket(bucketHashes).Stats().KeyN
		st.SourceMaps = tx.Bucket(bucketSourceMaps).Stats().KeyN
		st.Atimes = tx.Bucket(bucketAtimes).Stats().KeyN
		st.SizeBytes = tx.Size()
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read cache stats: %w", err)
	}
	return st, nil
}

// Clear drops every entry in all four namespaces.
func (c *Cache) Clear() error {
	err := c.db.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			if dErr := tx.DeleteBucket(name); dErr != nil {
				return dErr
			}
			if _, cErr := tx.CreateBucket(name); cErr != nil {
				return cErr
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}

// safeGet reads one key from one namespace, translating every storage
// fault into a miss. This is the single choke point that keeps the
// "cache errors never reach the build pipeline" policy uniform.
func (c *Cache) safeGet(bucket []byte, key string) ([]byte, bool) {
	db := c.db
	if db == nil {
		c.reportError("GET", bucket, key, bolt.ErrDatabaseNotOpen)
		return nil, false
	}

	var (
		val   []byte
		found bool
	)
	err := db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return bolt.ErrBucketNotFound
		}
		// A present-but-empty value comes back as a non-nil
		// zero-length slice; existence is tracked separately so it
		// still counts as a hit.
		if v := b.Get([]byte(key)); v != nil {
			found = true
			// Copy out: bbolt values are only valid inside the tx.
			val = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		c.reportError("GET", bucket, key, err)
		return nil, false
	}
	if !found {
		c.trace("MISS", bucket, key)
		return nil, false
	}
	c.trace("HIT", bucket, key)
	return val, true
}

// safePut writes one key into one namespace, swallowing storage faults.
// Batch coalesces writes issued concurrently from Update and the atime
// refresh goroutines into shared transactions.
func (c *Cache) safePut(bucket []byte, key string, val []byte) {
	db := c.db
	if db == nil {
		c.reportError("PUT", bucket, key, bolt.ErrDatabaseNotOpen)
		return
	}

	err := db.Batch(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return bolt.ErrBucketNotFound
		}
		return b.Put([]byte(key), val)
	})
	if err != nil {
		c.reportError("PUT", bucket, key, err)
		return
	}
	c.trace("PUT", bucket, key)
}

// trace writes one diagnostic line when a sink is configured.
func (c *Cache) trace(op string, bucket []byte, key string) {
	if c.diag == nil {
		return
	}
	c.diagMu.Lock()
	fmt.Fprintf(c.diag, "%s [%s] %s\n", op, bucket, key)
	c.diagMu.Unlock()
}

// reportError traces a failed operation and, unconditionally, logs it
// to stderr. op is "GET" or "PUT".
func (c *Cache) reportError(op string, bucket []byte, key string, err error) {
	if c.diag != nil {
		c.diagMu.Lock()
		fmt.Fprintf(c.diag, "ERROR/%s [%s] %s %v\n", op, bucket, key, err)
		c.diagMu.Unlock()
	}
	c.log.Error().
		Err(err).
		Str("namespace", string(bucket)).
		Str("key", key).
		Msgf("cache storage error during %s", op)
}
