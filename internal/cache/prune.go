package cache

import (
	"bytes"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Prune tuning. The threshold is a correctness parameter; batch size
// and yield only bound how much of the process the sweep monopolizes.
const (
	// DefaultMaxAge is how long an entry may go untouched before the
	// sweep evicts it.
	DefaultMaxAge = 30 * 24 * time.Hour

	defaultPruneDelay     = 30 * time.Minute
	defaultPruneBatchSize = 1000
	defaultPruneYield     = time.Millisecond
)

// backgroundPrune is the timer callback for the one-shot sweep. The
// sweep is advisory maintenance: whatever goes wrong, including a
// corrupt store, is swallowed. The cache is disposable and the caller
// rebuilds it by recomputing entries.
func (c *Cache) backgroundPrune() {
	defer func() {
		if r := recover(); r != nil {
			c.log.Debug().Any("panic", r).Msg("pruning sweep aborted")
		}
	}()

	removed, err := c.Prune(c.maxAge, false)
	if err != nil {
		c.log.Debug().Err(err).Msg("pruning sweep stopped early")
		return
	}
	c.log.Debug().Int("removed", removed).Msg("pruning sweep finished")
}

// Prune walks the atimes namespace and evicts every entry whose access
// marker is older than maxAge, or fails to parse as a timestamp, from
// all four namespaces. With dryRun set it only counts. It returns the
// number of keys evicted (or that would be).
//
// The sweep holds no lock across batches; gets and updates interleave
// freely with it, and an entry updated mid-sweep may still be evicted
// if its old marker was already scanned. That race is acceptable: the
// store is disposable.
func (c *Cache) Prune(maxAge time.Duration, dryRun bool) (int, error) {
	cutoff := time.Now().Add(-maxAge).UnixMilli()

	removed := 0
	var resume []byte
	for {
		stale, scanned, next, err := c.scanBatch(resume, cutoff)
		if err != nil {
			return removed, err
		}

		if len(stale) > 0 {
			if !dryRun {
				c.evict(stale)
			}
			removed += len(stale)
		} else if scanned > 0 {
			// Nothing to do this batch; yield briefly so a long scan
			// does not monopolize the process.
			time.Sleep(c.pruneYield)
		}

		if scanned < c.batchSize {
			return removed, nil
		}
		resume = next
	}
}

// scanBatch classifies up to one batch of atimes entries starting after
// the resume key. It returns the stale keys, the number of entries
// scanned, and the last key scanned (the next resume point).
func (c *Cache) scanBatch(resume []byte, cutoff int64) (stale [][]byte, scanned int, last []byte, err error) {
	db := c.db
	if db == nil {
		return nil, 0, nil, bolt.ErrDatabaseNotOpen
	}

	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAtimes)
		if b == nil {
			return bolt.ErrBucketNotFound
		}

		cur := b.Cursor()
		var k, v []byte
		if resume == nil {
			k, v = cur.First()
		} else {
			k, v = cur.Seek(resume)
			if bytes.Equal(k, resume) {
				k, v = cur.Next()
			}
		}

		for ; k != nil && scanned < c.batchSize; k, v = cur.Next() {
			scanned++
			last = append([]byte(nil), k...)

			ts, perr := strconv.ParseInt(string(v), 10, 64)
			if perr != nil || ts < cutoff {
				stale = append(stale, append([]byte(nil), k...))
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, nil, err
	}
	return stale, scanned, last, nil
}

// evict removes the given keys from all four namespaces, best effort.
// Failures are logged and otherwise indistinguishable from success.
func (c *Cache) evict(keys [][]byte) {
	err := c.db.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			b := tx.Bucket(name)
			if b == nil {
				continue
			}
			for _, k := range keys {
				if dErr := b.Delete(k); dErr != nil {
					return dErr
				}
			}
		}
		return nil
	})
	if err != nil {
		c.log.Error().Err(err).Int("keys", len(keys)).Msg("cache storage error during prune")
	}
}
