// Package cache implements the MetricsCache (spec §4.5): keyed persistence
// of per-target validator outputs with TTL and size-bounded LRU eviction,
// backed by an embedded store.
//
// Grounded on the teacher's core/storage.go on-disk LRU (newDiskLRU,
// eviction-by-oldest under a mutex) for the in-process eviction policy,
// adapted here to front a durable go.etcd.io/bbolt store (pack:
// prysmaticlabs-prysm's beacon-chain kv store) instead of flat files.
// github.com/hashicorp/golang-lru/v2 (teacher, indirect) is the actual
// eviction-order tracker: its own recency list picks the victim on every
// Add past maxEntries, via an eviction callback that deletes the
// corresponding bbolt record, rather than a full-table scan.
package cache

import (
	"bytes"
	"encoding/json"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"trustwotd/internal/errs"
	"trustwotd/pkg/pubkey"
)

// DefaultTTL is applied when Set is called without an explicit ttl.
const DefaultTTL = 7 * 24 * time.Hour

// DefaultMaxEntries bounds the profile_metrics table before LRU eviction
// kicks in.
const DefaultMaxEntries = 100_000

var bucketProfileMetrics = []byte("profile_metrics")

// Key identifies a cached record: either a bare pubkey, or a
// (pubkey, sourcePubkey) pair for relational signals like reciprocity.
// Encoded canonically so the two shapes never collide.
type Key struct {
	Pubkey       pubkey.Key
	SourcePubkey pubkey.Key // empty means "no source"
}

func (k Key) encode() []byte {
	if k.SourcePubkey == "" {
		return []byte("p:" + string(k.Pubkey))
	}
	return []byte("ps:" + string(k.Pubkey) + ":" + string(k.SourcePubkey))
}

// ProfileMetrics is the cached record (spec §3). Metrics uses the map
// shape per spec §9 Open Question (iii); a legacy flat shape is accepted
// on decode for forward compatibility but never written.
type ProfileMetrics struct {
	Pubkey     pubkey.Key         `json:"pubkey"`
	Metrics    map[string]float64 `json:"metrics"`
	ComputedAt int64              `json:"computedAt"`
}

type record struct {
	Metrics    map[string]float64 `json:"metrics"`
	ComputedAt int64              `json:"computedAt"`
	ExpiresAt  int64              `json:"expiresAt"`
	UpdatedAt  int64              `json:"updatedAt"`

	// Legacy flat shape, accepted on decode only (spec §9 iii).
	Nip05Valid       *float64 `json:"nip05Valid,omitempty"`
	LightningAddress *float64 `json:"lightningAddress,omitempty"`
	EventKind10002   *float64 `json:"eventKind10002,omitempty"`
	Reciprocity      *float64 `json:"reciprocity,omitempty"`
}

func (r record) toMetrics() map[string]float64 {
	if r.Metrics != nil {
		return r.Metrics
	}
	m := make(map[string]float64)
	if r.Nip05Valid != nil {
		m["nip05Valid"] = *r.Nip05Valid
	}
	if r.LightningAddress != nil {
		m["lightningAddress"] = *r.LightningAddress
	}
	if r.EventKind10002 != nil {
		m["eventKind10002"] = *r.EventKind10002
	}
	if r.Reciprocity != nil {
		m["reciprocity"] = *r.Reciprocity
	}
	return m
}

// Stats reports cache hit/miss counters (spec §4.5).
type Stats struct {
	Hits      uint64
	Misses    uint64
	Total     uint64
	HitRate   float64
	LastReset time.Time
}

// Cache is the MetricsCache (C5).
type Cache struct {
	db         *bolt.DB
	maxEntries int
	log        logrus.FieldLogger

	keyLocksMu sync.Mutex
	keyLocks   map[string]*sync.Mutex

	recency *lru.Cache[string, struct{}]

	statsMu   sync.Mutex
	hits      uint64
	misses    uint64
	lastReset time.Time
}

// Open opens (creating if absent) the embedded store at path.
func Open(path string, maxEntries int, log logrus.FieldLogger) (*Cache, error) {
	if log == nil {
		log = logrus.New()
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, errs.Wrap(errs.CacheIO, err, "open embedded store")
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketProfileMetrics)
		return err
	})
	if err != nil {
		return nil, errs.Wrap(errs.CacheIO, err, "create profile_metrics bucket")
	}

	c := &Cache{
		db:         db,
		maxEntries: maxEntries,
		log:        log,
		keyLocks:   make(map[string]*sync.Mutex),
		lastReset:  time.Now(),
	}

	// onEvict fires synchronously from within recency.Add once the tracker
	// holds more than maxEntries keys, naming the least-recently-used key
	// as the victim in O(1) rather than scanning the whole bucket.
	recency, err := lru.NewWithEvict[string, struct{}](maxEntries, func(evictedKey string, _ struct{}) {
		if delErr := c.db.Update(func(tx *bolt.Tx) error {
			return tx.Bucket(bucketProfileMetrics).Delete([]byte(evictedKey))
		}); delErr != nil {
			c.log.WithError(delErr).Warn("evicted cache record delete failed")
		}
	})
	if err != nil {
		return nil, errs.Wrap(errs.CacheIO, err, "init recency tracker")
	}
	c.recency = recency
	return c, nil
}

// Close releases the underlying store handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

func (c *Cache) lockFor(key string) *sync.Mutex {
	c.keyLocksMu.Lock()
	defer c.keyLocksMu.Unlock()
	m, ok := c.keyLocks[key]
	if !ok {
		m = &sync.Mutex{}
		c.keyLocks[key] = m
	}
	return m
}

// Get returns the cached record for key, or (ProfileMetrics{}, false) if
// absent or expired (spec §4.5). A record with computedAt+ttl <= now is
// treated as absent.
func (c *Cache) Get(key Key) (ProfileMetrics, bool) {
	encoded := key.encode()
	km := c.lockFor(string(encoded))
	km.Lock()
	defer km.Unlock()

	var rec record
	found := false
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProfileMetrics)
		v := b.Get(encoded)
		if v == nil {
			return nil
		}
		found = true
		return json.NewDecoder(bytes.NewReader(v)).Decode(&rec)
	})
	if err != nil {
		c.log.WithError(err).Warn("cache read failed, treating as miss")
		c.recordMiss()
		return ProfileMetrics{}, false
	}
	if !found {
		c.recordMiss()
		return ProfileMetrics{}, false
	}
	if rec.ExpiresAt <= time.Now().Unix() {
		c.recordMiss()
		return ProfileMetrics{}, false
	}

	c.recordHit()
	// Get (not Add) bumps the key to most-recently-used without affecting
	// capacity bookkeeping; the key is already tracked from its Set.
	c.recency.Get(string(encoded))
	return ProfileMetrics{Pubkey: key.Pubkey, Metrics: rec.toMetrics(), ComputedAt: rec.ComputedAt}, true
}

// Set upserts metrics for key, defaulting ttl to DefaultTTL. If adding key
// pushes the recency tracker past maxEntries, the least-recently-used key
// is evicted via the tracker's own eviction callback (spec §4.5).
func (c *Cache) Set(key Key, metrics map[string]float64, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := time.Now()
	encoded := key.encode()

	km := c.lockFor(string(encoded))
	km.Lock()
	defer km.Unlock()

	rec := record{
		Metrics:    metrics,
		ComputedAt: now.Unix(),
		ExpiresAt:  now.Add(ttl).Unix(),
		UpdatedAt:  now.UnixNano(),
	}
	buf, err := json.Marshal(rec)
	if err != nil {
		return errs.Wrap(errs.CacheIO, err, "marshal profile metrics")
	}

	err = c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProfileMetrics).Put(encoded, buf)
	})
	if err != nil {
		c.log.WithError(err).Warn("cache write failed")
		return errs.Wrap(errs.CacheIO, err, "write profile metrics")
	}
	// Past maxEntries this Add synchronously evicts the least-recently-used
	// key via the NewWithEvict callback registered in Open.
	c.recency.Add(string(encoded), struct{}{})
	return nil
}

// Invalidate deletes the record for key.
func (c *Cache) Invalidate(key Key) error {
	encoded := key.encode()
	km := c.lockFor(string(encoded))
	km.Lock()
	defer km.Unlock()
	err := c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProfileMetrics).Delete(encoded)
	})
	if err != nil {
		return errs.Wrap(errs.CacheIO, err, "invalidate")
	}
	c.recency.Remove(string(encoded))
	return nil
}

// Cleanup removes all entries with expiresAt <= now. Returns the count
// removed (spec §4.5, invoked periodically by core/maintenance).
func (c *Cache) Cleanup() (int, error) {
	now := time.Now().Unix()
	var toDelete [][]byte
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProfileMetrics)
		return b.ForEach(func(k, v []byte) error {
			var rec record
			if err := json.Unmarshal(v, &rec); err != nil {
				return nil
			}
			if rec.ExpiresAt <= now {
				toDelete = append(toDelete, append([]byte(nil), k...))
			}
			return nil
		})
	})
	if err != nil {
		return 0, errs.Wrap(errs.CacheIO, err, "scan for cleanup")
	}
	if len(toDelete) == 0 {
		return 0, nil
	}
	err = c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProfileMetrics)
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, errs.Wrap(errs.CacheIO, err, "delete expired entries")
	}
	for _, k := range toDelete {
		c.recency.Remove(string(k))
	}
	return len(toDelete), nil
}

func (c *Cache) recordHit() {
	c.statsMu.Lock()
	c.hits++
	c.statsMu.Unlock()
}

func (c *Cache) recordMiss() {
	c.statsMu.Lock()
	c.misses++
	c.statsMu.Unlock()
}

// Stats returns cache hit/miss counters.
func (c *Cache) Stats() Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	total := c.hits + c.misses
	var rate float64
	if total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return Stats{Hits: c.hits, Misses: c.misses, Total: total, HitRate: rate, LastReset: c.lastReset}
}

// TotalEntries reports the current table size, used by ScoreService.getStats.
func (c *Cache) TotalEntries() int {
	var n int
	_ = c.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketProfileMetrics).Stats().KeyN
		return nil
	})
	return n
}
