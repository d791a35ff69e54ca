// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package cache memoizes source query results. The memory tier is an LRU
// bounded by estimated payload bytes with per-entry TTL; an optional
// persistent Store (SQLite or Redis) backs it across runs. Entries are
// immutable once stored and a hit is served without revalidation.
package cache

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/research-agent/internal/metrics"
	"github.com/pdiddy/research-agent/pkg/types"
)

// Entry is one cached result set.
type Entry struct {
	Key      string              `json:"key"`
	Payload  []types.PaperRecord `json:"payload"`
	StoredAt time.Time           `json:"stored_at"`
	TTL      time.Duration       `json:"ttl"`
}

// ExpiresAt returns the instant the entry stops being served.
func (e Entry) ExpiresAt() time.Time { return e.StoredAt.Add(e.TTL) }

// Expired reports whether the entry is past its TTL at now.
func (e Entry) Expired(now time.Time) bool { return !now.Before(e.ExpiresAt()) }

// Store is a persistent cache tier. Implementations must be safe for
// concurrent use. Save is called at insertion time, so an entry's TTL is
// its remaining lifetime.
type Store interface {
	Load(ctx context.Context, key string) (Entry, bool, error)
	Save(ctx context.Context, e Entry) error
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// Options configures a Cache.
type Options struct {
	// TTL is used when Put is called with a non-positive ttl.
	TTL time.Duration
	// MaxBytes bounds the memory tier's estimated payload size.
	MaxBytes int64
	// Store is the optional persistent tier.
	Store  Store
	Logger *zap.Logger
	// Now is the clock; tests substitute a fake.
	Now func() time.Time
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Entries      int   `json:"entries"`
	Bytes        int64 `json:"bytes"`
	MaxBytes     int64 `json:"max_bytes"`
	Hits         int64 `json:"hits"`
	Misses       int64 `json:"misses"`
	StoreEntries int   `json:"store_entries,omitempty"`
}

type item struct {
	entry Entry
	size  int64
}

// Cache is safe for concurrent use. Lookups share a read lock; writes and
// LRU promotion are serialized.
type Cache struct {
	mu       sync.RWMutex
	items    map[string]*list.Element
	lru      *list.List // front is most recently used
	bytes    int64
	ttl      time.Duration
	maxBytes int64
	store    Store
	logger   *zap.Logger
	now      func() time.Time

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a cache. A zero MaxBytes means unbounded.
func New(opts Options) *Cache {
	c := &Cache{
		items:    make(map[string]*list.Element),
		lru:      list.New(),
		ttl:      opts.TTL,
		maxBytes: opts.MaxBytes,
		store:    opts.Store,
		logger:   opts.Logger,
		now:      opts.Now,
	}
	if c.ttl <= 0 {
		c.ttl = 24 * time.Hour
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Get returns the payload stored under key when a live entry exists in
// memory or in the persistent tier.
func (c *Cache) Get(ctx context.Context, key string) ([]types.PaperRecord, bool) {
	now := c.now()

	c.mu.RLock()
	el, ok := c.items[key]
	var it *item
	if ok {
		it = el.Value.(*item)
	}
	c.mu.RUnlock()

	if ok {
		if it.entry.Expired(now) {
			c.mu.Lock()
			if cur, still := c.items[key]; still && cur == el {
				c.removeLocked(el)
				metrics.CacheEvictions.WithLabelValues("expired").Inc()
			}
			c.mu.Unlock()
		} else {
			c.mu.Lock()
			if cur, still := c.items[key]; still && cur == el {
				c.lru.MoveToFront(el)
			}
			c.mu.Unlock()
			c.hits.Add(1)
			metrics.CacheLookups.WithLabelValues("memory", "hit").Inc()
			return clonePayload(it.entry.Payload), true
		}
	}
	metrics.CacheLookups.WithLabelValues("memory", "miss").Inc()

	if c.store != nil {
		e, found, err := c.store.Load(ctx, key)
		if err != nil {
			c.logger.Warn("cache store load failed", zap.String("key", key), zap.Error(err))
		} else if found && !e.Expired(now) {
			c.insert(e)
			c.hits.Add(1)
			metrics.CacheLookups.WithLabelValues("store", "hit").Inc()
			return clonePayload(e.Payload), true
		} else {
			metrics.CacheLookups.WithLabelValues("store", "miss").Inc()
		}
	}

	c.misses.Add(1)
	return nil, false
}

// Put stores payload under key, overwriting any prior entry, and writes
// through to the persistent tier. A payload larger than the whole size
// bound is not stored.
func (c *Cache) Put(ctx context.Context, key string, payload []types.PaperRecord, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	e := Entry{
		Key:      key,
		Payload:  clonePayload(payload),
		StoredAt: c.now(),
		TTL:      ttl,
	}
	if c.maxBytes > 0 && estimateSize(e.Payload) > c.maxBytes {
		c.logger.Debug("payload exceeds cache bound, not stored",
			zap.String("key", key), zap.Int64("max_bytes", c.maxBytes))
		return
	}
	c.insert(e)

	if c.store != nil {
		if err := c.store.Save(ctx, e); err != nil {
			c.logger.Warn("cache store save failed", zap.String("key", key), zap.Error(err))
		}
	}
}

func (c *Cache) insert(e Entry) {
	size := estimateSize(e.Payload)
	if c.maxBytes > 0 && size > c.maxBytes {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[e.Key]; ok {
		c.removeLocked(el)
	}
	el := c.lru.PushFront(&item{entry: e, size: size})
	c.items[e.Key] = el
	c.bytes += size

	for c.maxBytes > 0 && c.bytes > c.maxBytes {
		back := c.lru.Back()
		if back == nil || back == el {
			break
		}
		c.removeLocked(back)
		metrics.CacheEvictions.WithLabelValues("size").Inc()
	}
}

func (c *Cache) removeLocked(el *list.Element) {
	it := el.Value.(*item)
	c.lru.Remove(el)
	delete(c.items, it.entry.Key)
	c.bytes -= it.size
}

// EvictExpired removes every expired entry from both tiers and returns the
// number removed.
func (c *Cache) EvictExpired(ctx context.Context) int {
	now := c.now()
	removed := 0

	c.mu.Lock()
	for el := c.lru.Back(); el != nil; {
		prev := el.Prev()
		if el.Value.(*item).entry.Expired(now) {
			c.removeLocked(el)
			removed++
		}
		el = prev
	}
	c.mu.Unlock()

	if c.store != nil {
		n, err := c.store.DeleteExpired(ctx, now)
		if err != nil {
			c.logger.Warn("cache store eviction failed", zap.Error(err))
		}
		removed += n
	}
	metrics.CacheEvictions.WithLabelValues("expired").Add(float64(removed))
	return removed
}

// EvictOlderThan removes entries stored before now-age from both tiers.
func (c *Cache) EvictOlderThan(ctx context.Context, age time.Duration) int {
	cutoff := c.now().Add(-age)
	removed := 0

	c.mu.Lock()
	for el := c.lru.Back(); el != nil; {
		prev := el.Prev()
		if el.Value.(*item).entry.StoredAt.Before(cutoff) {
			c.removeLocked(el)
			removed++
		}
		el = prev
	}
	c.mu.Unlock()

	if c.store != nil {
		n, err := c.store.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			c.logger.Warn("cache store eviction failed", zap.Error(err))
		}
		removed += n
	}
	return removed
}

// Stats returns the current counters.
func (c *Cache) Stats(ctx context.Context) Stats {
	c.mu.RLock()
	s := Stats{
		Entries:  len(c.items),
		Bytes:    c.bytes,
		MaxBytes: c.maxBytes,
	}
	c.mu.RUnlock()
	s.Hits = c.hits.Load()
	s.Misses = c.misses.Load()

	if c.store != nil {
		if n, err := c.store.Count(ctx); err == nil {
			s.StoreEntries = n
		}
	}
	return s
}

// Close releases the persistent tier.
func (c *Cache) Close() error {
	if c.store == nil {
		return nil
	}
	return c.store.Close()
}

func clonePayload(in []types.PaperRecord) []types.PaperRecord {
	if in == nil {
		return nil
	}
	out := make([]types.PaperRecord, len(in))
	for i, p := range in {
		out[i] = p.Clone()
	}
	return out
}

// recordOverhead approximates the fixed cost of a record and its headers.
const recordOverhead = 128

// estimateSize approximates the memory held by a payload.
func estimateSize(payload []types.PaperRecord) int64 {
	var n int64
	for _, p := range payload {
		n += recordOverhead
		n += int64(len(p.Title) + len(p.Abstract) + len(p.Source) + len(p.SourceID) + len(p.URL))
		for _, a := range p.Authors {
			n += int64(len(a)) + 16
		}
		for _, c := range p.Categories {
			n += int64(len(c)) + 16
		}
	}
	return n
}
