// Package cache is a bounded TTL cache for gateway metadata lookups.
//
// Entries are spread over shards chosen by an xxhash of the key, so a write to
// one shard never blocks readers of another. Capacity bounds the whole cache:
// when it is exceeded the least recently used entry of any shard is evicted.
// Concurrent misses on one key are collapsed into a single fetch.
package cache

import (
	"container/list"
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"
)

// Observer is notified of every GetOrFetch lookup. op is the key prefix up to
// the first colon ("describe", "search").
type Observer interface {
	CacheLookup(ctx context.Context, op string, hit bool)
}

// Stats is a point-in-time view of cache activity.
type Stats struct {
	Entries int    `json:"entries"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
}

// Cache is a sharded LRU cache with per-entry expiry.
type Cache struct {
	shards   []*shard
	capacity int
	ttl      time.Duration
	group    singleflight.Group

	size   atomic.Int64
	tick   atomic.Uint64
	hits   atomic.Uint64
	misses atomic.Uint64

	mu       sync.RWMutex
	now      func() time.Time
	observer Observer
}

// shard keeps its entries most recently used first.
type shard struct {
	mu    sync.Mutex
	ll    *list.List
	items map[string]*list.Element
}

type entry struct {
	key       string
	value     any
	expiresAt time.Time
	used      uint64
}

// New creates a Cache. When Capacity is smaller than the shard count a single
// shard is used.
func New(cfg Config) (*Cache, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	n := cfg.Shards
	if cfg.Capacity < n {
		n = 1
	}
	c := &Cache{
		shards:   make([]*shard, n),
		capacity: cfg.Capacity,
		ttl:      cfg.TTL,
		now:      time.Now,
	}
	for i := range c.shards {
		c.shards[i] = &shard{ll: list.New(), items: make(map[string]*list.Element)}
	}
	return c, nil
}

// SetObserver installs an Observer. A nil observer disables observation.
func (c *Cache) SetObserver(o Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observer = o
}

// SetClock replaces the time source used for expiry.
func (c *Cache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func (c *Cache) clock() time.Time {
	c.mu.RLock()
	now := c.now
	c.mu.RUnlock()
	return now()
}

// Get returns the live value stored under key.
func (c *Cache) Get(key string) (any, bool) {
	v, ok, expired := c.shardFor(key).get(key, c.clock(), c.tick.Add(1))
	if expired {
		c.size.Add(-1)
	}
	return v, ok
}

// Set stores value under key with the configured TTL. When the cache is over
// capacity the least recently used entries are evicted.
func (c *Cache) Set(key string, value any) {
	if c.shardFor(key).set(key, value, c.clock().Add(c.ttl), c.tick.Add(1)) {
		c.size.Add(1)
	}
	for c.size.Load() > int64(c.capacity) {
		if !c.evictOldest() {
			return
		}
	}
}

// evictOldest removes the tail entry with the lowest access tick among all
// shards. It reports false when every shard is empty.
func (c *Cache) evictOldest() bool {
	var victim *shard
	var oldest uint64
	for _, s := range c.shards {
		s.mu.Lock()
		if el := s.ll.Back(); el != nil {
			if used := el.Value.(*entry).used; victim == nil || used < oldest {
				victim, oldest = s, used
			}
		}
		s.mu.Unlock()
	}
	if victim == nil {
		return false
	}
	if victim.removeOldest() {
		c.size.Add(-1)
	}
	return true
}

// Len returns the number of stored entries, including expired ones not yet
// reclaimed.
func (c *Cache) Len() int {
	n := 0
	for _, s := range c.shards {
		s.mu.Lock()
		n += s.ll.Len()
		s.mu.Unlock()
	}
	return n
}

// Stats returns hit and miss counters and the current entry count.
func (c *Cache) Stats() Stats {
	return Stats{
		Entries: c.Len(),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
}

// GetOrFetch returns the cached value for key or calls fetch to produce it.
// fetch runs without any cache lock held; its result is stored only on
// success. Concurrent misses on the same key share one fetch.
func GetOrFetch[V any](ctx context.Context, c *Cache, key string, fetch func(ctx context.Context) (V, error)) (V, error) {
	var zero V
	if v, ok := c.Get(key); ok {
		if typed, ok := v.(V); ok {
			c.record(ctx, key, true)
			return typed, nil
		}
	}
	c.record(ctx, key, false)

	ch := c.group.DoChan(key, func() (any, error) {
		if v, ok := c.Get(key); ok {
			if _, ok := v.(V); ok {
				return v, nil
			}
		}
		v, err := fetch(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		c.Set(key, v)
		return v, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		typed, ok := res.Val.(V)
		if !ok && res.Val != nil {
			return zero, fmt.Errorf("cache: key %q holds %T", key, res.Val)
		}
		return typed, nil
	}
}

func (c *Cache) record(ctx context.Context, key string, hit bool) {
	if hit {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	c.mu.RLock()
	o := c.observer
	c.mu.RUnlock()
	if o != nil {
		op, _, _ := strings.Cut(key, ":")
		o.CacheLookup(ctx, op, hit)
	}
}

func (c *Cache) shardFor(key string) *shard {
	if len(c.shards) == 1 {
		return c.shards[0]
	}
	return c.shards[xxhash.Sum64String(key)%uint64(len(c.shards))]
}

func (s *shard) get(key string, now time.Time, tick uint64) (v any, ok, expired bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, found := s.items[key]
	if !found {
		return nil, false, false
	}
	e := el.Value.(*entry)
	if !now.Before(e.expiresAt) {
		s.ll.Remove(el)
		delete(s.items, key)
		return nil, false, true
	}
	e.used = tick
	s.ll.MoveToFront(el)
	return e.value, true, false
}

// set stores the entry and reports whether key was new to the shard.
func (s *shard) set(key string, value any, expiresAt time.Time, tick uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.items[key]; ok {
		e := el.Value.(*entry)
		e.value = value
		e.expiresAt = expiresAt
		e.used = tick
		s.ll.MoveToFront(el)
		return false
	}
	s.items[key] = s.ll.PushFront(&entry{key: key, value: value, expiresAt: expiresAt, used: tick})
	return true
}

func (s *shard) removeOldest() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	el := s.ll.Back()
	if el == nil {
		return false
	}
	s.ll.Remove(el)
	delete(s.items, el.Value.(*entry).key)
	return true
}

// DescribeKey is the cache key of a metric description on host.
func DescribeKey(host, name string) string {
	return "describe:" + host + "/" + name
}

// SearchKey is the cache key of a namespace search on host.
func SearchKey(host, pattern string) string {
	return "search:" + host + "/" + pattern
}

// NamespacesKey is the cache key of the namespace listing of host.
func NamespacesKey(host string) string {
	return "namespaces:" + host
}
