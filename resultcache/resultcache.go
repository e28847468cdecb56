// Package resultcache implements the bounded LRU ResultCache (spec.md
// §4.6), grounded in the teacher's doubly-linked-list LRU
// (orchestration/cache.go's LRUCache) generalized to per-kind TTLs and a
// collision-resistant hash of canonical JSON for keys.
package resultcache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/agentforge/flowengine/catalog"
)

// Stats exposes read-only counters (spec.md §4.6, SPEC_FULL.md §10).
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int
}

type entry struct {
	key        string
	kind       catalog.Kind
	value      any
	insertedAt time.Time
	expiresAt  time.Time
}

// Cache is a bounded LRU keyed by hash(opKind ‖ canonicalJSON(args)).
type Cache struct {
	mu         sync.Mutex
	maxSize    int
	defaultTTL time.Duration
	perKindTTL map[catalog.Kind]time.Duration
	items      map[string]*list.Element
	order      *list.List // front = most recently used

	hits, misses, evictions int64
}

// New builds a Cache with maxSize entries and defaultTTL applied to kinds
// absent from perKindTTL.
func New(maxSize int, defaultTTL time.Duration, perKindTTL map[catalog.Kind]time.Duration) *Cache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	if perKindTTL == nil {
		perKindTTL = make(map[catalog.Kind]time.Duration)
	}
	return &Cache{
		maxSize:    maxSize,
		defaultTTL: defaultTTL,
		perKindTTL: perKindTTL,
		items:      make(map[string]*list.Element),
		order:      list.New(),
	}
}

// Key computes the cache key for kind and canonical args, per spec.md
// §4.6: lowercase hex of a collision-resistant hash of canonical JSON.
func Key(kind catalog.Kind, canonicalArgs any) string {
	canon := canonicalJSON(canonicalArgs)
	sum := sha256.Sum256([]byte(string(kind) + "\x00" + canon))
	return hex.EncodeToString(sum[:])
}

// canonicalJSON marshals v with object keys sorted, so semantically
// identical argument trees always hash to the same key regardless of map
// iteration order.
func canonicalJSON(v any) string {
	data, err := json.Marshal(sortKeys(v))
	if err != nil {
		return ""
	}
	return string(data)
}

func sortKeys(v any) any {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ordered := make([]orderedPair, len(keys))
		for i, k := range keys {
			ordered[i] = orderedPair{Key: k, Value: sortKeys(t[k])}
		}
		return ordered
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = sortKeys(e)
		}
		return out
	default:
		return t
	}
}

// orderedPair serializes as a two-field object so key order in the
// marshaled output is stable (Go's encoding/json always sorts real map
// keys too, but we route through this type to keep the canonicalization
// logic explicit and independent of that implementation detail).
type orderedPair struct {
	Key   string `json:"k"`
	Value any    `json:"v"`
}

// Get returns the cached value for key if present and not expired.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	e := el.Value.(*entry)
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		c.order.Remove(el)
		delete(c.items, key)
		c.misses++
		return nil, false
	}
	c.order.MoveToFront(el)
	c.hits++
	return e.value, true
}

// Set inserts value under key for kind, computing its TTL from perKindTTL
// or defaultTTL. A zero TTL means the entry never expires by time (still
// subject to LRU eviction).
func (c *Cache) Set(key string, kind catalog.Kind, value any) {
	ttl, ok := c.perKindTTL[kind]
	if !ok {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry)
		e.kind = kind
		e.value = value
		e.insertedAt = time.Now()
		e.expiresAt = expiresAt
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(&entry{key: key, kind: kind, value: value, insertedAt: time.Now(), expiresAt: expiresAt})
	c.items[key] = el

	for c.order.Len() > c.maxSize {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*entry).key)
		c.evictions++
	}
}

// Invalidate clears entries. With kind == "" it clears the whole cache;
// otherwise it removes only entries cached under that operation kind,
// per spec.md §4.6's `invalidate(kind?)`.
func (c *Cache) Invalidate(kind catalog.Kind) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if kind == "" {
		c.items = make(map[string]*list.Element)
		c.order = list.New()
		return
	}

	for key, el := range c.items {
		if el.Value.(*entry).kind == kind {
			c.order.Remove(el)
			delete(c.items, key)
		}
	}
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Evictions: c.evictions, Size: c.order.Len()}
}
