package resultcache_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/agentforge/flowengine/catalog"
	"github.com/agentforge/flowengine/resultcache"
)

func TestCacheGetSetRoundTrip(t *testing.T) {
	c := resultcache.New(10, time.Minute, nil)
	key := resultcache.Key(catalog.KindApiCall, map[string]any{"url": "https://x"})

	_, ok := c.Get(key)
	assert.False(t, ok)

	c.Set(key, catalog.KindApiCall, "result")
	v, ok := c.Get(key)
	assert.True(t, ok)
	assert.Equal(t, "result", v)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestCacheEvictsOldestBeyondMaxSize(t *testing.T) {
	c := resultcache.New(2, time.Minute, nil)
	keyA := resultcache.Key(catalog.KindApiCall, "a")
	keyB := resultcache.Key(catalog.KindApiCall, "b")
	keyC := resultcache.Key(catalog.KindApiCall, "c")

	c.Set(keyA, catalog.KindApiCall, "A")
	c.Set(keyB, catalog.KindApiCall, "B")
	c.Set(keyC, catalog.KindApiCall, "C")

	_, ok := c.Get(keyA)
	assert.False(t, ok, "oldest entry must be evicted once maxSize is exceeded")
	assert.Equal(t, 1, int(c.Stats().Evictions))
}

func TestCacheInvalidateAll(t *testing.T) {
	c := resultcache.New(10, time.Minute, nil)
	keyA := resultcache.Key(catalog.KindApiCall, "a")
	keyB := resultcache.Key(catalog.KindFilterData, "b")
	c.Set(keyA, catalog.KindApiCall, "A")
	c.Set(keyB, catalog.KindFilterData, "B")

	c.Invalidate("")

	_, okA := c.Get(keyA)
	_, okB := c.Get(keyB)
	assert.False(t, okA)
	assert.False(t, okB)
}

func TestCacheInvalidateByKind(t *testing.T) {
	c := resultcache.New(10, time.Minute, nil)
	keyA := resultcache.Key(catalog.KindApiCall, "a")
	keyB := resultcache.Key(catalog.KindFilterData, "b")
	c.Set(keyA, catalog.KindApiCall, "A")
	c.Set(keyB, catalog.KindFilterData, "B")

	c.Invalidate(catalog.KindApiCall)

	_, okA := c.Get(keyA)
	vB, okB := c.Get(keyB)
	assert.False(t, okA, "entries of the invalidated kind must be gone")
	assert.True(t, okB, "entries of other kinds must survive a kind-scoped invalidate")
	assert.Equal(t, "B", vB)
}

func TestCacheEntryExpiresAfterTTL(t *testing.T) {
	c := resultcache.New(10, time.Millisecond, nil)
	key := resultcache.Key(catalog.KindApiCall, "a")
	c.Set(key, catalog.KindApiCall, "A")
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get(key)
	assert.False(t, ok)
}
