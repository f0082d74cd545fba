package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"github.com/tugasin/tugasin-blog/logger"
	"github.com/tugasin/tugasin-blog/types"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestMemoryCache(t *testing.T) (*MemoryCache, *fakeClock) {
	t.Helper()

	c, err := NewMemoryCache(context.Background(), logger.NewZapWrapper(zap.NewNop()), &types.CacheConfig{Type: "memory"})
	assert.NilError(t, err)

	clock := &fakeClock{now: time.Date(2024, 12, 15, 10, 0, 0, 0, time.UTC)}
	c.now = clock.Now
	return c, clock
}

func TestMemoryCacheSetGet(t *testing.T) {
	c, _ := newTestMemoryCache(t)

	assert.NilError(t, c.Set("post:a", "A", time.Minute))

	v, ok := c.Get("post:a")
	assert.Assert(t, ok)
	assert.Equal(t, v, "A")

	_, ok = c.Get("post:missing")
	assert.Check(t, !ok)
}

func TestMemoryCacheEmptyKey(t *testing.T) {
	c, _ := newTestMemoryCache(t)
	assert.ErrorIs(t, c.Set("", "x", time.Minute), types.ErrCacheKeyEmpty)
}

func TestMemoryCacheExpiryIsLazy(t *testing.T) {
	c, clock := newTestMemoryCache(t)

	assert.NilError(t, c.Set("k", 1, time.Minute, "t"))
	clock.Advance(59 * time.Second)
	_, ok := c.Get("k")
	assert.Check(t, ok)

	clock.Advance(time.Second)
	_, ok = c.Get("k")
	assert.Check(t, !ok, "entry must not be returned at its expiry instant")
	assert.Check(t, is.Equal(c.Len(), 0))
	assert.Check(t, is.Len(c.tags, 0), "tag links are dropped with the entry")
}

func TestMemoryCacheTTLBounds(t *testing.T) {
	c, clock := newTestMemoryCache(t)

	assert.NilError(t, c.Set("default", 1, 0))
	assert.NilError(t, c.Set("capped", 1, 48*time.Hour))

	clock.Advance(DefaultTTL)
	_, ok := c.Get("default")
	assert.Check(t, !ok)

	_, ok = c.Get("capped")
	assert.Check(t, ok)

	clock.Advance(MaxTTL - DefaultTTL)
	_, ok = c.Get("capped")
	assert.Check(t, !ok)
}

func TestMemoryCacheOverwriteReplacesTags(t *testing.T) {
	c, _ := newTestMemoryCache(t)

	assert.NilError(t, c.Set("k", "old", time.Hour, "sitemap"))
	assert.NilError(t, c.Set("k", "new", time.Hour, "categories"))

	assert.NilError(t, c.InvalidateByTag("sitemap"))
	v, ok := c.Get("k")
	assert.Assert(t, ok)
	assert.Equal(t, v, "new")

	assert.NilError(t, c.InvalidateByTag("categories"))
	_, ok = c.Get("k")
	assert.Check(t, !ok)
}

func TestMemoryCacheInvalidateByTag(t *testing.T) {
	c, _ := newTestMemoryCache(t)

	assert.NilError(t, c.Set("sitemap_posts_all", []string{"a"}, time.Hour, "sitemap"))
	assert.NilError(t, c.Set("sitemap_chunk_1", []string{"a"}, time.Hour, "sitemap", "chunks"))
	assert.NilError(t, c.Set("categories", []string{"x"}, time.Hour, "categories"))
	assert.NilError(t, c.Set("untagged", 1, time.Hour))

	assert.NilError(t, c.InvalidateByTag("sitemap"))

	_, ok := c.Get("sitemap_posts_all")
	assert.Check(t, !ok)
	_, ok = c.Get("sitemap_chunk_1")
	assert.Check(t, !ok)
	_, ok = c.Get("categories")
	assert.Check(t, ok)
	_, ok = c.Get("untagged")
	assert.Check(t, ok)
	_, ok = c.tags["chunks"]
	assert.Check(t, !ok)
}

func TestMemoryCacheInvalidateByTagIgnoresTTL(t *testing.T) {
	c, clock := newTestMemoryCache(t)

	assert.NilError(t, c.Set("a", 1, time.Second, "t"))
	clock.Advance(time.Hour)
	assert.NilError(t, c.InvalidateByTag("t"))
	assert.Check(t, is.Equal(c.Len(), 0))
}

func TestMemoryCacheDelete(t *testing.T) {
	c, _ := newTestMemoryCache(t)

	assert.NilError(t, c.Set("a", 1, time.Hour, "t"))
	assert.NilError(t, c.Delete("a"))
	assert.NilError(t, c.Delete("never-set"))

	_, ok := c.Get("a")
	assert.Check(t, !ok)
	assert.Check(t, is.Len(c.tags, 0))
}

func TestMemoryCacheCleanupSweepsExpired(t *testing.T) {
	c, clock := newTestMemoryCache(t)

	assert.NilError(t, c.Set("short", 1, time.Minute, "t"))
	assert.NilError(t, c.Set("long", 1, time.Hour, "t"))
	clock.Advance(2 * time.Minute)

	c.cleanup()

	assert.Check(t, is.Equal(c.Len(), 1))
	assert.Check(t, is.Len(c.tags["t"], 1))
}

func TestMemoryCacheLifecycle(t *testing.T) {
	c, _ := newTestMemoryCache(t)

	assert.NilError(t, c.Start())
	assert.Check(t, c.IsRunning())
	assert.ErrorIs(t, c.Start(), types.ErrServerAlreadyRunning)

	assert.NilError(t, c.Set("a", 1, time.Hour))
	assert.NilError(t, c.Stop())
	assert.Check(t, !c.IsRunning())
	assert.Check(t, is.Equal(c.Len(), 0))
	assert.ErrorIs(t, c.Stop(), types.ErrServerNotRunning)
}

func TestMemoryCacheConcurrentAccess(t *testing.T) {
	c, _ := newTestMemoryCache(t)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = c.Set("k", j, time.Minute, "t")
				c.Get("k")
				if j%10 == 0 {
					_ = c.InvalidateByTag("t")
				}
			}
		}(i)
	}
	wg.Wait()
}
