package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gotest.tools/v3/assert"

	"github.com/tugasin/tugasin-blog/logger"
	"github.com/tugasin/tugasin-blog/types"
)

// Runs against a live server when REDIS_ADDR is set.
func newTestRedisCache(t *testing.T) *RedisCache {
	t.Helper()

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	c, err := NewRedisCache(context.Background(), logger.NewZapWrapper(zap.NewNop()), &types.CacheConfig{
		Type:   "redis",
		Config: map[string]interface{}{"addr": addr, "key_prefix": "test-" + uuid.NewString()},
	})
	assert.NilError(t, err)
	assert.NilError(t, c.Start())
	t.Cleanup(func() { _ = c.Stop() })
	return c
}

func TestRedisCacheRoundTrip(t *testing.T) {
	c := newTestRedisCache(t)

	item := stampedItem{Value: []string{"x"}, FetchedAt: time.Now().UTC().Truncate(time.Millisecond)}
	assert.NilError(t, c.Set("post:x", item, time.Minute))

	got, ok := Load[stampedItem](c, "post:x")
	assert.Assert(t, ok)
	assert.DeepEqual(t, got.Value, item.Value)
}

func TestRedisCacheInvalidateByTag(t *testing.T) {
	c := newTestRedisCache(t)

	assert.NilError(t, c.Set("a", 1, time.Minute, "sitemap"))
	assert.NilError(t, c.Set("b", 2, time.Minute))
	assert.NilError(t, c.InvalidateByTag("sitemap"))

	_, ok := c.Get("a")
	assert.Check(t, !ok)
	_, ok = c.Get("b")
	assert.Check(t, ok)
}

func TestRedisCacheOverwriteReplacesTags(t *testing.T) {
	c := newTestRedisCache(t)

	assert.NilError(t, c.Set("a", 1, time.Minute, "sitemap", "posts"))
	assert.NilError(t, c.Set("a", 2, time.Minute, "posts"))

	members, err := c.client.SMembers(context.Background(), c.buildTagKey("sitemap")).Result()
	assert.NilError(t, err)
	assert.Check(t, len(members) == 0)

	assert.NilError(t, c.InvalidateByTag("sitemap"))
	_, ok := c.Get("a")
	assert.Check(t, ok)

	assert.NilError(t, c.Delete("a"))
	members, err = c.client.SMembers(context.Background(), c.buildTagKey("posts")).Result()
	assert.NilError(t, err)
	assert.Check(t, len(members) == 0)
}
