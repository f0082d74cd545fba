package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/tugasin/tugasin-blog/types"
	"github.com/tugasin/tugasin-blog/utils"
)

type RedisConfig struct {
	Addr               string `json:"addr"`
	Password           string `json:"password"`
	DB                 int    `json:"db"`
	PoolSize           int    `json:"pool_size"`
	MinIdleConnections int    `json:"min_idle_connections"`
	DialTimeoutSec     int    `json:"dial_timeout_sec"`
	IOTimeoutSec       int    `json:"io_timeout_sec"`
	KeyPrefix          string `json:"key_prefix"`
}

// RedisCache shares entries between replicas. Values are msgpack encoded; Get hands back Encoded
// bytes that Load decodes into the caller's type.
type RedisCache struct {
	ctx        context.Context
	logger     types.Logger
	config     *RedisConfig
	client     redis.UniversalClient
	defaultTTL time.Duration
	started    int32
}

func NewRedisCache(ctx context.Context, logger types.Logger, config *types.CacheConfig) (*RedisCache, error) {
	redisConfig := &RedisConfig{
		Addr:               "localhost:6379",
		PoolSize:           10,
		MinIdleConnections: 2,
		DialTimeoutSec:     5,
		IOTimeoutSec:       3,
		KeyPrefix:          "tugasin-blog",
	}

	if config.Config != nil {
		if err := utils.UnmarshalConfig(config.Config, redisConfig); err != nil {
			return nil, types.WrapError(err, "failed to unmarshal redis cache config")
		}
	}

	client := redis.NewClient(&redis.Options{
		Addr:         redisConfig.Addr,
		Password:     redisConfig.Password,
		DB:           redisConfig.DB,
		PoolSize:     redisConfig.PoolSize,
		MinIdleConns: redisConfig.MinIdleConnections,
		DialTimeout:  time.Duration(redisConfig.DialTimeoutSec) * time.Second,
		ReadTimeout:  time.Duration(redisConfig.IOTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(redisConfig.IOTimeoutSec) * time.Second,
	})

	cache := newRedisCacheWithClient(ctx, logger, client, redisConfig, config.DefaultTTL)

	if err := cache.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, types.Errorf(types.ErrCacheConnectionFailed, "%s: %v", redisConfig.Addr, err)
	}

	return cache, nil
}

func newRedisCacheWithClient(ctx context.Context, logger types.Logger, client redis.UniversalClient, config *RedisConfig, defaultTTL time.Duration) *RedisCache {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}

	return &RedisCache{
		ctx:        ctx,
		logger:     logger,
		config:     config,
		client:     client,
		defaultTTL: defaultTTL,
	}
}

func (r *RedisCache) Get(key string) (interface{}, bool) {
	if key == "" {
		return nil, false
	}

	data, err := r.client.Get(r.ctx, r.buildFullKey(key)).Bytes()
	if err != nil {
		if !types.IsError(err, redis.Nil) {
			r.logger.Error("Failed to get cache entry", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	return Encoded(data), true
}

func (r *RedisCache) Set(key string, value interface{}, ttl time.Duration, tags ...string) error {
	if key == "" {
		return types.ErrCacheKeyEmpty
	}

	if ttl <= 0 {
		ttl = r.defaultTTL
	}
	if ttl > MaxTTL {
		ttl = MaxTTL
	}

	data, err := encodeValue(value)
	if err != nil {
		return types.Errorf(types.ErrCacheOperationFailed, "encode %s: %v", key, err)
	}

	fullKey := r.buildFullKey(key)
	linksKey := r.buildLinksKey(key)

	previous, err := r.client.SMembers(r.ctx, linksKey).Result()
	if err != nil {
		r.logger.Error("Failed to read cache entry tags", zap.String("key", key), zap.Error(err))
		return types.WrapError(err, "failed to read cache entry tags")
	}

	_, err = r.client.TxPipelined(r.ctx, func(pipe redis.Pipeliner) error {
		for _, tag := range previous {
			pipe.SRem(r.ctx, r.buildTagKey(tag), fullKey)
		}
		pipe.Del(r.ctx, linksKey)

		pipe.Set(r.ctx, fullKey, data, ttl)
		for _, tag := range tags {
			tagKey := r.buildTagKey(tag)
			pipe.SAdd(r.ctx, tagKey, fullKey)
			pipe.Expire(r.ctx, tagKey, MaxTTL)
			pipe.SAdd(r.ctx, linksKey, tag)
		}
		if len(tags) > 0 {
			pipe.Expire(r.ctx, linksKey, ttl)
		}
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to set cache entry", zap.String("key", key), zap.Error(err))
		return types.WrapError(err, "failed to set cache entry")
	}

	return nil
}

func (r *RedisCache) Delete(key string) error {
	if key == "" {
		return nil
	}

	fullKey := r.buildFullKey(key)
	linksKey := r.buildLinksKey(key)

	previous, err := r.client.SMembers(r.ctx, linksKey).Result()
	if err != nil {
		return types.WrapError(err, "failed to read cache entry tags")
	}

	_, err = r.client.TxPipelined(r.ctx, func(pipe redis.Pipeliner) error {
		for _, tag := range previous {
			pipe.SRem(r.ctx, r.buildTagKey(tag), fullKey)
		}
		pipe.Del(r.ctx, fullKey, linksKey)
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to delete cache key", zap.String("key", key), zap.Error(err))
		return types.WrapError(err, "failed to delete cache key")
	}

	return nil
}

// InvalidateByTag deletes the members of each tag set and the set itself. Members already gone
// are ignored by DEL.
func (r *RedisCache) InvalidateByTag(tags ...string) error {
	for _, tag := range tags {
		tagKey := r.buildTagKey(tag)

		members, err := r.client.SMembers(r.ctx, tagKey).Result()
		if err != nil {
			return types.WrapError(err, "failed to read tag "+tag)
		}

		keys := append(members, tagKey)
		if err := r.client.Del(r.ctx, keys...).Err(); err != nil {
			return types.WrapError(err, "failed to invalidate tag "+tag)
		}

		r.logger.Debug("Cache entries invalidated by tag", zap.String("tag", tag), zap.Int("entries", len(members)))
	}

	return nil
}

func (r *RedisCache) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return r.client.Ping(ctx).Err()
}

func (r *RedisCache) Start() error {
	if !atomic.CompareAndSwapInt32(&r.started, 0, 1) {
		return types.ErrServerAlreadyRunning
	}

	r.logger.Info("Redis cache started", zap.String("addr", r.config.Addr), zap.String("prefix", r.config.KeyPrefix))
	return nil
}

func (r *RedisCache) Stop() error {
	if !atomic.CompareAndSwapInt32(&r.started, 1, 0) {
		return types.ErrServerNotRunning
	}

	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close Redis client", zap.Error(err))
		return types.WrapError(err, "failed to close redis client")
	}

	r.logger.Info("Redis cache closed")
	return nil
}

func (r *RedisCache) IsRunning() bool {
	return atomic.LoadInt32(&r.started) == 1
}

func (r *RedisCache) buildFullKey(key string) string {
	if r.config.KeyPrefix != "" {
		return fmt.Sprintf("%s:%s", r.config.KeyPrefix, key)
	}
	return key
}

func (r *RedisCache) buildTagKey(tag string) string {
	return r.buildFullKey("tag:" + tag)
}

// buildLinksKey names the set of tags a key was last stored with.
func (r *RedisCache) buildLinksKey(key string) string {
	return r.buildFullKey("tags:" + key)
}

func encodeValue(value interface{}) ([]byte, error) {
	if raw, ok := value.(Encoded); ok {
		return raw, nil
	}
	return msgpack.Marshal(value)
}
