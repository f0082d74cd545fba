package types

import (
	"time"
)

// CacheManager is a key/value store with per-entry TTL and tag-based bulk invalidation.
type CacheManager interface {
	LifecycleManager
	Get(key string) (interface{}, bool)
	Set(key string, value interface{}, ttl time.Duration, tags ...string) error
	Delete(key string) error
	InvalidateByTag(tags ...string) error
}

type CacheEntry struct {
	Key       string        `json:"key"`
	Value     interface{}   `json:"value"`
	TTL       time.Duration `json:"ttl"`
	CreatedAt time.Time     `json:"created_at"`
	ExpiresAt time.Time     `json:"expires_at"`
	Tags      []string      `json:"tags"`
}
