package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tugasin/tugasin-blog/types"
	"github.com/tugasin/tugasin-blog/utils"
)

const (
	MaxTTL     = 24 * time.Hour
	DefaultTTL = 5 * time.Minute
)

type MemoryConfig struct {
	CleanupInterval string `json:"cleanup_interval"`
}

// MemoryCache is the in-process backend. Expired entries are dropped when read; the cleanup routine
// only bounds memory held by keys nobody reads again.
type MemoryCache struct {
	ctx         context.Context
	cancel      context.CancelFunc
	config      *MemoryConfig
	logger      types.Logger
	defaultTTL  time.Duration
	data        map[string]*types.CacheEntry
	tags        map[string]map[string]struct{}
	mu          sync.RWMutex
	state       atomic.Value
	cleanupDone chan struct{}
	now         func() time.Time
}

func NewMemoryCache(ctx context.Context, logger types.Logger, config *types.CacheConfig) (*MemoryCache, error) {
	memConfig := &MemoryConfig{
		CleanupInterval: "5m",
	}

	if config.Config != nil {
		if err := utils.UnmarshalConfig(config.Config, memConfig); err != nil {
			return nil, types.WrapError(err, "failed to unmarshal memory cache config")
		}
	}

	defaultTTL := config.DefaultTTL
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}

	cacheCtx, cancel := context.WithCancel(ctx)

	cache := &MemoryCache{
		ctx:         cacheCtx,
		cancel:      cancel,
		logger:      logger,
		config:      memConfig,
		defaultTTL:  defaultTTL,
		data:        make(map[string]*types.CacheEntry),
		tags:        make(map[string]map[string]struct{}),
		cleanupDone: make(chan struct{}),
		now:         time.Now,
	}

	cache.state.Store(types.StateStopped)

	return cache, nil
}

func (m *MemoryCache) Get(key string) (interface{}, bool) {
	now := m.now()

	m.mu.RLock()
	entry, exists := m.data[key]
	if !exists {
		m.mu.RUnlock()
		return nil, false
	}

	if !now.Before(entry.ExpiresAt) {
		m.mu.RUnlock()

		m.mu.Lock()
		// Re-check: a writer may have replaced the entry between the locks.
		if current, ok := m.data[key]; ok && !now.Before(current.ExpiresAt) {
			m.removeEntryUnsafe(key)
		}
		m.mu.Unlock()

		return nil, false
	}

	value := entry.Value
	m.mu.RUnlock()

	return value, true
}

func (m *MemoryCache) Set(key string, value interface{}, ttl time.Duration, tags ...string) error {
	if key == "" {
		m.logger.Error("Attempted to set cache entry with empty key")
		return types.ErrCacheKeyEmpty
	}

	ttl = m.clampTTL(ttl)

	now := m.now()
	entry := &types.CacheEntry{
		Key:       key,
		Value:     value,
		TTL:       ttl,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		Tags:      append([]string(nil), tags...),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.data[key]; exists {
		m.removeEntryUnsafe(key)
	}

	m.data[key] = entry
	for _, tag := range entry.Tags {
		keys, ok := m.tags[tag]
		if !ok {
			keys = make(map[string]struct{})
			m.tags[tag] = keys
		}
		keys[key] = struct{}{}
	}

	return nil
}

func (m *MemoryCache) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.removeEntryUnsafe(key)
	return nil
}

// InvalidateByTag removes every entry carrying any of tags, expired or not.
func (m *MemoryCache) InvalidateByTag(tags ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for _, tag := range tags {
		for key := range m.tags[tag] {
			m.removeEntryUnsafe(key)
			removed++
		}
		delete(m.tags, tag)
	}

	if removed > 0 {
		m.logger.Debug("Cache entries invalidated by tag", zap.Strings("tags", tags), zap.Int("entries", removed))
	}

	return nil
}

func (m *MemoryCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

func (m *MemoryCache) Start() error {
	if !m.transitionState(types.StateStopped, types.StateStarting) {
		m.logger.Warn("Memory cache is already running")
		return types.ErrServerAlreadyRunning
	}

	interval, err := time.ParseDuration(m.config.CleanupInterval)
	if err != nil || interval <= 0 {
		m.logger.Warn("Invalid cleanup interval, using default 5m",
			zap.String("interval", m.config.CleanupInterval))
		interval = 5 * time.Minute
	}

	go m.cleanupRoutine(interval)

	m.setState(types.StateRunning)
	m.logger.Info("Memory cache started", zap.Duration("cleanup_interval", interval))
	return nil
}

func (m *MemoryCache) Stop() error {
	if !m.transitionState(types.StateRunning, types.StateStopping) {
		m.logger.Warn("Memory cache is not running")
		return types.ErrServerNotRunning
	}

	defer m.setState(types.StateStopped)

	m.cancel()

	select {
	case <-m.cleanupDone:
	case <-time.After(5 * time.Second):
		m.logger.Warn("Cleanup routine stop timeout")
	}

	m.mu.Lock()
	entries := len(m.data)
	m.data = make(map[string]*types.CacheEntry)
	m.tags = make(map[string]map[string]struct{})
	m.mu.Unlock()

	m.logger.Info("Memory cache stopped", zap.Int("cleared_entries", entries))
	return nil
}

func (m *MemoryCache) IsRunning() bool {
	return m.getState() == types.StateRunning
}

func (m *MemoryCache) clampTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	if ttl > MaxTTL {
		ttl = MaxTTL
	}
	return ttl
}

func (m *MemoryCache) getState() types.State {
	return m.state.Load().(types.State)
}

func (m *MemoryCache) setState(newState types.State) {
	m.state.Store(newState)
}

func (m *MemoryCache) transitionState(from, to types.State) bool {
	return m.state.CompareAndSwap(from, to)
}

func (m *MemoryCache) cleanup() {
	now := m.now()

	m.mu.Lock()
	expired := 0
	for key, entry := range m.data {
		if !now.Before(entry.ExpiresAt) {
			m.removeEntryUnsafe(key)
			expired++
		}
	}
	m.mu.Unlock()

	if expired > 0 {
		m.logger.Debug("Cleanup completed", zap.Int("expired_entries", expired))
	}
}

func (m *MemoryCache) cleanupRoutine(interval time.Duration) {
	defer close(m.cleanupDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.cleanup()
		}
	}
}

// removeEntryUnsafe drops key and its tag links. Caller holds mu.
func (m *MemoryCache) removeEntryUnsafe(key string) {
	entry, exists := m.data[key]
	if !exists {
		return
	}

	for _, tag := range entry.Tags {
		if keys, ok := m.tags[tag]; ok {
			delete(keys, key)
			if len(keys) == 0 {
				delete(m.tags, tag)
			}
		}
	}

	delete(m.data, key)
}
