package cache

import (
	"context"
	"time"

	"github.com/tugasin/tugasin-blog/types"
)

func NewCacheManager(ctx context.Context, config *types.CacheConfig, logger types.Logger, metrics types.MetricsManager) (types.CacheManager, error) {
	if config == nil {
		return nil, types.ErrConfigIsNil
	}

	var impl types.CacheManager
	var err error

	switch config.Type {
	case "", "memory":
		impl, err = NewMemoryCache(ctx, logger, config)
	case "redis":
		impl, err = NewRedisCache(ctx, logger, config)
	default:
		return nil, types.Errorf(types.ErrCacheTypeUnknown, "type: %s", config.Type)
	}

	if err != nil {
		return nil, err
	}

	if metrics == nil {
		return impl, nil
	}

	return newInstrumentedCacheManager(metrics, impl), nil
}

type instrumentedCacheManager struct {
	impl    types.CacheManager
	metrics types.MetricsManager
}

func newInstrumentedCacheManager(metrics types.MetricsManager, impl types.CacheManager) types.CacheManager {
	return &instrumentedCacheManager{
		impl:    impl,
		metrics: metrics,
	}
}

func (icm *instrumentedCacheManager) Get(key string) (interface{}, bool) {
	start := time.Now()
	value, exists := icm.impl.Get(key)

	result := "miss"
	if exists {
		result = "hit"
	}

	icm.recordMetric("get", result, time.Since(start))
	return value, exists
}

func (icm *instrumentedCacheManager) Set(key string, value interface{}, ttl time.Duration, tags ...string) error {
	start := time.Now()
	err := icm.impl.Set(key, value, ttl, tags...)
	icm.recordMetric("set", resultOf(err), time.Since(start))
	return err
}

func (icm *instrumentedCacheManager) Delete(key string) error {
	start := time.Now()
	err := icm.impl.Delete(key)
	icm.recordMetric("delete", resultOf(err), time.Since(start))
	return err
}

func (icm *instrumentedCacheManager) InvalidateByTag(tags ...string) error {
	start := time.Now()
	err := icm.impl.InvalidateByTag(tags...)
	icm.recordMetric("invalidate", resultOf(err), time.Since(start))
	return err
}

func (icm *instrumentedCacheManager) Start() error {
	return icm.impl.Start()
}

func (icm *instrumentedCacheManager) Stop() error {
	return icm.impl.Stop()
}

func (icm *instrumentedCacheManager) IsRunning() bool {
	return icm.impl.IsRunning()
}

// Unwrap exposes the backend, used by health checks that need backend specific probes.
func (icm *instrumentedCacheManager) Unwrap() types.CacheManager {
	return icm.impl
}

func (icm *instrumentedCacheManager) recordMetric(operation, result string, duration time.Duration) {
	icm.metrics.Counter("cache_operations_total", map[string]string{
		"operation": operation,
		"result":    result,
	}).Inc()

	icm.metrics.Histogram("cache_operation_duration_seconds",
		[]float64{0.0001, 0.001, 0.01, 0.1, 1.0},
		map[string]string{"operation": operation},
	).Observe(duration.Seconds())
}

func resultOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
