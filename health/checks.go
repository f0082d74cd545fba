package health

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tugasin/tugasin-blog/cache"
	"github.com/tugasin/tugasin-blog/types"
)

const cacheProbeKey = "health:probe"

// CMSCheck reports the CMS as a degrading dependency: posts keep being served from cache while it is down.
func CMSCheck(probe func(ctx context.Context) bool) types.HealthChecker {
	return func(ctx context.Context) types.HealthCheck {
		if probe(ctx) {
			return types.HealthCheck{Status: types.StatusHealthy, Optional: true}
		}
		return types.HealthCheck{Status: types.StatusUnhealthy, Message: "CMS unreachable", Optional: true}
	}
}

// CacheCheck writes a random token and reads it back.
func CacheCheck(store types.CacheManager) types.HealthChecker {
	return func(ctx context.Context) types.HealthCheck {
		token := uuid.NewString()

		if err := store.Set(cacheProbeKey, token, 10*time.Second); err != nil {
			return types.HealthCheck{Status: types.StatusUnhealthy, Message: err.Error()}
		}

		got, ok := cache.Load[string](store, cacheProbeKey)
		if !ok {
			return types.HealthCheck{Status: types.StatusUnhealthy, Message: "cache round trip lost the value"}
		}
		if got != token {
			return types.HealthCheck{Status: types.StatusUnhealthy, Message: "cache round trip returned another value"}
		}

		return types.HealthCheck{Status: types.StatusHealthy}
	}
}

func StorageCheck(store types.ObjectStore) types.HealthChecker {
	return func(ctx context.Context) types.HealthCheck {
		if err := store.Ping(ctx); err != nil {
			return types.HealthCheck{Status: types.StatusUnhealthy, Message: err.Error(), Optional: true}
		}
		return types.HealthCheck{Status: types.StatusHealthy, Optional: true}
	}
}

// CertificateCheck degrades when the served certificate expires within warnBefore.
func CertificateCheck(expiry func() (time.Time, bool), warnBefore time.Duration) types.HealthChecker {
	return func(ctx context.Context) types.HealthCheck {
		notAfter, ok := expiry()
		if !ok {
			return types.HealthCheck{Status: types.StatusHealthy, Message: "managed by ACME"}
		}

		remaining := time.Until(notAfter)
		switch {
		case remaining <= 0:
			return types.HealthCheck{Status: types.StatusUnhealthy, Message: "certificate expired"}
		case remaining < warnBefore:
			return types.HealthCheck{
				Status:  types.StatusDegraded,
				Message: fmt.Sprintf("certificate expires in %s", remaining.Round(time.Hour)),
			}
		}
		return types.HealthCheck{Status: types.StatusHealthy}
	}
}
