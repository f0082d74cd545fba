package client

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tugasin/tugasin-blog/types"
)

type BreakerState int32

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker stops calling an upstream after FailureThreshold consecutive failures. After
// RecoveryTimeout it lets probes through; HalfOpenRequests successes close it again, one failure
// reopens it. A nil or disabled Breaker always allows.
type Breaker struct {
	config    types.CircuitBreakerConfig
	logger    types.Logger
	name      string
	state     BreakerState
	failures  int
	successes int
	openedAt  time.Time
	mu        sync.Mutex
	now       func() time.Time
}

func NewBreaker(config *types.CircuitBreakerConfig, logger types.Logger, name string) *Breaker {
	if config == nil || !config.Enabled {
		return nil
	}

	cfg := *config
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 30 * time.Second
	}
	if cfg.HalfOpenRequests <= 0 {
		cfg.HalfOpenRequests = 1
	}

	return &Breaker{
		config: cfg,
		logger: logger,
		name:   name,
		now:    time.Now,
	}
}

func (b *Breaker) Allow() bool {
	if b == nil {
		return true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerOpen {
		if b.now().Sub(b.openedAt) < b.config.RecoveryTimeout {
			return false
		}
		b.transition(BreakerHalfOpen)
	}

	return true
}

func (b *Breaker) RecordSuccess() {
	if b == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		b.failures = 0
	case BreakerHalfOpen:
		b.successes++
		if b.successes >= b.config.HalfOpenRequests {
			b.transition(BreakerClosed)
		}
	}
}

func (b *Breaker) RecordFailure() {
	if b == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		b.failures++
		if b.failures >= b.config.FailureThreshold {
			b.transition(BreakerOpen)
		}
	case BreakerHalfOpen:
		b.transition(BreakerOpen)
	}
}

func (b *Breaker) State() BreakerState {
	if b == nil {
		return BreakerClosed
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// transition is called with mu held.
func (b *Breaker) transition(to BreakerState) {
	from := b.state
	b.state = to
	b.successes = 0

	switch to {
	case BreakerOpen:
		b.openedAt = b.now()
		b.logger.Warn("Circuit breaker opened",
			zap.String("service", b.name),
			zap.Int("failures", b.failures),
			zap.Int("threshold", b.config.FailureThreshold))
	case BreakerClosed:
		b.failures = 0
		b.logger.Info("Circuit breaker closed", zap.String("service", b.name))
	default:
		b.logger.Info("Circuit breaker half-open",
			zap.String("service", b.name),
			zap.String("from", from.String()))
	}
}
