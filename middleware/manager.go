package middleware

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/tugasin/tugasin-blog/types"
	"github.com/tugasin/tugasin-blog/utils"
)

const MaxMiddlewares = 32

// Manager orders middlewares by weight and wraps the router dispatch with them. Registration is
// closed by the first Wrap.
type Manager struct {
	config      types.ConfigManager
	logger      types.Logger
	metrics     types.MetricsManager
	middlewares map[string]types.Middleware
	ordered     []types.Middleware
	mu          sync.RWMutex
	finalized   int32
}

func NewManager(config types.ConfigManager, logger types.Logger, metrics types.MetricsManager) *Manager {
	return &Manager{
		config:      config,
		logger:      logger,
		metrics:     metrics,
		middlewares: make(map[string]types.Middleware),
	}
}

// RegisterMiddlewares registers every middleware enabled in config.
func (m *Manager) RegisterMiddlewares() error {
	cfg := m.config.GetConfig().Middlewares
	if cfg == nil || !cfg.Enabled {
		m.logger.Info("Middlewares disabled")
		return nil
	}

	candidates := []struct {
		item  *types.MiddlewareItemConfig
		build func() types.Middleware
	}{
		{cfg.Recovery, func() types.Middleware { return NewRecoveryMiddleware(cfg.Recovery, m.logger, m.metrics) }},
		{cfg.Logging, func() types.Middleware { return NewLoggingMiddleware(cfg.Logging, m.logger, m.metrics) }},
		{cfg.Metadata, func() types.Middleware { return NewMetadataMiddleware(cfg.Metadata, m.logger) }},
		{cfg.TrailingSlash, func() types.Middleware { return NewTrailingSlashMiddleware(cfg.TrailingSlash, m.logger) }},
		{cfg.Rewrite, func() types.Middleware { return NewRewriteMiddleware(cfg.Rewrite, m.logger) }},
		{cfg.Compression, func() types.Middleware { return NewCompressionMiddleware(cfg.Compression, m.logger, m.metrics) }},
	}

	for _, c := range candidates {
		if c.item == nil || !c.item.Enabled {
			continue
		}

		mw := c.build()
		if err := m.Register(mw); err != nil {
			return err
		}
		m.logger.Info("Middleware registered", zap.String("name", mw.Name()), zap.Int("weight", mw.Weight()))
	}

	return nil
}

func (m *Manager) Register(middleware types.Middleware) error {
	if middleware == nil {
		return types.ErrMiddlewareInvalid
	}

	if atomic.LoadInt32(&m.finalized) == 1 {
		return types.ErrMiddlewareFinalized
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.middlewares) >= MaxMiddlewares {
		return types.NewErrorf("maximum middleware count exceeded: %d", MaxMiddlewares)
	}

	for name, existing := range m.middlewares {
		if existing.Weight() == middleware.Weight() && name != middleware.Name() {
			return types.NewErrorf("duplicate weight %d for middlewares '%s' and '%s'",
				middleware.Weight(), name, middleware.Name())
		}
	}

	m.middlewares[middleware.Name()] = middleware
	return nil
}

func (m *Manager) finalize() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if atomic.LoadInt32(&m.finalized) == 1 {
		return
	}

	m.ordered = make([]types.Middleware, 0, len(m.middlewares))
	for _, mw := range m.middlewares {
		m.ordered = append(m.ordered, mw)
	}

	sort.Slice(m.ordered, func(i, j int) bool {
		return m.ordered[i].Weight() < m.ordered[j].Weight()
	})

	atomic.StoreInt32(&m.finalized, 1)
}

// Wrap returns handler behind the chain, lightest weight outermost.
func (m *Manager) Wrap(handler types.FastHTTPHandler) types.FastHTTPHandler {
	m.finalize()

	chain := m.Middlewares()
	if len(chain) == 0 {
		return handler
	}

	wrapped := handler
	for i := len(chain) - 1; i >= 0; i-- {
		mw := chain[i]
		next := wrapped
		wrapped = func(ctx *fasthttp.RequestCtx) {
			mw.Handle(ctx, next)
		}
	}

	return wrapped
}

func (m *Manager) Middlewares() []types.Middleware {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if atomic.LoadInt32(&m.finalized) == 0 {
		return nil
	}

	return append([]types.Middleware(nil), m.ordered...)
}

// decodeParams fills target from the item params and returns the configured weight.
func decodeParams[T any](item *types.MiddlewareItemConfig, target *T, logger types.Logger, name string) int {
	if item == nil {
		return 0
	}

	if item.Params != nil && target != nil {
		if err := utils.UnmarshalConfig(item.Params, target); err != nil {
			logger.Error("Failed to unmarshal middleware config", zap.String("middleware", name), zap.Error(err))
		}
	}

	return item.Weight
}
