package server

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/tugasin/tugasin-blog/types"
)

type FastHTTPServer struct {
	ctx             context.Context
	cancel          context.CancelFunc
	logger          types.Logger
	middlewares     types.MiddlewareManager
	router          *Router
	server          *fasthttp.Server
	listener        net.Listener
	wrapper         types.ListenerWrapper
	httpConfig      *types.HTTPConfig
	state           atomic.Value
	shutdownTimeout time.Duration
	done            chan struct{}
}

var _ types.HTTPServer = (*FastHTTPServer)(nil)

func NewHTTPServer(
	ctx context.Context,
	config types.ConfigManager,
	logger types.Logger,
	middlewares types.MiddlewareManager,
	router *Router) (*FastHTTPServer, error) {
	httpConfig := config.GetConfig().Server.HTTP
	if httpConfig == nil {
		return nil, types.ErrConfigIsNil
	}

	serverCtx, cancel := context.WithCancel(ctx)

	shutdownTimeout := time.Duration(httpConfig.ShutdownTimeout) * time.Second
	if shutdownTimeout <= 0 {
		shutdownTimeout = 5 * time.Second
	}

	server := &FastHTTPServer{
		ctx:             serverCtx,
		cancel:          cancel,
		logger:          logger,
		middlewares:     middlewares,
		router:          router,
		httpConfig:      httpConfig,
		shutdownTimeout: shutdownTimeout,
	}

	server.state.Store(types.StateStopped)

	return server, nil
}

// UseListener decorates the listener bound by Start. It must be called before Start.
func (h *FastHTTPServer) UseListener(wrapper types.ListenerWrapper) {
	h.wrapper = wrapper
}

func (h *FastHTTPServer) Router() types.HTTPRouter {
	return h.router
}

// Handler is the router dispatch wrapped in the middleware chain.
func (h *FastHTTPServer) Handler() fasthttp.RequestHandler {
	var handler types.FastHTTPHandler = h.router.Handler
	if h.middlewares != nil {
		handler = h.middlewares.Wrap(handler)
	}
	return fasthttp.RequestHandler(handler)
}

// Start binds the listener synchronously so address errors reach the caller, then serves in the background.
func (h *FastHTTPServer) Start() error {
	if !h.state.CompareAndSwap(types.StateStopped, types.StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	addr := fmt.Sprintf("%s:%d", h.httpConfig.Host, h.httpConfig.Port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		h.state.Store(types.StateStopped)
		return types.WrapError(err, "failed to listen on "+addr)
	}
	if h.wrapper != nil {
		listener = h.wrapper.Listener(listener)
	}

	h.listener = listener
	h.done = make(chan struct{})
	h.server = &fasthttp.Server{
		Handler:                      h.Handler(),
		Name:                         "tugasin-blog",
		ReadTimeout:                  time.Duration(h.httpConfig.ReadTimeout) * time.Second,
		WriteTimeout:                 time.Duration(h.httpConfig.WriteTimeout) * time.Second,
		IdleTimeout:                  time.Duration(h.httpConfig.IdleTimeout) * time.Second,
		TCPKeepalive:                 true,
		DisablePreParseMultipartForm: true,
		CloseOnShutdown:              true,
	}

	go func() {
		defer close(h.done)

		if err := h.server.Serve(listener); err != nil {
			h.logger.Error("HTTP server failed", zap.Error(err))
			h.state.Store(types.StateStopped)
		}
	}()

	h.state.Store(types.StateRunning)

	h.logger.Info("HTTP server started successfully",
		zap.String("address", listener.Addr().String()),
		zap.Int("routes", len(h.router.Routes())))

	return nil
}

func (h *FastHTTPServer) Stop() error {
	if !h.state.CompareAndSwap(types.StateRunning, types.StateStopping) {
		return types.ErrServerNotRunning
	}

	defer func() {
		h.state.Store(types.StateStopped)
		h.cancel()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
	defer cancel()

	if err := h.server.ShutdownWithContext(ctx); err != nil {
		h.logger.Warn("Server stop timeout, some connections may not have closed gracefully", zap.Error(err))
		return nil
	}

	<-h.done
	h.logger.Info("HTTP server stopped gracefully")

	return nil
}

func (h *FastHTTPServer) IsRunning() bool {
	return h.state.Load().(types.State) == types.StateRunning
}

// Addr reports the bound address, or "" before Start.
func (h *FastHTTPServer) Addr() string {
	if h.listener == nil {
		return ""
	}
	return h.listener.Addr().String()
}
