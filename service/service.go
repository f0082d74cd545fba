package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tugasin/tugasin-blog/blog"
	"github.com/tugasin/tugasin-blog/cache"
	"github.com/tugasin/tugasin-blog/cms"
	"github.com/tugasin/tugasin-blog/config"
	"github.com/tugasin/tugasin-blog/content"
	"github.com/tugasin/tugasin-blog/cron"
	"github.com/tugasin/tugasin-blog/events"
	"github.com/tugasin/tugasin-blog/handlers"
	"github.com/tugasin/tugasin-blog/health"
	"github.com/tugasin/tugasin-blog/logger"
	"github.com/tugasin/tugasin-blog/metrics"
	"github.com/tugasin/tugasin-blog/middleware"
	"github.com/tugasin/tugasin-blog/redirect"
	"github.com/tugasin/tugasin-blog/server"
	"github.com/tugasin/tugasin-blog/sitemap"
	"github.com/tugasin/tugasin-blog/storage"
	certs "github.com/tugasin/tugasin-blog/tls"
	"github.com/tugasin/tugasin-blog/types"
)

const certificateWarning = 14 * 24 * time.Hour

type component struct {
	name    string
	manager types.LifecycleManager
}

// Service wires every component and owns their lifecycle. Components start in registration order
// and stop in reverse.
type Service struct {
	ctx             context.Context
	cancel          context.CancelFunc
	config          types.ConfigManager
	logger          *logger.ZapWrapper
	done            chan struct{}
	wg              sync.WaitGroup
	state           atomic.Value
	shutdownTimeout time.Duration
	startTimeout    time.Duration

	components []component
	blog       *blog.Service
	cms        *cms.Client
	cron       *cron.Manager
	http       *server.FastHTTPServer
}

// NewService loads configuration from configPath, or from defaults and the environment when the
// path is empty, and builds the component graph without starting anything.
func NewService(ctx context.Context, configPath string) (*Service, error) {
	configManager, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	cfg := configManager.GetConfig()

	log, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		return nil, types.WrapError(err, "failed to create logger")
	}

	serviceCtx, cancel := context.WithCancel(ctx)

	s := &Service{
		ctx:             serviceCtx,
		cancel:          cancel,
		config:          configManager,
		logger:          log,
		done:            make(chan struct{}),
		shutdownTimeout: 30 * time.Second,
		startTimeout:    60 * time.Second,
	}
	s.state.Store(types.StateStopped)

	if err := s.build(); err != nil {
		cancel()
		return nil, err
	}

	return s, nil
}

func loadConfig(configPath string) (types.ConfigManager, error) {
	if configPath != "" {
		return config.NewConfigurationManager(configPath)
	}

	cfg, err := config.NewLoader().Load(nil)
	if err != nil {
		return nil, types.WrapError(err, "failed to load configuration")
	}
	return config.NewStaticManager(cfg), nil
}

func (s *Service) build() error {
	cfg := s.config.GetConfig()

	var metricsManager types.MetricsManager
	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		prom, err := metrics.NewPrometheusMetrics(s.logger, cfg.Metrics)
		if err != nil {
			return types.WrapError(err, "failed to create metrics")
		}
		metricsManager = prom
		s.register("metrics", prom)
	}

	cacheManager, err := cache.NewCacheManager(s.ctx, cfg.Cache, s.logger, metricsManager)
	if err != nil {
		return types.WrapError(err, "failed to create cache")
	}
	s.register("cache", cacheManager)

	s.cms = cms.NewClient(s.logger, metricsManager, cfg.CMS)
	if s.cms.BaseURL() == "" {
		s.logger.Warn("CMS endpoint is not configured, content will be empty until it is set")
	} else {
		s.logger.Info("CMS client configured",
			zap.String("endpoint", s.cms.BaseURL()),
			zap.Bool("token", s.cms.HasToken()))
	}
	transformer := content.NewTransformer(cfg.Site)
	s.blog = blog.NewService(s.ctx, s.logger, metricsManager, cacheManager, s.cms, transformer, cfg.Blog)
	resolver := redirect.NewResolver(s.logger, s.cms)

	var store types.ObjectStore
	s3Store, err := storage.NewS3Store(s.ctx, s.logger, cfg.Storage)
	switch {
	case err == nil:
		store = s3Store
	case errors.Is(err, types.ErrStorageIsDisabled):
		s.logger.Info("Sitemap archive disabled")
	default:
		return types.WrapError(err, "failed to create storage")
	}

	archive := sitemap.NewArchive(store)
	generator := sitemap.NewGenerator(s.logger, s.blog, sitemap.NewBuilder(cfg.Site.URL), cfg.Blog.SitemapChunk)
	proxy := sitemap.NewProxy(s.logger, s.cms, archive)

	router := server.NewRouter()

	healthManager, err := health.NewManager(s.ctx, s.config, s.logger, router)
	if err != nil {
		return types.WrapError(err, "failed to create health manager")
	}
	healthManager.RegisterChecker("cms", health.CMSCheck(s.blog.CheckCMSAvailability))
	healthManager.RegisterChecker("cache", health.CacheCheck(cacheManager))
	if store != nil {
		healthManager.RegisterChecker("storage", health.StorageCheck(store))
	}

	certManager, err := certs.NewCertManager(s.logger, cfg.Server.TLS)
	switch {
	case err == nil:
		healthManager.RegisterChecker("tls", health.CertificateCheck(certManager.Expiry, certificateWarning))
	case errors.Is(err, types.ErrTLSIsDisabled):
		certManager = nil
	default:
		return types.WrapError(err, "failed to configure tls")
	}

	if cfg.Health == nil || cfg.Health.Enabled {
		s.register("health", healthManager)
	}

	if cfg.Cron != nil && cfg.Cron.Enabled {
		s.cron, err = cron.NewManager(s.ctx, s.config, s.logger, metricsManager)
		if err != nil {
			return types.WrapError(err, "failed to create cron manager")
		}

		var archiveFn func(ctx context.Context, posts []content.Post) (int, error)
		if archive != nil {
			archiveFn = func(ctx context.Context, posts []content.Post) (int, error) {
				return generator.ArchivePosts(ctx, archive, posts)
			}
		}

		if err := s.cron.Add(cron.JobCMSAvailability, cron.SpecCMSAvailability,
			cron.CMSAvailabilityJob(s.logger, s.blog.ProbeCMS)); err != nil {
			return err
		}
		if err := s.cron.Add(cron.JobSitemapWarmup, cron.SpecSitemapWarmup,
			cron.SitemapWarmupJob(s.logger, s.blog.RefreshSitemap, archiveFn)); err != nil {
			return err
		}
		s.register("cron", s.cron)
	}

	if cfg.Events != nil && cfg.Events.Enabled {
		consumer, err := events.NewConsumer(s.ctx, s.logger, metricsManager, cfg.Events, s.blog)
		if err != nil {
			return types.WrapError(err, "failed to create events consumer")
		}
		s.register("events", consumer)
	}

	handlers.New(s.logger, metricsManager, cfg.Site, s.blog, resolver, generator, proxy).Register(router)

	middlewareManager := middleware.NewManager(s.config, s.logger, metricsManager)
	if err := middlewareManager.RegisterMiddlewares(); err != nil {
		return types.WrapError(err, "failed to register middlewares")
	}

	s.http, err = server.NewHTTPServer(s.ctx, s.config, s.logger, middlewareManager, router)
	if err != nil {
		return types.WrapError(err, "failed to create http server")
	}
	if certManager != nil {
		s.http.UseListener(certManager)
	}
	s.register("http", s.http)

	return nil
}

func (s *Service) register(name string, manager types.LifecycleManager) {
	s.components = append(s.components, component{name: name, manager: manager})
}

// Start blocks until the service is stopped by Stop, a signal or the parent context.
func (s *Service) Start() error {
	if !s.transitionState(types.StateStopped, types.StateStarting) {
		s.logger.Warn("Service is already running")
		return types.ErrServerAlreadyRunning
	}

	var runErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				buf := make([]byte, 4096)
				n := runtime.Stack(buf, false)
				runErr = fmt.Errorf("service panic: %v", r)
				s.logger.Error("Service run panic", zap.Stack(string(buf[:n])))
				s.setState(types.StateStopped)
			}
		}()

		runErr = s.run()
	}()

	return runErr
}

func (s *Service) run() error {
	cfg := s.config.GetConfig()
	s.logger.Info("Starting service", zap.String("name", cfg.Name), zap.String("version", cfg.Version))

	ctx, cancel := context.WithTimeout(s.ctx, s.startTimeout)
	defer cancel()

	if err := s.startComponents(ctx); err != nil {
		s.stopComponents()
		s.setState(types.StateStopped)
		return types.WrapError(err, "failed to start components")
	}

	s.setState(types.StateRunning)
	s.setupSignalHandling()

	s.wg.Add(1)
	go s.contextMonitor()

	s.warmup()

	s.logger.Info("Service started successfully", zap.String("addr", s.http.Addr()))

	<-s.done

	s.stopComponents()
	s.blog.Close()
	s.cms.Close()

	s.wg.Wait()
	s.setState(types.StateStopped)

	s.logger.Info("Service stopped gracefully")
	_ = s.logger.Sync()
	return nil
}

// warmup runs the scheduled jobs once in the background so the first requests hit a primed cache.
func (s *Service) warmup() {
	if s.cron == nil {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		for _, name := range []string{cron.JobCMSAvailability, cron.JobSitemapWarmup} {
			if s.ctx.Err() != nil {
				return
			}
			if err := s.cron.RunNow(name); err != nil {
				s.logger.Warn("Warmup job failed", zap.String("job", name), zap.Error(err))
			}
		}
	}()
}

func (s *Service) Stop() error {
	if !s.transitionState(types.StateRunning, types.StateStopping) {
		s.logger.Warn("Service is not running")
		return types.ErrServiceNotRunning
	}

	s.logger.Info("Stopping service...")
	s.cancel()

	return nil
}

func (s *Service) Done() <-chan struct{} {
	return s.done
}

func (s *Service) Context() context.Context {
	return s.ctx
}

func (s *Service) IsRunning() bool {
	return s.getState() == types.StateRunning
}

func (s *Service) getState() types.State {
	return s.state.Load().(types.State)
}

func (s *Service) setState(newState types.State) bool {
	currentState := s.getState()
	return s.state.CompareAndSwap(currentState, newState)
}

func (s *Service) transitionState(from, to types.State) bool {
	return s.state.CompareAndSwap(from, to)
}

func (s *Service) startComponents(ctx context.Context) error {
	for _, c := range s.components {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := c.manager.Start(); err != nil {
			return types.WrapError(err, fmt.Sprintf("failed to start %s", c.name))
		}
		s.logger.Debug("Component started", zap.String("component", c.name))
	}
	return nil
}

// stopComponents stops whatever is running, newest first, within shutdownTimeout.
func (s *Service) stopComponents() {
	s.logger.Info("Stopping service components...")

	finished := make(chan struct{})
	go func() {
		defer close(finished)

		for i := len(s.components) - 1; i >= 0; i-- {
			c := s.components[i]
			if !c.manager.IsRunning() {
				continue
			}
			if err := c.manager.Stop(); err != nil {
				s.logger.Error("Failed to stop component", zap.String("component", c.name), zap.Error(err))
			}
		}
	}()

	select {
	case <-finished:
	case <-time.After(s.shutdownTimeout):
		s.logger.Warn("Component shutdown timed out", zap.Duration("timeout", s.shutdownTimeout))
	}
}

func (s *Service) setupSignalHandling() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			s.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
			if s.transitionState(types.StateRunning, types.StateStopping) {
				s.cancel()
			}
		case <-s.ctx.Done():
		}
	}()
}

func (s *Service) contextMonitor() {
	defer s.wg.Done()

	<-s.ctx.Done()
	s.setState(types.StateStopping)
	close(s.done)
}
