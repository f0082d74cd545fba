package health

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tugasin/tugasin-blog/types"
	"github.com/tugasin/tugasin-blog/utils"
)

const DefaultCheckTimeout = 5 * time.Second

// Manager runs the registered checkers concurrently within one time budget and serves /health and
// /version.
type Manager struct {
	ctx          context.Context
	cancel       context.CancelFunc
	config       types.ConfigManager
	logger       types.Logger
	router       types.HTTPRouter
	checkers     map[string]types.HealthChecker
	startTime    time.Time
	mu           sync.RWMutex
	state        atomic.Value
	checkTimeout time.Duration
	build        BuildInfo
}

var _ types.HealthManager = (*Manager)(nil)

func NewManager(ctx context.Context, config types.ConfigManager, logger types.Logger, router types.HTTPRouter) (*Manager, error) {
	managerCtx, cancel := context.WithCancel(ctx)

	manager := &Manager{
		ctx:          managerCtx,
		cancel:       cancel,
		config:       config,
		logger:       logger,
		router:       router,
		checkers:     make(map[string]types.HealthChecker),
		checkTimeout: DefaultCheckTimeout,
		build:        readBuildInfo(config.GetConfig().Version),
	}

	manager.state.Store(types.StateStopped)

	return manager, nil
}

func (hm *Manager) RegisterChecker(name string, checker types.HealthChecker) {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	hm.checkers[name] = checker
}

func (hm *Manager) Check(ctx context.Context) types.HealthReport {
	hm.mu.RLock()
	checkers := make(map[string]types.HealthChecker, len(hm.checkers))
	for name, checker := range hm.checkers {
		checkers[name] = checker
	}
	hm.mu.RUnlock()

	checkCtx, cancel := context.WithTimeout(ctx, hm.checkTimeout)
	defer cancel()

	var g errgroup.Group
	results := make(map[string]types.HealthCheck, len(checkers))
	var resultMu sync.Mutex

	for name, checker := range checkers {
		name, checker := name, checker
		g.Go(func() error {
			result := hm.executeCheck(checkCtx, checker)

			resultMu.Lock()
			results[name] = result
			resultMu.Unlock()
			return nil
		})
	}

	_ = g.Wait()

	return hm.buildReport(results)
}

func (hm *Manager) Start() error {
	if !hm.state.CompareAndSwap(types.StateStopped, types.StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	hm.startTime = time.Now()
	hm.registerRoutes()
	hm.state.Store(types.StateRunning)

	hm.logger.Info("Health manager started", zap.String("build", hm.build.String()))
	return nil
}

func (hm *Manager) Stop() error {
	if !hm.state.CompareAndSwap(types.StateRunning, types.StateStopping) {
		return types.ErrServerNotRunning
	}

	hm.cancel()
	hm.state.Store(types.StateStopped)

	hm.logger.Info("Health manager stopped gracefully")
	return nil
}

func (hm *Manager) IsRunning() bool {
	return hm.state.Load().(types.State) == types.StateRunning
}

func (hm *Manager) registerRoutes() {
	if hm.router == nil {
		return
	}

	hm.router.GET("/version", hm.handleVersion)
	hm.router.GET("/health", hm.handleHealth).WithTimeout(hm.checkTimeout + time.Second)
}

func (hm *Manager) handleVersion(ctx *fasthttp.RequestCtx) {
	utils.WriteJSON(ctx, fasthttp.StatusOK, types.VersionInfo{
		Version:   hm.config.GetConfig().Version,
		BuildInfo: hm.build.String(),
	})
}

func (hm *Manager) handleHealth(ctx *fasthttp.RequestCtx) {
	if !hm.IsRunning() {
		utils.WriteError(ctx, fasthttp.StatusServiceUnavailable, types.ErrHealthIsNotRunning.Error())
		return
	}

	report := hm.Check(ctx)

	status := fasthttp.StatusOK
	if report.Status == types.StatusUnhealthy {
		status = fasthttp.StatusServiceUnavailable
	}

	ctx.Response.Header.Set("Cache-Control", "no-store")
	utils.WriteJSON(ctx, status, report)
}

func (hm *Manager) executeCheck(ctx context.Context, checker types.HealthChecker) (result types.HealthCheck) {
	start := time.Now()

	resultChan := make(chan types.HealthCheck, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultChan <- types.HealthCheck{
					Status:  types.StatusUnhealthy,
					Message: fmt.Sprintf("Health check panicked: %v", r),
				}
			}
		}()

		resultChan <- checker(ctx)
	}()

	select {
	case result = <-resultChan:
	case <-hm.ctx.Done():
		result = types.HealthCheck{Status: types.StatusUnhealthy, Message: "Health manager shutting down"}
	case <-ctx.Done():
		result = types.HealthCheck{Status: types.StatusUnhealthy, Message: "Health check timeout"}
	}

	result.Duration = time.Since(start)
	return result
}

// buildReport is unhealthy when a required check fails, degraded when only optional ones do.
func (hm *Manager) buildReport(results map[string]types.HealthCheck) types.HealthReport {
	config := hm.config.GetConfig()

	overall := types.StatusHealthy
	for _, result := range results {
		if result.Status == types.StatusHealthy {
			continue
		}
		if result.Optional || result.Status == types.StatusDegraded {
			if overall == types.StatusHealthy {
				overall = types.StatusDegraded
			}
			continue
		}
		overall = types.StatusUnhealthy
	}

	uptime := time.Duration(0)
	if !hm.startTime.IsZero() {
		uptime = time.Since(hm.startTime).Truncate(time.Second)
	}

	return types.HealthReport{
		Status:    overall,
		Service:   config.Name,
		Version:   config.Version,
		Timestamp: time.Now().UTC(),
		Uptime:    uptime.String(),
		Checks:    results,
	}
}
