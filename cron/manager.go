package cron

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/tugasin/tugasin-blog/types"
)

const (
	DefaultJobTimeout      = 5 * time.Minute
	DefaultShutdownTimeout = 10 * time.Second
)

type jobEntry struct {
	info types.JobInfo
	run  func()
}

// Manager schedules named jobs with second-resolution specs. Each run gets its own timeout context
// derived from the manager context, so Stop cancels jobs in flight.
type Manager struct {
	ctx             context.Context
	cancel          context.CancelFunc
	logger          types.Logger
	metrics         types.MetricsManager
	cron            *cron.Cron
	timezone        *time.Location
	jobs            map[string]*jobEntry
	mu              sync.RWMutex
	state           atomic.Value
	active          sync.WaitGroup
	jobTimeout      time.Duration
	shutdownTimeout time.Duration
}

var _ types.CronManager = (*Manager)(nil)

func NewManager(ctx context.Context, config types.ConfigManager, logger types.Logger, metrics types.MetricsManager) (*Manager, error) {
	timezone := time.UTC
	if cronConfig := config.GetConfig().Cron; cronConfig != nil && cronConfig.Timezone != "" {
		location, err := time.LoadLocation(cronConfig.Timezone)
		if err != nil {
			logger.Warn("Unknown cron timezone, using UTC", zap.String("timezone", cronConfig.Timezone), zap.Error(err))
		} else {
			timezone = location
		}
	}

	cronLogger := zapCronLogger{logger: logger}

	managerCtx, cancel := context.WithCancel(ctx)

	manager := &Manager{
		ctx:    managerCtx,
		cancel: cancel,
		logger: logger,
		cron: cron.New(
			cron.WithLocation(timezone),
			cron.WithSeconds(),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		metrics:         metrics,
		timezone:        timezone,
		jobs:            make(map[string]*jobEntry),
		jobTimeout:      DefaultJobTimeout,
		shutdownTimeout: DefaultShutdownTimeout,
	}

	manager.state.Store(types.StateStopped)

	return manager, nil
}

func (m *Manager) Add(name, spec string, job func(ctx context.Context) error) error {
	if name == "" {
		return types.ErrCronJobNameIsEmpty
	}
	if spec == "" {
		return types.ErrCronExpressionInvalid
	}
	if job == nil {
		return types.ErrCronJobIsNil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx.Err() != nil {
		return types.ErrCronSchedulerStopped
	}

	if _, exists := m.jobs[name]; exists {
		return types.ErrCronJobExists
	}

	entry := &jobEntry{info: types.JobInfo{Name: name, Spec: spec}}
	entry.run = m.wrapJob(name, job)

	id, err := m.cron.AddFunc(spec, entry.run)
	if err != nil {
		return types.Errorf(types.ErrCronExpressionInvalid, "%s: %v", spec, err)
	}

	entry.info.ID = id
	m.jobs[name] = entry

	m.logger.Info("Cron job added", zap.String("job_name", name), zap.String("spec", spec))
	return nil
}

func (m *Manager) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.jobs[name]
	if !exists {
		return types.Errorf(types.ErrResourceNotFound, "cron job %s", name)
	}

	m.cron.Remove(entry.info.ID)
	delete(m.jobs, name)
	return nil
}

// RunNow executes a registered job synchronously, outside its schedule.
func (m *Manager) RunNow(name string) error {
	m.mu.RLock()
	entry, exists := m.jobs[name]
	m.mu.RUnlock()

	if !exists {
		return types.Errorf(types.ErrResourceNotFound, "cron job %s", name)
	}

	entry.run()
	return nil
}

func (m *Manager) Jobs() []types.JobInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]types.JobInfo, 0, len(m.jobs))
	for _, entry := range m.jobs {
		info := entry.info
		if cronEntry := m.cron.Entry(info.ID); cronEntry.ID != 0 {
			info.NextRun = cronEntry.Next
		}
		jobs = append(jobs, info)
	}

	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Name < jobs[j].Name })
	return jobs
}

func (m *Manager) Start() error {
	if !m.state.CompareAndSwap(types.StateStopped, types.StateStarting) {
		return types.ErrCronIsRunning
	}

	m.cron.Start()
	m.state.Store(types.StateRunning)
	m.setSchedulerStatus(1)

	m.logger.Info("Cron manager started", zap.String("timezone", m.timezone.String()), zap.Int("jobs", len(m.Jobs())))
	return nil
}

func (m *Manager) Stop() error {
	if !m.state.CompareAndSwap(types.StateRunning, types.StateStopping) {
		return types.ErrServerNotRunning
	}

	defer m.state.Store(types.StateStopped)

	stopCtx := m.cron.Stop()
	m.cancel()

	done := make(chan struct{})
	go func() {
		<-stopCtx.Done()
		m.active.Wait()
		close(done)
	}()

	m.setSchedulerStatus(0)

	select {
	case <-done:
		m.logger.Info("Cron scheduler stopped gracefully")
		return nil
	case <-time.After(m.shutdownTimeout):
		m.logger.Warn("Cron manager stop timeout, some jobs may not have stopped gracefully")
		return types.ErrCronJobTimeout
	}
}

func (m *Manager) IsRunning() bool {
	return m.state.Load().(types.State) == types.StateRunning
}

func (m *Manager) wrapJob(name string, job func(ctx context.Context) error) func() {
	return func() {
		if m.ctx.Err() != nil {
			m.logger.Info("Job skipped due to shutdown", zap.String("job_name", name))
			return
		}

		m.active.Add(1)
		defer m.active.Done()

		start := time.Now()
		m.logger.Debug("Cron job started", zap.String("job_name", name))

		jobCtx, cancel := context.WithTimeout(m.ctx, m.jobTimeout)
		defer cancel()

		err := runGuarded(jobCtx, job)
		if err == nil && jobCtx.Err() != nil && types.IsError(jobCtx.Err(), context.DeadlineExceeded) {
			err = types.Errorf(types.ErrCronJobTimeout, "timeout after %v", m.jobTimeout)
		}

		duration := time.Since(start)
		m.record(name, start, duration, err)

		if err != nil {
			m.logger.Error("Cron job failed",
				zap.String("job_name", name),
				zap.Duration("duration", duration),
				zap.Error(err))
			return
		}

		m.logger.Info("Cron job completed",
			zap.String("job_name", name),
			zap.Duration("duration", duration))
	}
}

func runGuarded(ctx context.Context, job func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = types.Errorf(types.ErrCronJobFailed, "job panic: %v", r)
		}
	}()

	return job(ctx)
}

func (m *Manager) record(name string, start time.Time, duration time.Duration, err error) {
	m.mu.Lock()
	if entry, exists := m.jobs[name]; exists {
		entry.info.LastRun = start
		entry.info.Duration = duration
		entry.info.RunCount++
		entry.info.LastErr = ""
		if err != nil {
			entry.info.LastErr = err.Error()
		}
	}
	m.mu.Unlock()

	if m.metrics == nil {
		return
	}

	result := "success"
	if err != nil {
		result = "error"
	}

	m.metrics.Counter("cron_job_executions_total", map[string]string{"job": name, "result": result}).Inc()
	m.metrics.Histogram("cron_job_duration_seconds",
		[]float64{0.1, 1, 10, 60, 300},
		map[string]string{"job": name},
	).Observe(duration.Seconds())
}

func (m *Manager) setSchedulerStatus(value float64) {
	if m.metrics == nil {
		return
	}
	m.metrics.Gauge("cron_scheduler_running", nil).Set(value)
}

// zapCronLogger adapts types.Logger to cron.Logger.
type zapCronLogger struct {
	logger types.Logger
}

func (l zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, toFields(keysAndValues)...)
}

func (l zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(toFields(keysAndValues), zap.Error(err))...)
}

func toFields(keysAndValues []interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields = append(fields, zap.Any(fmt.Sprint(keysAndValues[i]), keysAndValues[i+1]))
	}
	return fields
}
