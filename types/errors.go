package types

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrConfigNotFound       = errors.New("config not found")
	ErrConfigInvalidPath    = errors.New("config invalid path")
	ErrConfigParseFailed    = errors.New("config parse failed")
	ErrConfigIsNil          = errors.New("config is nil")
	ErrConfigValidateFailed = errors.New("config validate failed")
)

var (
	ErrServerNotRunning     = errors.New("server not running")
	ErrServerAlreadyRunning = errors.New("server already running")
	ErrHandlerIsNil         = errors.New("handler is nil")
	ErrRouteNotFound        = errors.New("route not found")
	ErrMiddlewareInvalid    = errors.New("middleware invalid")
	ErrMiddlewareFinalized  = errors.New("middleware chain already finalized")
	ErrTLSIsDisabled        = errors.New("tls is disabled")
)

var (
	ErrCacheKeyEmpty         = errors.New("cache key empty")
	ErrCacheConnectionFailed = errors.New("cache connection failed")
	ErrCacheTypeUnknown      = errors.New("cache type unknown")
	ErrCacheOperationFailed  = errors.New("cache operation failed")
	ErrCacheIsDisabled       = errors.New("cache manager is disabled")
)

var (
	ErrCMSConfigMissing   = errors.New("cms configuration missing")
	ErrCMSRequestFailed   = errors.New("cms request failed")
	ErrCMSTimeout         = errors.New("cms request timeout")
	ErrCMSResponseInvalid = errors.New("cms response invalid")
	ErrCircuitBreakerOpen = errors.New("circuit breaker open")
	ErrClientStopped      = errors.New("client stopped")
)

var (
	ErrCronIsRunning         = errors.New("cron is running")
	ErrCronSchedulerStopped  = errors.New("cron scheduler stopped")
	ErrCronJobExists         = errors.New("cron job exists")
	ErrCronExpressionInvalid = errors.New("cron expression invalid")
	ErrCronJobFailed         = errors.New("cron job failed")
	ErrCronJobNameIsEmpty    = errors.New("cron job name is empty")
	ErrCronJobIsNil          = errors.New("cron job is nil")
	ErrCronJobTimeout        = errors.New("cron job timeout")
)

var (
	ErrStorageNotFound   = errors.New("object not found")
	ErrStorageIsDisabled = errors.New("storage is disabled")
)

var (
	ErrEventsConnectionFailed = errors.New("events connection failed")
	ErrEventsIsDisabled       = errors.New("events consumer is disabled")
	ErrEventMalformed         = errors.New("event malformed")
)

var (
	ErrAuthNotConfigured = errors.New("authentication is not configured")
	ErrAuthInvalid       = errors.New("invalid credentials")
)

var (
	ErrHealthIsNotRunning = errors.New("health manager is not running")
	ErrLogFileIsEmpty     = errors.New("log file is empty")
	ErrLogFileWrongFormat = errors.New("log file wrong format")
)

var (
	ErrInvalidParameter  = errors.New("invalid parameter")
	ErrOperationFailed   = errors.New("operation failed")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrResourceNotFound  = errors.New("resource not found")
	ErrServiceIsRunning  = errors.New("service is running")
	ErrServiceNotRunning = errors.New("service is not running")
)

// HTTPError is returned when the CMS answers with a status the caller cannot use.
type HTTPError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("cms responded %d for %s", e.StatusCode, e.URL)
}

func (e *HTTPError) Unwrap() error { return ErrCMSRequestFailed }

// TimeoutError marks a CMS call aborted by its deadline, as opposed to a network failure.
type TimeoutError struct {
	URL     string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("cms request to %s timed out after %s", e.URL, e.Timeout)
}

func (e *TimeoutError) Unwrap() error { return ErrCMSTimeout }

type ConfigError struct {
	Field string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("missing required configuration: %s", e.Field)
}

func (e *ConfigError) Unwrap() error { return ErrCMSConfigMissing }

func Errorf(baseErr error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", baseErr, fmt.Sprintf(format, args...))
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

func NewErrorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

func IsError(err, target error) bool {
	return errors.Is(err, target)
}
