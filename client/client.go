package client

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/tugasin/tugasin-blog/types"
)

const (
	DefaultTimeout     = 10 * time.Second
	DefaultMaxAttempts = 3
	DefaultBackoffUnit = time.Second
	maxErrorBody       = 512
)

type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// HTTPClient executes requests with a fresh per-attempt deadline, linear backoff between attempts
// and an optional circuit breaker. Non-retryable statuses come back as a Response with a nil error.
type HTTPClient struct {
	logger      types.Logger
	name        string
	client      *fasthttp.Client
	timeout     time.Duration
	maxAttempts int
	backoffUnit time.Duration
	breaker     *Breaker
	stopped     atomic.Bool
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewHTTPClient(logger types.Logger, name string, config *types.CMSConfig) *HTTPClient {
	c := &HTTPClient{
		logger:      logger,
		name:        name,
		timeout:     DefaultTimeout,
		maxAttempts: DefaultMaxAttempts,
		backoffUnit: DefaultBackoffUnit,
		sleep:       sleepContext,
	}

	if config != nil {
		if config.Timeout > 0 {
			c.timeout = config.Timeout
		}
		if config.MaxAttempts > 0 {
			c.maxAttempts = config.MaxAttempts
		}
		if config.BackoffUnit > 0 {
			c.backoffUnit = config.BackoffUnit
		}
		c.breaker = NewBreaker(config.CircuitBreaker, logger, name)
	}

	c.client = &fasthttp.Client{
		Name:                name,
		MaxConnsPerHost:     64,
		MaxIdleConnDuration: time.Minute,
	}

	return c
}

func (c *HTTPClient) Timeout() time.Duration {
	return c.timeout
}

func (c *HTTPClient) Breaker() *Breaker {
	return c.breaker
}

func (c *HTTPClient) Do(ctx context.Context, r *Request) (*Response, error) {
	if c.stopped.Load() {
		return nil, types.ErrClientStopped
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(r.URL)
	if r.Method != "" {
		req.Header.SetMethod(r.Method)
	}
	for key, value := range r.Headers {
		req.Header.Set(key, value)
	}
	if len(r.Body) > 0 {
		req.SetBody(r.Body)
	}

	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return nil, lastErr
			}
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, &types.TimeoutError{URL: r.URL, Timeout: c.timeout}
			}
			return nil, types.WrapError(err, "request aborted")
		}

		if !c.breaker.Allow() {
			return nil, types.Errorf(types.ErrCircuitBreakerOpen, "service %s", c.name)
		}

		resp.Reset()
		deadline, timeout := c.attemptDeadline(ctx)
		err := c.client.DoDeadline(req, resp, deadline)

		if err == nil && !IsRetryableStatus(resp.StatusCode()) {
			c.breaker.RecordSuccess()
			return &Response{
				StatusCode:  resp.StatusCode(),
				ContentType: string(resp.Header.ContentType()),
				Body:        append([]byte(nil), resp.Body()...),
			}, nil
		}

		switch {
		case err == nil:
			lastErr = &types.HTTPError{
				StatusCode: resp.StatusCode(),
				URL:        r.URL,
				Body:       truncate(resp.Body(), maxErrorBody),
			}
		case isTimeout(err):
			lastErr = &types.TimeoutError{URL: r.URL, Timeout: timeout}
		case isNetworkError(err):
			lastErr = types.Errorf(types.ErrCMSRequestFailed, "%s: %v", r.URL, err)
		default:
			c.breaker.RecordFailure()
			return nil, types.Errorf(types.ErrCMSRequestFailed, "%s: %v", r.URL, err)
		}

		c.breaker.RecordFailure()

		if attempt == c.maxAttempts || ctx.Err() != nil {
			break
		}

		backoff := time.Duration(attempt) * c.backoffUnit
		c.logger.Debug("Retrying request",
			zap.String("service", c.name),
			zap.String("url", r.URL),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(lastErr))

		if err := c.sleep(ctx, backoff); err != nil {
			break
		}
	}

	return nil, lastErr
}

func (c *HTTPClient) Close() {
	if c.stopped.CompareAndSwap(false, true) {
		c.client.CloseIdleConnections()
		c.logger.Debug("HTTP client closed", zap.String("service", c.name))
	}
}

// attemptDeadline gives each attempt the full timeout unless ctx ends sooner.
func (c *HTTPClient) attemptDeadline(ctx context.Context) (time.Time, time.Duration) {
	now := time.Now()
	deadline := now.Add(c.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	return deadline, deadline.Sub(now)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n])
	}
	return string(b)
}
