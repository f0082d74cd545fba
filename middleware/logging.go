package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/tugasin/tugasin-blog/types"
)

type LoggingMiddleware struct {
	logger        types.Logger
	metrics       types.MetricsManager
	loggingConfig *LoggingConfig
	weight        int
}

type LoggingConfig struct {
	LogLevel   string   `json:"log_level"`
	LogHeaders bool     `json:"log_headers"`
	LogBody    bool     `json:"log_body"`
	SkipPaths  []string `json:"skip_paths"`
}

var sensitiveHeaders = map[string]bool{
	"authorization": true,
	"x-api-key":     true,
	"cookie":        true,
	"set-cookie":    true,
}

var durationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

func NewLoggingMiddleware(item *types.MiddlewareItemConfig, logger types.Logger, metrics types.MetricsManager) *LoggingMiddleware {
	loggingConfig := &LoggingConfig{
		LogLevel:  "info",
		SkipPaths: []string{"/health", "/metrics"},
	}

	weight := decodeParams(item, loggingConfig, logger, "logging")

	return &LoggingMiddleware{
		logger:        logger,
		metrics:       metrics,
		loggingConfig: loggingConfig,
		weight:        weight,
	}
}

func (l *LoggingMiddleware) Name() string { return "logging" }
func (l *LoggingMiddleware) Weight() int  { return l.weight }

func (l *LoggingMiddleware) Handle(ctx *fasthttp.RequestCtx, next func(*fasthttp.RequestCtx)) {
	start := time.Now()
	method := string(ctx.Method())
	path := string(ctx.Path())

	next(ctx)

	duration := time.Since(start)
	status := ctx.Response.StatusCode()

	if l.metrics != nil {
		labels := map[string]string{"method": method, "route": routeLabelFor(path), "status": strconv.Itoa(status)}
		l.metrics.Counter("http_requests_total", labels).Inc()
		l.metrics.Histogram("http_request_duration_seconds", durationBuckets, labels).Observe(duration.Seconds())
	}

	if l.skip(path) {
		return
	}

	l.logResponse(ctx, method, path, status, duration)
}

func (l *LoggingMiddleware) skip(path string) bool {
	for _, p := range l.loggingConfig.SkipPaths {
		if p == path {
			return true
		}
	}
	return false
}

func (l *LoggingMiddleware) logResponse(ctx *fasthttp.RequestCtx, method, path string, status int, duration time.Duration) {
	fields := []zap.Field{
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", status),
		zap.Duration("duration", duration),
		zap.String("remote_addr", remoteAddr(ctx)),
		zap.ByteString("user_agent", ctx.UserAgent()),
	}

	if query := ctx.QueryArgs().QueryString(); len(query) > 0 {
		fields = append(fields, zap.ByteString("query", query))
	}

	if requestID := ctx.Request.Header.Peek(HeaderRequestID); len(requestID) > 0 {
		fields = append(fields, zap.ByteString("request_id", requestID))
	}

	if l.loggingConfig.LogHeaders {
		fields = append(fields, zap.Any("headers", sanitizeHeaders(ctx)))
	}

	if l.loggingConfig.LogBody && len(ctx.Response.Body()) > 0 {
		body := ctx.Response.Body()
		if len(body) > 1000 {
			fields = append(fields, zap.String("response", string(body[:1000])+"..."))
			fields = append(fields, zap.Int("response_body_truncated", len(body)))
		} else {
			fields = append(fields, zap.String("response", string(body)))
		}
	}

	switch {
	case status >= 500:
		l.logger.Error("Request completed", fields...)
	case status >= 400:
		l.logger.Warn("Request completed", fields...)
	default:
		l.logWithLevel("Request completed", fields...)
	}
}

func (l *LoggingMiddleware) logWithLevel(msg string, fields ...zap.Field) {
	switch l.loggingConfig.LogLevel {
	case "debug":
		l.logger.Debug(msg, fields...)
	case "warn":
		l.logger.Warn(msg, fields...)
	case "error":
		l.logger.Error(msg, fields...)
	default:
		l.logger.Info(msg, fields...)
	}
}

func sanitizeHeaders(ctx *fasthttp.RequestCtx) map[string]string {
	sanitized := make(map[string]string, 16)

	ctx.Request.Header.VisitAll(func(key, value []byte) {
		name := string(key)
		if sensitiveHeaders[strings.ToLower(name)] {
			sanitized[name] = "[REDACTED]"
			return
		}
		sanitized[name] = string(value)
	})

	return sanitized
}

func remoteAddr(ctx *fasthttp.RequestCtx) string {
	if forwarded := string(ctx.Request.Header.Peek("X-Forwarded-For")); forwarded != "" {
		if comma := strings.Index(forwarded, ","); comma > 0 {
			return strings.TrimSpace(forwarded[:comma])
		}
		return forwarded
	}

	if realIP := string(ctx.Request.Header.Peek("X-Real-IP")); realIP != "" {
		return realIP
	}

	return ctx.RemoteIP().String()
}
