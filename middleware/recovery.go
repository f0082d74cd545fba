package middleware

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/tugasin/tugasin-blog/types"
	"github.com/tugasin/tugasin-blog/utils"
)

type RecoveryMiddleware struct {
	logger         types.Logger
	metrics        types.MetricsManager
	recoveryConfig *RecoveryConfig
	weight         int
}

type RecoveryConfig struct {
	StackTrace bool `json:"stack_trace"`
}

func NewRecoveryMiddleware(item *types.MiddlewareItemConfig, logger types.Logger, metrics types.MetricsManager) *RecoveryMiddleware {
	recoveryConfig := &RecoveryConfig{
		StackTrace: true,
	}

	weight := decodeParams(item, recoveryConfig, logger, "recovery")

	return &RecoveryMiddleware{
		logger:         logger,
		metrics:        metrics,
		recoveryConfig: recoveryConfig,
		weight:         weight,
	}
}

func (r *RecoveryMiddleware) Name() string { return "recovery" }
func (r *RecoveryMiddleware) Weight() int  { return r.weight }

func (r *RecoveryMiddleware) Handle(ctx *fasthttp.RequestCtx, next func(*fasthttp.RequestCtx)) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logPanic(ctx, rec)

			if r.metrics != nil {
				r.metrics.Counter("http_panics_total", map[string]string{"path": routeLabelFor(string(ctx.Path()))}).Inc()
			}

			ctx.Response.Reset()
			utils.CreateErrorResponse(ctx)
		}
	}()

	next(ctx)
}

func (r *RecoveryMiddleware) logPanic(ctx *fasthttp.RequestCtx, rec interface{}) {
	err, ok := rec.(error)
	if !ok {
		err = fmt.Errorf("%v", rec)
	}

	fields := []zap.Field{
		zap.ByteString("method", ctx.Method()),
		zap.ByteString("path", ctx.Path()),
		zap.String("remote_addr", ctx.RemoteIP().String()),
	}

	if requestID := ctx.Request.Header.Peek(HeaderRequestID); len(requestID) > 0 {
		fields = append(fields, zap.ByteString("request_id", requestID))
	}

	if !r.recoveryConfig.StackTrace {
		r.logger.Error("Recovered from panic", append(fields, zap.Error(err))...)
		return
	}

	// errors.WithStack records the frames of this deferred call, which include the panicking one.
	r.logger.ErrorWithErrStack("Recovered from panic", errors.WithStack(err), fields...)
}

// routeLabelFor keeps metric cardinality bounded: only the first path segment is used.
func routeLabelFor(path string) string {
	if len(path) <= 1 {
		return "/"
	}

	if i := strings.IndexByte(path[1:], '/'); i >= 0 {
		return path[:i+1]
	}
	return path
}
