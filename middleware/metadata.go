package middleware

import (
	"strings"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/tugasin/tugasin-blog/types"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderTraceID   = "X-Trace-ID"

	metadataKey = "metadata"
)

type MetadataMiddleware struct {
	logger         types.Logger
	metadataConfig *MetadataConfig
	weight         int
}

type MetadataConfig struct {
	GenerateRequestID bool `json:"generate_request_id"`
	EchoRequestID     bool `json:"echo_request_id"`
}

// Metadata is the per-request context attached under the "metadata" user value.
type Metadata struct {
	RequestID string
	TraceID   string
	RealIP    string
}

func NewMetadataMiddleware(item *types.MiddlewareItemConfig, logger types.Logger) *MetadataMiddleware {
	metadataConfig := &MetadataConfig{
		GenerateRequestID: true,
		EchoRequestID:     true,
	}

	weight := decodeParams(item, metadataConfig, logger, "metadata")

	return &MetadataMiddleware{
		logger:         logger,
		metadataConfig: metadataConfig,
		weight:         weight,
	}
}

func (m *MetadataMiddleware) Name() string { return "metadata" }
func (m *MetadataMiddleware) Weight() int  { return m.weight }

func (m *MetadataMiddleware) Handle(ctx *fasthttp.RequestCtx, next func(*fasthttp.RequestCtx)) {
	metadata := &Metadata{
		RequestID: strings.TrimSpace(string(ctx.Request.Header.Peek(HeaderRequestID))),
		TraceID:   strings.TrimSpace(string(ctx.Request.Header.Peek(HeaderTraceID))),
		RealIP:    realIP(ctx),
	}

	if metadata.RequestID == "" && m.metadataConfig.GenerateRequestID {
		metadata.RequestID = uuid.NewString()
		ctx.Request.Header.Set(HeaderRequestID, metadata.RequestID)
	}

	ctx.SetUserValue(metadataKey, metadata)

	next(ctx)

	if m.metadataConfig.EchoRequestID && metadata.RequestID != "" {
		ctx.Response.Header.Set(HeaderRequestID, metadata.RequestID)
	}

	m.logger.Debug("Metadata processed",
		zap.String("request_id", metadata.RequestID),
		zap.String("real_ip", metadata.RealIP),
		zap.ByteString("path", ctx.Path()))
}

// GetMetadata returns the metadata attached by MetadataMiddleware, or nil when it did not run.
func GetMetadata(ctx *fasthttp.RequestCtx) *Metadata {
	metadata, _ := ctx.UserValue(metadataKey).(*Metadata)
	return metadata
}

func realIP(ctx *fasthttp.RequestCtx) string {
	if ip := string(ctx.Request.Header.Peek("X-Real-IP")); ip != "" {
		return ip
	}
	return remoteAddr(ctx)
}
