package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/tugasin/tugasin-blog/types"
)

const (
	AlgorithmGzip       = "gzip"
	AlgorithmBrotli     = "br"
	DefaultLevel        = 6
	DefaultThreshold    = 1024
	MinCompressionRatio = 0.05
)

type CompressionMiddleware struct {
	logger            types.Logger
	metrics           types.MetricsManager
	compressionConfig *CompressionConfig
	weight            int
	gzipWriterPool    sync.Pool
	brotliWriterPool  sync.Pool
	bufferPool        sync.Pool
}

type CompressionConfig struct {
	// Algorithms in order of preference when the client accepts several.
	Algorithms   []string `json:"algorithms"`
	Level        int      `json:"level"`
	MinSize      int      `json:"min_size"`
	AllowedTypes []string `json:"allowed_types"`
}

func NewCompressionMiddleware(item *types.MiddlewareItemConfig, logger types.Logger, metrics types.MetricsManager) *CompressionMiddleware {
	compressionConfig := &CompressionConfig{
		Algorithms: []string{AlgorithmBrotli, AlgorithmGzip},
		Level:      DefaultLevel,
		MinSize:    DefaultThreshold,
		AllowedTypes: []string{
			"application/json",
			"application/xml",
			"application/javascript",
			"text/*",
			"application/rss+xml",
		},
	}

	weight := decodeParams(item, compressionConfig, logger, "compression")

	if compressionConfig.Level < 1 || compressionConfig.Level > 9 {
		logger.Warn("Invalid compression level, using default", zap.Int("level", compressionConfig.Level))
		compressionConfig.Level = DefaultLevel
	}
	if compressionConfig.MinSize < 0 {
		compressionConfig.MinSize = DefaultThreshold
	}

	c := &CompressionMiddleware{
		logger:            logger,
		metrics:           metrics,
		compressionConfig: compressionConfig,
		weight:            weight,
	}

	level := compressionConfig.Level
	c.gzipWriterPool.New = func() interface{} {
		w, _ := gzip.NewWriterLevel(io.Discard, level)
		return w
	}
	c.brotliWriterPool.New = func() interface{} {
		return brotli.NewWriterLevel(io.Discard, level)
	}
	c.bufferPool.New = func() interface{} {
		return new(bytes.Buffer)
	}

	return c
}

func (c *CompressionMiddleware) Name() string { return "compression" }
func (c *CompressionMiddleware) Weight() int  { return c.weight }

func (c *CompressionMiddleware) Handle(ctx *fasthttp.RequestCtx, next func(*fasthttp.RequestCtx)) {
	algorithm := c.negotiate(ctx.Request.Header.Peek(fasthttp.HeaderAcceptEncoding))

	next(ctx)

	if algorithm == "" || ctx.IsHead() {
		return
	}

	if len(ctx.Response.Header.Peek(fasthttp.HeaderContentEncoding)) > 0 {
		return
	}

	if !c.shouldCompress(ctx.Response.Header.ContentType()) {
		return
	}

	body := ctx.Response.Body()
	if len(body) < c.compressionConfig.MinSize {
		return
	}

	compressed, err := c.compress(algorithm, body)
	if err != nil {
		c.logger.Error("Failed to compress response", zap.String("algorithm", algorithm), zap.Error(err))
		return
	}

	if 1.0-float64(len(compressed))/float64(len(body)) < MinCompressionRatio {
		return
	}

	ctx.Response.Header.Set(fasthttp.HeaderContentEncoding, algorithm)
	ctx.Response.Header.Add(fasthttp.HeaderVary, fasthttp.HeaderAcceptEncoding)
	ctx.Response.SetBody(compressed)

	if c.metrics != nil {
		c.metrics.Counter("http_compressed_responses_total", map[string]string{"algorithm": algorithm}).Inc()
	}
}

// negotiate picks the first configured algorithm the client lists with a non-zero quality.
func (c *CompressionMiddleware) negotiate(acceptEncoding []byte) string {
	if len(acceptEncoding) == 0 {
		return ""
	}

	accepted := make(map[string]bool)
	for _, part := range strings.Split(string(acceptEncoding), ",") {
		name, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		name = strings.ToLower(strings.TrimSpace(name))
		if q, ok := strings.CutPrefix(strings.TrimSpace(params), "q="); ok {
			if v, err := strconv.ParseFloat(q, 64); err == nil && v == 0 {
				continue
			}
		}
		accepted[name] = true
	}

	for _, algorithm := range c.compressionConfig.Algorithms {
		if accepted[algorithm] || accepted["*"] {
			return algorithm
		}
	}
	return ""
}

func (c *CompressionMiddleware) shouldCompress(contentType []byte) bool {
	if len(contentType) == 0 {
		return false
	}

	ct := string(contentType)
	if semicolon := strings.IndexByte(ct, ';'); semicolon != -1 {
		ct = ct[:semicolon]
	}
	ct = strings.TrimSpace(strings.ToLower(ct))

	for _, allowed := range c.compressionConfig.AllowedTypes {
		if allowed == ct {
			return true
		}
		if prefix, ok := strings.CutSuffix(allowed, "*"); ok && strings.HasPrefix(ct, prefix) {
			return true
		}
	}
	return false
}

func (c *CompressionMiddleware) compress(algorithm string, data []byte) ([]byte, error) {
	buf := c.bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer c.bufferPool.Put(buf)

	var writer io.WriteCloser
	switch algorithm {
	case AlgorithmGzip:
		w := c.gzipWriterPool.Get().(*gzip.Writer)
		w.Reset(buf)
		defer c.gzipWriterPool.Put(w)
		writer = w
	case AlgorithmBrotli:
		w := c.brotliWriterPool.Get().(*brotli.Writer)
		w.Reset(buf)
		defer c.brotliWriterPool.Put(w)
		writer = w
	default:
		return nil, types.NewErrorf("unsupported algorithm: %s", algorithm)
	}

	if _, err := writer.Write(data); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	return append([]byte(nil), buf.Bytes()...), nil
}
