package types

import (
	"net/http"

	"github.com/valyala/fasthttp"
)

type FastHTTPHandler func(ctx *fasthttp.RequestCtx)

// FastResponseWriter lets net/http handlers (promhttp) write into a fasthttp response.
type FastResponseWriter struct {
	ctx    *fasthttp.RequestCtx
	header http.Header
	wrote  bool
}

func NewFastResponseWriter(ctx *fasthttp.RequestCtx) *FastResponseWriter {
	return &FastResponseWriter{
		ctx:    ctx,
		header: make(http.Header),
	}
}

func (w *FastResponseWriter) Header() http.Header {
	return w.header
}

func (w *FastResponseWriter) Write(data []byte) (int, error) {
	if !w.wrote {
		w.WriteHeader(http.StatusOK)
	}
	return w.ctx.Write(data)
}

func (w *FastResponseWriter) WriteHeader(statusCode int) {
	if w.wrote {
		return
	}
	w.wrote = true

	for key, values := range w.header {
		for _, value := range values {
			w.ctx.Response.Header.Add(key, value)
		}
	}
	w.ctx.SetStatusCode(statusCode)
}
