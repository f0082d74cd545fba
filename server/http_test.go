package server

import (
	"context"
	"testing"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"github.com/tugasin/tugasin-blog/config"
	"github.com/tugasin/tugasin-blog/logger"
	"github.com/tugasin/tugasin-blog/types"
)

func newCtx(method, uri string) *fasthttp.RequestCtx {
	var req fasthttp.Request
	req.Header.SetMethod(method)
	req.SetRequestURI(uri)

	ctx := &fasthttp.RequestCtx{}
	ctx.Init(&req, nil, nil)
	return ctx
}

func named(name string) types.FastHTTPHandler {
	return func(ctx *fasthttp.RequestCtx) {
		ctx.SetBodyString(name)
	}
}

func testRouter() *Router {
	r := NewRouter()
	r.GET("/blog/", named("index"))
	r.GET("/blog/page/{page}/", named("page"))
	r.GET("/blog/{category}/", named("category"))
	r.GET("/blog/{category}/{slug}/", named("post"))
	r.POST("/api/cache/clear", named("clear"))

	api := r.Group("/api/blog").WithTimeout(2 * time.Second)
	api.GET("/posts", named("posts"))
	return r
}

func TestRouterStaticAndParams(t *testing.T) {
	r := testRouter()

	cases := map[string]string{
		"/blog/":                      "index",
		"/blog":                       "index",
		"/blog/page/2/":               "page",
		"/blog/tips/":                 "category",
		"/blog/tips/belajar-efektif/": "post",
		"/blog/page/":                 "category",
		"/api/blog/posts":             "posts",
	}

	for uri, want := range cases {
		ctx := newCtx("GET", uri)
		r.Handler(ctx)
		assert.Check(t, is.Equal(string(ctx.Response.Body()), want), uri)
	}
}

func TestRouterCapturesParams(t *testing.T) {
	r := testRouter()

	ctx := newCtx("GET", "/blog/tips/belajar-efektif/")
	r.Handler(ctx)

	assert.Equal(t, Param(ctx, "category"), "tips")
	assert.Equal(t, Param(ctx, "slug"), "belajar-efektif")
	assert.Equal(t, Param(ctx, "missing"), "")
}

func TestRouterLiteralBeatsParam(t *testing.T) {
	r := testRouter()

	ctx := newCtx("GET", "/blog/page/3/")
	r.Handler(ctx)
	assert.Equal(t, string(ctx.Response.Body()), "page")
	assert.Equal(t, Param(ctx, "page"), "3")
}

func TestRouterNotFoundAndMethods(t *testing.T) {
	r := testRouter()

	ctx := newCtx("GET", "/nope/a/b/c")
	r.Handler(ctx)
	assert.Equal(t, ctx.Response.StatusCode(), fasthttp.StatusNotFound)

	ctx = newCtx("GET", "/api/cache/clear")
	r.Handler(ctx)
	assert.Equal(t, ctx.Response.StatusCode(), fasthttp.StatusNotFound)

	ctx = newCtx("HEAD", "/blog/")
	r.Handler(ctx)
	assert.Equal(t, ctx.Response.StatusCode(), fasthttp.StatusOK)
}

func TestRouterTimeout(t *testing.T) {
	r := testRouter()

	var deadline bool
	r.GET("/slow", func(ctx *fasthttp.RequestCtx) {
		c, cancel := RequestContext(ctx)
		defer cancel()
		_, deadline = c.Deadline()
	}).WithTimeout(time.Second)

	r.Handler(newCtx("GET", "/slow"))
	assert.Check(t, deadline)

	routes := r.Routes()
	assert.Check(t, is.Len(routes, 7))
	for _, route := range routes {
		if route.Path == "/api/blog/posts" {
			assert.Equal(t, route.Config.Timeout, 2*time.Second)
		}
	}
}

func TestServerLifecycle(t *testing.T) {
	cfg := config.NewLoader().Defaults()
	cfg.Server.HTTP.Host = "127.0.0.1"
	cfg.Server.HTTP.Port = 0

	r := NewRouter()
	r.GET("/health", named("ok"))

	s, err := NewHTTPServer(context.Background(), config.NewStaticManager(cfg), logger.NewZapWrapper(zap.NewNop()), nil, r)
	assert.NilError(t, err)

	assert.NilError(t, s.Start())
	assert.Check(t, s.IsRunning())
	assert.ErrorIs(t, s.Start(), types.ErrServerAlreadyRunning)

	status, body, err := fasthttp.Get(nil, "http://"+s.Addr()+"/health")
	assert.NilError(t, err)
	assert.Equal(t, status, fasthttp.StatusOK)
	assert.Equal(t, string(body), "ok")

	assert.NilError(t, s.Stop())
	assert.Check(t, !s.IsRunning())
	assert.ErrorIs(t, s.Stop(), types.ErrServerNotRunning)
}
