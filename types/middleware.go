package types

import "github.com/valyala/fasthttp"

type MiddlewareManager interface {
	Register(middleware Middleware) error
	Wrap(handler FastHTTPHandler) FastHTTPHandler
	Middlewares() []Middleware
}

type Middleware interface {
	Handle(ctx *fasthttp.RequestCtx, next func(*fasthttp.RequestCtx))
	Name() string
	Weight() int
}
