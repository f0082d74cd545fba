package server

import (
	"time"

	"github.com/tugasin/tugasin-blog/types"
)

// RouteBuilder edits the config of an already registered route.
type RouteBuilder struct {
	config *types.RouteConfig
}

func (rb *RouteBuilder) WithTimeout(duration time.Duration) types.RouteBuilder {
	rb.config.Timeout = duration
	return rb
}

type GroupBuilder struct {
	router *Router
	prefix string
	config *types.RouteConfig
}

func (gb *GroupBuilder) WithTimeout(duration time.Duration) types.GroupBuilder {
	gb.config.Timeout = duration
	return gb
}

func (gb *GroupBuilder) GET(path string, handler types.FastHTTPHandler) types.RouteBuilder {
	return gb.router.route("GET", gb.prefix+path, handler, gb.config)
}

func (gb *GroupBuilder) POST(path string, handler types.FastHTTPHandler) types.RouteBuilder {
	return gb.router.route("POST", gb.prefix+path, handler, gb.config)
}

func (gb *GroupBuilder) Group(prefix string) types.GroupBuilder {
	return &GroupBuilder{
		router: gb.router,
		prefix: gb.prefix + prefix,
		config: &types.RouteConfig{Timeout: gb.config.Timeout},
	}
}
