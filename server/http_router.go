package server

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/tugasin/tugasin-blog/types"
	"github.com/tugasin/tugasin-blog/utils"
)

const timeoutKey = "route_timeout"

type compiledRoute struct {
	definition types.RouteDefinition
	segments   []string
	params     []bool
}

// Router keeps static routes in a map keyed by "METHOD:path" and matches the rest segment by segment.
// Paths are compared without their trailing slash, so "/blog/" and "/blog" reach the same route.
type Router struct {
	static  map[string]*compiledRoute
	dynamic []*compiledRoute
	order   []*compiledRoute
	mu      sync.RWMutex
}

func NewRouter() *Router {
	return &Router{
		static: make(map[string]*compiledRoute),
	}
}

func (r *Router) Add(method, path string, handler types.FastHTTPHandler, config *types.RouteConfig) {
	if config == nil {
		config = &types.RouteConfig{}
	}

	route := &compiledRoute{
		definition: types.RouteDefinition{
			Method:  method,
			Path:    path,
			Handler: handler,
			Config:  config,
		},
		segments: splitPath(path),
	}

	isStatic := true
	route.params = make([]bool, len(route.segments))
	for i, seg := range route.segments {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			route.params[i] = true
			route.segments[i] = seg[1 : len(seg)-1]
			isStatic = false
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.order = append(r.order, route)
	if isStatic {
		r.static[method+":"+normalizePath(path)] = route
		return
	}
	r.dynamic = append(r.dynamic, route)
}

func (r *Router) GET(path string, handler types.FastHTTPHandler) types.RouteBuilder {
	return r.route(fasthttp.MethodGet, path, handler, nil)
}

func (r *Router) POST(path string, handler types.FastHTTPHandler) types.RouteBuilder {
	return r.route(fasthttp.MethodPost, path, handler, nil)
}

func (r *Router) Group(prefix string) types.GroupBuilder {
	return &GroupBuilder{
		router: r,
		prefix: strings.TrimSuffix(prefix, "/"),
		config: &types.RouteConfig{},
	}
}

func (r *Router) Routes() []types.RouteDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	routes := make([]types.RouteDefinition, 0, len(r.order))
	for _, route := range r.order {
		routes = append(routes, route.definition)
	}

	sort.SliceStable(routes, func(i, j int) bool {
		return routes[i].Path < routes[j].Path
	})
	return routes
}

func (r *Router) route(method, path string, handler types.FastHTTPHandler, inherited *types.RouteConfig) types.RouteBuilder {
	config := &types.RouteConfig{}
	if inherited != nil {
		config.Timeout = inherited.Timeout
	}

	r.Add(method, path, handler, config)
	return &RouteBuilder{config: config}
}

// Handler dispatches the request. HEAD falls back to the GET route.
func (r *Router) Handler(ctx *fasthttp.RequestCtx) {
	method := string(ctx.Method())
	path := string(ctx.Path())

	route, params := r.find(method, path)
	if route == nil && method == fasthttp.MethodHead {
		route, params = r.find(fasthttp.MethodGet, path)
	}

	if route == nil {
		utils.WriteError(ctx, fasthttp.StatusNotFound, "Route not found")
		return
	}

	for name, value := range params {
		ctx.SetUserValue(name, value)
	}

	if route.definition.Config.Timeout > 0 {
		ctx.SetUserValue(timeoutKey, route.definition.Config.Timeout)
	}

	route.definition.Handler(ctx)
}

func (r *Router) find(method, path string) (*compiledRoute, map[string]string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if route, ok := r.static[method+":"+normalizePath(path)]; ok {
		return route, nil
	}

	segments := splitPath(path)

	var best *compiledRoute
	for _, route := range r.dynamic {
		if route.definition.Method != method || !route.matches(segments) {
			continue
		}
		if best == nil || route.moreSpecific(best) {
			best = route
		}
	}

	if best == nil {
		return nil, nil
	}

	params := make(map[string]string, len(best.segments))
	for i, isParam := range best.params {
		if isParam {
			params[best.segments[i]] = segments[i]
		}
	}
	return best, params
}

func (c *compiledRoute) matches(segments []string) bool {
	if len(segments) != len(c.segments) {
		return false
	}

	for i, seg := range c.segments {
		if !c.params[i] && seg != segments[i] {
			return false
		}
	}
	return true
}

// moreSpecific reports whether c has a literal segment where other first has a parameter.
func (c *compiledRoute) moreSpecific(other *compiledRoute) bool {
	for i := range c.params {
		if c.params[i] != other.params[i] {
			return !c.params[i]
		}
	}
	return false
}

// RequestContext derives a context bounded by the route timeout, if one was configured.
func RequestContext(ctx *fasthttp.RequestCtx) (context.Context, context.CancelFunc) {
	if timeout, ok := ctx.UserValue(timeoutKey).(time.Duration); ok && timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

// Param returns a path parameter captured by a {name} segment.
func Param(ctx *fasthttp.RequestCtx, name string) string {
	value, _ := ctx.UserValue(name).(string)
	return value
}

func normalizePath(path string) string {
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	if path == "" {
		return "/"
	}
	return path
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return []string{}
	}
	return strings.Split(path, "/")
}
