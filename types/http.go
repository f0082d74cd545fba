package types

import (
	"net"
	"time"
)

// ListenerWrapper decorates the server listener, for example with TLS.
type ListenerWrapper interface {
	Listener(ln net.Listener) net.Listener
}

type HTTPServer interface {
	LifecycleManager
	Router() HTTPRouter
}

// HTTPRouter matches static paths first, then patterns whose {name} segments capture a single path segment.
type HTTPRouter interface {
	Add(method, path string, handler FastHTTPHandler, config *RouteConfig)
	GET(path string, handler FastHTTPHandler) RouteBuilder
	POST(path string, handler FastHTTPHandler) RouteBuilder
	Group(prefix string) GroupBuilder
	Routes() []RouteDefinition
}

type RouteBuilder interface {
	WithTimeout(duration time.Duration) RouteBuilder
}

type GroupBuilder interface {
	WithTimeout(duration time.Duration) GroupBuilder
	GET(path string, handler FastHTTPHandler) RouteBuilder
	POST(path string, handler FastHTTPHandler) RouteBuilder
	Group(prefix string) GroupBuilder
}

type RouteConfig struct {
	Timeout time.Duration
}

type RouteDefinition struct {
	Method  string
	Path    string
	Handler FastHTTPHandler
	Config  *RouteConfig
}
