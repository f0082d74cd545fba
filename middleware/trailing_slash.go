package middleware

import (
	"path"
	"strings"

	"github.com/valyala/fasthttp"

	"github.com/tugasin/tugasin-blog/types"
)

// TrailingSlashMiddleware redirects page paths to their canonical form ending in "/". API routes and
// paths naming a file (sitemap.xml, robots.txt) are served as they are.
type TrailingSlashMiddleware struct {
	slashConfig *TrailingSlashConfig
	weight      int
}

type TrailingSlashConfig struct {
	SkipPrefixes []string `json:"skip_prefixes"`
	StatusCode   int      `json:"status_code"`
}

func NewTrailingSlashMiddleware(item *types.MiddlewareItemConfig, logger types.Logger) *TrailingSlashMiddleware {
	slashConfig := &TrailingSlashConfig{
		SkipPrefixes: []string{"/api/", "/health", "/metrics", "/version"},
		StatusCode:   fasthttp.StatusMovedPermanently,
	}

	weight := decodeParams(item, slashConfig, logger, "trailing_slash")

	return &TrailingSlashMiddleware{
		slashConfig: slashConfig,
		weight:      weight,
	}
}

func (t *TrailingSlashMiddleware) Name() string { return "trailing_slash" }
func (t *TrailingSlashMiddleware) Weight() int  { return t.weight }

func (t *TrailingSlashMiddleware) Handle(ctx *fasthttp.RequestCtx, next func(*fasthttp.RequestCtx)) {
	if !ctx.IsGet() && !ctx.IsHead() {
		next(ctx)
		return
	}

	p := string(ctx.Path())
	if !t.needsSlash(p) {
		next(ctx)
		return
	}

	location := p + "/"
	if query := ctx.QueryArgs().QueryString(); len(query) > 0 {
		location += "?" + string(query)
	}

	ctx.Response.Header.Set("Location", location)
	ctx.SetStatusCode(t.slashConfig.StatusCode)
}

func (t *TrailingSlashMiddleware) needsSlash(p string) bool {
	if p == "" || p == "/" || strings.HasSuffix(p, "/") {
		return false
	}

	if p == "/api" {
		return false
	}

	for _, prefix := range t.slashConfig.SkipPrefixes {
		if strings.HasPrefix(p, prefix) {
			return false
		}
	}

	return path.Ext(p) == ""
}
