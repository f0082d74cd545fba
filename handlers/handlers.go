package handlers

import (
	"context"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/tugasin/tugasin-blog/auth"
	"github.com/tugasin/tugasin-blog/blog"
	"github.com/tugasin/tugasin-blog/cms"
	"github.com/tugasin/tugasin-blog/content"
	"github.com/tugasin/tugasin-blog/redirect"
	"github.com/tugasin/tugasin-blog/sitemap"
	"github.com/tugasin/tugasin-blog/types"
)

const (
	PostsPerPage    = 20
	DefaultAPILimit = 10
	MaxAPILimit     = 100
	RelatedPosts    = 3

	apiTimeout     = 15 * time.Second
	sitemapTimeout = 60 * time.Second
)

// BlogReader is the read and invalidation surface of blog.Service the HTTP layer needs.
type BlogReader interface {
	GetPostsWithPagination(ctx context.Context, page, perPage int, category string) ([]content.Post, content.PageInfo)
	GetFeaturedPost(ctx context.Context) *content.Post
	GetRecentPosts(ctx context.Context, limit int) []content.Post
	GetPostsByCategory(ctx context.Context, category string, limit int) []content.Post
	GetCategories(ctx context.Context) []content.Category
	GetTotalPostCount(ctx context.Context) int
	LookupPost(ctx context.Context, slug string) (*blog.PostLookup, error)
	ProbeCMS(ctx context.Context) bool
	GetCMSStatus() blog.CMSStatus
	ClearCache() error
	InvalidateSitemap() error
	InvalidatePost(slug string) error
}

type RedirectResolver interface {
	Resolve(ctx context.Context, redirect *cms.Redirect, currentCategory string) redirect.Result
}

type SitemapGenerator interface {
	Index(ctx context.Context) ([]byte, error)
	Page(ctx context.Context, page int) ([]byte, error)
}

type SitemapProxy interface {
	Fetch(ctx context.Context, name string) (sitemap.Document, error)
}

type Handlers struct {
	logger    types.Logger
	metrics   types.MetricsManager
	site      *types.SiteConfig
	admin     types.AuthProvider
	blog      BlogReader
	resolver  RedirectResolver
	generator SitemapGenerator
	proxy     SitemapProxy
}

func New(
	logger types.Logger,
	metrics types.MetricsManager,
	site *types.SiteConfig,
	blogReader BlogReader,
	resolver RedirectResolver,
	generator SitemapGenerator,
	proxy SitemapProxy,
) *Handlers {
	return &Handlers{
		logger:    logger,
		metrics:   metrics,
		site:      site,
		admin:     auth.NewTokenAuthProvider(site.AdminToken),
		blog:      blogReader,
		resolver:  resolver,
		generator: generator,
		proxy:     proxy,
	}
}

// Register mounts every route on router. Literal segments win over {param} ones, so
// /blog/page/{page}/ is matched before /blog/{category}/{slug}/.
func (h *Handlers) Register(router types.HTTPRouter) {
	api := router.Group("/api").WithTimeout(apiTimeout)
	api.GET("/blog/posts", h.handlePosts)
	api.GET("/blog/featured", h.handleFeatured)
	api.GET("/blog/recent", h.handleRecent)
	api.GET("/blog/categories", h.handleCategories)
	api.GET("/blog/count", h.handleCount)
	api.GET("/cms/status", h.handleCMSStatus)
	api.POST("/cache/clear", h.handleCacheClear)

	router.GET("/blog/", h.handleBlogIndex).WithTimeout(apiTimeout)
	router.GET("/blog/page/{page}/", h.handleBlogIndex).WithTimeout(apiTimeout)
	router.GET("/blog/{category}/", h.handleCategoryPage).WithTimeout(apiTimeout)
	router.GET("/blog/{category}/{slug}/", h.handlePostPage).WithTimeout(apiTimeout)

	router.GET("/"+sitemap.IndexName, h.handleSitemapIndex).WithTimeout(sitemapTimeout)
	router.GET("/api/sitemap-post/{page}", h.handleSitemapPage).WithTimeout(sitemapTimeout)
	router.GET("/api/sitemaps/proxy/{page}", h.handleSitemapProxyPage).WithTimeout(sitemapTimeout)

	if h.metrics != nil {
		router.GET("/metrics", h.metrics.Handler())
	}
}

func queryInt(ctx *fasthttp.RequestCtx, name string, def int) int {
	raw := ctx.QueryArgs().Peek(name)
	if len(raw) == 0 {
		return def
	}

	value, err := strconv.Atoi(string(raw))
	if err != nil {
		return def
	}
	return value
}

func clamp(value, lo, hi int) int {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}

// parsePage accepts positive decimal page numbers only.
func parsePage(raw string) (int, bool) {
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		return 0, false
	}
	return page, true
}
