package handlers

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"github.com/tugasin/tugasin-blog/blog"
	"github.com/tugasin/tugasin-blog/cms"
	"github.com/tugasin/tugasin-blog/content"
	"github.com/tugasin/tugasin-blog/logger"
	"github.com/tugasin/tugasin-blog/redirect"
	"github.com/tugasin/tugasin-blog/server"
	"github.com/tugasin/tugasin-blog/sitemap"
	"github.com/tugasin/tugasin-blog/types"
	"github.com/tugasin/tugasin-blog/utils"
)

type fakeBlog struct {
	mu          sync.Mutex
	posts       []content.Post
	lookup      *blog.PostLookup
	lookupErr   error
	lastPage    int
	lastPerPage int
	probed      bool
	cleared     []string
}

func (f *fakeBlog) GetPostsWithPagination(_ context.Context, page, perPage int, _ string) ([]content.Post, content.PageInfo) {
	f.mu.Lock()
	f.lastPage, f.lastPerPage = page, perPage
	f.mu.Unlock()
	return f.posts, content.PageInfo{CurrentPage: page, TotalPages: 1, TotalPosts: len(f.posts)}
}

func (f *fakeBlog) GetFeaturedPost(context.Context) *content.Post {
	if len(f.posts) == 0 {
		return nil
	}
	return &f.posts[0]
}

func (f *fakeBlog) GetRecentPosts(_ context.Context, limit int) []content.Post {
	if limit > len(f.posts) {
		limit = len(f.posts)
	}
	return f.posts[:limit]
}

func (f *fakeBlog) GetPostsByCategory(_ context.Context, category string, limit int) []content.Post {
	var out []content.Post
	for _, post := range f.posts {
		if post.Category == category && len(out) < limit {
			out = append(out, post)
		}
	}
	return out
}

func (f *fakeBlog) GetCategories(context.Context) []content.Category {
	return []content.Category{{Name: "Tips", Slug: "tips", Count: len(f.posts)}}
}

func (f *fakeBlog) GetTotalPostCount(context.Context) int { return len(f.posts) }

func (f *fakeBlog) LookupPost(context.Context, string) (*blog.PostLookup, error) {
	return f.lookup, f.lookupErr
}

func (f *fakeBlog) ProbeCMS(context.Context) bool {
	f.probed = true
	return true
}

func (f *fakeBlog) GetCMSStatus() blog.CMSStatus {
	available := f.probed
	return blog.CMSStatus{Available: &available}
}

func (f *fakeBlog) ClearCache() error {
	f.cleared = append(f.cleared, "cache")
	return nil
}

func (f *fakeBlog) InvalidateSitemap() error {
	f.cleared = append(f.cleared, "sitemap")
	return nil
}

func (f *fakeBlog) InvalidatePost(slug string) error {
	f.cleared = append(f.cleared, "post:"+slug)
	return nil
}

type fakeGenerator struct {
	err error
}

func (g *fakeGenerator) Index(context.Context) ([]byte, error) {
	return []byte("<sitemapindex/>"), g.err
}

func (g *fakeGenerator) Page(_ context.Context, page int) ([]byte, error) {
	if g.err != nil {
		return nil, g.err
	}
	return []byte("<urlset page=\"" + sitemap.ChunkName(page) + "\"/>"), nil
}

type fakeProxy struct {
	names []string
	err   error
}

func (p *fakeProxy) Fetch(_ context.Context, name string) (sitemap.Document, error) {
	p.names = append(p.names, name)
	if p.err != nil {
		return sitemap.Document{}, p.err
	}
	return sitemap.Document{Body: []byte("<cms/>"), CacheControl: sitemap.CacheProxy, Source: sitemap.SourceCMS}, nil
}

type fixture struct {
	blog      *fakeBlog
	generator *fakeGenerator
	proxy     *fakeProxy
	site      *types.SiteConfig
	router    *server.Router
}

func newFixture() *fixture {
	return newFixtureWithToken("s3cret")
}

func newFixtureWithToken(adminToken string) *fixture {
	f := &fixture{
		blog: &fakeBlog{posts: []content.Post{
			{ID: 1, Slug: "satu", Title: "Satu", Category: "tips"},
			{ID: 2, Slug: "dua", Title: "Dua", Category: "tips"},
			{ID: 3, Slug: "tiga", Title: "Tiga", Category: "tips"},
			{ID: 4, Slug: "empat", Title: "Empat", Category: "tips"},
			{ID: 5, Slug: "lima", Title: "Lima", Category: "skripsi"},
		}},
		generator: &fakeGenerator{},
		proxy:     &fakeProxy{},
		site:      &types.SiteConfig{URL: "https://tugasin.me", SitemapSource: "local", AdminToken: adminToken},
		router:    server.NewRouter(),
	}

	log := logger.NewZapWrapper(zap.NewNop())
	h := New(log, nil, f.site, f.blog, redirect.NewResolver(log, nil), f.generator, f.proxy)
	h.Register(f.router)
	return f
}

func (f *fixture) do(method, uri string, prepare ...func(*fasthttp.Request)) *fasthttp.RequestCtx {
	var req fasthttp.Request
	req.Header.SetMethod(method)
	req.SetRequestURI(uri)
	for _, p := range prepare {
		p(&req)
	}

	ctx := &fasthttp.RequestCtx{}
	ctx.Init(&req, nil, nil)
	f.router.Handler(ctx)
	return ctx
}

func TestPostsAPIClampsLimit(t *testing.T) {
	f := newFixture()

	ctx := f.do("GET", "/api/blog/posts?page=0&limit=500")
	assert.Equal(t, ctx.Response.StatusCode(), fasthttp.StatusOK)
	assert.Equal(t, f.blog.lastPage, 1)
	assert.Equal(t, f.blog.lastPerPage, MaxAPILimit)

	var resp PostsResponse
	assert.NilError(t, utils.Unmarshal(ctx.Response.Body(), &resp))
	assert.Check(t, is.Len(resp.Posts, 5))
	assert.Equal(t, resp.PageInfo.TotalPosts, 5)

	f.do("GET", "/api/blog/posts?limit=abc")
	assert.Equal(t, f.blog.lastPerPage, DefaultAPILimit)
}

func TestCountAndRecentAPI(t *testing.T) {
	f := newFixture()

	ctx := f.do("GET", "/api/blog/count")
	assert.Equal(t, string(ctx.Response.Body()), `{"count":5}`)

	ctx = f.do("GET", "/api/blog/recent?limit=2")
	var recent map[string][]content.Post
	assert.NilError(t, utils.Unmarshal(ctx.Response.Body(), &recent))
	assert.Check(t, is.Len(recent["posts"], 2))
}

func TestBlogIndexPages(t *testing.T) {
	f := newFixture()

	ctx := f.do("GET", "/blog/")
	assert.Equal(t, ctx.Response.StatusCode(), fasthttp.StatusOK)
	assert.Equal(t, string(ctx.Response.Header.Peek("Cache-Control")), pageCacheControl)

	var first BlogPage
	assert.NilError(t, utils.Unmarshal(ctx.Response.Body(), &first))
	assert.Assert(t, first.FeaturedPost != nil)
	assert.Equal(t, first.PostsPerPage, PostsPerPage)

	ctx = f.do("GET", "/blog/page/2/")
	var second BlogPage
	assert.NilError(t, utils.Unmarshal(ctx.Response.Body(), &second))
	assert.Check(t, second.FeaturedPost == nil)
	assert.Equal(t, f.blog.lastPage, 2)

	ctx = f.do("GET", "/blog/page/abc/")
	assert.Equal(t, ctx.Response.StatusCode(), fasthttp.StatusNotFound)
}

func TestPostPageServesPostWithRelated(t *testing.T) {
	f := newFixture()
	post := f.blog.posts[0]
	f.blog.lookup = &blog.PostLookup{Post: &post, State: blog.StateFresh}

	ctx := f.do("GET", "/blog/tips/satu/")
	assert.Equal(t, ctx.Response.StatusCode(), fasthttp.StatusOK)
	assert.Equal(t, string(ctx.Response.Header.Peek("X-Cache-State")), "fresh")

	var page PostPage
	assert.NilError(t, utils.Unmarshal(ctx.Response.Body(), &page))
	assert.Equal(t, page.Post.Slug, "satu")
	assert.Equal(t, page.Category, "tips")
	assert.Assert(t, is.Len(page.RelatedPosts, RelatedPosts))
	for _, related := range page.RelatedPosts {
		assert.Check(t, related.Slug != "satu")
	}
}

func TestPostPageRedirects(t *testing.T) {
	f := newFixture()
	post := f.blog.posts[0]
	f.blog.lookup = &blog.PostLookup{
		Post:  &post,
		State: blog.StateFresh,
		Redirect: &cms.Redirect{
			Type:       cms.RedirectTypePost,
			HTTPStatus: fasthttp.StatusMovedPermanently,
			Target:     &cms.RedirectTarget{Slug: "baru"},
		},
	}

	ctx := f.do("GET", "/blog/tips/satu/")
	assert.Equal(t, ctx.Response.StatusCode(), fasthttp.StatusMovedPermanently)
	assert.Equal(t, string(ctx.Response.Header.Peek("Location")), "/blog/tips/baru")
}

func TestPostPageGone(t *testing.T) {
	f := newFixture()
	f.blog.lookup = &blog.PostLookup{
		State:    blog.StateTombstone,
		Redirect: &cms.Redirect{Type: cms.RedirectTypeURL, HTTPStatus: fasthttp.StatusGone},
	}

	ctx := f.do("GET", "/blog/tips/hilang/")
	assert.Equal(t, ctx.Response.StatusCode(), fasthttp.StatusGone)
	assert.Equal(t, string(ctx.Response.Body()), "Gone")
	assert.Equal(t, len(ctx.Response.Header.Peek("Location")), 0)
}

func TestPostPageTombstoneRedirects(t *testing.T) {
	f := newFixture()
	f.blog.lookup = &blog.PostLookup{
		State: blog.StateTombstone,
		Redirect: &cms.Redirect{
			Type:       cms.RedirectTypeURL,
			HTTPStatus: fasthttp.StatusMovedPermanently,
			Target:     &cms.RedirectTarget{URL: "/new-path"},
		},
	}

	ctx := f.do("GET", "/blog/tips/old-post/")
	assert.Equal(t, ctx.Response.StatusCode(), fasthttp.StatusMovedPermanently)
	assert.Equal(t, string(ctx.Response.Header.Peek("Location")), "/new-path")
	assert.Equal(t, string(ctx.Response.Header.Peek("X-Cache-State")), string(blog.StateTombstone))
}

func TestPostPageNotFound(t *testing.T) {
	f := newFixture()

	ctx := f.do("GET", "/blog/tips/tidak-ada/")
	assert.Equal(t, ctx.Response.StatusCode(), fasthttp.StatusNotFound)

	f.blog.lookupErr = errors.New("cms down")
	ctx = f.do("GET", "/blog/tips/tidak-ada/")
	assert.Equal(t, ctx.Response.StatusCode(), fasthttp.StatusNotFound)
}

func TestSitemapLocal(t *testing.T) {
	f := newFixture()

	ctx := f.do("GET", "/sitemap-post.xml")
	assert.Equal(t, ctx.Response.StatusCode(), fasthttp.StatusOK)
	assert.Equal(t, string(ctx.Response.Header.ContentType()), sitemap.ContentType)
	assert.Equal(t, string(ctx.Response.Header.Peek("X-Sitemap-Source")), "local")
	assert.Equal(t, string(ctx.Response.Header.Peek("Cache-Control")), sitemap.CacheLocal)

	ctx = f.do("GET", "/api/sitemap-post/2")
	assert.Check(t, is.Contains(string(ctx.Response.Body()), "sitemap-post-2.xml"))
	etag := string(ctx.Response.Header.Peek("ETag"))
	assert.Assert(t, etag != "")

	ctx = f.do("GET", "/api/sitemap-post/2", func(req *fasthttp.Request) {
		req.Header.Set("If-None-Match", etag)
	})
	assert.Equal(t, ctx.Response.StatusCode(), fasthttp.StatusNotModified)
	assert.Equal(t, len(ctx.Response.Body()), 0)

	ctx = f.do("GET", "/api/sitemap-post/0")
	assert.Equal(t, ctx.Response.StatusCode(), fasthttp.StatusBadRequest)
	assert.Equal(t, string(ctx.Response.Body()), "Invalid page number")
}

func TestSitemapLocalFailureServesEmptyDocument(t *testing.T) {
	f := newFixture()
	f.generator.err = errors.New("cms down")

	ctx := f.do("GET", "/api/sitemap-post/1")
	assert.Equal(t, ctx.Response.StatusCode(), fasthttp.StatusOK)
	assert.Equal(t, string(ctx.Response.Body()), string(sitemap.EmptyURLSet()))
	assert.Equal(t, string(ctx.Response.Header.Peek("Cache-Control")), sitemap.CacheLocalError)
}

func TestSitemapCMSSource(t *testing.T) {
	f := newFixture()
	f.site.SitemapSource = "cms"

	ctx := f.do("GET", "/sitemap-post.xml")
	assert.Equal(t, string(ctx.Response.Body()), "<cms/>")
	assert.Equal(t, string(ctx.Response.Header.Peek("X-Sitemap-Source")), "cms")

	f.do("GET", "/api/sitemap-post/3")
	assert.DeepEqual(t, f.proxy.names, []string{sitemap.IndexName, "sitemap-post-3.xml"})
}

func TestSitemapProxyMissingConfig(t *testing.T) {
	f := newFixture()
	f.proxy.err = &types.ConfigError{Field: "cms.endpoint"}

	ctx := f.do("GET", "/api/sitemaps/proxy/1")
	assert.Equal(t, ctx.Response.StatusCode(), fasthttp.StatusInternalServerError)
	assert.Equal(t, string(ctx.Response.Body()), "CMS configuration missing")
}

func TestCMSStatusRefresh(t *testing.T) {
	f := newFixture()

	ctx := f.do("GET", "/api/cms/status")
	assert.Check(t, is.Contains(string(ctx.Response.Body()), `"available":false`))

	ctx = f.do("GET", "/api/cms/status?refresh=1")
	assert.Check(t, is.Contains(string(ctx.Response.Body()), `"available":true`))
}

func TestCacheClear(t *testing.T) {
	bearer := func(token string) func(*fasthttp.Request) {
		return func(req *fasthttp.Request) {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	f := newFixture()

	ctx := f.do("POST", "/api/cache/clear")
	assert.Equal(t, ctx.Response.StatusCode(), fasthttp.StatusUnauthorized)

	ctx = f.do("POST", "/api/cache/clear", bearer("wrong"))
	assert.Equal(t, ctx.Response.StatusCode(), fasthttp.StatusUnauthorized)

	ctx = f.do("POST", "/api/cache/clear?scope=post", bearer("s3cret"))
	assert.Equal(t, ctx.Response.StatusCode(), fasthttp.StatusBadRequest)

	ctx = f.do("POST", "/api/cache/clear", bearer("s3cret"), func(req *fasthttp.Request) {
		req.SetBodyString(`{"scope":"post","slug":"satu"}`)
	})
	assert.Equal(t, ctx.Response.StatusCode(), fasthttp.StatusOK)

	ctx = f.do("POST", "/api/cache/clear", bearer("s3cret"))
	assert.Equal(t, ctx.Response.StatusCode(), fasthttp.StatusOK)
	assert.Check(t, is.Contains(string(ctx.Response.Body()), `"cleared":"all"`))

	assert.DeepEqual(t, f.blog.cleared, []string{"post:satu", "cache", "sitemap"})

	ctx = f.do("POST", "/api/cache/clear?scope=everything", bearer("s3cret"))
	assert.Equal(t, ctx.Response.StatusCode(), fasthttp.StatusBadRequest)
}

func TestCacheClearDisabledWithoutToken(t *testing.T) {
	f := newFixtureWithToken("")

	ctx := f.do("POST", "/api/cache/clear", func(req *fasthttp.Request) {
		req.Header.Set("Authorization", "Bearer ")
	})
	assert.Equal(t, ctx.Response.StatusCode(), fasthttp.StatusUnauthorized)
	assert.Check(t, strings.Contains(string(ctx.Response.Header.Peek("WWW-Authenticate")), "Bearer"))
}
