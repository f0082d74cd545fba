package handlers

import (
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/tugasin/tugasin-blog/content"
	"github.com/tugasin/tugasin-blog/redirect"
	"github.com/tugasin/tugasin-blog/server"
	"github.com/tugasin/tugasin-blog/utils"
)

const pageCacheControl = "public, max-age=300, s-maxage=300, stale-while-revalidate=600"

type PostsResponse struct {
	Posts    []content.Post   `json:"posts"`
	PageInfo content.PageInfo `json:"pageInfo"`
}

type BlogPage struct {
	FeaturedPost *content.Post      `json:"featuredPost"`
	Posts        []content.Post     `json:"posts"`
	Categories   []content.Category `json:"categories"`
	Category     string             `json:"category,omitempty"`
	PageInfo     content.PageInfo   `json:"pageInfo"`
	PostsPerPage int                `json:"postsPerPage"`
}

type PostPage struct {
	Post         *content.Post  `json:"post"`
	RelatedPosts []content.Post `json:"relatedPosts"`
	Category     string         `json:"category"`
}

func (h *Handlers) handlePosts(ctx *fasthttp.RequestCtx) {
	c, cancel := server.RequestContext(ctx)
	defer cancel()

	page := clamp(queryInt(ctx, "page", 1), 1, 1<<20)
	limit := clamp(queryInt(ctx, "limit", DefaultAPILimit), 1, MaxAPILimit)
	category := string(ctx.QueryArgs().Peek("category"))

	posts, pageInfo := h.blog.GetPostsWithPagination(c, page, limit, category)
	utils.WriteJSON(ctx, fasthttp.StatusOK, PostsResponse{Posts: posts, PageInfo: pageInfo})
}

func (h *Handlers) handleFeatured(ctx *fasthttp.RequestCtx) {
	c, cancel := server.RequestContext(ctx)
	defer cancel()

	utils.WriteJSON(ctx, fasthttp.StatusOK, map[string]*content.Post{"post": h.blog.GetFeaturedPost(c)})
}

func (h *Handlers) handleRecent(ctx *fasthttp.RequestCtx) {
	c, cancel := server.RequestContext(ctx)
	defer cancel()

	limit := clamp(queryInt(ctx, "limit", 6), 1, MaxAPILimit)
	utils.WriteJSON(ctx, fasthttp.StatusOK, map[string][]content.Post{"posts": h.blog.GetRecentPosts(c, limit)})
}

func (h *Handlers) handleCategories(ctx *fasthttp.RequestCtx) {
	c, cancel := server.RequestContext(ctx)
	defer cancel()

	utils.WriteJSON(ctx, fasthttp.StatusOK, map[string][]content.Category{"categories": h.blog.GetCategories(c)})
}

func (h *Handlers) handleCount(ctx *fasthttp.RequestCtx) {
	c, cancel := server.RequestContext(ctx)
	defer cancel()

	utils.WriteJSON(ctx, fasthttp.StatusOK, map[string]int{"count": h.blog.GetTotalPostCount(c)})
}

// handleBlogIndex serves /blog/ and /blog/page/{page}/. The featured post is only part of page 1.
func (h *Handlers) handleBlogIndex(ctx *fasthttp.RequestCtx) {
	page := 1
	if raw := server.Param(ctx, "page"); raw != "" {
		parsed, ok := parsePage(raw)
		if !ok {
			utils.WriteError(ctx, fasthttp.StatusNotFound, "Halaman tidak ditemukan")
			return
		}
		page = parsed
	}

	h.writeListing(ctx, page, "")
}

func (h *Handlers) handleCategoryPage(ctx *fasthttp.RequestCtx) {
	h.writeListing(ctx, 1, server.Param(ctx, "category"))
}

func (h *Handlers) writeListing(ctx *fasthttp.RequestCtx, page int, category string) {
	c, cancel := server.RequestContext(ctx)
	defer cancel()

	posts, pageInfo := h.blog.GetPostsWithPagination(c, page, PostsPerPage, category)

	result := BlogPage{
		Posts:        posts,
		Categories:   h.blog.GetCategories(c),
		Category:     category,
		PageInfo:     pageInfo,
		PostsPerPage: PostsPerPage,
	}
	if page == 1 {
		result.FeaturedPost = h.blog.GetFeaturedPost(c)
	}

	ctx.Response.Header.Set("Cache-Control", pageCacheControl)
	utils.WriteJSON(ctx, fasthttp.StatusOK, result)
}

// handlePostPage answers with the post, a redirect, or 410. Any configured redirect wins over the
// post body; 410 never carries a Location.
func (h *Handlers) handlePostPage(ctx *fasthttp.RequestCtx) {
	c, cancel := server.RequestContext(ctx)
	defer cancel()

	category := server.Param(ctx, "category")
	slug := server.Param(ctx, "slug")

	lookup, err := h.blog.LookupPost(c, slug)
	if err != nil {
		h.logger.Warn("Post lookup failed", zap.String("slug", slug), zap.Error(err))
	}
	if lookup == nil {
		utils.WriteError(ctx, fasthttp.StatusNotFound, "Artikel tidak ditemukan")
		return
	}

	ctx.Response.Header.Set("X-Cache-State", string(lookup.State))

	if lookup.Redirect != nil {
		if redirect.IsGone(lookup.Redirect.HTTPStatus) {
			utils.WriteText(ctx, fasthttp.StatusGone, redirect.StatusText(fasthttp.StatusGone))
			return
		}

		result := h.resolver.Resolve(c, lookup.Redirect, category)
		if result.ShouldRedirect {
			ctx.Response.Header.Set("Location", result.URL)
			ctx.SetStatusCode(result.Status)
			return
		}
	}

	if lookup.Post == nil {
		utils.WriteError(ctx, fasthttp.StatusNotFound, "Artikel tidak ditemukan")
		return
	}

	ctx.Response.Header.Set("Cache-Control", pageCacheControl)
	utils.WriteJSON(ctx, fasthttp.StatusOK, PostPage{
		Post:         lookup.Post,
		RelatedPosts: h.related(ctx, lookup.Post),
		Category:     category,
	})
}

func (h *Handlers) related(ctx *fasthttp.RequestCtx, post *content.Post) []content.Post {
	c, cancel := server.RequestContext(ctx)
	defer cancel()

	candidates := h.blog.GetPostsByCategory(c, post.Category, RelatedPosts+1)

	related := make([]content.Post, 0, RelatedPosts)
	for _, candidate := range candidates {
		if candidate.Slug == post.Slug {
			continue
		}
		related = append(related, candidate)
		if len(related) == RelatedPosts {
			break
		}
	}
	return related
}
