package handlers

import (
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/tugasin/tugasin-blog/server"
	"github.com/tugasin/tugasin-blog/utils"
)

const (
	ScopeAll     = "all"
	ScopeSitemap = "sitemap"
	ScopePost    = "post"
)

type CacheClearRequest struct {
	Scope string `json:"scope"`
	Slug  string `json:"slug"`
}

type CacheClearResponse struct {
	Cleared   string    `json:"cleared"`
	Slug      string    `json:"slug,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// handleCMSStatus reports the cached availability flag; ?refresh=1 probes first.
func (h *Handlers) handleCMSStatus(ctx *fasthttp.RequestCtx) {
	if refresh := string(ctx.QueryArgs().Peek("refresh")); refresh == "1" || refresh == "true" {
		c, cancel := server.RequestContext(ctx)
		defer cancel()
		h.blog.ProbeCMS(c)
	}

	ctx.Response.Header.Set("Cache-Control", "no-store")
	utils.WriteJSON(ctx, fasthttp.StatusOK, h.blog.GetCMSStatus())
}

// handleCacheClear requires the admin token. Without a configured token the endpoint is closed.
func (h *Handlers) handleCacheClear(ctx *fasthttp.RequestCtx) {
	if err := h.admin.ApplyToIncomingRequest(ctx); err != nil {
		h.logger.Warn("Cache clear rejected", zap.String("ip", ctx.RemoteIP().String()), zap.Error(err))
		utils.CreateUnauthorizedResponse(ctx)
		return
	}

	req := CacheClearRequest{Scope: ScopeAll}
	if body := ctx.PostBody(); len(body) > 0 {
		if err := utils.Unmarshal(body, &req); err != nil {
			utils.WriteError(ctx, fasthttp.StatusBadRequest, "Invalid request body")
			return
		}
	}
	if scope := string(ctx.QueryArgs().Peek("scope")); scope != "" {
		req.Scope = scope
	}
	if slug := string(ctx.QueryArgs().Peek("slug")); slug != "" {
		req.Slug = slug
	}

	var err error
	switch req.Scope {
	case ScopeAll, "":
		req.Scope = ScopeAll
		err = h.blog.ClearCache()
		if err == nil {
			err = h.blog.InvalidateSitemap()
		}
	case ScopeSitemap:
		err = h.blog.InvalidateSitemap()
	case ScopePost:
		if strings.TrimSpace(req.Slug) == "" {
			utils.WriteError(ctx, fasthttp.StatusBadRequest, "slug is required for scope post")
			return
		}
		err = h.blog.InvalidatePost(req.Slug)
	default:
		utils.WriteError(ctx, fasthttp.StatusBadRequest, "unknown scope: "+req.Scope)
		return
	}

	if err != nil {
		h.logger.Error("Cache clear failed", zap.String("scope", req.Scope), zap.Error(err))
		utils.CreateErrorResponse(ctx)
		return
	}

	h.logger.Info("Cache cleared", zap.String("scope", req.Scope), zap.String("slug", req.Slug))
	utils.WriteJSON(ctx, fasthttp.StatusOK, CacheClearResponse{
		Cleared:   req.Scope,
		Slug:      req.Slug,
		Timestamp: time.Now().UTC(),
	})
}
