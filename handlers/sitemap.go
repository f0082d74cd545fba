package handlers

import (
	"errors"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/tugasin/tugasin-blog/server"
	"github.com/tugasin/tugasin-blog/sitemap"
	"github.com/tugasin/tugasin-blog/types"
	"github.com/tugasin/tugasin-blog/utils"
)

func (h *Handlers) handleSitemapIndex(ctx *fasthttp.RequestCtx) {
	if h.site.SitemapSource == string(sitemap.SourceCMS) {
		h.proxyDocument(ctx, sitemap.IndexName)
		return
	}

	c, cancel := server.RequestContext(ctx)
	defer cancel()

	body, err := h.generator.Index(c)
	if err != nil {
		h.logger.Error("Failed to generate sitemap index", zap.Error(err))
		h.writeXML(ctx, sitemap.EmptyIndex(), sitemap.CacheLocalError, sitemap.SourceLocal)
		return
	}

	h.writeXML(ctx, body, sitemap.CacheLocal, sitemap.SourceLocal)
}

func (h *Handlers) handleSitemapPage(ctx *fasthttp.RequestCtx) {
	page, ok := parsePage(server.Param(ctx, "page"))
	if !ok {
		utils.WriteText(ctx, fasthttp.StatusBadRequest, "Invalid page number")
		return
	}

	if h.site.SitemapSource == string(sitemap.SourceCMS) {
		h.proxyDocument(ctx, sitemap.ChunkName(page))
		return
	}

	c, cancel := server.RequestContext(ctx)
	defer cancel()

	body, err := h.generator.Page(c, page)
	if err != nil {
		h.logger.Error("Failed to generate sitemap page", zap.Int("page", page), zap.Error(err))
		h.writeXML(ctx, sitemap.EmptyURLSet(), sitemap.CacheLocalError, sitemap.SourceLocal)
		return
	}

	h.writeXML(ctx, body, sitemap.CacheLocal, sitemap.SourceLocal)
}

func (h *Handlers) handleSitemapProxyPage(ctx *fasthttp.RequestCtx) {
	page, ok := parsePage(server.Param(ctx, "page"))
	if !ok {
		utils.WriteText(ctx, fasthttp.StatusBadRequest, "Invalid page number")
		return
	}

	h.proxyDocument(ctx, sitemap.ChunkName(page))
}

func (h *Handlers) proxyDocument(ctx *fasthttp.RequestCtx, name string) {
	c, cancel := server.RequestContext(ctx)
	defer cancel()

	doc, err := h.proxy.Fetch(c, name)
	if err != nil {
		var configErr *types.ConfigError
		if errors.As(err, &configErr) {
			utils.WriteText(ctx, fasthttp.StatusInternalServerError, "CMS configuration missing")
			return
		}

		h.logger.Error("Sitemap proxy failed", zap.String("name", name), zap.Error(err))
		utils.CreateErrorResponse(ctx)
		return
	}

	h.writeXML(ctx, doc.Body, doc.CacheControl, doc.Source)
}

// writeXML sets an ETag and honours If-None-Match.
func (h *Handlers) writeXML(ctx *fasthttp.RequestCtx, body []byte, cacheControl string, source sitemap.Source) {
	etag := sitemap.ETag(body)

	ctx.Response.Header.Set("Cache-Control", cacheControl)
	ctx.Response.Header.Set("ETag", etag)
	ctx.Response.Header.Set("X-Sitemap-Source", string(source))
	ctx.SetContentType(sitemap.ContentType)

	if utils.BytesToString(ctx.Request.Header.Peek("If-None-Match")) == etag {
		ctx.SetStatusCode(fasthttp.StatusNotModified)
		return
	}

	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetBody(body)
}
