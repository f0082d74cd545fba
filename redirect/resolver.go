package redirect

import (
	"context"
	"net/url"

	"go.uber.org/zap"

	"github.com/tugasin/tugasin-blog/cms"
	"github.com/tugasin/tugasin-blog/content"
	"github.com/tugasin/tugasin-blog/types"
)

// PostFinder resolves the post a redirect points at.
type PostFinder interface {
	FetchPostByID(ctx context.Context, id string) (*cms.APIPost, error)
}

type Result struct {
	ShouldRedirect bool   `json:"shouldRedirect"`
	URL            string `json:"redirectUrl,omitempty"`
	Status         int    `json:"httpStatus,omitempty"`
	TargetSlug     string `json:"targetSlug,omitempty"`
}

type Resolver struct {
	logger types.Logger
	finder PostFinder
}

func NewResolver(logger types.Logger, finder PostFinder) *Resolver {
	return &Resolver{logger: logger, finder: finder}
}

// Resolve turns a redirect descriptor into a location. Post redirects look up the target post only
// to pick its category segment; a failed lookup falls back to currentCategory and still redirects.
func (r *Resolver) Resolve(ctx context.Context, redirect *cms.Redirect, currentCategory string) Result {
	if redirect == nil {
		return Result{}
	}

	switch redirect.Type {
	case cms.RedirectTypeURL:
		if redirect.Target == nil || redirect.Target.URL == "" {
			r.logger.Warn("URL redirect without target", zap.Int("status", redirect.HTTPStatus))
			return Result{}
		}
		return Result{
			ShouldRedirect: true,
			URL:            redirect.Target.URL,
			Status:         redirect.HTTPStatus,
		}

	case cms.RedirectTypePost:
		if redirect.Target == nil || redirect.Target.Slug == "" {
			r.logger.Warn("Post redirect without target slug", zap.Int("status", redirect.HTTPStatus))
			return Result{}
		}

		target := redirect.Target
		category := r.targetCategory(ctx, target.PostID, currentCategory)

		return Result{
			ShouldRedirect: true,
			URL:            PostPath(category, target.Slug),
			Status:         redirect.HTTPStatus,
			TargetSlug:     target.Slug,
		}

	default:
		return Result{}
	}
}

func (r *Resolver) targetCategory(ctx context.Context, postID, fallback string) string {
	if postID == "" || r.finder == nil {
		return fallback
	}

	post, err := r.finder.FetchPostByID(ctx, postID)
	if err != nil {
		r.logger.Warn("Redirect target lookup failed, using current category",
			zap.String("post_id", postID), zap.String("category", fallback), zap.Error(err))
		return fallback
	}

	if post == nil || len(post.Categories) == 0 {
		return fallback
	}

	first := post.Categories[0]
	if first.Slug != "" {
		return first.Slug
	}
	if first.Name != "" {
		return content.CreateSlug(first.Name)
	}

	return fallback
}

func PostPath(category, slug string) string {
	return "/blog/" + url.PathEscape(category) + "/" + url.PathEscape(slug)
}

func IsGone(status int) bool {
	return status == 410
}

func IsPermanent(status int) bool {
	return status == 301 || status == 308
}

func IsTemporary(status int) bool {
	return status == 302 || status == 307
}

func StatusText(status int) string {
	switch status {
	case 301:
		return "Moved Permanently"
	case 302:
		return "Found (Temporary)"
	case 307:
		return "Temporary Redirect"
	case 308:
		return "Permanent Redirect"
	case 410:
		return "Gone"
	default:
		return "Redirect"
	}
}
