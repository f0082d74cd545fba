package cron

import (
	"context"

	"go.uber.org/zap"

	"github.com/tugasin/tugasin-blog/content"
	"github.com/tugasin/tugasin-blog/types"
)

const (
	JobCMSAvailability = "cms-availability"
	JobSitemapWarmup   = "sitemap-warmup"

	SpecCMSAvailability = "0 */2 * * * *"
	SpecSitemapWarmup   = "0 0 */6 * * *"
)

// CMSAvailabilityJob refreshes the cached availability flag. An unreachable CMS is a result, not a failure.
func CMSAvailabilityJob(logger types.Logger, probe func(ctx context.Context) bool) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		available := probe(ctx)
		logger.Debug("CMS availability probed", zap.Bool("available", available))
		return nil
	}
}

// SitemapWarmupJob rebuilds the cached sitemap listing and, when archive is set, stores the rendered
// chunks. Archive failures are logged; the listing refresh decides the job result.
func SitemapWarmupJob(
	logger types.Logger,
	refresh func(ctx context.Context) ([]content.Post, error),
	archive func(ctx context.Context, posts []content.Post) (int, error),
) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		posts, err := refresh(ctx)
		if err != nil {
			return types.WrapError(err, "failed to refresh sitemap listing")
		}

		logger.Info("Sitemap listing refreshed", zap.Int("posts", len(posts)))

		if archive == nil {
			return nil
		}

		documents, err := archive(ctx, posts)
		if err != nil {
			logger.Warn("Failed to archive sitemap documents", zap.Int("archived", documents), zap.Error(err))
			return nil
		}

		logger.Info("Sitemap documents archived", zap.Int("documents", documents))
		return nil
	}
}
