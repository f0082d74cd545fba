package blog

import (
	"context"

	"go.uber.org/zap"

	"github.com/tugasin/tugasin-blog/cache"
	"github.com/tugasin/tugasin-blog/cms"
	"github.com/tugasin/tugasin-blog/content"
)

// GetPosts returns one page of posts, or an empty slice when the CMS fails.
func (s *Service) GetPosts(ctx context.Context, limit, page int, category string) []content.Post {
	posts, _, err := s.fetchPage(ctx, limit, page, category)
	if err != nil {
		s.logger.Warn("Failed to fetch posts",
			zap.Int("page", page), zap.Int("limit", limit), zap.String("category", category), zap.Error(err))
		return []content.Post{}
	}
	return posts
}

// GetPostsWithPagination keeps the CMS pagination envelope. On failure the requested page is echoed
// back with zero counts.
func (s *Service) GetPostsWithPagination(ctx context.Context, page, perPage int, category string) ([]content.Post, content.PageInfo) {
	posts, pagination, err := s.fetchPage(ctx, perPage, page, category)
	if err != nil {
		s.logger.Warn("Failed to fetch paginated posts",
			zap.Int("page", page), zap.Int("per_page", perPage), zap.Error(err))
		return []content.Post{}, content.PageInfo{CurrentPage: page}
	}

	return posts, content.PageInfo{
		CurrentPage: pagination.Page,
		TotalPages:  pagination.TotalPages,
		TotalPosts:  pagination.Total,
		HasNext:     pagination.HasNextPage,
		HasPrev:     pagination.HasPrevPage,
	}
}

func (s *Service) fetchPage(ctx context.Context, limit, page int, category string) ([]content.Post, cms.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 1
	}

	res, err := s.cms.FetchPosts(ctx, cms.ListParams{Page: page, Limit: limit, Category: category})
	if err != nil {
		return nil, cms.Pagination{}, err
	}

	return s.transformer.ToPosts(res.Posts), res.Pagination, nil
}

// GetFeaturedPost is the most recent post.
func (s *Service) GetFeaturedPost(ctx context.Context) *content.Post {
	posts := s.GetPosts(ctx, 1, 1, "")
	if len(posts) == 0 {
		return nil
	}

	featured := posts[0]
	featured.Featured = true
	return &featured
}

func (s *Service) GetRecentPosts(ctx context.Context, limit int) []content.Post {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	return s.GetPosts(ctx, limit, 1, "")
}

// GetPostsByCategory filters a bounded sample of recent posts. Category matches by name or slug.
func (s *Service) GetPostsByCategory(ctx context.Context, category string, limit int) []content.Post {
	if limit <= 0 {
		limit = DefaultRelatedLimit
	}

	sample := s.GetPosts(ctx, s.config.CategorySample, 1, "")

	matched := make([]content.Post, 0, limit)
	for _, post := range sample {
		if post.Category != category && post.CategorySlug != category {
			continue
		}
		matched = append(matched, post)
		if len(matched) == limit {
			break
		}
	}

	return matched
}

// GetCategories aggregates categories over the same bounded sample. Empty results are not cached so
// the next call retries the CMS; a stale list is preferred over an empty one.
func (s *Service) GetCategories(ctx context.Context) []content.Category {
	cached, ok := cache.Load[stamped[[]content.Category]](s.cache, keyCategories)
	if ok && s.now().Sub(cached.FetchedAt) < s.config.CategoriesTTL {
		return cached.Value
	}

	posts := s.GetPosts(ctx, s.config.CategorySample, 1, "")
	if len(posts) == 0 {
		if ok {
			return cached.Value
		}
		return []content.Category{}
	}

	index := make(map[string]int)
	categories := make([]content.Category, 0)
	for _, post := range posts {
		if i, seen := index[post.Category]; seen {
			categories[i].Count++
			continue
		}
		index[post.Category] = len(categories)
		categories = append(categories, content.Category{
			Name:  post.Category,
			Slug:  post.CategorySlug,
			Count: 1,
			Icon:  content.CategoryIcon(post.Category),
		})
	}

	entry := stamped[[]content.Category]{Value: categories, FetchedAt: s.now()}
	if err := s.cache.Set(keyCategories, entry, entryTTL, TagCategories); err != nil {
		s.logger.Warn("Failed to cache categories", zap.Error(err))
	}

	return categories
}

// GetAllPostsForSitemap pages through the whole CMS in batches until it reports no next page or the
// cap is reached. Only complete listings are cached.
func (s *Service) GetAllPostsForSitemap(ctx context.Context) []content.Post {
	cached, ok := cache.Load[stamped[[]content.Post]](s.cache, keySitemap)
	if ok && s.now().Sub(cached.FetchedAt) < s.config.SitemapTTL {
		return cached.Value
	}

	posts, err := s.collectAllPosts(ctx)
	if err != nil {
		s.logger.Error("Failed to fetch posts for sitemap", zap.Int("collected", len(posts)), zap.Error(err))
		return posts
	}

	entry := stamped[[]content.Post]{Value: posts, FetchedAt: s.now()}
	if err := s.cache.Set(keySitemap, entry, s.config.SitemapTTL, TagSitemap); err != nil {
		s.logger.Warn("Failed to cache sitemap posts", zap.Error(err))
	}

	s.logger.Info("Sitemap posts cached", zap.Int("count", len(posts)))

	return posts
}

// RefreshSitemap rebuilds the sitemap listing regardless of its age.
func (s *Service) RefreshSitemap(ctx context.Context) ([]content.Post, error) {
	posts, err := s.collectAllPosts(ctx)
	if err != nil {
		return posts, err
	}

	entry := stamped[[]content.Post]{Value: posts, FetchedAt: s.now()}
	if err := s.cache.Set(keySitemap, entry, s.config.SitemapTTL, TagSitemap); err != nil {
		return posts, err
	}

	return posts, nil
}

func (s *Service) collectAllPosts(ctx context.Context) ([]content.Post, error) {
	posts := make([]content.Post, 0, s.config.SitemapBatch)

	for page := 1; ; page++ {
		res, err := s.cms.FetchPosts(ctx, cms.ListParams{Page: page, Limit: s.config.SitemapBatch})
		if err != nil {
			return posts, err
		}

		posts = append(posts, s.transformer.ToPosts(res.Posts)...)

		if !res.Pagination.HasNextPage || len(res.Posts) == 0 {
			break
		}

		if len(posts) >= s.config.SitemapCap {
			s.logger.Warn("Sitemap post cap reached", zap.Int("cap", s.config.SitemapCap))
			posts = posts[:s.config.SitemapCap]
			break
		}
	}

	return posts, nil
}

// GetTotalPostCount prefers any plausible number over an error: fresh count, fresh post index, live
// count, stale count, stale post index, then zero.
func (s *Service) GetTotalPostCount(ctx context.Context) int {
	now := s.now()

	count, hasCount := cache.Load[stamped[int]](s.cache, keyPostCount)
	if hasCount && count.Value > 0 && now.Sub(count.FetchedAt) < s.config.CountTTL {
		return count.Value
	}

	index, hasIndex := cache.Load[stamped[[]string]](s.cache, keyPostIndex)
	if hasIndex && len(index.Value) > 0 && now.Sub(index.FetchedAt) < s.config.PostFreshness {
		s.storeCount(len(index.Value))
		return len(index.Value)
	}

	total, err := s.cms.FetchTotalCount(ctx)
	if err == nil {
		s.storeCount(total)
		return total
	}

	s.logger.Warn("Failed to fetch post count", zap.Error(err))

	if hasCount && count.Value > 0 {
		return count.Value
	}
	if hasIndex && len(index.Value) > 0 {
		return len(index.Value)
	}

	return 0
}

func (s *Service) storeCount(total int) {
	entry := stamped[int]{Value: total, FetchedAt: s.now()}
	if err := s.cache.Set(keyPostCount, entry, entryTTL, TagCount); err != nil {
		s.logger.Warn("Failed to cache post count", zap.Error(err))
	}
}

// CheckCMSAvailability probes the CMS at most once per status window.
func (s *Service) CheckCMSAvailability(ctx context.Context) bool {
	status, ok := cache.Load[stamped[bool]](s.cache, keyCMSStatus)
	if ok && s.now().Sub(status.FetchedAt) < s.config.StatusTTL {
		return status.Value
	}

	return s.ProbeCMS(ctx)
}

// ProbeCMS checks availability now and records the result.
func (s *Service) ProbeCMS(ctx context.Context) bool {
	available := s.cms.IsAvailable(ctx)

	entry := stamped[bool]{Value: available, FetchedAt: s.now()}
	if err := s.cache.Set(keyCMSStatus, entry, entryTTL, TagStatus); err != nil {
		s.logger.Warn("Failed to cache CMS status", zap.Error(err))
	}

	if !available {
		s.logger.Warn("CMS unavailable")
	}

	return available
}

func (s *Service) GetCMSStatus() CMSStatus {
	status, ok := cache.Load[stamped[bool]](s.cache, keyCMSStatus)
	if !ok {
		return CMSStatus{}
	}

	available := status.Value
	return CMSStatus{Available: &available, LastChecked: status.FetchedAt}
}
