package blog

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/tugasin/tugasin-blog/cache"
	"github.com/tugasin/tugasin-blog/content"
	"github.com/tugasin/tugasin-blog/types"
)

const (
	DefaultPostFreshness  = 5 * time.Minute
	DefaultLookupTimeout  = 5 * time.Second
	DefaultCountTTL       = 15 * time.Minute
	DefaultStatusTTL      = 2 * time.Minute
	DefaultCategoriesTTL  = 30 * time.Minute
	DefaultSitemapTTL     = 24 * time.Hour
	DefaultSitemapBatch   = 100
	DefaultSitemapCap     = 10000
	DefaultCategorySample = 50
	DefaultRecentLimit    = 6
	DefaultRelatedLimit   = 3

	refreshTimeout = 30 * time.Second
	entryTTL       = cache.MaxTTL
)

// Service reads blog content through the shared cache. Post lookups serve stale entries
// immediately and refresh them in the background.
type Service struct {
	ctx         context.Context
	cancel      context.CancelFunc
	logger      types.Logger
	metrics     types.MetricsManager
	cache       types.CacheManager
	cms         CMS
	transformer *content.Transformer
	config      types.BlogConfig

	group   singleflight.Group
	indexMu sync.Mutex

	closeMu sync.RWMutex
	closed  bool
	wg      sync.WaitGroup

	now func() time.Time
}

func NewService(
	ctx context.Context,
	logger types.Logger,
	metrics types.MetricsManager,
	cacheManager types.CacheManager,
	client CMS,
	transformer *content.Transformer,
	config *types.BlogConfig,
) *Service {
	cfg := withDefaults(config)

	svcCtx, cancel := context.WithCancel(ctx)

	return &Service{
		ctx:         svcCtx,
		cancel:      cancel,
		logger:      logger,
		metrics:     metrics,
		cache:       cacheManager,
		cms:         client,
		transformer: transformer,
		config:      cfg,
		now:         time.Now,
	}
}

func withDefaults(config *types.BlogConfig) types.BlogConfig {
	var cfg types.BlogConfig
	if config != nil {
		cfg = *config
	}

	if cfg.PostFreshness <= 0 {
		cfg.PostFreshness = DefaultPostFreshness
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = DefaultLookupTimeout
	}
	if cfg.CountTTL <= 0 {
		cfg.CountTTL = DefaultCountTTL
	}
	if cfg.StatusTTL <= 0 {
		cfg.StatusTTL = DefaultStatusTTL
	}
	if cfg.CategoriesTTL <= 0 {
		cfg.CategoriesTTL = DefaultCategoriesTTL
	}
	if cfg.SitemapTTL <= 0 {
		cfg.SitemapTTL = DefaultSitemapTTL
	}
	if cfg.SitemapBatch <= 0 {
		cfg.SitemapBatch = DefaultSitemapBatch
	}
	if cfg.SitemapCap <= 0 {
		cfg.SitemapCap = DefaultSitemapCap
	}
	if cfg.CategorySample <= 0 {
		cfg.CategorySample = DefaultCategorySample
	}

	return cfg
}

// Close stops new background refreshes and waits for running ones.
func (s *Service) Close() {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return
	}
	s.closed = true
	s.closeMu.Unlock()

	s.wg.Wait()
	s.cancel()
}

// Wait blocks until background refreshes started so far are done.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) LookupPost(ctx context.Context, slug string) (*PostLookup, error) {
	if slug == "" {
		return nil, types.Errorf(types.ErrInvalidParameter, "empty slug")
	}

	if entry, ok := cache.Load[stamped[postRecord]](s.cache, postKey(slug)); ok {
		state := StateFresh
		if s.now().Sub(entry.FetchedAt) >= s.config.PostFreshness {
			state = StateStale
			s.refreshInBackground(slug)
		}
		return s.lookupResult(entry.Value, state), nil
	}

	s.countLookup(StateMiss)

	// A miss may join a background refresh already running for the slug; the caller still waits at
	// most LookupTimeout and the shared fetch completes on its own.
	waitCtx, cancel := context.WithTimeout(ctx, s.config.LookupTimeout)
	defer cancel()

	ch := s.group.DoChan(slug, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.LookupTimeout)
		defer cancel()
		return s.fetchPost(fetchCtx, slug)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			s.logger.Warn("Post fetch failed", zap.String("slug", slug), zap.Error(res.Err))
			return nil, res.Err
		}
		record, _ := res.Val.(*postRecord)
		if record == nil {
			return nil, nil
		}
		return s.buildLookup(*record, StateMiss), nil
	case <-waitCtx.Done():
		s.logger.Warn("Post lookup timed out", zap.String("slug", slug), zap.Duration("timeout", s.config.LookupTimeout))
		return nil, waitCtx.Err()
	}
}

// GetPostBySlug is LookupPost reduced to the display post. Tombstones and failures read as nil.
func (s *Service) GetPostBySlug(ctx context.Context, slug string) *content.Post {
	lookup, err := s.LookupPost(ctx, slug)
	if err != nil || lookup == nil {
		return nil
	}
	return lookup.Post
}

func (s *Service) lookupResult(record postRecord, state LookupState) *PostLookup {
	lookup := s.buildLookup(record, state)
	if lookup.IsTombstone() {
		s.countLookup(StateTombstone)
	} else {
		s.countLookup(state)
	}
	return lookup
}

func (s *Service) buildLookup(record postRecord, state LookupState) *PostLookup {
	lookup := &PostLookup{
		Redirect: record.Redirect,
		State:    state,
	}
	if record.Post != nil {
		post := *record.Post
		lookup.Post = &post
	}
	return lookup
}

func (s *Service) refreshInBackground(slug string) {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()

	if s.closed {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		_, err, _ := s.group.Do(slug, func() (interface{}, error) {
			ctx, cancel := context.WithTimeout(s.ctx, refreshTimeout)
			defer cancel()
			return s.fetchPost(ctx, slug)
		})
		if err != nil {
			s.logger.Warn("Background refresh failed", zap.String("slug", slug), zap.Error(err))
			s.countRefresh("error")
			return
		}

		s.logger.Debug("Background refresh completed", zap.String("slug", slug))
		s.countRefresh("success")
	}()
}

// fetchPost loads a slug from the CMS and stores posts and tombstones. A plain not-found returns a
// nil record and evicts whatever was cached for the slug.
func (s *Service) fetchPost(ctx context.Context, slug string) (*postRecord, error) {
	result, err := s.cms.FetchPostBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	var record postRecord
	switch {
	case result.Success && result.Post != nil:
		post := s.transformer.ToPost(*result.Post)
		record.Post = &post
		record.Redirect = result.Redirect
	case result.IsTombstone():
		record.Redirect = result.Redirect
	default:
		if err := s.cache.Delete(postKey(slug)); err != nil {
			s.logger.Warn("Failed to evict missing post", zap.String("slug", slug), zap.Error(err))
		}
		s.removeFromIndex(slug)
		return nil, nil
	}

	now := s.now()
	if err := s.cache.Set(postKey(slug), stamped[postRecord]{Value: record, FetchedAt: now}, entryTTL, TagPosts); err != nil {
		s.logger.Warn("Failed to cache post", zap.String("slug", slug), zap.Error(err))
	}

	if record.Post != nil {
		s.addToIndex(slug, now)
	}

	return &record, nil
}

func (s *Service) addToIndex(slug string, now time.Time) {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	index, _ := cache.Load[stamped[[]string]](s.cache, keyPostIndex)

	slugs := make([]string, 0, len(index.Value)+1)
	for _, existing := range index.Value {
		if existing != slug {
			slugs = append(slugs, existing)
		}
	}
	slugs = append(slugs, slug)

	if err := s.cache.Set(keyPostIndex, stamped[[]string]{Value: slugs, FetchedAt: now}, entryTTL, TagPosts); err != nil {
		s.logger.Warn("Failed to update post index", zap.Error(err))
	}
}

func (s *Service) removeFromIndex(slug string) {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	index, ok := cache.Load[stamped[[]string]](s.cache, keyPostIndex)
	if !ok {
		return
	}

	slugs := make([]string, 0, len(index.Value))
	for _, existing := range index.Value {
		if existing != slug {
			slugs = append(slugs, existing)
		}
	}
	if len(slugs) == len(index.Value) {
		return
	}

	index.Value = slugs
	if err := s.cache.Set(keyPostIndex, index, entryTTL, TagPosts); err != nil {
		s.logger.Warn("Failed to update post index", zap.Error(err))
	}
}

// ClearCache drops posts, the post index, categories, the count and the CMS status. Sitemap listings
// are kept; see InvalidateSitemap.
func (s *Service) ClearCache() error {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	return s.cache.InvalidateByTag(TagPosts, TagCategories, TagCount, TagStatus)
}

func (s *Service) InvalidateSitemap() error {
	return s.cache.InvalidateByTag(TagSitemap)
}

func (s *Service) InvalidateCount() error {
	return s.cache.InvalidateByTag(TagCount)
}

// InvalidatePost drops one post and the sitemap listing that may reference it.
func (s *Service) InvalidatePost(slug string) error {
	if slug == "" {
		return types.Errorf(types.ErrInvalidParameter, "empty slug")
	}

	if err := s.cache.Delete(postKey(slug)); err != nil {
		return err
	}
	s.removeFromIndex(slug)

	return s.InvalidateSitemap()
}

func (s *Service) countLookup(state LookupState) {
	if s.metrics == nil {
		return
	}
	s.metrics.Counter("post_lookups_total", map[string]string{"state": string(state)}).Inc()
}

func (s *Service) countRefresh(result string) {
	if s.metrics == nil {
		return
	}
	s.metrics.Counter("post_refresh_total", map[string]string{"result": result}).Inc()
}
