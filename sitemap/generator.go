package sitemap

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/tugasin/tugasin-blog/content"
	"github.com/tugasin/tugasin-blog/types"
)

const (
	IndexName = "sitemap-post.xml"

	CacheLocal         = "public, max-age=86400, s-maxage=86400, stale-while-revalidate=86400"
	CacheLocalError    = "public, max-age=86400, s-maxage=86400"
	CacheProxy         = "public, max-age=3600, s-maxage=3600"
	CacheProxyFallback = "public, max-age=3600"
)

var ErrInvalidPage = errors.New("invalid page number")

type PostSource interface {
	GetAllPostsForSitemap(ctx context.Context) []content.Post
}

// Generator renders sitemap documents from the cached full post listing.
type Generator struct {
	source  PostSource
	builder *Builder
	chunk   int
	logger  types.Logger
}

func NewGenerator(logger types.Logger, source PostSource, builder *Builder, chunk int) *Generator {
	if chunk <= 0 {
		chunk = DefaultChunk
	}
	return &Generator{
		source:  source,
		builder: builder,
		chunk:   chunk,
		logger:  logger,
	}
}

func (g *Generator) Index(ctx context.Context) ([]byte, error) {
	posts := g.source.GetAllPostsForSitemap(ctx)
	if len(posts) == 0 {
		return EmptyIndex(), nil
	}
	return g.builder.Index(posts, g.chunk)
}

func (g *Generator) Page(ctx context.Context, page int) ([]byte, error) {
	if page < 1 {
		return nil, ErrInvalidPage
	}

	posts := Chunk(g.source.GetAllPostsForSitemap(ctx), page, g.chunk)
	if len(posts) == 0 {
		return EmptyURLSet(), nil
	}

	return g.builder.URLSet(posts)
}

// ArchivePosts writes the index and every chunk for posts to archive. It returns the number of
// documents written before the first failure.
func (g *Generator) ArchivePosts(ctx context.Context, archive *Archive, posts []content.Post) (int, error) {
	chunks := ChunkCount(len(posts), g.chunk)

	index, err := g.builder.Index(posts, g.chunk)
	if err != nil {
		return 0, err
	}
	if err := archive.Save(ctx, IndexName, index); err != nil {
		return 0, err
	}

	written := 1
	for page := 1; page <= chunks; page++ {
		body, err := g.builder.URLSet(Chunk(posts, page, g.chunk))
		if err != nil {
			return written, err
		}
		if err := archive.Save(ctx, ChunkName(page), body); err != nil {
			return written, err
		}
		written++
	}

	g.logger.Info("Sitemaps archived", zap.Int("documents", written), zap.Int("posts", len(posts)))

	return written, nil
}
