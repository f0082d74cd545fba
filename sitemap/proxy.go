package sitemap

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/tugasin/tugasin-blog/types"
)

type Fetcher interface {
	FetchSitemap(ctx context.Context, name string) ([]byte, error)
}

type Source string

const (
	SourceCMS     Source = "cms"
	SourceArchive Source = "archive"
	SourceEmpty   Source = "empty"
	SourceLocal   Source = "local"
)

type Document struct {
	Body         []byte
	CacheControl string
	Source       Source
}

// Proxy serves sitemap documents generated by the CMS. Successful fetches are archived; failed ones
// fall back to the archived copy and then to an empty document of the same kind.
type Proxy struct {
	fetcher Fetcher
	archive *Archive
	logger  types.Logger
}

func NewProxy(logger types.Logger, fetcher Fetcher, archive *Archive) *Proxy {
	return &Proxy{
		fetcher: fetcher,
		archive: archive,
		logger:  logger,
	}
}

// Fetch returns a ConfigError when the CMS endpoint or token is missing; every other failure is
// absorbed into a fallback document.
func (p *Proxy) Fetch(ctx context.Context, name string) (Document, error) {
	body, err := p.fetcher.FetchSitemap(ctx, name)
	if err == nil {
		if saveErr := p.archive.Save(ctx, name, body); saveErr != nil && !errors.Is(saveErr, types.ErrStorageIsDisabled) {
			p.logger.Warn("Failed to archive sitemap", zap.String("name", name), zap.Error(saveErr))
		}
		return Document{Body: body, CacheControl: CacheProxy, Source: SourceCMS}, nil
	}

	var configErr *types.ConfigError
	if errors.As(err, &configErr) {
		return Document{}, err
	}

	p.logger.Error("Failed to proxy sitemap from CMS", zap.String("name", name), zap.Error(err))

	archived, loadErr := p.archive.Load(ctx, name)
	if loadErr == nil && len(archived) > 0 {
		return Document{Body: archived, CacheControl: CacheProxyFallback, Source: SourceArchive}, nil
	}

	empty := EmptyURLSet()
	if name == IndexName {
		empty = EmptyIndex()
	}

	return Document{Body: empty, CacheControl: CacheProxyFallback, Source: SourceEmpty}, nil
}
