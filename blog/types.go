package blog

import (
	"context"
	"time"

	"github.com/tugasin/tugasin-blog/cms"
	"github.com/tugasin/tugasin-blog/content"
)

// CMS is the subset of the CMS client the service reads through.
type CMS interface {
	FetchPosts(ctx context.Context, params cms.ListParams) (*cms.PostsPage, error)
	FetchPostBySlug(ctx context.Context, slug string) (*cms.PostResult, error)
	FetchTotalCount(ctx context.Context) (int, error)
	IsAvailable(ctx context.Context) bool
}

type LookupState string

const (
	StateFresh     LookupState = "fresh"
	StateStale     LookupState = "stale"
	StateMiss      LookupState = "miss"
	StateTombstone LookupState = "tombstone"
)

// PostLookup is the outcome of a slug lookup. Post is nil for tombstones, which carry Redirect.
type PostLookup struct {
	Post     *content.Post
	Redirect *cms.Redirect
	State    LookupState
}

func (l *PostLookup) IsTombstone() bool {
	return l != nil && l.Post == nil && l.Redirect != nil
}

type CMSStatus struct {
	Available   *bool     `json:"available"`
	LastChecked time.Time `json:"lastChecked"`
}

// stamped wraps every cached value with the time it was fetched. Entries are stored with a long
// hard TTL and the service decides freshness per namespace.
type stamped[T any] struct {
	Value     T         `msgpack:"v"`
	FetchedAt time.Time `msgpack:"t"`
}

type postRecord struct {
	Post     *content.Post `msgpack:"p"`
	Redirect *cms.Redirect `msgpack:"r"`
}

const (
	keyPostPrefix = "post:"
	keyPostIndex  = "post_index"
	keyPostCount  = "post_count"
	keyCategories = "categories"
	keyCMSStatus  = "cms_status"
	keySitemap    = "sitemap_posts_all"
)

const (
	TagPosts      = "posts"
	TagCount      = "count"
	TagCategories = "categories"
	TagStatus     = "status"
	TagSitemap    = "sitemap"
)

func postKey(slug string) string {
	return keyPostPrefix + slug
}
