package cms

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"github.com/tugasin/tugasin-blog/logger"
	"github.com/tugasin/tugasin-blog/types"
)

const postsBody = `{"success":true,"data":{"posts":[{"id":"post_12","title":"Tips Skripsi","slug":"tips-skripsi",
"content":"<p>Hi</p>","categories":[{"id":"c1","name":"Panduan Skripsi","slug":"panduan-skripsi"}],
"tags":[{"id":"t1","name":"skripsi","slug":"skripsi"}],"seo":{"title":"SEO title"}}],
"pagination":{"page":2,"limit":1,"total":37,"totalPages":37,"hasNextPage":true,"hasPrevPage":true}}}`

func newTestCMS(t *testing.T, handler http.HandlerFunc, token string) (*Client, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(logger.NewZapWrapper(zap.NewNop()), nil, &types.CMSConfig{
		Endpoint:    srv.URL + "/graphql",
		Token:       token,
		Timeout:     time.Second,
		MaxAttempts: 1,
	})
	return c, srv
}

func TestNormalizeEndpoint(t *testing.T) {
	assert.Equal(t, NormalizeEndpoint("https://cms.tugasin.me/graphql"), "https://cms.tugasin.me")
	assert.Equal(t, NormalizeEndpoint("https://cms.tugasin.me/graphql/"), "https://cms.tugasin.me")
	assert.Equal(t, NormalizeEndpoint("https://cms.tugasin.me/"), "https://cms.tugasin.me")
	assert.Equal(t, NormalizeEndpoint(""), "")
}

func TestFetchPosts(t *testing.T) {
	var gotQuery, gotAuth string
	c, _ := newTestCMS(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Check(t, is.Equal(r.URL.Path, "/api/v1/posts"))
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(postsBody))
	}, "secret")

	page, err := c.FetchPosts(context.Background(), ListParams{Page: 2, Limit: 1, Category: "Panduan Skripsi"})
	assert.NilError(t, err)

	assert.Check(t, is.Equal(gotQuery, "category=Panduan+Skripsi&limit=1&page=2"))
	assert.Check(t, is.Equal(gotAuth, "Bearer secret"))
	assert.Assert(t, is.Len(page.Posts, 1))
	assert.Check(t, is.Equal(page.Posts[0].Categories[0].Name, "Panduan Skripsi"))
	assert.Check(t, is.Equal(page.Pagination.Total, 37))
	assert.Check(t, page.Pagination.HasNextPage)
}

func TestFetchPostsUnsuccessfulEnvelope(t *testing.T) {
	c, _ := newTestCMS(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"error":"db down"}`))
	}, "")

	_, err := c.FetchPosts(context.Background(), ListParams{Page: 1, Limit: 10})
	assert.ErrorIs(t, err, types.ErrCMSResponseInvalid)
}

func TestFetchPostsHTTPError(t *testing.T) {
	c, _ := newTestCMS(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}, "")

	_, err := c.FetchPosts(context.Background(), ListParams{Page: 1, Limit: 10})
	var httpErr *types.HTTPError
	assert.Assert(t, errors.As(err, &httpErr))
	assert.Check(t, is.Equal(httpErr.StatusCode, http.StatusUnauthorized))
}

func TestMissingEndpointIsConfigError(t *testing.T) {
	c := NewClient(logger.NewZapWrapper(zap.NewNop()), nil, &types.CMSConfig{})

	_, err := c.FetchPosts(context.Background(), ListParams{Page: 1, Limit: 1})
	var configErr *types.ConfigError
	assert.Assert(t, errors.As(err, &configErr))
	assert.Check(t, is.Equal(configErr.Field, "cms.endpoint"))

	_, err = c.FetchPostBySlug(context.Background(), "x")
	assert.Check(t, errors.Is(err, types.ErrCMSConfigMissing))
	assert.Check(t, !c.IsAvailable(context.Background()))
}

func TestFetchPostBySlugSuccess(t *testing.T) {
	c, _ := newTestCMS(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Check(t, is.Equal(r.URL.Path, "/api/v1/posts/tips-skripsi"))
		_, _ = w.Write([]byte(`{"success":true,"data":{"id":"12","title":"Tips","slug":"tips-skripsi"}}`))
	}, "")

	res, err := c.FetchPostBySlug(context.Background(), "tips-skripsi")
	assert.NilError(t, err)
	assert.Check(t, res.Success)
	assert.Check(t, is.Equal(res.Post.Title, "Tips"))
	assert.Check(t, res.Redirect == nil)
}

func TestFetchPostBySlugTombstone(t *testing.T) {
	c, _ := newTestCMS(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"success":false,"error":"Post not found",
			"redirect":{"type":"url","httpStatus":301,"target":{"url":"/new-path"}}}`))
	}, "")

	res, err := c.FetchPostBySlug(context.Background(), "old-post")
	assert.NilError(t, err)
	assert.Check(t, !res.Success)
	assert.Check(t, res.IsTombstone())
	assert.Check(t, is.Equal(res.Redirect.HTTPStatus, 301))
	assert.Check(t, is.Equal(res.Redirect.Target.URL, "/new-path"))
}

func TestFetchPostBySlugGoneWithoutTarget(t *testing.T) {
	c, _ := newTestCMS(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
		_, _ = w.Write([]byte(`{"success":false,"redirect":{"type":"url","httpStatus":410}}`))
	}, "")

	res, err := c.FetchPostBySlug(context.Background(), "removed")
	assert.NilError(t, err)
	assert.Assert(t, res.IsTombstone())
	assert.Check(t, is.Equal(res.Redirect.HTTPStatus, 410))
}

func TestFetchPostBySlugPlainNotFound(t *testing.T) {
	c, _ := newTestCMS(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`<html>not found</html>`))
	}, "")

	res, err := c.FetchPostBySlug(context.Background(), "nope")
	assert.NilError(t, err)
	assert.Check(t, !res.Success)
	assert.Check(t, !res.IsTombstone())
}

func TestFetchPostBySlugDropsInvalidRedirect(t *testing.T) {
	c, _ := newTestCMS(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"success":false,"redirect":{"type":"post","httpStatus":301,"target":{"url":"/x"}}}`))
	}, "")

	res, err := c.FetchPostBySlug(context.Background(), "bad")
	assert.NilError(t, err)
	assert.Check(t, res.Redirect == nil)
}

func TestFetchPostByIDNotFound(t *testing.T) {
	c, _ := newTestCMS(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}, "")

	_, err := c.FetchPostByID(context.Background(), "99")
	assert.ErrorIs(t, err, ErrPostNotFound)
}

func TestFetchTotalCount(t *testing.T) {
	c, _ := newTestCMS(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Check(t, is.Equal(r.URL.Query().Get("limit"), "1"))
		_, _ = w.Write([]byte(postsBody))
	}, "")

	n, err := c.FetchTotalCount(context.Background())
	assert.NilError(t, err)
	assert.Equal(t, n, 37)
}

func TestIsAvailable(t *testing.T) {
	up, _ := newTestCMS(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(postsBody))
	}, "")
	assert.Check(t, up.IsAvailable(context.Background()))

	down, _ := newTestCMS(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}, "")
	assert.Check(t, !down.IsAvailable(context.Background()))
}

func TestFetchSitemapRequiresToken(t *testing.T) {
	c, _ := newTestCMS(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<urlset/>`))
	}, "")

	_, err := c.FetchSitemap(context.Background(), "sitemap-post.xml")
	var configErr *types.ConfigError
	assert.Assert(t, errors.As(err, &configErr))
	assert.Check(t, is.Equal(configErr.Field, "cms.token"))
}

func TestFetchSitemap(t *testing.T) {
	c, _ := newTestCMS(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Check(t, is.Equal(r.URL.Path, "/api/v1/sitemaps/sitemap-post-2.xml"))
		_, _ = w.Write([]byte(`<urlset/>`))
	}, "secret")

	body, err := c.FetchSitemap(context.Background(), "sitemap-post-2.xml")
	assert.NilError(t, err)
	assert.Equal(t, string(body), `<urlset/>`)
}
