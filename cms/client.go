package cms

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/tugasin/tugasin-blog/auth"
	"github.com/tugasin/tugasin-blog/client"
	"github.com/tugasin/tugasin-blog/types"
	"github.com/tugasin/tugasin-blog/utils"
)

var ErrPostNotFound = errors.New("post not found")

const availabilityTimeout = 5 * time.Second

// Client talks to the CMS REST API. Every call fails with a ConfigError when no endpoint is
// configured; sitemap proxying additionally needs a token.
type Client struct {
	http     *client.HTTPClient
	logger   types.Logger
	metrics  types.MetricsManager
	base     string
	auth     *auth.TokenAuthProvider
	validate *validator.Validate
}

func NewClient(logger types.Logger, metrics types.MetricsManager, config *types.CMSConfig) *Client {
	if config == nil {
		config = &types.CMSConfig{}
	}

	return &Client{
		http:     client.NewHTTPClient(logger, "cms", config),
		logger:   logger,
		metrics:  metrics,
		base:     NormalizeEndpoint(config.Endpoint),
		auth:     auth.NewTokenAuthProvider(config.Token),
		validate: newValidator(),
	}
}

// NormalizeEndpoint strips a trailing /graphql path and trailing slashes.
func NormalizeEndpoint(endpoint string) string {
	base := strings.TrimSpace(endpoint)
	base = strings.TrimRight(base, "/")
	base = strings.TrimSuffix(base, "/graphql")
	return strings.TrimRight(base, "/")
}

func (c *Client) BaseURL() string {
	return c.base
}

func (c *Client) HasToken() bool {
	return c.auth.Configured()
}

func (c *Client) Close() {
	c.http.Close()
}

func (c *Client) FetchPosts(ctx context.Context, params ListParams) (*PostsPage, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(max(params.Page, 1)))
	query.Set("limit", strconv.Itoa(max(params.Limit, 1)))
	if params.Category != "" {
		query.Set("category", params.Category)
	}

	var page *PostsPage
	err := c.observe("posts", func() error {
		resp, err := c.get(ctx, "/api/v1/posts?"+query.Encode())
		if err != nil {
			return err
		}
		if !isOK(resp.StatusCode) {
			return c.httpError(resp, "/api/v1/posts")
		}

		var envelope postsEnvelope
		if err := utils.Unmarshal(resp.Body, &envelope); err != nil {
			return types.Errorf(types.ErrCMSResponseInvalid, "posts: %v", err)
		}
		if !envelope.Success || envelope.Data == nil {
			return types.Errorf(types.ErrCMSResponseInvalid, "posts: %s", utils.FirstNonEmpty(envelope.Error, "unsuccessful response"))
		}

		page = envelope.Data
		return nil
	})

	return page, err
}

// FetchPostBySlug returns an unsuccessful result rather than an error when the CMS reports the post
// missing, so tombstone redirects carried in the error body reach the caller.
func (c *Client) FetchPostBySlug(ctx context.Context, slug string) (*PostResult, error) {
	var result *PostResult
	err := c.observe("post_by_slug", func() error {
		path := "/api/v1/posts/" + url.PathEscape(slug)
		resp, err := c.get(ctx, path)
		if err != nil {
			return err
		}

		switch {
		case isOK(resp.StatusCode):
			var parsed PostResult
			if err := utils.Unmarshal(resp.Body, &parsed); err != nil {
				return types.Errorf(types.ErrCMSResponseInvalid, "post %s: %v", slug, err)
			}
			if parsed.Success && parsed.Post == nil {
				return types.Errorf(types.ErrCMSResponseInvalid, "post %s: missing data", slug)
			}
			result = &parsed
		case resp.StatusCode == 404 || resp.StatusCode == 410:
			var parsed PostResult
			if err := utils.Unmarshal(resp.Body, &parsed); err != nil {
				parsed = PostResult{Error: "not found"}
			}
			parsed.Success = false
			parsed.Post = nil
			result = &parsed
		default:
			return c.httpError(resp, path)
		}

		result.Redirect = c.checkRedirect(slug, result.Redirect)
		return nil
	})

	return result, err
}

func (c *Client) FetchPostByID(ctx context.Context, id string) (*APIPost, error) {
	var post *APIPost
	err := c.observe("post_by_id", func() error {
		path := "/api/v1/posts/" + url.PathEscape(id)
		resp, err := c.get(ctx, path)
		if err != nil {
			return err
		}
		if resp.StatusCode == 404 || resp.StatusCode == 410 {
			return ErrPostNotFound
		}
		if !isOK(resp.StatusCode) {
			return c.httpError(resp, path)
		}

		var envelope postEnvelope
		if err := utils.Unmarshal(resp.Body, &envelope); err != nil {
			return types.Errorf(types.ErrCMSResponseInvalid, "post %s: %v", id, err)
		}
		if !envelope.Success || envelope.Data == nil {
			return ErrPostNotFound
		}

		post = envelope.Data
		return nil
	})

	return post, err
}

func (c *Client) FetchTotalCount(ctx context.Context) (int, error) {
	page, err := c.FetchPosts(ctx, ListParams{Page: 1, Limit: 1})
	if err != nil {
		return 0, err
	}
	return page.Pagination.Total, nil
}

// IsAvailable probes the posts endpoint with its own short deadline.
func (c *Client) IsAvailable(ctx context.Context) bool {
	if c.base == "" {
		return false
	}

	probeCtx, cancel := context.WithTimeout(ctx, availabilityTimeout)
	defer cancel()

	var available bool
	_ = c.observe("availability", func() error {
		resp, err := c.get(probeCtx, "/api/v1/posts?page=1&limit=1")
		if err != nil {
			return err
		}
		if !isOK(resp.StatusCode) {
			return c.httpError(resp, "/api/v1/posts")
		}
		available = true
		return nil
	})

	return available
}

// FetchSitemap returns a CMS generated sitemap document such as "sitemap-post.xml".
func (c *Client) FetchSitemap(ctx context.Context, name string) ([]byte, error) {
	if !c.auth.Configured() {
		return nil, &types.ConfigError{Field: "cms.token"}
	}

	var body []byte
	err := c.observe("sitemap", func() error {
		path := "/api/v1/sitemaps/" + url.PathEscape(name)
		resp, err := c.get(ctx, path)
		if err != nil {
			return err
		}
		if !isOK(resp.StatusCode) {
			return c.httpError(resp, path)
		}
		body = resp.Body
		return nil
	})

	return body, err
}

func (c *Client) get(ctx context.Context, path string) (*client.Response, error) {
	if c.base == "" {
		return nil, &types.ConfigError{Field: "cms.endpoint"}
	}

	headers := map[string]string{
		"Accept":       "application/json",
		"Content-Type": "application/json",
	}
	if err := c.auth.ApplyToOutgoingRequest(headers); err != nil {
		return nil, err
	}

	return c.http.Do(ctx, &client.Request{
		Method:  "GET",
		URL:     c.base + path,
		Headers: headers,
	})
}

func (c *Client) checkRedirect(slug string, redirect *Redirect) *Redirect {
	if redirect == nil {
		return nil
	}

	if err := c.validate.Struct(redirect); err != nil {
		c.logger.Warn("Dropping invalid redirect from CMS",
			zap.String("slug", slug),
			zap.String("type", redirect.Type),
			zap.Int("status", redirect.HTTPStatus),
			zap.Error(err))
		return nil
	}

	return redirect
}

func (c *Client) httpError(resp *client.Response, path string) error {
	body := resp.Body
	if len(body) > 512 {
		body = body[:512]
	}
	return &types.HTTPError{StatusCode: resp.StatusCode, URL: c.base + path, Body: string(body)}
}

func (c *Client) observe(operation string, fn func() error) error {
	start := time.Now()
	err := fn()

	if c.metrics != nil {
		c.metrics.Counter("cms_requests_total", map[string]string{
			"operation": operation,
			"result":    resultLabel(err),
		}).Inc()
		c.metrics.Histogram("cms_request_duration_seconds",
			[]float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			map[string]string{"operation": operation},
		).ObserveDuration(start)
	}

	if err != nil {
		c.logger.Debug("CMS request failed", zap.String("operation", operation), zap.Error(err))
	}

	return err
}

func resultLabel(err error) string {
	var timeoutErr *types.TimeoutError
	var configErr *types.ConfigError
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrPostNotFound):
		return "not_found"
	case errors.As(err, &timeoutErr):
		return "timeout"
	case errors.As(err, &configErr):
		return "config"
	default:
		return "error"
	}
}

func isOK(status int) bool {
	return status >= 200 && status < 300
}
