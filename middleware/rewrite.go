package middleware

import (
	"regexp"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/tugasin/tugasin-blog/types"
)

type RewriteRule struct {
	Pattern string `json:"pattern"`
	Target  string `json:"target"`

	re *regexp.Regexp
}

// RewriteMiddleware maps public paths onto internal routes without a redirect. Targets may use $1-style
// references to pattern groups.
type RewriteMiddleware struct {
	logger types.Logger
	rules  []RewriteRule
	weight int
}

type RewriteConfig struct {
	Rules []RewriteRule `json:"rules"`
}

var defaultRewriteRules = []RewriteRule{
	{Pattern: `^/sitemap-post-(\d+)\.xml$`, Target: "/api/sitemap-post/$1"},
}

func NewRewriteMiddleware(item *types.MiddlewareItemConfig, logger types.Logger) *RewriteMiddleware {
	rewriteConfig := &RewriteConfig{}
	weight := decodeParams(item, rewriteConfig, logger, "rewrite")

	rules := rewriteConfig.Rules
	if len(rules) == 0 {
		rules = defaultRewriteRules
	}

	compiled := make([]RewriteRule, 0, len(rules))
	for _, rule := range rules {
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			logger.Error("Invalid rewrite pattern", zap.String("pattern", rule.Pattern), zap.Error(err))
			continue
		}
		rule.re = re
		compiled = append(compiled, rule)
	}

	return &RewriteMiddleware{
		logger: logger,
		rules:  compiled,
		weight: weight,
	}
}

func (r *RewriteMiddleware) Name() string { return "rewrite" }
func (r *RewriteMiddleware) Weight() int  { return r.weight }

func (r *RewriteMiddleware) Handle(ctx *fasthttp.RequestCtx, next func(*fasthttp.RequestCtx)) {
	p := ctx.Path()

	for _, rule := range r.rules {
		match := rule.re.FindSubmatchIndex(p)
		if match == nil {
			continue
		}

		target := rule.re.Expand(nil, []byte(rule.Target), p, match)
		r.logger.Debug("Request rewritten", zap.ByteString("from", p), zap.ByteString("to", target))
		ctx.Request.URI().SetPathBytes(target)
		break
	}

	next(ctx)
}
