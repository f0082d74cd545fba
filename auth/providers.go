package auth

import (
	"crypto/subtle"
	"strings"

	"github.com/valyala/fasthttp"

	"github.com/tugasin/tugasin-blog/types"
)

const TypeToken = "token"

// TokenAuthProvider checks a shared bearer token. An empty token rejects every request.
type TokenAuthProvider struct {
	token string
}

func NewTokenAuthProvider(token string) *TokenAuthProvider {
	return &TokenAuthProvider{
		token: strings.TrimSpace(token),
	}
}

func (p *TokenAuthProvider) Type() string {
	return TypeToken
}

func (p *TokenAuthProvider) Configured() bool {
	return p.token != ""
}

func (p *TokenAuthProvider) ApplyToIncomingRequest(ctx *fasthttp.RequestCtx) error {
	if p.token == "" {
		return types.ErrAuthNotConfigured
	}

	token := extractToken(ctx)
	if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(p.token)) != 1 {
		return types.ErrAuthInvalid
	}

	ctx.SetUserValue("auth_type", TypeToken)
	return nil
}

// ApplyToOutgoingRequest sets a bearer Authorization header. Without a token the headers are left as is.
func (p *TokenAuthProvider) ApplyToOutgoingRequest(headers map[string]string) error {
	if p.token == "" {
		return nil
	}

	headers["Authorization"] = "Bearer " + p.token
	return nil
}

func extractToken(ctx *fasthttp.RequestCtx) string {
	if token := string(ctx.Request.Header.Peek("Token")); token != "" {
		return strings.TrimSpace(token)
	}

	authHeader := string(ctx.Request.Header.Peek("Authorization"))
	if authHeader == "" {
		return ""
	}

	if token, ok := strings.CutPrefix(authHeader, "Bearer "); ok {
		return strings.TrimSpace(token)
	}

	if token, ok := strings.CutPrefix(authHeader, "Token "); ok {
		return strings.TrimSpace(token)
	}

	return ""
}
