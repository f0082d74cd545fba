package types

import "github.com/valyala/fasthttp"

// AuthProvider authenticates incoming requests and decorates outgoing ones with the same credential.
type AuthProvider interface {
	Type() string
	ApplyToIncomingRequest(ctx *fasthttp.RequestCtx) error
	ApplyToOutgoingRequest(headers map[string]string) error
}
