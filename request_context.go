package ucp

import (
	"context"
	"net/http"
	"strings"
)

// RequestContext captures the protocol headers of the inbound request.
type RequestContext struct {
	// The agent identification header, carrying the discovery profile.
	//
	// Example: agent="shopper/2.1"; profile="https://agents.example.com/profile"
	Agent string
	// Base64url signature of the raw request body.
	//
	// Example: eyJtZX...
	Signature string
	// Unique key for each request for tracing purposes.
	//
	// Example: request_id_123
	RequestID string
	// Information about the client making this request.
	//
	// Example: ShopperAgent/2.1 (Mac OS X 15.0.1; arm64)
	UserAgent string
	// The preferred locale for content like messages and errors.
	//
	// Example: en-US
	AcceptLanguage string
	// Protocol revision the agent speaks.
	//
	// Example: 2026-01-11
	UCPVersion string
}

// ProfileURL returns the discovery profile URL declared in the agent header.
func (rc *RequestContext) ProfileURL() string {
	if rc == nil {
		return ""
	}
	return agentProfileURL(rc.Agent)
}

func requestContextFromRequest(r *http.Request) *RequestContext {
	return &RequestContext{
		Agent:          strings.TrimSpace(r.Header.Get("UCP-Agent")),
		Signature:      strings.TrimSpace(r.Header.Get("Request-Signature")),
		RequestID:      strings.TrimSpace(r.Header.Get("Request-Id")),
		UserAgent:      strings.TrimSpace(r.Header.Get("User-Agent")),
		AcceptLanguage: strings.TrimSpace(r.Header.Get("Accept-Language")),
		UCPVersion:     strings.TrimSpace(r.Header.Get("UCP-Version")),
	}
}

type requestContextKey struct{}

func contextWithRequestContext(ctx context.Context, requestCtx *RequestContext) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if requestCtx == nil {
		return ctx
	}
	return context.WithValue(ctx, requestContextKey{}, requestCtx)
}

// RequestContextFromContext extracts the protocol request metadata
// previously stored in the context.
func RequestContextFromContext(ctx context.Context) *RequestContext {
	if ctx == nil {
		return nil
	}
	if requestCtx, ok := ctx.Value(requestContextKey{}).(*RequestContext); ok {
		return requestCtx
	}
	return nil
}
