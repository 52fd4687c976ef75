// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Middleware sets these values; services and the audit hook read them without
// importing net/http.
//
//	p := requestcontext.Principal(ctx)
//	ip := requestcontext.ClientIP(ctx)
//
// Tests inject values directly:
//
//	ctx = requestcontext.WithPrincipal(ctx, &rbac.Principal{UserID: "u1"})
package requestcontext

import (
	"context"

	"mediconnect/internal/rbac"
)

type (
	principalKey struct{}
	clientIPKey  struct{}
	userAgentKey struct{}
	requestIDKey struct{}
)

// -----------------------------------------------------------------------------
// Principal
// -----------------------------------------------------------------------------

// Principal returns the authenticated principal, or nil for anonymous requests.
func Principal(ctx context.Context) *rbac.Principal {
	if p, ok := ctx.Value(principalKey{}).(*rbac.Principal); ok {
		return p
	}
	return nil
}

// WithPrincipal injects the authenticated principal.
func WithPrincipal(ctx context.Context, p *rbac.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// -----------------------------------------------------------------------------
// Client metadata (IP, User-Agent)
// -----------------------------------------------------------------------------

// ClientIP retrieves the client IP address from the context.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey{}).(string); ok {
		return ip
	}
	return ""
}

// UserAgent retrieves the User-Agent from the context.
func UserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(userAgentKey{}).(string); ok {
		return ua
	}
	return ""
}

// WithClientMetadata injects client IP and User-Agent into a context.
func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey{}, clientIP)
	ctx = context.WithValue(ctx, userAgentKey{}, userAgent)
	return ctx
}

// -----------------------------------------------------------------------------
// Request metadata
// -----------------------------------------------------------------------------

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(requestIDKey{}).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}
