package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"mediconnect/internal/credential"
	"mediconnect/internal/rbac"
	dErrors "mediconnect/pkg/domain-errors"
	"mediconnect/pkg/platform/httputil"
	"mediconnect/pkg/requestcontext"
)

// Verifier turns a bearer token into the principal it was issued for.
type Verifier interface {
	Verify(ctx context.Context, token string) (*rbac.Principal, error)
}

// Authorizer decides whether a principal may proceed.
type Authorizer interface {
	Authorize(p *rbac.Principal, perm rbac.Permission) error
	AuthorizeAnyRole(p *rbac.Principal, roles ...rbac.Role) error
}

// RequireAuth verifies the bearer token and stores the principal in the
// request context. Every verification failure produces the same 401 body.
func RequireAuth(verifier Verifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			token, err := credential.ExtractBearer(r.Header.Get("Authorization"))
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				httputil.WriteError(w, err)
				return
			}

			principal, err := verifier.Verify(ctx, token)
			if err != nil {
				if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
					logger.WarnContext(ctx, "unauthorized access - invalid token",
						"error", err,
						"request_id", requestID,
					)
				} else {
					logger.ErrorContext(ctx, "failed to verify token",
						"error", err,
						"request_id", requestID,
					)
				}
				httputil.WriteError(w, err)
				return
			}

			ctx = requestcontext.WithPrincipal(ctx, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission admits principals whose role holds perm.
func RequirePermission(authorizer Authorizer, perm rbac.Permission) func(http.Handler) http.Handler {
	return guard(func(p *rbac.Principal) error {
		return authorizer.Authorize(p, perm)
	})
}

// RequireAnyRole admits principals holding one of roles exactly.
func RequireAnyRole(authorizer Authorizer, roles ...rbac.Role) func(http.Handler) http.Handler {
	return guard(func(p *rbac.Principal) error {
		return authorizer.AuthorizeAnyRole(p, roles...)
	})
}

func guard(check func(p *rbac.Principal) error) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := check(requestcontext.Principal(r.Context())); err != nil {
				httputil.WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
