package testutil

import (
	"net/http"

	"mediconnect/internal/rbac"
	"mediconnect/pkg/requestcontext"
)

// WithPrincipal attaches p to the request as RequireAuth would after a
// successful verification.
func WithPrincipal(req *http.Request, p *rbac.Principal) *http.Request {
	return req.WithContext(requestcontext.WithPrincipal(req.Context(), p))
}

// PrincipalFor builds a principal with just an identity and role.
func PrincipalFor(userID string, role rbac.Role) *rbac.Principal {
	return &rbac.Principal{
		UserID: userID,
		Email:  userID + "@example.com",
		Role:   role,
	}
}
