package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"mediconnect/internal/directory"
	"mediconnect/internal/platform/metrics"
	"mediconnect/internal/platform/middleware"
	"mediconnect/internal/rbac"
	dErrors "mediconnect/pkg/domain-errors"
	audit "mediconnect/pkg/platform/audit"
	"mediconnect/pkg/platform/httputil"
	"mediconnect/pkg/requestcontext"
)

// Directory is the user lookup and provisioning surface used by handlers.
type Directory interface {
	Authenticate(ctx context.Context, email, password string) (*directory.User, error)
	Get(ctx context.Context, id string) (*directory.User, error)
	List(ctx context.Context) ([]*directory.User, error)
	Create(ctx context.Context, req directory.CreateUserRequest) (*directory.User, error)
	UpdatePermissions(ctx context.Context, id string, names []string) ([]rbac.Permission, error)
}

// Credentials issues, verifies and revokes bearer tokens.
type Credentials interface {
	middleware.Verifier
	Issue(p rbac.Principal, ttl time.Duration) (string, time.Time, error)
	Revoke(ctx context.Context, p *rbac.Principal) error
}

// AuthHandler serves sign-in, sign-out and the caller's own profile.
type AuthHandler struct {
	directory   Directory
	credentials Credentials
	auditor     *Auditor
	metrics     *metrics.Metrics
	logger      *slog.Logger
	tokenTTL    time.Duration
	loginLimit  func(http.Handler) http.Handler
}

// AuthOption configures an AuthHandler.
type AuthOption func(*AuthHandler)

// WithLoginLimiter throttles the sign-in route.
func WithLoginLimiter(mw func(http.Handler) http.Handler) AuthOption {
	return func(h *AuthHandler) {
		h.loginLimit = mw
	}
}

func WithAuthMetrics(m *metrics.Metrics) AuthOption {
	return func(h *AuthHandler) {
		h.metrics = m
	}
}

func NewAuthHandler(dir Directory, creds Credentials, auditor *Auditor, logger *slog.Logger, tokenTTL time.Duration, opts ...AuthOption) *AuthHandler {
	h := &AuthHandler{
		directory:   dir,
		credentials: creds,
		auditor:     auditor,
		logger:      logger,
		tokenTTL:    tokenTTL,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the /api/auth routes.
func (h *AuthHandler) Register(r chi.Router) {
	r.Route("/api/auth", func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		r.Group(func(r chi.Router) {
			if h.loginLimit != nil {
				r.Use(h.loginLimit)
			}
			r.Post("/login", h.handleLogin)
		})
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(h.credentials, h.logger))
			r.Get("/me", h.handleMe)
			r.Post("/logout", h.handleLogout)
		})
	})
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeJSON[loginRequest](w, r, h.logger, requestID)
	if !ok {
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "email and password are required"))
		return
	}

	user, err := h.directory.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		h.metrics.IncrementLogins("failure")
		h.logger.InfoContext(ctx, "sign-in rejected",
			"error", err,
			"request_id", requestID,
		)
		httputil.WriteError(w, err)
		return
	}

	principal := user.Principal()
	token, expiresAt, err := h.credentials.Issue(principal, h.tokenTTL)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to issue token",
			"error", err,
			"request_id", requestID,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue token"))
		return
	}
	h.metrics.IncrementLogins("success")

	h.auditor.Record(ctx, r, Event{
		Action:       audit.ActionLogin,
		ResourceType: audit.ResourceAuth,
		Status:       http.StatusOK,
		Actor:        &principal,
	})
	httputil.WriteJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      toUserResponse(user),
	})
}

func (h *AuthHandler) handleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal := requestcontext.Principal(ctx)

	user, err := h.directory.Get(ctx, principal.UserID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.auditor.Record(ctx, r, Event{
		Action:       audit.ActionView,
		ResourceType: audit.ResourceProfile,
		ResourceID:   user.ID,
		Status:       http.StatusOK,
	})
	httputil.WriteJSON(w, http.StatusOK, toUserResponse(user))
}

func (h *AuthHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal := requestcontext.Principal(ctx)

	if err := h.credentials.Revoke(ctx, principal); err != nil {
		h.logger.ErrorContext(ctx, "failed to revoke token",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke token"))
		return
	}

	h.auditor.Record(ctx, r, Event{
		Action:       audit.ActionLogout,
		ResourceType: audit.ResourceAuth,
		Status:       http.StatusOK,
	})
	httputil.WriteJSON(w, http.StatusOK, messageResponse{Message: "Logged out successfully"})
}
