// Package authz decides whether a principal may perform an action. Decisions
// are pure functions of the role registry, the principal and the request.
//
// Every denial is reported as the same error so callers cannot learn which
// check failed or anything about the role hierarchy.
package authz

import (
	"errors"
	"log/slog"
	"slices"

	"mediconnect/internal/authz/metrics"
	"mediconnect/internal/rbac"
	dErrors "mediconnect/pkg/domain-errors"
)

var (
	// ErrDenied is in the chain of every authorization failure.
	ErrDenied = errors.New("authorization denied")
	// ErrUnauthenticated is returned when no principal is present.
	ErrUnauthenticated = errors.New("unauthenticated")
)

const (
	checkPermission = "permission"
	checkAnyRole    = "any_role"
	checkAccess     = "access"
	checkSensitive  = "sensitive_access"
)

// Engine evaluates permission, role-membership and ownership checks.
type Engine struct {
	registry *rbac.Registry
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger records the internal reason for each denial at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetrics sets the decision counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine builds an engine over registry; nil means rbac.Default().
func NewEngine(registry *rbac.Registry, opts ...Option) *Engine {
	if registry == nil {
		registry = rbac.Default()
	}
	e := &Engine{registry: registry}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Authorize allows p if its role holds perm.
func (e *Engine) Authorize(p *rbac.Principal, perm rbac.Permission) error {
	if p == nil {
		return e.unauthenticated(checkPermission)
	}
	if !e.registry.HasPermission(p.Role, perm) {
		return e.deny(checkPermission, p, "role lacks permission", "permission", perm)
	}
	return e.allow(checkPermission)
}

// AuthorizeAnyRole allows p if its role is one of roles.
func (e *Engine) AuthorizeAnyRole(p *rbac.Principal, roles ...rbac.Role) error {
	if p == nil {
		return e.unauthenticated(checkAnyRole)
	}
	if !slices.Contains(roles, p.Role) {
		return e.deny(checkAnyRole, p, "role not in allowed set")
	}
	return e.allow(checkAnyRole)
}

// AuthorizeAccess allows p to act on a resource owned by ownerID holding
// ownerRole. Self-access always passes; otherwise p's rank must be at least
// the owner's, or the roles must be identical.
func (e *Engine) AuthorizeAccess(p *rbac.Principal, ownerID string, ownerRole rbac.Role) error {
	if p == nil {
		return e.unauthenticated(checkAccess)
	}
	if e.canAccess(p, ownerID, ownerRole) {
		return e.allow(checkAccess)
	}
	return e.deny(checkAccess, p, "requester outranked by owner", "owner_id", ownerID)
}

// AuthorizeSensitiveAccess is AuthorizeAccess for sensitive resources:
// self-access still passes, but a cross-principal hierarchy override also
// requires perm.
func (e *Engine) AuthorizeSensitiveAccess(p *rbac.Principal, ownerID string, ownerRole rbac.Role, perm rbac.Permission) error {
	if p == nil {
		return e.unauthenticated(checkSensitive)
	}
	if p.UserID == ownerID {
		return e.allow(checkSensitive)
	}
	if !e.canAccess(p, ownerID, ownerRole) {
		return e.deny(checkSensitive, p, "requester outranked by owner", "owner_id", ownerID)
	}
	if !e.registry.HasPermission(p.Role, perm) {
		return e.deny(checkSensitive, p, "override lacks permission", "permission", perm)
	}
	return e.allow(checkSensitive)
}

// Registry exposes the tables the engine decides over.
func (e *Engine) Registry() *rbac.Registry {
	return e.registry
}

func (e *Engine) canAccess(p *rbac.Principal, ownerID string, ownerRole rbac.Role) bool {
	if p.UserID == ownerID {
		return true
	}
	return e.registry.RankOf(p.Role) >= e.registry.RankOf(ownerRole) || p.Role == ownerRole
}

func (e *Engine) allow(check string) error {
	if e.metrics != nil {
		e.metrics.ObserveDecision(check, true)
	}
	return nil
}

func (e *Engine) deny(check string, p *rbac.Principal, reason string, attrs ...any) error {
	if e.metrics != nil {
		e.metrics.ObserveDecision(check, false)
	}
	if e.logger != nil {
		args := append([]any{"check", check, "user_id", p.UserID, "role", p.Role, "reason", reason}, attrs...)
		e.logger.Debug("authorization denied", args...)
	}
	return dErrors.Wrap(ErrDenied, dErrors.CodeForbidden, "not permitted")
}

func (e *Engine) unauthenticated(check string) error {
	if e.metrics != nil {
		e.metrics.ObserveDecision(check, false)
	}
	return dErrors.Wrap(ErrUnauthenticated, dErrors.CodeUnauthorized, "authentication required")
}
