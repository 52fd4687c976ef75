package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"mediconnect/internal/directory"
	"mediconnect/internal/platform/middleware"
	"mediconnect/internal/rbac"
	dErrors "mediconnect/pkg/domain-errors"
	audit "mediconnect/pkg/platform/audit"
	"mediconnect/pkg/platform/httputil"
	"mediconnect/pkg/requestcontext"
)

// Authorizer is the decision surface the access-control routes use.
type Authorizer interface {
	middleware.Authorizer
	AuthorizeAccess(p *rbac.Principal, ownerID string, ownerRole rbac.Role) error
	AuthorizeSensitiveAccess(p *rbac.Principal, ownerID string, ownerRole rbac.Role, perm rbac.Permission) error
	Registry() *rbac.Registry
}

// AuditReader is the query side of the audit trail.
type AuditReader interface {
	Query(ctx context.Context, filter audit.Filter) ([]audit.Record, error)
}

// AccessControlHandler serves user administration, audit log review and
// permission introspection.
type AccessControlHandler struct {
	directory Directory
	verifier  middleware.Verifier
	authz     Authorizer
	audits    AuditReader
	auditor   *Auditor
	logger    *slog.Logger
}

func NewAccessControlHandler(dir Directory, verifier middleware.Verifier, authz Authorizer, audits AuditReader, auditor *Auditor, logger *slog.Logger) *AccessControlHandler {
	return &AccessControlHandler{
		directory: dir,
		verifier:  verifier,
		authz:     authz,
		audits:    audits,
		auditor:   auditor,
		logger:    logger,
	}
}

var (
	userAdmins  = []rbac.Role{rbac.RoleClinicAdmin, rbac.RoleAccountManager}
	userViewers = []rbac.Role{rbac.RoleClinicAdmin, rbac.RoleAccountManager, rbac.RoleCustomerSuccess}
)

// Register mounts the /api/access-control routes.
func (h *AccessControlHandler) Register(r chi.Router) {
	r.Route("/api/access-control", func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.RequireAuth(h.verifier, h.logger))

		r.With(middleware.RequireAnyRole(h.authz, userViewers...)).Get("/users", h.handleListUsers)
		r.With(middleware.RequireAnyRole(h.authz, userAdmins...)).Post("/users", h.handleCreateUser)
		r.Get("/users/{id}", h.handleGetUser)
		r.With(middleware.RequireAnyRole(h.authz, userAdmins...)).Put("/users/{id}/permissions", h.handleUpdatePermissions)
		r.With(middleware.RequireAnyRole(h.authz, userAdmins...)).Get("/audit-logs", h.handleAuditLogs)
		r.Get("/me/permissions", h.handleMyPermissions)
		r.Post("/check-permission", h.handleCheckPermission)
	})
}

func (h *AccessControlHandler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	users, err := h.directory.List(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list users", "error", err, "request_id", requestcontext.RequestID(ctx))
		httputil.WriteError(w, err)
		return
	}

	resp := usersResponse{Users: make([]userResponse, 0, len(users))}
	for _, u := range users {
		resp.Users = append(resp.Users, toUserResponse(u))
	}
	h.auditor.Record(ctx, r, Event{
		Action:       audit.ActionView,
		ResourceType: audit.ResourceUser,
		Status:       http.StatusOK,
		Note:         "list users",
	})
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *AccessControlHandler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeJSON[directory.CreateUserRequest](w, r, h.logger, requestID)
	if !ok {
		return
	}
	// Nobody may provision an account that outranks them. An unparseable
	// role is left for the directory to reject as a validation error.
	if role, err := rbac.ParseRole(req.Role); err == nil {
		if err := h.authz.AuthorizeAccess(requestcontext.Principal(ctx), "", role); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}

	user, err := h.directory.Create(ctx, *req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.auditor.Record(ctx, r, Event{
		Action:       audit.ActionCreate,
		ResourceType: audit.ResourceUser,
		ResourceID:   user.ID,
		Status:       http.StatusCreated,
	})
	httputil.WriteJSON(w, http.StatusCreated, createUserResponse{
		Message: "User created successfully",
		User:    toUserResponse(user),
	})
}

func (h *AccessControlHandler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	p := requestcontext.Principal(ctx)
	user, err := h.directory.Get(ctx, id)
	if err != nil {
		httputil.WriteError(w, h.hideMissingUser(p, id, err))
		return
	}
	if err := h.authorizeUserView(p, user); err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.auditor.Record(ctx, r, Event{
		Action:       audit.ActionView,
		ResourceType: audit.ResourceUser,
		ResourceID:   user.ID,
		Status:       http.StatusOK,
	})
	httputil.WriteJSON(w, http.StatusOK, toUserResponse(user))
}

// authorizeUserView applies the ownership check. A patient's record is
// sensitive, so rank alone does not open it to another principal.
func (h *AccessControlHandler) authorizeUserView(p *rbac.Principal, target *directory.User) error {
	if target.Role == rbac.RolePatient {
		return h.authz.AuthorizeSensitiveAccess(p, target.ID, target.Role, rbac.PermViewPatientRecords)
	}
	return h.authz.AuthorizeAccess(p, target.ID, target.Role)
}

// hideMissingUser turns a lookup miss into the generic denial unless the
// caller is asking for themselves or may list every user anyway, so ids
// cannot be probed by comparing 403 and 404.
func (h *AccessControlHandler) hideMissingUser(p *rbac.Principal, id string, err error) error {
	if !dErrors.HasCode(err, dErrors.CodeNotFound) {
		return err
	}
	if p != nil && p.UserID == id {
		return err
	}
	if denied := h.authz.AuthorizeAnyRole(p, userViewers...); denied != nil {
		return denied
	}
	return err
}

func (h *AccessControlHandler) handleUpdatePermissions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	req, ok := httputil.DecodeJSON[updatePermissionsRequest](w, r, h.logger, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	target, err := h.directory.Get(ctx, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.authz.AuthorizeAccess(requestcontext.Principal(ctx), target.ID, target.Role); err != nil {
		httputil.WriteError(w, err)
		return
	}

	perms, err := h.directory.UpdatePermissions(ctx, id, req.Permissions)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.auditor.Record(ctx, r, Event{
		Action:       audit.ActionUpdate,
		ResourceType: audit.ResourcePermissions,
		ResourceID:   id,
		Status:       http.StatusOK,
		Note:         joinPermissions(perms),
	})
	httputil.WriteJSON(w, http.StatusOK, updatePermissionsResponse{
		Message:     "Permissions updated",
		Permissions: perms,
	})
}

func (h *AccessControlHandler) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter, err := parseAuditFilter(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	logs, err := h.audits.Query(ctx, filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to query audit records", "error", err, "request_id", requestcontext.RequestID(ctx))
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to query audit logs"))
		return
	}

	// The snapshot above is taken first, so this review is not part of its
	// own result.
	h.auditor.Record(ctx, r, Event{
		Action:       audit.ActionView,
		ResourceType: audit.ResourceAuditLog,
		Status:       http.StatusOK,
	})
	httputil.WriteJSON(w, http.StatusOK, auditLogsResponse{Logs: logs})
}

func (h *AccessControlHandler) handleMyPermissions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := requestcontext.Principal(ctx)

	h.auditor.Record(ctx, r, Event{
		Action:       audit.ActionView,
		ResourceType: audit.ResourcePermissions,
		ResourceID:   p.UserID,
		Status:       http.StatusOK,
	})
	httputil.WriteJSON(w, http.StatusOK, myPermissionsResponse{
		UserID:      p.UserID,
		Role:        p.Role,
		Permissions: h.authz.Registry().PermissionsOf(p.Role),
	})
}

func (h *AccessControlHandler) handleCheckPermission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.DecodeJSON[checkPermissionRequest](w, r, h.logger, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	if strings.TrimSpace(req.Permission) == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "permission is required"))
		return
	}

	err := h.authz.Authorize(requestcontext.Principal(ctx), rbac.Permission(req.Permission))
	httputil.WriteJSON(w, http.StatusOK, checkPermissionResponse{HasAccess: err == nil})
}

// parseAuditFilter reads userId, action, resourceType, startDate and endDate.
// Dates are RFC 3339 or YYYY-MM-DD; a bare endDate covers that whole day.
func parseAuditFilter(q url.Values) (audit.Filter, error) {
	filter := audit.Filter{
		UserID:       q.Get("userId"),
		Action:       audit.Action(strings.ToUpper(q.Get("action"))),
		ResourceType: audit.ResourceType(strings.ToUpper(q.Get("resourceType"))),
	}
	if filter.Action != "" && !filter.Action.Valid() {
		return audit.Filter{}, dErrors.New(dErrors.CodeValidation, "unknown action")
	}
	if v := q.Get("startDate"); v != "" {
		t, _, err := parseDate(v)
		if err != nil {
			return audit.Filter{}, dErrors.New(dErrors.CodeValidation, "invalid startDate")
		}
		filter.Start = &t
	}
	if v := q.Get("endDate"); v != "" {
		t, dateOnly, err := parseDate(v)
		if err != nil {
			return audit.Filter{}, dErrors.New(dErrors.CodeValidation, "invalid endDate")
		}
		if dateOnly {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		filter.End = &t
	}
	if filter.Start != nil && filter.End != nil && filter.End.Before(*filter.Start) {
		return audit.Filter{}, dErrors.New(dErrors.CodeValidation, "endDate before startDate")
	}
	return filter, nil
}

func parseDate(v string) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, false, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	return t, true, err
}

func joinPermissions(perms []rbac.Permission) string {
	names := make([]string, len(perms))
	for i, p := range perms {
		names[i] = string(p)
	}
	return strings.Join(names, ",")
}
