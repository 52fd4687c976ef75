package httptransport

import (
	"time"

	"mediconnect/internal/directory"
	"mediconnect/internal/rbac"
	audit "mediconnect/pkg/platform/audit"
)

type userResponse struct {
	ID          string            `json:"id"`
	Email       string            `json:"email"`
	Name        string            `json:"name"`
	Role        rbac.Role         `json:"role"`
	ClinicID    *string           `json:"clinicId"`
	IsActive    bool              `json:"isActive"`
	Permissions []rbac.Permission `json:"permissions,omitempty"`
}

func toUserResponse(u *directory.User) userResponse {
	return userResponse{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		Role:        u.Role,
		ClinicID:    audit.StringPtr(u.ClinicID),
		IsActive:    u.IsActive,
		Permissions: u.Permissions,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      userResponse `json:"user"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type usersResponse struct {
	Users []userResponse `json:"users"`
}

type createUserResponse struct {
	Message string       `json:"message"`
	User    userResponse `json:"user"`
}

type updatePermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

type updatePermissionsResponse struct {
	Message     string            `json:"message"`
	Permissions []rbac.Permission `json:"permissions"`
}

type auditLogsResponse struct {
	Logs []audit.Record `json:"logs"`
}

type myPermissionsResponse struct {
	UserID      string            `json:"userId"`
	Role        rbac.Role         `json:"role"`
	Permissions []rbac.Permission `json:"permissions"`
}

type checkPermissionRequest struct {
	Permission string `json:"permission"`
}

type checkPermissionResponse struct {
	HasAccess bool `json:"hasAccess"`
}
