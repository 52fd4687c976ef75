// Package directory owns the user accounts that can sign in and the role each
// one holds.
package directory

import (
	"slices"
	"time"

	"mediconnect/internal/rbac"
)

// User is a directory account. PasswordHash is a bcrypt hash and never leaves
// the package boundary in responses.
type User struct {
	ID           string
	Email        string
	Name         string
	Role         rbac.Role
	ClinicID     string
	IsActive     bool
	PasswordHash string
	// Permissions holds explicit grants recorded by administrators. Access
	// decisions still come from the role.
	Permissions []rbac.Permission
	CreatedAt   time.Time
}

// Principal returns the identity a credential is issued for.
func (u *User) Principal() rbac.Principal {
	return rbac.Principal{
		UserID:   u.ID,
		Email:    u.Email,
		Name:     u.Name,
		Role:     u.Role,
		ClinicID: u.ClinicID,
	}
}

func (u *User) clone() *User {
	c := *u
	c.Permissions = slices.Clone(u.Permissions)
	return &c
}

// CreateUserRequest carries the fields accepted when provisioning a user.
type CreateUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
	ClinicID string `json:"clinicId,omitempty"`
	IsActive *bool  `json:"isActive,omitempty"`
}
