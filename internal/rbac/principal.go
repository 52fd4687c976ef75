package rbac

import "time"

// Principal is the authenticated actor of one request, derived from a
// verified credential. It is never persisted.
type Principal struct {
	UserID    string
	Email     string
	Name      string
	Role      Role
	ClinicID  string // empty when the principal is not scoped to a clinic
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
