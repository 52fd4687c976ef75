// Package rbac defines the closed set of roles and permissions and the static
// tables that relate them: a hierarchy rank per role and a grant set per role.
//
// All lookups are total. Unknown roles have rank 0 and no permissions.
package rbac

import (
	"fmt"
	"slices"
)

// Role is a static identity category.
type Role string

const (
	RolePatient         Role = "patient"
	RoleDoctor          Role = "doctor"
	RoleClinicStaff     Role = "clinic_staff"
	RoleClinicAdmin     Role = "clinic_admin"
	RoleAccountManager  Role = "account_manager"
	RoleCustomerSuccess Role = "customer_success"
)

// rankUnknown is the rank given to roles outside the enumeration.
const rankUnknown = 0

// defaultRanks is the documented hierarchy, lowest first.
var defaultRanks = map[Role]int{
	RolePatient:         1,
	RoleDoctor:          2,
	RoleClinicStaff:     3,
	RoleClinicAdmin:     4,
	RoleAccountManager:  5,
	RoleCustomerSuccess: 6,
}

// AllRoles returns every defined role ordered by rank.
func AllRoles() []Role {
	return []Role{
		RolePatient,
		RoleDoctor,
		RoleClinicStaff,
		RoleClinicAdmin,
		RoleAccountManager,
		RoleCustomerSuccess,
	}
}

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	_, ok := defaultRanks[r]
	return ok
}

func (r Role) String() string {
	return string(r)
}

// ParseRole converts a claim or request value into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// SortByRank orders roles lowest rank first using the default hierarchy.
func SortByRank(roles []Role) {
	slices.SortStableFunc(roles, func(a, b Role) int {
		return defaultRanks[a] - defaultRanks[b]
	})
}
