package rbac

import "slices"

// Registry answers rank and grant questions over an immutable table.
type Registry struct {
	ranks  map[Role]int
	grants map[Role]map[Permission]struct{}
}

// defaultGrants mirrors the published role matrix.
var defaultGrants = map[Role][]Permission{
	RolePatient: {
		PermViewOwnProfile,
		PermEditOwnProfile,
		PermViewOwnMedicalRecords,
		PermBookAppointment,
		PermViewOwnAppointments,
	},
	RoleDoctor: {
		PermViewOwnProfile,
		PermEditOwnProfile,
		PermViewPatientRecords,
		PermEditPatientRecords,
		PermManageAppointments,
		PermWritePrescriptions,
		PermViewSchedule,
	},
	RoleClinicStaff: {
		PermViewOwnProfile,
		PermViewPatientRecords,
		PermManageAppointments,
		PermViewSchedule,
		PermViewBilling,
	},
	RoleClinicAdmin: {
		PermViewOwnProfile,
		PermEditOwnProfile,
		PermViewAllPatients,
		PermViewPatientRecords,
		PermEditPatientRecords,
		PermManageAppointments,
		PermManageStaff,
		PermManageUsers,
		PermViewAnalytics,
		PermManageSettings,
		PermViewBilling,
		PermManageClaims,
	},
	RoleAccountManager: {
		PermViewAllClinics,
		PermManageClinicAccounts,
		PermViewSystemAnalytics,
		PermManageSubscriptions,
	},
	RoleCustomerSuccess: {
		PermViewAllClinics,
		PermManageClinicAccounts,
		PermViewSystemAnalytics,
	},
}

var defaultRegistry = NewRegistry(defaultRanks, defaultGrants)

// Default returns the registry built from the static role matrix.
func Default() *Registry {
	return defaultRegistry
}

// NewRegistry copies the given tables into an immutable registry. Duplicate
// permissions collapse; roles without an entry get an empty grant set.
func NewRegistry(ranks map[Role]int, grants map[Role][]Permission) *Registry {
	reg := &Registry{
		ranks:  make(map[Role]int, len(ranks)),
		grants: make(map[Role]map[Permission]struct{}, len(ranks)),
	}
	for role, rank := range ranks {
		reg.ranks[role] = rank
		reg.grants[role] = map[Permission]struct{}{}
	}
	for role, perms := range grants {
		set, ok := reg.grants[role]
		if !ok {
			set = map[Permission]struct{}{}
			reg.grants[role] = set
		}
		for _, p := range perms {
			set[p] = struct{}{}
		}
	}
	return reg
}

// RankOf returns the hierarchy rank of role, 0 when unknown.
func (r *Registry) RankOf(role Role) int {
	if rank, ok := r.ranks[role]; ok {
		return rank
	}
	return rankUnknown
}

// PermissionsOf returns a sorted copy of the role's grant set.
func (r *Registry) PermissionsOf(role Role) []Permission {
	set := r.grants[role]
	out := make([]Permission, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// HasPermission reports whether role holds perm directly or via Wildcard.
func (r *Registry) HasPermission(role Role, perm Permission) bool {
	set := r.grants[role]
	if _, ok := set[Wildcard]; ok {
		return true
	}
	_, ok := set[perm]
	return ok
}

// RankOf looks up role in the default registry.
func RankOf(role Role) int {
	return defaultRegistry.RankOf(role)
}

// PermissionsOf looks up role in the default registry.
func PermissionsOf(role Role) []Permission {
	return defaultRegistry.PermissionsOf(role)
}

// HasPermission looks up role in the default registry.
func HasPermission(role Role, perm Permission) bool {
	return defaultRegistry.HasPermission(role, perm)
}
