package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRankOf_StrictHierarchy(t *testing.T) {
	roles := AllRoles()
	seen := map[int]Role{}
	for i, role := range roles {
		rank := RankOf(role)
		assert.Equal(t, i+1, rank, "rank of %s", role)
		if other, dup := seen[rank]; dup {
			t.Fatalf("roles %s and %s share rank %d", role, other, rank)
		}
		seen[rank] = role
	}

	assert.Less(t, RankOf(RolePatient), RankOf(RoleDoctor))
	assert.Less(t, RankOf(RoleClinicAdmin), RankOf(RoleCustomerSuccess))
}

func TestRankOf_UnknownRoleIsLowest(t *testing.T) {
	assert.Equal(t, 0, RankOf(Role("janitor")))
	assert.Empty(t, PermissionsOf(Role("janitor")))
	assert.False(t, HasPermission(Role("janitor"), PermViewOwnProfile))
}

func TestHasPermission_MatchesGrantTable(t *testing.T) {
	for role, granted := range defaultGrants {
		grantedSet := map[Permission]bool{}
		for _, p := range granted {
			grantedSet[p] = true
		}
		for _, p := range AllPermissions() {
			assert.Equal(t, grantedSet[p], HasPermission(role, p), "role=%s perm=%s", role, p)
		}
	}
}

func TestHasPermission_Scenarios(t *testing.T) {
	assert.False(t, HasPermission(RolePatient, PermViewPatientRecords))
	assert.True(t, HasPermission(RoleDoctor, PermViewPatientRecords))
	assert.True(t, HasPermission(RoleClinicAdmin, PermManageUsers))
	assert.False(t, HasPermission(RoleAccountManager, PermViewOwnProfile))
}

func TestRegistry_Wildcard(t *testing.T) {
	reg := NewRegistry(
		map[Role]int{RolePatient: 1, RoleCustomerSuccess: 6},
		map[Role][]Permission{RoleCustomerSuccess: {Wildcard}},
	)

	for _, p := range AllPermissions() {
		assert.True(t, reg.HasPermission(RoleCustomerSuccess, p), "wildcard should grant %s", p)
	}
	assert.False(t, reg.HasPermission(RolePatient, PermViewOwnProfile))
	assert.Empty(t, reg.PermissionsOf(RolePatient), "role without grants has empty set")
}

func TestRegistry_DuplicateGrantsCollapse(t *testing.T) {
	reg := NewRegistry(
		map[Role]int{RoleDoctor: 2},
		map[Role][]Permission{RoleDoctor: {PermViewSchedule, PermViewSchedule}},
	)
	assert.Equal(t, []Permission{PermViewSchedule}, reg.PermissionsOf(RoleDoctor))
}

func TestPermissionsOf_ReturnsCopy(t *testing.T) {
	perms := PermissionsOf(RolePatient)
	require.NotEmpty(t, perms)
	perms[0] = Wildcard
	assert.False(t, HasPermission(RolePatient, PermManageRoles))
	assert.NotContains(t, PermissionsOf(RolePatient), Wildcard)
}

func TestParse(t *testing.T) {
	r, err := ParseRole("clinic_admin")
	require.NoError(t, err)
	assert.Equal(t, RoleClinicAdmin, r)

	_, err = ParseRole("superuser")
	require.Error(t, err)

	p, err := ParsePermission("view_audit_logs")
	require.NoError(t, err)
	assert.Equal(t, PermViewAuditLogs, p)

	_, err = ParsePermission("drop_tables")
	require.Error(t, err)
}

func TestSortByRank(t *testing.T) {
	roles := []Role{RoleCustomerSuccess, RolePatient, RoleClinicAdmin}
	SortByRank(roles)
	assert.Equal(t, []Role{RolePatient, RoleClinicAdmin, RoleCustomerSuccess}, roles)
}
