package rbac

import "fmt"

// Permission names a single capability.
type Permission string

// Wildcard grants every permission when present in a role's grant set.
const Wildcard Permission = "*"

// Patient permissions
const (
	PermViewOwnProfile        Permission = "view_own_profile"
	PermEditOwnProfile        Permission = "edit_own_profile"
	PermViewOwnMedicalRecords Permission = "view_own_medical_records"
	PermBookAppointment       Permission = "book_appointment"
	PermViewOwnAppointments   Permission = "view_own_appointments"
)

// Clinical permissions
const (
	PermViewAllPatients    Permission = "view_all_patients"
	PermViewPatientRecords Permission = "view_patient_records"
	PermEditPatientRecords Permission = "edit_patient_records"
	PermManageAppointments Permission = "manage_appointments"
	PermWritePrescriptions Permission = "write_prescriptions"
	PermViewSchedule       Permission = "view_schedule"
)

// Clinic administration permissions
const (
	PermManageStaff    Permission = "manage_staff"
	PermManageUsers    Permission = "manage_users"
	PermViewAnalytics  Permission = "view_analytics"
	PermManageSettings Permission = "manage_settings"
	PermViewBilling    Permission = "view_billing"
	PermManageClaims   Permission = "manage_claims"
)

// Account management permissions
const (
	PermViewAllClinics       Permission = "view_all_clinics"
	PermManageClinicAccounts Permission = "manage_clinic_accounts"
	PermViewSystemAnalytics  Permission = "view_system_analytics"
	PermManageSubscriptions  Permission = "manage_subscriptions"
)

// Platform administration permissions
const (
	PermManageRoles          Permission = "manage_roles"
	PermManagePermissions    Permission = "manage_permissions"
	PermViewAuditLogs        Permission = "view_audit_logs"
	PermManageSystemSettings Permission = "manage_system_settings"
)

var allPermissions = []Permission{
	PermViewOwnProfile,
	PermEditOwnProfile,
	PermViewOwnMedicalRecords,
	PermBookAppointment,
	PermViewOwnAppointments,
	PermViewAllPatients,
	PermViewPatientRecords,
	PermEditPatientRecords,
	PermManageAppointments,
	PermWritePrescriptions,
	PermViewSchedule,
	PermManageStaff,
	PermManageUsers,
	PermViewAnalytics,
	PermManageSettings,
	PermViewBilling,
	PermManageClaims,
	PermViewAllClinics,
	PermManageClinicAccounts,
	PermViewSystemAnalytics,
	PermManageSubscriptions,
	PermManageRoles,
	PermManagePermissions,
	PermViewAuditLogs,
	PermManageSystemSettings,
}

var permissionSet = func() map[Permission]struct{} {
	m := make(map[Permission]struct{}, len(allPermissions)+1)
	for _, p := range allPermissions {
		m[p] = struct{}{}
	}
	m[Wildcard] = struct{}{}
	return m
}()

// AllPermissions returns every concrete permission (the wildcard excluded).
func AllPermissions() []Permission {
	return append([]Permission(nil), allPermissions...)
}

// Valid reports whether p is a defined permission or the wildcard.
func (p Permission) Valid() bool {
	_, ok := permissionSet[p]
	return ok
}

func (p Permission) String() string {
	return string(p)
}

// ParsePermission converts a request value into a Permission.
func ParsePermission(s string) (Permission, error) {
	p := Permission(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown permission %q", s)
	}
	return p, nil
}
