package directory

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"mediconnect/internal/rbac"
)

// DemoPassword is the shared password of the seeded accounts.
const DemoPassword = "password123"

var demoUsers = []User{
	{ID: "1", Email: "patient@example.com", Name: "John Patient", Role: rbac.RolePatient},
	{ID: "2", Email: "doctor@example.com", Name: "Dr. Sarah Smith", Role: rbac.RoleDoctor, ClinicID: "clinic1"},
	{ID: "3", Email: "admin@example.com", Name: "Admin User", Role: rbac.RoleClinicAdmin, ClinicID: "clinic1"},
	{ID: "4", Email: "staff@example.com", Name: "Staff Member", Role: rbac.RoleClinicStaff, ClinicID: "clinic1"},
	{ID: "5", Email: "account@example.com", Name: "Account Manager", Role: rbac.RoleAccountManager},
	{ID: "6", Email: "cs@example.com", Name: "Customer Success", Role: rbac.RoleCustomerSuccess},
}

// SeedDemoUsers loads one active account per role, all sharing DemoPassword.
// cost is the bcrypt cost; zero means bcrypt.DefaultCost.
func SeedDemoUsers(ctx context.Context, store Store, cost int) error {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(DemoPassword), cost)
	if err != nil {
		return fmt.Errorf("hash demo password: %w", err)
	}
	now := time.Now().UTC()
	for _, u := range demoUsers {
		u.IsActive = true
		u.PasswordHash = string(hash)
		u.CreatedAt = now
		if err := store.Create(ctx, &u); err != nil {
			return fmt.Errorf("seed user %s: %w", u.Email, err)
		}
	}
	return nil
}
