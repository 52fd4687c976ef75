package directory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"mediconnect/internal/rbac"
	dErrors "mediconnect/pkg/domain-errors"
)

type ServiceSuite struct {
	suite.Suite
	store   *InMemoryStore
	service *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.Require().NoError(SeedDemoUsers(context.Background(), s.store, bcrypt.MinCost))
	s.service = NewService(s.store,
		WithHashCost(bcrypt.MinCost),
		WithClock(func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }),
	)
}

func (s *ServiceSuite) TestSeededUsers() {
	users, err := s.service.List(context.Background())
	s.Require().NoError(err)
	s.Require().Len(users, 6)

	roles := make([]rbac.Role, 0, len(users))
	for _, u := range users {
		roles = append(roles, u.Role)
		s.True(u.IsActive)
	}
	s.ElementsMatch(rbac.AllRoles(), roles, "one account per role")

	doctor, err := s.service.Get(context.Background(), "2")
	s.Require().NoError(err)
	s.Equal("doctor@example.com", doctor.Email)
	s.Equal("clinic1", doctor.ClinicID)
}

func (s *ServiceSuite) TestAuthenticate() {
	s.Run("valid credentials", func() {
		u, err := s.service.Authenticate(context.Background(), "Admin@Example.com", DemoPassword)
		s.Require().NoError(err)
		s.Equal(rbac.RoleClinicAdmin, u.Role)
		p := u.Principal()
		s.Equal("3", p.UserID)
		s.Equal("clinic1", p.ClinicID)
	})

	s.Run("wrong password and unknown email look the same", func() {
		_, errWrong := s.service.Authenticate(context.Background(), "admin@example.com", "nope")
		_, errUnknown := s.service.Authenticate(context.Background(), "ghost@example.com", DemoPassword)
		s.True(dErrors.HasCode(errWrong, dErrors.CodeUnauthorized))
		s.Equal(errWrong.Error(), errUnknown.Error())
	})

	s.Run("inactive account is rejected", func() {
		inactive := false
		_, err := s.service.Create(context.Background(), CreateUserRequest{
			Name: "Former Staff", Email: "former@example.com", Password: "pw", Role: "clinic_staff", IsActive: &inactive,
		})
		s.Require().NoError(err)
		_, err = s.service.Authenticate(context.Background(), "former@example.com", "pw")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func (s *ServiceSuite) TestCreate() {
	s.Run("defaults to active with generated id", func() {
		u, err := s.service.Create(context.Background(), CreateUserRequest{
			Name: "New Doctor", Email: "new.doc@example.com", Password: "secret", Role: "doctor", ClinicID: "clinic2",
		})
		s.Require().NoError(err)
		s.NotEmpty(u.ID)
		s.True(u.IsActive)
		s.Equal(rbac.RoleDoctor, u.Role)
		s.NotEqual("secret", u.PasswordHash)

		found, err := s.service.Get(context.Background(), u.ID)
		s.Require().NoError(err)
		s.Equal("new.doc@example.com", found.Email)
	})

	s.Run("duplicate email", func() {
		_, err := s.service.Create(context.Background(), CreateUserRequest{
			Name: "Dup", Email: "patient@example.com", Password: "pw", Role: "patient",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("missing fields", func() {
		_, err := s.service.Create(context.Background(), CreateUserRequest{Email: "x@example.com"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("unknown role", func() {
		_, err := s.service.Create(context.Background(), CreateUserRequest{
			Name: "Root", Email: "root@example.com", Password: "pw", Role: "superuser",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *ServiceSuite) TestUpdatePermissions() {
	s.Run("stores a sorted unique set", func() {
		perms, err := s.service.UpdatePermissions(context.Background(), "4",
			[]string{"view_schedule", "manage_appointments", "view_schedule"})
		s.Require().NoError(err)
		s.Equal([]rbac.Permission{rbac.PermManageAppointments, rbac.PermViewSchedule}, perms)

		u, err := s.service.Get(context.Background(), "4")
		s.Require().NoError(err)
		s.Equal(perms, u.Permissions)
	})

	s.Run("ignores padding and blanks", func() {
		perms, err := s.service.UpdatePermissions(context.Background(), "4", []string{" view_billing ", ""})
		s.Require().NoError(err)
		s.Equal([]rbac.Permission{rbac.PermViewBilling}, perms)
	})

	s.Run("rejects unknown names", func() {
		_, err := s.service.UpdatePermissions(context.Background(), "4", []string{"drop_tables"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("rejects the wildcard", func() {
		_, err := s.service.UpdatePermissions(context.Background(), "4", []string{"view_schedule", "*"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))

		u, err := s.store.FindByID(context.Background(), "4")
		s.Require().NoError(err)
		s.NotContains(u.Permissions, rbac.Wildcard)
	})

	s.Run("unknown user", func() {
		_, err := s.service.UpdatePermissions(context.Background(), "404", []string{"view_schedule"})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestStoreReturnsCopies() {
	u, err := s.store.FindByID(context.Background(), "1")
	s.Require().NoError(err)
	u.Role = rbac.RoleCustomerSuccess

	again, err := s.store.FindByID(context.Background(), "1")
	s.Require().NoError(err)
	s.Equal(rbac.RolePatient, again.Role)
}
