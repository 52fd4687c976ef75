package directory

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"mediconnect/internal/rbac"
	dErrors "mediconnect/pkg/domain-errors"
	"mediconnect/pkg/platform/sentinel"
	platformstrings "mediconnect/pkg/platform/strings"
)

// Service implements user lookup, sign-in checks and provisioning.
type Service struct {
	store    Store
	logger   *slog.Logger
	hashCost int
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithHashCost sets the bcrypt cost for new passwords.
func WithHashCost(cost int) Option {
	return func(s *Service) {
		s.hashCost = cost
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:    store,
		logger:   slog.Default(),
		hashCost: bcrypt.DefaultCost,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var errInvalidCredentials = dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")

// Authenticate checks email and password. Unknown emails, wrong passwords and
// inactive accounts all yield the same error.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, errInvalidCredentials
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, errInvalidCredentials
	}
	if !user.IsActive {
		s.logger.InfoContext(ctx, "sign-in attempt for inactive user", "user_id", user.ID)
		return nil, errInvalidCredentials
	}
	return user, nil
}

func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	user, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return user, nil
}

func (s *Service) List(ctx context.Context) ([]*User, error) {
	users, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list users")
	}
	return users, nil
}

// Create provisions a user with a fresh id. Accounts are active unless the
// request says otherwise.
func (s *Service) Create(ctx context.Context, req CreateUserRequest) (*User, error) {
	name := strings.TrimSpace(req.Name)
	email := strings.TrimSpace(req.Email)
	if name == "" || email == "" || req.Password == "" || req.Role == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "missing required fields")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid email")
	}
	role, err := rbac.ParseRole(req.Role)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "unknown role")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.hashCost)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}

	user := &User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		Role:         role,
		ClinicID:     req.ClinicID,
		IsActive:     req.IsActive == nil || *req.IsActive,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.Create(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeValidation, "user with this email already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create user")
	}
	return user, nil
}

// UpdatePermissions validates names and records them on the user. The stored
// set is sorted and deduplicated. Per-user grants are informational: the
// authorization engine decides from the role alone, so the wildcard is
// refused here rather than stored as a misleading "grant everything".
func (s *Service) UpdatePermissions(ctx context.Context, id string, names []string) ([]rbac.Permission, error) {
	names = platformstrings.DedupeAndTrim(names)
	perms := make([]rbac.Permission, 0, len(names))
	for _, name := range names {
		p, err := rbac.ParsePermission(name)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeValidation, "unknown permission: "+name)
		}
		if p == rbac.Wildcard {
			return nil, dErrors.New(dErrors.CodeValidation, "wildcard permission cannot be granted per user")
		}
		perms = append(perms, p)
	}
	slices.Sort(perms)
	perms = slices.Compact(perms)

	if err := s.store.SetPermissions(ctx, id, perms); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update permissions")
	}
	return perms, nil
}
