package directory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"mediconnect/internal/rbac"
	"mediconnect/pkg/platform/sentinel"
)

// Store persists directory users.
type Store interface {
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context) ([]*User, error)
	Create(ctx context.Context, user *User) error
	SetPermissions(ctx context.Context, id string, perms []rbac.Permission) error
}

// InMemoryStore keeps users in insertion order with an email index.
type InMemoryStore struct {
	mu      sync.RWMutex
	users   []*User
	byID    map[string]*User
	byEmail map[string]*User
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID:    make(map[string]*User),
		byEmail: make(map[string]*User),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *InMemoryStore) FindByID(_ context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.byID[id]; ok {
		return u.clone(), nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) FindByEmail(_ context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.byEmail[normalizeEmail(email)]; ok {
		return u.clone(), nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) List(_ context.Context) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u.clone())
	}
	return out, nil
}

// Create stores user. Ids and emails are unique.
func (s *InMemoryStore) Create(_ context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := normalizeEmail(user.Email)
	if _, dup := s.byEmail[email]; dup {
		return fmt.Errorf("email %s: %w", email, sentinel.ErrConflict)
	}
	if _, dup := s.byID[user.ID]; dup {
		return fmt.Errorf("user %s: %w", user.ID, sentinel.ErrConflict)
	}
	stored := user.clone()
	s.users = append(s.users, stored)
	s.byID[stored.ID] = stored
	s.byEmail[email] = stored
	return nil
}

func (s *InMemoryStore) SetPermissions(_ context.Context, id string, perms []rbac.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	u.Permissions = slices.Clone(perms)
	return nil
}
