// Package denylist stores revoked token IDs until the token would have
// expired anyway, so retention never outlives the credential.
package denylist

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mediconnect/pkg/platform/sentinel"
)

// Clock returns the current time.
type Clock func() time.Time

// Memory is a process-local denylist for single-instance deployments and tests.
type Memory struct {
	mu      sync.RWMutex
	revoked map[string]time.Time // jti -> expiry
	clock   Clock
}

// MemoryOption configures a Memory denylist.
type MemoryOption func(*Memory)

// WithClock sets the clock function for testability.
func WithClock(clock Clock) MemoryOption {
	return func(m *Memory) {
		if clock != nil {
			m.clock = clock
		}
	}
}

func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		revoked: make(map[string]time.Time),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func validateTTL(ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive: %w", sentinel.ErrExpired)
	}
	return nil
}

// Revoke records jti as revoked for ttl.
func (m *Memory) Revoke(_ context.Context, jti string, ttl time.Duration) error {
	if jti == "" {
		return nil
	}
	if err := validateTTL(ttl); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[jti] = m.clock().Add(ttl)
	return nil
}

// IsRevoked reports whether jti is revoked and not yet past its retention.
func (m *Memory) IsRevoked(_ context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	m.mu.RLock()
	expiresAt, ok := m.revoked[jti]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return m.clock().Before(expiresAt), nil
}

// Sweep drops entries whose retention has elapsed and returns how many were
// removed.
func (m *Memory) Sweep() int {
	now := m.clock()
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for jti, expiresAt := range m.revoked {
		if !now.Before(expiresAt) {
			delete(m.revoked, jti)
			removed++
		}
	}
	return removed
}

// RunSweeper sweeps on every tick until ctx is done.
func (m *Memory) RunSweeper(ctx context.Context, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Sweep()
		}
	}
}
