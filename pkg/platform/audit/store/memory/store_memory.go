package memory

import (
	"context"
	"fmt"
	"sync"

	audit "mediconnect/pkg/platform/audit"
	"mediconnect/pkg/platform/sentinel"
)

// InMemoryStore keeps records in a slice ordered by id.
type InMemoryStore struct {
	mu      sync.RWMutex
	records []audit.Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// Append stores a copy of record. Ids must arrive in increasing order.
func (s *InMemoryStore) Append(_ context.Context, record audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.records); n > 0 && record.ID <= s.records[n-1].ID {
		return fmt.Errorf("record id %d not after %d: %w", record.ID, s.records[n-1].ID, sentinel.ErrConflict)
	}
	s.records = append(s.records, record.Clone())
	return nil
}

// Query scans all records under a read lock and returns copies.
func (s *InMemoryStore) Query(_ context.Context, filter audit.Filter) ([]audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]audit.Record, 0)
	for _, r := range s.records {
		if filter.Matches(r) {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

func (s *InMemoryStore) LastID(_ context.Context) (audit.RecordID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.records) == 0 {
		return 0, nil
	}
	return s.records[len(s.records)-1].ID, nil
}

// Len returns the number of stored records.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
