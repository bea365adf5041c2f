// Package persistence provides the EntryStore adapters: an in-memory
// store for tests and embedding, and a Postgres store on pgx. Both
// enforce the append-only policy — neither exposes update or delete.
package persistence

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/veritrail/veritrail/internal/domain"
	pkgerrors "github.com/veritrail/veritrail/pkg/errors"
)

// MemoryStore keeps each tenant's chain in an ordered slice guarded by
// one RWMutex. Insert and GetLastHash are individually atomic; the
// read-tail-then-insert sequence is serialized by the chain writer,
// not here — which is exactly what the concurrency hazard tests rely
// on to force a fork.
type MemoryStore struct {
	mu      sync.RWMutex
	tenants map[string][]*domain.AuditEntry

	// failInsert simulates an unavailable store in tests.
	failInsert error
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tenants: make(map[string][]*domain.AuditEntry)}
}

// FailInserts makes every subsequent Insert return err; nil restores
// normal operation.
func (s *MemoryStore) FailInserts(err error) {
	s.mu.Lock()
	s.failInsert = err
	s.mu.Unlock()
}

func (s *MemoryStore) GetLastHash(_ context.Context, tenantID string) (*string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.tenants[tenantID]
	if len(entries) == 0 {
		return nil, nil
	}
	hash := entries[len(entries)-1].EntryHash
	return &hash, nil
}

func (s *MemoryStore) Insert(_ context.Context, entry *domain.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failInsert != nil {
		return s.failInsert
	}
	if entry.ID == "" || entry.TenantID == "" || entry.EntryHash == "" {
		return fmt.Errorf("%w: entry missing id, tenant or hash", pkgerrors.ErrInvalidInput)
	}

	copied := *entry
	s.tenants[entry.TenantID] = append(s.tenants[entry.TenantID], &copied)
	return nil
}

func (s *MemoryStore) ListByTenant(_ context.Context, tenantID string, from, to time.Time) ([]*domain.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.AuditEntry
	for _, e := range s.tenants[tenantID] {
		if !from.IsZero() && e.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !e.CreatedAt.Before(to) {
			continue
		}
		copied := *e
		out = append(out, &copied)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Count returns the number of entries stored for a tenant.
func (s *MemoryStore) Count(tenantID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tenants[tenantID])
}
