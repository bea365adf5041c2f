package domain

import (
	"context"
	"time"
)

// EntryStore is the persistence capability the chain core depends on.
// The store enforces the append-only policy (no update, no delete); the
// core assumes that guarantee rather than re-implementing it.
type EntryStore interface {
	// GetLastHash returns the entry hash of the tenant's chain tail,
	// or nil when the tenant has no entries yet.
	GetLastHash(ctx context.Context, tenantID string) (*string, error)

	// Insert persists a fully computed entry. Implementations must fail
	// rather than store an entry whose PrevHash no longer matches the
	// chain tail.
	Insert(ctx context.Context, entry *AuditEntry) error

	// ListByTenant returns the tenant's entries with CreatedAt in
	// [from, to), ordered chronologically. Zero times mean unbounded.
	ListByTenant(ctx context.Context, tenantID string, from, to time.Time) ([]*AuditEntry, error)
}
