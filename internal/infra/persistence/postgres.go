package persistence

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veritrail/veritrail/internal/constants"
	"github.com/veritrail/veritrail/internal/domain"
	pkgerrors "github.com/veritrail/veritrail/pkg/errors"
)

// PostgresStore implements EntryStore on a pgx pool. Immutability is
// enforced at the schema level (migrations revoke UPDATE/DELETE); the
// store only ever inserts and reads.
type PostgresStore struct {
	db *pgxpool.Pool
}

var _ domain.EntryStore = (*PostgresStore)(nil)
var _ domain.EntryStore = (*MemoryStore)(nil)

// NewPostgresStore creates a store around an existing pool.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetLastHash(ctx context.Context, tenantID string) (*string, error) {
	var hash string
	err := s.db.QueryRow(ctx, constants.Queries[constants.StmtGetLastHash], tenantID).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying chain tail: %w", err)
	}
	return &hash, nil
}

// Insert persists an entry inside a transaction holding the tenant's
// advisory lock, and re-checks the chain tail under that lock. A tail
// that no longer matches the entry's prev_hash means another process
// appended concurrently; the insert is refused rather than forking
// the chain.
func (s *PostgresStore) Insert(ctx context.Context, entry *domain.AuditEntry) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning append transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", tenantLockID(entry.TenantID)); err != nil {
		return fmt.Errorf("acquiring tenant advisory lock: %w", err)
	}

	var tail *string
	var hash string
	err = tx.QueryRow(ctx, constants.Queries[constants.StmtGetLastHash], entry.TenantID).Scan(&hash)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		tail = nil
	case err != nil:
		return fmt.Errorf("re-reading chain tail: %w", err)
	default:
		tail = &hash
	}
	if !hashesEqual(tail, entry.PrevHash) {
		return fmt.Errorf("%w: tenant %s", pkgerrors.ErrChainForked, entry.TenantID)
	}

	_, err = tx.Exec(ctx, constants.Queries[constants.StmtInsertEntry],
		entry.ID, entry.TenantID, entry.ActorID, string(entry.ActorType),
		entry.Action, entry.ResourceType, entry.ResourceID,
		entry.CorrelationID, entry.IP, entry.UserAgent, entry.DetailsJSON,
		entry.PrevHash, entry.EntryHash, entry.CreatedAt, entry.Version)
	if err != nil {
		return fmt.Errorf("inserting entry: %w", err)
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) ListByTenant(ctx context.Context, tenantID string, from, to time.Time) ([]*domain.AuditEntry, error) {
	var fromArg, toArg *time.Time
	if !from.IsZero() {
		fromArg = &from
	}
	if !to.IsZero() {
		toArg = &to
	}

	rows, err := s.db.Query(ctx, constants.Queries[constants.StmtListByTenant], tenantID, fromArg, toArg)
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	defer rows.Close()

	var entries []*domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var actorType string
		if err := rows.Scan(&e.ID, &e.TenantID, &e.ActorID, &actorType,
			&e.Action, &e.ResourceType, &e.ResourceID, &e.CorrelationID,
			&e.IP, &e.UserAgent, &e.DetailsJSON, &e.PrevHash, &e.EntryHash,
			&e.CreatedAt, &e.Version); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		e.ActorType = domain.ActorType(actorType)
		e.CreatedAt = e.CreatedAt.UTC()
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// tenantLockID maps a tenant id onto the advisory-lock keyspace.
func tenantLockID(tenantID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(tenantID))
	return int64(h.Sum64())
}

func hashesEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
