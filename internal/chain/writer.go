package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/veritrail/veritrail/internal/domain"
	"github.com/veritrail/veritrail/internal/redact"
	pkgerrors "github.com/veritrail/veritrail/pkg/errors"
)

const (
	// DefaultMaxUserAgentLength bounds the stored user agent. Longer
	// values are cut to the bound minus the ellipsis before hashing,
	// so verification is reproducible from the stored value alone.
	DefaultMaxUserAgentLength = 256
	userAgentEllipsis         = "..."

	// SchemaVersion is stamped on every new entry.
	SchemaVersion = 1
)

// WriterConfig tunes the append path.
type WriterConfig struct {
	MaxUserAgentLength int
	SchemaVersion      int
}

// DefaultWriterConfig returns the production defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		MaxUserAgentLength: DefaultMaxUserAgentLength,
		SchemaVersion:      SchemaVersion,
	}
}

// Writer is the one legal way to extend a tenant's chain. It redacts
// the payload, assigns the timestamp, computes the canonical hash and
// persists the entry; callers can never supply a hash or timestamp.
//
// "Read last hash, then insert" is a single critical section per
// tenant: without it, two concurrent appends could both read the same
// tail and silently fork the chain. Tenants append independently.
type Writer struct {
	store    domain.EntryStore
	redactor *redact.Redactor
	logger   *slog.Logger
	cfg      WriterConfig

	mu          sync.Mutex
	tenantLocks map[string]*sync.Mutex

	now func() time.Time
}

// NewWriter creates a Writer around the given store and redactor.
func NewWriter(store domain.EntryStore, redactor *redact.Redactor, logger *slog.Logger, cfg WriterConfig) *Writer {
	if cfg.MaxUserAgentLength <= 0 {
		cfg.MaxUserAgentLength = DefaultMaxUserAgentLength
	}
	if cfg.SchemaVersion <= 0 {
		cfg.SchemaVersion = SchemaVersion
	}
	return &Writer{
		store:       store,
		redactor:    redactor,
		logger:      logger,
		cfg:         cfg,
		tenantLocks: make(map[string]*sync.Mutex),
		now:         time.Now,
	}
}

// Append records one event on the tenant's chain and returns the
// persisted entry. Input errors and store errors both leave the chain
// untouched; an unavailable store aborts the append entirely rather
// than guessing a prev_hash.
func (w *Writer) Append(ctx context.Context, tenantID string, in domain.NewEntryInput) (*domain.AuditEntry, error) {
	if err := validateInput(tenantID, in); err != nil {
		return nil, err
	}

	redacted, err := w.redactor.RedactMap(in.Details)
	if err != nil {
		return nil, err
	}
	detailsJSON, err := MarshalDetails(redacted)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrInvalidInput, err)
	}

	unlock := w.lockTenant(tenantID)
	defer unlock()

	prevHash, err := w.store.GetLastHash(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: reading chain tail: %v", pkgerrors.ErrStoreUnavailable, err)
	}

	entry := &domain.AuditEntry{
		ID:            uuid.New().String(),
		TenantID:      tenantID,
		ActorID:       in.ActorID,
		ActorType:     in.ActorType,
		Action:        in.Action,
		ResourceType:  in.ResourceType,
		ResourceID:    in.ResourceID,
		CorrelationID: in.CorrelationID,
		IP:            in.IP,
		UserAgent:     truncateUserAgent(in.UserAgent, w.cfg.MaxUserAgentLength),
		DetailsJSON:   detailsJSON,
		PrevHash:      prevHash,
		CreatedAt:     TruncateCreatedAt(w.now()),
		Version:       w.cfg.SchemaVersion,
	}
	entry.EntryHash = ComputeHash(prevHash, Canonical(entry))

	if err := w.store.Insert(ctx, entry); err != nil {
		if errors.Is(err, pkgerrors.ErrChainForked) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: inserting entry: %v", pkgerrors.ErrStoreUnavailable, err)
	}

	w.logger.InfoContext(ctx, "audit entry appended",
		slog.String("entry_id", entry.ID),
		slog.String("tenant_id", tenantID),
		slog.String("actor_id", entry.Actor()),
		slog.String("action", entry.Action),
		slog.String("entry_hash", entry.EntryHash))

	return entry, nil
}

func validateInput(tenantID string, in domain.NewEntryInput) error {
	switch {
	case tenantID == "":
		return fmt.Errorf("%w: tenant id is required", pkgerrors.ErrInvalidInput)
	case in.Action == "":
		return fmt.Errorf("%w: action is required", pkgerrors.ErrInvalidInput)
	case !in.ActorType.Valid():
		return fmt.Errorf("%w: unknown actor type %q", pkgerrors.ErrInvalidInput, in.ActorType)
	case in.ActorID != nil && *in.ActorID == "":
		return fmt.Errorf("%w: actor id must be nil or non-empty", pkgerrors.ErrInvalidInput)
	}
	return nil
}

// lockTenant serializes appends for one tenant within this process.
// The Postgres store additionally holds a transaction-scoped advisory
// lock, covering multi-process deployments.
func (w *Writer) lockTenant(tenantID string) func() {
	w.mu.Lock()
	lock, ok := w.tenantLocks[tenantID]
	if !ok {
		lock = &sync.Mutex{}
		w.tenantLocks[tenantID] = lock
	}
	w.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// truncateUserAgent cuts oversized user agents before hashing.
func truncateUserAgent(ua string, max int) string {
	if len(ua) <= max {
		return ua
	}
	return ua[:max-len(userAgentEllipsis)] + userAgentEllipsis
}
