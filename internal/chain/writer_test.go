package chain

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veritrail/veritrail/internal/domain"
	"github.com/veritrail/veritrail/internal/infra/persistence"
	"github.com/veritrail/veritrail/internal/redact"
	pkgerrors "github.com/veritrail/veritrail/pkg/errors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestWriter(store domain.EntryStore) *Writer {
	return NewWriter(store, redact.New(), testLogger(), DefaultWriterConfig())
}

func actorRef(id string) *string {
	return &id
}

func sampleInput(actor string) domain.NewEntryInput {
	return domain.NewEntryInput{
		ActorID:       actorRef(actor),
		ActorType:     domain.ActorUser,
		Action:        "field.create",
		ResourceType:  "field",
		ResourceID:    "field-42",
		CorrelationID: uuid.New().String(),
		IP:            "10.0.0.8",
		UserAgent:     "veritrail-test/1.0",
		Details:       map[string]any{"name": "priority"},
	}
}

// buildChain appends n entries one minute apart and returns them in
// chronological order.
func buildChain(t *testing.T, store *persistence.MemoryStore, tenantID string, n int) []*domain.AuditEntry {
	t.Helper()

	w := newTestWriter(store)
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		tick := base.Add(time.Duration(i) * time.Minute)
		w.now = func() time.Time { return tick }
		_, err := w.Append(context.Background(), tenantID, sampleInput("alice"))
		require.NoError(t, err)
	}

	entries, err := store.ListByTenant(context.Background(), tenantID, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, entries, n)
	return entries
}

func TestAppendLinksChain(t *testing.T) {
	store := persistence.NewMemoryStore()
	entries := buildChain(t, store, "tenant-a", 3)

	assert.Nil(t, entries[0].PrevHash, "first entry starts the chain")
	for i := 1; i < len(entries); i++ {
		require.NotNil(t, entries[i].PrevHash)
		assert.Equal(t, entries[i-1].EntryHash, *entries[i].PrevHash)
	}
}

func TestAppendHashIsReproducibleFromStoredEntry(t *testing.T) {
	store := persistence.NewMemoryStore()
	entries := buildChain(t, store, "tenant-a", 2)

	for _, e := range entries {
		assert.Equal(t, e.EntryHash, ComputeHash(e.PrevHash, Canonical(e)))
	}
}

func TestComputeHashIsDeterministic(t *testing.T) {
	prev := "abc123"
	canonical := "tenant|alice|user|field.create|field|f-1|c-1|{}|2026-03-14T09:00:00.000000Z"

	first := ComputeHash(&prev, canonical)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ComputeHash(&prev, canonical))
	}
	assert.NotEqual(t, first, ComputeHash(nil, canonical))
	assert.NotEqual(t, first, ComputeHash(&prev, canonical+"x"))
}

func TestAppendRedactsBeforeHashing(t *testing.T) {
	store := persistence.NewMemoryStore()
	w := newTestWriter(store)

	in := sampleInput("alice")
	in.Details = map[string]any{"password": "hunter2", "field": "priority"}

	entry, err := w.Append(context.Background(), "tenant-a", in)
	require.NoError(t, err)

	assert.NotContains(t, entry.DetailsJSON, "hunter2")
	assert.Contains(t, entry.DetailsJSON, redact.Marker)
	// The stored hash verifies against the stored (redacted) details,
	// so redaction happened before hashing, not after.
	assert.Equal(t, entry.EntryHash, ComputeHash(entry.PrevHash, Canonical(entry)))
}

func TestAppendTruncatesOversizedUserAgent(t *testing.T) {
	store := persistence.NewMemoryStore()
	w := newTestWriter(store)

	in := sampleInput("alice")
	in.UserAgent = strings.Repeat("x", 300)

	entry, err := w.Append(context.Background(), "tenant-a", in)
	require.NoError(t, err)

	assert.Len(t, entry.UserAgent, 256)
	assert.True(t, strings.HasSuffix(entry.UserAgent, "..."))
	// Truncation precedes hashing: the stored value alone reproduces
	// the hash.
	assert.Equal(t, entry.EntryHash, ComputeHash(entry.PrevHash, Canonical(entry)))
}

func TestAppendRejectsInvalidInput(t *testing.T) {
	store := persistence.NewMemoryStore()
	w := newTestWriter(store)
	ctx := context.Background()

	_, err := w.Append(ctx, "", sampleInput("alice"))
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)

	in := sampleInput("alice")
	in.Action = ""
	_, err = w.Append(ctx, "tenant-a", in)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)

	in = sampleInput("alice")
	in.ActorType = "robot"
	_, err = w.Append(ctx, "tenant-a", in)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)

	assert.Equal(t, 0, store.Count("tenant-a"))
}

func TestAppendRejectsOverdeepPayload(t *testing.T) {
	store := persistence.NewMemoryStore()
	w := newTestWriter(store)

	details := map[string]any{}
	leaf := details
	for i := 0; i < 15; i++ {
		next := map[string]any{}
		leaf["nested"] = next
		leaf = next
	}
	leaf["value"] = "bottom"

	in := sampleInput("alice")
	in.Details = details

	_, err := w.Append(context.Background(), "tenant-a", in)
	assert.ErrorIs(t, err, pkgerrors.ErrDepthExceeded)
	assert.Equal(t, 0, store.Count("tenant-a"))
}

func TestAppendAbortsWhenStoreUnavailable(t *testing.T) {
	store := persistence.NewMemoryStore()
	w := newTestWriter(store)

	store.FailInserts(assert.AnError)
	_, err := w.Append(context.Background(), "tenant-a", sampleInput("alice"))
	assert.ErrorIs(t, err, pkgerrors.ErrStoreUnavailable)
	assert.Equal(t, 0, store.Count("tenant-a"))
}

func TestSystemEntriesHaveNoActor(t *testing.T) {
	store := persistence.NewMemoryStore()
	w := newTestWriter(store)

	in := sampleInput("")
	in.ActorID = nil
	in.ActorType = domain.ActorSystem

	entry, err := w.Append(context.Background(), "tenant-a", in)
	require.NoError(t, err)
	assert.Nil(t, entry.ActorID)
	assert.Equal(t, "", entry.Actor())
}

// TestConcurrentAppendsSameTenantAreSerialized covers the single most
// important correctness hazard: the writer's per-tenant critical
// section must prevent two appends from reading the same tail.
func TestConcurrentAppendsSameTenantAreSerialized(t *testing.T) {
	store := persistence.NewMemoryStore()
	w := newTestWriter(store)

	const n = 25
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := w.Append(context.Background(), "tenant-a", sampleInput("alice"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	entries, err := store.ListByTenant(context.Background(), "tenant-a", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, entries, n)

	seenPrev := make(map[string]bool)
	nilPrev := 0
	for _, e := range entries {
		if e.PrevHash == nil {
			nilPrev++
			continue
		}
		assert.False(t, seenPrev[*e.PrevHash], "two entries share prev_hash %s", *e.PrevHash)
		seenPrev[*e.PrevHash] = true
	}
	assert.Equal(t, 1, nilPrev, "exactly one chain genesis")
}

// TestRacyAppendWithoutLockForksChain demonstrates the failing case
// that justifies the critical section: two appends that both read the
// tail before either inserts produce a forked chain, and validation
// flags it.
func TestRacyAppendWithoutLockForksChain(t *testing.T) {
	store := persistence.NewMemoryStore()
	buildChain(t, store, "tenant-a", 1)
	ctx := context.Background()

	// Both "appends" read the same tail before either inserts.
	tail, err := store.GetLastHash(ctx, "tenant-a")
	require.NoError(t, err)
	require.NotNil(t, tail)

	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		e := &domain.AuditEntry{
			ID:        uuid.New().String(),
			TenantID:  "tenant-a",
			ActorID:   actorRef("mallory"),
			ActorType: domain.ActorUser,
			Action:    "field.update",
			PrevHash:  tail,
			CreatedAt: TruncateCreatedAt(base.Add(time.Duration(i) * time.Second)),
			Version:   1,
		}
		e.DetailsJSON = "{}"
		e.EntryHash = ComputeHash(e.PrevHash, Canonical(e))
		require.NoError(t, store.Insert(ctx, e))
	}

	entries, err := store.ListByTenant(ctx, "tenant-a", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.NotNil(t, entries[1].PrevHash)
	require.NotNil(t, entries[2].PrevHash)
	assert.Equal(t, *entries[1].PrevHash, *entries[2].PrevHash, "chain forked: duplicate prev_hash")

	report, err := NewValidator(testLogger()).Validate(ctx, entries)
	require.NoError(t, err)
	assert.False(t, report.IsValid)
	assert.Less(t, report.ChainIntegrity, 100.0)
}
