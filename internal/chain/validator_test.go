package chain

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veritrail/veritrail/internal/domain"
	"github.com/veritrail/veritrail/internal/infra/persistence"
)

func validChain(t *testing.T, n int) []*domain.AuditEntry {
	t.Helper()
	return buildChain(t, persistence.NewMemoryStore(), "tenant-a", n)
}

func TestValidateValidChain(t *testing.T) {
	entries := validChain(t, 5)

	report, err := NewValidator(testLogger()).Validate(context.Background(), entries)
	require.NoError(t, err)

	assert.True(t, report.IsValid)
	assert.Equal(t, 5, report.TotalEntries)
	assert.Empty(t, report.Errors)
	assert.Equal(t, 100.0, report.ChainIntegrity)
	assert.Equal(t, 4, report.RecoveryAnchor)
	assert.Empty(t, report.SuspiciousEntries)
	assert.Empty(t, report.TimelineGaps)
	assert.Equal(t, "tenant-a", report.TenantID)
}

func TestValidateEmptyChain(t *testing.T) {
	report, err := NewValidator(testLogger()).Validate(context.Background(), nil)
	require.NoError(t, err)

	assert.True(t, report.IsValid)
	assert.Equal(t, 100.0, report.ChainIntegrity)
	assert.Equal(t, -1, report.RecoveryAnchor)
}

// TestTamperedFieldReportsSingleMismatch is the canonical tamper
// scenario: flip one field on one entry of a five-entry chain and
// expect exactly one hash_mismatch at that index, integrity 80.
func TestTamperedFieldReportsSingleMismatch(t *testing.T) {
	entries := validChain(t, 5)
	entries[2].Action = "field.delete"

	report, err := NewValidator(testLogger()).Validate(context.Background(), entries)
	require.NoError(t, err)

	assert.False(t, report.IsValid)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, 2, report.Errors[0].EntryIndex)
	assert.Equal(t, domain.ErrorHashMismatch, report.Errors[0].Kind)
	assert.Equal(t, domain.SeverityCritical, report.Errors[0].Severity)
	assert.False(t, report.Errors[0].Recoverable)
	assert.Equal(t, 80.0, report.ChainIntegrity)

	require.Len(t, report.SuspiciousEntries, 1)
	assert.Equal(t, 2, report.SuspiciousEntries[0].EntryIndex)
	assert.Equal(t, "field.delete", report.SuspiciousEntries[0].Action)

	assert.Equal(t, 1, report.RecoveryAnchor, "trust ends just before the tampered entry")
}

func TestEverySingleCanonicalFieldIsTamperSensitive(t *testing.T) {
	mutations := map[string]func(*domain.AuditEntry){
		"tenant_id":      func(e *domain.AuditEntry) { e.TenantID = "tenant-b" },
		"actor_id":       func(e *domain.AuditEntry) { e.ActorID = actorRef("eve") },
		"actor_type":     func(e *domain.AuditEntry) { e.ActorType = domain.ActorService },
		"action":         func(e *domain.AuditEntry) { e.Action = "field.delete" },
		"resource_type":  func(e *domain.AuditEntry) { e.ResourceType = "record" },
		"resource_id":    func(e *domain.AuditEntry) { e.ResourceID = "other" },
		"correlation_id": func(e *domain.AuditEntry) { e.CorrelationID = "spoofed" },
		"details_json":   func(e *domain.AuditEntry) { e.DetailsJSON = `{"name":"severity"}` },
		"created_at":     func(e *domain.AuditEntry) { e.CreatedAt = e.CreatedAt.Add(time.Second) },
	}

	for field, mutate := range mutations {
		t.Run(field, func(t *testing.T) {
			entries := validChain(t, 3)
			mutate(entries[1])

			report, err := NewValidator(testLogger()).Validate(context.Background(), entries)
			require.NoError(t, err)

			require.Len(t, report.Errors, 1, "exactly one error, no false positives")
			assert.Equal(t, 1, report.Errors[0].EntryIndex)
			assert.Equal(t, domain.ErrorHashMismatch, report.Errors[0].Kind)
		})
	}
}

func TestDeletedEntryBreaksChain(t *testing.T) {
	entries := validChain(t, 5)
	pruned := append(entries[:2:2], entries[3:]...)

	report, err := NewValidator(testLogger()).Validate(context.Background(), pruned)
	require.NoError(t, err)

	assert.False(t, report.IsValid)
	assert.Less(t, report.ChainIntegrity, 100.0)

	var breaks int
	for _, ve := range report.Errors {
		if ve.Kind == domain.ErrorChainBreak {
			breaks++
		}
	}
	assert.GreaterOrEqual(t, breaks, 1)
}

func TestReorderedEntriesBreakChain(t *testing.T) {
	entries := validChain(t, 5)
	entries[1], entries[2] = entries[2], entries[1]

	report, err := NewValidator(testLogger()).Validate(context.Background(), entries)
	require.NoError(t, err)

	assert.False(t, report.IsValid)
	assert.Less(t, report.ChainIntegrity, 100.0)
}

func TestFirstEntryWithNonNullPrevHashIsRecoverable(t *testing.T) {
	entries := validChain(t, 3)
	bogus := "deadbeef"
	entries[0].PrevHash = &bogus

	report, err := NewValidator(testLogger()).Validate(context.Background(), entries)
	require.NoError(t, err)
	assert.False(t, report.IsValid)

	var genesis *domain.ValidationError
	for i := range report.Errors {
		if report.Errors[i].EntryIndex == 0 && report.Errors[i].Kind == domain.ErrorChainBreak {
			genesis = &report.Errors[i]
			break
		}
	}
	require.NotNil(t, genesis)
	assert.Equal(t, domain.SeverityHigh, genesis.Severity)
	assert.True(t, genesis.Recoverable)
	assert.NotEmpty(t, genesis.RepairSuggestion)
	assert.Equal(t, -1, report.RecoveryAnchor)
}

func TestSegmentedMatchesSequential(t *testing.T) {
	valid := validChain(t, 23)

	tampered := validChain(t, 23)
	tampered[7].Action = "field.delete"
	tampered[15].PrevHash = &tampered[3].EntryHash

	cases := map[string][]*domain.AuditEntry{
		"valid":    valid,
		"tampered": tampered,
	}
	for name, entries := range cases {
		for _, segmentSize := range []int{1, 4, 5, 23, 100} {
			t.Run(fmt.Sprintf("%s/segment_%d", name, segmentSize), func(t *testing.T) {
				v := NewValidator(testLogger())
				sequential, err := v.Validate(context.Background(), entries)
				require.NoError(t, err)

				segmented, err := v.ValidateSegmented(context.Background(), entries, segmentSize, 3)
				require.NoError(t, err)

				assert.Equal(t, sequential.IsValid, segmented.IsValid)
				assert.Equal(t, sequential.ChainIntegrity, segmented.ChainIntegrity)
				assert.Equal(t, sequential.RecoveryAnchor, segmented.RecoveryAnchor)
				assert.ElementsMatch(t, sequential.Errors, segmented.Errors)
			})
		}
	}
}

func TestSegmentedBoundaryBreakIsReported(t *testing.T) {
	entries := validChain(t, 10)
	bogus := "0000000000000000000000000000000000000000000000000000000000000000"
	entries[5].PrevHash = &bogus // exactly on a segment boundary

	v := NewValidator(testLogger())
	report, err := v.ValidateSegmented(context.Background(), entries, 5, 2)
	require.NoError(t, err)

	assert.False(t, report.IsValid)
	found := false
	for _, ve := range report.Errors {
		if ve.EntryIndex == 5 && ve.Kind == domain.ErrorChainBreak {
			found = true
		}
	}
	assert.True(t, found, "boundary reconciliation reports the break at index 5")
}

func TestTimelineGapDetection(t *testing.T) {
	store := persistence.NewMemoryStore()
	w := newTestWriter(store)
	ctx := context.Background()

	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	for _, offset := range []time.Duration{0, time.Minute, 3 * time.Hour} {
		tick := base.Add(offset)
		w.now = func() time.Time { return tick }
		_, err := w.Append(ctx, "tenant-a", sampleInput("alice"))
		require.NoError(t, err)
	}

	entries, err := store.ListByTenant(ctx, "tenant-a", time.Time{}, time.Time{})
	require.NoError(t, err)

	report, err := NewValidator(testLogger()).Validate(ctx, entries)
	require.NoError(t, err)

	assert.True(t, report.IsValid, "a gap is a diagnostic, not an integrity error")
	require.Len(t, report.TimelineGaps, 1)
	assert.Equal(t, 1, report.TimelineGaps[0].BeforeIndex)
	assert.Equal(t, 2, report.TimelineGaps[0].AfterIndex)
	assert.Greater(t, report.TimelineGaps[0].Gap, time.Hour)
}

func TestRecoveryAnchorStopsAtFirstCorruption(t *testing.T) {
	entries := validChain(t, 6)
	entries[3].Action = "field.delete"

	report, err := NewValidator(testLogger()).Validate(context.Background(), entries)
	require.NoError(t, err)
	assert.Equal(t, 2, report.RecoveryAnchor)
}

func TestValidateHonorsCancellation(t *testing.T) {
	entries := validChain(t, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewValidator(testLogger()).Validate(ctx, entries)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = NewValidator(testLogger()).ValidateSegmented(ctx, entries, 2, 2)
	assert.ErrorIs(t, err, context.Canceled)
}
