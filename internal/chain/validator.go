package chain

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/veritrail/veritrail/internal/domain"
	"github.com/veritrail/veritrail/pkg/cache"
	"github.com/veritrail/veritrail/pkg/execution"
)

const (
	// DefaultSegmentSize is the number of entries one validation
	// worker recomputes before boundary reconciliation.
	DefaultSegmentSize = 1000
	// DefaultParallelism bounds concurrent segment workers.
	DefaultParallelism = 4
	// DefaultGapThreshold flags adjacent entries further apart than
	// this; a gap may mean missing data rather than tampering.
	DefaultGapThreshold = time.Hour
)

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithGapThreshold overrides the timeline-gap threshold.
func WithGapThreshold(d time.Duration) ValidatorOption {
	return func(v *Validator) {
		if d > 0 {
			v.gapThreshold = d
		}
	}
}

// Validator replays the writer's canonical/hash computation over a
// persisted sequence and reports every break and mismatch it finds.
// It is read-only: integrity findings are data in the report, never
// errors, so one pass surfaces every problem.
type Validator struct {
	logger       *slog.Logger
	gapThreshold time.Duration

	// hashCache memoizes (prev_hash, canonical) pairs across segment
	// workers. Insert-if-absent is atomic; a miss costs one SHA-256.
	hashCache *cache.Memory[string, string]
}

// NewValidator creates a Validator.
func NewValidator(logger *slog.Logger, opts ...ValidatorOption) *Validator {
	v := &Validator{
		logger:       logger,
		gapThreshold: DefaultGapThreshold,
		hashCache:    cache.NewMemory[string, string](),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate verifies a tenant's chronologically ordered entries
// sequentially. The entry list must be fixed for the duration of the
// run; a write arriving mid-validation is simply not part of it.
func (v *Validator) Validate(ctx context.Context, entries []*domain.AuditEntry) (*domain.ValidationReport, error) {
	started := time.Now()

	var errs []domain.ValidationError
	for i, e := range entries {
		if err := execution.Checkpoint(ctx); err != nil {
			return nil, err
		}
		if i == 0 {
			if e.PrevHash != nil {
				errs = append(errs, genesisError(e))
			}
		} else {
			errs = append(errs, v.continuityErrors(i, e, entries[i-1])...)
		}
		errs = append(errs, v.recomputeErrors(ctx, i, e)...)
	}

	return v.buildReport(ctx, entries, errs, 1, started)
}

// ValidateSegmented verifies the same sequence by splitting it into
// fixed-size segments checked in parallel. Each segment trusts its
// first entry's stored prev_hash while running; boundaries are
// reconciled once all segments finish, preserving a single sequential
// chain of trust. The report is identical to the sequential one.
func (v *Validator) ValidateSegmented(ctx context.Context, entries []*domain.AuditEntry, segmentSize, parallelism int) (*domain.ValidationReport, error) {
	started := time.Now()

	if segmentSize <= 0 {
		segmentSize = DefaultSegmentSize
	}
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}

	segmentCount := (len(entries) + segmentSize - 1) / segmentSize
	if segmentCount == 0 {
		segmentCount = 1
	}
	segmentErrs := make([][]domain.ValidationError, segmentCount)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	for seg := 0; seg < segmentCount; seg++ {
		start := seg * segmentSize
		end := min(start+segmentSize, len(entries))
		g.Go(func() error {
			var errs []domain.ValidationError
			for i := start; i < end; i++ {
				if err := execution.Checkpoint(gctx); err != nil {
					return err
				}
				e := entries[i]
				if i == 0 {
					if e.PrevHash != nil {
						errs = append(errs, genesisError(e))
					}
				} else if i > start {
					errs = append(errs, v.continuityErrors(i, e, entries[i-1])...)
				}
				errs = append(errs, v.recomputeErrors(gctx, i, e)...)
			}
			segmentErrs[seg] = errs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var errs []domain.ValidationError
	for seg, se := range segmentErrs {
		errs = append(errs, se...)
		// Boundary reconciliation: segment k's first entry must link
		// to segment k-1's last entry.
		if seg > 0 {
			i := seg * segmentSize
			errs = append(errs, v.continuityErrors(i, entries[i], entries[i-1])...)
		}
	}

	sort.SliceStable(errs, func(a, b int) bool {
		return errs[a].EntryIndex < errs[b].EntryIndex
	})

	return v.buildReport(ctx, entries, errs, segmentCount, started)
}

// genesisError covers the one automatically recoverable finding: a
// non-null prev_hash on a tenant's very first entry.
func genesisError(e *domain.AuditEntry) domain.ValidationError {
	return domain.ValidationError{
		EntryIndex:       0,
		EntryID:          e.ID,
		Kind:             domain.ErrorChainBreak,
		Severity:         domain.SeverityHigh,
		Description:      "first entry of the chain carries a non-null prev_hash",
		ExpectedValue:    "",
		ActualValue:      *e.PrevHash,
		Recoverable:      true,
		RepairSuggestion: "null out prev_hash on the first entry and recompute its hash",
	}
}

func (v *Validator) continuityErrors(i int, e, prev *domain.AuditEntry) []domain.ValidationError {
	expected := prev.EntryHash
	actual := ""
	if e.PrevHash != nil {
		actual = *e.PrevHash
	}
	if actual == expected {
		return nil
	}
	return []domain.ValidationError{{
		EntryIndex:    i,
		EntryID:       e.ID,
		Kind:          domain.ErrorChainBreak,
		Severity:      domain.SeverityCritical,
		Description:   "prev_hash does not match the previous entry's hash: entries missing, reordered, or spliced",
		ExpectedValue: expected,
		ActualValue:   actual,
		Recoverable:   false,
	}}
}

func (v *Validator) recomputeErrors(ctx context.Context, i int, e *domain.AuditEntry) []domain.ValidationError {
	recomputed := v.cachedHash(ctx, e)
	if recomputed == e.EntryHash {
		return nil
	}
	return []domain.ValidationError{{
		EntryIndex:    i,
		EntryID:       e.ID,
		Kind:          domain.ErrorHashMismatch,
		Severity:      domain.SeverityCritical,
		Description:   "recomputed hash differs from stored entry_hash: a canonical field was altered after persistence",
		ExpectedValue: recomputed,
		ActualValue:   e.EntryHash,
		Recoverable:   false,
	}}
}

// cachedHash recomputes an entry's hash from its own stored fields,
// memoizing identical (prev_hash, canonical) pairs across workers.
func (v *Validator) cachedHash(ctx context.Context, e *domain.AuditEntry) string {
	canonical := Canonical(e)
	key := ""
	if e.PrevHash != nil {
		key = *e.PrevHash
	}
	key += "\x00" + canonical

	if hash, ok := v.hashCache.Get(ctx, key); ok {
		return hash
	}
	hash := ComputeHash(e.PrevHash, canonical)
	v.hashCache.GetOrSet(ctx, key, hash, 0)
	return hash
}

func (v *Validator) buildReport(ctx context.Context, entries []*domain.AuditEntry, errs []domain.ValidationError, segmentCount int, started time.Time) (*domain.ValidationReport, error) {
	report := &domain.ValidationReport{
		IsValid:        len(errs) == 0,
		TotalEntries:   len(entries),
		Errors:         errs,
		ChainIntegrity: 100,
		RecoveryAnchor: recoveryAnchor(entries),
		SegmentCount:   segmentCount,
		ValidatedAt:    time.Now().UTC(),
	}
	if len(entries) > 0 {
		report.TenantID = entries[0].TenantID
	}

	errorIndices := make(map[int]bool, len(errs))
	for _, ve := range errs {
		errorIndices[ve.EntryIndex] = true
	}
	if len(entries) > 0 {
		report.ChainIntegrity = float64(len(entries)-len(errorIndices)) / float64(len(entries)) * 100
	}

	report.SuspiciousEntries = suspiciousEntries(entries, errs)
	report.TimelineGaps = v.timelineGaps(entries)
	report.Duration = time.Since(started)

	v.logger.InfoContext(ctx, "chain validation finished",
		slog.String("tenant_id", report.TenantID),
		slog.Int("total_entries", report.TotalEntries),
		slog.Int("errors", len(errs)),
		slog.Float64("chain_integrity", report.ChainIntegrity),
		slog.Int("segments", segmentCount),
		slog.Duration("duration", report.Duration))

	return report, nil
}

// suspiciousEntries summarizes the entry behind each error index for
// operator review; one summary per index, first error's kind wins.
func suspiciousEntries(entries []*domain.AuditEntry, errs []domain.ValidationError) []domain.SuspiciousEntry {
	seen := make(map[int]bool, len(errs))
	var out []domain.SuspiciousEntry
	for _, ve := range errs {
		if seen[ve.EntryIndex] || ve.EntryIndex >= len(entries) {
			continue
		}
		seen[ve.EntryIndex] = true
		e := entries[ve.EntryIndex]
		out = append(out, domain.SuspiciousEntry{
			EntryIndex: ve.EntryIndex,
			EntryID:    e.ID,
			ActorID:    e.Actor(),
			Action:     e.Action,
			CreatedAt:  e.CreatedAt,
			Reason:     fmt.Sprintf("%s: %s", ve.Kind, ve.Description),
		})
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].EntryIndex < out[b].EntryIndex
	})
	return out
}

func (v *Validator) timelineGaps(entries []*domain.AuditEntry) []domain.TimelineGap {
	var gaps []domain.TimelineGap
	for i := 1; i < len(entries); i++ {
		gap := entries[i].CreatedAt.Sub(entries[i-1].CreatedAt)
		if gap > v.gapThreshold {
			gaps = append(gaps, domain.TimelineGap{
				BeforeIndex: i - 1,
				AfterIndex:  i,
				BeforeID:    entries[i-1].ID,
				AfterID:     entries[i].ID,
				Gap:         gap,
			})
		}
	}
	return gaps
}

// recoveryAnchor returns the last index of the contiguous prefix on
// which both hash recomputation and chain continuity hold: the last
// point from which a partially corrupt chain can be safely rebuilt.
// Returns -1 when even the first entry fails.
func recoveryAnchor(entries []*domain.AuditEntry) int {
	anchor := -1
	for i, e := range entries {
		if i == 0 {
			if e.PrevHash != nil {
				break
			}
		} else {
			if e.PrevHash == nil || *e.PrevHash != entries[i-1].EntryHash {
				break
			}
		}
		if ComputeHash(e.PrevHash, Canonical(e)) != e.EntryHash {
			break
		}
		anchor = i
	}
	return anchor
}
