package domain

import (
	"time"
)

// ErrorKind classifies an integrity finding.
type ErrorKind string

const (
	// ErrorChainBreak means an entry's PrevHash does not equal the
	// previous entry's EntryHash: entries are missing, reordered, or a
	// chain was spliced.
	ErrorChainBreak ErrorKind = "chain_break"
	// ErrorHashMismatch means the recomputed hash differs from the
	// stored EntryHash: a canonical field was altered after the fact.
	// This is the strongest tamper signal.
	ErrorHashMismatch ErrorKind = "hash_mismatch"
)

// Severity ranks findings from both the validator and the detector.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ValidationError is one integrity finding. Findings are report data,
// never Go errors: a single validation run surfaces every problem.
type ValidationError struct {
	EntryIndex       int       `json:"entry_index"`
	EntryID          string    `json:"entry_id"`
	Kind             ErrorKind `json:"error_type"`
	Severity         Severity  `json:"severity"`
	Description      string    `json:"description"`
	ExpectedValue    string    `json:"expected_value"`
	ActualValue      string    `json:"actual_value"`
	Recoverable      bool      `json:"recoverable"`
	RepairSuggestion string    `json:"repair_suggestion,omitempty"`
}

// SuspiciousEntry summarizes an entry sitting at an error index, for
// operator review.
type SuspiciousEntry struct {
	EntryIndex int       `json:"entry_index"`
	EntryID    string    `json:"entry_id"`
	ActorID    string    `json:"actor_id"`
	Action     string    `json:"action"`
	CreatedAt  time.Time `json:"created_at"`
	Reason     string    `json:"reason"`
}

// TimelineGap marks two chronologically adjacent entries separated by
// more than the configured gap threshold. A gap may indicate missing
// data rather than tampering.
type TimelineGap struct {
	BeforeIndex int           `json:"before_index"`
	AfterIndex  int           `json:"after_index"`
	BeforeID    string        `json:"before_id"`
	AfterID     string        `json:"after_id"`
	Gap         time.Duration `json:"gap"`
}

// ValidationReport is the full outcome of one validation pass.
// RecoveryAnchor is the last index at which both hash recomputation and
// chain continuity hold, or -1 when even the first entry fails.
type ValidationReport struct {
	TenantID          string            `json:"tenant_id"`
	IsValid           bool              `json:"is_valid"`
	TotalEntries      int               `json:"total_entries"`
	Errors            []ValidationError `json:"errors"`
	ChainIntegrity    float64           `json:"chain_integrity"`
	SuspiciousEntries []SuspiciousEntry `json:"suspicious_entries"`
	TimelineGaps      []TimelineGap     `json:"timeline_gaps"`
	RecoveryAnchor    int               `json:"recovery_anchor"`
	SegmentCount      int               `json:"segment_count"`
	Duration          time.Duration     `json:"duration"`
	ValidatedAt       time.Time         `json:"validated_at"`
}
