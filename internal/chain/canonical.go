// Package chain implements the append path and the verification path
// of the tenant-partitioned audit hash chain. Every entry's hash is
// SHA-256(prev_hash | canonical), so tampering with any persisted
// field breaks the chain from that entry forward.
package chain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/veritrail/veritrail/internal/domain"
)

// canonicalTimeLayout is fixed at microsecond precision: the finest
// resolution the backing store round-trips losslessly, so a stored
// entry always reproduces the exact string it was hashed over.
const canonicalTimeLayout = "2006-01-02T15:04:05.000000Z07:00"

// Canonical builds the deterministic hash input for an entry: a
// pipe-delimited concatenation of exactly the immutable fields, in
// fixed order. Field names, order and delimiter are a compatibility
// contract; changing any of them breaks re-verification of every
// historically stored hash.
func Canonical(e *domain.AuditEntry) string {
	var b strings.Builder
	b.WriteString(e.TenantID)
	b.WriteByte('|')
	b.WriteString(e.Actor())
	b.WriteByte('|')
	b.WriteString(string(e.ActorType))
	b.WriteByte('|')
	b.WriteString(e.Action)
	b.WriteByte('|')
	b.WriteString(e.ResourceType)
	b.WriteByte('|')
	b.WriteString(e.ResourceID)
	b.WriteByte('|')
	b.WriteString(e.CorrelationID)
	b.WriteByte('|')
	b.WriteString(e.DetailsJSON)
	b.WriteByte('|')
	b.WriteString(e.CreatedAt.UTC().Format(canonicalTimeLayout))
	return b.String()
}

// ComputeHash returns hex SHA-256 over the previous hash (or the empty
// string for a chain's first entry) concatenated with the canonical
// string.
func ComputeHash(prevHash *string, canonical string) string {
	h := sha256.New()
	if prevHash != nil {
		h.Write([]byte(*prevHash))
	}
	h.Write([]byte(canonical))
	return hex.EncodeToString(h.Sum(nil))
}

// MarshalDetails serializes a redacted details map with stable key
// ordering. encoding/json sorts map keys, which is exactly the
// determinism the canonical string needs.
func MarshalDetails(details map[string]any) (string, error) {
	if len(details) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return "", fmt.Errorf("serializing details: %w", err)
	}
	return string(raw), nil
}

// TruncateCreatedAt clamps a timestamp to canonical precision.
func TruncateCreatedAt(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
