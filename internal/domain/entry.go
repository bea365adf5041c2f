package domain

import (
	"time"
)

// ActorType identifies what kind of principal performed an action.
type ActorType string

const (
	ActorUser    ActorType = "user"
	ActorService ActorType = "service"
	ActorSystem  ActorType = "system"
)

// Valid reports whether t is one of the known actor types.
func (t ActorType) Valid() bool {
	switch t {
	case ActorUser, ActorService, ActorSystem:
		return true
	}
	return false
}

// AuditEntry is one immutable record in a tenant's hash chain. Once
// persisted, no field is ever mutated; integrity rests on EntryHash
// covering every field that participates in the canonical string.
//
// ActorID is nil for system-initiated events. PrevHash is nil only for
// the first entry of a tenant.
type AuditEntry struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"tenant_id"`
	ActorID       *string   `json:"actor_id"`
	ActorType     ActorType `json:"actor_type"`
	Action        string    `json:"action"`
	ResourceType  string    `json:"resource_type"`
	ResourceID    string    `json:"resource_id"`
	CorrelationID string    `json:"correlation_id"`
	IP            string    `json:"ip"`
	UserAgent     string    `json:"user_agent"`
	DetailsJSON   string    `json:"details_json"`
	PrevHash      *string   `json:"prev_hash"`
	EntryHash     string    `json:"entry_hash"`
	CreatedAt     time.Time `json:"created_at"`
	Version       int       `json:"version"`
}

// Actor returns the actor id or the empty string for system events.
func (e *AuditEntry) Actor() string {
	if e.ActorID == nil {
		return ""
	}
	return *e.ActorID
}

// NewEntryInput carries the caller-supplied fields for one append.
// The writer computes ID, DetailsJSON, PrevHash, EntryHash, CreatedAt
// and Version itself; none of them can be forged by the caller.
type NewEntryInput struct {
	ActorID       *string
	ActorType     ActorType
	Action        string
	ResourceType  string
	ResourceID    string
	CorrelationID string
	IP            string
	UserAgent     string
	Details       map[string]any
}
