package domain

import (
	"time"
)

// AnomalyType identifies which detector produced a finding.
type AnomalyType string

const (
	AnomalyVolumeSpike         AnomalyType = "volume_spike"
	AnomalyVolumeDrop          AnomalyType = "volume_drop"
	AnomalyUnusualTime         AnomalyType = "unusual_time"
	AnomalyBehavioralDrift     AnomalyType = "behavioral_drift"
	AnomalySuspiciousSequence  AnomalyType = "suspicious_sequence"
	AnomalyVelocity            AnomalyType = "velocity"
	AnomalyPrivilegeEscalation AnomalyType = "privilege_escalation"
	AnomalyDataExfiltration    AnomalyType = "data_exfiltration"
	AnomalyBruteForce          AnomalyType = "brute_force"
	// AnomalyUnclassified is the fallback for findings that do not map
	// to a known detector kind.
	AnomalyUnclassified AnomalyType = "unclassified"
)

// EvidenceEntry is a bounded summary of one entry supporting a finding.
type EvidenceEntry struct {
	EntryID   string    `json:"entry_id"`
	Action    string    `json:"action"`
	CreatedAt time.Time `json:"created_at"`
}

// Anomaly is one detector finding. Findings are advisory and
// ephemeral: produced fresh on every detection run, never persisted as
// part of the audit chain.
type Anomaly struct {
	AnomalyID       string             `json:"anomaly_id"`
	Type            AnomalyType        `json:"type"`
	Severity        Severity           `json:"severity"`
	Description     string             `json:"description"`
	Confidence      float64            `json:"confidence"`
	Timestamp       time.Time          `json:"timestamp"`
	ActorID         *string            `json:"actor_id,omitempty"`
	Resource        string             `json:"resource,omitempty"`
	Evidence        []EvidenceEntry    `json:"evidence"`
	Metrics         map[string]float64 `json:"metrics,omitempty"`
	Recommendations []string           `json:"recommendations"`
}

// ThreatLevel buckets an aggregate threat score.
type ThreatLevel string

const (
	ThreatLow      ThreatLevel = "low"
	ThreatMedium   ThreatLevel = "medium"
	ThreatHigh     ThreatLevel = "high"
	ThreatCritical ThreatLevel = "critical"
)

// DetectionReport is the full outcome of one detection run.
type DetectionReport struct {
	TenantID        string      `json:"tenant_id"`
	WindowHours     int         `json:"window_hours"`
	EntriesAnalyzed int         `json:"entries_analyzed"`
	BaselineActors  int         `json:"baseline_actors"`
	Anomalies       []Anomaly   `json:"anomalies"`
	ThreatScore     float64     `json:"threat_score"`
	ThreatLevel     ThreatLevel `json:"threat_level"`
	GeneratedAt     time.Time   `json:"generated_at"`
}
