// Package detect scores an already-collected audit entry stream for
// anomalous or malicious behavior. Eight independent checks run over a
// recent window against per-actor baselines; their findings are
// unioned and aggregated into a 0-100 threat score. Findings are
// advisory and never persisted as part of the audit chain.
package detect

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/veritrail/veritrail/internal/domain"
)

// severityWeights scale each finding's contribution to the threat
// score; the sum is capped at 100.
var severityWeights = map[domain.Severity]float64{
	domain.SeverityCritical: 25,
	domain.SeverityHigh:     15,
	domain.SeverityMedium:   8,
	domain.SeverityLow:      3,
	domain.SeverityInfo:     1,
}

// Detector runs the check registry. It holds no mutable per-tenant
// state, so one Detector may serve concurrent runs across tenants.
type Detector struct {
	logger *slog.Logger
	cfg    Config
	now    func() time.Time
}

// New creates a Detector with the given policy configuration.
func New(logger *slog.Logger, cfg Config) *Detector {
	return &Detector{logger: logger, cfg: cfg, now: time.Now}
}

// window is the immutable input one detection run hands to each check.
type window struct {
	tenantID  string
	entries   []*domain.AuditEntry
	baselines map[string]*domain.BehaviorBaseline
	hours     int
}

// check is one named detection strategy. The registry is a fixed
// ordered list, not runtime reflection.
type check struct {
	name string
	run  func(ctx context.Context, w *window) ([]domain.Anomaly, error)
}

func (d *Detector) checks() []check {
	return []check{
		{"volume", d.checkVolume},
		{"unusual_time", d.checkUnusualTime},
		{"behavioral_drift", d.checkBehavioralDrift},
		{"suspicious_sequence", d.checkSuspiciousSequence},
		{"velocity", d.checkVelocity},
		{"privilege_escalation", d.checkPrivilegeEscalation},
		{"data_exfiltration", d.checkDataExfiltration},
		{"brute_force", d.checkBruteForce},
	}
}

// Detect runs every check over the window entries and aggregates the
// findings. Checks are isolated: a failing check is logged and
// skipped, never aborting the other seven.
func (d *Detector) Detect(ctx context.Context, entries []*domain.AuditEntry, baselines map[string]*domain.BehaviorBaseline, windowHours int) (*domain.DetectionReport, error) {
	w := &window{
		entries:   entries,
		baselines: baselines,
		hours:     windowHours,
	}
	if len(entries) > 0 {
		w.tenantID = entries[0].TenantID
	}

	var anomalies []domain.Anomaly
	for _, c := range d.checks() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		found, err := c.run(ctx, w)
		if err != nil {
			d.logger.WarnContext(ctx, "detector check failed, skipping",
				slog.String("check", c.name),
				slog.String("tenant_id", w.tenantID),
				slog.String("error", err.Error()))
			continue
		}
		anomalies = append(anomalies, found...)
	}

	score := threatScore(anomalies)
	report := &domain.DetectionReport{
		TenantID:        w.tenantID,
		WindowHours:     windowHours,
		EntriesAnalyzed: len(entries),
		BaselineActors:  len(baselines),
		Anomalies:       anomalies,
		ThreatScore:     score,
		ThreatLevel:     threatLevel(score),
		GeneratedAt:     d.now().UTC(),
	}

	d.logger.InfoContext(ctx, "detection run finished",
		slog.String("tenant_id", w.tenantID),
		slog.Int("entries", len(entries)),
		slog.Int("anomalies", len(anomalies)),
		slog.Float64("threat_score", score),
		slog.String("threat_level", string(report.ThreatLevel)))

	return report, nil
}

// threatScore sums severityWeight × confidence per finding, capped at
// 100.
func threatScore(anomalies []domain.Anomaly) float64 {
	var score float64
	for _, a := range anomalies {
		score += severityWeights[a.Severity] * a.Confidence
	}
	if score > 100 {
		score = 100
	}
	return score
}

func threatLevel(score float64) domain.ThreatLevel {
	switch {
	case score >= 75:
		return domain.ThreatCritical
	case score >= 50:
		return domain.ThreatHigh
	case score >= 25:
		return domain.ThreatMedium
	default:
		return domain.ThreatLow
	}
}

// newAnomaly stamps identity and timestamp on a finding.
func (d *Detector) newAnomaly(kind domain.AnomalyType, severity domain.Severity, description string, confidence float64) domain.Anomaly {
	return domain.Anomaly{
		AnomalyID:       uuid.New().String(),
		Type:            kind,
		Severity:        severity,
		Description:     description,
		Confidence:      clamp01(confidence),
		Timestamp:       d.now().UTC(),
		Recommendations: recommendations[kind],
	}
}

// evidence bounds the supporting entries attached to a finding.
func (d *Detector) evidence(entries []*domain.AuditEntry) []domain.EvidenceEntry {
	n := len(entries)
	if n > d.cfg.MaxEvidence {
		n = d.cfg.MaxEvidence
	}
	out := make([]domain.EvidenceEntry, 0, n)
	for _, e := range entries[:n] {
		out = append(out, domain.EvidenceEntry{
			EntryID:   e.ID,
			Action:    e.Action,
			CreatedAt: e.CreatedAt,
		})
	}
	return out
}

// recommendations are fixed remediation hints per anomaly kind; the
// unclassified fallback keeps downstream rendering total.
var recommendations = map[domain.AnomalyType][]string{
	domain.AnomalyVolumeSpike: {
		"Review the spike hour for bulk or scripted activity.",
		"Confirm whether a batch job or migration explains the volume.",
	},
	domain.AnomalyVolumeDrop: {
		"Check collector and ingestion health for dropped events.",
	},
	domain.AnomalyUnusualTime: {
		"Confirm the actor's working hours or scheduled automation.",
		"Require re-authentication for out-of-hours sessions.",
	},
	domain.AnomalyBehavioralDrift: {
		"Verify recent permission changes for the actor.",
		"Review the newly touched resources for sensitivity.",
	},
	domain.AnomalySuspiciousSequence: {
		"Treat as a possible account takeover; review the full session.",
		"Rotate the actor's credentials if the sequence is unexplained.",
	},
	domain.AnomalyVelocity: {
		"Throttle the actor and check for scripted access.",
	},
	domain.AnomalyPrivilegeEscalation: {
		"Verify the escalation was change-managed and approved.",
		"Audit everything the elevated identity did afterwards.",
	},
	domain.AnomalyDataExfiltration: {
		"Suspend further exports for the actor pending review.",
		"Inventory what data the export actions covered.",
	},
	domain.AnomalyBruteForce: {
		"Block or rate-limit the source IP.",
		"Force a password reset on the targeted accounts.",
	},
	domain.AnomalyUnclassified: {
		"Review the finding manually.",
	},
}
