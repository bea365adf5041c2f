package detect

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/veritrail/veritrail/internal/domain"
)

// groupByActor splits window entries per actor, preserving chronology.
// System-initiated entries (no actor) are left out; actor-centric
// checks have nothing to say about them.
func groupByActor(entries []*domain.AuditEntry) map[string][]*domain.AuditEntry {
	groups := make(map[string][]*domain.AuditEntry)
	for _, e := range entries {
		if actor := e.Actor(); actor != "" {
			groups[actor] = append(groups[actor], e)
		}
	}
	return groups
}

// sortedActors yields a deterministic iteration order over groups.
func sortedActors(groups map[string][]*domain.AuditEntry) []string {
	actors := make([]string, 0, len(groups))
	for actor := range groups {
		actors = append(actors, actor)
	}
	sort.Strings(actors)
	return actors
}

// checkVolume finds hourly buckets whose tenant-wide event count sits
// beyond the z-score threshold, and actors whose window volume exceeds
// their baseline upper bound.
func (d *Detector) checkVolume(_ context.Context, w *window) ([]domain.Anomaly, error) {
	var anomalies []domain.Anomaly

	buckets := make(map[time.Time][]*domain.AuditEntry)
	for _, e := range w.entries {
		hour := e.CreatedAt.UTC().Truncate(time.Hour)
		buckets[hour] = append(buckets[hour], e)
	}

	if len(buckets) >= 2 {
		hours := make([]time.Time, 0, len(buckets))
		counts := make([]float64, 0, len(buckets))
		for hour := range buckets {
			hours = append(hours, hour)
		}
		sort.Slice(hours, func(i, j int) bool { return hours[i].Before(hours[j]) })
		for _, hour := range hours {
			counts = append(counts, float64(len(buckets[hour])))
		}

		m := mean(counts)
		sd := stddev(counts, m)
		if sd > 0 {
			for i, hour := range hours {
				z := (counts[i] - m) / sd
				switch {
				case z > d.cfg.VolumeZThreshold:
					severity := domain.SeverityMedium
					if z > 2*d.cfg.VolumeZThreshold {
						severity = domain.SeverityHigh
					}
					a := d.newAnomaly(domain.AnomalyVolumeSpike, severity,
						fmt.Sprintf("hourly event volume spiked to %.0f (z=%.1f) at %s", counts[i], z, hour.Format(time.RFC3339)),
						z/(2*d.cfg.VolumeZThreshold))
					a.Evidence = d.evidence(buckets[hour])
					a.Metrics = map[string]float64{"count": counts[i], "mean": m, "std": sd, "z_score": z}
					anomalies = append(anomalies, a)
				case z < -d.cfg.VolumeZThreshold:
					a := d.newAnomaly(domain.AnomalyVolumeDrop, domain.SeverityLow,
						fmt.Sprintf("hourly event volume dropped to %.0f (z=%.1f) at %s", counts[i], z, hour.Format(time.RFC3339)),
						-z/(2*d.cfg.VolumeZThreshold))
					a.Metrics = map[string]float64{"count": counts[i], "mean": m, "std": sd, "z_score": z}
					anomalies = append(anomalies, a)
				}
			}
		}
	}

	// Baseline comparison: exceeding a full day's upper bound inside a
	// shorter window is a spike regardless of bucket shape.
	groups := groupByActor(w.entries)
	for _, actor := range sortedActors(groups) {
		baseline, ok := w.baselines[actor]
		if !ok || baseline.VolumeUpperBound <= 0 {
			continue
		}
		count := float64(len(groups[actor]))
		if count < baseline.VolumeUpperBound {
			continue
		}
		ratio := count / baseline.VolumeUpperBound
		severity := domain.SeverityMedium
		if ratio >= 2 {
			severity = domain.SeverityHigh
		}
		actorID := actor
		a := d.newAnomaly(domain.AnomalyVolumeSpike, severity,
			fmt.Sprintf("actor %s produced %.0f events in the window, above the baseline daily upper bound %.1f", actor, count, baseline.VolumeUpperBound),
			ratio/3)
		a.ActorID = &actorID
		a.Evidence = d.evidence(groups[actor])
		a.Metrics = map[string]float64{
			"count":       count,
			"upper_bound": baseline.VolumeUpperBound,
			"avg_daily":   baseline.AvgDailyEvents,
			"std_daily":   baseline.StdDailyEvents,
		}
		anomalies = append(anomalies, a)
	}

	return anomalies, nil
}

// checkUnusualTime flags actors with repeated activity in off hours.
func (d *Detector) checkUnusualTime(_ context.Context, w *window) ([]domain.Anomaly, error) {
	offHours := d.cfg.offHourSet()
	groups := groupByActor(w.entries)

	var anomalies []domain.Anomaly
	for _, actor := range sortedActors(groups) {
		var offEntries []*domain.AuditEntry
		for _, e := range groups[actor] {
			if offHours[e.CreatedAt.UTC().Hour()] {
				offEntries = append(offEntries, e)
			}
		}
		if len(offEntries) < d.cfg.UnusualTimeMinEvents {
			continue
		}
		actorID := actor
		a := d.newAnomaly(domain.AnomalyUnusualTime, domain.SeverityLow,
			fmt.Sprintf("actor %s generated %d events outside business hours", actor, len(offEntries)),
			float64(len(offEntries))/float64(2*d.cfg.UnusualTimeMinEvents))
		a.ActorID = &actorID
		a.Evidence = d.evidence(offEntries)
		a.Metrics = map[string]float64{"off_hour_events": float64(len(offEntries))}
		anomalies = append(anomalies, a)
	}
	return anomalies, nil
}

// checkBehavioralDrift flags actions or resources absent from an
// actor's baseline sets.
func (d *Detector) checkBehavioralDrift(_ context.Context, w *window) ([]domain.Anomaly, error) {
	groups := groupByActor(w.entries)

	var anomalies []domain.Anomaly
	for _, actor := range sortedActors(groups) {
		baseline, ok := w.baselines[actor]
		if !ok {
			continue
		}

		newActions := make(map[string]bool)
		newResources := make(map[string]bool)
		var driftEntries []*domain.AuditEntry
		for _, e := range groups[actor] {
			drifted := false
			if !baseline.TypicalActions[e.Action] {
				newActions[e.Action] = true
				drifted = true
			}
			if e.ResourceType != "" && !baseline.TypicalResources[e.ResourceType] {
				newResources[e.ResourceType] = true
				drifted = true
			}
			if drifted {
				driftEntries = append(driftEntries, e)
			}
		}

		actorID := actor
		if len(newResources) > d.cfg.DriftNewResourceThreshold {
			a := d.newAnomaly(domain.AnomalyBehavioralDrift, domain.SeverityMedium,
				fmt.Sprintf("actor %s touched %d resource types absent from its baseline", actor, len(newResources)),
				float64(len(newResources))/float64(2*d.cfg.DriftNewResourceThreshold))
			a.ActorID = &actorID
			a.Evidence = d.evidence(driftEntries)
			a.Metrics = map[string]float64{"new_resources": float64(len(newResources))}
			anomalies = append(anomalies, a)
		}
		if len(newActions) > 0 {
			a := d.newAnomaly(domain.AnomalyBehavioralDrift, domain.SeverityLow,
				fmt.Sprintf("actor %s performed %d actions absent from its baseline", actor, len(newActions)),
				float64(len(newActions))/5)
			a.ActorID = &actorID
			a.Evidence = d.evidence(driftEntries)
			a.Metrics = map[string]float64{"new_actions": float64(len(newActions))}
			anomalies = append(anomalies, a)
		}
	}
	return anomalies, nil
}

// checkSuspiciousSequence matches known bad action subsequences, not
// required to be contiguous, within one actor's chronological actions.
func (d *Detector) checkSuspiciousSequence(_ context.Context, w *window) ([]domain.Anomaly, error) {
	groups := groupByActor(w.entries)

	var anomalies []domain.Anomaly
	for _, actor := range sortedActors(groups) {
		entries := groups[actor]
		for _, sequence := range d.cfg.SuspiciousSequences {
			matched := matchSubsequence(entries, sequence)
			if matched == nil {
				continue
			}
			actorID := actor
			a := d.newAnomaly(domain.AnomalySuspiciousSequence, domain.SeverityHigh,
				fmt.Sprintf("actor %s performed the suspicious action sequence %v", actor, sequence),
				0.9)
			a.ActorID = &actorID
			a.Evidence = d.evidence(matched)
			anomalies = append(anomalies, a)
		}
	}
	return anomalies, nil
}

// matchSubsequence returns the entries realizing sequence as a
// (possibly non-contiguous) subsequence of the entries' actions, or
// nil when there is no match.
func matchSubsequence(entries []*domain.AuditEntry, sequence []string) []*domain.AuditEntry {
	if len(sequence) == 0 {
		return nil
	}
	matched := make([]*domain.AuditEntry, 0, len(sequence))
	next := 0
	for _, e := range entries {
		if e.Action == sequence[next] {
			matched = append(matched, e)
			next++
			if next == len(sequence) {
				return matched
			}
		}
	}
	return nil
}

// checkVelocity slides a one-minute window over each actor's
// timestamps; the first window holding the threshold raises one
// finding per actor per run.
func (d *Detector) checkVelocity(_ context.Context, w *window) ([]domain.Anomaly, error) {
	groups := groupByActor(w.entries)

	var anomalies []domain.Anomaly
	for _, actor := range sortedActors(groups) {
		entries := groups[actor]
		lo := 0
		for hi := range entries {
			for entries[hi].CreatedAt.Sub(entries[lo].CreatedAt) > d.cfg.VelocityWindow {
				lo++
			}
			count := hi - lo + 1
			if count < d.cfg.VelocityThreshold {
				continue
			}
			actorID := actor
			a := d.newAnomaly(domain.AnomalyVelocity, domain.SeverityHigh,
				fmt.Sprintf("actor %s generated %d events within %s", actor, count, d.cfg.VelocityWindow),
				float64(count)/float64(2*d.cfg.VelocityThreshold))
			a.ActorID = &actorID
			a.Evidence = d.evidence(entries[lo : hi+1])
			a.Metrics = map[string]float64{"events_in_window": float64(count)}
			anomalies = append(anomalies, a)
			break
		}
	}
	return anomalies, nil
}

// checkPrivilegeEscalation treats every privileged action as critical,
// regardless of baseline or frequency.
func (d *Detector) checkPrivilegeEscalation(_ context.Context, w *window) ([]domain.Anomaly, error) {
	privileged := toSet(d.cfg.PrivilegeActions)

	var anomalies []domain.Anomaly
	for _, e := range w.entries {
		if !privileged[e.Action] {
			continue
		}
		a := d.newAnomaly(domain.AnomalyPrivilegeEscalation, domain.SeverityCritical,
			fmt.Sprintf("privileged action %s on %s/%s", e.Action, e.ResourceType, e.ResourceID),
			1.0)
		if actor := e.Actor(); actor != "" {
			actorID := actor
			a.ActorID = &actorID
		}
		a.Resource = e.ResourceID
		a.Evidence = d.evidence([]*domain.AuditEntry{e})
		anomalies = append(anomalies, a)
	}
	return anomalies, nil
}

// checkDataExfiltration counts export and bulk-download actions per
// actor against the threshold.
func (d *Detector) checkDataExfiltration(_ context.Context, w *window) ([]domain.Anomaly, error) {
	exports := toSet(d.cfg.ExfiltrationActions)
	groups := groupByActor(w.entries)

	var anomalies []domain.Anomaly
	for _, actor := range sortedActors(groups) {
		var exportEntries []*domain.AuditEntry
		for _, e := range groups[actor] {
			if exports[e.Action] {
				exportEntries = append(exportEntries, e)
			}
		}
		if len(exportEntries) < d.cfg.ExfiltrationThreshold {
			continue
		}
		actorID := actor
		a := d.newAnomaly(domain.AnomalyDataExfiltration, domain.SeverityCritical,
			fmt.Sprintf("actor %s performed %d export actions within the window", actor, len(exportEntries)),
			float64(len(exportEntries))/float64(2*d.cfg.ExfiltrationThreshold))
		a.ActorID = &actorID
		a.Evidence = d.evidence(exportEntries)
		a.Metrics = map[string]float64{"export_actions": float64(len(exportEntries))}
		anomalies = append(anomalies, a)
	}
	return anomalies, nil
}

// checkBruteForce groups failed logins by source IP and slides the
// configured window over each IP's timestamps.
func (d *Detector) checkBruteForce(_ context.Context, w *window) ([]domain.Anomaly, error) {
	failed := toSet(d.cfg.FailedLoginActions)

	byIP := make(map[string][]*domain.AuditEntry)
	for _, e := range w.entries {
		if failed[e.Action] && e.IP != "" {
			byIP[e.IP] = append(byIP[e.IP], e)
		}
	}

	ips := make([]string, 0, len(byIP))
	for ip := range byIP {
		ips = append(ips, ip)
	}
	sort.Strings(ips)

	var anomalies []domain.Anomaly
	for _, ip := range ips {
		entries := byIP[ip]
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].CreatedAt.Before(entries[j].CreatedAt)
		})
		lo := 0
		for hi := range entries {
			for entries[hi].CreatedAt.Sub(entries[lo].CreatedAt) > d.cfg.BruteForceWindow {
				lo++
			}
			count := hi - lo + 1
			if count < d.cfg.BruteForceThreshold {
				continue
			}
			a := d.newAnomaly(domain.AnomalyBruteForce, domain.SeverityCritical,
				fmt.Sprintf("%d failed logins from %s within %s", count, ip, d.cfg.BruteForceWindow),
				float64(count)/float64(2*d.cfg.BruteForceThreshold))
			a.Resource = ip
			a.Evidence = d.evidence(entries[lo : hi+1])
			a.Metrics = map[string]float64{"failed_logins": float64(count)}
			anomalies = append(anomalies, a)
			break
		}
	}
	return anomalies, nil
}
