package detect

import (
	"time"
)

// Config carries every detection threshold and action set. Thresholds
// are policy, not mechanism: deployments tune them, the algorithms
// (windowed counting, z-scores, subsequence containment) stay fixed.
type Config struct {
	// VolumeZThreshold is the z-score beyond which an hourly bucket is
	// anomalous (spike above, drop below).
	VolumeZThreshold float64

	// OffHours are the local-UTC hours treated as outside business
	// hours; UnusualTimeMinEvents such events by one actor raise a
	// finding.
	OffHours             []int
	UnusualTimeMinEvents int

	// DriftNewResourceThreshold is how many never-seen resources an
	// actor may touch in a window before it counts as drift.
	DriftNewResourceThreshold int

	// SuspiciousSequences are known bad action subsequences, matched
	// with non-contiguous containment per actor.
	SuspiciousSequences [][]string

	// VelocityWindow / VelocityThreshold: at least this many events by
	// one actor inside one sliding window raise a finding.
	VelocityWindow    time.Duration
	VelocityThreshold int

	// PrivilegeActions are always critical, regardless of frequency.
	PrivilegeActions []string

	// ExfiltrationActions counted per actor against the threshold.
	ExfiltrationActions   []string
	ExfiltrationThreshold int

	// FailedLoginActions grouped by source IP; BruteForceThreshold
	// failures inside BruteForceWindow raise a finding.
	FailedLoginActions  []string
	BruteForceThreshold int
	BruteForceWindow    time.Duration

	// TypicalHourShare is the fraction of historical volume an hour
	// must cover to belong to an actor's baseline.
	TypicalHourShare float64
	// SigmaMultiplier widens the baseline volume bounds (mean ± kσ).
	SigmaMultiplier float64

	// MaxEvidence bounds the supporting entries attached per finding.
	MaxEvidence int
}

// DefaultConfig returns the shipped policy defaults.
func DefaultConfig() Config {
	return Config{
		VolumeZThreshold:          3,
		OffHours:                  []int{0, 1, 2, 3, 4, 5},
		UnusualTimeMinEvents:      3,
		DriftNewResourceThreshold: 5,
		SuspiciousSequences: [][]string{
			{"auth.login.failed", "auth.login.failed", "auth.login.failed", "auth.login.success"},
			{"permission.grant", "data.export"},
			{"role.admin.assign", "data.bulk_download"},
		},
		VelocityWindow:    time.Minute,
		VelocityThreshold: 10,
		PrivilegeActions: []string{
			"role.admin.assign",
			"role.admin.grant",
			"permission.elevate",
			"access.override",
		},
		ExfiltrationActions: []string{
			"data.export",
			"data.bulk_download",
			"report.export",
			"backup.download",
		},
		ExfiltrationThreshold: 3,
		FailedLoginActions:    []string{"auth.login.failed"},
		BruteForceThreshold:   5,
		BruteForceWindow:      300 * time.Second,
		TypicalHourShare:      0.05,
		SigmaMultiplier:       3,
		MaxEvidence:           10,
	}
}

func (c Config) offHourSet() map[int]bool {
	set := make(map[int]bool, len(c.OffHours))
	for _, h := range c.OffHours {
		set[h] = true
	}
	return set
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}
