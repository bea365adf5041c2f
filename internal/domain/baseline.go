package domain

// BehaviorBaseline summarizes one actor's historical activity. It is
// derived data: recomputable from history at any time, never part of
// the audit chain, with no lifecycle beyond stale-or-fresh.
type BehaviorBaseline struct {
	ActorID            string          `json:"actor_id"`
	AvgDailyEvents     float64         `json:"avg_daily_events"`
	StdDailyEvents     float64         `json:"std_daily_events"`
	TypicalHours       map[int]bool    `json:"typical_hours"`
	TypicalActions     map[string]bool `json:"typical_actions"`
	TypicalResources   map[string]bool `json:"typical_resources"`
	VolumeUpperBound   float64         `json:"volume_upper_bound"`
	VolumeLowerBound   float64         `json:"volume_lower_bound"`
	DataPoints         int             `json:"data_points"`
	BaselinePeriodDays int             `json:"baseline_period_days"`
}
