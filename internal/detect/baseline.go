package detect

import (
	"context"
	"log/slog"

	"github.com/veritrail/veritrail/internal/domain"
	"github.com/veritrail/veritrail/pkg/execution"
)

// BuildBaselines derives one BehaviorBaseline per actor from a
// historical, chronologically ordered entry sequence. System-initiated
// entries (nil actor) carry no actor behavior and are skipped.
// Baselines are recomputable at any time and never authoritative.
func (d *Detector) BuildBaselines(ctx context.Context, entries []*domain.AuditEntry, periodDays int) (map[string]*domain.BehaviorBaseline, error) {
	type actorHistory struct {
		dailyCounts map[string]int
		hourCounts  map[int]int
		actions     map[string]bool
		resources   map[string]bool
		total       int
	}

	histories := make(map[string]*actorHistory)
	for _, e := range entries {
		if err := execution.Checkpoint(ctx); err != nil {
			return nil, err
		}
		actor := e.Actor()
		if actor == "" {
			continue
		}
		h, ok := histories[actor]
		if !ok {
			h = &actorHistory{
				dailyCounts: make(map[string]int),
				hourCounts:  make(map[int]int),
				actions:     make(map[string]bool),
				resources:   make(map[string]bool),
			}
			histories[actor] = h
		}
		created := e.CreatedAt.UTC()
		h.dailyCounts[created.Format("2006-01-02")]++
		h.hourCounts[created.Hour()]++
		h.actions[e.Action] = true
		if e.ResourceType != "" {
			h.resources[e.ResourceType] = true
		}
		h.total++
	}

	baselines := make(map[string]*domain.BehaviorBaseline, len(histories))
	for actor, h := range histories {
		counts := make([]float64, 0, len(h.dailyCounts))
		for _, c := range h.dailyCounts {
			counts = append(counts, float64(c))
		}
		avg := mean(counts)
		std := stddev(counts, avg)

		typicalHours := make(map[int]bool)
		for hour, count := range h.hourCounts {
			if float64(count) >= d.cfg.TypicalHourShare*float64(h.total) {
				typicalHours[hour] = true
			}
		}

		lower := avg - d.cfg.SigmaMultiplier*std
		if lower < 0 {
			lower = 0
		}
		baselines[actor] = &domain.BehaviorBaseline{
			ActorID:            actor,
			AvgDailyEvents:     avg,
			StdDailyEvents:     std,
			TypicalHours:       typicalHours,
			TypicalActions:     h.actions,
			TypicalResources:   h.resources,
			VolumeUpperBound:   avg + d.cfg.SigmaMultiplier*std,
			VolumeLowerBound:   lower,
			DataPoints:         len(h.dailyCounts),
			BaselinePeriodDays: periodDays,
		}
	}

	d.logger.InfoContext(ctx, "behavior baselines built",
		slog.Int("actors", len(baselines)),
		slog.Int("entries", len(entries)),
		slog.Int("period_days", periodDays))

	return baselines, nil
}
