package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veritrail/veritrail/internal/chain"
	"github.com/veritrail/veritrail/internal/detect"
	"github.com/veritrail/veritrail/internal/domain"
	"github.com/veritrail/veritrail/internal/infra/config"
	"github.com/veritrail/veritrail/internal/infra/persistence"
	pkgerrors "github.com/veritrail/veritrail/pkg/errors"
	"github.com/veritrail/veritrail/pkg/execution"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "usage: veritrail <validate|detect> <tenant-id>")
		os.Exit(2)
	}
	command, tenantID := os.Args[1], os.Args[2]

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	cfg, err := config.Load(os.Getenv("VERITRAIL_CONFIG_PATH"))
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		logger.Error("failed to open database pool", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	store := persistence.NewPostgresStore(pool)

	switch command {
	case "validate":
		err = runValidate(ctx, logger, cfg, store, tenantID)
	case "detect":
		err = runDetect(ctx, logger, cfg, store, tenantID)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", command)
		os.Exit(2)
	}
	if err != nil {
		classified := pkgerrors.NewErrorClassifier(logger).Classify(ctx, err, command, tenantID)
		fmt.Fprintln(os.Stderr, classified.ClientMessage)
		os.Exit(1)
	}
}

func runValidate(ctx context.Context, logger *slog.Logger, cfg *config.Config, store domain.EntryStore, tenantID string) error {
	entries, err := store.ListByTenant(ctx, tenantID, time.Time{}, time.Time{})
	if err != nil {
		return err
	}

	validator := chain.NewValidator(logger, chain.WithGapThreshold(cfg.Validation.GapThreshold))
	report, err := execution.WithTimeout(ctx, cfg.Validation.Timeout,
		func(ctx context.Context) (*domain.ValidationReport, error) {
			return validator.ValidateSegmented(ctx, entries, cfg.Validation.SegmentSize, cfg.Validation.Parallelism)
		})
	if err != nil {
		return err
	}
	return printJSON(report)
}

func runDetect(ctx context.Context, logger *slog.Logger, cfg *config.Config, store domain.EntryStore, tenantID string) error {
	now := time.Now().UTC()
	historyFrom := now.AddDate(0, 0, -cfg.Detection.BaselinePeriodDays)
	windowFrom := now.Add(-time.Duration(cfg.Detection.WindowHours) * time.Hour)

	history, err := store.ListByTenant(ctx, tenantID, historyFrom, windowFrom)
	if err != nil {
		return err
	}
	recent, err := store.ListByTenant(ctx, tenantID, windowFrom, time.Time{})
	if err != nil {
		return err
	}

	detector := detect.New(logger, detectConfig(cfg.Detection))
	report, err := execution.WithTimeout(ctx, cfg.Detection.Timeout,
		func(ctx context.Context) (*domain.DetectionReport, error) {
			baselines, err := detector.BuildBaselines(ctx, history, cfg.Detection.BaselinePeriodDays)
			if err != nil {
				return nil, err
			}
			return detector.Detect(ctx, recent, baselines, cfg.Detection.WindowHours)
		})
	if err != nil {
		return err
	}
	return printJSON(report)
}

// detectConfig maps file configuration onto the detector's policy,
// falling back to shipped defaults for anything left unset.
func detectConfig(dc config.DetectionConfig) detect.Config {
	out := detect.DefaultConfig()
	if dc.VolumeZThreshold > 0 {
		out.VolumeZThreshold = dc.VolumeZThreshold
	}
	if len(dc.OffHours) > 0 {
		out.OffHours = dc.OffHours
	}
	if dc.UnusualTimeMinEvents > 0 {
		out.UnusualTimeMinEvents = dc.UnusualTimeMinEvents
	}
	if dc.DriftNewResourceThreshold > 0 {
		out.DriftNewResourceThreshold = dc.DriftNewResourceThreshold
	}
	if len(dc.SuspiciousSequences) > 0 {
		out.SuspiciousSequences = dc.SuspiciousSequences
	}
	if dc.VelocityWindow > 0 {
		out.VelocityWindow = dc.VelocityWindow
	}
	if dc.VelocityThreshold > 0 {
		out.VelocityThreshold = dc.VelocityThreshold
	}
	if len(dc.PrivilegeActions) > 0 {
		out.PrivilegeActions = dc.PrivilegeActions
	}
	if len(dc.ExfiltrationActions) > 0 {
		out.ExfiltrationActions = dc.ExfiltrationActions
	}
	if dc.ExfiltrationThreshold > 0 {
		out.ExfiltrationThreshold = dc.ExfiltrationThreshold
	}
	if len(dc.FailedLoginActions) > 0 {
		out.FailedLoginActions = dc.FailedLoginActions
	}
	if dc.BruteForceThreshold > 0 {
		out.BruteForceThreshold = dc.BruteForceThreshold
	}
	if dc.BruteForceWindow > 0 {
		out.BruteForceWindow = dc.BruteForceWindow
	}
	return out
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
