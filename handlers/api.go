package handlers

import (
	"context"
	"log/slog"
	"time"

	"power-quality-processor/models"
)

// SampleService is the ingestion and live read side of the engine.
type SampleService interface {
	Submit(ctx context.Context, s models.Sample) (models.Sample, models.ValidationResult, error)
	Latest(ctx context.Context) (models.Sample, error)
	LatestIndicators(ctx context.Context) (models.PowerQualityIndicators, error)
	LatestWaveform(ctx context.Context) (models.Waveform, error)
	History(ctx context.Context, from, to time.Time, limit int) ([]models.Sample, error)
	Dashboard(ctx context.Context) (models.Dashboard, error)
}

// StatsService reads stored daily aggregates.
type StatsService interface {
	Today() time.Time
	DailyStats(ctx context.Context, date time.Time) (models.DailyAggregate, error)
	StatsRange(ctx context.Context, from, to time.Time) ([]models.DailyAggregate, error)
	LastDays(ctx context.Context, n int) ([]models.DailyAggregate, error)
}

// AggregationJob is the scheduled daily aggregation with its health state.
type AggregationJob interface {
	RunManual(ctx context.Context, date time.Time) (models.DailyAggregate, error)
	Snapshot() models.RunState
}

type API struct {
	samples  SampleService
	stats    StatsService
	job      AggregationJob
	loc      *time.Location
	schedule string
	now      func() time.Time
	log      *slog.Logger
}

type APIConfig struct {
	Location *time.Location
	// Schedule describes the daily job in health output, e.g. "every day at 00:05".
	Schedule string
}

func NewAPI(samples SampleService, stats StatsService, job AggregationJob, cfg APIConfig, log *slog.Logger) *API {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if log == nil {
		log = slog.Default()
	}
	return &API{
		samples:  samples,
		stats:    stats,
		job:      job,
		loc:      cfg.Location,
		schedule: cfg.Schedule,
		now:      time.Now,
		log:      log.With("component", "http"),
	}
}
