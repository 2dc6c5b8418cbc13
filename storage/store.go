package storage

import (
	"context"
	"errors"
	"time"

	"power-quality-processor/models"
)

var ErrNotFound = errors.New("not found")

// SampleStore is the append-only, time-ordered sample log.
type SampleStore interface {
	Save(ctx context.Context, s *models.Sample) error
	// QueryByTimeRange returns samples in [from, to) ordered by timestamp.
	QueryByTimeRange(ctx context.Context, from, to time.Time) ([]models.Sample, error)
	Latest(ctx context.Context) (models.Sample, error)
	// LatestN returns up to n samples, newest first.
	LatestN(ctx context.Context, n int) ([]models.Sample, error)
}

// AggregateStore keeps one DailyAggregate per calendar date.
type AggregateStore interface {
	UpsertByDate(ctx context.Context, agg models.DailyAggregate) error
	FindByDate(ctx context.Context, date time.Time) (models.DailyAggregate, error)
	// FindByDateRange returns aggregates for dates in [from, to], ascending.
	FindByDateRange(ctx context.Context, from, to time.Time) ([]models.DailyAggregate, error)
}

// DateKey is the calendar date of t in its own location.
func DateKey(t time.Time) string {
	return t.Format(models.DateLayout)
}
