package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"power-quality-processor/models"
	"power-quality-processor/storage"
)

const completenessWarnRatio = 0.95

var (
	aggregationRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "daily_aggregation_runs_total",
			Help: "Daily aggregation runs by trigger and result",
		},
		[]string{"trigger", "result"},
	)

	lastRunSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "daily_aggregation_last_success",
			Help: "1 when the most recent daily aggregation succeeded",
		},
	)
)

func init() {
	lastRunSuccess.Set(1)
}

// Aggregator is the daily computation the tracker drives.
type Aggregator interface {
	Aggregate(ctx context.Context, date time.Time) (models.DailyAggregate, error)
}

type Config struct {
	Location *time.Location
	// RunAt is the wall-clock offset from midnight of the daily run; zero is midnight.
	RunAt time.Duration
}

type Option func(*Tracker)

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// Tracker runs the daily aggregation and keeps the last run's outcome.
// Readers always see a complete snapshot. Writers are serialised from reading
// the clock to publishing, so snapshots appear in the order runs finished.
type Tracker struct {
	agg   Aggregator
	cfg   Config
	now   func() time.Time
	log   *slog.Logger
	mu    sync.Mutex
	state atomic.Pointer[models.RunState]
}

func NewTracker(agg Aggregator, cfg Config, log *slog.Logger, opts ...Option) *Tracker {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.RunAt < 0 || cfg.RunAt >= 24*time.Hour {
		cfg.RunAt = 5 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}

	t := &Tracker{
		agg: agg,
		cfg: cfg,
		now: time.Now,
		log: log.With("component", "scheduler"),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.state.Store(&models.RunState{LastRunSuccess: true})
	return t
}

// RunScheduled aggregates yesterday. Failures are recorded, never returned.
func (t *Tracker) RunScheduled(ctx context.Context) {
	n := t.now().In(t.cfg.Location)
	yesterday := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, t.cfg.Location).AddDate(0, 0, -1)

	t.log.Info("scheduled aggregation started", "date", storage.DateKey(yesterday))
	if _, err := t.run(ctx, yesterday, "scheduled"); err != nil {
		t.log.Error("scheduled aggregation failed", "date", storage.DateKey(yesterday), "error", err)
	}
}

// RunManual aggregates date and returns the outcome to the caller. A previous
// failure never blocks it.
func (t *Tracker) RunManual(ctx context.Context, date time.Time) (models.DailyAggregate, error) {
	t.log.Info("manual aggregation started", "date", storage.DateKey(date))
	return t.run(ctx, date, "manual")
}

func (t *Tracker) run(ctx context.Context, date time.Time, trigger string) (agg models.DailyAggregate, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("aggregation panicked: %v", r)
		}
		t.record(date, err)
		if err != nil {
			aggregationRuns.WithLabelValues(trigger, "failure").Inc()
			return
		}
		aggregationRuns.WithLabelValues(trigger, "success").Inc()
	}()

	agg, err = t.agg.Aggregate(ctx, date)
	if err != nil {
		return agg, err
	}

	if agg.MeasurementCount > 0 && agg.DataCompleteness < completenessWarnRatio {
		t.log.Warn("low data completeness",
			"date", storage.DateKey(date),
			"completeness", agg.DataCompleteness,
			"measurements", agg.MeasurementCount)
	}
	t.log.Info("daily aggregation finished",
		"date", storage.DateKey(date),
		"measurements", agg.MeasurementCount,
		"sags", agg.VoltageSagCount,
		"swells", agg.VoltageSwellCount,
		"interruptions", agg.InterruptionCount,
		"thd_violations", agg.THDViolationsCount,
		"frequency_deviations", agg.FrequencyDevCount,
		"power_factor_penalties", agg.PowerFactorPenaltyCount)

	return agg, nil
}

func (t *Tracker) record(date time.Time, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := &models.RunState{
		HasRun:            true,
		LastRunTime:       t.now(),
		LastProcessedDate: date,
		LastRunSuccess:    err == nil,
	}
	if err != nil {
		next.LastError = errorMessage(err)
	}
	t.state.Store(next)

	if err != nil {
		lastRunSuccess.Set(0)
	} else {
		lastRunSuccess.Set(1)
	}
}

// errorMessage never returns "": a failed run always carries a message.
func errorMessage(err error) string {
	if msg := err.Error(); msg != "" {
		return msg
	}
	return fmt.Sprintf("aggregation failed (%T)", err)
}

// Snapshot returns the state of the most recent completed run.
func (t *Tracker) Snapshot() models.RunState {
	return *t.state.Load()
}

// IsHealthy reports the last run's success, true before the first run.
func (t *Tracker) IsHealthy() bool {
	return t.state.Load().LastRunSuccess
}

func (t *Tracker) LastRunTime() time.Time {
	return t.state.Load().LastRunTime
}

func (t *Tracker) LastProcessedDate() time.Time {
	return t.state.Load().LastProcessedDate
}

func (t *Tracker) LastRunSuccess() bool {
	return t.state.Load().LastRunSuccess
}

func (t *Tracker) LastError() string {
	return t.state.Load().LastError
}

// Run fires RunScheduled once a day at the configured clock time until ctx is done.
func (t *Tracker) Run(ctx context.Context) {
	for {
		next := t.NextRun(t.now())
		t.log.Info("next daily aggregation scheduled", "at", next)

		timer := time.NewTimer(next.Sub(t.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			t.RunScheduled(ctx)
		}
	}
}

// NextRun is the first run time strictly after now.
func (t *Tracker) NextRun(now time.Time) time.Time {
	n := now.In(t.cfg.Location)
	midnight := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, t.cfg.Location)
	next := atClock(midnight, t.cfg.RunAt)
	if !next.After(n) {
		next = atClock(midnight.AddDate(0, 0, 1), t.cfg.RunAt)
	}
	return next
}

func atClock(midnight time.Time, offset time.Duration) time.Time {
	h := int(offset / time.Hour)
	m := int(offset % time.Hour / time.Minute)
	return time.Date(midnight.Year(), midnight.Month(), midnight.Day(), h, m, 0, 0, midnight.Location())
}
