package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"power-quality-processor/models"
	"power-quality-processor/storage"
)

const secondsPerDay = 86400

// Publisher receives every aggregate that was committed to the store.
type Publisher interface {
	PublishAggregate(ctx context.Context, agg models.DailyAggregate) error
}

type AggregatorConfig struct {
	SamplingInterval time.Duration
	IncludeInvalid   bool
	Location         *time.Location
}

// Aggregator computes and stores the DailyAggregate for a calendar date.
// Re-running a date recomputes it from the current sample set and replaces the row.
type Aggregator struct {
	samples    storage.SampleStore
	aggregates storage.AggregateStore
	thresholds Thresholds
	cfg        AggregatorConfig
	publisher  Publisher
	log        *slog.Logger
}

func NewAggregator(samples storage.SampleStore, aggregates storage.AggregateStore, th Thresholds, cfg AggregatorConfig, log *slog.Logger) *Aggregator {
	if cfg.SamplingInterval <= 0 {
		cfg.SamplingInterval = 6 * time.Second
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if log == nil {
		log = slog.Default()
	}
	return &Aggregator{
		samples:    samples,
		aggregates: aggregates,
		thresholds: th,
		cfg:        cfg,
		log:        log.With("component", "aggregator"),
	}
}

// SetPublisher attaches a downstream sink for committed aggregates.
func (a *Aggregator) SetPublisher(p Publisher) {
	a.publisher = p
}

func (a *Aggregator) Location() *time.Location {
	return a.cfg.Location
}

// ExpectedCount is the number of samples a complete day would hold.
func (a *Aggregator) ExpectedCount() float64 {
	return secondsPerDay / a.cfg.SamplingInterval.Seconds()
}

// DayBounds returns [midnight, next midnight) for the calendar date of date.
// Using time.Date keeps DST days at their real 23 or 25 hours.
func (a *Aggregator) DayBounds(date time.Time) (time.Time, time.Time) {
	d := date.In(a.cfg.Location)
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, a.cfg.Location)
	return start, start.AddDate(0, 0, 1)
}

func (a *Aggregator) Aggregate(ctx context.Context, date time.Time) (models.DailyAggregate, error) {
	start, end := a.DayBounds(date)

	samples, err := a.samples.QueryByTimeRange(ctx, start, end)
	if err != nil {
		return models.DailyAggregate{}, fmt.Errorf("load samples for %s: %w", storage.DateKey(start), err)
	}

	if !a.cfg.IncludeInvalid {
		kept := samples[:0]
		for _, s := range samples {
			if s.Valid {
				kept = append(kept, s)
			}
		}
		samples = kept
	}

	if len(samples) == 0 {
		a.log.Info("no samples for date, nothing stored", "date", storage.DateKey(start))
		return models.DailyAggregate{Date: start}, nil
	}

	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].Timestamp.Before(samples[j].Timestamp)
	})

	agg := a.compute(start, samples)

	if err := a.aggregates.UpsertByDate(ctx, agg); err != nil {
		return models.DailyAggregate{}, fmt.Errorf("store aggregate for %s: %w", storage.DateKey(start), err)
	}

	if a.publisher != nil {
		if err := a.publisher.PublishAggregate(ctx, agg); err != nil {
			a.log.Warn("publish aggregate failed", "date", storage.DateKey(start), "error", err)
		}
	}

	return agg, nil
}

func (a *Aggregator) compute(date time.Time, samples []models.Sample) models.DailyAggregate {
	th := a.thresholds

	var voltages, frequencies, powers, factors []float64
	agg := models.DailyAggregate{Date: date}

	for _, s := range samples {
		voltages = append(voltages, s.VoltageRms)
		frequencies = append(frequencies, s.Frequency)
		if s.PowerActive != nil {
			powers = append(powers, *s.PowerActive)
		}
		if s.CosPhi != nil {
			factors = append(factors, *s.CosPhi)
		}

		if s.VoltageRms < th.VoltageLow() {
			agg.VoltageSagCount++
		}
		if s.VoltageRms > th.VoltageHigh() {
			agg.VoltageSwellCount++
		}
		if s.VoltageRms < th.InterruptionVoltage() {
			agg.InterruptionCount++
		}
		if s.ThdVoltage != nil && *s.ThdVoltage > th.THDVoltageLimit {
			agg.THDViolationsCount++
		}
		if s.Frequency < th.FrequencyLow() || s.Frequency > th.FrequencyHigh() {
			agg.FrequencyDevCount++
		}
		if s.CosPhi != nil && *s.CosPhi < th.MinPowerFactor {
			agg.PowerFactorPenaltyCount++
		}
	}

	agg.AvgVoltage = Mean(voltages)
	agg.MinVoltage = Min(voltages)
	agg.MaxVoltage = Max(voltages)
	agg.StdDevVoltage = StdDev(voltages, agg.AvgVoltage)

	agg.AvgPowerActive = Mean(powers)
	agg.MinPower = Min(powers)
	agg.PeakPower = Max(powers)
	agg.TotalEnergyKWh = TrapezoidalEnergyKWh(samples)

	agg.AvgPowerFactor = Mean(factors)
	agg.MinPowerFactor = Min(factors)

	agg.AvgFrequency = Mean(frequencies)
	agg.MinFrequency = Min(frequencies)
	agg.MaxFrequency = Max(frequencies)

	agg.MeasurementCount = len(samples)
	agg.DataCompleteness = float64(len(samples)) / a.ExpectedCount()

	return agg
}
