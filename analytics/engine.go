package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"power-quality-processor/models"
	"power-quality-processor/storage"
)

var (
	// ErrRejected is returned by Submit when policy refuses to store an invalid sample.
	ErrRejected = errors.New("sample rejected")
	// ErrInvalidArgument marks a read query with bad bounds.
	ErrInvalidArgument = errors.New("invalid argument")
)

const (
	DefaultHistoryLimit = 100
	MaxHistoryLimit     = 1000
	MaxStatsRangeDays   = 365
	dashboardHistory    = 100
	rollingWindowSize   = 50
)

// LatestCache holds the most recent sample for fast reads.
type LatestCache interface {
	SaveLatest(ctx context.Context, s models.Sample) error
	GetLatest(ctx context.Context) (*models.Sample, error)
}

// Notifier is told about every stored sample.
type Notifier interface {
	Broadcast(update models.DashboardUpdate)
}

// Hooks observe the ingestion path. Any of them may be nil.
type Hooks struct {
	OnValidated func(s models.Sample, result models.ValidationResult)
	OnDropped   func()
	OnAnomaly   func(s models.Sample, zScore float64)
}

type EngineConfig struct {
	Workers       int
	QueueSize     int
	RejectInvalid bool
	Location      *time.Location
}

type EngineOption func(*Engine)

func WithCache(c LatestCache) EngineOption {
	return func(e *Engine) { e.cache = c }
}

func WithNotifier(n Notifier) EngineOption {
	return func(e *Engine) { e.notifier = n }
}

func WithHooks(h Hooks) EngineOption {
	return func(e *Engine) { e.hooks = h }
}

func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// Engine is the ingestion and read service in front of the stores.
type Engine struct {
	samples    storage.SampleStore
	aggregates storage.AggregateStore
	validator  *Validator
	thresholds Thresholds
	cfg        EngineConfig

	cache    LatestCache
	cacheMu  sync.Mutex
	notifier Notifier
	hooks    Hooks
	now      func() time.Time

	window   *RollingWindow
	detector *AnomalyDetector

	queue chan models.Sample
	wg    sync.WaitGroup
	log   *slog.Logger
}

func NewEngine(samples storage.SampleStore, aggregates storage.AggregateStore, validator *Validator, cfg EngineConfig, log *slog.Logger, opts ...EngineOption) *Engine {
	if cfg.Workers < 4 {
		cfg.Workers = 4
	}
	if cfg.Workers > 16 {
		cfg.Workers = 16
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 10000
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if log == nil {
		log = slog.Default()
	}

	e := &Engine{
		samples:    samples,
		aggregates: aggregates,
		validator:  validator,
		thresholds: validator.Thresholds(),
		cfg:        cfg,
		now:        time.Now,
		window:     NewRollingWindow(rollingWindowSize),
		detector:   NewAnomalyDetector(rollingWindowSize, defaultAnomalyThreshold),
		queue:      make(chan models.Sample, cfg.QueueSize),
		log:        log.With("component", "engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start launches the worker pool that drains Enqueue. Workers exit when ctx is done.
func (e *Engine) Start(ctx context.Context) {
	e.log.Info("starting ingest workers", "workers", e.cfg.Workers, "queue_size", e.cfg.QueueSize)
	for i := 0; i < e.cfg.Workers; i++ {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.work(ctx)
		}()
	}
}

// Wait blocks until every worker has returned.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Enqueue hands a decoded sample to the worker pool without blocking.
// It reports false when the queue is full and the sample was dropped.
func (e *Engine) Enqueue(s models.Sample) bool {
	select {
	case e.queue <- s:
		return true
	default:
		e.log.Warn("ingest queue full, dropping sample", "timestamp", s.Timestamp)
		if e.hooks.OnDropped != nil {
			e.hooks.OnDropped()
		}
		return false
	}
}

func (e *Engine) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-e.queue:
			if _, _, err := e.Submit(ctx, s); err != nil {
				e.log.Warn("sample not stored", "timestamp", s.Timestamp, "error", err)
			}
		}
	}
}

// Submit validates and stores one sample. Invalid samples are stored and
// flagged unless RejectInvalid is set; warnings never block storage.
func (e *Engine) Submit(ctx context.Context, s models.Sample) (models.Sample, models.ValidationResult, error) {
	if err := s.Validate(); err != nil {
		return s, models.ValidationResult{}, err
	}

	result := e.validator.Validate(s)
	s.Valid = result.Valid
	if e.hooks.OnValidated != nil {
		e.hooks.OnValidated(s, result)
	}

	if !result.Valid {
		e.log.Warn("sample failed validation", "timestamp", s.Timestamp, "errors", result.Errors)
		if e.cfg.RejectInvalid {
			return s, result, fmt.Errorf("%w: %s", ErrRejected, strings.Join(result.Errors, "; "))
		}
	} else if len(result.Warnings) > 0 {
		e.log.Debug("sample warnings", "timestamp", s.Timestamp, "warnings", result.Warnings)
	}

	if err := e.samples.Save(ctx, &s); err != nil {
		return s, result, fmt.Errorf("save sample: %w", err)
	}

	e.cacheLatest(ctx, s)

	e.window.Add(s.VoltageRms)
	if anomaly, z := e.detector.Detect(s.VoltageRms); anomaly {
		e.log.Warn("voltage anomaly detected",
			"voltage_rms", s.VoltageRms, "z_score", z, "rolling_avg", e.window.Average())
		if e.hooks.OnAnomaly != nil {
			e.hooks.OnAnomaly(s, z)
		}
	}

	if e.notifier != nil {
		e.notifier.Broadcast(models.DashboardUpdate{
			Latest:     s,
			Waveforms:  ReconstructSample(s),
			Indicators: Evaluate(s, e.thresholds),
		})
	}

	return s, result, nil
}

// cacheLatest replaces the cached sample only when s is newer. Workers store
// concurrently and clients may post late samples, so save order is not time order.
func (e *Engine) cacheLatest(ctx context.Context, s models.Sample) {
	if e.cache == nil {
		return
	}

	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()

	cached, err := e.cache.GetLatest(ctx)
	if err != nil {
		e.log.Debug("cache read failed", "error", err)
	} else if cached != nil && !s.Timestamp.After(cached.Timestamp) {
		return
	}
	if err := e.cache.SaveLatest(ctx, s); err != nil {
		e.log.Debug("cache latest sample failed", "error", err)
	}
}

// Latest prefers the cache and falls back to the sample store.
func (e *Engine) Latest(ctx context.Context) (models.Sample, error) {
	if e.cache != nil {
		cached, err := e.cache.GetLatest(ctx)
		if err != nil {
			e.log.Debug("cache read failed", "error", err)
		} else if cached != nil {
			return *cached, nil
		}
	}
	return e.samples.Latest(ctx)
}

func (e *Engine) LatestIndicators(ctx context.Context) (models.PowerQualityIndicators, error) {
	s, err := e.Latest(ctx)
	if err != nil {
		return models.PowerQualityIndicators{}, err
	}
	return Evaluate(s, e.thresholds), nil
}

func (e *Engine) LatestWaveform(ctx context.Context) (models.Waveform, error) {
	s, err := e.Latest(ctx)
	if err != nil {
		return models.Waveform{}, err
	}
	return ReconstructSample(s), nil
}

// Recent returns up to n samples, newest first.
func (e *Engine) Recent(ctx context.Context, n int) ([]models.Sample, error) {
	return e.samples.LatestN(ctx, n)
}

// History returns the newest samples in [from, to), at most limit, newest first.
// A zero limit means DefaultHistoryLimit.
func (e *Engine) History(ctx context.Context, from, to time.Time, limit int) ([]models.Sample, error) {
	if limit == 0 {
		limit = DefaultHistoryLimit
	}
	if limit < 0 || limit > MaxHistoryLimit {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidArgument, MaxHistoryLimit)
	}
	if from.After(to) {
		return nil, fmt.Errorf("%w: from is after to", ErrInvalidArgument)
	}

	samples, err := e.samples.QueryByTimeRange(ctx, from, to)
	if err != nil {
		return nil, err
	}

	out := make([]models.Sample, 0, min(limit, len(samples)))
	for i := len(samples) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, samples[i])
	}
	return out, nil
}

func (e *Engine) Dashboard(ctx context.Context) (models.Dashboard, error) {
	latest, err := e.Latest(ctx)
	if err != nil {
		return models.Dashboard{}, err
	}
	recent, err := e.Recent(ctx, dashboardHistory)
	if err != nil {
		return models.Dashboard{}, err
	}
	return models.Dashboard{
		Latest:                latest,
		Waveforms:             ReconstructSample(latest),
		RecentHistory:         recent,
		RollingAverageVoltage: e.window.Average(),
	}, nil
}

// Today is the current calendar date in the configured location.
func (e *Engine) Today() time.Time {
	n := e.now().In(e.cfg.Location)
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, e.cfg.Location)
}

func (e *Engine) DailyStats(ctx context.Context, date time.Time) (models.DailyAggregate, error) {
	return e.aggregates.FindByDate(ctx, date)
}

// StatsRange returns stored aggregates for [from, to], both dates inclusive.
func (e *Engine) StatsRange(ctx context.Context, from, to time.Time) ([]models.DailyAggregate, error) {
	if from.After(to) {
		return nil, fmt.Errorf("%w: from is after to", ErrInvalidArgument)
	}
	if to.After(e.Today()) {
		return nil, fmt.Errorf("%w: range ends in the future", ErrInvalidArgument)
	}
	if to.After(from.AddDate(0, 0, MaxStatsRangeDays)) {
		return nil, fmt.Errorf("%w: range exceeds %d days", ErrInvalidArgument, MaxStatsRangeDays)
	}
	return e.aggregates.FindByDateRange(ctx, from, to)
}

// LastDays returns the aggregates of the last n days including today.
func (e *Engine) LastDays(ctx context.Context, n int) ([]models.DailyAggregate, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: days must be at least 1, got %d", ErrInvalidArgument, n)
	}
	today := e.Today()
	return e.aggregates.FindByDateRange(ctx, today.AddDate(0, 0, -(n-1)), today)
}
