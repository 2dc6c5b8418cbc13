package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"power-quality-processor/models"
)

// MemoryStore implements both stores in process. It backs the service when
// no database DSN is configured and serves as the fixture in tests.
type MemoryStore struct {
	mu         sync.RWMutex
	nextID     int64
	samples    []models.Sample
	aggregates map[string]models.DailyAggregate
}

var (
	_ SampleStore    = (*MemoryStore)(nil)
	_ AggregateStore = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		aggregates: make(map[string]models.DailyAggregate),
	}
}

func (m *MemoryStore) Save(ctx context.Context, s *models.Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	s.ID = m.nextID

	// keep samples sorted; arrivals are almost always in order
	i := sort.Search(len(m.samples), func(i int) bool {
		return m.samples[i].Timestamp.After(s.Timestamp)
	})
	m.samples = append(m.samples, models.Sample{})
	copy(m.samples[i+1:], m.samples[i:])
	m.samples[i] = *s

	return nil
}

func (m *MemoryStore) QueryByTimeRange(ctx context.Context, from, to time.Time) ([]models.Sample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	start := sort.Search(len(m.samples), func(i int) bool {
		return !m.samples[i].Timestamp.Before(from)
	})
	end := sort.Search(len(m.samples), func(i int) bool {
		return !m.samples[i].Timestamp.Before(to)
	})
	if start >= end {
		return []models.Sample{}, nil
	}

	out := make([]models.Sample, end-start)
	copy(out, m.samples[start:end])
	return out, nil
}

func (m *MemoryStore) Latest(ctx context.Context) (models.Sample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.samples) == 0 {
		return models.Sample{}, ErrNotFound
	}
	return m.samples[len(m.samples)-1], nil
}

func (m *MemoryStore) LatestN(ctx context.Context, n int) ([]models.Sample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if n > len(m.samples) {
		n = len(m.samples)
	}
	if n <= 0 {
		return []models.Sample{}, nil
	}

	out := make([]models.Sample, 0, n)
	for i := len(m.samples) - 1; i >= len(m.samples)-n; i-- {
		out = append(out, m.samples[i])
	}
	return out, nil
}

func (m *MemoryStore) UpsertByDate(ctx context.Context, agg models.DailyAggregate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.aggregates[DateKey(agg.Date)] = agg
	return nil
}

func (m *MemoryStore) FindByDate(ctx context.Context, date time.Time) (models.DailyAggregate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	agg, ok := m.aggregates[DateKey(date)]
	if !ok {
		return models.DailyAggregate{}, ErrNotFound
	}
	return agg, nil
}

func (m *MemoryStore) FindByDateRange(ctx context.Context, from, to time.Time) ([]models.DailyAggregate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lo, hi := DateKey(from), DateKey(to)
	out := []models.DailyAggregate{}
	for key, agg := range m.aggregates {
		if key >= lo && key <= hi {
			out = append(out, agg)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return DateKey(out[i].Date) < DateKey(out[j].Date)
	})
	return out, nil
}
