package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"power-quality-processor/models"
)

// PostgresStore implements SampleStore and AggregateStore on PostgreSQL.
type PostgresStore struct {
	db  *sql.DB
	loc *time.Location
}

var (
	_ SampleStore    = (*PostgresStore)(nil)
	_ AggregateStore = (*PostgresStore)(nil)
)

// NewPostgresStore wraps db. Dates read back from DATE columns are placed in loc.
func NewPostgresStore(db *sql.DB, loc *time.Location) *PostgresStore {
	if loc == nil {
		loc = time.Local
	}
	return &PostgresStore{db: db, loc: loc}
}

const sampleColumns = `id, time, voltage_rms, current_rms, frequency, power_active, power_apparent,
	power_reactive, cos_phi, thd_voltage, thd_current, harmonics_v, harmonics_i, is_valid`

func (p *PostgresStore) Save(ctx context.Context, s *models.Sample) error {
	const query = `INSERT INTO measurements (time, voltage_rms, current_rms, frequency, power_active,
		power_apparent, power_reactive, cos_phi, thd_voltage, thd_current, harmonics_v, harmonics_i, is_valid)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`

	hv, err := encodeHarmonics(s.HarmonicsVoltage)
	if err != nil {
		return err
	}
	hi, err := encodeHarmonics(s.HarmonicsCurrent)
	if err != nil {
		return err
	}

	row := p.db.QueryRowContext(ctx, query,
		s.Timestamp, s.VoltageRms, s.CurrentRms, s.Frequency,
		nullFloat(s.PowerActive), nullFloat(s.PowerApparent), nullFloat(s.PowerReactive),
		nullFloat(s.CosPhi), nullFloat(s.ThdVoltage), nullFloat(s.ThdCurrent),
		hv, hi, s.Valid,
	)
	if err := row.Scan(&s.ID); err != nil {
		return fmt.Errorf("insert measurement: %w", err)
	}
	return nil
}

func (p *PostgresStore) QueryByTimeRange(ctx context.Context, from, to time.Time) ([]models.Sample, error) {
	const query = `SELECT ` + sampleColumns + ` FROM measurements
		WHERE time >= $1 AND time < $2
		ORDER BY time ASC`

	rows, err := p.db.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("query measurements: %w", err)
	}
	return scanSamples(rows)
}

func (p *PostgresStore) Latest(ctx context.Context) (models.Sample, error) {
	const query = `SELECT ` + sampleColumns + ` FROM measurements ORDER BY time DESC LIMIT 1`

	s, err := scanSample(p.db.QueryRowContext(ctx, query))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Sample{}, ErrNotFound
		}
		return models.Sample{}, fmt.Errorf("latest measurement: %w", err)
	}
	return s, nil
}

func (p *PostgresStore) LatestN(ctx context.Context, n int) ([]models.Sample, error) {
	const query = `SELECT ` + sampleColumns + ` FROM measurements ORDER BY time DESC LIMIT $1`

	if n <= 0 {
		return []models.Sample{}, nil
	}
	rows, err := p.db.QueryContext(ctx, query, n)
	if err != nil {
		return nil, fmt.Errorf("query latest measurements: %w", err)
	}
	return scanSamples(rows)
}

const aggregateColumns = `date, avg_voltage, min_voltage, max_voltage, std_dev_voltage,
	avg_power_active, min_power, peak_power, total_energy_kwh, avg_power_factor, min_power_factor,
	avg_frequency, min_frequency, max_frequency, voltage_sag_count, voltage_swell_count,
	interruption_count, thd_violations_count, frequency_dev_count, power_factor_penalty_count,
	measurement_count, data_completeness`

// UpsertByDate writes the aggregate in a single statement so a failure never
// leaves a partially updated row.
func (p *PostgresStore) UpsertByDate(ctx context.Context, a models.DailyAggregate) error {
	const query = `INSERT INTO daily_stats (` + aggregateColumns + `, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, NOW())
		ON CONFLICT (date) DO UPDATE SET
			avg_voltage = EXCLUDED.avg_voltage,
			min_voltage = EXCLUDED.min_voltage,
			max_voltage = EXCLUDED.max_voltage,
			std_dev_voltage = EXCLUDED.std_dev_voltage,
			avg_power_active = EXCLUDED.avg_power_active,
			min_power = EXCLUDED.min_power,
			peak_power = EXCLUDED.peak_power,
			total_energy_kwh = EXCLUDED.total_energy_kwh,
			avg_power_factor = EXCLUDED.avg_power_factor,
			min_power_factor = EXCLUDED.min_power_factor,
			avg_frequency = EXCLUDED.avg_frequency,
			min_frequency = EXCLUDED.min_frequency,
			max_frequency = EXCLUDED.max_frequency,
			voltage_sag_count = EXCLUDED.voltage_sag_count,
			voltage_swell_count = EXCLUDED.voltage_swell_count,
			interruption_count = EXCLUDED.interruption_count,
			thd_violations_count = EXCLUDED.thd_violations_count,
			frequency_dev_count = EXCLUDED.frequency_dev_count,
			power_factor_penalty_count = EXCLUDED.power_factor_penalty_count,
			measurement_count = EXCLUDED.measurement_count,
			data_completeness = EXCLUDED.data_completeness,
			updated_at = NOW()`

	_, err := p.db.ExecContext(ctx, query,
		dateParam(a.Date),
		a.AvgVoltage, a.MinVoltage, a.MaxVoltage, a.StdDevVoltage,
		a.AvgPowerActive, a.MinPower, a.PeakPower, a.TotalEnergyKWh,
		a.AvgPowerFactor, a.MinPowerFactor,
		a.AvgFrequency, a.MinFrequency, a.MaxFrequency,
		a.VoltageSagCount, a.VoltageSwellCount, a.InterruptionCount,
		a.THDViolationsCount, a.FrequencyDevCount, a.PowerFactorPenaltyCount,
		a.MeasurementCount, a.DataCompleteness,
	)
	if err != nil {
		return fmt.Errorf("upsert daily stats %s: %w", DateKey(a.Date), err)
	}
	return nil
}

func (p *PostgresStore) FindByDate(ctx context.Context, date time.Time) (models.DailyAggregate, error) {
	const query = `SELECT ` + aggregateColumns + ` FROM daily_stats WHERE date = $1`

	agg, err := p.scanAggregate(p.db.QueryRowContext(ctx, query, dateParam(date)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.DailyAggregate{}, ErrNotFound
		}
		return models.DailyAggregate{}, fmt.Errorf("find daily stats: %w", err)
	}
	return agg, nil
}

func (p *PostgresStore) FindByDateRange(ctx context.Context, from, to time.Time) ([]models.DailyAggregate, error) {
	const query = `SELECT ` + aggregateColumns + ` FROM daily_stats
		WHERE date BETWEEN $1 AND $2
		ORDER BY date ASC`

	rows, err := p.db.QueryContext(ctx, query, dateParam(from), dateParam(to))
	if err != nil {
		return nil, fmt.Errorf("query daily stats: %w", err)
	}
	defer rows.Close()

	out := []models.DailyAggregate{}
	for rows.Next() {
		agg, err := p.scanAggregate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan daily stats: %w", err)
		}
		out = append(out, agg)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSamples(rows *sql.Rows) ([]models.Sample, error) {
	defer rows.Close()

	out := []models.Sample{}
	for rows.Next() {
		s, err := scanSample(rows)
		if err != nil {
			return nil, fmt.Errorf("scan measurement: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSample(row scanner) (models.Sample, error) {
	var (
		s                           models.Sample
		pa, ps, pq, cos, thdV, thdI sql.NullFloat64
		hv, hi                      []byte
	)
	err := row.Scan(&s.ID, &s.Timestamp, &s.VoltageRms, &s.CurrentRms, &s.Frequency,
		&pa, &ps, &pq, &cos, &thdV, &thdI, &hv, &hi, &s.Valid)
	if err != nil {
		return models.Sample{}, err
	}

	s.PowerActive = floatPtr(pa)
	s.PowerApparent = floatPtr(ps)
	s.PowerReactive = floatPtr(pq)
	s.CosPhi = floatPtr(cos)
	s.ThdVoltage = floatPtr(thdV)
	s.ThdCurrent = floatPtr(thdI)

	if s.HarmonicsVoltage, err = decodeHarmonics(hv); err != nil {
		return models.Sample{}, err
	}
	if s.HarmonicsCurrent, err = decodeHarmonics(hi); err != nil {
		return models.Sample{}, err
	}
	return s, nil
}

func (p *PostgresStore) scanAggregate(row scanner) (models.DailyAggregate, error) {
	var a models.DailyAggregate
	err := row.Scan(&a.Date,
		&a.AvgVoltage, &a.MinVoltage, &a.MaxVoltage, &a.StdDevVoltage,
		&a.AvgPowerActive, &a.MinPower, &a.PeakPower, &a.TotalEnergyKWh,
		&a.AvgPowerFactor, &a.MinPowerFactor,
		&a.AvgFrequency, &a.MinFrequency, &a.MaxFrequency,
		&a.VoltageSagCount, &a.VoltageSwellCount, &a.InterruptionCount,
		&a.THDViolationsCount, &a.FrequencyDevCount, &a.PowerFactorPenaltyCount,
		&a.MeasurementCount, &a.DataCompleteness,
	)
	if err != nil {
		return models.DailyAggregate{}, err
	}
	a.Date = time.Date(a.Date.Year(), a.Date.Month(), a.Date.Day(), 0, 0, 0, 0, p.loc)
	return a, nil
}

// dateParam sends the calendar date of t as UTC midnight so the DATE column
// never shifts by the session time zone.
func dateParam(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return models.Float(v.Float64)
}

func encodeHarmonics(h []float64) ([]byte, error) {
	if len(h) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("encode harmonics: %w", err)
	}
	return data, nil
}

func decodeHarmonics(data []byte) ([]float64, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var h []float64
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("decode harmonics: %w", err)
	}
	return h, nil
}
