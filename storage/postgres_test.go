package storage

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"power-quality-processor/models"
)

var sampleCols = []string{"id", "time", "voltage_rms", "current_rms", "frequency", "power_active",
	"power_apparent", "power_reactive", "cos_phi", "thd_voltage", "thd_current", "harmonics_v", "harmonics_i", "is_valid"}

func newMock(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db, time.UTC), mock
}

func TestPostgresSave(t *testing.T) {
	store, mock := newMock(t)
	ts := time.Date(2025, 12, 18, 12, 0, 0, 0, time.UTC)

	s := models.Sample{
		Timestamp:        ts,
		VoltageRms:       230,
		CurrentRms:       10,
		Frequency:        50,
		PowerActive:      models.Float(2300),
		CosPhi:           models.Float(1),
		HarmonicsVoltage: []float64{230, 1.5},
		Valid:            true,
	}

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO measurements")).
		WithArgs(ts, 230.0, 10.0, 50.0, 2300.0, nil, nil, 1.0, nil, nil, sqlmock.AnyArg(), sqlmock.AnyArg(), true).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	if err := store.Save(context.Background(), &s); err != nil {
		t.Fatalf("save: %v", err)
	}
	if s.ID != 42 {
		t.Fatalf("expected id 42, got %d", s.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresLatest(t *testing.T) {
	store, mock := newMock(t)
	ts := time.Date(2025, 12, 18, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM measurements ORDER BY time DESC LIMIT 1")).
		WillReturnRows(sqlmock.NewRows(sampleCols).
			AddRow(int64(7), ts, 231.0, 9.5, 50.02, 2100.0, nil, nil, 0.96, 3.1, nil, []byte(`[231,2.5]`), nil, true))

	s, err := store.Latest(context.Background())
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if s.ID != 7 || s.VoltageRms != 231 || !s.Timestamp.Equal(ts) {
		t.Fatalf("unexpected sample %+v", s)
	}
	if s.PowerActive == nil || *s.PowerActive != 2100 || s.PowerApparent != nil {
		t.Fatalf("nullable columns not mapped: %+v", s)
	}
	if len(s.HarmonicsVoltage) != 2 || s.HarmonicsVoltage[1] != 2.5 || s.HarmonicsCurrent != nil {
		t.Fatalf("harmonics not decoded: %v / %v", s.HarmonicsVoltage, s.HarmonicsCurrent)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresLatestEmpty(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM measurements ORDER BY time DESC LIMIT 1")).
		WillReturnRows(sqlmock.NewRows(sampleCols))

	if _, err := store.Latest(context.Background()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresQueryByTimeRange(t *testing.T) {
	store, mock := newMock(t)
	from := time.Date(2025, 12, 18, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE time >= $1 AND time < $2")).
		WithArgs(from, to).
		WillReturnRows(sqlmock.NewRows(sampleCols).
			AddRow(int64(1), from.Add(time.Hour), 230.0, 5.0, 50.0, nil, nil, nil, nil, nil, nil, nil, nil, true).
			AddRow(int64(2), from.Add(2*time.Hour), 205.0, 5.0, 50.0, nil, nil, nil, nil, nil, nil, nil, nil, false))

	got, err := store.QueryByTimeRange(context.Background(), from, to)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 || got[1].VoltageRms != 205 || got[1].Valid {
		t.Fatalf("unexpected rows %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresQueryError(t *testing.T) {
	store, mock := newMock(t)
	boom := errors.New("connection reset")
	mock.ExpectQuery(regexp.QuoteMeta("FROM measurements")).WillReturnError(boom)

	if _, err := store.QueryByTimeRange(context.Background(), time.Now(), time.Now()); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped driver error, got %v", err)
	}
}

func TestPostgresUpsertByDate(t *testing.T) {
	store, mock := newMock(t)
	warsaw := time.FixedZone("CET", 3600)
	agg := models.DailyAggregate{
		Date:             time.Date(2025, 12, 18, 0, 0, 0, 0, warsaw),
		AvgVoltage:       229.8,
		VoltageSagCount:  2,
		MeasurementCount: 14000,
		DataCompleteness: 14000.0 / 14400,
	}

	args := make([]driver.Value, 22)
	args[0] = time.Date(2025, 12, 18, 0, 0, 0, 0, time.UTC)
	for i := 1; i < len(args); i++ {
		args[i] = sqlmock.AnyArg()
	}

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (date) DO UPDATE SET")).
		WithArgs(args...).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.UpsertByDate(context.Background(), agg); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func aggregateRow(date time.Time, count int) []driver.Value {
	row := []driver.Value{date}
	for i := 0; i < 13; i++ {
		row = append(row, 1.0)
	}
	for i := 0; i < 6; i++ {
		row = append(row, int64(0))
	}
	return append(row, int64(count), float64(count)/14400)
}

var aggregateCols = []string{"date", "avg_voltage", "min_voltage", "max_voltage", "std_dev_voltage",
	"avg_power_active", "min_power", "peak_power", "total_energy_kwh", "avg_power_factor", "min_power_factor",
	"avg_frequency", "min_frequency", "max_frequency", "voltage_sag_count", "voltage_swell_count",
	"interruption_count", "thd_violations_count", "frequency_dev_count", "power_factor_penalty_count",
	"measurement_count", "data_completeness"}

func TestPostgresFindByDate(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	store := NewPostgresStore(db, loc)

	stored := time.Date(2025, 12, 18, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM daily_stats WHERE date = $1")).
		WithArgs(stored).
		WillReturnRows(sqlmock.NewRows(aggregateCols).AddRow(aggregateRow(stored, 100)...))

	agg, err := store.FindByDate(context.Background(), time.Date(2025, 12, 18, 0, 0, 0, 0, loc))
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !agg.Date.Equal(time.Date(2025, 12, 18, 0, 0, 0, 0, loc)) {
		t.Fatalf("expected date in configured location, got %v", agg.Date)
	}
	if agg.MeasurementCount != 100 {
		t.Fatalf("unexpected aggregate %+v", agg)
	}

	mock.ExpectQuery(regexp.QuoteMeta("FROM daily_stats WHERE date = $1")).
		WillReturnRows(sqlmock.NewRows(aggregateCols))
	if _, err := store.FindByDate(context.Background(), stored); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresFindByDateRange(t *testing.T) {
	store, mock := newMock(t)
	from := time.Date(2025, 12, 12, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 12, 18, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE date BETWEEN $1 AND $2")).
		WithArgs(from, to).
		WillReturnRows(sqlmock.NewRows(aggregateCols).
			AddRow(aggregateRow(from, 10)...).
			AddRow(aggregateRow(to, 20)...))

	got, err := store.FindByDateRange(context.Background(), from, to)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(got) != 2 || got[0].MeasurementCount != 10 || got[1].MeasurementCount != 20 {
		t.Fatalf("unexpected aggregates %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
