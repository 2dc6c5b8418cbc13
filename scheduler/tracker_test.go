package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"power-quality-processor/models"
	"power-quality-processor/storage"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type aggregatorFunc func(ctx context.Context, date time.Time) (models.DailyAggregate, error)

func (f aggregatorFunc) Aggregate(ctx context.Context, date time.Time) (models.DailyAggregate, error) {
	return f(ctx, date)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

var now = time.Date(2025, 12, 19, 0, 5, 0, 0, time.UTC)

func TestTrackerInitialState(t *testing.T) {
	tr := NewTracker(aggregatorFunc(func(context.Context, time.Time) (models.DailyAggregate, error) {
		return models.DailyAggregate{}, nil
	}), Config{Location: time.UTC}, quiet)

	st := tr.Snapshot()
	if st.HasRun || !st.LastRunTime.IsZero() || !st.LastProcessedDate.IsZero() || st.LastError != "" {
		t.Fatalf("expected idle state, got %+v", st)
	}
	if !tr.IsHealthy() || !tr.LastRunSuccess() {
		t.Fatalf("expected tracker to be healthy before the first run")
	}
}

func TestRunScheduledProcessesYesterday(t *testing.T) {
	var got time.Time
	tr := NewTracker(aggregatorFunc(func(_ context.Context, date time.Time) (models.DailyAggregate, error) {
		got = date
		return models.DailyAggregate{Date: date, MeasurementCount: 14400, DataCompleteness: 1}, nil
	}), Config{Location: time.UTC}, quiet, WithClock(fixedClock(now)))

	tr.RunScheduled(context.Background())

	want := time.Date(2025, 12, 18, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected yesterday %v, got %v", want, got)
	}
	st := tr.Snapshot()
	if !st.HasRun || !st.LastRunSuccess || !st.LastProcessedDate.Equal(want) || !st.LastRunTime.Equal(now) {
		t.Fatalf("unexpected state %+v", st)
	}
}

func TestFailureThenRecovery(t *testing.T) {
	fail := true
	tr := NewTracker(aggregatorFunc(func(_ context.Context, date time.Time) (models.DailyAggregate, error) {
		if fail {
			return models.DailyAggregate{}, errors.New("database unavailable")
		}
		return models.DailyAggregate{Date: date, MeasurementCount: 10, DataCompleteness: 0.001}, nil
	}), Config{Location: time.UTC}, quiet, WithClock(fixedClock(now)))

	failures := testutil.ToFloat64(aggregationRuns.WithLabelValues("scheduled", "failure"))

	tr.RunScheduled(context.Background())
	if tr.IsHealthy() {
		t.Fatalf("expected unhealthy after a failed run")
	}
	if tr.LastError() != "database unavailable" {
		t.Fatalf("unexpected last error %q", tr.LastError())
	}
	if testutil.ToFloat64(lastRunSuccess) != 0 {
		t.Fatalf("expected last success gauge to drop to 0")
	}
	if d := testutil.ToFloat64(aggregationRuns.WithLabelValues("scheduled", "failure")) - failures; d != 1 {
		t.Fatalf("expected one failure to be counted, got %v", d)
	}

	fail = false
	date := time.Date(2025, 12, 10, 0, 0, 0, 0, time.UTC)
	agg, err := tr.RunManual(context.Background(), date)
	if err != nil {
		t.Fatalf("manual run: %v", err)
	}
	if agg.MeasurementCount != 10 {
		t.Fatalf("unexpected aggregate %+v", agg)
	}
	st := tr.Snapshot()
	if !st.LastRunSuccess || st.LastError != "" || !st.LastProcessedDate.Equal(date) {
		t.Fatalf("expected a clean successful state, got %+v", st)
	}
	if testutil.ToFloat64(lastRunSuccess) != 1 {
		t.Fatalf("expected last success gauge to return to 1")
	}
}

func TestRunManualReturnsError(t *testing.T) {
	boom := errors.New("boom")
	tr := NewTracker(aggregatorFunc(func(context.Context, time.Time) (models.DailyAggregate, error) {
		return models.DailyAggregate{}, boom
	}), Config{Location: time.UTC}, quiet)

	if _, err := tr.RunManual(context.Background(), now); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if tr.LastRunSuccess() {
		t.Fatalf("expected failure to be recorded")
	}
}

func TestPanicIsRecorded(t *testing.T) {
	tr := NewTracker(aggregatorFunc(func(context.Context, time.Time) (models.DailyAggregate, error) {
		panic("index out of range")
	}), Config{Location: time.UTC}, quiet)

	_, err := tr.RunManual(context.Background(), now)
	if err == nil {
		t.Fatalf("expected panic to surface as an error")
	}
	if tr.IsHealthy() || tr.LastError() != "aggregation panicked: index out of range" {
		t.Fatalf("unexpected state %+v", tr.Snapshot())
	}
}

func TestEmptyErrorStillRecordsMessage(t *testing.T) {
	tr := NewTracker(aggregatorFunc(func(context.Context, time.Time) (models.DailyAggregate, error) {
		return models.DailyAggregate{}, errors.New("")
	}), Config{Location: time.UTC}, quiet)

	if _, err := tr.RunManual(context.Background(), now); err == nil {
		t.Fatalf("expected the error to be returned")
	}
	st := tr.Snapshot()
	if st.LastRunSuccess || st.LastError == "" {
		t.Fatalf("failed run must carry a non-empty error, got %+v", st)
	}
}

func TestSnapshotsPublishedInRunOrder(t *testing.T) {
	var ticks atomic.Int64
	start := time.Date(2025, 12, 19, 0, 0, 0, 0, time.UTC)
	tr := NewTracker(aggregatorFunc(func(_ context.Context, date time.Time) (models.DailyAggregate, error) {
		return models.DailyAggregate{Date: date}, nil
	}), Config{Location: time.UTC}, quiet, WithClock(func() time.Time {
		return start.Add(time.Duration(ticks.Add(1)) * time.Millisecond)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var writers sync.WaitGroup
	for w := 0; w < 8; w++ {
		writers.Add(1)
		go func() {
			defer writers.Done()
			for i := 0; i < 200; i++ {
				tr.RunManual(ctx, start)
			}
		}()
	}

	regressed := make(chan string, 1)
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		var last time.Time
		for ctx.Err() == nil {
			st := tr.Snapshot()
			if st.LastRunTime.Before(last) {
				regressed <- fmt.Sprintf("run time went back from %v to %v", last, st.LastRunTime)
				return
			}
			last = st.LastRunTime
		}
	}()

	writers.Wait()
	cancel()
	<-readerDone
	select {
	case msg := <-regressed:
		t.Fatal(msg)
	default:
	}
}

func TestNextRun(t *testing.T) {
	tr := NewTracker(nil, Config{Location: time.UTC, RunAt: 5 * time.Minute}, quiet)

	cases := []struct {
		now  time.Time
		want time.Time
	}{
		{time.Date(2025, 12, 18, 0, 0, 0, 0, time.UTC), time.Date(2025, 12, 18, 0, 5, 0, 0, time.UTC)},
		{time.Date(2025, 12, 18, 0, 5, 0, 0, time.UTC), time.Date(2025, 12, 19, 0, 5, 0, 0, time.UTC)},
		{time.Date(2025, 12, 18, 17, 30, 0, 0, time.UTC), time.Date(2025, 12, 19, 0, 5, 0, 0, time.UTC)},
		{time.Date(2025, 12, 31, 23, 59, 0, 0, time.UTC), time.Date(2026, 1, 1, 0, 5, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		if got := tr.NextRun(tc.now); !got.Equal(tc.want) {
			t.Errorf("NextRun(%v) = %v, want %v", tc.now, got, tc.want)
		}
	}

	midnight := NewTracker(nil, Config{Location: time.UTC}, quiet)
	if got := midnight.NextRun(time.Date(2025, 12, 18, 12, 0, 0, 0, time.UTC)); !got.Equal(time.Date(2025, 12, 19, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected zero RunAt to mean midnight, got %v", got)
	}

	invalid := NewTracker(nil, Config{Location: time.UTC, RunAt: 25 * time.Hour}, quiet)
	if got := invalid.NextRun(time.Date(2025, 12, 18, 0, 0, 0, 0, time.UTC)); !got.Equal(time.Date(2025, 12, 18, 0, 5, 0, 0, time.UTC)) {
		t.Fatalf("expected out-of-range RunAt to fall back to 00:05, got %v", got)
	}
}

func TestRunFiresAtScheduledTime(t *testing.T) {
	fired := make(chan time.Time, 16)
	start := time.Date(2025, 12, 19, 0, 4, 59, 950_000_000, time.UTC)
	tr := NewTracker(aggregatorFunc(func(_ context.Context, date time.Time) (models.DailyAggregate, error) {
		select {
		case fired <- date:
		default:
		}
		return models.DailyAggregate{Date: date}, nil
	}), Config{Location: time.UTC, RunAt: 5 * time.Minute}, quiet, WithClock(fixedClock(start)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tr.Run(ctx)
		close(done)
	}()

	select {
	case date := <-fired:
		if storage.DateKey(date) != "2025-12-18" {
			t.Fatalf("expected yesterday to be processed, got %v", date)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("scheduled run did not fire")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}

// Readers must never observe a success flag paired with another run's error.
func TestSnapshotIsConsistentUnderConcurrency(t *testing.T) {
	tr := NewTracker(aggregatorFunc(func(_ context.Context, date time.Time) (models.DailyAggregate, error) {
		if date.Day()%2 == 1 {
			return models.DailyAggregate{}, fmt.Errorf("fail %s", storage.DateKey(date))
		}
		return models.DailyAggregate{Date: date}, nil
	}), Config{Location: time.UTC}, quiet)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				date := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, w*7+i%28)
				tr.RunManual(ctx, date)
			}
		}(w)
	}

	errs := make(chan string, 4)
	var readers sync.WaitGroup
	for r := 0; r < 4; r++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}
				st := tr.Snapshot()
				if !st.HasRun {
					continue
				}
				want := ""
				if st.LastProcessedDate.Day()%2 == 1 {
					want = "fail " + storage.DateKey(st.LastProcessedDate)
				}
				if st.LastRunSuccess != (want == "") || st.LastError != want {
					errs <- fmt.Sprintf("torn snapshot %+v", st)
					return
				}
			}
		}()
	}

	wg.Wait()
	cancel()
	readers.Wait()
	close(errs)
	for msg := range errs {
		t.Fatal(msg)
	}
}
