package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"power-quality-processor/models"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestPublishAggregate(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w, topic: "power-quality.daily-stats"}

	agg := models.DailyAggregate{
		Date:             time.Date(2025, 12, 18, 0, 0, 0, 0, time.UTC),
		AvgVoltage:       229.7,
		MeasurementCount: 14321,
	}
	if err := p.PublishAggregate(context.Background(), agg); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if len(w.msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "2025-12-18" {
		t.Fatalf("expected date key, got %q", msg.Key)
	}

	var body map[string]any
	if err := json.Unmarshal(msg.Value, &body); err != nil {
		t.Fatalf("decode value: %v", err)
	}
	if body["date"] != "2025-12-18" || body["measurement_count"] != float64(14321) {
		t.Fatalf("unexpected payload %s", msg.Value)
	}

	if err := p.Close(); err != nil || !w.closed {
		t.Fatalf("expected writer to be closed")
	}
}

func TestPublishAggregateWrapsError(t *testing.T) {
	boom := errors.New("leader not available")
	p := &KafkaPublisher{writer: &fakeWriter{err: boom}, topic: "t"}

	err := p.PublishAggregate(context.Background(), models.DailyAggregate{Date: time.Now()})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped writer error, got %v", err)
	}
}

func TestNewKafkaPublisher(t *testing.T) {
	p := NewKafkaPublisher([]string{"localhost:9092"}, "power-quality.daily-stats")
	w, ok := p.writer.(*kafka.Writer)
	if !ok {
		t.Fatalf("expected a kafka.Writer, got %T", p.writer)
	}
	if w.Topic != "power-quality.daily-stats" || w.RequiredAcks != kafka.RequireOne {
		t.Fatalf("unexpected writer config %+v", w)
	}
}
