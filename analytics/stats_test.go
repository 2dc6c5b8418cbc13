package analytics

import (
	"testing"
	"time"

	"power-quality-processor/models"
)

func TestBasicStats(t *testing.T) {
	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}

	if got := Mean(values); got != 5 {
		t.Fatalf("expected mean 5, got %f", got)
	}
	if got := Min(values); got != 2 {
		t.Fatalf("expected min 2, got %f", got)
	}
	if got := Max(values); got != 9 {
		t.Fatalf("expected max 9, got %f", got)
	}
	if got := StdDev(values, 5.0); got != 2.0 {
		t.Fatalf("expected population std dev 2, got %f", got)
	}
}

func TestStatsEmpty(t *testing.T) {
	if Mean(nil) != 0 || Min(nil) != 0 || Max(nil) != 0 || StdDev(nil, 0) != 0 {
		t.Fatalf("empty input must yield zeros")
	}
}

func TestTrapezoidalEnergy(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	at := func(offset time.Duration, watts float64) models.Sample {
		return models.Sample{Timestamp: start.Add(offset), PowerActive: models.Float(watts)}
	}

	tests := []struct {
		name    string
		samples []models.Sample
		want    float64
	}{
		{"empty", nil, 0},
		{"single", []models.Sample{at(0, 1000)}, 0},
		{"one hour at 1 kW", []models.Sample{at(0, 1000), at(time.Hour, 1000)}, 1.0},
		{"ramp", []models.Sample{at(0, 0), at(time.Hour, 2000)}, 1.0},
		{"skips missing power", []models.Sample{
			at(0, 1000),
			{Timestamp: start.Add(30 * time.Minute)},
			at(time.Hour, 1000),
		}, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TrapezoidalEnergyKWh(tt.samples); got != tt.want {
				t.Fatalf("expected %f kWh, got %f", tt.want, got)
			}
		})
	}
}
