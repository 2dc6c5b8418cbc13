package analytics

import (
	"math"

	"power-quality-processor/models"
)

const wattSecondsPerKWh = 3_600_000.0

func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0.0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func Min(values []float64) float64 {
	if len(values) == 0 {
		return 0.0
	}
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func Max(values []float64) float64 {
	if len(values) == 0 {
		return 0.0
	}
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// StdDev is the population standard deviation around a precomputed mean.
func StdDev(values []float64, mean float64) float64 {
	if len(values) == 0 {
		return 0.0
	}

	var variance float64
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}

	variance /= float64(len(values))
	return math.Sqrt(variance)
}

// TrapezoidalEnergyKWh integrates active power over time. Samples must be
// ordered by timestamp; those without active power are skipped.
func TrapezoidalEnergyKWh(samples []models.Sample) float64 {
	var (
		prev    *models.Sample
		wattSec float64
	)

	for i := range samples {
		s := &samples[i]
		if s.PowerActive == nil {
			continue
		}
		if prev != nil {
			dt := s.Timestamp.Sub(prev.Timestamp).Seconds()
			wattSec += (*prev.PowerActive + *s.PowerActive) / 2 * dt
		}
		prev = s
	}

	return wattSec / wattSecondsPerKWh
}
