package analytics

import (
	"math"

	"power-quality-processor/models"
)

const (
	WaveformPoints   = 200
	defaultFrequency = 50.0
)

// Reconstruct synthesises one fundamental period from RMS harmonic amplitudes.
// The phase shift applies to the fundamental only. frequencyHz does not change
// the shape because t is expressed as a fraction of the period.
func Reconstruct(harmonics []float64, frequencyHz float64, sampleCount int, phaseShift float64) []float64 {
	if sampleCount < 0 {
		return []float64{}
	}

	out := make([]float64, sampleCount)
	if len(harmonics) == 0 {
		return out
	}

	n := len(harmonics)
	if n > models.HarmonicCount {
		n = models.HarmonicCount
	}

	for i := 0; i < sampleCount; i++ {
		t := float64(i) / float64(sampleCount)
		var v float64
		for h := 1; h <= n; h++ {
			phase := 0.0
			if h == 1 {
				phase = phaseShift
			}
			v += harmonics[h-1] * math.Sqrt2 * math.Sin(2*math.Pi*float64(h)*t+phase)
		}
		out[i] = v
	}

	return out
}

// ReconstructSample builds the voltage and current traces for a sample,
// offsetting current by arccos(cosPhi).
func ReconstructSample(s models.Sample) models.Waveform {
	freq := s.Frequency
	if freq <= 0 {
		freq = defaultFrequency
	}

	cosPhi := models.Value(s.CosPhi, 1.0)
	cosPhi = math.Max(-1, math.Min(1, cosPhi))

	return models.Waveform{
		Voltage: Reconstruct(s.HarmonicsVoltage, freq, WaveformPoints, 0),
		Current: Reconstruct(s.HarmonicsCurrent, freq, WaveformPoints, math.Acos(cosPhi)),
	}
}
