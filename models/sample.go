package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// HarmonicCount is the number of harmonic amplitudes carried per channel, index 0 = fundamental.
const HarmonicCount = 8

// ErrInvalidSample marks input that is missing required fields or is otherwise malformed.
var ErrInvalidSample = errors.New("invalid sample")

// Sample is a single reading from the measurement node.
type Sample struct {
	ID               int64     `json:"id,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
	VoltageRms       float64   `json:"voltage_rms"`
	CurrentRms       float64   `json:"current_rms"`
	Frequency        float64   `json:"frequency"`
	PowerActive      *float64  `json:"power_active,omitempty"`
	PowerApparent    *float64  `json:"power_apparent,omitempty"`
	PowerReactive    *float64  `json:"power_reactive,omitempty"`
	CosPhi           *float64  `json:"cos_phi,omitempty"`
	ThdVoltage       *float64  `json:"thd_voltage,omitempty"`
	ThdCurrent       *float64  `json:"thd_current,omitempty"`
	HarmonicsVoltage []float64 `json:"harmonics_v,omitempty"`
	HarmonicsCurrent []float64 `json:"harmonics_i,omitempty"`
	Valid            bool      `json:"is_valid"`
}

// Validate checks that the sample carries everything the pipeline cannot default.
func (s *Sample) Validate() error {
	if s.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp is required", ErrInvalidSample)
	}

	required := []struct {
		name  string
		value float64
	}{
		{"voltage_rms", s.VoltageRms},
		{"current_rms", s.CurrentRms},
		{"frequency", s.Frequency},
	}
	for _, f := range required {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return fmt.Errorf("%w: %s must be a finite number", ErrInvalidSample, f.name)
		}
	}

	return nil
}

// SamplePayload is the wire shape published by the measurement node.
// Required values are pointers so that absence can be told apart from zero.
type SamplePayload struct {
	Timestamp     *int64    `json:"timestamp"`
	VoltageRms    *float64  `json:"voltage_rms"`
	CurrentRms    *float64  `json:"current_rms"`
	Frequency     *float64  `json:"frequency"`
	PowerActive   *float64  `json:"power_active"`
	PowerApparent *float64  `json:"power_apparent"`
	PowerReactive *float64  `json:"power_reactive"`
	CosPhi        *float64  `json:"cos_phi"`
	ThdVoltage    *float64  `json:"thd_voltage"`
	ThdCurrent    *float64  `json:"thd_current"`
	HarmonicsV    []float64 `json:"harmonics_v"`
	HarmonicsI    []float64 `json:"harmonics_i"`
}

func (p *SamplePayload) Validate() error {
	if p.Timestamp == nil {
		return fmt.Errorf("%w: timestamp is required", ErrInvalidSample)
	}
	if p.VoltageRms == nil {
		return fmt.Errorf("%w: voltage_rms is required", ErrInvalidSample)
	}
	if p.CurrentRms == nil {
		return fmt.Errorf("%w: current_rms is required", ErrInvalidSample)
	}
	if p.Frequency == nil {
		return fmt.Errorf("%w: frequency is required", ErrInvalidSample)
	}
	return nil
}

// ToSample converts the payload; the timestamp is epoch seconds.
func (p *SamplePayload) ToSample() (Sample, error) {
	if err := p.Validate(); err != nil {
		return Sample{}, err
	}

	s := Sample{
		Timestamp:        time.Unix(*p.Timestamp, 0).UTC(),
		VoltageRms:       *p.VoltageRms,
		CurrentRms:       *p.CurrentRms,
		Frequency:        *p.Frequency,
		PowerActive:      p.PowerActive,
		PowerApparent:    p.PowerApparent,
		PowerReactive:    p.PowerReactive,
		CosPhi:           p.CosPhi,
		ThdVoltage:       p.ThdVoltage,
		ThdCurrent:       p.ThdCurrent,
		HarmonicsVoltage: TruncateHarmonics(p.HarmonicsV),
		HarmonicsCurrent: TruncateHarmonics(p.HarmonicsI),
	}
	if err := s.Validate(); err != nil {
		return Sample{}, err
	}
	return s, nil
}

// DecodeSample parses a JSON payload into a Sample.
func DecodeSample(data []byte) (Sample, error) {
	var p SamplePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return Sample{}, fmt.Errorf("%w: %v", ErrInvalidSample, err)
	}
	return p.ToSample()
}

// TruncateHarmonics returns a copy holding at most HarmonicCount entries.
func TruncateHarmonics(h []float64) []float64 {
	if len(h) == 0 {
		return nil
	}
	n := len(h)
	if n > HarmonicCount {
		n = HarmonicCount
	}
	out := make([]float64, n)
	copy(out, h[:n])
	return out
}

// Value dereferences an optional reading, falling back when it is absent.
func Value(p *float64, fallback float64) float64 {
	if p == nil {
		return fallback
	}
	return *p
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}
