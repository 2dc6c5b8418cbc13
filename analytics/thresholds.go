package analytics

import "math"

// Thresholds holds the safety and PN-EN 50160 limits used across the pipeline.
type Thresholds struct {
	NominalVoltage     float64 `yaml:"nominal_voltage"`
	VoltageTolerance   float64 `yaml:"voltage_tolerance"`
	MaxSafeVoltage     float64 `yaml:"max_safe_voltage"`
	MaxSafeCurrent     float64 `yaml:"max_safe_current"`
	NominalFrequency   float64 `yaml:"nominal_frequency"`
	FrequencyTolerance float64 `yaml:"frequency_tolerance"`
	MinSafeFrequency   float64 `yaml:"min_safe_frequency"`
	MaxSafeFrequency   float64 `yaml:"max_safe_frequency"`
	MinPowerFactor     float64 `yaml:"min_power_factor"`
	THDVoltageLimit    float64 `yaml:"thd_voltage_limit"`
	InterruptionRatio  float64 `yaml:"interruption_ratio"`
	PowerTolerance     float64 `yaml:"power_tolerance"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		NominalVoltage:     230.0,
		VoltageTolerance:   0.10,
		MaxSafeVoltage:     360.0,
		MaxSafeCurrent:     40.0,
		NominalFrequency:   50.0,
		FrequencyTolerance: 0.5,
		MinSafeFrequency:   45.0,
		MaxSafeFrequency:   55.0,
		MinPowerFactor:     0.85,
		THDVoltageLimit:    8.0,
		InterruptionRatio:  0.10,
		PowerTolerance:     0.05,
	}
}

// VoltageLow is the sag boundary, 207 V at defaults.
func (t Thresholds) VoltageLow() float64 {
	return roundLimit(t.NominalVoltage * (1 - t.VoltageTolerance))
}

// VoltageHigh is the swell boundary, 253 V at defaults.
func (t Thresholds) VoltageHigh() float64 {
	return roundLimit(t.NominalVoltage * (1 + t.VoltageTolerance))
}

func (t Thresholds) InterruptionVoltage() float64 {
	return roundLimit(t.NominalVoltage * t.InterruptionRatio)
}

func (t Thresholds) FrequencyLow() float64 {
	return roundLimit(t.NominalFrequency - t.FrequencyTolerance)
}

func (t Thresholds) FrequencyHigh() float64 {
	return roundLimit(t.NominalFrequency + t.FrequencyTolerance)
}

// roundLimit drops float noise so that 230*1.1 compares as 253.
func roundLimit(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
