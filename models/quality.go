package models

import (
	"encoding/json"
	"time"
)

// DateLayout is the calendar-date format used for aggregate keys.
const DateLayout = "2006-01-02"

type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Warnings []string `json:"warnings"`
	Errors   []string `json:"errors"`
}

// PowerQualityIndicators are the PN-EN 50160 indicators derived from one sample.
type PowerQualityIndicators struct {
	Timestamp               time.Time `json:"timestamp"`
	VoltageRms              float64   `json:"voltage_rms"`
	VoltageDeviationPercent float64   `json:"voltage_deviation_percent"`
	VoltageWithinLimits     bool      `json:"voltage_within_limits"`
	Frequency               float64   `json:"frequency"`
	FrequencyDeviationHz    float64   `json:"frequency_deviation_hz"`
	FrequencyWithinLimits   bool      `json:"frequency_within_limits"`
	ThdVoltage              *float64  `json:"thd_voltage,omitempty"`
	ThdWithinLimits         bool      `json:"thd_within_limits"`
	HarmonicsVoltage        []float64 `json:"harmonics_voltage"`
	OverallCompliant        bool      `json:"overall_compliant"`
	StatusMessage           string    `json:"status_message"`
}

// Waveform is one reconstructed fundamental cycle.
type Waveform struct {
	Voltage []float64 `json:"voltage"`
	Current []float64 `json:"current"`
}

// DailyAggregate is the per-date statistics row.
type DailyAggregate struct {
	Date time.Time `json:"-"`

	AvgVoltage    float64 `json:"avg_voltage"`
	MinVoltage    float64 `json:"min_voltage"`
	MaxVoltage    float64 `json:"max_voltage"`
	StdDevVoltage float64 `json:"std_dev_voltage"`

	AvgPowerActive float64 `json:"avg_power_active"`
	MinPower       float64 `json:"min_power"`
	PeakPower      float64 `json:"peak_power"`
	TotalEnergyKWh float64 `json:"total_energy_kwh"`

	AvgPowerFactor float64 `json:"avg_power_factor"`
	MinPowerFactor float64 `json:"min_power_factor"`

	AvgFrequency float64 `json:"avg_frequency"`
	MinFrequency float64 `json:"min_frequency"`
	MaxFrequency float64 `json:"max_frequency"`

	VoltageSagCount         int `json:"voltage_sag_count"`
	VoltageSwellCount       int `json:"voltage_swell_count"`
	InterruptionCount       int `json:"interruption_count"`
	THDViolationsCount      int `json:"thd_violations_count"`
	FrequencyDevCount       int `json:"frequency_dev_count"`
	PowerFactorPenaltyCount int `json:"power_factor_penalty_count"`

	MeasurementCount int     `json:"measurement_count"`
	DataCompleteness float64 `json:"data_completeness"`
}

func (a DailyAggregate) MarshalJSON() ([]byte, error) {
	type plain DailyAggregate
	return json.Marshal(struct {
		Date string `json:"date"`
		plain
	}{
		Date:  a.Date.Format(DateLayout),
		plain: plain(a),
	})
}

// RunState is an immutable snapshot of the daily aggregation job.
type RunState struct {
	HasRun            bool      `json:"has_run"`
	LastRunTime       time.Time `json:"last_run_time"`
	LastProcessedDate time.Time `json:"last_processed_date"`
	LastRunSuccess    bool      `json:"last_run_success"`
	LastError         string    `json:"last_error,omitempty"`
}

// Dashboard bundles what the main screen shows in one response.
type Dashboard struct {
	Latest                Sample   `json:"latest_measurement"`
	Waveforms             Waveform `json:"waveforms"`
	RecentHistory         []Sample `json:"recent_history"`
	RollingAverageVoltage float64  `json:"rolling_average_voltage"`
}

// DashboardUpdate is pushed to realtime subscribers after a sample is stored.
type DashboardUpdate struct {
	Latest     Sample                 `json:"latest_measurement"`
	Waveforms  Waveform               `json:"waveforms"`
	Indicators PowerQualityIndicators `json:"indicators"`
}
