package analytics

import (
	"fmt"
	"math"

	"power-quality-processor/models"
)

type severity int

const (
	severityWarning severity = iota
	severityError
)

type rule struct {
	severity severity
	violated func(s models.Sample) bool
	message  func(s models.Sample) string
}

// Validator classifies a sample against safety and standards limits.
// Every rule runs on every sample.
type Validator struct {
	thresholds Thresholds
	rules      []rule
}

func NewValidator(th Thresholds) *Validator {
	v := &Validator{thresholds: th}
	v.rules = v.buildRules()
	return v
}

func (v *Validator) Thresholds() Thresholds {
	return v.thresholds
}

func (v *Validator) Validate(s models.Sample) models.ValidationResult {
	result := models.ValidationResult{
		Warnings: []string{},
		Errors:   []string{},
	}

	for _, r := range v.rules {
		if !r.violated(s) {
			continue
		}
		msg := r.message(s)
		if r.severity == severityError {
			result.Errors = append(result.Errors, msg)
		} else {
			result.Warnings = append(result.Warnings, msg)
		}
	}

	result.Valid = len(result.Errors) == 0
	return result
}

func (v *Validator) buildRules() []rule {
	th := v.thresholds

	return []rule{
		{
			severity: severityError,
			violated: func(s models.Sample) bool { return s.VoltageRms > th.MaxSafeVoltage },
			message: func(s models.Sample) string {
				return fmt.Sprintf("voltage %.1fV exceeds safety threshold (%.0fV)", s.VoltageRms, th.MaxSafeVoltage)
			},
		},
		{
			severity: severityWarning,
			violated: func(s models.Sample) bool {
				return s.VoltageRms <= th.MaxSafeVoltage &&
					(s.VoltageRms < th.VoltageLow() || s.VoltageRms > th.VoltageHigh())
			},
			message: func(s models.Sample) string {
				return fmt.Sprintf("voltage %.1fV outside PN-EN 50160 band (%.0f-%.0fV)", s.VoltageRms, th.VoltageLow(), th.VoltageHigh())
			},
		},
		{
			severity: severityError,
			violated: func(s models.Sample) bool { return s.CurrentRms > th.MaxSafeCurrent },
			message: func(s models.Sample) string {
				return fmt.Sprintf("current %.2fA exceeds safety threshold (%.0fA)", s.CurrentRms, th.MaxSafeCurrent)
			},
		},
		{
			severity: severityError,
			violated: func(s models.Sample) bool {
				return s.Frequency < th.MinSafeFrequency || s.Frequency > th.MaxSafeFrequency
			},
			message: func(s models.Sample) string {
				return fmt.Sprintf("frequency %.2fHz outside safe range (%.0f-%.0fHz)", s.Frequency, th.MinSafeFrequency, th.MaxSafeFrequency)
			},
		},
		{
			severity: severityWarning,
			violated: func(s models.Sample) bool {
				return s.Frequency < th.FrequencyLow() || s.Frequency > th.FrequencyHigh()
			},
			message: func(s models.Sample) string {
				return fmt.Sprintf("frequency %.2fHz outside PN-EN 50160 band (%.1f-%.1fHz)", s.Frequency, th.FrequencyLow(), th.FrequencyHigh())
			},
		},
		{
			severity: severityError,
			violated: func(s models.Sample) bool { return s.CosPhi != nil && *s.CosPhi < th.MinPowerFactor },
			message: func(s models.Sample) string {
				return fmt.Sprintf("power factor %.3f below %.2f", *s.CosPhi, th.MinPowerFactor)
			},
		},
		{
			severity: severityWarning,
			violated: func(s models.Sample) bool { return s.ThdVoltage != nil && *s.ThdVoltage > th.THDVoltageLimit },
			message: func(s models.Sample) string {
				return fmt.Sprintf("voltage THD %.2f%% exceeds limit (%.1f%%)", *s.ThdVoltage, th.THDVoltageLimit)
			},
		},
		{
			severity: severityError,
			violated: func(s models.Sample) bool {
				return s.PowerApparent != nil && v.triangleDiff(s) > v.powerTolerance(s)
			},
			message: func(s models.Sample) string {
				return fmt.Sprintf("power inconsistency (P,Q vs S): difference %.2f VA", v.triangleDiff(s))
			},
		},
		{
			severity: severityWarning,
			violated: func(s models.Sample) bool {
				return s.PowerApparent != nil && v.productDiff(s) > v.powerTolerance(s)
			},
			message: func(s models.Sample) string {
				return fmt.Sprintf("measurement inconsistency (U,I vs S): difference %.2f VA", v.productDiff(s))
			},
		},
	}
}

func (v *Validator) powerTolerance(s models.Sample) float64 {
	return v.thresholds.PowerTolerance * *s.PowerApparent
}

// triangleDiff compares reported S against sqrt(P²+Q²). Absent P or Q count as zero.
func (v *Validator) triangleDiff(s models.Sample) float64 {
	p := models.Value(s.PowerActive, 0)
	q := models.Value(s.PowerReactive, 0)
	return math.Abs(*s.PowerApparent - math.Hypot(p, q))
}

func (v *Validator) productDiff(s models.Sample) float64 {
	return math.Abs(*s.PowerApparent - s.VoltageRms*s.CurrentRms)
}
