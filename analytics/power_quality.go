package analytics

import (
	"fmt"
	"strings"

	"power-quality-processor/models"
)

const compliantMessage = "All indicators within PN-EN 50160 limits"

// Evaluate derives the PN-EN 50160 indicators for one sample. Values sitting
// exactly on a limit are within it.
func Evaluate(s models.Sample, th Thresholds) models.PowerQualityIndicators {
	voltageDev := (s.VoltageRms - th.NominalVoltage) / th.NominalVoltage * 100
	voltageOK := s.VoltageRms >= th.VoltageLow() && s.VoltageRms <= th.VoltageHigh()

	freqDev := s.Frequency - th.NominalFrequency
	freqOK := s.Frequency >= th.FrequencyLow() && s.Frequency <= th.FrequencyHigh()

	thdOK := s.ThdVoltage == nil || *s.ThdVoltage <= th.THDVoltageLimit

	harmonics := models.TruncateHarmonics(s.HarmonicsVoltage)
	if harmonics == nil {
		harmonics = []float64{}
	}

	ind := models.PowerQualityIndicators{
		Timestamp:               s.Timestamp,
		VoltageRms:              s.VoltageRms,
		VoltageDeviationPercent: voltageDev,
		VoltageWithinLimits:     voltageOK,
		Frequency:               s.Frequency,
		FrequencyDeviationHz:    freqDev,
		FrequencyWithinLimits:   freqOK,
		ThdVoltage:              s.ThdVoltage,
		ThdWithinLimits:         thdOK,
		HarmonicsVoltage:        harmonics,
		OverallCompliant:        voltageOK && freqOK && thdOK,
	}
	ind.StatusMessage = statusMessage(ind)

	return ind
}

func statusMessage(ind models.PowerQualityIndicators) string {
	if ind.OverallCompliant {
		return compliantMessage
	}

	var parts []string
	if !ind.VoltageWithinLimits {
		parts = append(parts, fmt.Sprintf("Voltage deviation %+.1f%%", ind.VoltageDeviationPercent))
	}
	if !ind.FrequencyWithinLimits {
		parts = append(parts, fmt.Sprintf("Frequency deviation %+.2f Hz", ind.FrequencyDeviationHz))
	}
	if !ind.ThdWithinLimits {
		parts = append(parts, fmt.Sprintf("THD %.1f%%", *ind.ThdVoltage))
	}

	return "Non-compliant: " + strings.Join(parts, ", ")
}
