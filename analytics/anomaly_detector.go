package analytics

import (
	"math"
	"sync"
)

const (
	defaultAnomalyWindow    = 50
	defaultAnomalyThreshold = 3.0 // 3σ on RMS voltage
)

// AnomalyDetector flags values whose z-score against the recent window
// exceeds the threshold. The value is scored before it joins the window.
type AnomalyDetector struct {
	mu        sync.Mutex
	window    *RollingWindow
	threshold float64
}

func NewAnomalyDetector(size int, threshold float64) *AnomalyDetector {
	if size <= 0 {
		size = defaultAnomalyWindow
	}
	if threshold <= 0 {
		threshold = defaultAnomalyThreshold
	}
	return &AnomalyDetector{
		window:    NewRollingWindow(size),
		threshold: threshold,
	}
}

func (ad *AnomalyDetector) Detect(value float64) (bool, float64) {
	ad.mu.Lock()
	defer ad.mu.Unlock()

	values := ad.window.Values()
	ad.window.Add(value)

	if len(values) < 2 {
		return false, 0.0
	}

	mean := Mean(values)
	stdDev := StdDev(values, mean)
	if stdDev == 0 {
		return false, 0.0
	}

	zScore := math.Abs((value - mean) / stdDev)
	return zScore > ad.threshold, zScore
}
