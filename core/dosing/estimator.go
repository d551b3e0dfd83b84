package dosing

import (
	"math"
	"time"
)

// Estimator tracks pump throughput with an exponential moving average.
type Estimator struct {
	rate      float64
	min       float64
	max       float64
	smoothing float64
}

// NewEstimator returns an estimator seeded with initial, clamped to [min,max].
func NewEstimator(initial, min, max, smoothing float64) *Estimator {
	e := &Estimator{min: min, max: max, smoothing: smoothing}
	e.rate = e.clamp(initial)
	return e
}

// Rate returns the current estimate in g/s.
func (e *Estimator) Rate() float64 { return e.rate }

// Observe folds a measured delivery into the estimate and returns it.
// Observations without pump time are ignored.
func (e *Estimator) Observe(grams float64, elapsed time.Duration) float64 {
	ms := float64(elapsed) / float64(time.Millisecond)
	if ms <= 0 || math.IsNaN(grams) {
		return e.rate
	}
	measured := grams / ms * 1000
	e.rate = e.clamp((1-e.smoothing)*e.rate + e.smoothing*measured)
	return e.rate
}

// PumpTime converts a mass into a pump-on duration at the current rate,
// rounded to the nearest millisecond.
func (e *Estimator) PumpTime(grams float64) time.Duration {
	if grams <= 0 {
		return 0
	}
	return time.Duration(math.Round(grams/e.rate*1000)) * time.Millisecond
}

func (e *Estimator) clamp(v float64) float64 {
	return math.Min(math.Max(v, e.min), e.max)
}

// SelectFraction picks the share of the remainder to attempt next: smaller
// steps as the dose approaches its target.
func SelectFraction(remaining, target float64) float64 {
	switch {
	case remaining < target*0.2:
		return 0.25
	case remaining < target*0.5:
		return 0.4
	default:
		return 0.5
	}
}
