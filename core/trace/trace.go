// Package trace analyses the weight trace recorded during a dosing session.
package trace

import (
	"errors"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/doser/core/model"
)

// ErrEmptyTrace is returned when there is nothing to summarize.
var ErrEmptyTrace = errors.New("trace has no samples")

// Summary describes how a session converged on its target.
type Summary struct {
	Samples  int           `json:"samples" yaml:"samples"`
	Target   float64       `json:"target" yaml:"target"`
	Final    float64       `json:"final" yaml:"final"`
	Error    float64       `json:"error" yaml:"error"`
	Peak     float64       `json:"peak" yaml:"peak"`
	MaxStep  float64       `json:"max_step" yaml:"max_step"`
	Duration time.Duration `json:"duration" yaml:"duration"`
	// Rate is the least-squares slope of weight over time in g/s,
	// including flush and settle pauses.
	Rate float64 `json:"rate" yaml:"rate"`
	// RSquared of the Rate fit; 0 when fewer than two distinct timestamps.
	RSquared float64 `json:"r_squared" yaml:"r_squared"`
}

// Overshoot returns the amount delivered beyond target, or 0.
func (s Summary) Overshoot() float64 { return math.Max(0, s.Error) }

// Summarize computes statistics for samples against target.
func Summarize(samples []model.DataPoint, target float64) (Summary, error) {
	if len(samples) == 0 {
		return Summary{}, ErrEmptyTrace
	}
	first := samples[0].Timestamp
	last := samples[len(samples)-1]
	xs := make([]float64, len(samples))
	ys := make([]float64, len(samples))
	for i, p := range samples {
		xs[i] = p.Timestamp.Sub(first).Seconds()
		ys[i] = p.Weight
	}

	s := Summary{
		Samples:  len(samples),
		Target:   target,
		Final:    last.Weight,
		Error:    last.Weight - target,
		Peak:     floats.Max(ys),
		Duration: last.Timestamp.Sub(first),
	}
	if len(ys) > 1 {
		steps := make([]float64, len(ys)-1)
		floats.SubTo(steps, ys[1:], ys[:len(ys)-1])
		s.MaxStep = floats.Max(steps)
	}
	if s.Duration > 0 && len(samples) > 1 {
		alpha, beta := stat.LinearRegression(xs, ys, nil, false)
		s.Rate = beta
		if r2 := stat.RSquared(xs, ys, nil, alpha, beta); !math.IsNaN(r2) {
			s.RSquared = r2
		}
	}
	return s, nil
}
