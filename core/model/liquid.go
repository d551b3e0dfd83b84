package model

import (
	"fmt"
	"time"

	"github.com/kilianp07/doser/core/device"
)

// DataPoint is one weight reading of a dispensing trace. Weight is the amount
// dispensed since the post-flush tare, in grams.
type DataPoint struct {
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Weight    float64   `json:"weight" yaml:"weight"`
}

// Liquid is a dosing recipe bound to its dedicated valve.
type Liquid struct {
	Name         string       `json:"name"`
	TargetAmount float64      `json:"target_amount"` // grams
	Valve        device.Valve `json:"-"`
	Samples      []DataPoint  `json:"samples,omitempty"`
}

// Validate checks that the liquid can be dosed.
func (l Liquid) Validate() error {
	if l.Name == "" {
		return fmt.Errorf("liquid name is required")
	}
	if l.TargetAmount < 0 {
		return fmt.Errorf("liquid %s: target amount must not be negative", l.Name)
	}
	if l.Valve == nil {
		return fmt.Errorf("liquid %s: valve is required", l.Name)
	}
	return nil
}

// LastSample returns the most recent trace point, if any.
func (l Liquid) LastSample() (DataPoint, bool) {
	if len(l.Samples) == 0 {
		return DataPoint{}, false
	}
	return l.Samples[len(l.Samples)-1], true
}

// Progress returns the dispensed share of the target in percent, capped at 100.
func (l Liquid) Progress() float64 {
	last, ok := l.LastSample()
	if !ok || l.TargetAmount <= 0 {
		return 0
	}
	p := last.Weight / l.TargetAmount * 100
	if p > 100 {
		return 100
	}
	if p < 0 {
		return 0
	}
	return p
}
