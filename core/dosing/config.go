package dosing

import (
	"fmt"
	"time"
)

// Config holds the timing and control constants of the controller.
// Zero values are replaced by SetDefaults.
type Config struct {
	// MaxStateDuration bounds the time spent in any non-idle state.
	MaxStateDuration time.Duration `json:"max_state_duration"`
	// StabilizationTime is the wait after pump shutoff before weighing.
	StabilizationTime time.Duration `json:"stabilization_time"`
	// SettleTime is the pause after a flush before the next actuation or reading.
	SettleTime time.Duration `json:"settle_time"`
	// FlushingTime is the pump-on time of the final and stand-alone flushes.
	FlushingTime time.Duration `json:"flushing_time"`
	// FlushStableWindow is how long the weight must hold still to end the initial flush.
	FlushStableWindow time.Duration `json:"flush_stable_window"`
	// FlushStableDelta is the weight change (g) that restarts the stable window.
	FlushStableDelta float64 `json:"flush_stable_delta"`
	// CompletionThreshold (g): iterate again while more than this remains.
	CompletionThreshold float64 `json:"completion_threshold"`
	// FinalTolerance (g): shortfall after the final flush that resumes dosing.
	FinalTolerance float64 `json:"final_tolerance"`

	InitialFlowRate float64 `json:"initial_flow_rate"` // g/s
	MinFlowRate     float64 `json:"min_flow_rate"`     // g/s
	MaxFlowRate     float64 `json:"max_flow_rate"`     // g/s
	// Smoothing is the weight given to a new flow observation.
	Smoothing float64 `json:"smoothing"`
	// DefaultFraction is the share of the remainder attempted before any feedback.
	DefaultFraction float64 `json:"default_fraction"`
	// DisableFeedback freezes the flow rate and fraction at their initial values.
	DisableFeedback bool `json:"disable_feedback"`

	// MaxIterations aborts a session that has not converged after that many rounds.
	MaxIterations int `json:"max_iterations"`
	// MaxPumpTime bounds the pump-on time of one dispensing iteration.
	MaxPumpTime time.Duration `json:"max_pump_time"`
}

// DefaultConfig returns the controller constants of the reference rig.
func DefaultConfig() Config {
	return Config{
		MaxStateDuration:    30 * time.Second,
		StabilizationTime:   500 * time.Millisecond,
		SettleTime:          500 * time.Millisecond,
		FlushingTime:        8 * time.Second,
		FlushStableWindow:   2 * time.Second,
		FlushStableDelta:    0.1,
		CompletionThreshold: 0.01,
		FinalTolerance:      0.1,
		InitialFlowRate:     1.0,
		MinFlowRate:         0.8,
		MaxFlowRate:         10.0,
		Smoothing:           0.3,
		DefaultFraction:     0.6,
		MaxIterations:       100,
		MaxPumpTime:         20 * time.Second,
	}
}

// SetDefaults fills zero fields from DefaultConfig.
func (c *Config) SetDefaults() {
	d := DefaultConfig()
	if c.MaxStateDuration == 0 {
		c.MaxStateDuration = d.MaxStateDuration
	}
	if c.StabilizationTime == 0 {
		c.StabilizationTime = d.StabilizationTime
	}
	if c.SettleTime == 0 {
		c.SettleTime = d.SettleTime
	}
	if c.FlushingTime == 0 {
		c.FlushingTime = d.FlushingTime
	}
	if c.FlushStableWindow == 0 {
		c.FlushStableWindow = d.FlushStableWindow
	}
	if c.FlushStableDelta == 0 {
		c.FlushStableDelta = d.FlushStableDelta
	}
	if c.CompletionThreshold == 0 {
		c.CompletionThreshold = d.CompletionThreshold
	}
	if c.FinalTolerance == 0 {
		c.FinalTolerance = d.FinalTolerance
	}
	if c.InitialFlowRate == 0 {
		c.InitialFlowRate = d.InitialFlowRate
	}
	if c.MinFlowRate == 0 {
		c.MinFlowRate = d.MinFlowRate
	}
	if c.MaxFlowRate == 0 {
		c.MaxFlowRate = d.MaxFlowRate
	}
	if c.Smoothing == 0 {
		c.Smoothing = d.Smoothing
	}
	if c.DefaultFraction == 0 {
		c.DefaultFraction = d.DefaultFraction
	}
	if c.MaxIterations == 0 {
		c.MaxIterations = d.MaxIterations
	}
	if c.MaxPumpTime == 0 {
		c.MaxPumpTime = d.MaxPumpTime
	}
}

// Validate checks the relations between constants.
func (c Config) Validate() error {
	if c.MinFlowRate <= 0 || c.MaxFlowRate < c.MinFlowRate {
		return fmt.Errorf("flow rate bounds must satisfy 0 < min <= max (got %.3f, %.3f)", c.MinFlowRate, c.MaxFlowRate)
	}
	if c.DefaultFraction <= 0 || c.DefaultFraction > 1 {
		return fmt.Errorf("default_fraction must be in (0,1], got %.3f", c.DefaultFraction)
	}
	if c.Smoothing <= 0 || c.Smoothing > 1 {
		return fmt.Errorf("smoothing must be in (0,1], got %.3f", c.Smoothing)
	}
	if c.MaxStateDuration <= 0 {
		return fmt.Errorf("max_state_duration must be positive")
	}
	if c.FlushingTime+c.SettleTime >= c.MaxStateDuration {
		return fmt.Errorf("flushing_time plus settle_time must stay below max_state_duration")
	}
	if c.MaxPumpTime <= 0 || c.MaxPumpTime >= c.MaxStateDuration {
		return fmt.Errorf("max_pump_time must be positive and below max_state_duration")
	}
	if c.MaxIterations < 0 {
		return fmt.Errorf("max_iterations must not be negative")
	}
	return nil
}
