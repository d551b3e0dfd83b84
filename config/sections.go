package config

import (
	"fmt"
	"time"

	"github.com/kilianp07/doser/core/dosing"
	"github.com/kilianp07/doser/infra/sim"
)

// DriverConfig tunes the loop that ticks the controller.
type DriverConfig struct {
	TickInterval time.Duration `json:"tick_interval"`
	// CommandBuffer is the capacity of the command channel.
	CommandBuffer int `json:"command_buffer"`
	// EventBuffer is the per-subscriber capacity of the event bus.
	EventBuffer int `json:"event_buffer"`
}

func (c *DriverConfig) SetDefaults() {
	if c.TickInterval == 0 {
		c.TickInterval = dosing.DefaultTickInterval
	}
	if c.CommandBuffer == 0 {
		c.CommandBuffer = 8
	}
	if c.EventBuffer == 0 {
		c.EventBuffer = 1024
	}
}

func (c DriverConfig) Validate() error {
	if c.TickInterval <= 0 || c.TickInterval > time.Second {
		return fmt.Errorf("tick_interval must be in (0, 1s], got %s", c.TickInterval)
	}
	if c.CommandBuffer < 0 || c.EventBuffer < 0 {
		return fmt.Errorf("buffers must not be negative")
	}
	return nil
}

// LiquidConfig declares one dosing line.
type LiquidConfig struct {
	Name   string  `json:"name"`
	Target float64 `json:"target"` // grams
	Valve  string  `json:"valve"`
}

// SetDefaults names the valve after its position when unset.
func (c *LiquidConfig) SetDefaults(index int) {
	if c.Valve == "" {
		c.Valve = fmt.Sprintf("valve-%d", index+1)
	}
}

func validateLiquids(ls []LiquidConfig) error {
	if len(ls) == 0 {
		return fmt.Errorf("at least one liquid is required")
	}
	names := make(map[string]bool, len(ls))
	valves := make(map[string]bool, len(ls))
	for i, l := range ls {
		if l.Name == "" {
			return fmt.Errorf("liquid %d: name is required", i)
		}
		if names[l.Name] {
			return fmt.Errorf("duplicate liquid %q", l.Name)
		}
		if valves[l.Valve] {
			return fmt.Errorf("valve %q used twice", l.Valve)
		}
		if l.Target < 0 {
			return fmt.Errorf("liquid %q: negative target", l.Name)
		}
		names[l.Name] = true
		valves[l.Valve] = true
	}
	return nil
}

// HardwareConfig selects the actuator and sensor backend.
type HardwareConfig struct {
	// Mode is "sim"; it is the only backend shipped.
	Mode string     `json:"mode"`
	Sim  sim.Config `json:"sim"`
}

func (c *HardwareConfig) SetDefaults() {
	if c.Mode == "" {
		c.Mode = "sim"
	}
	c.Sim.SetDefaults()
}

func (c HardwareConfig) Validate() error {
	if c.Mode != "sim" {
		return fmt.Errorf("unsupported mode %q", c.Mode)
	}
	if c.Sim.FlowRate <= 0 || c.Sim.Noise < 0 {
		return fmt.Errorf("sim flow_rate must be positive and noise not negative")
	}
	return nil
}

// HTTPConfig controls the metrics and read-only API server. An empty Addr
// disables it.
type HTTPConfig struct {
	Addr  string `json:"addr"`
	Token string `json:"token"`
}
