package scenarios

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/doser/core/dosing"
	"github.com/kilianp07/doser/core/events"
	"github.com/kilianp07/doser/infra/sim"
)

// RigDef describes the simulated rig a scenario runs on.
type RigDef struct {
	FlowRate float64 `yaml:"flow_rate"`
	Noise    float64 `yaml:"noise"`
	Seed     int64   `yaml:"seed"`
}

func (r RigDef) ToConfig() sim.Config {
	return sim.Config{FlowRate: r.FlowRate, Noise: r.Noise, Seed: r.Seed}
}

// ControllerDef overrides controller constants. Zero fields keep the defaults.
type ControllerDef struct {
	DisableFeedback  bool          `yaml:"disable_feedback"`
	MaxIterations    int           `yaml:"max_iterations"`
	FlushingTime     time.Duration `yaml:"flushing_time"`
	MaxStateDuration time.Duration `yaml:"max_state_duration"`
}

func (c ControllerDef) ToConfig() dosing.Config {
	cfg := dosing.Config{
		DisableFeedback:  c.DisableFeedback,
		MaxIterations:    c.MaxIterations,
		FlushingTime:     c.FlushingTime,
		MaxStateDuration: c.MaxStateDuration,
	}
	cfg.SetDefaults()
	return cfg
}

type LiquidDef struct {
	Name   string  `yaml:"name"`
	Target float64 `yaml:"target"`
}

// Expected holds the assertions applied to the finished dose. Zero bounds
// are not checked.
type Expected struct {
	Outcome       string  `yaml:"outcome"`
	MaxAbsError   float64 `yaml:"max_abs_error"`
	MinError      float64 `yaml:"min_error"`
	MaxIterations int     `yaml:"max_iterations"`
}

type Scenario struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description,omitempty"`
	Rig         RigDef        `yaml:"rig"`
	Controller  ControllerDef `yaml:"controller"`
	Liquid      LiquidDef     `yaml:"liquid"`
	Expected    Expected      `yaml:"expected"`
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	if sc.Name == "" {
		return nil, fmt.Errorf("%s: scenario name is required", path)
	}
	if sc.Liquid.Name == "" {
		sc.Liquid.Name = "water"
	}
	if _, err := parseOutcome(sc.Expected.Outcome); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &sc, nil
}

func parseOutcome(s string) (events.Outcome, error) {
	switch events.Outcome(s) {
	case "":
		return events.OutcomeCompleted, nil
	case events.OutcomeCompleted, events.OutcomeTimeout, events.OutcomeAborted:
		return events.Outcome(s), nil
	}
	return "", fmt.Errorf("unknown outcome %q", s)
}
