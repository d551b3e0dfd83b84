// Package sim models a dosing rig: one pump feeding a flush line and a set of
// liquid lines into a container standing on a load cell.
package sim

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/kilianp07/doser/core/device"
)

// Config describes the physical behaviour of the simulated rig.
type Config struct {
	// FlowRate is the real pump throughput in g/s while a liquid line is open.
	FlowRate float64 `json:"flow_rate"`
	// Noise is the standard deviation of scale readings in grams.
	Noise float64 `json:"noise"`
	// Seed initialises the noise generator.
	Seed int64 `json:"seed"`
	// RawPerGram is the load-cell output per gram.
	RawPerGram float64 `json:"raw_per_gram"`
	// ScaleFactor is the factor the scale starts with. Zero means RawPerGram,
	// i.e. a calibrated scale.
	ScaleFactor float64 `json:"scale_factor"`
}

// SetDefaults fills zero fields.
func (c *Config) SetDefaults() {
	if c.FlowRate == 0 {
		c.FlowRate = 1.0
	}
	if c.RawPerGram == 0 {
		c.RawPerGram = 1.0
	}
	if c.ScaleFactor == 0 {
		c.ScaleFactor = c.RawPerGram
	}
	if c.Seed == 0 {
		c.Seed = 1
	}
}

// ErrNoReference is returned when calibrating an empty scale.
var ErrNoReference = errors.New("no reference weight on the scale")

// Rig owns the simulated actuators and integrates delivered mass over time.
type Rig struct {
	mu     sync.Mutex
	cfg    Config
	now    func() time.Time
	last   time.Time
	mass   float64
	tare   float64
	factor float64
	rng    *rand.Rand

	pump   *Pump
	flush  *Valve
	valves []*Valve
	scale  *Scale
}

// NewRig builds a rig using now as its time source.
func NewRig(cfg Config, now func() time.Time) *Rig {
	cfg.SetDefaults()
	if now == nil {
		now = time.Now
	}
	r := &Rig{
		cfg:    cfg,
		now:    now,
		last:   now(),
		factor: cfg.ScaleFactor,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
	}
	r.pump = &Pump{rig: r}
	r.flush = &Valve{rig: r, name: "flush"}
	r.scale = &Scale{rig: r}
	return r
}

// Pump returns the rig pump.
func (r *Rig) Pump() *Pump { return r.pump }

// FlushValve returns the valve of the flush line.
func (r *Rig) FlushValve() *Valve { return r.flush }

// Scale returns the load cell.
func (r *Rig) Scale() *Scale { return r.scale }

// AddValve adds a liquid line.
func (r *Rig) AddValve(name string) *Valve {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := &Valve{rig: r, name: name}
	r.valves = append(r.valves, v)
	return v
}

// Mass returns the true mass delivered to the container so far.
func (r *Rig) Mass() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.integrate()
	return r.mass
}

// Place puts an object of the given mass on the scale, or removes one when
// grams is negative.
func (r *Rig) Place(grams float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.integrate()
	r.mass += grams
}

// integrate accounts for the flow since the last actuator change. Callers
// hold r.mu.
func (r *Rig) integrate() {
	now := r.now()
	dt := now.Sub(r.last)
	r.last = now
	if dt <= 0 || !r.pump.on {
		return
	}
	for _, v := range r.valves {
		if v.open {
			r.mass += r.cfg.FlowRate * dt.Seconds()
			return
		}
	}
}

func (r *Rig) raw() float64 {
	r.integrate()
	raw := r.mass * r.cfg.RawPerGram
	if r.cfg.Noise > 0 {
		raw += r.rng.NormFloat64() * r.cfg.Noise * r.cfg.RawPerGram
	}
	return raw
}

// Pump is the simulated dosing pump.
type Pump struct {
	rig *Rig
	on  bool
}

var _ device.Pump = (*Pump)(nil)

func (p *Pump) On() error  { return p.set(true) }
func (p *Pump) Off() error { return p.set(false) }

func (p *Pump) IsOn() bool {
	p.rig.mu.Lock()
	defer p.rig.mu.Unlock()
	return p.on
}

func (p *Pump) set(on bool) error {
	p.rig.mu.Lock()
	defer p.rig.mu.Unlock()
	p.rig.integrate()
	p.on = on
	return nil
}

// Valve is a simulated on/off valve.
type Valve struct {
	rig  *Rig
	name string
	open bool
}

var _ device.Valve = (*Valve)(nil)

func (v *Valve) Open() error  { return v.set(true) }
func (v *Valve) Close() error { return v.set(false) }
func (v *Valve) Name() string { return v.name }

func (v *Valve) IsOpen() bool {
	v.rig.mu.Lock()
	defer v.rig.mu.Unlock()
	return v.open
}

func (v *Valve) set(open bool) error {
	v.rig.mu.Lock()
	defer v.rig.mu.Unlock()
	v.rig.integrate()
	v.open = open
	return nil
}

// Scale is the simulated load cell.
type Scale struct {
	rig *Rig
}

var _ device.WeightSensor = (*Scale)(nil)

// Weight returns the tared reading in grams.
func (s *Scale) Weight() (float64, error) {
	r := s.rig
	r.mu.Lock()
	defer r.mu.Unlock()
	return (r.raw() - r.tare) / r.factor, nil
}

// Tare zeroes the scale at the current load.
func (s *Scale) Tare() error {
	r := s.rig
	r.mu.Lock()
	defer r.mu.Unlock()
	r.integrate()
	r.tare = r.mass * r.cfg.RawPerGram
	return nil
}

// Calibrate sets the factor so the current load reads knownWeight.
func (s *Scale) Calibrate(knownWeight float64) (float64, error) {
	r := s.rig
	r.mu.Lock()
	defer r.mu.Unlock()
	if knownWeight <= 0 {
		return 0, fmt.Errorf("known weight must be positive, got %.3f", knownWeight)
	}
	r.integrate()
	delta := r.mass*r.cfg.RawPerGram - r.tare
	if delta <= 0 {
		return 0, ErrNoReference
	}
	r.factor = delta / knownWeight
	return r.factor, nil
}
