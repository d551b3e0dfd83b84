// Package dosing implements the dosing state machine: line flushes around an
// iterative, scale-driven dispense of one liquid at a time.
package dosing

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/doser/core/device"
	"github.com/kilianp07/doser/core/events"
	"github.com/kilianp07/doser/core/logger"
	"github.com/kilianp07/doser/core/model"
	"github.com/kilianp07/doser/core/registry"
	"github.com/kilianp07/doser/internal/eventbus"
)

// Hardware groups the shared actuators and the scale.
type Hardware struct {
	Sensor     device.WeightSensor
	Pump       device.Pump
	FlushValve device.Valve
}

// Status is a point-in-time snapshot of the controller.
type Status struct {
	State      model.State   `json:"state"`
	SessionID  string        `json:"session_id,omitempty"`
	Liquid     string        `json:"liquid,omitempty"`
	Target     float64       `json:"target,omitempty"`
	Dispensed  float64       `json:"dispensed"`
	Remaining  float64       `json:"remaining"`
	Iterations int           `json:"iterations"`
	FlowRate   float64       `json:"flow_rate"`
	Fraction   float64       `json:"fraction,omitempty"`
	InState    time.Duration `json:"in_state"`
	Faults     uint64        `json:"faults"`
}

// Controller is the dosing state machine. Tick must be called periodically
// from a single goroutine; the other methods may be called concurrently.
type Controller struct {
	mu       sync.Mutex
	cfg      Config
	registry *registry.Registry
	sensor   device.WeightSensor
	pump     device.Pump
	flush    device.Valve
	bus      eventbus.EventBus
	logger   logger.Logger
	now      func() time.Time

	state      model.State
	enteredAt  time.Time
	phase      phase
	settleFrom time.Time
	pumpOnAt   time.Time
	pumping    bool
	flow       *Estimator
	session    *session
	faults     uint64
}

// NewController validates its collaborators and returns an idle controller.
// bus may be nil.
func NewController(cfg Config, reg *registry.Registry, hw Hardware, bus eventbus.EventBus, log logger.Logger) (*Controller, error) {
	if reg == nil || hw.Sensor == nil || hw.Pump == nil || hw.FlushValve == nil {
		return nil, fmt.Errorf("dosing: nil parameter provided to NewController")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("dosing config: %w", err)
	}
	if log == nil {
		return nil, fmt.Errorf("dosing: logger is required")
	}
	return &Controller{
		cfg:      cfg,
		registry: reg,
		sensor:   hw.Sensor,
		pump:     hw.Pump,
		flush:    hw.FlushValve,
		bus:      bus,
		logger:   log,
		now:      time.Now,
		state:    model.StateIdle,
		flow:     NewEstimator(cfg.InitialFlowRate, cfg.MinFlowRate, cfg.MaxFlowRate, cfg.Smoothing),
	}, nil
}

// SetClock replaces the time source. Used by the simulator and tests.
func (c *Controller) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Config returns the effective configuration.
func (c *Controller) Config() Config { return c.cfg }

// State returns the current state.
func (c *Controller) State() model.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsBusy reports whether a dose or flush is in progress.
func (c *Controller) IsBusy() bool { return c.State() != model.StateIdle }

// FlowRate returns the learned pump throughput in g/s.
func (c *Controller) FlowRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flow.Rate()
}

// CurrentWeight reads the scale.
func (c *Controller) CurrentWeight() (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sensor.Weight()
}

// Status returns a snapshot for status displays.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{
		State:    c.state,
		FlowRate: c.flow.Rate(),
		Faults:   c.faults,
	}
	if c.state != model.StateIdle {
		st.InState = c.now().Sub(c.enteredAt)
	}
	if s := c.session; s != nil {
		st.SessionID = s.id
		st.Liquid = s.name
		st.Target = c.target(s)
		st.Dispensed = s.dispensed()
		st.Remaining = s.remaining
		st.Iterations = s.iterations
		st.Fraction = s.fraction
	}
	return st
}

// SetTarget changes the target of a liquid. A running session picks the new
// value up at its next stabilization.
func (c *Controller) SetTarget(index int, grams float64) error {
	if err := c.registry.UpdateTarget(index, grams); err != nil {
		return fmt.Errorf("set target: %w", ErrUnknownLiquid)
	}
	return nil
}

// RequestDispense starts a dosing session for the liquid at index.
func (c *Controller) RequestDispense(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if c.state != model.StateIdle {
		return c.reject(now, "dispense", ErrBusy)
	}
	liq, err := c.registry.Get(index)
	if err != nil {
		return c.reject(now, "dispense", fmt.Errorf("%w: index %d", ErrUnknownLiquid, index))
	}

	zero := model.DataPoint{Timestamp: now, Weight: 0}
	if err := c.registry.ResetSamples(index, zero); err != nil {
		return fmt.Errorf("reset samples: %w", err)
	}
	s := &session{
		id:         uuid.NewString(),
		liquid:     index,
		name:       liq.Name,
		valve:      liq.Valve,
		target:     liq.TargetAmount,
		started:    now,
		remaining:  liq.TargetAmount,
		fraction:   c.cfg.DefaultFraction,
		lastChange: now,
	}
	if err := c.flush.Open(); err != nil {
		c.fault("open flush valve", err)
		return fmt.Errorf("open flush valve: %w", err)
	}
	if err := c.pumpOn(now); err != nil {
		c.closeValve(c.flush)
		return fmt.Errorf("start pump: %w", err)
	}
	c.session = s
	c.publish(events.SampleRecorded{SessionID: s.id, Liquid: s.name, Sample: zero})
	c.transition(now, model.StateInitialFlush)
	c.logger.Infow("dispense started", map[string]any{
		"session": s.id,
		"liquid":  s.name,
		"target":  s.target,
	})
	return nil
}

// RequestFlush runs the pump through the flush line for FlushingTime.
func (c *Controller) RequestFlush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if c.state != model.StateIdle {
		return c.reject(now, "flush", ErrBusy)
	}
	if err := c.flush.Open(); err != nil {
		c.fault("open flush valve", err)
		return fmt.Errorf("open flush valve: %w", err)
	}
	if err := c.pumpOn(now); err != nil {
		c.closeValve(c.flush)
		return fmt.Errorf("start pump: %w", err)
	}
	c.transition(now, model.StateFlushing)
	c.logger.Infof("flush started for %s", c.cfg.FlushingTime)
	return nil
}

// CalibrateScale derives the scale factor from a known weight on the sensor.
func (c *Controller) CalibrateScale(knownWeight float64) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != model.StateIdle {
		return 0, c.reject(c.now(), "calibrate", ErrBusy)
	}
	if knownWeight <= 0 {
		return 0, fmt.Errorf("calibrate: known weight must be positive, got %.3f", knownWeight)
	}
	factor, err := c.sensor.Calibrate(knownWeight)
	if err != nil {
		return 0, fmt.Errorf("calibrate: %w", err)
	}
	c.logger.Infof("scale calibrated with %.2fg, factor %.4f", knownWeight, factor)
	return factor, nil
}

// Tick advances the state machine by one step.
func (c *Controller) Tick() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	// DONE has already reported its outcome and clears on this tick.
	if c.state != model.StateIdle && c.state != model.StateDone && now.Sub(c.enteredAt) > c.cfg.MaxStateDuration {
		c.abort(now, ErrStateTimeout)
		return
	}
	switch c.state {
	case model.StateInitialFlush:
		c.updateInitialFlush(now)
	case model.StateDispensing:
		c.updateDispensing(now)
	case model.StateStabilizing:
		c.updateStabilizing(now)
	case model.StateFinalFlush:
		c.updateFinalFlush(now)
	case model.StateFlushing:
		c.updateFlushing(now)
	case model.StateDone:
		c.session = nil
		c.transition(now, model.StateIdle)
	}
}

func (c *Controller) updateInitialFlush(now time.Time) {
	s := c.session
	switch c.phase {
	case phaseRun:
		w, err := c.sensor.Weight()
		if err != nil {
			c.fault("read weight", err)
			return
		}
		if math.Abs(w-s.lastWeight) > c.cfg.FlushStableDelta {
			s.lastWeight = w
			s.lastChange = now
			return
		}
		if now.Sub(s.lastChange) < c.cfg.FlushStableWindow {
			return
		}
		c.pumpOff()
		c.phase = phaseSettle
		c.settleFrom = now
		c.logger.Debugf("initial flush stable at %.2fg", w)
	case phaseSettle:
		if now.Sub(c.settleFrom) < c.cfg.SettleTime {
			return
		}
		c.closeValve(c.flush)
		if err := c.sensor.Tare(); err != nil {
			c.fault("tare", err)
			return
		}
		w, err := c.sensor.Weight()
		if err != nil {
			c.fault("read weight", err)
			return
		}
		s.initialWeight = w
		if err := s.valve.Open(); err != nil {
			c.fault("open valve "+s.valve.Name(), err)
			return
		}
		c.startDispensing(now)
	}
}

func (c *Controller) startDispensing(now time.Time) {
	s := c.session
	s.iterations++
	if c.cfg.MaxIterations > 0 && s.iterations > c.cfg.MaxIterations {
		c.abort(now, ErrIterationLimit)
		return
	}
	amount := s.remaining * s.fraction
	d := c.flow.PumpTime(amount)
	if d > c.cfg.MaxPumpTime {
		d = c.cfg.MaxPumpTime
	}
	s.pumpTarget = d
	c.transition(now, model.StateDispensing)
	if err := c.pumpOn(now); err != nil {
		return
	}
	c.logger.Debugw("dispensing", map[string]any{
		"session":   s.id,
		"iteration": s.iterations,
		"amount":    amount,
		"pump_ms":   d.Milliseconds(),
		"flow_rate": c.flow.Rate(),
	})
}

func (c *Controller) updateDispensing(now time.Time) {
	s := c.session
	if !c.pumping {
		// The pump refused to start; retry and time the round from the
		// first successful start.
		_ = c.pumpOn(now)
		return
	}
	elapsed := now.Sub(c.pumpOnAt)
	if elapsed < s.pumpTarget {
		return
	}
	c.pumpOff()
	s.pumpTime = elapsed
	c.transition(now, model.StateStabilizing)
}

func (c *Controller) updateStabilizing(now time.Time) {
	if now.Sub(c.enteredAt) < c.cfg.StabilizationTime {
		return
	}
	s := c.session
	w, err := c.sensor.Weight()
	if err != nil {
		c.fault("read weight", err)
		return
	}
	target := c.target(s)
	dispensed := w - s.initialWeight
	this := dispensed - s.lastDispensed
	c.appendSample(now, dispensed)
	s.lastDispensed = dispensed
	s.measured = dispensed
	s.remaining = target - dispensed

	if !c.cfg.DisableFeedback {
		if s.pumpTime > 0 {
			c.flow.Observe(this, s.pumpTime)
		}
		if target > 0 {
			s.fraction = SelectFraction(s.remaining, target)
		}
	}
	c.publish(events.IterationCompleted{
		SessionID:     s.id,
		Liquid:        s.name,
		Iteration:     s.iterations,
		PumpTime:      s.pumpTime,
		Dispensed:     dispensed,
		ThisIteration: this,
		Remaining:     s.remaining,
		FlowRate:      c.flow.Rate(),
		Fraction:      s.fraction,
		Time:          now,
	})
	s.pumpTime = 0

	if s.remaining > c.cfg.CompletionThreshold {
		c.startDispensing(now)
		return
	}
	c.closeValve(s.valve)
	if err := c.flush.Open(); err != nil {
		c.fault("open flush valve", err)
	}
	c.transition(now, model.StateFinalFlush)
	_ = c.pumpOn(now)
}

func (c *Controller) updateFinalFlush(now time.Time) {
	s := c.session
	switch c.phase {
	case phaseRun:
		if now.Sub(c.enteredAt) < c.cfg.FlushingTime {
			return
		}
		c.pumpOff()
		c.closeValve(c.flush)
		c.phase = phaseSettle
		c.settleFrom = now
	case phaseSettle:
		if now.Sub(c.settleFrom) < c.cfg.SettleTime {
			return
		}
		w, err := c.sensor.Weight()
		if err != nil {
			c.fault("read weight", err)
			return
		}
		total := w - s.initialWeight
		c.appendSample(now, total)
		s.measured = total
		target := c.target(s)
		s.remaining = target - total
		if total < target && target-total > c.cfg.FinalTolerance {
			c.logger.Warnf("%s: %v, %.2fg of %.2fg; resuming", s.name, ErrIncompleteDose, total, target)
			c.publish(events.IncompleteDose{SessionID: s.id, Liquid: s.name, Target: target, Dispensed: total, Time: now})
			if err := s.valve.Open(); err != nil {
				c.fault("open valve "+s.valve.Name(), err)
			}
			c.transition(now, model.StateStabilizing)
			return
		}
		c.transition(now, model.StateDone)
		c.finish(now, events.OutcomeCompleted, "")
		c.logger.Infow("dispense complete", map[string]any{
			"session":    s.id,
			"liquid":     s.name,
			"target":     target,
			"dispensed":  total,
			"iterations": s.iterations,
			"flow_rate":  c.flow.Rate(),
		})
	}
}

func (c *Controller) updateFlushing(now time.Time) {
	elapsed := now.Sub(c.enteredAt)
	if elapsed < c.cfg.FlushingTime {
		return
	}
	c.pumpOff()
	c.closeValve(c.flush)
	c.publish(events.FlushFinished{Duration: elapsed, Time: now})
	c.transition(now, model.StateIdle)
	c.logger.Infof("flush complete after %s", elapsed)
}

// abort shuts every actuator and returns to IDLE.
func (c *Controller) abort(now time.Time, reason error) {
	from := c.state
	elapsed := now.Sub(c.enteredAt)
	c.pumpOff()
	c.closeValve(c.flush)
	s := c.session
	if s != nil && s.valve != nil {
		c.closeValve(s.valve)
	}
	c.logger.Errorf("%s in %s after %s; resetting to IDLE", reason, from, elapsed)

	outcome := events.OutcomeAborted
	if errors.Is(reason, ErrStateTimeout) {
		outcome = events.OutcomeTimeout
		ev := events.StateTimeout{State: from, Elapsed: elapsed, Time: now}
		if s != nil {
			ev.SessionID, ev.Liquid = s.id, s.name
		}
		c.publish(ev)
	}
	if s != nil {
		c.finish(now, outcome, reason.Error())
	}
	c.session = nil
	c.transition(now, model.StateIdle)
}

func (c *Controller) finish(now time.Time, outcome events.Outcome, reason string) {
	s := c.session
	ev := events.DoseFinished{
		SessionID:  s.id,
		Liquid:     s.name,
		Target:     c.target(s),
		Dispensed:  s.dispensed(),
		Iterations: s.iterations,
		FlowRate:   c.flow.Rate(),
		Outcome:    outcome,
		Reason:     reason,
		Started:    s.started,
		Finished:   now,
	}
	if liq, err := c.registry.Get(s.liquid); err == nil {
		ev.Samples = liq.Samples
	}
	c.publish(ev)
}

func (c *Controller) transition(now time.Time, to model.State) {
	from := c.state
	c.state = to
	c.enteredAt = now
	c.phase = phaseRun
	ev := events.StateChanged{From: from, To: to, Time: now}
	if s := c.session; s != nil {
		ev.SessionID, ev.Liquid = s.id, s.name
	}
	c.publish(ev)
	c.logger.Debugf("state %s -> %s", from, to)
}

// target reads the live target so runtime edits apply to the running dose.
func (c *Controller) target(s *session) float64 {
	if liq, err := c.registry.Get(s.liquid); err == nil {
		return liq.TargetAmount
	}
	return s.target
}

func (c *Controller) appendSample(now time.Time, weight float64) {
	s := c.session
	dp := model.DataPoint{Timestamp: now, Weight: weight}
	if err := c.registry.AppendSample(s.liquid, dp); err != nil {
		c.fault("append sample", err)
		return
	}
	c.publish(events.SampleRecorded{SessionID: s.id, Liquid: s.name, Sample: dp})
}

func (c *Controller) pumpOn(now time.Time) error {
	if err := c.pump.On(); err != nil {
		c.fault("pump on", err)
		return err
	}
	c.pumpOnAt = now
	c.pumping = true
	return nil
}

func (c *Controller) pumpOff() {
	c.pumping = false
	if err := c.pump.Off(); err != nil {
		c.fault("pump off", err)
	}
}

func (c *Controller) closeValve(v device.Valve) {
	if err := v.Close(); err != nil {
		c.fault("close valve "+v.Name(), err)
	}
}

func (c *Controller) fault(op string, err error) {
	c.faults++
	c.logger.Errorf("%s: %v", op, err)
	c.publish(events.HardwareFault{Op: op, Err: err, State: c.state, Time: c.now()})
}

func (c *Controller) reject(now time.Time, req string, err error) error {
	c.logger.Warnf("%s rejected in %s: %v", req, c.state, err)
	c.publish(events.RequestRejected{Request: req, State: c.state, Err: err, Time: now})
	return fmt.Errorf("%s: %w", req, err)
}

func (c *Controller) publish(e events.Event) {
	if c.bus != nil {
		c.bus.Publish(e)
	}
}
