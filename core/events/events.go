package events

import (
	"time"

	"github.com/kilianp07/doser/core/model"
)

// Event is anything published on the bus.
type Event interface{}

// Outcome classifies how a dosing session ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeTimeout   Outcome = "timeout"
	OutcomeAborted   Outcome = "aborted"
)

// StateChanged is published on every controller transition.
type StateChanged struct {
	SessionID string
	Liquid    string
	From      model.State
	To        model.State
	Time      time.Time
}

// SampleRecorded carries a trace point of the active liquid.
type SampleRecorded struct {
	SessionID string
	Liquid    string
	Sample    model.DataPoint
}

// IterationCompleted summarizes one dispense/stabilize round.
type IterationCompleted struct {
	SessionID     string
	Liquid        string
	Iteration     int
	PumpTime      time.Duration
	Dispensed     float64
	ThisIteration float64
	Remaining     float64
	FlowRate      float64
	Fraction      float64
	Time          time.Time
}

// DoseFinished is published once per dosing session.
type DoseFinished struct {
	SessionID  string
	Liquid     string
	Target     float64
	Dispensed  float64
	Iterations int
	FlowRate   float64
	Outcome    Outcome
	Reason     string
	Started    time.Time
	Finished   time.Time
	Samples    []model.DataPoint
}

// FlushFinished is published when a stand-alone flush ends.
type FlushFinished struct {
	Duration time.Duration
	Time     time.Time
}

// RequestRejected is published when a request is refused.
type RequestRejected struct {
	Request string
	State   model.State
	Err     error
	Time    time.Time
}

// StateTimeout is published when the guard aborts a stuck state.
type StateTimeout struct {
	SessionID string
	Liquid    string
	State     model.State
	Elapsed   time.Duration
	Time      time.Time
}

// IncompleteDose is published when the final weight check falls short.
type IncompleteDose struct {
	SessionID string
	Liquid    string
	Target    float64
	Dispensed float64
	Time      time.Time
}

// HardwareFault is published when a sensor read or an actuation fails.
type HardwareFault struct {
	Op    string
	Err   error
	State model.State
	Time  time.Time
}
