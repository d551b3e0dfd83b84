package metrics

import "time"

// DoseResult summarizes a finished dosing session.
type DoseResult struct {
	SessionID  string
	Liquid     string
	Target     float64
	Dispensed  float64
	Iterations int
	FlowRate   float64
	Outcome    string
	Duration   time.Duration
	Time       time.Time
}

// Error returns the signed deviation from target in grams.
func (d DoseResult) Error() float64 { return d.Dispensed - d.Target }

// MetricsSink records dosing sessions for observability purposes.
type MetricsSink interface {
	RecordDose(res DoseResult) error
}

// IterationEvent describes one dispense/stabilize round.
type IterationEvent struct {
	SessionID string
	Liquid    string
	Iteration int
	PumpTime  time.Duration
	Delivered float64
	Remaining float64
	FlowRate  float64
	Fraction  float64
	Time      time.Time
}

// IterationRecorder records dispensing iterations.
type IterationRecorder interface {
	RecordIteration(ev IterationEvent) error
}

// StateEvent is a controller transition.
type StateEvent struct {
	From   string
	To     string
	Liquid string
	Time   time.Time
}

// StateRecorder records controller transitions.
type StateRecorder interface {
	RecordStateChange(ev StateEvent) error
}

// RejectionEvent is a request refused by the controller.
type RejectionEvent struct {
	Request string
	State   string
	Reason  string
	Time    time.Time
}

// RejectionRecorder records refused requests.
type RejectionRecorder interface {
	RecordRejection(ev RejectionEvent) error
}

// FaultEvent is a failed hardware operation.
type FaultEvent struct {
	Op    string
	State string
	Error string
	Time  time.Time
}

// FaultRecorder records hardware faults.
type FaultRecorder interface {
	RecordFault(ev FaultEvent) error
}

// FlushEvent is a completed stand-alone flush.
type FlushEvent struct {
	Duration time.Duration
	Time     time.Time
}

// FlushRecorder records stand-alone flushes.
type FlushRecorder interface {
	RecordFlush(ev FlushEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordDose(DoseResult) error          { return nil }
func (NopSink) RecordIteration(IterationEvent) error { return nil }
func (NopSink) RecordStateChange(StateEvent) error   { return nil }
func (NopSink) RecordRejection(RejectionEvent) error { return nil }
func (NopSink) RecordFault(FaultEvent) error         { return nil }
func (NopSink) RecordFlush(FlushEvent) error         { return nil }
