package dosing

import (
	"time"

	"github.com/kilianp07/doser/core/device"
)

// phase splits a state into its running part and the settle pause that
// follows a flush.
type phase int

const (
	phaseRun phase = iota
	phaseSettle
)

// session is the transient context of one dose. It exists from the
// request until the controller returns to IDLE.
type session struct {
	id      string
	liquid  int
	name    string
	valve   device.Valve
	target  float64
	started time.Time

	remaining     float64
	initialWeight float64
	lastDispensed float64
	measured      float64
	fraction      float64
	iterations    int

	// pumpTarget is the planned pump-on time of the current iteration and
	// pumpTime the measured one, consumed by the next stabilization.
	pumpTarget time.Duration
	pumpTime   time.Duration

	// debounce of the initial flush
	lastWeight float64
	lastChange time.Time
}

// dispensed is the latest measured delivery, including the final check.
func (s *session) dispensed() float64 { return s.measured }
