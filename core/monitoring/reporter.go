package monitoring

import (
	"context"
	"errors"
	"fmt"

	"github.com/kilianp07/doser/core/events"
	"github.com/kilianp07/doser/internal/eventbus"
)

// ErrDoseAborted is reported for sessions ending without completing.
var ErrDoseAborted = errors.New("dose aborted")

// StartReporter captures failures published on the bus: state timeouts,
// aborted doses and hardware faults. It stops when ctx is canceled.
func StartReporter(ctx context.Context, bus eventbus.EventBus, m Monitor) {
	if bus == nil || m == nil {
		return
	}
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				report(m, ev)
			}
		}
	}()
}

func report(m Monitor, ev eventbus.Event) {
	switch e := ev.(type) {
	case events.StateTimeout:
		m.CaptureException(fmt.Errorf("state %s stuck for %s", e.State, e.Elapsed), map[string]string{
			"component": "dosing",
			"state":     e.State.String(),
			"liquid":    e.Liquid,
			"session":   e.SessionID,
		})
	case events.DoseFinished:
		if e.Outcome != events.OutcomeAborted {
			return
		}
		m.CaptureException(fmt.Errorf("%w: %s", ErrDoseAborted, e.Reason), map[string]string{
			"component": "dosing",
			"liquid":    e.Liquid,
			"session":   e.SessionID,
		})
	case events.HardwareFault:
		if e.Err == nil {
			return
		}
		m.CaptureException(fmt.Errorf("%s: %w", e.Op, e.Err), map[string]string{
			"component": "hardware",
			"op":        e.Op,
			"state":     e.State.String(),
		})
	}
}
