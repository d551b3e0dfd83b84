package metrics

import (
	"context"

	"github.com/kilianp07/doser/core/events"
	"github.com/kilianp07/doser/core/logger"
	coremetrics "github.com/kilianp07/doser/core/metrics"
	"github.com/kilianp07/doser/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and forwards controller
// events to the sink. It stops when the context is canceled.
func StartEventCollector(ctx context.Context, bus eventbus.EventBus, sink coremetrics.MetricsSink, log logger.Logger) {
	if bus == nil || sink == nil {
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
				if err := record(sink, ev); err != nil && log != nil {
					log.Warnf("metrics sink: %v", err)
				}
			}
		}
	}()
}

func record(sink coremetrics.MetricsSink, ev eventbus.Event) error {
	switch e := ev.(type) {
	case events.DoseFinished:
		return sink.RecordDose(coremetrics.DoseResult{
			SessionID:  e.SessionID,
			Liquid:     e.Liquid,
			Target:     e.Target,
			Dispensed:  e.Dispensed,
			Iterations: e.Iterations,
			FlowRate:   e.FlowRate,
			Outcome:    string(e.Outcome),
			Duration:   e.Finished.Sub(e.Started),
			Time:       e.Finished,
		})
	case events.IterationCompleted:
		if r, ok := sink.(coremetrics.IterationRecorder); ok {
			return r.RecordIteration(coremetrics.IterationEvent{
				SessionID: e.SessionID,
				Liquid:    e.Liquid,
				Iteration: e.Iteration,
				PumpTime:  e.PumpTime,
				Delivered: e.ThisIteration,
				Remaining: e.Remaining,
				FlowRate:  e.FlowRate,
				Fraction:  e.Fraction,
				Time:      e.Time,
			})
		}
	case events.StateChanged:
		if r, ok := sink.(coremetrics.StateRecorder); ok {
			return r.RecordStateChange(coremetrics.StateEvent{From: e.From.String(), To: e.To.String(), Liquid: e.Liquid, Time: e.Time})
		}
	case events.RequestRejected:
		if r, ok := sink.(coremetrics.RejectionRecorder); ok {
			reason := ""
			if e.Err != nil {
				reason = e.Err.Error()
			}
			return r.RecordRejection(coremetrics.RejectionEvent{Request: e.Request, State: e.State.String(), Reason: reason, Time: e.Time})
		}
	case events.HardwareFault:
		if r, ok := sink.(coremetrics.FaultRecorder); ok {
			msg := ""
			if e.Err != nil {
				msg = e.Err.Error()
			}
			return r.RecordFault(coremetrics.FaultEvent{Op: e.Op, State: e.State.String(), Error: msg, Time: e.Time})
		}
	case events.FlushFinished:
		if r, ok := sink.(coremetrics.FlushRecorder); ok {
			return r.RecordFlush(coremetrics.FlushEvent{Duration: e.Duration, Time: e.Time})
		}
	}
	return nil
}
