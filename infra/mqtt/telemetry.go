package mqtt

import (
	"context"
	"encoding/json"
	"time"

	"github.com/kilianp07/doser/core/events"
	"github.com/kilianp07/doser/internal/eventbus"
)

// Topic suffixes under the configured prefix. They double as QoS map keys.
const (
	TopicOnline     = "online"
	TopicState      = "state"
	TopicSample     = "sample"
	TopicIteration  = "iteration"
	TopicDose       = "dose"
	TopicFlush      = "flush"
	TopicRejected   = "rejected"
	TopicTimeout    = "timeout"
	TopicIncomplete = "incomplete"
	TopicFault      = "fault"
)

type stateMessage struct {
	State     string    `json:"state"`
	From      string    `json:"from"`
	SessionID string    `json:"session_id,omitempty"`
	Liquid    string    `json:"liquid,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type sampleMessage struct {
	SessionID string    `json:"session_id"`
	Liquid    string    `json:"liquid"`
	Weight    float64   `json:"weight"`
	Timestamp time.Time `json:"timestamp"`
}

type iterationMessage struct {
	SessionID     string    `json:"session_id"`
	Liquid        string    `json:"liquid"`
	Iteration     int       `json:"iteration"`
	PumpMS        int64     `json:"pump_ms"`
	Dispensed     float64   `json:"dispensed"`
	ThisIteration float64   `json:"this_iteration"`
	Remaining     float64   `json:"remaining"`
	FlowRate      float64   `json:"flow_rate"`
	Fraction      float64   `json:"fraction"`
	Timestamp     time.Time `json:"timestamp"`
}

type doseMessage struct {
	SessionID  string    `json:"session_id"`
	Liquid     string    `json:"liquid"`
	Target     float64   `json:"target"`
	Dispensed  float64   `json:"dispensed"`
	Iterations int       `json:"iterations"`
	FlowRate   float64   `json:"flow_rate"`
	Outcome    string    `json:"outcome"`
	Reason     string    `json:"reason,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

type flushMessage struct {
	DurationMS int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

type rejectedMessage struct {
	Request   string    `json:"request"`
	State     string    `json:"state"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type timeoutMessage struct {
	SessionID string    `json:"session_id,omitempty"`
	Liquid    string    `json:"liquid,omitempty"`
	State     string    `json:"state"`
	ElapsedMS int64     `json:"elapsed_ms"`
	Timestamp time.Time `json:"timestamp"`
}

type incompleteMessage struct {
	SessionID string    `json:"session_id"`
	Liquid    string    `json:"liquid"`
	Target    float64   `json:"target"`
	Dispensed float64   `json:"dispensed"`
	Timestamp time.Time `json:"timestamp"`
}

type faultMessage struct {
	Op        string    `json:"op"`
	State     string    `json:"state"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// encode maps a bus event to its topic suffix and payload. The state topic is
// retained so late subscribers see the current controller state.
func encode(ev eventbus.Event) (kind string, msg any, retained bool) {
	switch e := ev.(type) {
	case events.StateChanged:
		return TopicState, stateMessage{State: e.To.String(), From: e.From.String(), SessionID: e.SessionID, Liquid: e.Liquid, Timestamp: e.Time}, true
	case events.SampleRecorded:
		return TopicSample, sampleMessage{SessionID: e.SessionID, Liquid: e.Liquid, Weight: e.Sample.Weight, Timestamp: e.Sample.Timestamp}, false
	case events.IterationCompleted:
		return TopicIteration, iterationMessage{
			SessionID:     e.SessionID,
			Liquid:        e.Liquid,
			Iteration:     e.Iteration,
			PumpMS:        e.PumpTime.Milliseconds(),
			Dispensed:     e.Dispensed,
			ThisIteration: e.ThisIteration,
			Remaining:     e.Remaining,
			FlowRate:      e.FlowRate,
			Fraction:      e.Fraction,
			Timestamp:     e.Time,
		}, false
	case events.DoseFinished:
		return TopicDose, doseMessage{
			SessionID:  e.SessionID,
			Liquid:     e.Liquid,
			Target:     e.Target,
			Dispensed:  e.Dispensed,
			Iterations: e.Iterations,
			FlowRate:   e.FlowRate,
			Outcome:    string(e.Outcome),
			Reason:     e.Reason,
			DurationMS: e.Finished.Sub(e.Started).Milliseconds(),
			Timestamp:  e.Finished,
		}, false
	case events.FlushFinished:
		return TopicFlush, flushMessage{DurationMS: e.Duration.Milliseconds(), Timestamp: e.Time}, false
	case events.RequestRejected:
		return TopicRejected, rejectedMessage{Request: e.Request, State: e.State.String(), Error: errString(e.Err), Timestamp: e.Time}, false
	case events.StateTimeout:
		return TopicTimeout, timeoutMessage{SessionID: e.SessionID, Liquid: e.Liquid, State: e.State.String(), ElapsedMS: e.Elapsed.Milliseconds(), Timestamp: e.Time}, false
	case events.IncompleteDose:
		return TopicIncomplete, incompleteMessage{SessionID: e.SessionID, Liquid: e.Liquid, Target: e.Target, Dispensed: e.Dispensed, Timestamp: e.Time}, false
	case events.HardwareFault:
		return TopicFault, faultMessage{Op: e.Op, State: e.State.String(), Error: errString(e.Err), Timestamp: e.Time}, false
	}
	return "", nil, false
}

// Start forwards controller events from the bus to the broker until ctx is
// canceled or the bus is closed. The returned channel is closed on exit.
func (p *Publisher) Start(ctx context.Context, bus eventbus.EventBus) <-chan struct{} {
	done := make(chan struct{})
	if bus == nil {
		close(done)
		return done
	}
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				p.forward(ev)
			}
		}
	}()
	return done
}

func (p *Publisher) forward(ev eventbus.Event) {
	kind, msg, retained := encode(ev)
	if kind == "" {
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		p.logger.Errorf("encode %s: %v", kind, err)
		return
	}
	if err := p.Publish(kind, payload, retained); err != nil {
		p.logger.Warnf("telemetry dropped: %v", err)
	}
}
