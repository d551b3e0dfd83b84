package metrics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kilianp07/doser/core/events"
	coremetrics "github.com/kilianp07/doser/core/metrics"
	"github.com/kilianp07/doser/core/model"
	"github.com/kilianp07/doser/infra/logger"
	"github.com/kilianp07/doser/internal/eventbus"
)

type captureSink struct {
	coremetrics.NopSink
	mu     sync.Mutex
	doses  []coremetrics.DoseResult
	states []coremetrics.StateEvent
	faults []coremetrics.FaultEvent
}

func (c *captureSink) RecordDose(r coremetrics.DoseResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.doses = append(c.doses, r)
	return nil
}

func (c *captureSink) RecordStateChange(e coremetrics.StateEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states = append(c.states, e)
	return nil
}

func (c *captureSink) RecordFault(e coremetrics.FaultEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.faults = append(c.faults, e)
	return nil
}

func (c *captureSink) counts() (int, int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.doses), len(c.states), len(c.faults)
}

func TestStartEventCollector(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	sink := &captureSink{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	StartEventCollector(ctx, bus, sink, logger.NopLogger{})

	// wait for the subscription to exist
	assert.Eventually(t, func() bool {
		bus.Publish(events.StateChanged{From: model.StateIdle, To: model.StateInitialFlush})
		_, n, _ := sink.counts()
		return n > 0
	}, time.Second, 10*time.Millisecond)

	start := time.Now()
	bus.Publish(events.DoseFinished{Liquid: "water", Target: 1, Dispensed: 1, Outcome: events.OutcomeCompleted, Started: start, Finished: start.Add(9 * time.Second)})
	bus.Publish(events.HardwareFault{Op: "tare", Err: errors.New("busy"), State: model.StateInitialFlush})

	assert.Eventually(t, func() bool {
		d, _, f := sink.counts()
		return d == 1 && f == 1
	}, time.Second, 10*time.Millisecond)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, "completed", sink.doses[0].Outcome)
	assert.Equal(t, 9*time.Second, sink.doses[0].Duration)
	assert.Equal(t, "INITIAL_FLUSH", sink.states[0].To)
	assert.Equal(t, "busy", sink.faults[0].Error)
}
