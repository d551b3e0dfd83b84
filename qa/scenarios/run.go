package scenarios

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kilianp07/doser/core/dosing"
	"github.com/kilianp07/doser/core/events"
	"github.com/kilianp07/doser/core/model"
	"github.com/kilianp07/doser/core/registry"
	"github.com/kilianp07/doser/infra/logger"
	"github.com/kilianp07/doser/infra/metrics"
	"github.com/kilianp07/doser/infra/sim"
	"github.com/kilianp07/doser/internal/eventbus"
)

const tick = 10 * time.Millisecond

// RunScenario doses the scenario liquid once on a simulated rig driven by a
// manual clock and checks the outcome against the expectations.
func RunScenario(t *testing.T, sc *Scenario) events.DoseFinished {
	t.Helper()
	reg := prometheus.NewRegistry()
	sink, err := metrics.NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("prom sink: %v", err)
	}

	clock := sim.NewManualClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	rig := sim.NewRig(sc.Rig.ToConfig(), clock.Now)
	liquids := registry.New()
	idx, err := liquids.Add(model.Liquid{Name: sc.Liquid.Name, TargetAmount: sc.Liquid.Target, Valve: rig.AddValve(sc.Liquid.Name)})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	bus := eventbus.New(eventbus.WithBuffer(8192))
	defer bus.Close()
	sub := bus.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	metrics.StartEventCollector(ctx, bus, sink, logger.NopLogger{})

	hw := dosing.Hardware{Sensor: rig.Scale(), Pump: rig.Pump(), FlushValve: rig.FlushValve()}
	ctrl, err := dosing.NewController(sc.Controller.ToConfig(), liquids, hw, bus, logger.NopLogger{})
	if err != nil {
		t.Fatalf("controller: %v", err)
	}
	ctrl.SetClock(clock.Now)
	loop := dosing.NewLoop(ctrl, tick, logger.NopLogger{})

	var res *events.DoseFinished
	drain := func() {
		for {
			select {
			case ev := <-sub:
				if e, ok := ev.(events.DoseFinished); ok {
					res = &e
				}
			default:
				return
			}
		}
	}
	if err := ctrl.RequestDispense(idx); err != nil {
		t.Fatalf("request dispense: %v", err)
	}
	err = loop.RunUntilIdle(ctx, func(d time.Duration) {
		drain()
		clock.Advance(d)
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	drain()
	if res == nil {
		t.Fatalf("scenario %s finished without a dose outcome", sc.Name)
	}

	want, _ := parseOutcome(sc.Expected.Outcome)
	if res.Outcome != want {
		t.Errorf("scenario %s expected outcome %s, got %s (%s)", sc.Name, want, res.Outcome, res.Reason)
	}
	doseErr := res.Dispensed - res.Target
	if sc.Expected.MaxAbsError > 0 && math.Abs(doseErr) > sc.Expected.MaxAbsError {
		t.Errorf("scenario %s dose error %.4f g exceeds %.4f g", sc.Name, doseErr, sc.Expected.MaxAbsError)
	}
	if sc.Expected.MinError != 0 && doseErr < sc.Expected.MinError {
		t.Errorf("scenario %s dose error %.4f g below %.4f g", sc.Name, doseErr, sc.Expected.MinError)
	}
	if sc.Expected.MaxIterations > 0 && res.Iterations > sc.Expected.MaxIterations {
		t.Errorf("scenario %s took %d iterations, expected at most %d", sc.Name, res.Iterations, sc.Expected.MaxIterations)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		n, err := testutil.GatherAndCount(reg, "doser_doses_total")
		if err != nil {
			t.Fatalf("gather: %v", err)
		}
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Errorf("scenario %s: dose not recorded in metrics", sc.Name)
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	return *res
}
