package dosing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/doser/core/model"
	"github.com/kilianp07/doser/infra/logger"
	"github.com/kilianp07/doser/infra/sim"
)

func TestLoop_RunUntilIdleWithSimulatedClock(t *testing.T) {
	f := newFixture(t, fixedConfig(), sim.Config{FlowRate: 1.0}, 1.5)
	l := NewLoop(f.ctrl, tick, logger.NopLogger{})

	reply := make(chan error, 1)
	l.Handle(Command{Kind: CommandDispense, Liquid: 0, Reply: reply})
	require.NoError(t, <-reply)

	require.NoError(t, l.RunUntilIdle(context.Background(), f.clock.Advance))
	assert.Equal(t, model.StateIdle, f.ctrl.State())
	assert.InDelta(t, 1.5, f.rig.Mass(), 0.1)
}

func TestLoop_RunUntilIdleCancelled(t *testing.T) {
	f := newFixture(t, fixedConfig(), sim.Config{FlowRate: 1.0}, 1.5)
	l := NewLoop(f.ctrl, tick, logger.NopLogger{})
	require.NoError(t, f.ctrl.RequestFlush())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.RunUntilIdle(ctx, f.clock.Advance)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoop_HandleCommands(t *testing.T) {
	f := newFixture(t, DefaultConfig(), sim.Config{}, 1.0)
	l := NewLoop(f.ctrl, 0, nil)
	assert.Equal(t, DefaultTickInterval, l.Interval())

	reply := make(chan error, 1)
	l.Handle(Command{Kind: CommandSetTarget, Liquid: 0, Amount: 3.2, Reply: reply})
	require.NoError(t, <-reply)
	liq, err := f.reg.Get(0)
	require.NoError(t, err)
	assert.Equal(t, 3.2, liq.TargetAmount)

	l.Handle(Command{Kind: CommandDispense, Liquid: 9, Reply: reply})
	assert.ErrorIs(t, <-reply, ErrUnknownLiquid)

	l.Handle(Command{Kind: CommandKind(42), Reply: reply})
	assert.Error(t, <-reply)

	l.Handle(Command{Kind: CommandFlush, Reply: reply})
	require.NoError(t, <-reply)
	l.Handle(Command{Kind: CommandCalibrate, Amount: 10, Reply: reply})
	assert.ErrorIs(t, <-reply, ErrBusy)
}

func TestLoop_RunTicksAndConsumesCommands(t *testing.T) {
	f := newFixture(t, DefaultConfig(), sim.Config{}, 1.0)
	cfg := DefaultConfig()
	cfg.FlushingTime = 30 * time.Millisecond
	ctrl, err := NewController(cfg, f.reg, Hardware{Sensor: f.rig.Scale(), Pump: f.rig.Pump(), FlushValve: f.rig.FlushValve()}, nil, logger.NopLogger{})
	require.NoError(t, err)

	l := NewLoop(ctrl, 5*time.Millisecond, logger.NopLogger{})
	cmds := make(chan Command)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx, cmds)
		close(done)
	}()

	reply := make(chan error, 1)
	cmds <- Command{Kind: CommandFlush, Reply: reply}
	require.NoError(t, <-reply)
	assert.Eventually(t, func() bool { return ctrl.State() == model.StateIdle }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
}
