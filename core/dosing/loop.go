package dosing

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/doser/core/logger"
)

// CommandKind identifies a request sent to the driver loop.
type CommandKind int

const (
	CommandDispense CommandKind = iota
	CommandFlush
	CommandSetTarget
	CommandCalibrate
)

func (k CommandKind) String() string {
	switch k {
	case CommandDispense:
		return "dispense"
	case CommandFlush:
		return "flush"
	case CommandSetTarget:
		return "set_target"
	case CommandCalibrate:
		return "calibrate"
	default:
		return "unknown"
	}
}

// Command is a request from the user interface. Reply, when set, receives the
// outcome and must be buffered.
type Command struct {
	Kind   CommandKind
	Liquid int
	Amount float64
	Reply  chan error
}

// DefaultTickInterval is the cadence of the driver loop.
const DefaultTickInterval = 10 * time.Millisecond

// Loop drives a Controller: it ticks it on a fixed cadence and applies
// commands between ticks so the state machine only runs on one goroutine.
type Loop struct {
	ctrl     *Controller
	interval time.Duration
	logger   logger.Logger
}

// NewLoop returns a loop ticking ctrl every interval.
func NewLoop(ctrl *Controller, interval time.Duration, log logger.Logger) *Loop {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Loop{ctrl: ctrl, interval: interval, logger: log}
}

// Interval returns the tick cadence.
func (l *Loop) Interval() time.Duration { return l.interval }

// Run ticks the controller until ctx is cancelled.
func (l *Loop) Run(ctx context.Context, cmds <-chan Command) {
	t := time.NewTicker(l.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-cmds:
			if !ok {
				cmds = nil
				continue
			}
			l.Handle(cmd)
		case <-t.C:
			l.ctrl.Tick()
		}
	}
}

// RunUntilIdle ticks until the controller returns to IDLE. advance is called
// before every tick and is where the caller lets time pass, either by
// sleeping or by moving a simulated clock.
func (l *Loop) RunUntilIdle(ctx context.Context, advance func(time.Duration)) error {
	for l.ctrl.IsBusy() {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("waiting for idle: %w", err)
		}
		advance(l.interval)
		l.ctrl.Tick()
	}
	return nil
}

// Handle applies a single command.
func (l *Loop) Handle(cmd Command) {
	var err error
	switch cmd.Kind {
	case CommandDispense:
		err = l.ctrl.RequestDispense(cmd.Liquid)
	case CommandFlush:
		err = l.ctrl.RequestFlush()
	case CommandSetTarget:
		err = l.ctrl.SetTarget(cmd.Liquid, cmd.Amount)
	case CommandCalibrate:
		_, err = l.ctrl.CalibrateScale(cmd.Amount)
	default:
		err = fmt.Errorf("unknown command %d", cmd.Kind)
	}
	if err != nil && l.logger != nil {
		l.logger.Debugf("command %s: %v", cmd.Kind, err)
	}
	if cmd.Reply != nil {
		select {
		case cmd.Reply <- err:
		default:
		}
	}
}
