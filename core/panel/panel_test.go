package panel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/doser/core/dosing"
	"github.com/kilianp07/doser/core/model"
	"github.com/kilianp07/doser/core/registry"
)

type stubValve struct{ name string }

func (s stubValve) Open() error  { return nil }
func (s stubValve) Close() error { return nil }
func (s stubValve) IsOpen() bool { return false }
func (s stubValve) Name() string { return s.name }

type fixedState model.State

func (f fixedState) State() model.State { return model.State(f) }

func newPanel(t *testing.T) (*Panel, *registry.Registry, chan dosing.Command) {
	t.Helper()
	reg := registry.New()
	for _, n := range []string{"a", "b", "c"} {
		_, err := reg.Add(model.Liquid{Name: n, TargetAmount: 1, Valve: stubValve{n}})
		require.NoError(t, err)
	}
	cmds := make(chan dosing.Command, 8)
	return New(reg, fixedState(model.StateIdle), cmds), reg, cmds
}

func TestPanel_RotateCyclesLiquids(t *testing.T) {
	p, _, _ := newPanel(t)
	p.Handle(RotateCCW)
	assert.Equal(t, 2, p.Selected())
	p.Handle(RotateCW)
	p.Handle(RotateCW)
	assert.Equal(t, 1, p.Selected())
	assert.Equal(t, "b", p.View().Liquid)
}

func TestPanel_EditSendsTargetCommands(t *testing.T) {
	p, _, cmds := newPanel(t)
	p.Handle(Click)
	assert.Equal(t, ModeEdit, p.Mode())
	p.Handle(RotateCW)

	cmd := <-cmds
	assert.Equal(t, dosing.CommandSetTarget, cmd.Kind)
	assert.Equal(t, 0, cmd.Liquid)
	assert.InDelta(t, 1.1, cmd.Amount, 1e-9)

	p.Handle(Click)
	assert.Equal(t, ModeSelect, p.Mode())
}

func TestPanel_TargetClampedAtZero(t *testing.T) {
	p, reg, cmds := newPanel(t)
	require.NoError(t, reg.UpdateTarget(0, 0.05))
	p.Handle(Click)
	p.Handle(RotateCCW)
	assert.Equal(t, 0.0, (<-cmds).Amount)
}

func TestPanel_Gestures(t *testing.T) {
	p, _, cmds := newPanel(t)
	p.Handle(RotateCW)
	p.Handle(LongPress)
	cmd := <-cmds
	assert.Equal(t, dosing.CommandDispense, cmd.Kind)
	assert.Equal(t, 1, cmd.Liquid)

	p.Handle(DoubleClick)
	assert.Equal(t, dosing.CommandFlush, (<-cmds).Kind)
}

func TestPanel_Progress(t *testing.T) {
	p, reg, _ := newPanel(t)
	assert.Zero(t, p.Progress())
	require.NoError(t, reg.AppendSample(0, model.DataPoint{Weight: 0.5}))
	assert.InDelta(t, 50, p.Progress(), 1e-9)
	require.NoError(t, reg.AppendSample(0, model.DataPoint{Weight: 1.4}))
	assert.Equal(t, 100.0, p.Progress())
	assert.Equal(t, model.StateIdle, p.View().State)
}
