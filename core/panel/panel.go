// Package panel holds the menu logic of the front panel: a rotary encoder
// with a push button selecting liquids and editing their targets. Rendering
// is left to the caller.
package panel

import (
	"math"
	"sync"

	"github.com/kilianp07/doser/core/dosing"
	"github.com/kilianp07/doser/core/model"
	"github.com/kilianp07/doser/core/registry"
)

// Mode is the current menu mode.
type Mode int

const (
	ModeSelect Mode = iota
	ModeEdit
)

func (m Mode) String() string {
	if m == ModeEdit {
		return "edit"
	}
	return "select"
}

// Input is a user gesture on the panel.
type Input int

const (
	RotateCW Input = iota
	RotateCCW
	Click
	LongPress
	DoubleClick
)

// TargetStep is the target change per encoder detent in grams.
const TargetStep = 0.1

// View is what a display needs to draw the panel.
type View struct {
	Mode     Mode
	Selected int
	Liquid   string
	Target   float64
	State    model.State
	Progress float64
}

// StateSource reports the controller state.
type StateSource interface {
	State() model.State
}

// Panel turns gestures into commands for the driver loop.
type Panel struct {
	mu       sync.Mutex
	reg      *registry.Registry
	ctrl     StateSource
	cmds     chan<- dosing.Command
	mode     Mode
	selected int
}

// New returns a panel sending commands on cmds.
func New(reg *registry.Registry, ctrl StateSource, cmds chan<- dosing.Command) *Panel {
	return &Panel{reg: reg, ctrl: ctrl, cmds: cmds}
}

// Handle applies one gesture.
func (p *Panel) Handle(in Input) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch in {
	case RotateCW:
		p.rotate(1)
	case RotateCCW:
		p.rotate(-1)
	case Click:
		if p.mode == ModeSelect {
			p.mode = ModeEdit
		} else {
			p.mode = ModeSelect
		}
	case LongPress:
		p.send(dosing.Command{Kind: dosing.CommandDispense, Liquid: p.selected})
	case DoubleClick:
		p.send(dosing.Command{Kind: dosing.CommandFlush})
	}
}

func (p *Panel) rotate(dir int) {
	n := p.reg.Count()
	if n == 0 {
		return
	}
	if p.mode == ModeSelect {
		p.selected = ((p.selected+dir)%n + n) % n
		return
	}
	liq, err := p.reg.Get(p.selected)
	if err != nil {
		return
	}
	target := math.Round((liq.TargetAmount+float64(dir)*TargetStep)*10) / 10
	if target < 0 {
		target = 0
	}
	p.send(dosing.Command{Kind: dosing.CommandSetTarget, Liquid: p.selected, Amount: target})
}

// send never blocks the input handler; a gesture made while the loop is
// saturated is dropped.
func (p *Panel) send(cmd dosing.Command) {
	select {
	case p.cmds <- cmd:
	default:
	}
}

// Selected returns the highlighted liquid index.
func (p *Panel) Selected() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.selected
}

// Mode returns the current mode.
func (p *Panel) Mode() Mode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mode
}

// Progress returns the dispensed share of the selected liquid in percent.
func (p *Panel) Progress() float64 {
	liq, err := p.reg.Get(p.Selected())
	if err != nil {
		return 0
	}
	return liq.Progress()
}

// View returns a snapshot for rendering.
func (p *Panel) View() View {
	p.mu.Lock()
	v := View{Mode: p.mode, Selected: p.selected}
	p.mu.Unlock()
	if liq, err := p.reg.Get(v.Selected); err == nil {
		v.Liquid = liq.Name
		v.Target = liq.TargetAmount
		v.Progress = liq.Progress()
	}
	if p.ctrl != nil {
		v.State = p.ctrl.State()
	}
	return v
}
