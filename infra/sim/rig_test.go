package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRig(cfg Config) (*Rig, *ManualClock) {
	clock := NewManualClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	return NewRig(cfg, clock.Now), clock
}

func TestRig_FlowOnlyThroughLiquidLines(t *testing.T) {
	rig, clock := newTestRig(Config{FlowRate: 2})
	v := rig.AddValve("a")

	require.NoError(t, rig.Pump().On())
	require.NoError(t, rig.FlushValve().Open())
	clock.Advance(time.Second)
	assert.Zero(t, rig.Mass())

	require.NoError(t, rig.FlushValve().Close())
	require.NoError(t, v.Open())
	clock.Advance(1500 * time.Millisecond)
	assert.InDelta(t, 3.0, rig.Mass(), 1e-9)

	require.NoError(t, rig.Pump().Off())
	clock.Advance(time.Second)
	assert.InDelta(t, 3.0, rig.Mass(), 1e-9)
	assert.True(t, v.IsOpen())
	assert.Equal(t, "a", v.Name())
}

func TestScale_TareAndCalibrate(t *testing.T) {
	rig, _ := newTestRig(Config{RawPerGram: 420, ScaleFactor: 210})
	s := rig.Scale()

	rig.Place(20)
	require.NoError(t, s.Tare())
	w, err := s.Weight()
	require.NoError(t, err)
	assert.Zero(t, w)

	_, err = s.Calibrate(50)
	assert.ErrorIs(t, err, ErrNoReference)

	rig.Place(50)
	w, err = s.Weight()
	require.NoError(t, err)
	assert.InDelta(t, 100, w, 1e-9)

	factor, err := s.Calibrate(50)
	require.NoError(t, err)
	assert.InDelta(t, 420, factor, 1e-9)
	w, err = s.Weight()
	require.NoError(t, err)
	assert.InDelta(t, 50, w, 1e-9)
}

func TestScale_NoiseIsSeeded(t *testing.T) {
	a, _ := newTestRig(Config{Noise: 0.5, Seed: 7})
	b, _ := newTestRig(Config{Noise: 0.5, Seed: 7})
	for i := 0; i < 5; i++ {
		wa, _ := a.Scale().Weight()
		wb, _ := b.Scale().Weight()
		assert.Equal(t, wa, wb)
	}
}

func TestManualClock(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewManualClock(start)
	c.Advance(3 * time.Second)
	assert.Equal(t, start.Add(3*time.Second), c.Now())
}
