package vr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/jitter.report/internal/timeutil"
)

func TestSimulatorDeterministic(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	a := NewSimulator(SimConfig{Seed: 7, Clock: clock})
	b := NewSimulator(SimConfig{Seed: 7, Clock: clock})

	for i := 0; i < 5; i++ {
		assert.Equal(t, string(a.NextLine()), string(b.NextLine()), "frame %d", i)
	}

	c := NewSimulator(SimConfig{Seed: 8, Clock: clock})
	assert.NotEqual(t, string(a.NextLine()), string(c.NextLine()))
}

func TestSimulatorFramesParse(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	sim := NewSimulator(SimConfig{Seed: 1, Clock: clock})

	f, err := ParseFrameLine(sim.NextLine())
	require.NoError(t, err)
	assert.Len(t, f.Samples, len(DefaultSimDevices()))
	assert.Len(t, f.Events, len(DefaultSimDevices()), "first frame announces every device")
	assert.Equal(t, time.Unix(1000, 0), f.Time)

	clock.Advance(11 * time.Millisecond)
	f, err = ParseFrameLine(sim.NextLine())
	require.NoError(t, err)
	assert.Empty(t, f.Events, "only the first frame carries activations")
	assert.Equal(t, time.Unix(1000, 11_000_000).UTC(), f.Time)
}

func TestSimulatorNoise(t *testing.T) {
	still := SimDevice{Serial: "LHR-STILL", Class: ClassTracker, Base: Vec3{X: 1, Y: 2, Z: 3}}
	noisy := SimDevice{Serial: "LHR-NOISY", Class: ClassTracker, PosSigma: 0.001}
	sim := NewSimulator(SimConfig{Devices: []SimDevice{still, noisy}, Seed: 3})

	moved := false
	for i := 0; i < 20; i++ {
		f := sim.NextFrame()
		require.Len(t, f.Samples, 2)
		assert.Equal(t, still.Base, f.Samples[0].Position, "zero sigma means a perfectly still device")
		if f.Samples[1].Position != (Vec3{}) {
			moved = true
		}
	}
	assert.True(t, moved, "nonzero sigma must produce noise")
}

func TestSimulatorDropRate(t *testing.T) {
	always := SimDevice{Serial: "LHR-GONE", Class: ClassTracker, DropRate: 1}
	never := SimDevice{Serial: "LHR-HELD", Class: ClassTracker}
	sim := NewSimulator(SimConfig{Devices: []SimDevice{always, never}, Seed: 5})

	for i := 0; i < 50; i++ {
		f := sim.NextFrame()
		assert.False(t, f.Samples[0].Valid)
		assert.True(t, f.Samples[1].Valid)
	}
}

func TestSimulatorNudgeStation(t *testing.T) {
	sim := NewSimulator(SimConfig{Seed: 2})

	require.True(t, sim.NudgeStation("LHB-02F7A4D1", 0.01, 0, 0))
	assert.False(t, sim.NudgeStation("LHR-3CDE8F01", 0.01, 0, 0), "only stations can be nudged")
	assert.False(t, sim.NudgeStation("LHB-UNKNOWN", 0.01, 0, 0))

	f := sim.NextFrame()
	for _, ps := range f.Samples {
		if ps.Serial == "LHB-02F7A4D1" {
			assert.InDelta(t, -1.79, ps.Position.X, 0.01, "base moved by the nudge")
		}
	}
}
