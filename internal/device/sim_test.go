package device

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualClock struct{ t time.Time }

func (m *manualClock) now() time.Time          { return m.t }
func (m *manualClock) advance(d time.Duration) { m.t = m.t.Add(d) }

func TestSim_StartsAtAmbientAndHeatsTowardSteadyState(t *testing.T) {
	clk := &manualClock{t: time.Unix(0, 0)}
	s := newSimAt(SimConfig{}, clk.now)

	v, err := s.ReadTemperature()
	require.NoError(t, err)
	assert.Equal(t, AmbientC, v)

	require.NoError(t, s.SetHeaterPower(50))
	clk.advance(time.Duration(TimeConstantSec) * time.Second)
	v, err = s.ReadTemperature()
	require.NoError(t, err)

	// One time constant covers ~63% of the step.
	want := AmbientC + HeaterGainCPct*50*(1-0.36787944117144233)
	assert.InDelta(t, want, v, 1e-9)
}

func TestSim_TimeScaleSpeedsUpPlant(t *testing.T) {
	clk := &manualClock{t: time.Unix(0, 0)}
	slow := newSimAt(SimConfig{}, clk.now)
	fast := newSimAt(SimConfig{TimeScale: 10}, clk.now)
	require.NoError(t, slow.SetHeaterPower(100))
	require.NoError(t, fast.SetHeaterPower(100))

	clk.advance(10 * time.Second)
	vs, _ := slow.ReadTemperature()
	vf, _ := fast.ReadTemperature()
	assert.Greater(t, vf, vs)
}

func TestSim_CoolsBackToAmbient(t *testing.T) {
	clk := &manualClock{t: time.Unix(0, 0)}
	s := newSimAt(SimConfig{AmbientC: 20}, clk.now)
	require.NoError(t, s.SetHeaterPower(100))
	clk.advance(10 * time.Minute)
	hot, _ := s.ReadTemperature()

	require.NoError(t, s.SetHeaterPower(0))
	clk.advance(time.Hour)
	cold, _ := s.ReadTemperature()
	assert.Less(t, cold, hot)
	assert.InDelta(t, 20, cold, 0.1)
}

func TestSim_ClipsCommands(t *testing.T) {
	s := NewSim(SimConfig{})
	require.NoError(t, s.SetHeaterPower(140))
	require.NoError(t, s.SetIndicator(-1))
	assert.Equal(t, 100.0, s.HeaterPower())
	assert.Equal(t, 0.0, s.Indicator())
}

func TestSim_FailAfterReadsIsSticky(t *testing.T) {
	s := NewSim(SimConfig{FailAfterReads: 2})
	for i := 0; i < 2; i++ {
		_, err := s.ReadTemperature()
		require.NoError(t, err)
	}
	_, err := s.ReadTemperature()
	var se *SensorReadError
	require.ErrorAs(t, err, &se)
	assert.ErrorIs(t, err, errSimDisconnected)

	err = s.SetHeaterPower(10)
	var ae *ActuatorError
	require.ErrorAs(t, err, &ae)
}

func TestSim_CloseTurnsOffAndIsIdempotent(t *testing.T) {
	s := NewSim(SimConfig{})
	require.NoError(t, s.SetHeaterPower(70))
	require.NoError(t, s.SetIndicator(100))

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.True(t, s.Closed())
	assert.Equal(t, 0.0, s.HeaterPower())
	assert.Equal(t, 0.0, s.Indicator())

	_, err := s.ReadTemperature()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSimConnector(t *testing.T) {
	c := &SimConnector{Config: SimConfig{AmbientC: 21}}
	d, err := c.Connect(context.Background())
	require.NoError(t, err)
	assert.Same(t, d, Device(c.Last()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Connect(ctx)
	var ce *ConnectionError
	require.ErrorAs(t, err, &ce)
}
