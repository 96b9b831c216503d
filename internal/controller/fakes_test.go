package controller

import (
	"context"
	"errors"
	"time"

	"tclab_control/internal/device"
	"tclab_control/internal/models"
)

// fakeClock advances only when slept on or when the fake device does work.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration

	// cancel is invoked on the sleep with index cancelOnSleep.
	cancel        context.CancelFunc
	cancelOnSleep int
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), cancelOnSleep: -1}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if c.cancel != nil && len(c.sleeps) == c.cancelOnSleep {
		c.cancel()
	}
	c.sleeps = append(c.sleeps, d)
	if err := ctx.Err(); err != nil {
		return err
	}
	c.now = c.now.Add(d)
	return nil
}

// fakeDevice serves scripted temperatures and records commands.
type fakeDevice struct {
	clock *fakeClock
	work  time.Duration // clock advance per read, i.e. processing time

	temp      func(read int) float64
	reads     int
	failRead  int // 1-based read number that fails; 0 never
	heaterErr error
	failHeat  int // 1-based heater command that fails; 0 never

	heater    []float64
	indicator []float64
	closed    int
}

var errUnplugged = errors.New("unplugged")

func (d *fakeDevice) ReadTemperature() (float64, error) {
	d.reads++
	if d.clock != nil {
		d.clock.now = d.clock.now.Add(d.work)
	}
	if d.failRead > 0 && d.reads >= d.failRead {
		return 0, &device.SensorReadError{Err: errUnplugged}
	}
	if d.temp == nil {
		return 25, nil
	}
	return d.temp(d.reads), nil
}

func (d *fakeDevice) SetHeaterPower(p float64) error {
	d.heater = append(d.heater, p)
	if d.failHeat > 0 && len(d.heater) == d.failHeat {
		return d.heaterErr
	}
	return nil
}

func (d *fakeDevice) SetIndicator(p float64) error {
	d.indicator = append(d.indicator, p)
	return nil
}

func (d *fakeDevice) Close() error {
	d.closed++
	return nil
}

func (d *fakeDevice) lastHeater() float64 {
	if len(d.heater) == 0 {
		return -1
	}
	return d.heater[len(d.heater)-1]
}

func connectorFor(d device.Device) device.Connector {
	return device.ConnectorFunc(func(ctx context.Context) (device.Device, error) { return d, nil })
}

// recorder is an Observer that keeps everything it is told.
type recorder struct {
	phases   []Phase
	samples  []models.Sample
	states   []State
	overruns []time.Duration
	onSample func(models.Sample)
}

func (r *recorder) PhaseChanged(p Phase) { r.phases = append(r.phases, p) }

func (r *recorder) SampleRecorded(s models.Sample, st State) {
	r.samples = append(r.samples, s)
	r.states = append(r.states, st)
	if r.onSample != nil {
		r.onSample(s)
	}
}

func (r *recorder) CycleOverrun(_ int, over time.Duration) { r.overruns = append(r.overruns, over) }

func constant(v float64) func(int) float64 { return func(int) float64 { return v } }
