package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tclab_control/internal/device"
	"tclab_control/internal/logger"
	"tclab_control/internal/models"

	"go.uber.org/multierr"
)

// Phase is the lifecycle stage of a run.
type Phase string

const (
	PhaseConnecting Phase = "CONNECTING"
	PhaseRunning    Phase = "RUNNING"
	PhaseDraining   Phase = "DRAINING"
	PhaseClosed     Phase = "CLOSED"
)

// Indicator levels while a run owns the board.
const (
	indicatorOn  = 100.0
	indicatorOff = 0.0
)

// maxPreallocSamples bounds the up-front capacity of Result.Samples; the
// cycle count comes from caller input and may be huge.
const maxPreallocSamples = 4096

// Observer is told about phase changes and every emitted sample. It runs
// inside the cycle, so its time is part of the cycle's processing time.
type Observer interface {
	PhaseChanged(p Phase)
	SampleRecorded(s models.Sample, st State)
}

// OverrunObserver is optionally implemented by observers that want to know
// when a cycle used up its whole period.
type OverrunObserver interface {
	CycleOverrun(index int, over time.Duration)
}

type nopObserver struct{}

func (nopObserver) PhaseChanged(Phase)                  {}
func (nopObserver) SampleRecorded(models.Sample, State) {}

// Result is what a run produced, complete or not.
type Result struct {
	Samples          []models.Sample
	State            State   // controller state after the last emitted sample
	InitialTempC     float64 // first reading after connecting
	SteadyStateError float64
	HasSteadyState   bool
}

// Loop runs the sample/compute/actuate cycle against one device connection.
type Loop struct {
	connector device.Connector
	cfg       Config
	clock     Clock
	observer  Observer
	log       *logger.Logger
}

// Option configures a Loop.
type Option func(*Loop)

func WithClock(c Clock) Option { return func(l *Loop) { l.clock = c } }

func WithObserver(o Observer) Option { return func(l *Loop) { l.observer = o } }

func WithLogger(log *logger.Logger) Option { return func(l *Loop) { l.log = log } }

// NewLoop validates cfg and builds a loop.
func NewLoop(connector device.Connector, cfg Config, opts ...Option) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	l := &Loop{
		connector: connector,
		cfg:       cfg,
		clock:     WallClock(),
		observer:  nopObserver{},
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.observer == nil {
		l.observer = nopObserver{}
	}
	l.log = logger.OrNop(l.log)
	return l, nil
}

// Run connects, performs floor(Duration/SamplePeriod) cycles and always
// drains the device before returning: the heater is forced to 0 and the
// connection closed on completion, on fatal device errors, on ctx
// cancellation and on panics.
//
// The returned Result holds every sample emitted before the run ended.
func (l *Loop) Run(ctx context.Context) (res Result, err error) {
	l.setPhase(PhaseConnecting)
	dev, err := l.connector.Connect(ctx)
	if err != nil {
		var ce *device.ConnectionError
		if !errors.As(err, &ce) {
			err = &device.ConnectionError{Err: err}
		}
		l.log.Errorw("device connection failed", "err", err)
		l.setPhase(PhaseClosed)
		return res, err
	}

	defer func() {
		res.SteadyStateError, res.HasSteadyState = SteadyStateError(l.cfg.Setpoint, res.Samples)
		err = multierr.Append(err, l.drain(dev))
		l.setPhase(PhaseClosed)
	}()

	l.setPhase(PhaseRunning)
	res.InitialTempC, err = l.prepare(dev)
	if err != nil {
		return res, err
	}

	n := l.cfg.Cycles()
	period := l.cfg.SamplePeriod
	pi := NewPI(l.cfg)
	res.Samples = make([]models.Sample, 0, min(n, maxPreallocSamples))

	l.log.Infow("run started",
		"cycles", n, "period", period, "setpoint_c", l.cfg.Setpoint,
		"kp", l.cfg.Kp, "ki", l.cfg.Ki, "bias", l.cfg.Bias, "initial_c", res.InitialTempC)

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			l.log.Warnw("run interrupted", "cycle", i)
			return res, err
		}
		deadline := l.clock.Now().Add(period)

		measured, err := dev.ReadTemperature()
		if err != nil {
			return res, fmt.Errorf("cycle %d: %w", i, asSensorError(err))
		}

		step := pi.Update(measured)
		if err := dev.SetHeaterPower(step.Output); err != nil {
			return res, fmt.Errorf("cycle %d: %w", i, asActuatorError("set heater", err))
		}

		sample := models.Sample{
			Index:    i,
			T:        float64(i) * period.Seconds(),
			Measured: measured,
			Setpoint: l.cfg.Setpoint,
			Output:   step.Output,
		}
		res.Samples = append(res.Samples, sample)
		res.State = pi.State()
		l.observer.SampleRecorded(sample, res.State)

		l.log.Debugw("cycle",
			"i", i, "t", sample.T, "measured_c", measured, "error", step.Error,
			"p", step.Proportional, "i_term", step.Integral, "raw", step.Raw,
			"output", step.Output, "saturated", step.Saturated,
			"integral_error", res.State.IntegralError)

		if i == n-1 {
			break
		}
		now := l.clock.Now()
		if over := now.Sub(deadline); over > 0 {
			l.log.Warnw("cycle overran sample period", "cycle", i, "over", over)
			if oo, ok := l.observer.(OverrunObserver); ok {
				oo.CycleOverrun(i, over)
			}
		}
		if err := l.clock.Sleep(ctx, remaining(now, deadline)); err != nil {
			l.log.Warnw("run interrupted", "cycle", i)
			return res, err
		}
	}

	if sse, ok := SteadyStateError(l.cfg.Setpoint, res.Samples); ok {
		l.log.Infow("run complete", "samples", len(res.Samples), "steady_state_error_c", sse)
	} else {
		l.log.Infow("run complete", "samples", 0)
	}
	return res, nil
}

// prepare puts the board in the run's starting state and takes the initial
// reading.
func (l *Loop) prepare(dev device.Device) (float64, error) {
	if err := dev.SetHeaterPower(OutputMin); err != nil {
		return 0, asActuatorError("set heater", err)
	}
	if err := dev.SetIndicator(indicatorOn); err != nil {
		return 0, asActuatorError("set indicator", err)
	}
	t0, err := dev.ReadTemperature()
	if err != nil {
		return 0, asSensorError(err)
	}
	return t0, nil
}

// drain forces the heater off and closes the device. Only a failure to turn
// the heater off is reported; indicator and close errors are logged.
func (l *Loop) drain(dev device.Device) error {
	l.setPhase(PhaseDraining)

	var err error
	if herr := dev.SetHeaterPower(OutputMin); herr != nil {
		l.log.Errorw("failed to force heater off", "err", herr)
		err = fmt.Errorf("drain: %w", asActuatorError("set heater", herr))
	}
	if ierr := dev.SetIndicator(indicatorOff); ierr != nil {
		l.log.Debugw("failed to switch indicator off", "err", ierr)
	}
	if cerr := dev.Close(); cerr != nil {
		l.log.Warnw("device close failed", "err", cerr)
	}
	return err
}

func (l *Loop) setPhase(p Phase) {
	l.log.Debugw("phase", "phase", p)
	l.observer.PhaseChanged(p)
}

func asSensorError(err error) error {
	var se *device.SensorReadError
	if errors.As(err, &se) {
		return err
	}
	return &device.SensorReadError{Err: err}
}

func asActuatorError(op string, err error) error {
	var ae *device.ActuatorError
	if errors.As(err, &ae) {
		return err
	}
	return &device.ActuatorError{Op: op, Err: err}
}
