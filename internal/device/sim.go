package device

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"
)

// ----------- Simulation constants -----------
const (
	AmbientC        = 25.0  // ambient temperature °C
	HeaterGainCPct  = 0.6   // steady-state °C rise per % heater power
	TimeConstantSec = 160.0 // first-order lag of heater + sensor
	MaxSafeC        = 100.0 // firmware cuts the heater above this °C
)

var errSimDisconnected = errors.New("simulated disconnect")

// SimConfig tunes the simulated board.
type SimConfig struct {
	AmbientC float64
	// TimeScale multiplies wall-clock time; 10 makes the plant run ten times
	// faster than real time.
	TimeScale float64
	// FailAfterReads makes every read after the first N fail, like an unplugged
	// cable. Zero disables the fault.
	FailAfterReads int
}

// Sim is an in-process TCLab with a first-order thermal model.
type Sim struct {
	cfg SimConfig
	now func() time.Time

	mu        sync.Mutex
	tempC     float64
	heaterPct float64
	ledPct    float64
	reads     int
	last      time.Time
	closed    bool
	err       error
}

var _ Device = (*Sim)(nil)

// NewSim returns a simulated board sitting at ambient temperature.
func NewSim(cfg SimConfig) *Sim {
	return newSimAt(cfg, time.Now)
}

func newSimAt(cfg SimConfig, now func() time.Time) *Sim {
	if cfg.AmbientC == 0 {
		cfg.AmbientC = AmbientC
	}
	if cfg.TimeScale <= 0 {
		cfg.TimeScale = 1
	}
	return &Sim{
		cfg:   cfg,
		now:   now,
		tempC: cfg.AmbientC,
		last:  now(),
	}
}

// advance integrates the plant up to now. Caller holds mu.
func (s *Sim) advance() {
	now := s.now()
	elapsed := now.Sub(s.last).Seconds() * s.cfg.TimeScale
	s.last = now
	if elapsed <= 0 {
		return
	}
	s.tempC = s.step(s.tempC, s.heaterPct, elapsed)
	if s.tempC > MaxSafeC {
		s.heaterPct = 0
	}
}

// step advances temperature by elapsed seconds under constant heater power
// using the exact first-order response.
func (s *Sim) step(tempC, heaterPct, elapsed float64) float64 {
	target := s.cfg.AmbientC + HeaterGainCPct*heaterPct
	decay := math.Exp(-elapsed / TimeConstantSec)
	return target + (tempC-target)*decay
}

func (s *Sim) ReadTemperature() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return 0, &SensorReadError{Err: err}
	}
	s.reads++
	if s.cfg.FailAfterReads > 0 && s.reads > s.cfg.FailAfterReads {
		s.err = errSimDisconnected
		return 0, &SensorReadError{Err: s.err}
	}
	s.advance()
	return s.tempC, nil
}

func (s *Sim) SetHeaterPower(percent float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return &ActuatorError{Op: cmdHeater1, Err: err}
	}
	s.advance()
	s.heaterPct = clipPercent(percent)
	return nil
}

func (s *Sim) SetIndicator(percent float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return &ActuatorError{Op: cmdLED, Err: err}
	}
	s.ledPct = clipPercent(percent)
	return nil
}

// HeaterPower returns the last applied heater command.
func (s *Sim) HeaterPower() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heaterPct
}

// Indicator returns the last applied LED command.
func (s *Sim) Indicator() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledPct
}

// Closed reports whether Close was called.
func (s *Sim) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close turns everything off like the firmware's X command.
func (s *Sim) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.advance()
	s.heaterPct = 0
	s.ledPct = 0
	s.closed = true
	return nil
}

func (s *Sim) usable() error {
	if s.closed {
		return ErrClosed
	}
	return s.err
}

// SimConnector hands out a fresh simulated board per connection.
type SimConnector struct {
	Config SimConfig

	mu   sync.Mutex
	last *Sim
}

var _ Connector = (*SimConnector)(nil)

func (c *SimConnector) Connect(ctx context.Context) (Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, &ConnectionError{Port: "sim", Err: err}
	}
	sim := NewSim(c.Config)
	c.mu.Lock()
	c.last = sim
	c.mu.Unlock()
	return sim, nil
}

// Last returns the most recently connected board, or nil.
func (c *SimConnector) Last() *Sim {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}
