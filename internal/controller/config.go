package controller

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Output limits of the heater command, in percent.
const (
	OutputMin = 0.0
	OutputMax = 100.0
)

// DefaultSamplePeriod matches the board's two-second control interval.
const DefaultSamplePeriod = 2 * time.Second

var ErrInvalidConfig = errors.New("invalid controller config")

// Config holds the parameters of one run. It is not modified while the run
// is in progress.
type Config struct {
	Setpoint     float64 // °C
	Kp           float64
	Ki           float64
	Bias         float64 // % heater power added to every output
	SamplePeriod time.Duration
	Duration     time.Duration
}

// Validate rejects periods and gains the loop cannot run with.
func (c Config) Validate() error {
	if c.SamplePeriod <= 0 {
		return fmt.Errorf("%w: sample period must be > 0, got %s", ErrInvalidConfig, c.SamplePeriod)
	}
	if c.Duration <= 0 {
		return fmt.Errorf("%w: duration must be > 0, got %s", ErrInvalidConfig, c.Duration)
	}
	for name, v := range map[string]float64{
		"setpoint": c.Setpoint,
		"kp":       c.Kp,
		"ki":       c.Ki,
		"bias":     c.Bias,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s must be finite", ErrInvalidConfig, name)
		}
	}
	return nil
}

// Cycles returns floor(Duration / SamplePeriod).
func (c Config) Cycles() int {
	if c.SamplePeriod <= 0 {
		return 0
	}
	return int(c.Duration / c.SamplePeriod)
}
