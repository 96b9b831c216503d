// Package device talks to the TCLab heater/sensor board, either over its USB
// serial link or through an in-process simulation of it.
package device

import (
	"context"
	"errors"
	"fmt"
)

// Device is an open connection to a heater/sensor board.
//
// Implementations fail fast: once the link is lost every call returns an
// error without retrying.
type Device interface {
	// ReadTemperature returns the sensor temperature in °C.
	ReadTemperature() (float64, error)
	// SetHeaterPower sets heater 1 power in percent, clipped to [0, 100].
	SetHeaterPower(percent float64) error
	// SetIndicator sets the LED brightness in percent, clipped to [0, 100].
	SetIndicator(percent float64) error
	// Close switches everything off and releases the link. It is idempotent
	// and best effort.
	Close() error
}

// Connector opens a Device.
type Connector interface {
	Connect(ctx context.Context) (Device, error)
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(ctx context.Context) (Device, error)

func (f ConnectorFunc) Connect(ctx context.Context) (Device, error) { return f(ctx) }

var (
	ErrNotFound = errors.New("no TCLab device found")
	ErrClosed   = errors.New("device connection closed")
)

// ConnectionError reports that the device could not be found or the
// handshake failed.
type ConnectionError struct {
	Port string
	Err  error
}

func (e *ConnectionError) Error() string {
	if e.Port == "" {
		return fmt.Sprintf("connect: %v", e.Err)
	}
	return fmt.Sprintf("connect %s: %v", e.Port, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// SensorReadError reports a failed temperature read.
type SensorReadError struct {
	Err error
}

func (e *SensorReadError) Error() string { return "read temperature: " + e.Err.Error() }

func (e *SensorReadError) Unwrap() error { return e.Err }

// ActuatorError reports a failed heater or indicator command.
type ActuatorError struct {
	Op  string
	Err error
}

func (e *ActuatorError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *ActuatorError) Unwrap() error { return e.Err }

// clipPercent bounds a command to the range the firmware accepts.
func clipPercent(p float64) float64 {
	switch {
	case p != p: // NaN
		return 0
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}
