package device

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// Serial link defaults for the TCLab firmware.
const (
	DefaultBaud        = 115200
	DefaultReadTimeout = 2 * time.Second
	// The Arduino resets when the port opens; the firmware ignores input until
	// it has booted.
	DefaultResetDelay = 2 * time.Second
)

// knownBoards lists USB VID:PID pairs of boards shipped with TCLab kits.
var knownBoards = map[string]string{
	"16D0:0613": "Arduino Uno",
	"1A86:7523": "NHduino",
	"2341:8036": "Arduino Leonardo",
	"2A03:0043": "Arduino Uno",
	"20A0:4173": "Arduino Uno",
	"2341:0043": "Arduino Uno",
}

// SerialConnector opens a TCLab over USB serial.
type SerialConnector struct {
	// Port is the device path (e.g. /dev/ttyACM0, COM3). Empty means discover.
	Port        string
	Baud        int
	ReadTimeout time.Duration
	ResetDelay  time.Duration

	open func(name string, mode *serial.Mode) (serial.Port, error)
	list func() ([]*enumerator.PortDetails, error)
}

var _ Connector = (*SerialConnector)(nil)

// NewSerialConnector returns a connector with firmware defaults filled in.
func NewSerialConnector(port string, baud int, readTimeout time.Duration) *SerialConnector {
	if baud <= 0 {
		baud = DefaultBaud
	}
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	return &SerialConnector{
		Port:        port,
		Baud:        baud,
		ReadTimeout: readTimeout,
		ResetDelay:  DefaultResetDelay,
		open:        serial.Open,
		list:        enumerator.GetDetailedPortsList,
	}
}

// Connect resolves the port, opens it, waits for the board reset and runs
// the handshake. Every failure is a *ConnectionError.
func (c *SerialConnector) Connect(ctx context.Context) (Device, error) {
	name := c.Port
	if name == "" {
		found, err := discoverPort(c.list)
		if err != nil {
			return nil, &ConnectionError{Err: err}
		}
		name = found
	}

	port, err := c.open(name, &serial.Mode{BaudRate: c.Baud})
	if err != nil {
		return nil, &ConnectionError{Port: name, Err: err}
	}
	if err := port.SetReadTimeout(c.ReadTimeout); err != nil {
		_ = port.Close()
		return nil, &ConnectionError{Port: name, Err: fmt.Errorf("set read timeout: %w", err)}
	}

	if c.ResetDelay > 0 {
		t := time.NewTimer(c.ResetDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			_ = port.Close()
			return nil, &ConnectionError{Port: name, Err: ctx.Err()}
		case <-t.C:
		}
	}

	dev := newTCLab(name, port)
	if err := dev.handshake(); err != nil {
		_ = port.Close()
		return nil, &ConnectionError{Port: name, Err: fmt.Errorf("handshake: %w", err)}
	}
	return dev, nil
}

// discoverPort returns the first USB serial port whose VID:PID matches a
// known TCLab board.
func discoverPort(list func() ([]*enumerator.PortDetails, error)) (string, error) {
	ports, err := list()
	if err != nil {
		return "", fmt.Errorf("list serial ports: %w", err)
	}
	for _, p := range ports {
		if p == nil || !p.IsUSB {
			continue
		}
		key := strings.ToUpper(p.VID) + ":" + strings.ToUpper(p.PID)
		if _, ok := knownBoards[key]; ok {
			return p.Name, nil
		}
	}
	return "", ErrNotFound
}
