package device

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// Firmware commands.
const (
	cmdTemp1   = "T1"
	cmdHeater1 = "Q1"
	cmdHeater2 = "Q2"
	cmdLED     = "LED"
	cmdVersion = "VER"
	cmdStop    = "X"

	lineEnd        = "\r\n"
	firmwareMarker = "TCLab"
)

var errReadTimeout = errors.New("timed out waiting for device reply")

// TCLab drives the board's line protocol: one command line out, one reply
// line back.
type TCLab struct {
	port    string
	rw      io.ReadWriteCloser
	rd      *bufio.Reader
	version string

	mu     sync.Mutex
	err    error // sticky link error
	closed bool
}

var _ Device = (*TCLab)(nil)

func newTCLab(port string, rw io.ReadWriteCloser) *TCLab {
	return &TCLab{
		port: port,
		rw:   rw,
		rd:   bufio.NewReader(timeoutReader{rw}),
	}
}

// timeoutReader turns the serial library's (0, nil) read timeout into an
// error so a silent board does not spin bufio.
type timeoutReader struct {
	r io.Reader
}

func (t timeoutReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if n == 0 && err == nil {
		return 0, errReadTimeout
	}
	return n, err
}

// Port returns the serial port name.
func (d *TCLab) Port() string { return d.port }

// Version returns the firmware banner reported during the handshake.
func (d *TCLab) Version() string { return d.version }

// command sends one line and returns the trimmed reply. Any I/O failure
// poisons the connection.
func (d *TCLab) command(cmd string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return "", ErrClosed
	}
	if d.err != nil {
		return "", d.err
	}
	if _, err := io.WriteString(d.rw, cmd+lineEnd); err != nil {
		d.err = fmt.Errorf("write %q: %w", cmd, err)
		return "", d.err
	}
	line, err := d.rd.ReadString('\n')
	if err != nil {
		d.err = fmt.Errorf("read reply to %q: %w", cmd, err)
		return "", d.err
	}
	return strings.TrimSpace(line), nil
}

func (d *TCLab) ReadTemperature() (float64, error) {
	reply, err := d.command(cmdTemp1)
	if err != nil {
		return 0, &SensorReadError{Err: err}
	}
	v, err := strconv.ParseFloat(reply, 64)
	if err != nil {
		return 0, &SensorReadError{Err: fmt.Errorf("parse %q: %w", reply, err)}
	}
	return v, nil
}

func (d *TCLab) SetHeaterPower(percent float64) error {
	return d.setPercent(cmdHeater1, percent)
}

func (d *TCLab) SetIndicator(percent float64) error {
	return d.setPercent(cmdLED, percent)
}

func (d *TCLab) setPercent(cmd string, percent float64) error {
	line := cmd + " " + strconv.FormatFloat(clipPercent(percent), 'f', -1, 64)
	if _, err := d.command(line); err != nil {
		return &ActuatorError{Op: cmd, Err: err}
	}
	return nil
}

// handshake puts both heaters in a known state and checks the firmware.
func (d *TCLab) handshake() error {
	if _, err := d.command(cmdHeater1 + " 0"); err != nil {
		return err
	}
	if _, err := d.command(cmdHeater2 + " 0"); err != nil {
		return err
	}
	ver, err := d.command(cmdVersion)
	if err != nil {
		return err
	}
	if !strings.Contains(ver, firmwareMarker) {
		return fmt.Errorf("unexpected firmware %q", ver)
	}
	d.version = ver
	return nil
}

// Close sends the all-off command when the link is still healthy and closes
// the port. Errors are swallowed.
func (d *TCLab) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	healthy := d.err == nil
	d.mu.Unlock()

	if healthy {
		_, _ = d.command(cmdStop)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	_ = d.rw.Close()
	return nil
}
