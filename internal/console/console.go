// Package console collects run parameters from an operator at a terminal.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"

	"tclab_control/internal/service"
)

// ErrAborted is returned when input ends before every value was entered.
var ErrAborted = errors.New("input aborted")

// InvalidInputError describes a rejected entry. The prompt is repeated.
type InvalidInputError struct {
	Input  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input %q: %s", e.Input, e.Reason)
}

// ParseScalar parses a decimal number or a division "a/b", e.g. "4/150".
func ParseScalar(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, &InvalidInputError{Input: s, Reason: "empty"}
	}
	num, den, isDiv := strings.Cut(s, "/")
	if !isDiv {
		return parseFinite(s, s)
	}
	a, err := parseFinite(s, strings.TrimSpace(num))
	if err != nil {
		return 0, err
	}
	b, err := parseFinite(s, strings.TrimSpace(den))
	if err != nil {
		return 0, err
	}
	if b == 0 {
		return 0, &InvalidInputError{Input: s, Reason: "division by zero"}
	}
	return a / b, nil
}

func parseFinite(input, field string) (float64, error) {
	v, err := strconv.ParseFloat(field, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &InvalidInputError{Input: input, Reason: "not a number"}
	}
	return v, nil
}

// Prompter asks for values one line at a time. Lines are read on a
// separate goroutine so a pending prompt can be abandoned through its ctx.
type Prompter struct {
	in  io.Reader
	out io.Writer

	once    sync.Once
	lines   chan string
	readErr error // set before lines is closed
}

func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: in, out: out}
}

func (p *Prompter) startReader() {
	p.lines = make(chan string)
	go func() {
		sc := bufio.NewScanner(p.in)
		for sc.Scan() {
			p.lines <- sc.Text()
		}
		p.readErr = sc.Err()
		close(p.lines)
	}()
}

// next returns the next input line. A blocked read left behind by a
// cancelled ctx ends with the process.
func (p *Prompter) next(ctx context.Context) (string, error) {
	p.once.Do(p.startReader)
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %w", ErrAborted, ctx.Err())
	case line, ok := <-p.lines:
		if ok {
			return line, nil
		}
		if p.readErr != nil {
			return "", fmt.Errorf("%w: %v", ErrAborted, p.readErr)
		}
		return "", ErrAborted
	}
}

// Float prompts until a valid value is entered. check may further restrict
// the value; its error is shown and the prompt repeated.
func (p *Prompter) Float(ctx context.Context, prompt string, check func(float64) error) (float64, error) {
	for {
		fmt.Fprint(p.out, prompt)
		line, err := p.next(ctx)
		if err != nil {
			fmt.Fprintln(p.out)
			return 0, err
		}
		v, err := ParseScalar(line)
		if err == nil && check != nil {
			err = check(v)
		}
		if err != nil {
			fmt.Fprintf(p.out, "Invalid input: %v. Enter a number or a division (e.g. 0.027 or 4/150).\n", err)
			continue
		}
		return v, nil
	}
}

func positive(v float64) error {
	if v <= 0 {
		return errors.New("must be positive")
	}
	return nil
}

// RunParams asks for duration, setpoint and both gains.
func (p *Prompter) RunParams(ctx context.Context) (service.RunParams, error) {
	var (
		rp  service.RunParams
		err error
	)
	fmt.Fprintln(p.out, "--- TCLab PI controller setup ---")
	if rp.DurationSec, err = p.Float(ctx, "Run time (s): ", positive); err != nil {
		return rp, err
	}
	if rp.SetpointC, err = p.Float(ctx, "Setpoint (°C): ", nil); err != nil {
		return rp, err
	}
	if rp.Kp, err = p.Float(ctx, "Proportional gain (Kp): ", nil); err != nil {
		return rp, err
	}
	if rp.Ki, err = p.Float(ctx, "Integral gain (Ki): ", nil); err != nil {
		return rp, err
	}
	fmt.Fprintf(p.out, "\nRunning controller for %.0fs with setpoint %.1f°C, Kp=%.2f, Ki=%.4f\n",
		rp.DurationSec, rp.SetpointC, rp.Kp, rp.Ki)
	return rp, nil
}
