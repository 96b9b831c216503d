package controller

// State is the mutable part of the controller. It starts zeroed for every
// run and is never carried over.
type State struct {
	IntegralError float64 `json:"integral_error"`
	SampleIndex   int     `json:"sample_index"`
}

// Step is the outcome of one control computation.
type Step struct {
	Error        float64
	Proportional float64
	Integral     float64 // Ki times the candidate integral
	Raw          float64 // bias + P + I before clamping
	Output       float64 // Raw clamped to [OutputMin, OutputMax]
	Saturated    bool    // Output sits on a bound; integral was frozen
}

// PI is a discrete proportional-integral law with conditional-integration
// anti-windup: the integral only advances on cycles whose output lands
// strictly inside the actuator range.
type PI struct {
	cfg   Config
	dt    float64 // sample period in seconds
	state State
}

// NewPI returns a controller with zeroed state.
func NewPI(cfg Config) *PI {
	return &PI{cfg: cfg, dt: cfg.SamplePeriod.Seconds()}
}

// State returns a copy of the current controller state.
func (c *PI) State() State { return c.state }

// Update computes the output for one measurement and advances the state.
func (c *PI) Update(measured float64) Step {
	var s Step
	s.Error = c.cfg.Setpoint - measured
	s.Proportional = c.cfg.Kp * s.Error

	candidate := c.state.IntegralError + s.Error*c.dt
	s.Integral = c.cfg.Ki * candidate
	s.Raw = c.cfg.Bias + s.Proportional + s.Integral
	s.Output = clamp(s.Raw, OutputMin, OutputMax)

	if s.Output > OutputMin && s.Output < OutputMax {
		c.state.IntegralError = candidate
	} else {
		s.Saturated = true
	}
	c.state.SampleIndex++
	return s
}

func clamp(v, lo, hi float64) float64 {
	switch {
	case v != v: // NaN: treat as "no power"
		return lo
	case v < lo:
		return lo
	case v > hi:
		return hi
	default:
		return v
	}
}
