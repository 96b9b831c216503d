package models

import "time"

// Run statuses.
const (
	RunStatusRunning     = "RUNNING"
	RunStatusCompleted   = "COMPLETED"
	RunStatusFailed      = "FAILED"
	RunStatusInterrupted = "INTERRUPTED"
)

// Run is the record of a single controller run.
type Run struct {
	ID               string    `json:"id"`
	Status           string    `json:"status"` // RUNNING | COMPLETED | FAILED | INTERRUPTED
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at,omitempty"`
	SetpointC        float64   `json:"setpoint_c"`
	Kp               float64   `json:"kp"`
	Ki               float64   `json:"ki"`
	Bias             float64   `json:"bias"`
	SamplePeriodSec  float64   `json:"sample_period_s"`
	DurationSec      float64   `json:"duration_s"`
	SampleCount      int       `json:"sample_count"`
	SteadyStateError *float64  `json:"steady_state_error_c,omitempty"` // nil when no samples were taken
	Error            string    `json:"error,omitempty"`
}
