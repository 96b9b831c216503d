package service

import (
	"time"

	"tclab_control/internal/controller"
	"tclab_control/internal/models"
)

// RunParams are the operator inputs of one run.
type RunParams struct {
	DurationSec float64
	SetpointC   float64
	Kp          float64
	Ki          float64
	Bias        *float64 // nil uses the configured default
}

// Outcome is what a synchronous run produced.
type Outcome struct {
	Run     models.Run
	Samples []models.Sample
}

// RunStatus is a snapshot of the controller for the status endpoints.
type RunStatus struct {
	Active  bool             `json:"active"`
	Phase   controller.Phase `json:"phase,omitempty"`
	Run     *models.Run      `json:"run,omitempty"`
	Last    *models.Sample   `json:"last_sample,omitempty"`
	Samples int              `json:"samples"`
}

// LogFilter selects run log entries by time range, type and run.
type LogFilter struct {
	From  time.Time // inclusive; zero means no lower bound
	To    time.Time // inclusive; zero means no upper bound
	Type  string    // "", or one of the Event* types
	RunID string    // "", or the run the events belong to
}

// Event types written to the run log.
const (
	EventRunStart    = "RUN_START"
	EventRunComplete = "RUN_COMPLETE"
	EventRunAborted  = "RUN_ABORTED"
	EventPhase       = "PHASE"
	EventOverrun     = "OVERRUN"
)

var knownEventTypes = map[string]struct{}{
	EventRunStart:    {},
	EventRunComplete: {},
	EventRunAborted:  {},
	EventPhase:       {},
	EventOverrun:     {},
}
