package models

import "time"

// RunEvent is a single log entry.
type RunEvent struct {
	EventID     string    `json:"event_id"`
	RunID       string    `json:"run_id,omitempty"` // empty for events not tied to a run
	OccurredAt  time.Time `json:"occurred_at"`
	Type        string    `json:"type"`        // RUN_START | RUN_COMPLETE | RUN_ABORTED | PHASE | OVERRUN
	Description string    `json:"description"` // human-readable
	Metadata    any       `json:"metadata,omitempty"`
}
