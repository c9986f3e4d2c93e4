package models

import "time"

// Event types
const (
	EventTypeRunRequested = "RUN_REQUESTED"
	EventTypeRunCompleted = "RUN_COMPLETED"
	EventTypeRunFailed    = "RUN_FAILED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// RunRequestedEvent asks a worker to execute one full-refresh run
type RunRequestedEvent struct {
	BaseEvent
	RunID     string   `json:"run_id"`
	InputPath string   `json:"input_path"`
	Formats   []string `json:"formats,omitempty"`
}

// RunCompletedEvent published when a run has persisted its dataset
type RunCompletedEvent struct {
	BaseEvent
	RunID      string         `json:"run_id"`
	TotalInput int            `json:"total_input"`
	Accepted   int            `json:"accepted"`
	Rejected   int            `json:"rejected"`
	Rejections map[string]int `json:"rejections"`
	Flags      map[string]int `json:"flags"`
	TableRows  map[string]int `json:"table_rows"`
}

// RunFailedEvent published when a run aborts
type RunFailedEvent struct {
	BaseEvent
	RunID     string `json:"run_id"`
	Reason    string `json:"reason"`
	Invariant string `json:"invariant,omitempty"`
	RowIndex  *int   `json:"row_index,omitempty"`
}
