package models

import "time"

type ExecutionStatus string

const (
	PendingExecutionStatus   ExecutionStatus = "PENDING"
	RunningExecutionStatus   ExecutionStatus = "RUNNING"
	CompletedExecutionStatus ExecutionStatus = "COMPLETED"
	FailedExecutionStatus    ExecutionStatus = "FAILED"
	CancelledExecutionStatus ExecutionStatus = "CANCELLED"
)

// Terminal reports whether no further transitions can leave the status.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case CompletedExecutionStatus, FailedExecutionStatus, CancelledExecutionStatus:
		return true
	}
	return false
}

// Execution is one run of a workflow. Created by trigger dispatch in PENDING,
// mutated only by the executor while running, immutable once terminal except
// for the cancellation request flag.
type Execution struct {
	ID              string          `json:"id" db:"id"`                             // UUID
	WorkflowID      string          `json:"workflow_id" db:"workflow_id"`           // Foreign key to Workflow
	Status          ExecutionStatus `json:"status" db:"status"`                     // State machine position
	TriggerKind     string          `json:"trigger_kind" db:"trigger_kind"`         // manual|webhook|event|schedule
	TriggerEvent    JSONMap         `json:"trigger_event" db:"trigger_event"`       // Trigger payload snapshot
	CorrelationID   string          `json:"correlation_id" db:"correlation_id"`     // From the originating event, if any
	ErrorMsg        string          `json:"error,omitempty" db:"error_msg"`         // Set on FAILED
	CancelRequested bool            `json:"cancel_requested" db:"cancel_requested"` // Cooperative cancellation flag
	StartedAt       time.Time       `json:"started_at" db:"started_at"`
	FinishedAt      *time.Time      `json:"finished_at,omitempty" db:"finished_at"` // Nullable until terminal
	Log             []LogEntry      `json:"log,omitempty"`                          // Populated at read time
}

// LogEntry is one node step in an execution's log, appended unconditionally,
// including on failure. Entries are strictly ordered by step completion.
type LogEntry struct {
	ID          int64      `json:"id" db:"id"`                   // Auto-incremented log ID
	ExecutionID string     `json:"execution_id" db:"execution_id"`
	NodeID      string     `json:"node_id" db:"node_id"`
	Attempts    int        `json:"attempts" db:"attempts"`       // Primitive attempts consumed by this step
	Input       JSONMap    `json:"input,omitempty" db:"input"`   // Resolved input snapshot
	Output      JSON       `json:"output,omitempty" db:"output"` // Node output, if any
	ErrorMsg    string     `json:"error,omitempty" db:"error_msg"`
	StartedAt   time.Time  `json:"started_at" db:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty" db:"finished_at"`
}
