package storage

import (
	"github.com/avenca/flowline/pkg/models"
	"github.com/pkg/errors"
)

// ErrNotFound is returned when a workflow or execution does not exist.
var ErrNotFound = errors.New("not found")

// Store defines the persistence operations the engine relies on. The engine
// never issues raw storage queries itself; any implementation offering atomic
// per-row writes is conformant.
type Store interface {
	// Transaction control. Begin returns a Store scoped to one transaction.
	Begin() (Store, error)
	Commit() error
	Rollback() error
	Close() error

	// Workflow definitions. Written by the authoring surface; the engine only
	// reads them at dispatch and execution time.
	SaveWorkflow(w models.Workflow) error
	GetWorkflow(id string) (models.Workflow, error)
	ListWorkflows() ([]models.Workflow, error)
	ListEnabledWorkflows() ([]models.Workflow, error)
	SetWorkflowEnabled(id string, enabled bool) error

	// Executions. Owned exclusively by the engine.
	CreateExecution(e models.Execution) error
	GetExecution(id string) (models.Execution, error)
	ListExecutions(workflowID string) ([]models.Execution, error)
	UpdateExecutionStatus(id string, status models.ExecutionStatus, errMsg string) error
	RequestCancellation(id string) error
	CancelRequested(id string) (bool, error)

	// Execution log. Append-only, ordered by step completion.
	AppendLog(executionID string, entry models.LogEntry) error
	GetLog(executionID string) ([]models.LogEntry, error)

	// Primitive audit trail. Best-effort from the caller's standpoint.
	RecordPrimitiveExecution(p models.PrimitiveExecution) error
}
