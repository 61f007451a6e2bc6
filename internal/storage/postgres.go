package storage

import (
	"database/sql"
	"fmt"

	"github.com/avenca/flowline/pkg/models"
	"github.com/avenca/flowline/pkg/storage"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type DBInterface interface {
	Get(dest interface{}, query string, args ...interface{}) error
	Select(dest interface{}, query string, args ...interface{}) error
	QueryRowx(query string, args ...interface{}) *sqlx.Row
	Exec(query string, args ...interface{}) (sql.Result, error)
}

type PostgresStore struct {
	db DBInterface
}

func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Begin() (storage.Store, error) {
	if db, ok := s.db.(*sqlx.DB); ok {
		tx, err := db.Beginx()
		if err != nil {
			return nil, err
		}
		return &PostgresStore{db: tx}, nil
	}
	return nil, fmt.Errorf("cannot begin transaction on unknown type")
}

func (s *PostgresStore) Commit() error {
	if tx, ok := s.db.(*sqlx.Tx); ok {
		return tx.Commit()
	}
	return fmt.Errorf("cannot commit: not a transaction")
}

func (s *PostgresStore) Rollback() error {
	if tx, ok := s.db.(*sqlx.Tx); ok {
		return tx.Rollback()
	}
	return fmt.Errorf("cannot rollback: not a transaction")
}

func (s *PostgresStore) Close() error {
	if db, ok := s.db.(*sqlx.DB); ok {
		return db.Close()
	}
	return nil // No-op for *sqlx.Tx
}

// SaveWorkflow upserts a workflow definition by id.
func (s *PostgresStore) SaveWorkflow(w models.Workflow) error {
	_, err := s.db.Exec(`
		INSERT INTO workflows (id, name, version, enabled, tenant_id, trigger_spec, graph, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			version = EXCLUDED.version,
			enabled = EXCLUDED.enabled,
			tenant_id = EXCLUDED.tenant_id,
			trigger_spec = EXCLUDED.trigger_spec,
			graph = EXCLUDED.graph,
			updated_at = CURRENT_TIMESTAMP`,
		w.ID, w.Name, w.Version, w.Enabled, w.TenantID, w.Trigger, w.Graph, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save workflow: %w", err)
	}
	return nil
}

// GetWorkflow retrieves a workflow definition by ID
func (s *PostgresStore) GetWorkflow(id string) (models.Workflow, error) {
	var wf models.Workflow
	err := s.db.Get(&wf, "SELECT * FROM workflows WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return models.Workflow{}, storage.ErrNotFound
	}
	if err != nil {
		return models.Workflow{}, fmt.Errorf("get workflow %s: %w", id, err)
	}
	return wf, nil
}

func (s *PostgresStore) ListWorkflows() ([]models.Workflow, error) {
	workflows := []models.Workflow{}
	query := "SELECT * FROM workflows ORDER BY created_at DESC"
	if err := s.db.Select(&workflows, query); err != nil {
		return nil, err
	}
	return workflows, nil
}

func (s *PostgresStore) ListEnabledWorkflows() ([]models.Workflow, error) {
	workflows := []models.Workflow{}
	query := "SELECT * FROM workflows WHERE enabled ORDER BY created_at DESC"
	if err := s.db.Select(&workflows, query); err != nil {
		return nil, err
	}
	return workflows, nil
}

func (s *PostgresStore) SetWorkflowEnabled(id string, enabled bool) error {
	res, err := s.db.Exec("UPDATE workflows SET enabled = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2", enabled, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// CreateExecution inserts a new execution row in its dispatch-time state.
func (s *PostgresStore) CreateExecution(e models.Execution) error {
	_, err := s.db.Exec(`
		INSERT INTO workflow_executions
			(id, workflow_id, status, trigger_kind, trigger_event, correlation_id, error_msg, cancel_requested, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.WorkflowID, e.Status, e.TriggerKind, e.TriggerEvent, e.CorrelationID, e.ErrorMsg, e.CancelRequested, e.StartedAt, e.FinishedAt)
	return err
}

// GetExecution retrieves an execution with its log entries.
func (s *PostgresStore) GetExecution(id string) (models.Execution, error) {
	var e models.Execution
	err := s.db.Get(&e, "SELECT * FROM workflow_executions WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return models.Execution{}, storage.ErrNotFound
	}
	if err != nil {
		return models.Execution{}, err
	}
	if err := s.db.Select(&e.Log, "SELECT * FROM execution_logs WHERE execution_id = $1 ORDER BY id", id); err != nil {
		return models.Execution{}, fmt.Errorf("get execution %s: %w", id, err)
	}
	return e, nil
}

func (s *PostgresStore) ListExecutions(workflowID string) ([]models.Execution, error) {
	executions := []models.Execution{}
	err := s.db.Select(&executions,
		"SELECT * FROM workflow_executions WHERE workflow_id = $1 ORDER BY started_at DESC", workflowID)
	if err != nil {
		return nil, err
	}
	return executions, nil
}

// UpdateExecutionStatus moves an execution through its state machine.
// Terminal statuses absorb: a row already completed, failed, or cancelled is
// never updated again.
func (s *PostgresStore) UpdateExecutionStatus(id string, status models.ExecutionStatus, errorMsg string) error {
	_, err := s.db.Exec(`
		UPDATE workflow_executions
		SET status = $1,
		error_msg = $2,
		finished_at = CASE WHEN $3 IN ('COMPLETED', 'FAILED', 'CANCELLED') THEN CURRENT_TIMESTAMP ELSE finished_at END
		WHERE id = $4 AND status NOT IN ('COMPLETED', 'FAILED', 'CANCELLED')`,
		// The status parameter appears twice because Postgres types the CASE
		// clause's parameter separately.
		status, errorMsg, status, id)
	return err
}

func (s *PostgresStore) RequestCancellation(id string) error {
	res, err := s.db.Exec("UPDATE workflow_executions SET cancel_requested = TRUE WHERE id = $1", id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CancelRequested(id string) (bool, error) {
	var requested bool
	err := s.db.Get(&requested, "SELECT cancel_requested FROM workflow_executions WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return false, storage.ErrNotFound
	}
	return requested, err
}

// AppendLog inserts one node-step entry for an execution.
func (s *PostgresStore) AppendLog(executionID string, entry models.LogEntry) error {
	_, err := s.db.Exec(`
		INSERT INTO execution_logs (execution_id, node_id, attempts, input, output, error_msg, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		executionID, entry.NodeID, entry.Attempts, entry.Input, entry.Output, entry.ErrorMsg, entry.StartedAt, entry.FinishedAt)
	return err
}

func (s *PostgresStore) GetLog(executionID string) ([]models.LogEntry, error) {
	entries := []models.LogEntry{}
	err := s.db.Select(&entries, "SELECT * FROM execution_logs WHERE execution_id = $1 ORDER BY id", executionID)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// RecordPrimitiveExecution appends one audit entry for a primitive attempt.
func (s *PostgresStore) RecordPrimitiveExecution(p models.PrimitiveExecution) error {
	_, err := s.db.Exec(`
		INSERT INTO primitive_executions (id, execution_id, primitive, attempt, input, output, error_msg, duration_ms, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.ExecutionID, p.Primitive, p.Attempt, p.Input, p.Output, p.ErrorMsg, p.DurationMS, p.StartedAt)
	return err
}
