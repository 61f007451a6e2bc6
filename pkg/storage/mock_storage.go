package storage

import (
	"sync"
	"time"

	"github.com/avenca/flowline/pkg/models"
	"github.com/pkg/errors"
)

// mockStore implements Store with in-memory storage. Concurrent executions
// share one instance, so every method takes the lock.
type mockStore struct {
	mu         *sync.Mutex
	workflows  map[string]models.Workflow
	executions map[string]models.Execution
	logs       map[string][]models.LogEntry
	audits     []models.PrimitiveExecution
	nextLogID  *int64
}

func NewMockStore() Store {
	var logID int64
	return &mockStore{
		mu:         &sync.Mutex{},
		workflows:  map[string]models.Workflow{},
		executions: map[string]models.Execution{},
		logs:       map[string][]models.LogEntry{},
		nextLogID:  &logID,
	}
}

func (m *mockStore) Begin() (Store, error) {
	return m, nil
}

func (m *mockStore) Commit() error {
	return nil
}

func (m *mockStore) Rollback() error {
	// No-op: the mock applies writes immediately.
	return nil
}

func (m *mockStore) Close() error {
	return nil
}

func (m *mockStore) SaveWorkflow(w models.Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w.ID == "" {
		return errors.New("workflow id is required")
	}
	m.workflows[w.ID] = w
	return nil
}

func (m *mockStore) GetWorkflow(id string) (models.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workflows[id]
	if !ok {
		return models.Workflow{}, ErrNotFound
	}
	return w, nil
}

func (m *mockStore) ListWorkflows() ([]models.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Workflow, 0, len(m.workflows))
	for _, w := range m.workflows {
		out = append(out, w)
	}
	return out, nil
}

func (m *mockStore) ListEnabledWorkflows() ([]models.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Workflow
	for _, w := range m.workflows {
		if w.Enabled {
			out = append(out, w)
		}
	}
	return out, nil
}

func (m *mockStore) SetWorkflowEnabled(id string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workflows[id]
	if !ok {
		return ErrNotFound
	}
	w.Enabled = enabled
	w.UpdatedAt = time.Now()
	m.workflows[id] = w
	return nil
}

func (m *mockStore) CreateExecution(e models.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.executions[e.ID]; exists {
		return errors.New("execution already exists")
	}
	m.executions[e.ID] = e
	return nil
}

func (m *mockStore) GetExecution(id string) (models.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.executions[id]
	if !ok {
		return models.Execution{}, ErrNotFound
	}
	e.Log = append([]models.LogEntry(nil), m.logs[id]...)
	return e, nil
}

func (m *mockStore) ListExecutions(workflowID string) ([]models.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Execution
	for _, e := range m.executions {
		if e.WorkflowID == workflowID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockStore) UpdateExecutionStatus(id string, status models.ExecutionStatus, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.executions[id]
	if !ok {
		return ErrNotFound
	}
	// Terminal statuses absorb: first terminal transition wins.
	if e.Status.Terminal() {
		return nil
	}
	e.Status = status
	e.ErrorMsg = errMsg
	if status.Terminal() {
		now := time.Now()
		e.FinishedAt = &now
	}
	m.executions[id] = e
	return nil
}

func (m *mockStore) RequestCancellation(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.executions[id]
	if !ok {
		return ErrNotFound
	}
	e.CancelRequested = true
	m.executions[id] = e
	return nil
}

func (m *mockStore) CancelRequested(id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.executions[id]
	if !ok {
		return false, ErrNotFound
	}
	return e.CancelRequested, nil
}

func (m *mockStore) AppendLog(executionID string, entry models.LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.executions[executionID]; !ok {
		return ErrNotFound
	}
	*m.nextLogID++
	entry.ID = *m.nextLogID
	entry.ExecutionID = executionID
	m.logs[executionID] = append(m.logs[executionID], entry)
	return nil
}

func (m *mockStore) GetLog(executionID string) ([]models.LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.LogEntry(nil), m.logs[executionID]...), nil
}

func (m *mockStore) RecordPrimitiveExecution(p models.PrimitiveExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, p)
	return nil
}

// MockAuditTrail returns the primitive audit entries a mock store recorded.
// Returns nil for non-mock stores.
func MockAuditTrail(s Store) []models.PrimitiveExecution {
	m, ok := s.(*mockStore)
	if !ok {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.PrimitiveExecution(nil), m.audits...)
}
