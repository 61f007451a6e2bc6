package engine

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/avenca/flowline/pkg/models"
	"github.com/avenca/flowline/pkg/storage"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Trigger kinds recorded on executions.
const (
	TriggerKindManual   = "manual"
	TriggerKindWebhook  = "webhook"
	TriggerKindEvent    = "event"
	TriggerKindSchedule = "schedule"
)

// Engine is the single shared instance per deployment: it holds the
// persistence store and primitive registry, accepts triggers, and runs
// executions on a worker pool. Emission is decoupled from execution: trigger
// entry points return once executions are enqueued, and callers observe
// outcomes by polling execution status.
type Engine struct {
	store    storage.Store
	registry *Registry
	adapter  *PrimitiveAdapter
	executor *Executor
	logger   Logger
	ctx      context.Context

	queue chan dispatchJob
	wg    sync.WaitGroup

	mu          sync.Mutex
	lastFiredAt map[string]time.Time // trigger cooldowns, keyed by workflow id
	lastDueAt   map[string]time.Time // schedule checkpoints, keyed by workflow id
}

type dispatchJob struct {
	workflow  models.Workflow
	execution models.Execution
}

// NewEngine constructs the engine and starts its execution workers. workers
// <= 0 uses one worker per CPU.
func NewEngine(ctx context.Context, store storage.Store, registry *Registry, logger Logger, workers int) *Engine {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	adapter := NewPrimitiveAdapter(registry, store, logger)
	e := &Engine{
		store:       store,
		registry:    registry,
		adapter:     adapter,
		executor:    NewExecutor(store, adapter, logger),
		logger:      logger,
		ctx:         ctx,
		queue:       make(chan dispatchJob, workers),
		lastFiredAt: map[string]time.Time{},
		lastDueAt:   map[string]time.Time{},
	}
	for i := 0; i < workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}
	return e
}

// Stop drains the work queue and waits for in-flight executions to finish.
func (e *Engine) Stop() {
	close(e.queue)
	e.wg.Wait()
}

func (e *Engine) worker() {
	defer e.wg.Done()
	for job := range e.queue {
		if e.ctx.Err() != nil {
			// Engine context cancelled: leave the execution PENDING rather
			// than start a run that would be cut short.
			e.logger.Infof("Skipping execution %s: engine is shutting down", job.execution.ID)
			continue
		}
		e.executor.Run(e.ctx, job.workflow, job.execution)
	}
}

// Registry exposes the primitive registry for registration at startup.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// TriggerManually starts one execution of the given workflow. The workflow is
// validated before the execution is created; a malformed definition is
// rejected here, before any node runs.
func (e *Engine) TriggerManually(workflowID string, payload map[string]interface{}) (string, error) {
	wf, err := e.store.GetWorkflow(workflowID)
	if err != nil {
		return "", errors.Wrapf(err, "workflow %s", workflowID)
	}
	if !wf.Enabled {
		return "", errors.Errorf("workflow %s is disabled", workflowID)
	}
	return e.accept(wf, TriggerKindManual, payload, "")
}

// TriggerByWebhook starts an execution for every enabled workflow whose
// trigger declares the slug. Returns the started execution ids.
func (e *Engine) TriggerByWebhook(slug string, payload map[string]interface{}) ([]string, error) {
	workflows, err := e.store.ListEnabledWorkflows()
	if err != nil {
		return nil, errors.Wrap(err, "list workflows")
	}
	var ids []string
	for _, wf := range workflows {
		if wf.Trigger.WebhookSlug != slug {
			continue
		}
		id, err := e.acceptMatch(wf, TriggerKindWebhook, payload, "")
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// TriggerByEvent starts an execution for every enabled workflow subscribed to
// the event name, by exact match or wildcard suffix ("order.*" matches
// "order.created"). Each match gets an independent execution.
func (e *Engine) TriggerByEvent(event models.Event) ([]string, error) {
	workflows, err := e.store.ListEnabledWorkflows()
	if err != nil {
		return nil, errors.Wrap(err, "list workflows")
	}
	var ids []string
	for _, wf := range workflows {
		if !MatchesEvent(wf.Trigger, event.Name) {
			continue
		}
		payload := event.Payload
		if payload == nil {
			payload = map[string]interface{}{}
		}
		id, err := e.acceptMatch(wf, TriggerKindEvent, payload, event.CorrelationID)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// acceptMatch wraps accept for multi-match entry points: a workflow that
// fails validation or cooldown is skipped with a log line instead of failing
// the whole dispatch.
func (e *Engine) acceptMatch(wf models.Workflow, kind string, payload map[string]interface{}, correlationID string) (string, error) {
	if !e.allowFire(wf) {
		return "", errors.Errorf("workflow %s is cooling down", wf.ID)
	}
	id, err := e.accept(wf, kind, payload, correlationID)
	if err != nil {
		e.logger.Errorf("Skipping workflow %s for %s trigger: %v", wf.ID, kind, err)
		return "", err
	}
	return id, nil
}

// accept validates the workflow, creates a PENDING execution, and enqueues it
// for the worker pool. This is the pending -> running handoff point.
func (e *Engine) accept(wf models.Workflow, kind string, payload map[string]interface{}, correlationID string) (string, error) {
	if err := ValidateWorkflow(wf); err != nil {
		return "", err
	}
	exec := models.Execution{
		ID:            uuid.NewString(),
		WorkflowID:    wf.ID,
		Status:        models.PendingExecutionStatus,
		TriggerKind:   kind,
		TriggerEvent:  models.JSONMap(payload),
		CorrelationID: correlationID,
		StartedAt:     time.Now(),
	}
	if err := e.store.CreateExecution(exec); err != nil {
		return "", errors.Wrap(err, "create execution")
	}
	e.queue <- dispatchJob{workflow: wf, execution: exec}
	e.logger.Infof("Accepted %s trigger for workflow %s as execution %s", kind, wf.ID, exec.ID)
	return exec.ID, nil
}

// allowFire enforces the trigger's cooldown window.
func (e *Engine) allowFire(wf models.Workflow) bool {
	if wf.Trigger.CooldownSec <= 0 {
		return true
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	last, ok := e.lastFiredAt[wf.ID]
	if ok && time.Since(last) < time.Duration(wf.Trigger.CooldownSec)*time.Second {
		return false
	}
	e.lastFiredAt[wf.ID] = time.Now()
	return true
}

// MatchesEvent reports whether a trigger spec subscribes to the event name,
// exactly or via a wildcard suffix.
func MatchesEvent(spec models.TriggerSpec, name string) bool {
	for _, sub := range spec.Events {
		if sub == name {
			return true
		}
		if strings.HasSuffix(sub, ".*") && strings.HasPrefix(name, strings.TrimSuffix(sub, "*")) {
			return true
		}
	}
	return false
}

// GetExecutionStatus returns the execution with its log populated.
func (e *Engine) GetExecutionStatus(executionID string) (models.Execution, error) {
	exec, err := e.store.GetExecution(executionID)
	if err != nil {
		return models.Execution{}, err
	}
	if exec.Log == nil {
		exec.Log, _ = e.store.GetLog(executionID)
	}
	return exec, nil
}

// CancelExecution requests cooperative cancellation. The executor observes
// the flag before its next node step; a step in flight runs to completion.
// Cancelling an already-terminal execution is a no-op.
func (e *Engine) CancelExecution(executionID string) error {
	exec, err := e.store.GetExecution(executionID)
	if err != nil {
		return err
	}
	if exec.Status.Terminal() {
		return nil
	}
	if err := e.store.RequestCancellation(executionID); err != nil {
		return err
	}
	e.logger.Infof("Cancellation requested for execution %s", executionID)
	return nil
}
