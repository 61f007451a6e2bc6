package engine

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/avenca/flowline/pkg/models"
	"github.com/avenca/flowline/pkg/storage"
	"github.com/pkg/errors"
)

// errRunCancelled is the sentinel a step returns when the cooperative
// cancellation flag is observed between node steps.
var errRunCancelled = errors.New("execution cancelled")

// Executor walks a workflow's node graph for one execution, driving the
// status state machine PENDING -> RUNNING -> COMPLETED | FAILED | CANCELLED.
// Within a run, steps execute sequentially except for explicit fan-out, which
// runs branches concurrently and joins before the run can complete.
type Executor struct {
	store   storage.Store
	adapter *PrimitiveAdapter
	logger  Logger
}

func NewExecutor(store storage.Store, adapter *PrimitiveAdapter, logger Logger) *Executor {
	return &Executor{
		store:   store,
		adapter: adapter,
		logger:  logger,
	}
}

// runState is shared by all branches of one execution.
type runState struct {
	wf       models.Workflow
	execID   string
	ectx     *ExecutionContext
	nodeByID map[string]models.Node
	outgoing map[string][]models.Edge

	finishOnce sync.Once
}

// Run executes one accepted, validated execution to a terminal status. It
// never returns an error to the dispatcher: failures are recorded on the
// execution and observed by polling its status.
func (ex *Executor) Run(ctx context.Context, wf models.Workflow, exec models.Execution) {
	st := &runState{
		wf:       wf,
		execID:   exec.ID,
		ectx:     NewExecutionContext(exec.ID, wf.ID, wf.TenantID, exec.TriggerEvent),
		nodeByID: wf.Graph.NodeByID(),
		outgoing: wf.Graph.Outgoing(),
	}

	if err := ex.store.UpdateExecutionStatus(exec.ID, models.RunningExecutionStatus, ""); err != nil {
		ex.logger.Errorf("Failed to set execution %s to RUNNING: %v", exec.ID, err)
		return
	}

	start, ok := wf.Graph.StartNode()
	if !ok {
		// Dispatch validates this; guard against a definition changing underneath.
		ex.finish(st, definitionErrorf("workflow %s has no trigger node", wf.ID))
		return
	}

	err := ex.step(ctx, st, start.ID)
	ex.finish(st, err)
}

// finish records the terminal status. The first terminal transition wins;
// late branch outcomes cannot change it.
func (ex *Executor) finish(st *runState, err error) {
	st.finishOnce.Do(func() {
		status := models.CompletedExecutionStatus
		errMsg := ""
		switch {
		case err == nil:
		case errors.Is(err, errRunCancelled):
			status = models.CancelledExecutionStatus
		default:
			status = models.FailedExecutionStatus
			errMsg = err.Error()
		}
		if updateErr := ex.store.UpdateExecutionStatus(st.execID, status, errMsg); updateErr != nil {
			ex.logger.Errorf("Failed to set execution %s to %s: %v", st.execID, status, updateErr)
			return
		}
		ex.logger.Infof("Execution %s finished with status %s", st.execID, status)
	})
}

// step runs one node and advances along its outgoing edges.
func (ex *Executor) step(ctx context.Context, st *runState, nodeID string) error {
	if ex.cancelRequested(ctx, st) {
		return errRunCancelled
	}

	n, ok := st.nodeByID[nodeID]
	if !ok {
		return definitionErrorf("unknown node: %s", nodeID)
	}

	// Cycle guard: graphs are DAGs by contract, so a revisit means a
	// malformed definition or a branch loop bug.
	if !st.ectx.MarkVisited(nodeID) {
		return definitionErrorf("cycle detected: node %s visited twice in one run", nodeID)
	}

	switch n.Kind {
	case models.TriggerNode:
		// Entry point only; produces no log entry.
		return ex.advance(ctx, st, n)
	case models.ActionNode:
		return ex.stepAction(ctx, st, n)
	case models.ConditionNode:
		return ex.stepCondition(ctx, st, n)
	case models.DelayNode:
		return ex.stepDelay(ctx, st, n)
	case models.TerminalNode:
		ex.appendLog(st, models.LogEntry{
			NodeID:    n.ID,
			StartedAt: time.Now(),
		})
		return nil
	default:
		return definitionErrorf("node %s has unsupported kind: %q", n.ID, n.Kind)
	}
}

func (ex *Executor) stepAction(ctx context.Context, st *runState, n models.Node) error {
	started := time.Now()
	entry := models.LogEntry{NodeID: n.ID, StartedAt: started}

	input, err := ResolveAll(n.Input, st.ectx)
	if err != nil {
		ex.appendLog(st, finishEntry(entry, nil, err, 0))
		return err
	}
	entry.Input = models.JSONMap(input)

	meta := RunMeta{
		ExecutionID: st.execID,
		WorkflowID:  st.wf.ID,
		TenantID:    st.wf.TenantID,
		NodeID:      n.ID,
	}
	output, attempts, err := ex.adapter.Execute(ctx, n.Primitive, input, meta, n.Retry)
	ex.appendLog(st, finishEntry(entry, output, err, attempts))
	if err != nil {
		return err
	}

	st.ectx.SetOutput(n.ID, output)
	return ex.advance(ctx, st, n)
}

func (ex *Executor) stepCondition(ctx context.Context, st *runState, n models.Node) error {
	entry := models.LogEntry{NodeID: n.ID, StartedAt: time.Now()}

	result, err := Evaluate(*n.Condition, st.ectx)
	if err != nil {
		ex.appendLog(st, finishEntry(entry, nil, err, 0))
		return err
	}

	label := strconv.FormatBool(result)
	var next string
	for _, e := range st.outgoing[n.ID] {
		if e.Label == label {
			next = e.To
			break
		}
	}
	if next == "" {
		err := definitionErrorf("condition node %s has no branch for result %q", n.ID, label)
		ex.appendLog(st, finishEntry(entry, result, err, 0))
		return err
	}

	ex.appendLog(st, finishEntry(entry, result, nil, 0))
	return ex.step(ctx, st, next)
}

func (ex *Executor) stepDelay(ctx context.Context, st *runState, n models.Node) error {
	entry := models.LogEntry{NodeID: n.ID, StartedAt: time.Now()}

	// The one scheduling-visible suspension point: the run yields here
	// without blocking other executions.
	timer := time.NewTimer(time.Duration(n.DelayMS) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		err := ctx.Err()
		ex.appendLog(st, finishEntry(entry, nil, err, 0))
		return errRunCancelled
	}

	ex.appendLog(st, finishEntry(entry, nil, nil, 0))
	return ex.advance(ctx, st, n)
}

// advance follows a node's outgoing edges. A single edge continues
// sequentially; multiple edges fan out, one concurrent branch per edge, and
// join here. The first branch failure decides the run's outcome; remaining
// branches finish but cannot change the already-recorded status.
func (ex *Executor) advance(ctx context.Context, st *runState, n models.Node) error {
	outs := st.outgoing[n.ID]
	if len(outs) == 0 {
		// Validation permits this only on terminal nodes.
		return definitionErrorf("node %s has no outgoing edges", n.ID)
	}
	if len(outs) == 1 {
		return ex.step(ctx, st, outs[0].To)
	}

	errCh := make(chan error, len(outs))
	var wg sync.WaitGroup
	for _, e := range outs {
		wg.Add(1)
		go func(next string) {
			defer wg.Done()
			if err := ex.step(ctx, st, next); err != nil {
				// Record the failure now rather than after the join.
				ex.finish(st, err)
				errCh <- err
			}
		}(e.To)
	}
	wg.Wait()
	close(errCh)
	return <-errCh
}

// cancelRequested checks the cooperative cancellation flag between node
// steps; a step already in flight always runs to completion.
func (ex *Executor) cancelRequested(ctx context.Context, st *runState) bool {
	select {
	case <-ctx.Done():
		return true
	default:
	}
	requested, err := ex.store.CancelRequested(st.execID)
	if err != nil {
		ex.logger.Errorf("Failed to read cancellation flag for execution %s: %v", st.execID, err)
		return false
	}
	return requested
}

// appendLog writes one step entry. Log writes are unconditional, including on
// failure; a write error is logged and the run continues.
func (ex *Executor) appendLog(st *runState, entry models.LogEntry) {
	if entry.FinishedAt == nil {
		now := time.Now()
		entry.FinishedAt = &now
	}
	if err := ex.store.AppendLog(st.execID, entry); err != nil {
		ex.logger.Errorf("Failed to append log entry for execution %s node %s: %v", st.execID, entry.NodeID, err)
	}
}

func finishEntry(entry models.LogEntry, output interface{}, err error, attempts int) models.LogEntry {
	now := time.Now()
	entry.FinishedAt = &now
	entry.Attempts = attempts
	if err != nil {
		entry.ErrorMsg = err.Error()
		return entry
	}
	if output != nil {
		if raw, marshalErr := json.Marshal(output); marshalErr == nil {
			entry.Output = models.JSON(raw)
		}
	}
	return entry
}
