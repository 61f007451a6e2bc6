package engine

import "sync"

// ExecutionContext is the per-run scratch space: the trigger payload, node
// outputs keyed by node id, and the visited set used as the cycle guard. It is
// owned by a single execution and discarded when the run reaches a terminal
// state. Fan-out branches share it, so access is synchronized.
type ExecutionContext struct {
	ExecutionID string
	WorkflowID  string
	TenantID    string
	Trigger     map[string]interface{}

	mu      sync.RWMutex
	outputs map[string]interface{}
	visited map[string]struct{}
}

func NewExecutionContext(executionID, workflowID, tenantID string, trigger map[string]interface{}) *ExecutionContext {
	return &ExecutionContext{
		ExecutionID: executionID,
		WorkflowID:  workflowID,
		TenantID:    tenantID,
		Trigger:     trigger,
		outputs:     map[string]interface{}{},
		visited:     map[string]struct{}{},
	}
}

// MarkVisited records the node id in the visited set. Returns false if the id
// was already present, which the executor treats as a detected cycle.
func (c *ExecutionContext) MarkVisited(nodeID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, seen := c.visited[nodeID]; seen {
		return false
	}
	c.visited[nodeID] = struct{}{}
	return true
}

// SetOutput stores a node's output, making it visible to later nodes.
func (c *ExecutionContext) SetOutput(nodeID string, output interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outputs[nodeID] = output
}

// Output returns a prior node's output.
func (c *ExecutionContext) Output(nodeID string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out, ok := c.outputs[nodeID]
	return out, ok
}

// Lookup resolves a dot/bracket path against the context namespace:
// "trigger.<...>" addresses the trigger payload, "nodes.<id>.<...>" addresses
// prior node outputs. A missing path resolves to (nil, false).
func (c *ExecutionContext) Lookup(path string) (interface{}, bool) {
	c.mu.RLock()
	nodes := make(map[string]interface{}, len(c.outputs))
	for k, v := range c.outputs {
		nodes[k] = v
	}
	c.mu.RUnlock()

	root := map[string]interface{}{
		"trigger": mapAsAny(c.Trigger),
		"nodes":   nodes,
	}
	return LookupPath(root, path)
}

func mapAsAny(m map[string]interface{}) interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}
