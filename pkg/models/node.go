package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// NodeKind enumerates the graph vertex behaviors.
type NodeKind string

const (
	TriggerNode   NodeKind = "trigger"   // Entry point; exactly one per workflow
	ActionNode    NodeKind = "action"    // Invokes a named primitive
	ConditionNode NodeKind = "condition" // Branches on a condition expression
	DelayNode     NodeKind = "delay"     // Suspends the run for a duration
	TerminalNode  NodeKind = "terminal"  // Completes the run; no outgoing edges
)

// Graph is the node arena plus edge list stored on a Workflow.
//
// Edge semantics:
// - condition nodes select the outgoing edge whose label matches the evaluated
//   result ("true"/"false" or a named case)
// - any other node with multiple outgoing edges fans out, one concurrent
//   branch per edge, and the run joins before completing
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Node is a single graph vertex. Which fields are meaningful depends on Kind.
type Node struct {
	ID        string             `json:"id"`
	Kind      NodeKind           `json:"kind"`
	Primitive string             `json:"primitive,omitempty"` // action: primitive name
	Input     map[string]Mapping `json:"input,omitempty"`     // action: declarative input mapping
	Condition *Condition         `json:"condition,omitempty"` // condition: branch expression
	DelayMS   int64              `json:"delay_ms,omitempty"`  // delay: suspension duration
	Retry     *RetryPolicy       `json:"retry,omitempty"`     // action: overrides the primitive's policy
}

// Edge is a directed connection between two nodes. Label is only meaningful on
// edges leaving a condition node.
type Edge struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Label string `json:"label,omitempty"`
}

// Mapping is one declarative input field: a literal, a context path reference,
// or a simple two-operand expression over path references.
type Mapping struct {
	Kind  string      `json:"kind"`            // "literal" | "path" | "expr"
	Value interface{} `json:"value,omitempty"` // literal: passed through unchanged
	Path  string      `json:"path,omitempty"`  // path: dot/bracket accessor
	Left  string      `json:"left,omitempty"`  // expr: first operand path
	Right string      `json:"right,omitempty"` // expr: second operand path
	Op    string      `json:"op,omitempty"`    // expr: add|sub|mul|div|concat
}

// Condition is a tagged boolean expression evaluated against the execution
// context. Comparison ops take Path and either Value or ValuePath; logical ops
// take Conds; "exists" takes Path only.
type Condition struct {
	Op        string      `json:"op"`
	Path      string      `json:"path,omitempty"`
	Value     interface{} `json:"value,omitempty"`
	ValuePath string      `json:"value_path,omitempty"`
	Conds     []Condition `json:"conds,omitempty"`
}

func (g Graph) Value() (driver.Value, error) {
	return json.Marshal(g)
}

func (g *Graph) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, g)
	case string:
		return json.Unmarshal([]byte(v), g)
	case nil:
		*g = Graph{}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Graph", src)
	}
}

// NodeByID returns the node arena indexed by identifier.
func (g Graph) NodeByID() map[string]Node {
	m := make(map[string]Node, len(g.Nodes))
	for _, n := range g.Nodes {
		m[n.ID] = n
	}
	return m
}

// Outgoing returns the edge list grouped by source node, in declaration order.
func (g Graph) Outgoing() map[string][]Edge {
	m := make(map[string][]Edge)
	for _, e := range g.Edges {
		m[e.From] = append(m[e.From], e)
	}
	return m
}

// StartNode returns the trigger node, or false if the graph has none.
func (g Graph) StartNode() (Node, bool) {
	for _, n := range g.Nodes {
		if n.Kind == TriggerNode {
			return n, true
		}
	}
	return Node{}, false
}
