package engine

import (
	"strings"

	"github.com/avenca/flowline/pkg/models"
)

// ValidateWorkflow checks a definition statically, before any node runs:
// exactly one trigger node, unique node ids, edges referencing known nodes,
// terminal nodes as the only leaves, distinguishable labels on condition
// branches, supported operators throughout, full reachability, and no cycles.
// A workflow failing any check is rejected at dispatch time.
func ValidateWorkflow(wf models.Workflow) error {
	g := wf.Graph
	if len(g.Nodes) == 0 {
		return definitionErrorf("workflow %s has no nodes", wf.ID)
	}

	nodeByID := map[string]models.Node{}
	triggers := 0
	for _, n := range g.Nodes {
		if strings.TrimSpace(n.ID) == "" {
			return definitionErrorf("workflow %s has a node without an id", wf.ID)
		}
		if _, dup := nodeByID[n.ID]; dup {
			return definitionErrorf("duplicate node id: %s", n.ID)
		}
		nodeByID[n.ID] = n
		if err := validateNode(n); err != nil {
			return err
		}
		if n.Kind == models.TriggerNode {
			triggers++
		}
	}
	if triggers != 1 {
		return definitionErrorf("workflow %s must have exactly one trigger node, found %d", wf.ID, triggers)
	}

	for _, e := range g.Edges {
		if _, ok := nodeByID[e.From]; !ok {
			return definitionErrorf("edge references unknown node: %s", e.From)
		}
		if _, ok := nodeByID[e.To]; !ok {
			return definitionErrorf("edge references unknown node: %s", e.To)
		}
		if e.From == e.To {
			return definitionErrorf("self edge on node: %s", e.From)
		}
		if e.Label != "" && nodeByID[e.From].Kind != models.ConditionNode {
			return definitionErrorf("labeled edge leaving non-condition node: %s", e.From)
		}
	}

	outgoing := g.Outgoing()
	for _, n := range g.Nodes {
		outs := outgoing[n.ID]
		switch n.Kind {
		case models.TerminalNode:
			if len(outs) != 0 {
				return definitionErrorf("terminal node %s has outgoing edges", n.ID)
			}
		case models.ConditionNode:
			if err := validateConditionEdges(n.ID, outs); err != nil {
				return err
			}
		default:
			if len(outs) == 0 {
				return definitionErrorf("node %s is a dead end; only terminal nodes may have no outgoing edges", n.ID)
			}
		}
	}

	start, _ := g.StartNode()
	if err := validateReachable(start.ID, nodeByID, outgoing); err != nil {
		return err
	}
	return validateAcyclic(start.ID, outgoing)
}

func validateNode(n models.Node) error {
	switch n.Kind {
	case models.TriggerNode, models.TerminalNode:
		return nil
	case models.ActionNode:
		if strings.TrimSpace(n.Primitive) == "" {
			return definitionErrorf("action node %s names no primitive", n.ID)
		}
		for field, m := range n.Input {
			if err := validateMapping(m); err != nil {
				return definitionErrorf("action node %s input field %q: %v", n.ID, field, err)
			}
		}
		return nil
	case models.ConditionNode:
		if n.Condition == nil {
			return definitionErrorf("condition node %s has no condition", n.ID)
		}
		return validateCondition(n.ID, *n.Condition)
	case models.DelayNode:
		if n.DelayMS < 0 {
			return definitionErrorf("delay node %s has a negative duration", n.ID)
		}
		return nil
	default:
		return definitionErrorf("node %s has unsupported kind: %q", n.ID, n.Kind)
	}
}

func validateCondition(nodeID string, c models.Condition) error {
	op := strings.ToLower(strings.TrimSpace(c.Op))
	switch {
	case op == OpAnd || op == OpOr:
		if len(c.Conds) == 0 {
			return definitionErrorf("condition node %s: operator %q has no sub-conditions", nodeID, op)
		}
		for _, sub := range c.Conds {
			if err := validateCondition(nodeID, sub); err != nil {
				return err
			}
		}
		return nil
	case op == OpNot:
		if len(c.Conds) != 1 {
			return definitionErrorf("condition node %s: operator %q requires exactly one sub-condition", nodeID, OpNot)
		}
		return validateCondition(nodeID, c.Conds[0])
	case op == OpExists:
		if strings.TrimSpace(c.Path) == "" {
			return definitionErrorf("condition node %s: %q requires a path", nodeID, OpExists)
		}
		return nil
	case comparisonOp(op):
		if strings.TrimSpace(c.Path) == "" {
			return definitionErrorf("condition node %s: operator %q requires a path", nodeID, op)
		}
		return nil
	default:
		return definitionErrorf("condition node %s: unsupported operator %q", nodeID, c.Op)
	}
}

func validateConditionEdges(nodeID string, outs []models.Edge) error {
	if len(outs) < 2 {
		return definitionErrorf("condition node %s needs at least two outgoing edges", nodeID)
	}
	labels := map[string]struct{}{}
	for _, e := range outs {
		label := strings.TrimSpace(e.Label)
		if label == "" {
			return definitionErrorf("condition node %s has an unlabeled outgoing edge", nodeID)
		}
		if _, dup := labels[label]; dup {
			return definitionErrorf("condition node %s has duplicate edge label %q", nodeID, label)
		}
		labels[label] = struct{}{}
	}
	return nil
}

func validateMapping(m models.Mapping) error {
	switch strings.ToLower(strings.TrimSpace(m.Kind)) {
	case MappingLiteral:
		return nil
	case MappingPath:
		if strings.TrimSpace(m.Path) == "" {
			return definitionErrorf("path mapping without a path")
		}
		return nil
	case MappingExpr:
		switch strings.ToLower(strings.TrimSpace(m.Op)) {
		case ExprAdd, ExprSub, ExprMul, ExprDiv, ExprConcat:
			return nil
		default:
			return definitionErrorf("unsupported expression operator: %q", m.Op)
		}
	default:
		return definitionErrorf("unsupported mapping kind: %q", m.Kind)
	}
}

func validateReachable(startID string, nodeByID map[string]models.Node, outgoing map[string][]models.Edge) error {
	reachable := map[string]struct{}{}
	var visit func(id string)
	visit = func(id string) {
		if _, seen := reachable[id]; seen {
			return
		}
		reachable[id] = struct{}{}
		for _, e := range outgoing[id] {
			visit(e.To)
		}
	}
	visit(startID)
	for id := range nodeByID {
		if _, ok := reachable[id]; !ok {
			return definitionErrorf("node %s is not reachable from the trigger", id)
		}
	}
	return nil
}

func validateAcyclic(startID string, outgoing map[string][]models.Edge) error {
	const (
		white = 0 // unvisited
		gray  = 1 // on the current DFS path
		black = 2 // fully explored
	)
	color := map[string]int{}
	var visit func(id string) error
	visit = func(id string) error {
		color[id] = gray
		for _, e := range outgoing[id] {
			switch color[e.To] {
			case gray:
				return definitionErrorf("cycle detected through node %s", e.To)
			case white:
				if err := visit(e.To); err != nil {
					return err
				}
			}
		}
		color[id] = black
		return nil
	}
	return visit(startID)
}
