package engine_test

import (
	"testing"

	"github.com/avenca/flowline/pkg/engine"
	"github.com/avenca/flowline/pkg/models"
	"github.com/stretchr/testify/assert"
)

func validWorkflow() models.Workflow {
	return models.Workflow{
		ID:      "wf-1",
		Name:    "wf-1",
		Enabled: true,
		Trigger: models.TriggerSpec{Manual: true},
		Graph: models.Graph{
			Nodes: []models.Node{
				{ID: "start", Kind: models.TriggerNode},
				{ID: "check", Kind: models.ConditionNode, Condition: &models.Condition{Op: "gt", Path: "trigger.amount", Value: 100}},
				{ID: "discount", Kind: models.ActionNode, Primitive: "discount.apply", Input: map[string]models.Mapping{
					"amount": {Kind: "path", Path: "trigger.amount"},
				}},
				{ID: "email", Kind: models.ActionNode, Primitive: "email.send"},
				{ID: "done", Kind: models.TerminalNode},
			},
			Edges: []models.Edge{
				{From: "start", To: "check"},
				{From: "check", To: "discount", Label: "true"},
				{From: "check", To: "email", Label: "false"},
				{From: "discount", To: "email"},
				{From: "email", To: "done"},
			},
		},
	}
}

func TestValidateWorkflow(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		assert.NoError(t, engine.ValidateWorkflow(validWorkflow()))
	})

	assertRejected := func(t *testing.T, wf models.Workflow, fragment string) {
		t.Helper()
		err := engine.ValidateWorkflow(wf)
		assert.Error(t, err)
		assert.True(t, engine.IsDefinitionError(err))
		assert.Contains(t, err.Error(), fragment)
	}

	t.Run("EmptyGraph", func(t *testing.T) {
		wf := validWorkflow()
		wf.Graph = models.Graph{}
		assertRejected(t, wf, "no nodes")
	})

	t.Run("DuplicateNodeID", func(t *testing.T) {
		wf := validWorkflow()
		wf.Graph.Nodes = append(wf.Graph.Nodes, models.Node{ID: "email", Kind: models.ActionNode, Primitive: "email.send"})
		assertRejected(t, wf, "duplicate node id")
	})

	t.Run("NoTrigger", func(t *testing.T) {
		wf := validWorkflow()
		wf.Graph.Nodes[0].Kind = models.ActionNode
		wf.Graph.Nodes[0].Primitive = "noop"
		assertRejected(t, wf, "exactly one trigger")
	})

	t.Run("TwoTriggers", func(t *testing.T) {
		wf := validWorkflow()
		wf.Graph.Nodes = append(wf.Graph.Nodes, models.Node{ID: "start2", Kind: models.TriggerNode})
		wf.Graph.Edges = append(wf.Graph.Edges, models.Edge{From: "start2", To: "check"})
		assertRejected(t, wf, "exactly one trigger")
	})

	t.Run("EdgeToUnknownNode", func(t *testing.T) {
		wf := validWorkflow()
		wf.Graph.Edges = append(wf.Graph.Edges, models.Edge{From: "email", To: "ghost"})
		assertRejected(t, wf, "unknown node")
	})

	t.Run("SelfEdge", func(t *testing.T) {
		wf := validWorkflow()
		wf.Graph.Edges = append(wf.Graph.Edges, models.Edge{From: "email", To: "email"})
		assertRejected(t, wf, "self edge")
	})

	t.Run("LabeledEdgeFromNonCondition", func(t *testing.T) {
		wf := validWorkflow()
		wf.Graph.Edges[3].Label = "true"
		assertRejected(t, wf, "labeled edge")
	})

	t.Run("TerminalWithOutgoingEdge", func(t *testing.T) {
		wf := validWorkflow()
		wf.Graph.Nodes = append(wf.Graph.Nodes, models.Node{ID: "extra", Kind: models.TerminalNode})
		wf.Graph.Edges = append(wf.Graph.Edges,
			models.Edge{From: "done", To: "extra"})
		assertRejected(t, wf, "terminal node")
	})

	t.Run("DeadEndNonTerminal", func(t *testing.T) {
		wf := validWorkflow()
		// Drop email's outgoing edge so a non-terminal node becomes a leaf.
		wf.Graph.Edges = wf.Graph.Edges[:4]
		assertRejected(t, wf, "dead end")
	})

	t.Run("ActionWithoutPrimitive", func(t *testing.T) {
		wf := validWorkflow()
		wf.Graph.Nodes[3].Primitive = ""
		assertRejected(t, wf, "names no primitive")
	})

	t.Run("ActionWithBadMapping", func(t *testing.T) {
		wf := validWorkflow()
		wf.Graph.Nodes[2].Input = map[string]models.Mapping{
			"amount": {Kind: "template"},
		}
		assertRejected(t, wf, "unsupported mapping kind")
	})

	t.Run("ConditionWithoutExpression", func(t *testing.T) {
		wf := validWorkflow()
		wf.Graph.Nodes[1].Condition = nil
		assertRejected(t, wf, "no condition")
	})

	t.Run("ConditionWithBadOperator", func(t *testing.T) {
		wf := validWorkflow()
		wf.Graph.Nodes[1].Condition = &models.Condition{Op: "matches", Path: "trigger.amount"}
		assertRejected(t, wf, "unsupported operator")
	})

	t.Run("ConditionWithUnlabeledEdge", func(t *testing.T) {
		wf := validWorkflow()
		wf.Graph.Edges[1].Label = ""
		assertRejected(t, wf, "unlabeled")
	})

	t.Run("ConditionWithDuplicateLabels", func(t *testing.T) {
		wf := validWorkflow()
		wf.Graph.Edges[2].Label = "true"
		assertRejected(t, wf, "duplicate edge label")
	})

	t.Run("ConditionWithSingleBranch", func(t *testing.T) {
		wf := validWorkflow()
		wf.Graph.Edges = append(wf.Graph.Edges[:2], wf.Graph.Edges[3:]...)
		assertRejected(t, wf, "at least two outgoing edges")
	})

	t.Run("NegativeDelay", func(t *testing.T) {
		wf := validWorkflow()
		wf.Graph.Nodes = append(wf.Graph.Nodes, models.Node{ID: "wait", Kind: models.DelayNode, DelayMS: -1})
		wf.Graph.Edges = append(wf.Graph.Edges, models.Edge{From: "email", To: "wait"}, models.Edge{From: "wait", To: "done"})
		assertRejected(t, wf, "negative duration")
	})

	t.Run("UnreachableNode", func(t *testing.T) {
		wf := validWorkflow()
		wf.Graph.Nodes = append(wf.Graph.Nodes,
			models.Node{ID: "island", Kind: models.ActionNode, Primitive: "noop"},
			models.Node{ID: "island-end", Kind: models.TerminalNode},
		)
		wf.Graph.Edges = append(wf.Graph.Edges, models.Edge{From: "island", To: "island-end"})
		assertRejected(t, wf, "not reachable")
	})

	t.Run("Cycle", func(t *testing.T) {
		wf := validWorkflow()
		wf.Graph.Edges = append(wf.Graph.Edges, models.Edge{From: "email", To: "discount"})
		assertRejected(t, wf, "cycle")
	})
}
