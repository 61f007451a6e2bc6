package models_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/avenca/flowline/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicy(t *testing.T) {
	var nilPolicy *models.RetryPolicy
	assert.Equal(t, 1, nilPolicy.Attempts())
	assert.Equal(t, 100*time.Millisecond, nilPolicy.Backoff())

	zero := &models.RetryPolicy{}
	assert.Equal(t, 1, zero.Attempts())

	p := &models.RetryPolicy{MaxAttempts: 3, BackoffMS: 250}
	assert.Equal(t, 3, p.Attempts())
	assert.Equal(t, 250*time.Millisecond, p.Backoff())
}

func TestExecutionStatusTerminal(t *testing.T) {
	assert.False(t, models.PendingExecutionStatus.Terminal())
	assert.False(t, models.RunningExecutionStatus.Terminal())
	assert.True(t, models.CompletedExecutionStatus.Terminal())
	assert.True(t, models.FailedExecutionStatus.Terminal())
	assert.True(t, models.CancelledExecutionStatus.Terminal())
}

func TestGraphHelpers(t *testing.T) {
	g := models.Graph{
		Nodes: []models.Node{
			{ID: "start", Kind: models.TriggerNode},
			{ID: "a", Kind: models.ActionNode, Primitive: "noop"},
			{ID: "done", Kind: models.TerminalNode},
		},
		Edges: []models.Edge{
			{From: "start", To: "a"},
			{From: "a", To: "done"},
			{From: "start", To: "done"},
		},
	}

	byID := g.NodeByID()
	assert.Len(t, byID, 3)
	assert.Equal(t, models.ActionNode, byID["a"].Kind)

	outgoing := g.Outgoing()
	// Declaration order is preserved per source node.
	require.Len(t, outgoing["start"], 2)
	assert.Equal(t, "a", outgoing["start"][0].To)
	assert.Equal(t, "done", outgoing["start"][1].To)
	assert.Empty(t, outgoing["done"])

	start, ok := g.StartNode()
	assert.True(t, ok)
	assert.Equal(t, "start", start.ID)

	_, ok = models.Graph{Nodes: []models.Node{{ID: "a", Kind: models.ActionNode}}}.StartNode()
	assert.False(t, ok)
}

func TestGraphScanRoundTrip(t *testing.T) {
	g := models.Graph{
		Nodes: []models.Node{
			{ID: "start", Kind: models.TriggerNode},
			{ID: "check", Kind: models.ConditionNode, Condition: &models.Condition{Op: "gt", Path: "trigger.amount", Value: 100.0}},
			{ID: "done", Kind: models.TerminalNode},
		},
		Edges: []models.Edge{
			{From: "start", To: "check"},
			{From: "check", To: "done", Label: "true"},
		},
	}

	v, err := g.Value()
	require.NoError(t, err)

	var scanned models.Graph
	require.NoError(t, scanned.Scan(v))
	assert.Equal(t, g, scanned)

	var fromNil models.Graph
	require.NoError(t, fromNil.Scan(nil))
	assert.Empty(t, fromNil.Nodes)

	assert.Error(t, scanned.Scan(42))
}

func TestTriggerSpecScan(t *testing.T) {
	spec := models.TriggerSpec{
		Events:      []string{"order.created", "order.*"},
		WebhookSlug: "order-intake",
		Schedule:    "*/5 * * * *",
		CooldownSec: 30,
	}

	v, err := spec.Value()
	require.NoError(t, err)

	var scanned models.TriggerSpec
	require.NoError(t, scanned.Scan(v))
	assert.Equal(t, spec, scanned)
}

func TestJSONMapScan(t *testing.T) {
	var m models.JSONMap
	require.NoError(t, m.Scan([]byte(`{"amount": 150, "status": "paid"}`)))
	assert.Equal(t, "paid", m["status"])

	raw, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"status":"paid"`)
}
