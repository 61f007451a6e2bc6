package engine_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/avenca/flowline/pkg/engine"
	"github.com/avenca/flowline/pkg/models"
	"github.com/avenca/flowline/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// singlePrimitiveWorkflow is a minimal trigger -> action -> terminal graph.
func singlePrimitiveWorkflow(id, primitive string, trigger models.TriggerSpec) models.Workflow {
	return models.Workflow{
		ID:      id,
		Name:    id,
		Enabled: true,
		Trigger: trigger,
		Graph: models.Graph{
			Nodes: []models.Node{
				{ID: "start", Kind: models.TriggerNode},
				{ID: "act", Kind: models.ActionNode, Primitive: primitive},
				{ID: "done", Kind: models.TerminalNode},
			},
			Edges: []models.Edge{
				{From: "start", To: "act"},
				{From: "act", To: "done"},
			},
		},
	}
}

func countingRegistry(t *testing.T, name string, calls *int64) *engine.Registry {
	t.Helper()
	registry := engine.NewRegistry()
	require.NoError(t, registry.Register(engine.PrimitiveDefinition{
		Name: name,
		Invoke: func(ctx context.Context, input map[string]interface{}, meta engine.RunMeta) (interface{}, error) {
			atomic.AddInt64(calls, 1)
			return map[string]interface{}{"ok": true}, nil
		},
	}))
	return registry
}

func TestEngineTriggerManually(t *testing.T) {
	t.Run("RunsToCompletion", func(t *testing.T) {
		store := storage.NewMockStore()
		var calls int64
		registry := countingRegistry(t, "noop", &calls)
		wf := singlePrimitiveWorkflow("wf-manual", "noop", models.TriggerSpec{Manual: true})
		require.NoError(t, store.SaveWorkflow(wf))

		eng := engine.NewEngine(context.Background(), store, registry, nopLogger{}, 1)
		execID, err := eng.TriggerManually(wf.ID, map[string]interface{}{"k": "v"})
		require.NoError(t, err)
		eng.Stop()

		assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
		exec, err := eng.GetExecutionStatus(execID)
		require.NoError(t, err)
		assert.Equal(t, models.CompletedExecutionStatus, exec.Status)
		assert.Equal(t, "manual", exec.TriggerKind)
		assert.Equal(t, models.JSONMap{"k": "v"}, exec.TriggerEvent)
		assert.NotEmpty(t, exec.Log)
	})

	t.Run("UnknownWorkflow", func(t *testing.T) {
		store := storage.NewMockStore()
		eng := engine.NewEngine(context.Background(), store, engine.NewRegistry(), nopLogger{}, 1)
		defer eng.Stop()
		_, err := eng.TriggerManually("ghost", nil)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("DisabledWorkflow", func(t *testing.T) {
		store := storage.NewMockStore()
		var calls int64
		registry := countingRegistry(t, "noop", &calls)
		wf := singlePrimitiveWorkflow("wf-off", "noop", models.TriggerSpec{Manual: true})
		wf.Enabled = false
		require.NoError(t, store.SaveWorkflow(wf))

		eng := engine.NewEngine(context.Background(), store, registry, nopLogger{}, 1)
		defer eng.Stop()
		_, err := eng.TriggerManually(wf.ID, nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "disabled")
	})

	t.Run("MalformedWorkflowRejectedBeforeAnyNodeRuns", func(t *testing.T) {
		store := storage.NewMockStore()
		var calls int64
		registry := countingRegistry(t, "noop", &calls)
		wf := singlePrimitiveWorkflow("wf-bad", "noop", models.TriggerSpec{Manual: true})
		wf.Graph.Edges = append(wf.Graph.Edges, models.Edge{From: "act", To: "act"})
		require.NoError(t, store.SaveWorkflow(wf))

		eng := engine.NewEngine(context.Background(), store, registry, nopLogger{}, 1)
		defer eng.Stop()
		_, err := eng.TriggerManually(wf.ID, nil)
		assert.Error(t, err)
		assert.True(t, engine.IsDefinitionError(err))
		assert.Equal(t, int64(0), atomic.LoadInt64(&calls))
	})
}

func TestEngineTriggerByEvent(t *testing.T) {
	t.Run("WildcardAndExactMatchBothFire", func(t *testing.T) {
		store := storage.NewMockStore()
		var calls int64
		registry := countingRegistry(t, "noop", &calls)
		wildcard := singlePrimitiveWorkflow("wf-wildcard", "noop", models.TriggerSpec{Events: []string{"order.*"}})
		exact := singlePrimitiveWorkflow("wf-exact", "noop", models.TriggerSpec{Events: []string{"order.created"}})
		other := singlePrimitiveWorkflow("wf-user", "noop", models.TriggerSpec{Events: []string{"user.created"}})
		require.NoError(t, store.SaveWorkflow(wildcard))
		require.NoError(t, store.SaveWorkflow(exact))
		require.NoError(t, store.SaveWorkflow(other))

		eng := engine.NewEngine(context.Background(), store, registry, nopLogger{}, 2)
		ids := eng.Events().Order.Created(map[string]interface{}{"amount": 10})
		eng.Stop()

		// Two independent executions, one per subscriber.
		assert.Len(t, ids, 2)
		assert.NotEqual(t, ids[0], ids[1])
		assert.Equal(t, int64(2), atomic.LoadInt64(&calls))
		for _, id := range ids {
			exec, err := eng.GetExecutionStatus(id)
			require.NoError(t, err)
			assert.Equal(t, models.CompletedExecutionStatus, exec.Status)
			assert.Equal(t, "event", exec.TriggerKind)
			assert.NotEmpty(t, exec.CorrelationID)
		}
	})

	t.Run("DisabledWorkflowNotDispatched", func(t *testing.T) {
		store := storage.NewMockStore()
		var calls int64
		registry := countingRegistry(t, "noop", &calls)
		wf := singlePrimitiveWorkflow("wf-off", "noop", models.TriggerSpec{Events: []string{"order.created"}})
		wf.Enabled = false
		require.NoError(t, store.SaveWorkflow(wf))

		eng := engine.NewEngine(context.Background(), store, registry, nopLogger{}, 1)
		ids := eng.Events().Order.Created(nil)
		eng.Stop()
		assert.Empty(t, ids)
		assert.Equal(t, int64(0), atomic.LoadInt64(&calls))
	})

	t.Run("CooldownSuppressesRapidRefires", func(t *testing.T) {
		store := storage.NewMockStore()
		var calls int64
		registry := countingRegistry(t, "noop", &calls)
		wf := singlePrimitiveWorkflow("wf-cooling", "noop", models.TriggerSpec{
			Events:      []string{"order.created"},
			CooldownSec: 60,
		})
		require.NoError(t, store.SaveWorkflow(wf))

		eng := engine.NewEngine(context.Background(), store, registry, nopLogger{}, 1)
		first := eng.Events().Order.Created(nil)
		second := eng.Events().Order.Created(nil)
		eng.Stop()

		assert.Len(t, first, 1)
		assert.Empty(t, second)
		assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
	})
}

func TestEngineTriggerByWebhook(t *testing.T) {
	store := storage.NewMockStore()
	var calls int64
	registry := countingRegistry(t, "noop", &calls)
	wf := singlePrimitiveWorkflow("wf-hook", "noop", models.TriggerSpec{WebhookSlug: "order-intake"})
	require.NoError(t, store.SaveWorkflow(wf))

	eng := engine.NewEngine(context.Background(), store, registry, nopLogger{}, 1)
	ids, err := eng.TriggerByWebhook("order-intake", map[string]interface{}{"source": "shop"})
	require.NoError(t, err)
	missed, err := eng.TriggerByWebhook("unknown-slug", nil)
	require.NoError(t, err)
	eng.Stop()

	assert.Len(t, ids, 1)
	assert.Empty(t, missed)
	exec, err := eng.GetExecutionStatus(ids[0])
	require.NoError(t, err)
	assert.Equal(t, models.CompletedExecutionStatus, exec.Status)
	assert.Equal(t, "webhook", exec.TriggerKind)
}

func TestEngineCancelExecution(t *testing.T) {
	t.Run("TerminalIsNoOp", func(t *testing.T) {
		store := storage.NewMockStore()
		var calls int64
		registry := countingRegistry(t, "noop", &calls)
		wf := singlePrimitiveWorkflow("wf-done", "noop", models.TriggerSpec{Manual: true})
		require.NoError(t, store.SaveWorkflow(wf))

		eng := engine.NewEngine(context.Background(), store, registry, nopLogger{}, 1)
		execID, err := eng.TriggerManually(wf.ID, nil)
		require.NoError(t, err)
		eng.Stop()

		require.NoError(t, eng.CancelExecution(execID))
		exec, err := eng.GetExecutionStatus(execID)
		require.NoError(t, err)
		assert.Equal(t, models.CompletedExecutionStatus, exec.Status)
		assert.False(t, exec.CancelRequested)
	})

	t.Run("UnknownExecution", func(t *testing.T) {
		store := storage.NewMockStore()
		eng := engine.NewEngine(context.Background(), store, engine.NewRegistry(), nopLogger{}, 1)
		defer eng.Stop()
		assert.ErrorIs(t, eng.CancelExecution("ghost"), storage.ErrNotFound)
	})

	t.Run("InFlightRunIsCancelled", func(t *testing.T) {
		store := storage.NewMockStore()
		registry := engine.NewRegistry()
		entered := make(chan struct{})
		release := make(chan struct{})
		require.NoError(t, registry.Register(engine.PrimitiveDefinition{
			Name: "blocking",
			Invoke: func(ctx context.Context, input map[string]interface{}, meta engine.RunMeta) (interface{}, error) {
				close(entered)
				<-release
				return nil, nil
			},
		}))
		require.NoError(t, registry.Register(engine.PrimitiveDefinition{Name: "after", Invoke: noopInvoke}))

		wf := models.Workflow{
			ID:      "wf-cancel",
			Enabled: true,
			Trigger: models.TriggerSpec{Manual: true},
			Graph: models.Graph{
				Nodes: []models.Node{
					{ID: "start", Kind: models.TriggerNode},
					{ID: "block", Kind: models.ActionNode, Primitive: "blocking"},
					{ID: "next", Kind: models.ActionNode, Primitive: "after"},
					{ID: "done", Kind: models.TerminalNode},
				},
				Edges: []models.Edge{
					{From: "start", To: "block"},
					{From: "block", To: "next"},
					{From: "next", To: "done"},
				},
			},
		}
		require.NoError(t, store.SaveWorkflow(wf))

		eng := engine.NewEngine(context.Background(), store, registry, nopLogger{}, 1)
		execID, err := eng.TriggerManually(wf.ID, nil)
		require.NoError(t, err)

		<-entered
		require.NoError(t, eng.CancelExecution(execID))
		close(release)
		eng.Stop()

		exec, err := eng.GetExecutionStatus(execID)
		require.NoError(t, err)
		assert.Equal(t, models.CancelledExecutionStatus, exec.Status)
	})
}

func TestMatchesEvent(t *testing.T) {
	tests := []struct {
		name   string
		events []string
		event  string
		want   bool
	}{
		{"Exact", []string{"order.created"}, "order.created", true},
		{"ExactMiss", []string{"order.created"}, "order.updated", false},
		{"Wildcard", []string{"order.*"}, "order.created", true},
		{"WildcardDeep", []string{"order.*"}, "order.item.added", true},
		{"WildcardOtherDomain", []string{"order.*"}, "user.created", false},
		{"WildcardNeedsDot", []string{"order.*"}, "orders.created", false},
		{"MultipleSubscriptions", []string{"user.created", "order.*"}, "order.refunded", true},
		{"NoSubscriptions", nil, "order.created", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := models.TriggerSpec{Events: tt.events}
			assert.Equal(t, tt.want, engine.MatchesEvent(spec, tt.event))
		})
	}
}

func TestEngineStopDrainsQueue(t *testing.T) {
	store := storage.NewMockStore()
	registry := engine.NewRegistry()
	var calls int64
	require.NoError(t, registry.Register(engine.PrimitiveDefinition{
		Name: "slowish",
		Invoke: func(ctx context.Context, input map[string]interface{}, meta engine.RunMeta) (interface{}, error) {
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt64(&calls, 1)
			return nil, nil
		},
	}))
	wf := singlePrimitiveWorkflow("wf-drain", "slowish", models.TriggerSpec{Manual: true})
	require.NoError(t, store.SaveWorkflow(wf))

	eng := engine.NewEngine(context.Background(), store, registry, nopLogger{}, 2)
	var ids []string
	for i := 0; i < 5; i++ {
		id, err := eng.TriggerManually(wf.ID, nil)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	eng.Stop()

	assert.Equal(t, int64(5), atomic.LoadInt64(&calls))
	for _, id := range ids {
		exec, err := eng.GetExecutionStatus(id)
		require.NoError(t, err)
		assert.Equal(t, models.CompletedExecutionStatus, exec.Status)
	}
}
