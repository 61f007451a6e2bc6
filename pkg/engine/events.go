package engine

import (
	"time"

	"github.com/avenca/flowline/pkg/models"
	"github.com/google/uuid"
)

// Emit notifies the engine of a domain occurrence. It is fire-and-continue:
// it returns once matching executions have been handed to the work queue, not
// when they complete. Callers needing results poll GetExecutionStatus with
// the returned ids. Dispatch errors are logged, never surfaced to emitters.
func (e *Engine) Emit(name string, payload map[string]interface{}) []string {
	ids, err := e.TriggerByEvent(models.Event{
		Name:          name,
		Payload:       payload,
		CorrelationID: uuid.NewString(),
		OccurredAt:    time.Now(),
	})
	if err != nil {
		e.logger.Errorf("Failed to dispatch event %s: %v", name, err)
		return nil
	}
	return ids
}

// Events returns the typed event surface, sugar over Emit with the platform's
// event names.
func (e *Engine) Events() Events {
	return Events{
		Order:   OrderEvents{engine: e},
		User:    UserEvents{engine: e},
		Content: ContentEvents{engine: e},
	}
}

// Events groups the typed emit wrappers by domain.
type Events struct {
	Order   OrderEvents
	User    UserEvents
	Content ContentEvents
}

type OrderEvents struct {
	engine *Engine
}

func (o OrderEvents) Created(order map[string]interface{}) []string {
	return o.engine.Emit("order.created", order)
}

func (o OrderEvents) Updated(order map[string]interface{}) []string {
	return o.engine.Emit("order.updated", order)
}

func (o OrderEvents) Refunded(order map[string]interface{}) []string {
	return o.engine.Emit("order.refunded", order)
}

type UserEvents struct {
	engine *Engine
}

func (u UserEvents) Created(user map[string]interface{}) []string {
	return u.engine.Emit("user.created", user)
}

func (u UserEvents) Subscribed(user map[string]interface{}) []string {
	return u.engine.Emit("user.subscribed", user)
}

type ContentEvents struct {
	engine *Engine
}

func (c ContentEvents) Published(page map[string]interface{}) []string {
	return c.engine.Emit("content.published", page)
}
