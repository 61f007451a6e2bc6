package models

import "time"

// Event is an ephemeral domain fact handed to trigger dispatch. Events are
// consumed once and discarded; the engine does not persist them.
type Event struct {
	Name          string                 `json:"name"`           // e.g. "order.created"
	Payload       map[string]interface{} `json:"payload"`
	CorrelationID string                 `json:"correlation_id"` // Carried onto matched executions
	OccurredAt    time.Time              `json:"occurred_at"`
}
