package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Workflow is a stored automation definition: a trigger specification plus a
// node graph. The engine treats workflows as read-only at execution time; they
// are created and edited by the authoring surface.
type Workflow struct {
	ID        string      `json:"id" db:"id"`                 // Stable identifier (UUID or slug)
	Name      string      `json:"name" db:"name"`             // Display name (e.g. "Order follow-up")
	Version   int         `json:"version" db:"version"`       // Bumped by the authoring surface on edit
	Enabled   bool        `json:"enabled" db:"enabled"`       // Disabled workflows never match a trigger
	TenantID  string      `json:"tenant_id" db:"tenant_id"`   // Owner scope for primitive calls
	Trigger   TriggerSpec `json:"trigger" db:"trigger_spec"`  // What starts an execution
	Graph     Graph       `json:"graph" db:"graph"`           // Nodes and directed edges
	CreatedAt time.Time   `json:"created_at" db:"created_at"` // Creation timestamp
	UpdatedAt time.Time   `json:"updated_at" db:"updated_at"` // Last update timestamp
}

// TriggerSpec declares what can start a workflow. Any combination may be set;
// a workflow with none of the fields set can only be triggered manually.
type TriggerSpec struct {
	Events      []string `json:"events,omitempty"`       // Event names; a trailing ".*" is a wildcard suffix
	WebhookSlug string   `json:"webhook_slug,omitempty"` // Inbound webhook slug
	Schedule    string   `json:"schedule,omitempty"`     // Cron spec evaluated by the scheduler
	Manual      bool     `json:"manual,omitempty"`       // Explicitly allow manual runs only
	CooldownSec int      `json:"cooldown_sec,omitempty"` // Suppress re-fires inside this window
}

func (t TriggerSpec) Value() (driver.Value, error) {
	return json.Marshal(t)
}

func (t *TriggerSpec) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, t)
	case string:
		return json.Unmarshal([]byte(v), t)
	case nil:
		*t = TriggerSpec{}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into TriggerSpec", src)
	}
}
