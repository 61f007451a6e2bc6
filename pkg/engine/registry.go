package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/avenca/flowline/pkg/models"
	"github.com/pkg/errors"
)

// Logger defines the logging interface engine components accept. Satisfied by
// *logrus.Logger and by no-op test loggers.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// RunMeta identifies the execution a primitive call belongs to, for scoping
// and auditing.
type RunMeta struct {
	ExecutionID string
	WorkflowID  string
	TenantID    string
	NodeID      string
}

// InvokeFunc is a primitive's implementation. It receives the resolved,
// schema-validated input and must respect ctx's deadline.
type InvokeFunc func(ctx context.Context, input map[string]interface{}, meta RunMeta) (interface{}, error)

// FieldType constrains a schema field's value.
type FieldType string

const (
	StringField  FieldType = "string"
	NumberField  FieldType = "number"
	BooleanField FieldType = "boolean"
	ObjectField  FieldType = "object"
	ArrayField   FieldType = "array"
	AnyField     FieldType = "any"
)

// InputField declares one field of a primitive's input schema.
type InputField struct {
	Name     string
	Type     FieldType
	Required bool
}

// InputSchema is a primitive's declared input contract, checked by the
// adapter before every invocation.
type InputSchema []InputField

// Validate checks input against the schema. Returns an InvalidInputError
// naming the violating field.
func (s InputSchema) Validate(primitive string, input map[string]interface{}) error {
	for _, f := range s {
		v, present := input[f.Name]
		if !present || v == nil {
			if f.Required {
				return &InvalidInputError{Primitive: primitive, Field: f.Name, Reason: "required field is missing"}
			}
			continue
		}
		if !f.Type.accepts(v) {
			return &InvalidInputError{
				Primitive: primitive,
				Field:     f.Name,
				Reason:    fmt.Sprintf("expected %s, got %T", f.Type, v),
			}
		}
	}
	return nil
}

func (t FieldType) accepts(v interface{}) bool {
	switch t {
	case StringField:
		_, ok := v.(string)
		return ok
	case NumberField:
		_, ok := toFloat(v)
		return ok
	case BooleanField:
		_, ok := v.(bool)
		return ok
	case ObjectField:
		_, ok := v.(map[string]interface{})
		return ok
	case ArrayField:
		_, ok := v.([]interface{})
		return ok
	case AnyField, "":
		return true
	}
	return false
}

// PrimitiveDefinition is the capability record for one named primitive.
type PrimitiveDefinition struct {
	Name    string
	Schema  InputSchema
	Timeout time.Duration       // 0 means DefaultPrimitiveTimeout
	Retry   *models.RetryPolicy // nil means a single attempt
	Invoke  InvokeFunc
}

// Registry maps primitive names to their definitions. Definitions are
// validated once, at registration, so lookup never yields a half-formed
// capability.
type Registry struct {
	mu    sync.RWMutex
	prims map[string]PrimitiveDefinition
}

func NewRegistry() *Registry {
	return &Registry{prims: map[string]PrimitiveDefinition{}}
}

// Register validates and stores a primitive definition. Re-registering a name
// replaces the previous definition.
func (r *Registry) Register(def PrimitiveDefinition) error {
	if def.Name == "" {
		return errors.New("empty primitive name")
	}
	if def.Invoke == nil {
		return errors.Errorf("primitive %q has no implementation", def.Name)
	}
	seen := map[string]struct{}{}
	for _, f := range def.Schema {
		if f.Name == "" {
			return errors.Errorf("primitive %q schema has an unnamed field", def.Name)
		}
		if _, dup := seen[f.Name]; dup {
			return errors.Errorf("primitive %q schema declares field %q twice", def.Name, f.Name)
		}
		seen[f.Name] = struct{}{}
		switch f.Type {
		case StringField, NumberField, BooleanField, ObjectField, ArrayField, AnyField, "":
		default:
			return errors.Errorf("primitive %q field %q has unknown type %q", def.Name, f.Name, f.Type)
		}
	}
	r.mu.Lock()
	r.prims[def.Name] = def
	r.mu.Unlock()
	return nil
}

// Get looks a primitive up by name.
func (r *Registry) Get(name string) (PrimitiveDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.prims[name]
	if !ok {
		return PrimitiveDefinition{}, &UnknownPrimitiveError{Name: name}
	}
	return def, nil
}

// Names lists the registered primitive names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.prims))
	for name := range r.prims {
		names = append(names, name)
	}
	return names
}
