package engine_test

import (
	"context"
	"testing"

	"github.com/avenca/flowline/pkg/engine"
	"github.com/stretchr/testify/assert"
)

func noopInvoke(ctx context.Context, input map[string]interface{}, meta engine.RunMeta) (interface{}, error) {
	return nil, nil
}

func TestRegistryRegister(t *testing.T) {
	r := engine.NewRegistry()

	assert.NoError(t, r.Register(engine.PrimitiveDefinition{
		Name:   "email.send",
		Invoke: noopInvoke,
		Schema: engine.InputSchema{
			{Name: "to", Type: engine.StringField, Required: true},
			{Name: "cc", Type: engine.ArrayField},
		},
	}))

	t.Run("EmptyName", func(t *testing.T) {
		err := r.Register(engine.PrimitiveDefinition{Invoke: noopInvoke})
		assert.Error(t, err)
	})

	t.Run("NoImplementation", func(t *testing.T) {
		err := r.Register(engine.PrimitiveDefinition{Name: "broken"})
		assert.Error(t, err)
	})

	t.Run("UnnamedField", func(t *testing.T) {
		err := r.Register(engine.PrimitiveDefinition{
			Name:   "broken",
			Invoke: noopInvoke,
			Schema: engine.InputSchema{{Type: engine.StringField}},
		})
		assert.Error(t, err)
	})

	t.Run("DuplicateField", func(t *testing.T) {
		err := r.Register(engine.PrimitiveDefinition{
			Name:   "broken",
			Invoke: noopInvoke,
			Schema: engine.InputSchema{
				{Name: "to", Type: engine.StringField},
				{Name: "to", Type: engine.StringField},
			},
		})
		assert.Error(t, err)
	})

	t.Run("UnknownFieldType", func(t *testing.T) {
		err := r.Register(engine.PrimitiveDefinition{
			Name:   "broken",
			Invoke: noopInvoke,
			Schema: engine.InputSchema{{Name: "to", Type: "uuid"}},
		})
		assert.Error(t, err)
	})

	t.Run("GetKnown", func(t *testing.T) {
		def, err := r.Get("email.send")
		assert.NoError(t, err)
		assert.Equal(t, "email.send", def.Name)
	})

	t.Run("GetUnknown", func(t *testing.T) {
		_, err := r.Get("sms.send")
		assert.Error(t, err)
		assert.True(t, engine.IsUnknownPrimitive(err))
	})

	t.Run("Names", func(t *testing.T) {
		assert.Contains(t, r.Names(), "email.send")
	})
}

func TestInputSchemaValidate(t *testing.T) {
	schema := engine.InputSchema{
		{Name: "to", Type: engine.StringField, Required: true},
		{Name: "amount", Type: engine.NumberField},
		{Name: "urgent", Type: engine.BooleanField},
		{Name: "meta", Type: engine.ObjectField},
		{Name: "tags", Type: engine.ArrayField},
		{Name: "anything", Type: engine.AnyField},
	}

	t.Run("Valid", func(t *testing.T) {
		assert.NoError(t, schema.Validate("email.send", map[string]interface{}{
			"to":     "a@b.c",
			"amount": 12,
			"urgent": true,
			"meta":   map[string]interface{}{"k": "v"},
			"tags":   []interface{}{"x"},
		}))
	})

	t.Run("OptionalOmitted", func(t *testing.T) {
		assert.NoError(t, schema.Validate("email.send", map[string]interface{}{"to": "a@b.c"}))
	})

	t.Run("RequiredMissing", func(t *testing.T) {
		err := schema.Validate("email.send", map[string]interface{}{"amount": 12})
		assert.Error(t, err)
		assert.True(t, engine.IsInvalidInput(err))
		assert.Contains(t, err.Error(), "to")
	})

	t.Run("RequiredNil", func(t *testing.T) {
		err := schema.Validate("email.send", map[string]interface{}{"to": nil})
		assert.Error(t, err)
		assert.True(t, engine.IsInvalidInput(err))
	})

	t.Run("WrongType", func(t *testing.T) {
		err := schema.Validate("email.send", map[string]interface{}{"to": "a@b.c", "amount": "twelve"})
		assert.Error(t, err)
		assert.True(t, engine.IsInvalidInput(err))
		assert.Contains(t, err.Error(), "amount")
	})

	t.Run("UndeclaredFieldsPass", func(t *testing.T) {
		assert.NoError(t, schema.Validate("email.send", map[string]interface{}{
			"to":    "a@b.c",
			"extra": struct{}{},
		}))
	})
}
