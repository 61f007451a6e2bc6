package engine

import (
	"fmt"
	"strings"

	"github.com/avenca/flowline/pkg/models"
)

// Mapping kinds and expression operators.
const (
	MappingLiteral = "literal"
	MappingPath    = "path"
	MappingExpr    = "expr"

	ExprAdd    = "add"
	ExprSub    = "sub"
	ExprMul    = "mul"
	ExprDiv    = "div"
	ExprConcat = "concat"
)

// Resolve turns one declarative mapping entry into a concrete value. Literals
// pass through unchanged; path references resolve through the same accessor as
// conditions, with an absent path yielding nil rather than an error.
// Resolution is pure and never writes to the context.
func Resolve(m models.Mapping, ctx *ExecutionContext) (interface{}, error) {
	switch strings.ToLower(strings.TrimSpace(m.Kind)) {
	case MappingLiteral:
		return m.Value, nil
	case MappingPath:
		v, _ := ctx.Lookup(m.Path)
		return v, nil
	case MappingExpr:
		return resolveExpr(m, ctx)
	default:
		return nil, definitionErrorf("unsupported mapping kind: %q", m.Kind)
	}
}

// ResolveAll resolves an action's full input mapping into a plain object.
func ResolveAll(mappings map[string]models.Mapping, ctx *ExecutionContext) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(mappings))
	for field, m := range mappings {
		v, err := Resolve(m, ctx)
		if err != nil {
			return nil, definitionErrorf("input field %q: %v", field, err)
		}
		out[field] = v
	}
	return out, nil
}

func resolveExpr(m models.Mapping, ctx *ExecutionContext) (interface{}, error) {
	left, _ := ctx.Lookup(m.Left)
	right, _ := ctx.Lookup(m.Right)

	op := strings.ToLower(strings.TrimSpace(m.Op))
	if op == ExprConcat {
		return fmt.Sprintf("%v%v", orEmpty(left), orEmpty(right)), nil
	}

	l, okL := toFloat(left)
	r, okR := toFloat(right)
	switch op {
	case ExprAdd:
		if !okL || !okR {
			return nil, nil
		}
		return l + r, nil
	case ExprSub:
		if !okL || !okR {
			return nil, nil
		}
		return l - r, nil
	case ExprMul:
		if !okL || !okR {
			return nil, nil
		}
		return l * r, nil
	case ExprDiv:
		if !okL || !okR || r == 0 {
			return nil, nil
		}
		return l / r, nil
	default:
		return nil, definitionErrorf("unsupported expression operator: %q", m.Op)
	}
}

func orEmpty(v interface{}) interface{} {
	if v == nil {
		return ""
	}
	return v
}
