package engine

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/avenca/flowline/pkg/models"
)

// Condition operators. Comparison ops take a path and a literal or second
// path; logical ops combine sub-conditions; "exists" checks path presence.
const (
	OpEq       = "eq"
	OpNeq      = "neq"
	OpGt       = "gt"
	OpGte      = "gte"
	OpLt       = "lt"
	OpLte      = "lte"
	OpContains = "contains"
	OpExists   = "exists"
	OpAnd      = "and"
	OpOr       = "or"
	OpNot      = "not"
)

func comparisonOp(op string) bool {
	switch op {
	case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte, OpContains:
		return true
	}
	return false
}

// Evaluate resolves a condition against the execution context. A missing path
// compares as not-equal to any literal and fails existence checks; that is a
// defined semantic, not an error. An unsupported operator is a definition
// error; workflows are validated before dispatch so a malformed branch never
// silently evaluates to a default.
func Evaluate(cond models.Condition, ctx *ExecutionContext) (bool, error) {
	op := strings.ToLower(strings.TrimSpace(cond.Op))
	switch {
	case op == OpAnd:
		for _, sub := range cond.Conds {
			ok, err := Evaluate(sub, ctx)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case op == OpOr:
		for _, sub := range cond.Conds {
			ok, err := Evaluate(sub, ctx)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case op == OpNot:
		if len(cond.Conds) != 1 {
			return false, definitionErrorf("operator %q requires exactly one sub-condition", OpNot)
		}
		ok, err := Evaluate(cond.Conds[0], ctx)
		if err != nil {
			return false, err
		}
		return !ok, nil
	case op == OpExists:
		_, ok := ctx.Lookup(cond.Path)
		return ok, nil
	case comparisonOp(op):
		return evaluateComparison(op, cond, ctx)
	default:
		return false, definitionErrorf("unsupported condition operator: %q", cond.Op)
	}
}

func evaluateComparison(op string, cond models.Condition, ctx *ExecutionContext) (bool, error) {
	left, leftOK := ctx.Lookup(cond.Path)

	var right interface{}
	rightOK := true
	if cond.ValuePath != "" {
		right, rightOK = ctx.Lookup(cond.ValuePath)
	} else {
		right = cond.Value
	}

	// Absent operands: equal only when comparing absent to absent is not a
	// thing we support; an absent side is not-equal to anything.
	if !leftOK || !rightOK {
		return op == OpNeq, nil
	}

	switch op {
	case OpEq:
		return looseEqual(left, right), nil
	case OpNeq:
		return !looseEqual(left, right), nil
	case OpContains:
		return contains(left, right), nil
	case OpGt, OpGte, OpLt, OpLte:
		l, okL := toFloat(left)
		r, okR := toFloat(right)
		if !okL || !okR {
			return false, nil
		}
		switch op {
		case OpGt:
			return l > r, nil
		case OpGte:
			return l >= r, nil
		case OpLt:
			return l < r, nil
		case OpLte:
			return l <= r, nil
		}
	}
	return false, definitionErrorf("unsupported condition operator: %q", op)
}

// looseEqual normalizes numbers before comparing: JSON decoding yields
// float64, while literals authored in Go may be ints.
func looseEqual(a, b interface{}) bool {
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	if okA && okB {
		return math.Abs(fa-fb) < 1e-9
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func contains(haystack, needle interface{}) bool {
	switch h := haystack.(type) {
	case string:
		return strings.Contains(h, fmt.Sprintf("%v", needle))
	case []interface{}:
		for _, item := range h {
			if looseEqual(item, needle) {
				return true
			}
		}
	}
	return false
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case int32:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
