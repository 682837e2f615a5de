package engine

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"erp-rules/internal/metadata"
)

type undefined struct{}

// Undefined stands in for a context key that is absent. It is distinct from a
// key that is present with a null value.
var Undefined any = undefined{}

// Lookup returns the context value for field, or Undefined when the key is absent.
func Lookup(data map[string]any, field string) any {
	v, ok := data[field]
	if !ok {
		return Undefined
	}
	return v
}

// EvaluateCondition applies one operator to a context value and the
// condition's configured value. Unknown operators evaluate to false. The only
// error is an invalid regex pattern.
func EvaluateCondition(op metadata.Operator, fieldValue, condValue any) (bool, error) {
	switch op {
	case metadata.OpEquals:
		return strictEqual(fieldValue, condValue), nil
	case metadata.OpNotEquals:
		return !strictEqual(fieldValue, condValue), nil

	case metadata.OpGreaterThan:
		c, ok := compare(fieldValue, condValue)
		return ok && c > 0, nil
	case metadata.OpGreaterThanOrEqual:
		c, ok := compare(fieldValue, condValue)
		return ok && c >= 0, nil
	case metadata.OpLessThan:
		c, ok := compare(fieldValue, condValue)
		return ok && c < 0, nil
	case metadata.OpLessThanOrEqual:
		c, ok := compare(fieldValue, condValue)
		return ok && c <= 0, nil

	case metadata.OpContains:
		return strings.Contains(Stringify(fieldValue), Stringify(condValue)), nil
	case metadata.OpNotContains:
		return !strings.Contains(Stringify(fieldValue), Stringify(condValue)), nil
	case metadata.OpStartsWith:
		return strings.HasPrefix(Stringify(fieldValue), Stringify(condValue)), nil
	case metadata.OpEndsWith:
		return strings.HasSuffix(Stringify(fieldValue), Stringify(condValue)), nil

	case metadata.OpIsEmpty:
		return !truthy(fieldValue), nil
	case metadata.OpIsNotEmpty:
		return truthy(fieldValue), nil

	case metadata.OpIsNull:
		return fieldValue == nil, nil
	case metadata.OpIsNotNull:
		return fieldValue != nil, nil

	case metadata.OpIn:
		list, ok := condValue.([]any)
		if !ok {
			return false, nil
		}
		return includes(list, fieldValue), nil
	case metadata.OpNotIn:
		list, ok := condValue.([]any)
		if !ok {
			return false, nil
		}
		return !includes(list, fieldValue), nil

	case metadata.OpRegex:
		re, err := compileRegex(Stringify(condValue))
		if err != nil {
			return false, err
		}
		return re.MatchString(Stringify(fieldValue))
	}
	return false, nil
}

// strictEqual is type-sensitive equality. Numbers compare by value regardless
// of their Go representation; arrays and objects compare structurally.
func strictEqual(a, b any) bool {
	if a == Undefined || b == Undefined {
		return a == b
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if na, ok := toNumber(a); ok {
		nb, ok := toNumber(b)
		return ok && na == nb
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !strictEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			w, ok := bv[k]
			if !ok || !strictEqual(v, w) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

// compare orders two raw values. Two strings compare lexically; anything else
// is coerced to a number. ok is false when either side has no numeric value.
func compare(a, b any) (int, bool) {
	if sa, ok := a.(string); ok {
		if sb, ok := b.(string); ok {
			return strings.Compare(sa, sb), true
		}
	}
	na, okA := coerceNumber(a)
	nb, okB := coerceNumber(b)
	if !okA || !okB {
		return 0, false
	}
	switch {
	case na < nb:
		return -1, true
	case na > nb:
		return 1, true
	}
	return 0, true
}

// toNumber accepts only values that are numbers already.
func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// coerceNumber converts loosely: null is 0, booleans are 0/1, numeric strings
// parse, blank strings are 0.
func coerceNumber(v any) (float64, bool) {
	if n, ok := toNumber(v); ok {
		return n, true
	}
	switch x := v.(type) {
	case nil:
		return 0, true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// truthy reports whether v counts as present and non-empty: not
// undefined, null, false, zero, NaN or the empty string.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil, undefined:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0 && !math.IsNaN(x)
	}
	if n, ok := toNumber(v); ok {
		return n != 0
	}
	return true
}

func includes(list []any, v any) bool {
	for _, item := range list {
		if strictEqual(item, v) {
			return true
		}
	}
	return false
}

// Stringify renders a context value the way string operators see it.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case undefined:
		return "undefined"
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return formatFloat(x)
	case float32:
		return formatFloat(float64(x))
	case json.Number:
		return x.String()
	case []any:
		parts := make([]string, len(x))
		for i, item := range x {
			if item == nil || item == Undefined {
				continue
			}
			parts[i] = Stringify(item)
		}
		return strings.Join(parts, ",")
	case map[string]any:
		return "[object Object]"
	}
	if n, ok := toNumber(v); ok {
		return formatFloat(n)
	}
	return fmt.Sprint(v)
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
