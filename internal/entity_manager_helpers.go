package internal

import (
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/lychee-technology/docschema"
)

// copyMapDeep creates a deep copy of a map
func copyMapDeep(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	result := make(map[string]any, len(m))
	for key, value := range m {
		result[key] = deepCopyValue(value)
	}
	return result
}

// deepCopyValue creates a deep copy of any value
func deepCopyValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return copyMapDeep(v)
	case []any:
		result := make([]any, len(v))
		for i, item := range v {
			result[i] = deepCopyValue(item)
		}
		return result
	case *docschema.Ref:
		if v == nil {
			return v
		}
		c := *v
		c.Data = copyMapDeep(v.Data)
		return &c
	default:
		return value
	}
}

// normalizeValue converts a value into the engine's canonical forms: every
// integer becomes int64, every float float64, every slice []any and every
// string-keyed map map[string]any.
func normalizeValue(value any) any {
	switch v := value.(type) {
	case nil, string, bool, int64, float64, time.Time:
		return v
	case int:
		return int64(v)
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case uint:
		return int64(v)
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case uint64:
		return int64(v)
	case float32:
		return float64(v)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = normalizeValue(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = normalizeValue(item)
		}
		return out
	case docschema.Spec:
		return normalizeValue(map[string]any(v))
	case *docschema.Ref:
		if v == nil {
			return nil
		}
		return v.ID
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = normalizeValue(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return value
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = normalizeValue(iter.Value().Interface())
		}
		return out
	}
	return value
}

func normalizeDocument(doc map[string]any) map[string]any {
	if doc == nil {
		return nil
	}
	return normalizeValue(doc).(map[string]any)
}

// comparable folds integral floats into int64 so that 1 and 1.0 compare equal.
func comparableForm(value any) any {
	switch v := normalizeValue(value).(type) {
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
			return int64(v)
		}
		return v
	case map[string]any:
		for k, item := range v {
			v[k] = comparableForm(item)
		}
		return v
	case []any:
		for i, item := range v {
			v[i] = comparableForm(item)
		}
		return v
	default:
		return v
	}
}

var timeComparer = cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) })

// valuesEqual compares two document values structurally, ignoring numeric width.
func valuesEqual(a, b any) bool {
	return cmp.Equal(comparableForm(a), comparableForm(b), timeComparer)
}

func toFloat(v any) (float64, bool) {
	switch n := normalizeValue(v).(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// compareValues orders two scalars of the same kind. ok is false when the
// values are not mutually ordered.
func compareValues(a, b any) (int, bool) {
	if fa, okA := toFloat(a); okA {
		fb, okB := toFloat(b)
		if !okB {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case time.Time:
		bv, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return av.Compare(bv), true
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case av == bv:
			return 0, true
		case !av:
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

// idKey renders an identity as a map key independent of its numeric width.
func idKey(id any) string {
	switch v := comparableForm(id).(type) {
	case nil:
		return ""
	case int64:
		return fmt.Sprintf("i:%d", v)
	case string:
		return "s:" + v
	default:
		return fmt.Sprintf("%T:%v", v, v)
	}
}

// hasID reports whether an object document already carries an identity.
func hasID(doc map[string]any) bool {
	v, ok := doc[docschema.IDField]
	return ok && v != nil
}

func idAsInt(v any) (int64, bool) {
	switch n := comparableForm(v).(type) {
	case int64:
		return n, true
	}
	return 0, false
}

// getValueAtPath reads a dotted path through nested maps.
func getValueAtPath(m map[string]any, path string) any {
	if m == nil || path == "" {
		return m
	}
	current := any(m)
	for _, segment := range strings.Split(path, ".") {
		asMap, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		next, exists := asMap[segment]
		if !exists {
			return nil
		}
		current = next
	}
	return current
}

// formatValue renders a value the way validation messages quote it.
func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case string:
		return val
	}
	return fmt.Sprint(normalizeValue(v))
}
