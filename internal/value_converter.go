package internal

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/lychee-technology/docschema"
)

var errNotConvertible = errors.New("value not convertible")

var datetimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02",
}

// parseDatetime accepts ISO-8601 date and date-time text.
func parseDatetime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid ISO-8601 datetime %q", s)
}

// convertScalar coerces one value to a scalar field type. nil passes through.
func convertScalar(t docschema.FieldType, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	value = normalizeValue(value)
	switch t {
	case docschema.TypeBoolean:
		switch v := value.(type) {
		case bool:
			return v, nil
		case int64:
			return v != 0, nil
		case float64:
			return v != 0, nil
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return nil, errNotConvertible
			}
			return b, nil
		}
	case docschema.TypeInteger:
		switch v := value.(type) {
		case int64:
			return v, nil
		case float64:
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, errNotConvertible
			}
			return int64(v), nil
		case bool:
			if v {
				return int64(1), nil
			}
			return int64(0), nil
		case string:
			i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				return nil, errNotConvertible
			}
			return i, nil
		}
	case docschema.TypeFloat:
		switch v := value.(type) {
		case int64:
			return float64(v), nil
		case float64:
			return v, nil
		case bool:
			if v {
				return 1.0, nil
			}
			return 0.0, nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, errNotConvertible
			}
			return f, nil
		}
	case docschema.TypeString:
		switch v := value.(type) {
		case string:
			return v, nil
		case int64, float64, bool:
			return fmt.Sprint(v), nil
		case time.Time:
			return v.Format(time.RFC3339Nano), nil
		}
	case docschema.TypeDatetime:
		switch v := value.(type) {
		case time.Time:
			return v, nil
		case string:
			parsed, err := parseDatetime(v)
			if err != nil {
				return nil, errNotConvertible
			}
			return parsed, nil
		}
	case docschema.TypeDict:
		if m, ok := value.(map[string]any); ok {
			return m, nil
		}
	case docschema.TypeReference:
		return collapseReference(value)
	}
	return nil, errNotConvertible
}

// collapseReference reduces an embedded reference payload to its bare id.
func collapseReference(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case *docschema.Ref:
		if v == nil {
			return nil, nil
		}
		return collapseReference(v.ID)
	case map[string]any:
		id, ok := v[docschema.IDField]
		if !ok {
			return nil, errNotConvertible
		}
		return collapseReference(id)
	}
	converted, err := convertScalar(docschema.TypeInteger, value)
	if err != nil {
		return nil, errNotConvertible
	}
	return converted, nil
}

// convertValue coerces a value to the declared field type, element-wise for
// typed lists. Objects are handled by EnforceDatatypes.
func convertValue(f *docschema.Field, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	if f.Type != docschema.TypeList {
		return convertScalar(f.Type, value)
	}
	items, ok := normalizeValue(value).([]any)
	if !ok {
		return nil, errNotConvertible
	}
	if f.Elem == nil {
		return items, nil
	}
	out := make([]any, len(items))
	for i, item := range items {
		converted, err := convertScalar(f.Elem.Type, item)
		if err != nil {
			return nil, err
		}
		out[i] = converted
	}
	return out, nil
}
