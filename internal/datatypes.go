package internal

import (
	"fmt"
	"sort"

	"github.com/lychee-technology/docschema"
)

// EnforceDatatypes coerces incoming in place against schema and returns the
// path-qualified conversion errors. Keys the schema does not declare, and
// keys it marks read-only or computed, are dropped without error. A value
// that fails conversion is removed from incoming.
func EnforceDatatypes(schema *docschema.Schema, incoming map[string]any, path string) []string {
	var errs []string
	keys := make([]string, 0, len(incoming))
	for key := range incoming {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		f := schema.Field(key)
		if f == nil || f.IsReadOnly() {
			delete(incoming, key)
			continue
		}
		fieldPath := docschema.JoinPath(path, key)
		value := incoming[key]

		switch {
		case f.IsObject():
			child, ok := value.(map[string]any)
			if !ok {
				errs = append(errs, conversionError(fieldPath, value, f))
				delete(incoming, key)
				continue
			}
			errs = append(errs, EnforceDatatypes(f.Schema, child, fieldPath)...)
		case f.IsListOfObjects():
			items, ok := normalizeList(value)
			if !ok {
				errs = append(errs, conversionError(fieldPath, value, f))
				delete(incoming, key)
				continue
			}
			for i, item := range items {
				child, ok := item.(map[string]any)
				if !ok {
					errs = append(errs, conversionError(docschema.JoinPath(fieldPath, i), item, f.Elem))
					continue
				}
				errs = append(errs, EnforceDatatypes(f.Elem.Schema, child, docschema.JoinPath(fieldPath, i))...)
			}
			incoming[key] = items
		default:
			converted, err := convertValue(f, value)
			if err != nil {
				errs = append(errs, conversionError(fieldPath, value, f))
				delete(incoming, key)
				continue
			}
			incoming[key] = converted
		}
	}
	return errs
}

// normalizeList accepts any slice of items without copying nested maps.
func normalizeList(value any) ([]any, bool) {
	if items, ok := value.([]any); ok {
		return items, true
	}
	if maps, ok := value.([]map[string]any); ok {
		items := make([]any, len(maps))
		for i, m := range maps {
			items[i] = m
		}
		return items, true
	}
	return nil, false
}

func conversionError(path string, value any, f *docschema.Field) string {
	return fmt.Sprintf("%s: Could not convert '%s' to type '%s'", path, formatValue(value), f.TypeName())
}
