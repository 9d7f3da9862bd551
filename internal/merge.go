package internal

import (
	"github.com/lychee-technology/docschema"
)

// MergeDocuments merges incoming into original in place.
//
// Objects present on both sides merge recursively. Lists of objects are
// reconciled by _id: stored items whose id is listed again are merged and
// kept, listed items with an unknown or missing id are appended as given,
// and stored items not listed are dropped. The result follows the incoming
// order. Every other field is overwritten wholesale. Fields absent from
// incoming are left untouched.
func MergeDocuments(schema *docschema.Schema, original, incoming map[string]any) {
	for key, val := range incoming {
		f := schema.Field(key)
		switch {
		case f.IsObject():
			in, inOK := val.(map[string]any)
			cur, curOK := original[key].(map[string]any)
			if inOK && curOK {
				MergeDocuments(f.Schema, cur, in)
				continue
			}
			original[key] = deepCopyValue(val)
		case f.IsListOfObjects():
			in, inOK := normalizeList(val)
			cur, curOK := original[key].([]any)
			if inOK && curOK {
				original[key] = reconcileList(f.Elem.Schema, cur, in)
				continue
			}
			original[key] = deepCopyValue(val)
		default:
			original[key] = deepCopyValue(val)
		}
	}
}

func reconcileList(schema *docschema.Schema, stored, incoming []any) []any {
	byID := make(map[string]map[string]any, len(stored))
	for _, item := range stored {
		m, ok := item.(map[string]any)
		if !ok || !hasID(m) {
			continue
		}
		key := idKey(m[docschema.IDField])
		if _, dup := byID[key]; !dup {
			byID[key] = m
		}
	}

	result := make([]any, 0, len(incoming))
	for _, item := range incoming {
		m, ok := item.(map[string]any)
		if !ok {
			result = append(result, deepCopyValue(item))
			continue
		}
		if hasID(m) {
			if existing, found := byID[idKey(m[docschema.IDField])]; found {
				merged := copyMapDeep(existing)
				MergeDocuments(schema, merged, m)
				result = append(result, merged)
				continue
			}
		}
		result = append(result, copyMapDeep(m))
	}
	return result
}
