package internal

import (
	"time"

	"github.com/lychee-technology/docschema"
)

// GeneratePrototype builds the default-populated document for schema, in
// declared field order. Identities are left for the id assigner.
func GeneratePrototype(schema *docschema.Schema) map[string]any {
	doc := make(map[string]any, schema.Len())
	for _, e := range schema.Entries() {
		if e.Name == docschema.IDField {
			continue
		}
		doc[e.Name] = prototypeValue(e.Field)
	}
	return doc
}

func prototypeValue(f *docschema.Field) any {
	switch {
	case f.IsObject():
		return GeneratePrototype(f.Schema)
	case f.IsListOfObjects():
		return []any{}
	case f.HasDefault:
		return deepCopyValue(normalizeValue(f.Default))
	case f.Type == docschema.TypeDict:
		return map[string]any{}
	case f.Type == docschema.TypeList:
		return []any{}
	default:
		return nil
	}
}

// FillInPrototypes backfills every declared field missing from doc and
// removes every stored field the schema no longer declares. Nested objects
// and object-list items are filled in recursively.
func FillInPrototypes(schema *docschema.Schema, doc map[string]any) {
	if doc == nil {
		return
	}
	for _, e := range schema.Entries() {
		if e.Name == docschema.IDField {
			continue
		}
		f := e.Field
		val, ok := doc[e.Name]
		if !ok {
			doc[e.Name] = prototypeValue(f)
			continue
		}
		switch {
		case f.IsObject():
			child, isMap := val.(map[string]any)
			if !isMap {
				doc[e.Name] = GeneratePrototype(f.Schema)
				continue
			}
			FillInPrototypes(f.Schema, child)
		case f.IsListOfObjects():
			items, isList := val.([]any)
			if !isList {
				doc[e.Name] = []any{}
				continue
			}
			for _, item := range items {
				if m, isMap := item.(map[string]any); isMap {
					FillInPrototypes(f.Elem.Schema, m)
				}
			}
		}
	}
	for key := range doc {
		if !schema.Has(key) {
			delete(doc, key)
		}
	}
}

// HydrateDatetimes turns stored datetime text back into time.Time for
// datetime-typed fields, so stored documents compare like freshly written ones.
func HydrateDatetimes(schema *docschema.Schema, doc map[string]any) {
	if doc == nil {
		return
	}
	for _, e := range schema.Entries() {
		f := e.Field
		val, ok := doc[e.Name]
		if !ok || val == nil {
			continue
		}
		switch {
		case f.Type == docschema.TypeDatetime:
			doc[e.Name] = hydrateTime(val)
		case f.Type == docschema.TypeList && f.Elem != nil && f.Elem.Type == docschema.TypeDatetime:
			if items, isList := val.([]any); isList {
				for i, item := range items {
					items[i] = hydrateTime(item)
				}
			}
		case f.IsObject():
			if child, isMap := val.(map[string]any); isMap {
				HydrateDatetimes(f.Schema, child)
			}
		case f.IsListOfObjects():
			if items, isList := val.([]any); isList {
				for _, item := range items {
					if m, isMap := item.(map[string]any); isMap {
						HydrateDatetimes(f.Elem.Schema, m)
					}
				}
			}
		}
	}
}

func hydrateTime(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	if t, err := parseDatetime(s); err == nil {
		return t
	}
	return v
}

// storedTimeLayout is fixed-width so stored datetimes order lexically.
const storedTimeLayout = "2006-01-02T15:04:05.000000000Z"

func formatStoredTime(t time.Time) string {
	return t.UTC().Format(storedTimeLayout)
}
