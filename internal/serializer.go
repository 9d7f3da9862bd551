package internal

import (
	"fmt"
	"time"

	"github.com/lychee-technology/docschema"
)

// SerializeRecord renders a read result for transmission. It works on a
// copy of the record's visible data, the projection when one was
// requested, while computed fields see the full document.
func SerializeRecord(schema *docschema.Schema, record *docschema.Record) (map[string]any, error) {
	if record == nil {
		return nil, nil
	}
	view := copyMapDeep(record.Visible())
	if view == nil {
		return nil, nil
	}
	if err := serializeDocument(schema, record.Data, view, docschema.NewNode(record.Data, nil), ""); err != nil {
		return nil, err
	}
	return view, nil
}

func serializeDocument(schema *docschema.Schema, full, view map[string]any, node *docschema.Node, path string) error {
	for key := range view {
		if !schema.Has(key) {
			delete(view, key)
		}
	}

	for _, e := range schema.Entries() {
		f := e.Field
		val, present := view[e.Name]
		if !present {
			continue
		}
		fieldPath := docschema.JoinPath(path, e.Name)
		switch {
		case f.IsObject():
			child, ok := val.(map[string]any)
			if !ok {
				continue
			}
			fullChild, _ := full[e.Name].(map[string]any)
			if fullChild == nil {
				fullChild = child
			}
			if err := serializeDocument(f.Schema, fullChild, child, node.Child(fullChild), fieldPath); err != nil {
				return err
			}
		case f.IsListOfObjects():
			items, _ := val.([]any)
			fullItems, _ := full[e.Name].([]any)
			for i, item := range items {
				child, ok := item.(map[string]any)
				if !ok {
					continue
				}
				fullChild := matchListItem(fullItems, child, i)
				if err := serializeDocument(f.Elem.Schema, fullChild, child, node.Child(fullChild), docschema.JoinPath(fieldPath, i)); err != nil {
					return err
				}
			}
		case f.IsReference():
			out, err := serializeReference(val)
			if err != nil {
				return fmt.Errorf("%s: %w", fieldPath, err)
			}
			view[e.Name] = out
		case f.IsListOfReferences():
			items, _ := val.([]any)
			out := make([]any, len(items))
			for i, item := range items {
				ref, err := serializeReference(item)
				if err != nil {
					return fmt.Errorf("%s: %w", docschema.JoinPath(fieldPath, i), err)
				}
				out[i] = ref
			}
			view[e.Name] = out
		default:
			view[e.Name] = formatForTransport(val)
		}
	}

	for _, e := range schema.Entries() {
		if e.Field.Serialize == nil {
			continue
		}
		if _, present := view[e.Name]; !present {
			continue
		}
		out, err := e.Field.Serialize.Run(node)
		if err != nil {
			return fmt.Errorf("%s: computed field %q failed: %w", docschema.JoinPath(path, e.Name), e.Field.Serialize.Name, err)
		}
		view[e.Name] = formatForTransport(normalizeValue(out))
	}
	return nil
}

// matchListItem finds the full counterpart of a projected list item by _id,
// falling back to its position.
func matchListItem(fullItems []any, item map[string]any, pos int) map[string]any {
	if id, ok := item[docschema.IDField]; ok && id != nil {
		for _, candidate := range fullItems {
			if m, ok := candidate.(map[string]any); ok && valuesEqual(m[docschema.IDField], id) {
				return m
			}
		}
	}
	if pos < len(fullItems) {
		if m, ok := fullItems[pos].(map[string]any); ok {
			return m
		}
	}
	return item
}

// serializeReference renders an expanded reference as its serialized target,
// a dangling one as the not-found marker and an unexpanded one as its id.
func serializeReference(val any) (any, error) {
	ref, ok := val.(*docschema.Ref)
	if !ok {
		return formatForTransport(val), nil
	}
	if ref == nil {
		return nil, nil
	}
	if ref.Missing {
		return map[string]any{
			docschema.IDField: ref.ID,
			"_error":          docschema.NotFoundMessage,
		}, nil
	}
	out := copyMapDeep(ref.Data)
	if ref.Schema == nil {
		return formatForTransport(out), nil
	}
	if err := serializeDocument(ref.Schema, ref.Data, out, docschema.NewNode(ref.Data, nil), ""); err != nil {
		return nil, err
	}
	return out, nil
}

// formatForTransport turns values without a JSON form into text.
func formatForTransport(val any) any {
	switch v := val.(type) {
	case time.Time:
		return v.Format(time.RFC3339Nano)
	case map[string]any:
		for k, item := range v {
			v[k] = formatForTransport(item)
		}
		return v
	case []any:
		for i, item := range v {
			v[i] = formatForTransport(item)
		}
		return v
	case *docschema.Ref:
		out, _ := serializeReference(v)
		return out
	}
	return val
}
