package internal

import (
	"fmt"

	"github.com/lychee-technology/docschema"
)

// RunAutoFuncs evaluates computed fields over the merged document. Nested
// objects and object-list items are visited before their owner. auto_init
// runs only for documents created by this write; auto runs on every write.
// Results are coerced to the declared field type.
func RunAutoFuncs(schema *docschema.Schema, doc map[string]any, node *docschema.Node, created createdNodes) error {
	return runAutoFuncs(schema, doc, node, created, "")
}

func runAutoFuncs(schema *docschema.Schema, doc map[string]any, node *docschema.Node, created createdNodes, path string) error {
	if node == nil {
		node = docschema.NewNode(doc, nil)
	}
	for _, e := range schema.Entries() {
		f := e.Field
		switch {
		case f.IsObject():
			if child, ok := doc[e.Name].(map[string]any); ok {
				if err := runAutoFuncs(f.Schema, child, node.Child(child), created, docschema.JoinPath(path, e.Name)); err != nil {
					return err
				}
			}
		case f.IsListOfObjects():
			items, _ := doc[e.Name].([]any)
			for i, item := range items {
				child, ok := item.(map[string]any)
				if !ok {
					continue
				}
				itemPath := docschema.JoinPath(docschema.JoinPath(path, e.Name), i)
				if err := runAutoFuncs(f.Elem.Schema, child, node.Child(child), created, itemPath); err != nil {
					return err
				}
			}
		}
	}

	isNew := created.has(doc)
	for _, e := range schema.Entries() {
		f := e.Field
		var hook *docschema.Hook
		switch {
		case f.AutoInit != nil && isNew:
			hook = f.AutoInit
		case f.Auto != nil:
			hook = f.Auto
		default:
			continue
		}
		fieldPath := docschema.JoinPath(path, e.Name)
		value, err := hook.Run(node)
		if err != nil {
			return fmt.Errorf("%s: computed field %q failed: %w", fieldPath, hook.Name, err)
		}
		converted, err := convertValue(f, value)
		if err != nil {
			return fmt.Errorf("%s: computed field %q returned %s, not %s", fieldPath, hook.Name, formatValue(value), f.TypeName())
		}
		doc[e.Name] = converted
	}
	return nil
}
