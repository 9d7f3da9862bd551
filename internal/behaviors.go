package internal

import (
	"context"
	"fmt"
	"strings"

	"github.com/lychee-technology/docschema"
)

// behaviorValidator checks required, allowed and unique constraints, and
// optionally that references point at existing documents.
type behaviorValidator struct {
	store           docschema.DocumentStore
	collection      string
	checkReferences bool
}

type behaviorScope struct {
	node   *docschema.Node
	path   string
	dotted []string
	// inList is set below a list of objects, where uniqueness is scoped to siblings.
	inList   bool
	siblings []any
}

// EnforceSchemaBehaviors returns the path-qualified messages for every
// violated constraint of doc. Store failures are returned as errors.
func (v *behaviorValidator) EnforceSchemaBehaviors(ctx context.Context, schema *docschema.Schema, doc map[string]any) ([]string, error) {
	topID := doc[docschema.IDField]
	if topID == nil {
		topID = int64(0)
	}
	return v.validate(ctx, schema, doc, topID, behaviorScope{node: docschema.NewNode(doc, nil)})
}

func (v *behaviorValidator) validate(ctx context.Context, schema *docschema.Schema, doc map[string]any, topID any, scope behaviorScope) ([]string, error) {
	var errs []string
	for _, e := range schema.Entries() {
		f := e.Field
		fieldPath := docschema.JoinPath(scope.path, e.Name)
		dotted := append(append([]string(nil), scope.dotted...), e.Name)
		value, present := doc[e.Name]

		if f.Required && (!present || value == nil) {
			errs = append(errs, fieldPath+": Required field is missing")
			continue
		}

		switch {
		case f.IsObject():
			if child, ok := value.(map[string]any); ok {
				childErrs, err := v.validate(ctx, f.Schema, child, topID, behaviorScope{
					node:     scope.node.Child(child),
					path:     fieldPath,
					dotted:   dotted,
					inList:   scope.inList,
					siblings: nil,
				})
				if err != nil {
					return nil, err
				}
				errs = append(errs, childErrs...)
			}
			continue
		case f.IsListOfObjects():
			items, _ := value.([]any)
			for i, item := range items {
				child, ok := item.(map[string]any)
				if !ok {
					continue
				}
				childErrs, err := v.validate(ctx, f.Elem.Schema, child, topID, behaviorScope{
					node:     scope.node.Child(child),
					path:     docschema.JoinPath(fieldPath, i),
					dotted:   dotted,
					inList:   true,
					siblings: items,
				})
				if err != nil {
					return nil, err
				}
				errs = append(errs, childErrs...)
			}
			continue
		}

		if value == nil {
			continue
		}

		if f.Allowed != nil {
			allowed := f.Allowed.Resolve(scope.node)
			if f.Type == docschema.TypeList {
				items, _ := value.([]any)
				for _, item := range items {
					if !containsValue(allowed, item) {
						errs = append(errs, fmt.Sprintf("%s: Value '%s' is not allowed", fieldPath, formatValue(item)))
					}
				}
			} else if !containsValue(allowed, value) {
				errs = append(errs, fmt.Sprintf("%s: Value '%s' is not allowed", fieldPath, formatValue(value)))
			}
		}

		if f.Unique {
			taken, err := v.isTaken(ctx, e.Name, value, doc, topID, dotted, scope)
			if err != nil {
				return nil, err
			}
			if taken {
				errs = append(errs, fmt.Sprintf("%s: Value '%s' is not unique", fieldPath, formatValue(value)))
			}
		}

		if v.checkReferences {
			refErrs, err := v.checkReference(ctx, f, fieldPath, value)
			if err != nil {
				return nil, err
			}
			errs = append(errs, refErrs...)
		}
	}
	return errs, nil
}

// isTaken looks for another holder of value. Below a list of objects the
// sibling items are compared; elsewhere the store is asked for any other
// document with the same value.
func (v *behaviorValidator) isTaken(ctx context.Context, key string, value any, doc map[string]any, topID any, dotted []string, scope behaviorScope) (bool, error) {
	if scope.inList {
		for _, sib := range scope.siblings {
			other, ok := sib.(map[string]any)
			if !ok || sameMap(other, doc) {
				continue
			}
			if valuesEqual(other[key], value) {
				return true, nil
			}
		}
		return false, nil
	}
	spec := docschema.Spec{
		strings.Join(dotted, "."): value,
		docschema.IDField:         map[string]any{string(docschema.OpNe): topID},
	}
	count, err := v.store.Count(ctx, v.collection, spec)
	if err != nil {
		return false, fmt.Errorf("failed to check uniqueness of %s: %w", strings.Join(dotted, "."), err)
	}
	return count > 0, nil
}

func (v *behaviorValidator) checkReference(ctx context.Context, f *docschema.Field, fieldPath string, value any) ([]string, error) {
	var target string
	var ids []any
	switch {
	case f.IsReference():
		target = f.Collection
		ids = []any{value}
	case f.IsListOfReferences():
		target = f.Elem.Collection
		ids, _ = value.([]any)
	default:
		return nil, nil
	}
	var errs []string
	for _, id := range ids {
		if id == nil {
			continue
		}
		found, err := v.store.FindOne(ctx, target, docschema.IDSpec(id), docschema.FindOptions{Fields: []string{docschema.IDField}})
		if err != nil {
			return nil, fmt.Errorf("failed to check reference %s: %w", fieldPath, err)
		}
		if found == nil {
			errs = append(errs, fmt.Sprintf("%s: Referenced item '%s' not found in '%s'", fieldPath, formatValue(id), target))
		}
	}
	return errs, nil
}

func containsValue(set []any, value any) bool {
	for _, candidate := range set {
		if valuesEqual(candidate, value) {
			return true
		}
	}
	return false
}

func sameMap(a, b map[string]any) bool {
	return mapIdentity(a) == mapIdentity(b)
}
