package internal

import (
	"context"
	"fmt"
	"strings"

	"github.com/lychee-technology/docschema"
)

// referenceExpander replaces stored reference ids with the embedded subset
// of their targets. One expander serves one read; it caches fetched
// targets so a page of documents sharing a target costs one lookup.
type referenceExpander struct {
	store    docschema.DocumentStore
	registry docschema.SchemaRegistry
	maxDepth int
	cache    map[string]*docschema.Ref
}

func newReferenceExpander(store docschema.DocumentStore, registry docschema.SchemaRegistry, maxDepth int) *referenceExpander {
	return &referenceExpander{
		store:    store,
		registry: registry,
		maxDepth: maxDepth,
		cache:    make(map[string]*docschema.Ref),
	}
}

// ExpandReferences expands every reference of a top-level document. A
// reference field missing from doc becomes nil, or an empty list for a
// list of references.
func (x *referenceExpander) ExpandReferences(ctx context.Context, schema *docschema.Schema, doc map[string]any) error {
	return x.expand(ctx, schema, doc, 0)
}

func (x *referenceExpander) expand(ctx context.Context, schema *docschema.Schema, doc map[string]any, depth int) error {
	if schema == nil || doc == nil {
		return nil
	}
	for _, e := range schema.Entries() {
		f := e.Field
		val, present := doc[e.Name]
		switch {
		case f.IsObject():
			if child, ok := val.(map[string]any); ok {
				if err := x.expand(ctx, f.Schema, child, depth); err != nil {
					return err
				}
			}
		case f.IsListOfObjects():
			items, _ := val.([]any)
			for _, item := range items {
				if child, ok := item.(map[string]any); ok {
					if err := x.expand(ctx, f.Elem.Schema, child, depth); err != nil {
						return err
					}
				}
			}
		case f.IsReference():
			if !present {
				if depth == 0 {
					doc[e.Name] = nil
				}
				continue
			}
			ref, err := x.resolve(ctx, f, val, depth)
			if err != nil {
				return err
			}
			if ref != nil {
				doc[e.Name] = ref
			}
		case f.IsListOfReferences():
			if !present {
				if depth == 0 {
					doc[e.Name] = []any{}
				}
				continue
			}
			items, _ := val.([]any)
			for i, item := range items {
				ref, err := x.resolve(ctx, f.Elem, item, depth)
				if err != nil {
					return err
				}
				if ref != nil {
					items[i] = ref
				}
			}
		}
	}
	return nil
}

// resolve fetches one target. A nil id or an already expanded value is
// left alone and reported as nil.
func (x *referenceExpander) resolve(ctx context.Context, f *docschema.Field, id any, depth int) (*docschema.Ref, error) {
	if id == nil {
		return nil, nil
	}
	if _, done := id.(*docschema.Ref); done {
		return nil, nil
	}
	key := fmt.Sprintf("%s|%s|%s|%d", f.Collection, idKey(id), strings.Join(f.Fields, ","), depth)
	if ref, ok := x.cache[key]; ok {
		return ref, nil
	}

	var opts docschema.FindOptions
	if len(f.Fields) > 0 {
		opts.Fields = f.Fields
	}
	data, err := x.store.FindOne(ctx, f.Collection, docschema.IDSpec(id), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to expand reference %v in %s: %w", id, f.Collection, err)
	}
	ref := &docschema.Ref{ID: id, Collection: f.Collection}
	if data == nil {
		ref.Missing = true
		x.cache[key] = ref
		return ref, nil
	}

	ref.Data = data
	if target, err := x.registry.Get(f.Collection); err == nil {
		ref.Schema = target
		HydrateDatetimes(target, data)
		if depth+1 < x.maxDepth {
			x.cache[key] = ref
			if err := x.expand(ctx, target, data, depth+1); err != nil {
				return nil, err
			}
		}
	}
	x.cache[key] = ref
	return ref, nil
}
