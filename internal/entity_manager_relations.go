package internal

import (
	"context"
	"fmt"
	"strings"

	"github.com/lychee-technology/docschema"
	"go.uber.org/zap"
)

// referrerSpec matches source documents whose edge field holds one of ids.
// Documents of this collection that are themselves being removed are
// excluded.
func (c *collection) referrerSpec(edge docschema.ReferenceEdge, ids []any) docschema.Spec {
	spec := docschema.Spec{
		strings.Join(edge.Path, "."): map[string]any{string(docschema.OpIn): ids},
	}
	if edge.Source == c.name {
		spec[docschema.IDField] = map[string]any{string(docschema.OpNin): ids}
	}
	return spec
}

// blockingReferences lists the documents whose required singular reference
// points at one of ids.
func (c *collection) blockingReferences(ctx context.Context, ids []any) ([]string, error) {
	var msgs []string
	for _, edge := range c.engine.registry.Referrers(c.name) {
		if !edge.Required || edge.Many {
			continue
		}
		holders, err := c.engine.store.Find(ctx, edge.Source, c.referrerSpec(edge, ids), docschema.FindOptions{
			Fields: []string{docschema.IDField},
		})
		if err != nil {
			return nil, c.storageError(fmt.Sprintf("failed to check references from %s", edge.Source), err)
		}
		for _, h := range holders {
			msgs = append(msgs, fmt.Sprintf("%s: Item '%s' in '%s' requires the removed document",
				strings.Join(edge.Path, "/"), formatValue(h[docschema.IDField]), edge.Source))
		}
	}
	return msgs, nil
}

// clearDanglingReferences nulls singular references and drops list entries
// pointing at removed ids, recording an update entry per changed document.
func (c *collection) clearDanglingReferences(ctx context.Context, ids []any, username string) error {
	removed := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		removed[idKey(id)] = struct{}{}
	}
	for _, edge := range c.engine.registry.Referrers(c.name) {
		holders, err := c.engine.store.Find(ctx, edge.Source, c.referrerSpec(edge, ids), docschema.FindOptions{})
		if err != nil {
			return c.storageError(fmt.Sprintf("failed to find references from %s", edge.Source), err)
		}
		for _, doc := range holders {
			old := copyMapDeep(doc)
			if !stripReference(doc, edge.Path, edge.Lists, edge.Many, removed) {
				continue
			}
			id := doc[docschema.IDField]
			if _, err := c.engine.store.Update(ctx, edge.Source, id, doc); err != nil {
				return c.storageError(fmt.Sprintf("failed to clear reference in %s", edge.Source), err)
			}
			zap.S().Debugw("Cleared dangling reference", "collection", edge.Source, "id", id, "field", strings.Join(edge.Path, "/"))
			c.engine.history.Updated(ctx, edge.Source, id, username, DiffDocuments(doc, old))
		}
	}
	return nil
}

// stripReference walks path through doc and clears references to removed
// ids at its end. lists marks the segments that are lists of objects.
func stripReference(doc map[string]any, path []string, lists []bool, many bool, removed map[string]struct{}) bool {
	if len(path) == 0 || doc == nil {
		return false
	}
	key := path[0]
	if len(path) == 1 {
		if many {
			items, ok := doc[key].([]any)
			if !ok {
				return false
			}
			kept := make([]any, 0, len(items))
			for _, item := range items {
				if _, gone := removed[idKey(item)]; !gone {
					kept = append(kept, item)
				}
			}
			if len(kept) == len(items) {
				return false
			}
			doc[key] = kept
			return true
		}
		if _, gone := removed[idKey(doc[key])]; gone && doc[key] != nil {
			doc[key] = nil
			return true
		}
		return false
	}

	changed := false
	if len(lists) > 0 && lists[0] {
		items, _ := doc[key].([]any)
		for _, item := range items {
			if child, ok := item.(map[string]any); ok && stripReference(child, path[1:], lists[1:], many, removed) {
				changed = true
			}
		}
		return changed
	}
	child, _ := doc[key].(map[string]any)
	rest := lists
	if len(rest) > 0 {
		rest = rest[1:]
	}
	return stripReference(child, path[1:], rest, many, removed)
}
