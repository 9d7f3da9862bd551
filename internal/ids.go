package internal

import (
	"reflect"

	"github.com/lychee-technology/docschema"
)

// createdNodes remembers the object documents that received their identity
// during the current write, so insert-only computed fields can find them.
type createdNodes map[uintptr]struct{}

func mapIdentity(m map[string]any) uintptr {
	return reflect.ValueOf(m).Pointer()
}

func (c createdNodes) add(doc map[string]any) {
	c[mapIdentity(doc)] = struct{}{}
}

// has reports whether doc was created during this write. A nil set falls
// back to the document lacking an identity.
func (c createdNodes) has(doc map[string]any) bool {
	if c == nil {
		return !hasID(doc)
	}
	_, ok := c[mapIdentity(doc)]
	return ok
}

// EnforceIDs gives every object document lacking _id an integer identity.
// Children are visited first. A nested object takes 1; within a list of
// objects new items count up from the largest id already in that list. doc
// itself takes id when it has none. The returned value is the next unused
// top-level id.
func EnforceIDs(schema *docschema.Schema, doc map[string]any, id int64) (int64, createdNodes) {
	created := createdNodes{}
	next := enforceIDs(schema, doc, id, created)
	return next, created
}

func enforceIDs(schema *docschema.Schema, doc map[string]any, id int64, created createdNodes) int64 {
	for _, e := range schema.Entries() {
		switch {
		case e.Field.IsObject():
			if child, ok := doc[e.Name].(map[string]any); ok {
				enforceIDs(e.Field.Schema, child, 1, created)
			}
		case e.Field.IsListOfObjects():
			items, ok := doc[e.Name].([]any)
			if !ok {
				continue
			}
			next := maxListID(items) + 1
			for _, item := range items {
				if child, ok := item.(map[string]any); ok {
					next = enforceIDs(e.Field.Elem.Schema, child, next, created)
				}
			}
		}
	}
	if !hasID(doc) {
		doc[docschema.IDField] = id
		created.add(doc)
		return id + 1
	}
	return id
}

func maxListID(items []any) int64 {
	var maxID int64
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if id, ok := idAsInt(m[docschema.IDField]); ok && id > maxID {
			maxID = id
		}
	}
	return maxID
}
