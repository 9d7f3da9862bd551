package internal

import (
	"context"
	"testing"

	"github.com/lychee-technology/docschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBehaviorValidator_Allowed(t *testing.T) {
	sizesByKind := func(n *docschema.Node) []any {
		if n.String("kind") == "shoe" {
			return []any{int64(40), int64(42)}
		}
		return []any{"S", "M"}
	}
	schema := docschema.NewSchema(
		docschema.F("kind", docschema.String()),
		docschema.F("size", docschema.Integer().WithAllowedFunc("sizes", sizesByKind)),
		docschema.F("tags", docschema.List(docschema.String()).WithAllowed("a", "b")),
	)
	v := &behaviorValidator{store: NewMemoryStore(), collection: "items"}
	ctx := context.Background()

	errs, err := v.EnforceSchemaBehaviors(ctx, schema, map[string]any{"kind": "shoe", "size": 42.0, "tags": []any{"a", "z"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"tags: Value 'z' is not allowed"}, errs)

	errs, err = v.EnforceSchemaBehaviors(ctx, schema, map[string]any{"kind": "shirt", "size": int64(42)})
	require.NoError(t, err)
	assert.Equal(t, []string{"size: Value '42' is not allowed"}, errs)
}

func TestBehaviorValidator_UniqueScopes(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_, err := store.Insert(ctx, "sites", map[string]any{
		"_id":     int64(1),
		"address": map[string]any{"_id": int64(1), "code": "A1"},
		"pages":   []any{map[string]any{"_id": int64(1), "slug": "home"}},
	})
	require.NoError(t, err)

	schema := docschema.NewSchema(
		docschema.F("address", docschema.Object(docschema.NewSchema(docschema.F("code", docschema.String().WithUnique())))),
		docschema.F("pages", docschema.ListOfObjects(docschema.NewSchema(docschema.F("slug", docschema.String().WithUnique())))),
	)
	v := &behaviorValidator{store: store, collection: "sites"}

	errs, err := v.EnforceSchemaBehaviors(ctx, schema, map[string]any{
		"_id":     int64(2),
		"address": map[string]any{"code": "A1"},
		"pages":   []any{map[string]any{"slug": "home"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"address/code: Value 'A1' is not unique"}, errs, "list items are only compared with their siblings")

	errs, err = v.EnforceSchemaBehaviors(ctx, schema, map[string]any{
		"_id":     int64(1),
		"address": map[string]any{"code": "A1"},
	})
	require.NoError(t, err)
	assert.Empty(t, errs, "a document never collides with itself")
}

func TestBehaviorValidator_StoreFailure(t *testing.T) {
	schema := docschema.NewSchema(docschema.F("code", docschema.String().WithUnique()))
	v := &behaviorValidator{store: failingStore{MemoryStore: NewMemoryStore()}, collection: "sites"}

	_, err := v.EnforceSchemaBehaviors(context.Background(), schema, map[string]any{"code": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to check uniqueness of code")
}

// failingStore fails every write and count while reads go to the memory store.
type failingStore struct {
	*MemoryStore
}

func (failingStore) Insert(ctx context.Context, collection string, doc map[string]any) (any, error) {
	return nil, assert.AnError
}

func (failingStore) Count(ctx context.Context, collection string, spec docschema.Spec) (int64, error) {
	return 0, assert.AnError
}
