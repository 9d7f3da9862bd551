package internal

import (
	"testing"

	"github.com/lychee-technology/docschema"
	"github.com/stretchr/testify/assert"
)

func TestDiffDocuments_ScalarsAndFields(t *testing.T) {
	oldDoc := map[string]any{
		"name":    "a",
		"age":     int64(1),
		"gone":    int64(5),
		"address": map[string]any{"city": "Paris"},
	}
	newDoc := map[string]any{
		"name":    "b",
		"age":     1.0,
		"extra":   true,
		"address": map[string]any{"city": "Lyon"},
	}

	changes := DiffDocuments(newDoc, oldDoc)

	assert.Equal(t, []docschema.Change{
		{"address/city": "Paris"},
		{"extra": map[string]any{"action": docschema.ActionFieldAdded}},
		{"name": "a"},
		{"gone": map[string]any{"action": docschema.ActionFieldRemoved, "data": int64(5)}},
	}, changes)
}

func TestDiffDocuments_ScalarLists(t *testing.T) {
	oldDoc := map[string]any{"tags": []any{"x", "y"}}
	newDoc := map[string]any{"tags": []any{"y", "x", "z"}}

	changes := DiffDocuments(newDoc, oldDoc)

	assert.Equal(t, []docschema.Change{
		{"tags": map[string]any{"action": "item added", "data": "z"}},
		{"tags": map[string]any{"action": docschema.ActionArrayReordered, "data": []any{"x", "y"}}},
	}, changes)
}

func TestDiffDocuments_DuplicateListItems(t *testing.T) {
	oldDoc := map[string]any{"scores": []any{int64(1), int64(1), int64(2)}}
	newDoc := map[string]any{"scores": []any{int64(1), int64(2)}}

	changes := DiffDocuments(newDoc, oldDoc)

	assert.Equal(t, []docschema.Change{
		{"scores": map[string]any{"action": "item removed", "data": int64(1)}},
	}, changes)
}

func TestDiffDocuments_ObjectLists(t *testing.T) {
	oldDoc := map[string]any{"lines": []any{
		map[string]any{"_id": int64(1), "qty": int64(1)},
		map[string]any{"_id": int64(2), "qty": int64(2)},
	}}
	newDoc := map[string]any{"lines": []any{
		map[string]any{"_id": int64(2), "qty": int64(3)},
		map[string]any{"_id": int64(3), "qty": int64(1)},
	}}

	changes := DiffDocuments(newDoc, oldDoc)

	assert.Equal(t, []docschema.Change{
		{"lines": map[string]any{"action": "object removed", "data": map[string]any{"_id": int64(1), "qty": int64(1)}}},
		{"lines": map[string]any{"action": "object added", "data": int64(3)}},
		{"lines/0/qty": int64(2)},
	}, changes)
}

func TestDiffDocuments_NoChanges(t *testing.T) {
	doc := map[string]any{"a": int64(1), "b": []any{"x"}, "c": map[string]any{"d": nil}}
	assert.Empty(t, DiffDocuments(doc, copyMapDeep(doc)))
}
