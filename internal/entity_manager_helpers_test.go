package internal

import (
	"testing"
	"time"

	"github.com/lychee-technology/docschema"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeValue(t *testing.T) {
	type label string
	in := map[string]any{
		"int":    7,
		"uint":   uint16(3),
		"float":  float32(1.5),
		"ints":   []int{1, 2},
		"nested": map[string]string{"a": "b"},
		"spec":   docschema.Spec{"x": 1},
		"ref":    &docschema.Ref{ID: int64(4)},
		"named":  label("x"),
		"keyed":  map[int]string{1: "a"},
	}

	got := normalizeValue(in)

	assert.Equal(t, map[string]any{
		"int":    int64(7),
		"uint":   int64(3),
		"float":  1.5,
		"ints":   []any{int64(1), int64(2)},
		"nested": map[string]any{"a": "b"},
		"spec":   map[string]any{"x": int64(1)},
		"ref":    int64(4),
		"named":  label("x"),
		"keyed":  map[int]string{1: "a"},
	}, got)
}

func TestDeepCopyValue(t *testing.T) {
	original := map[string]any{
		"list": []any{map[string]any{"a": 1}},
		"ref":  &docschema.Ref{ID: 1, Data: map[string]any{"name": "x"}},
	}
	copied := copyMapDeep(original)
	copied["list"].([]any)[0].(map[string]any)["a"] = 2
	copied["ref"].(*docschema.Ref).Data["name"] = "y"

	assert.Equal(t, 1, original["list"].([]any)[0].(map[string]any)["a"])
	assert.Equal(t, "x", original["ref"].(*docschema.Ref).Data["name"])
	assert.Nil(t, copyMapDeep(nil))
}

func TestValuesEqual(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{"int widths", 1, int64(1), true},
		{"integral float", 2.0, int64(2), true},
		{"fraction", 2.5, int64(2), false},
		{"strings", "a", "a", true},
		{"nested", map[string]any{"a": []any{1}}, map[string]any{"a": []any{1.0}}, true},
		{"time zones", ts, ts.In(time.FixedZone("X", 3600)), true},
		{"nil", nil, nil, true},
		{"nil vs value", nil, 0, false},
		{"type mismatch", "1", 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, valuesEqual(tt.a, tt.b))
		})
	}
}

func TestCompareValues(t *testing.T) {
	tests := []struct {
		name   string
		a, b   any
		want   int
		wantOK bool
	}{
		{"numbers", 1, 2.5, -1, true},
		{"equal numbers", int64(3), 3.0, 0, true},
		{"strings", "b", "a", 1, true},
		{"times", time.Unix(10, 0), time.Unix(5, 0), 1, true},
		{"bools", false, true, -1, true},
		{"mixed", 1, "1", 0, false},
		{"unordered", []any{1}, []any{2}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := compareValues(tt.a, tt.b)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIDKey(t *testing.T) {
	assert.Equal(t, idKey(1), idKey(1.0))
	assert.Equal(t, "i:1", idKey(int64(1)))
	assert.Equal(t, "s:1", idKey("1"))
	assert.Equal(t, "", idKey(nil))
}

func TestGetValueAtPath(t *testing.T) {
	doc := map[string]any{"a": map[string]any{"b": map[string]any{"c": 1}}, "x": "y"}
	assert.Equal(t, 1, getValueAtPath(doc, "a.b.c"))
	assert.Nil(t, getValueAtPath(doc, "a.z"))
	assert.Nil(t, getValueAtPath(doc, "x.y"))
	assert.Equal(t, doc, getValueAtPath(doc, ""))
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "null", formatValue(nil))
	assert.Equal(t, "text", formatValue("text"))
	assert.Equal(t, "3", formatValue(int32(3)))
	assert.Equal(t, "[1 a]", formatValue([]any{1, "a"}))
	assert.Equal(t, "2024-01-01T00:00:00Z", formatValue(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
}
