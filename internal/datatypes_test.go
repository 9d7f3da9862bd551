package internal

import (
	"testing"
	"time"

	"github.com/lychee-technology/docschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertScalar(t *testing.T) {
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		typ     docschema.FieldType
		value   any
		want    any
		wantErr bool
	}{
		{"nil passes", docschema.TypeInteger, nil, nil, false},
		{"int to integer", docschema.TypeInteger, 7, int64(7), false},
		{"float truncates", docschema.TypeInteger, 7.9, int64(7), false},
		{"numeric text", docschema.TypeInteger, " 42 ", int64(42), false},
		{"bool to integer", docschema.TypeInteger, true, int64(1), false},
		{"bad integer text", docschema.TypeInteger, "many", nil, true},
		{"int to float", docschema.TypeFloat, int32(3), 3.0, false},
		{"float text", docschema.TypeFloat, "2.5", 2.5, false},
		{"bad float", docschema.TypeFloat, []any{1}, nil, true},
		{"bool text", docschema.TypeBoolean, "true", true, false},
		{"zero is false", docschema.TypeBoolean, 0, false, false},
		{"bad bool", docschema.TypeBoolean, "maybe", nil, true},
		{"number to string", docschema.TypeString, 12, "12", false},
		{"map to string", docschema.TypeString, map[string]any{"a": 1}, nil, true},
		{"date text", docschema.TypeDatetime, "2024-05-01", day, false},
		{"time passes", docschema.TypeDatetime, day, day, false},
		{"bad date", docschema.TypeDatetime, "yesterday", nil, true},
		{"number is not a date", docschema.TypeDatetime, 1714521600, nil, true},
		{"dict", docschema.TypeDict, map[string]int{"a": 1}, map[string]any{"a": int64(1)}, false},
		{"dict from scalar", docschema.TypeDict, "x", nil, true},
		{"reference id", docschema.TypeReference, "12", int64(12), false},
		{"embedded reference", docschema.TypeReference, map[string]any{"_id": 3, "name": "x"}, int64(3), false},
		{"expanded reference", docschema.TypeReference, &docschema.Ref{ID: int64(4)}, int64(4), false},
		{"reference without id", docschema.TypeReference, map[string]any{"name": "x"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := convertScalar(tt.typ, tt.value)
			if tt.wantErr {
				require.ErrorIs(t, err, errNotConvertible)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDatetime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-05-01T10:20:30Z", time.Date(2024, 5, 1, 10, 20, 30, 0, time.UTC)},
		{"2024-05-01T10:20:30.5+02:00", time.Date(2024, 5, 1, 8, 20, 30, 500000000, time.UTC)},
		{"2024-05-01 10:20:30", time.Date(2024, 5, 1, 10, 20, 30, 0, time.UTC)},
		{"2024-05-01T10:20", time.Date(2024, 5, 1, 10, 20, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseDatetime(tt.in)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}

	_, err := parseDatetime("05/01/2024")
	assert.Error(t, err)
}

func TestEnforceDatatypes(t *testing.T) {
	schema := docschema.NewSchema(
		docschema.F("age", docschema.Integer()),
		docschema.F("price", docschema.Float()),
		docschema.F("when", docschema.Datetime()),
		docschema.F("tags", docschema.List(docschema.String())),
		docschema.F("any", docschema.List(nil)),
		docschema.F("locked", docschema.String().WithReadOnly()),
		docschema.F("address", docschema.Object(docschema.NewSchema(
			docschema.F("zip", docschema.String()),
		))),
		docschema.F("lines", docschema.ListOfObjects(docschema.NewSchema(
			docschema.F("qty", docschema.Integer()),
		))),
	)
	incoming := map[string]any{
		"age":     "42",
		"price":   "cheap",
		"when":    "2024-05-01",
		"tags":    []int{1, 2},
		"any":     []any{1, "two"},
		"locked":  "x",
		"unknown": 1,
		"address": map[string]any{"zip": 75001},
		"lines":   []any{map[string]any{"qty": "3"}, 5, map[string]any{"qty": "lots"}},
	}

	errs := EnforceDatatypes(schema, incoming, "")

	assert.Equal(t, []string{
		"lines/1: Could not convert '5' to type 'object'",
		"lines/2/qty: Could not convert 'lots' to type 'integer'",
		"price: Could not convert 'cheap' to type 'float'",
	}, errs)
	assert.Equal(t, int64(42), incoming["age"])
	assert.NotContains(t, incoming, "price")
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), incoming["when"])
	assert.Equal(t, []any{"1", "2"}, incoming["tags"])
	assert.Equal(t, []any{int64(1), "two"}, incoming["any"])
	assert.NotContains(t, incoming, "locked")
	assert.NotContains(t, incoming, "unknown")
	assert.Equal(t, map[string]any{"zip": "75001"}, incoming["address"])
	assert.Equal(t, map[string]any{"qty": int64(3)}, incoming["lines"].([]any)[0])
}

func TestEnforceDatatypes_ContainerMismatch(t *testing.T) {
	schema := docschema.NewSchema(
		docschema.F("tags", docschema.List(docschema.Integer())),
		docschema.F("address", docschema.Object(docschema.NewSchema())),
		docschema.F("lines", docschema.ListOfObjects(docschema.NewSchema())),
	)
	incoming := map[string]any{
		"tags":    []any{1, "x"},
		"address": "Paris",
		"lines":   "none",
	}

	errs := EnforceDatatypes(schema, incoming, "order")

	assert.Equal(t, []string{
		"order/address: Could not convert 'Paris' to type 'object'",
		"order/lines: Could not convert 'none' to type 'list of objects'",
		"order/tags: Could not convert '[1 x]' to type 'list of integers'",
	}, errs)
	assert.Empty(t, incoming)
}

func TestEnforceDatatypes_NullsPass(t *testing.T) {
	schema := docschema.NewSchema(docschema.F("age", docschema.Integer()), docschema.F("owner", docschema.Reference("users")))
	incoming := map[string]any{"age": nil, "owner": nil}

	assert.Empty(t, EnforceDatatypes(schema, incoming, ""))
	assert.Equal(t, map[string]any{"age": nil, "owner": nil}, incoming)
}
