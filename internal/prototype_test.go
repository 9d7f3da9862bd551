package internal

import (
	"testing"
	"time"

	"github.com/lychee-technology/docschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func orderSchema() *docschema.Schema {
	return docschema.NewSchema(
		docschema.F("name", docschema.String()),
		docschema.F("count", docschema.Integer().WithDefault(5)),
		docschema.F("tags", docschema.List(docschema.String())),
		docschema.F("meta", docschema.Dict()),
		docschema.F("address", docschema.Object(docschema.NewSchema(
			docschema.F("city", docschema.String()),
			docschema.F("zip", docschema.String().WithDefault("00000")),
		))),
		docschema.F("lines", docschema.ListOfObjects(docschema.NewSchema(
			docschema.F("qty", docschema.Integer()),
			docschema.F("price", docschema.Float().WithDefault(1.5)),
		))),
		docschema.F("owner", docschema.Reference("users")),
	)
}

func TestGeneratePrototype(t *testing.T) {
	proto := GeneratePrototype(orderSchema())

	assert.Equal(t, map[string]any{
		"name":    nil,
		"count":   int64(5),
		"tags":    []any{},
		"meta":    map[string]any{},
		"address": map[string]any{"city": nil, "zip": "00000"},
		"lines":   []any{},
		"owner":   nil,
	}, proto)
}

func TestGeneratePrototype_DefaultsAreCopied(t *testing.T) {
	schema := docschema.NewSchema(docschema.F("labels", docschema.List(docschema.String()).WithDefault([]string{"new"})))

	first := GeneratePrototype(schema)
	first["labels"].([]any)[0] = "changed"

	second := GeneratePrototype(schema)
	assert.Equal(t, []any{"new"}, second["labels"])
}

func TestGeneratePrototype_SkipsIdentity(t *testing.T) {
	schema := docschema.NewSchema(
		docschema.F(docschema.IDField, docschema.Integer()),
		docschema.F("name", docschema.String()),
	)
	assert.Equal(t, map[string]any{"name": nil}, GeneratePrototype(schema))
}

func TestFillInPrototypes(t *testing.T) {
	doc := map[string]any{
		"name":    "order-1",
		"extra":   true,
		"address": map[string]any{"city": "Paris", "junk": 2},
		"lines":   []any{map[string]any{"qty": int64(2)}},
		"meta":    map[string]any{"free": "form"},
	}

	FillInPrototypes(orderSchema(), doc)

	assert.NotContains(t, doc, "extra")
	assert.Equal(t, int64(5), doc["count"])
	assert.Equal(t, map[string]any{"city": "Paris", "zip": "00000"}, doc["address"])
	assert.Equal(t, []any{map[string]any{"qty": int64(2), "price": 1.5}}, doc["lines"])
	assert.Equal(t, map[string]any{"free": "form"}, doc["meta"], "untyped dicts are kept as stored")
	assert.Contains(t, doc, "owner")
}

func TestFillInPrototypes_ReplacesMistypedContainers(t *testing.T) {
	doc := map[string]any{"address": "somewhere", "lines": "none"}
	FillInPrototypes(orderSchema(), doc)

	assert.Equal(t, map[string]any{"city": nil, "zip": "00000"}, doc["address"])
	assert.Equal(t, []any{}, doc["lines"])
}

func TestHydrateDatetimes(t *testing.T) {
	schema := docschema.NewSchema(
		docschema.F("at", docschema.Datetime()),
		docschema.F("seen", docschema.List(docschema.Datetime())),
		docschema.F("label", docschema.String()),
		docschema.F("events", docschema.ListOfObjects(docschema.NewSchema(docschema.F("when", docschema.Datetime())))),
	)
	ts := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	stored := formatStoredTime(ts)
	doc := map[string]any{
		"at":     stored,
		"seen":   []any{stored, "not a date"},
		"label":  stored,
		"events": []any{map[string]any{"when": stored}},
	}

	HydrateDatetimes(schema, doc)

	require.IsType(t, time.Time{}, doc["at"])
	assert.True(t, ts.Equal(doc["at"].(time.Time)))
	assert.IsType(t, time.Time{}, doc["seen"].([]any)[0])
	assert.Equal(t, "not a date", doc["seen"].([]any)[1])
	assert.Equal(t, stored, doc["label"], "string fields are never hydrated")
	assert.IsType(t, time.Time{}, doc["events"].([]any)[0].(map[string]any)["when"])
}

func TestFormatStoredTime_OrdersLexically(t *testing.T) {
	early := formatStoredTime(time.Date(2024, 1, 1, 0, 0, 0, 5, time.UTC))
	late := formatStoredTime(time.Date(2024, 1, 1, 0, 0, 1, 0, time.FixedZone("X", 3600)))
	assert.Equal(t, "2024-01-01T00:00:00.000000005Z", early)
	assert.Less(t, early, "2024-01-01T00:00:01.000000000Z")
	assert.Less(t, late, early, "offsets are normalized to UTC")
}
