package internal

import (
	"errors"
	"testing"
	"time"

	"github.com/lychee-technology/docschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lineLabelSchema() *docschema.Schema {
	label := docschema.ComputeFunc(func(n *docschema.Node) (any, error) {
		qty, _ := n.Int("qty")
		return n.Parent().String("prefix") + "-" + n.String("sku") + "x" + formatValue(qty), nil
	})
	return docschema.NewSchema(
		docschema.F("_id", docschema.Integer()),
		docschema.F("prefix", docschema.String()),
		docschema.F("lines", docschema.ListOfObjects(docschema.NewSchema(
			docschema.F("_id", docschema.Integer()),
			docschema.F("sku", docschema.String()),
			docschema.F("qty", docschema.Integer()),
			docschema.F("label", docschema.String().WithSerialize("line_label", label)),
		))),
	)
}

func TestSerializeRecord_ProjectedListSeesFullItems(t *testing.T) {
	full := map[string]any{
		"_id":    int64(1),
		"prefix": "P",
		"lines": []any{
			map[string]any{"_id": int64(1), "sku": "a", "qty": int64(2), "label": nil},
			map[string]any{"_id": int64(2), "sku": "b", "qty": int64(5), "label": nil},
		},
		"stale": "dropped",
	}
	rec := &docschema.Record{Data: full, View: ProjectDocument(full, []string{"lines.label"})}

	out, err := SerializeRecord(lineLabelSchema(), rec)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"_id": int64(1),
		"lines": []any{
			map[string]any{"_id": int64(1), "label": "P-ax2"},
			map[string]any{"_id": int64(2), "label": "P-bx5"},
		},
	}, out)
	assert.Nil(t, full["lines"].([]any)[0].(map[string]any)["label"], "the record is not modified")
}

func TestSerializeRecord_Formats(t *testing.T) {
	schema := docschema.NewSchema(
		docschema.F("at", docschema.Datetime()),
		docschema.F("meta", docschema.Dict()),
		docschema.F("owner", docschema.Reference("users")),
		docschema.F("stale", docschema.Reference("users")),
	)
	ts := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	rec := &docschema.Record{Data: map[string]any{
		"at":    ts,
		"meta":  map[string]any{"seen": ts},
		"owner": &docschema.Ref{ID: int64(3), Data: map[string]any{"_id": int64(3), "joined": ts}},
		"stale": &docschema.Ref{ID: int64(4), Missing: true},
		"other": 1,
	}}

	out, err := SerializeRecord(schema, rec)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"at":    "2024-05-01T08:00:00Z",
		"meta":  map[string]any{"seen": "2024-05-01T08:00:00Z"},
		"owner": map[string]any{"_id": int64(3), "joined": "2024-05-01T08:00:00Z"},
		"stale": map[string]any{"_id": int64(4), "_error": docschema.NotFoundMessage},
	}, out)
}

func TestSerializeRecord_HookFailure(t *testing.T) {
	schema := docschema.NewSchema(docschema.F("x", docschema.String().WithSerialize("boom",
		docschema.ComputeFunc(func(n *docschema.Node) (any, error) { return nil, errors.New("boom") }))))

	_, err := SerializeRecord(schema, &docschema.Record{Data: map[string]any{"x": nil}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `x: computed field "boom" failed`)

	out, err := SerializeRecord(schema, &docschema.Record{Data: map[string]any{}})
	require.NoError(t, err)
	assert.Empty(t, out, "hooks only run for fields in the view")

	out, err = SerializeRecord(schema, nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}
