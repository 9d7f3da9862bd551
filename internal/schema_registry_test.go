package internal

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/lychee-technology/docschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaRegistry_RegisterInjectsIDs(t *testing.T) {
	registry := NewSchemaRegistry()
	original := docschema.NewSchema(
		docschema.F("address", docschema.Object(docschema.NewSchema(docschema.F("city", docschema.String())))),
		docschema.F("lines", docschema.ListOfObjects(docschema.NewSchema(docschema.F("sku", docschema.String())))),
		docschema.F("meta", docschema.Dict()),
	)
	require.NoError(t, registry.Register("orders", original))

	got, err := registry.Get("orders")
	require.NoError(t, err)
	assert.Equal(t, []string{"address", "lines", "meta", "_id"}, got.Names())
	assert.True(t, got.Field("address").Schema.Has("_id"))
	assert.True(t, got.Field("lines").Elem.Schema.Has("_id"))
	assert.False(t, original.Has("_id"), "the caller's schema is not modified")
	assert.False(t, original.Field("address").Schema.Has("_id"))
}

func TestSchemaRegistry_Errors(t *testing.T) {
	registry := NewSchemaRegistry()

	_, err := registry.Get("missing")
	var de *docschema.DocError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, docschema.ErrCodeSchemaNotFound, de.Code)

	err = registry.Register("", docschema.NewSchema())
	require.True(t, errors.As(err, &de))
	assert.Equal(t, docschema.ErrCodeSchemaInvalid, de.Code)

	err = registry.Register("grid", docschema.NewSchema(docschema.F("cells", docschema.List(docschema.List(docschema.Integer())))))
	require.True(t, errors.As(err, &de))
	assert.Equal(t, docschema.ErrCodeSchemaInvalid, de.Code)

	require.NoError(t, registry.Register("empty", nil))
	assert.Equal(t, []string{"empty"}, registry.ListSchemas())
}

func TestSchemaRegistry_Referrers(t *testing.T) {
	registry := NewSchemaRegistry()
	require.NoError(t, registry.Register("users", docschema.NewSchema(docschema.F("name", docschema.String()))))
	require.NoError(t, registry.Register("orders", docschema.NewSchema(
		docschema.F("owner", docschema.Reference("users").WithRequired()),
		docschema.F("lines", docschema.ListOfObjects(docschema.NewSchema(
			docschema.F("picker", docschema.Reference("users")),
		))),
	)))
	require.NoError(t, registry.Register("books", docschema.NewSchema(
		docschema.F("reviewers", docschema.ListOfReferences("users")),
	)))

	assert.Equal(t, []docschema.ReferenceEdge{
		{Source: "books", Target: "users", Path: []string{"reviewers"}, Lists: []bool{false}, Many: true},
		{Source: "orders", Target: "users", Path: []string{"lines", "picker"}, Lists: []bool{true, false}},
		{Source: "orders", Target: "users", Path: []string{"owner"}, Lists: []bool{false}, Required: true},
	}, registry.Referrers("users"))

	require.NoError(t, registry.Register("orders", docschema.NewSchema(docschema.F("note", docschema.String()))))
	referrers := registry.Referrers("users")
	require.Len(t, referrers, 1, "re-registering drops the old edges")
	assert.Equal(t, "books", referrers[0].Source)
	assert.Empty(t, registry.Referrers("orders"))
	assert.Equal(t, []string{"books", "orders", "users"}, registry.ListSchemas())
}

func TestRelationIndex_Targets(t *testing.T) {
	idx := NewRelationIndex()
	idx.Replace("a", []docschema.ReferenceEdge{{Source: "a", Target: "x"}, {Source: "a", Target: "y"}})
	idx.Replace("b", []docschema.ReferenceEdge{{Source: "b", Target: "x"}})
	assert.Equal(t, []string{"x", "y"}, idx.Targets())

	idx.Replace("a", nil)
	assert.Equal(t, []string{"x"}, idx.Targets())

	out := idx.Referrers("x")
	out[0].Source = "changed"
	assert.Equal(t, "b", idx.Referrers("x")[0].Source)
}

func TestLoadSchemaDirectory(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	write("users.json", `{"name": {"type": "string", "required": true}}`)
	write("books.json", `{"author": {"type": "reference", "collection": "users"}}`)
	write("README.txt", "not a schema")

	registry := NewSchemaRegistry()
	names, err := LoadSchemaDirectory(dir, nil, registry)
	require.NoError(t, err)
	assert.Equal(t, []string{"books", "users"}, names)
	assert.Len(t, registry.Referrers("users"), 1)

	write("broken.json", `{"x": {"type": "decimal"}}`)
	_, err = LoadSchemaDirectory(dir, nil, NewSchemaRegistry())
	var de *docschema.DocError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, docschema.ErrCodeSchemaInvalid, de.Code)

	_, err = LoadSchemaDirectory(t.TempDir(), nil, NewSchemaRegistry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no schema files found")

	_, err = LoadSchemaDirectory(filepath.Join(dir, "nope"), nil, NewSchemaRegistry())
	require.Error(t, err)
}
