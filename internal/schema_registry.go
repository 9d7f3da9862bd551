package internal

import (
	"errors"
	"sort"
	"sync"

	"github.com/lychee-technology/docschema"
	"go.uber.org/zap"
)

var errEmptyCollectionName = errors.New("collection name is required")

type schemaRegistry struct {
	mu        sync.RWMutex
	schemas   map[string]*docschema.Schema
	relations *RelationIndex
}

// NewSchemaRegistry creates an empty in-process schema registry
func NewSchemaRegistry() docschema.SchemaRegistry {
	return &schemaRegistry{
		schemas:   make(map[string]*docschema.Schema),
		relations: NewRelationIndex(),
	}
}

// Register stores a copy of schema with _id injected into every object node
// and rebuilds the reference edges contributed by name.
func (r *schemaRegistry) Register(name string, schema *docschema.Schema) error {
	if name == "" {
		return docschema.NewSchemaInvalidError(name, errEmptyCollectionName)
	}
	if schema == nil {
		schema = docschema.NewSchema()
	}
	if err := schema.Validate(); err != nil {
		return docschema.NewSchemaInvalidError(name, err)
	}
	registered := schema.Clone()
	injectIDs(registered)

	r.mu.Lock()
	_, replaced := r.schemas[name]
	r.schemas[name] = registered
	r.mu.Unlock()

	edges := collectEdges(name, registered)
	r.relations.Replace(name, edges)
	zap.S().Debugw("Registered schema", "collection", name, "fields", registered.Len(), "references", len(edges), "replaced", replaced)
	return nil
}

func (r *schemaRegistry) Get(name string) (*docschema.Schema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[name]
	if !ok {
		return nil, docschema.NewSchemaNotFoundError(name)
	}
	return s, nil
}

// ListSchemas returns a list of all registered schema names
func (r *schemaRegistry) ListSchemas() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.schemas))
	for name := range r.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *schemaRegistry) Referrers(target string) []docschema.ReferenceEdge {
	return r.relations.Referrers(target)
}

// injectIDs declares the integer identity on s and on every nested object schema.
func injectIDs(s *docschema.Schema) {
	s.Set(docschema.IDField, docschema.Integer())
	for _, e := range s.Entries() {
		switch {
		case e.Field.IsObject():
			injectIDs(e.Field.Schema)
		case e.Field.IsListOfObjects():
			injectIDs(e.Field.Elem.Schema)
		}
	}
}
