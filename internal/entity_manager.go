package internal

import (
	"context"
	"fmt"

	"github.com/lychee-technology/docschema"
	"go.uber.org/zap"
)

type engine struct {
	store    docschema.DocumentStore
	registry docschema.SchemaRegistry
	config   *docschema.Config
	history  *HistoryRecorder
}

// NewEngine layers schema enforcement over store. A nil registry gets an
// in-memory one; a nil config gets the defaults.
func NewEngine(store docschema.DocumentStore, registry docschema.SchemaRegistry, config *docschema.Config) docschema.Engine {
	if registry == nil {
		registry = NewSchemaRegistry()
	}
	if config == nil {
		config = docschema.DefaultConfig()
	}
	return &engine{
		store:    store,
		registry: registry,
		config:   config,
		history:  NewHistoryRecorder(store, config.Entity.HistoryCollection, config.Entity.EnableHistory),
	}
}

func (e *engine) RegisterSchema(name string, schema *docschema.Schema) error {
	if name != "" && name == e.config.Entity.HistoryCollection {
		return docschema.NewSchemaInvalidError(name, fmt.Errorf("collection name is reserved for history"))
	}
	return e.registry.Register(name, schema)
}

func (e *engine) Schema(name string) (*docschema.Schema, error) {
	return e.registry.Get(name)
}

func (e *engine) Collection(name string) (docschema.Collection, error) {
	if _, err := e.registry.Get(name); err != nil {
		return nil, err
	}
	return &collection{engine: e, name: name}, nil
}

func (e *engine) History(ctx context.Context, collectionName string, id any) ([]docschema.HistoryEntry, error) {
	entries, err := e.history.List(ctx, collectionName, normalizeValue(id))
	if err != nil {
		return nil, docschema.NewStorageError("failed to read history", err).WithCollection(collectionName)
	}
	return entries, nil
}

// collection resolves its schema on every call, so a re-registered schema
// applies to the next operation.
type collection struct {
	engine *engine
	name   string
}

func (c *collection) Name() string { return c.name }

func (c *collection) Schema() *docschema.Schema {
	s, err := c.engine.registry.Get(c.name)
	if err != nil {
		zap.S().Warnw("Schema disappeared from registry", "collection", c.name, "error", err)
		return docschema.NewSchema()
	}
	return s
}

func (c *collection) schema() (*docschema.Schema, error) {
	return c.engine.registry.Get(c.name)
}

func (c *collection) validator() *behaviorValidator {
	return &behaviorValidator{
		store:           c.engine.store,
		collection:      c.name,
		checkReferences: c.engine.config.Reference.ValidateOnWrite,
	}
}

func (c *collection) expander() *referenceExpander {
	return newReferenceExpander(c.engine.store, c.engine.registry, c.engine.config.Reference.MaxExpandDepth)
}

func (c *collection) storageError(message string, err error) error {
	return docschema.NewStorageError(message, err).WithCollection(c.name)
}

// nextID returns one more than the largest top-level id in the collection,
// or 1 when it is empty. Read-then-write: concurrent inserts may race.
func (c *collection) nextID(ctx context.Context) (int64, error) {
	last, err := c.engine.store.FindOne(ctx, c.name, docschema.Spec{}, docschema.FindOptions{
		Fields: []string{docschema.IDField},
		Sort:   []docschema.SortField{{Field: docschema.IDField, Order: docschema.SortOrderDesc}},
	})
	if err != nil {
		return 0, c.storageError("failed to read the largest id", err)
	}
	if last == nil {
		return 1, nil
	}
	maxID, _ := idAsInt(last[docschema.IDField])
	return maxID + 1, nil
}
