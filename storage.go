package docschema

import (
	"context"
)

// SortOrder defines sort direction
type SortOrder string

const (
	SortOrderAsc  SortOrder = "asc"
	SortOrderDesc SortOrder = "desc"
)

// SortField orders results by a dotted field path.
type SortField struct {
	Field string    `json:"field"`
	Order SortOrder `json:"order,omitempty"`
}

// FindOptions narrows and orders a read. Fields is a projection; _id is
// always included when a projection is requested.
type FindOptions struct {
	Fields []string    `json:"fields,omitempty"`
	Skip   int         `json:"skip,omitempty"`
	Limit  int         `json:"limit,omitempty"`
	Sort   []SortField `json:"sort,omitempty"`
}

// DocumentStore is the external document store the engine is layered over.
// Documents are plain nested mappings; FindOne returns nil when nothing matches.
type DocumentStore interface {
	Find(ctx context.Context, collection string, spec Spec, opts FindOptions) ([]map[string]any, error)
	FindOne(ctx context.Context, collection string, spec Spec, opts FindOptions) (map[string]any, error)
	Insert(ctx context.Context, collection string, doc map[string]any) (any, error)
	Update(ctx context.Context, collection string, id any, doc map[string]any) (bool, error)
	// Remove deletes every match and returns the removed documents.
	Remove(ctx context.Context, collection string, spec Spec) ([]map[string]any, error)
	Count(ctx context.Context, collection string, spec Spec) (int64, error)
}

// Engine registers collection schemas and hands out schema-enforcing collections.
type Engine interface {
	// RegisterSchema installs or replaces the schema of a collection. Stored
	// documents are migrated lazily on their next read or write.
	RegisterSchema(name string, schema *Schema) error
	Schema(name string) (*Schema, error)
	Collection(name string) (Collection, error)
	// History returns the audit entries of one document in insertion order.
	History(ctx context.Context, collection string, id any) ([]HistoryEntry, error)
}

// Collection provides schema-enforced operations on one named collection.
// specOrID arguments accept a Spec, a map[string]any, or a bare _id value.
type Collection interface {
	Name() string
	Schema() *Schema

	Insert(ctx context.Context, doc map[string]any, opts WriteOptions) (any, error)
	// InsertMany validates every document before writing any; a single
	// failure rejects the whole batch.
	InsertMany(ctx context.Context, docs []map[string]any, opts WriteOptions) ([]any, error)
	// Update merges doc into the stored document identified by doc["_id"].
	Update(ctx context.Context, doc map[string]any, opts WriteOptions) error
	Remove(ctx context.Context, specOrID any, opts WriteOptions) (int, error)

	Find(ctx context.Context, spec Spec, opts FindOptions) ([]*Record, error)
	FindOne(ctx context.Context, specOrID any, opts FindOptions) (*Record, error)
	Count(ctx context.Context, spec Spec) (int64, error)

	Serialize(record *Record) (map[string]any, error)
	SerializeList(records []*Record) ([]map[string]any, error)
	SerializeJSON(record *Record) ([]byte, error)
	FindAndSerialize(ctx context.Context, spec Spec, opts FindOptions) ([]map[string]any, error)
	FindOneAndSerialize(ctx context.Context, specOrID any, opts FindOptions) (map[string]any, error)
}
