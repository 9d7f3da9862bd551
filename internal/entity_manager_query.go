package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lychee-technology/docschema"
)

// Find reads matching documents, migrates them to the current schema and
// expands their references. A projection in opts becomes each record's View.
func (c *collection) Find(ctx context.Context, spec docschema.Spec, opts docschema.FindOptions) ([]*docschema.Record, error) {
	start := time.Now()
	defer EmitLatency(ctx, c.name, "find", start)

	schema, err := c.schema()
	if err != nil {
		return nil, err
	}
	fetch := opts
	fetch.Fields = nil
	raw, err := c.engine.store.Find(ctx, c.name, spec, fetch)
	if err != nil {
		return nil, c.storageError("failed to find documents", err)
	}
	x := c.expander()
	records := make([]*docschema.Record, 0, len(raw))
	for _, doc := range raw {
		rec, err := c.toRecord(ctx, schema, x, doc, opts.Fields)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// FindOne returns the first match, or nil when nothing matches.
func (c *collection) FindOne(ctx context.Context, specOrID any, opts docschema.FindOptions) (*docschema.Record, error) {
	start := time.Now()
	defer EmitLatency(ctx, c.name, "find_one", start)

	schema, err := c.schema()
	if err != nil {
		return nil, err
	}
	fetch := opts
	fetch.Fields = nil
	doc, err := c.engine.store.FindOne(ctx, c.name, docschema.SpecOrID(normalizeValue(specOrID)), fetch)
	if err != nil {
		return nil, c.storageError("failed to find document", err)
	}
	if doc == nil {
		return nil, nil
	}
	return c.toRecord(ctx, schema, c.expander(), doc, opts.Fields)
}

func (c *collection) toRecord(ctx context.Context, schema *docschema.Schema, x *referenceExpander, doc map[string]any, fields []string) (*docschema.Record, error) {
	HydrateDatetimes(schema, doc)
	FillInPrototypes(schema, doc)
	if err := x.ExpandReferences(ctx, schema, doc); err != nil {
		return nil, c.storageError("failed to expand references", err)
	}
	rec := &docschema.Record{Collection: c.name, Data: doc}
	if len(fields) > 0 {
		rec.Fields = append([]string(nil), fields...)
		rec.View = ProjectDocument(doc, fields)
	}
	return rec, nil
}

func (c *collection) Count(ctx context.Context, spec docschema.Spec) (int64, error) {
	n, err := c.engine.store.Count(ctx, c.name, spec)
	if err != nil {
		return 0, c.storageError("failed to count documents", err)
	}
	return n, nil
}

func (c *collection) Serialize(record *docschema.Record) (map[string]any, error) {
	schema, err := c.schema()
	if err != nil {
		return nil, err
	}
	out, err := SerializeRecord(schema, record)
	if err != nil {
		return nil, docschema.NewInternalError("failed to serialize document", err).WithCollection(c.name)
	}
	return out, nil
}

func (c *collection) SerializeList(records []*docschema.Record) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		item, err := c.Serialize(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

func (c *collection) SerializeJSON(record *docschema.Record) ([]byte, error) {
	out, err := c.Serialize(record)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s document: %w", c.name, err)
	}
	return data, nil
}

func (c *collection) FindAndSerialize(ctx context.Context, spec docschema.Spec, opts docschema.FindOptions) ([]map[string]any, error) {
	records, err := c.Find(ctx, spec, opts)
	if err != nil {
		return nil, err
	}
	return c.SerializeList(records)
}

// FindOneAndSerialize returns nil when nothing matches.
func (c *collection) FindOneAndSerialize(ctx context.Context, specOrID any, opts docschema.FindOptions) (map[string]any, error) {
	rec, err := c.FindOne(ctx, specOrID, opts)
	if err != nil || rec == nil {
		return nil, err
	}
	return c.Serialize(rec)
}
