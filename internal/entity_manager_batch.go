package internal

import (
	"context"
	"time"

	"github.com/lychee-technology/docschema"
	"go.uber.org/zap"
)

// InsertMany prepares every document before writing any. If one document
// fails validation nothing is written and the per-document messages are
// returned. Ids are assigned consecutively in input order.
func (c *collection) InsertMany(ctx context.Context, docs []map[string]any, opts docschema.WriteOptions) ([]any, error) {
	start := time.Now()
	defer EmitLatency(ctx, c.name, "insert_many", start)

	if len(docs) == 0 {
		return []any{}, nil
	}
	schema, err := c.schema()
	if err != nil {
		return nil, err
	}
	next, err := c.nextID(ctx)
	if err != nil {
		return nil, err
	}

	prepared := make([]map[string]any, len(docs))
	perDocument := make([][]string, len(docs))
	failed := 0
	for i, doc := range docs {
		data, after, errs, err := c.prepareInsert(ctx, schema, doc, next, opts)
		if err != nil {
			return nil, err
		}
		if len(errs) > 0 {
			perDocument[i] = errs
			failed++
			continue
		}
		prepared[i] = data
		next = after
	}
	if failed > 0 {
		zap.S().Debugw("Rejected batch insert", "collection", c.name, "documents", len(docs), "failed", failed)
		EmitValidationFailures(ctx, c.name, failed)
		return nil, docschema.NewBatchValidationError(perDocument).WithCollection(c.name)
	}

	ids, err := c.writeNew(ctx, prepared, opts)
	if err != nil {
		return ids, err
	}
	zap.S().Debugw("Batch insert completed", "collection", c.name, "count", len(ids), "durationMicroseconds", time.Since(start).Microseconds())
	return ids, nil
}
