package internal

import (
	"context"
	"time"

	"github.com/lychee-technology/docschema"
	"go.uber.org/zap"
)

// Insert writes one new document and returns its id.
func (c *collection) Insert(ctx context.Context, doc map[string]any, opts docschema.WriteOptions) (any, error) {
	start := time.Now()
	defer EmitLatency(ctx, c.name, "insert", start)

	schema, err := c.schema()
	if err != nil {
		return nil, err
	}
	next, err := c.nextID(ctx)
	if err != nil {
		return nil, err
	}
	data, _, errs, err := c.prepareInsert(ctx, schema, doc, next, opts)
	if err != nil {
		return nil, err
	}
	if len(errs) > 0 {
		EmitValidationFailures(ctx, c.name, len(errs))
		return nil, docschema.NewValidationError(errs).WithCollection(c.name)
	}
	ids, err := c.writeNew(ctx, []map[string]any{data}, opts)
	if err != nil {
		return nil, err
	}
	return ids[0], nil
}

// prepareInsert runs the write pipeline for a new document: datatype
// enforcement, merge over the prototype, fill-in, id assignment, computed
// fields and behavior validation. Validation messages are returned
// separately from operational errors.
func (c *collection) prepareInsert(ctx context.Context, schema *docschema.Schema, doc map[string]any, next int64, opts docschema.WriteOptions) (map[string]any, int64, []string, error) {
	incoming := normalizeDocument(doc)
	if incoming == nil {
		incoming = map[string]any{}
	}
	if !opts.Direct {
		if errs := EnforceDatatypes(schema, incoming, ""); len(errs) > 0 {
			return nil, next, errs, nil
		}
	}

	data := GeneratePrototype(schema)
	MergeDocuments(schema, data, incoming)
	FillInPrototypes(schema, data)
	next, created := EnforceIDs(schema, data, next)
	if err := RunAutoFuncs(schema, data, nil, created); err != nil {
		return nil, next, nil, docschema.NewInternalError("computed field failed", err).WithCollection(c.name)
	}
	if opts.Direct {
		return data, next, nil, nil
	}
	errs, err := c.validator().EnforceSchemaBehaviors(ctx, schema, data)
	if err != nil {
		return nil, next, nil, c.storageError("failed to validate document", err)
	}
	return data, next, errs, nil
}

// writeNew stores prepared documents in order and records their creation.
func (c *collection) writeNew(ctx context.Context, docs []map[string]any, opts docschema.WriteOptions) ([]any, error) {
	ids := make([]any, 0, len(docs))
	for _, data := range docs {
		id, err := c.engine.store.Insert(ctx, c.name, data)
		if err != nil {
			return ids, c.storageError("failed to insert document", err)
		}
		zap.S().Debugw("Inserted document", "collection", c.name, "id", id)
		c.engine.history.Created(ctx, c.name, id, opts.Username)
		ids = append(ids, id)
	}
	return ids, nil
}

// Update merges doc into the stored document with the same _id.
func (c *collection) Update(ctx context.Context, doc map[string]any, opts docschema.WriteOptions) error {
	start := time.Now()
	defer EmitLatency(ctx, c.name, "update", start)

	if doc == nil || !hasID(doc) {
		return docschema.ErrMissingID
	}
	schema, err := c.schema()
	if err != nil {
		return err
	}
	incoming := normalizeDocument(doc)
	if !opts.Direct {
		if errs := EnforceDatatypes(schema, incoming, ""); len(errs) > 0 {
			EmitValidationFailures(ctx, c.name, len(errs))
			return docschema.NewValidationError(errs).WithCollection(c.name)
		}
	}
	id := incoming[docschema.IDField]

	stored, err := c.engine.store.FindOne(ctx, c.name, docschema.IDSpec(id), docschema.FindOptions{})
	if err != nil {
		return c.storageError("failed to load document", err)
	}
	if stored == nil {
		return docschema.NewDocumentNotFoundError(c.name, id)
	}
	HydrateDatetimes(schema, stored)
	old := copyMapDeep(stored)

	MergeDocuments(schema, stored, incoming)
	FillInPrototypes(schema, stored)
	topID, _ := idAsInt(id)
	_, created := EnforceIDs(schema, stored, topID)
	if err := RunAutoFuncs(schema, stored, nil, created); err != nil {
		return docschema.NewInternalError("computed field failed", err).WithCollection(c.name)
	}
	if !opts.Direct {
		errs, err := c.validator().EnforceSchemaBehaviors(ctx, schema, stored)
		if err != nil {
			return c.storageError("failed to validate document", err)
		}
		if len(errs) > 0 {
			EmitValidationFailures(ctx, c.name, len(errs))
			return docschema.NewValidationError(errs).WithCollection(c.name)
		}
	}

	ok, err := c.engine.store.Update(ctx, c.name, id, stored)
	if err != nil {
		return c.storageError("failed to update document", err)
	}
	if !ok {
		return docschema.NewDocumentNotFoundError(c.name, id)
	}
	changes := DiffDocuments(stored, old)
	zap.S().Debugw("Updated document", "collection", c.name, "id", id, "changes", len(changes))
	c.engine.history.Updated(ctx, c.name, id, opts.Username, changes)
	return nil
}

// Remove deletes the documents matching specOrID and returns how many were
// removed. With integrity checks enabled, a required reference to any of
// them blocks the whole remove, and other references are cleared afterwards.
func (c *collection) Remove(ctx context.Context, specOrID any, opts docschema.WriteOptions) (int, error) {
	start := time.Now()
	defer EmitLatency(ctx, c.name, "remove", start)

	if _, err := c.schema(); err != nil {
		return 0, err
	}
	spec := docschema.SpecOrID(normalizeValue(specOrID))
	targets, err := c.engine.store.Find(ctx, c.name, spec, docschema.FindOptions{Fields: []string{docschema.IDField}})
	if err != nil {
		return 0, c.storageError("failed to find documents to remove", err)
	}
	if len(targets) == 0 {
		return 0, nil
	}
	ids := make([]any, len(targets))
	for i, t := range targets {
		ids[i] = t[docschema.IDField]
	}

	checkIntegrity := c.engine.config.Reference.CheckIntegrity
	if checkIntegrity {
		msgs, err := c.blockingReferences(ctx, ids)
		if err != nil {
			return 0, err
		}
		if len(msgs) > 0 {
			return 0, docschema.NewReferenceIntegrityError(msgs).WithCollection(c.name)
		}
	}

	removed, err := c.engine.store.Remove(ctx, c.name, docschema.Spec{
		docschema.IDField: map[string]any{string(docschema.OpIn): ids},
	})
	if err != nil {
		return 0, c.storageError("failed to remove documents", err)
	}
	for _, doc := range removed {
		c.engine.history.Removed(ctx, c.name, doc[docschema.IDField], opts.Username, doc)
	}
	zap.S().Debugw("Removed documents", "collection", c.name, "count", len(removed))

	if checkIntegrity {
		if err := c.clearDanglingReferences(ctx, ids, opts.Username); err != nil {
			return len(removed), err
		}
	}
	return len(removed), nil
}
