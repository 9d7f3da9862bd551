package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lychee-technology/docschema"
	"go.uber.org/zap"
)

const uniqueViolation = "23505"

// documentPool is the subset of *pgxpool.Pool the store needs.
type documentPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
}

// PostgresStore keeps every collection in one JSONB table keyed by
// (collection, doc_id).
type PostgresStore struct {
	pool  documentPool
	table string
}

func NewPostgresStore(pool documentPool, table string) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("postgres pool cannot be nil")
	}
	if table == "" {
		return nil, fmt.Errorf("documents table name cannot be empty")
	}
	return &PostgresStore{pool: pool, table: table}, nil
}

// EnsureSchema creates the document table and its indexes when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range DocumentTableDDL(s.table) {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create document table %s: %w", s.table, err)
		}
	}
	zap.S().Infow("Document table ready", "table", s.table)
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, collection string, spec docschema.Spec, opts docschema.FindOptions) ([]map[string]any, error) {
	preds, err := docschema.ParseSpec(spec)
	if err != nil {
		return nil, err
	}
	query, args, err := buildFindStatement(s.table, collection, preds, opts)
	if err != nil {
		return nil, err
	}
	zap.S().Debugw("Postgres find", "collection", collection, "sql", query)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", collection, err)
	}
	docs, err := scanBodies(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", collection, err)
	}
	if len(opts.Fields) > 0 {
		for i, d := range docs {
			docs[i] = ProjectDocument(d, opts.Fields)
		}
	}
	return docs, nil
}

func (s *PostgresStore) FindOne(ctx context.Context, collection string, spec docschema.Spec, opts docschema.FindOptions) (map[string]any, error) {
	opts.Limit = 1
	docs, err := s.Find(ctx, collection, spec, opts)
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return docs[0], nil
}

func (s *PostgresStore) Insert(ctx context.Context, collection string, doc map[string]any) (any, error) {
	id, ok := doc[docschema.IDField]
	if !ok || id == nil {
		return nil, fmt.Errorf("document in %s has no _id", collection)
	}
	body, err := encodeBody(doc)
	if err != nil {
		return nil, err
	}
	if _, err := s.pool.Exec(ctx, buildInsertStatement(s.table), collection, idKey(id), body); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, fmt.Errorf("duplicate _id %v in %s", id, collection)
		}
		return nil, fmt.Errorf("failed to insert into %s: %w", collection, err)
	}
	return normalizeValue(id), nil
}

func (s *PostgresStore) Update(ctx context.Context, collection string, id any, doc map[string]any) (bool, error) {
	stored := copyMapDeep(doc)
	stored[docschema.IDField] = id
	body, err := encodeBody(stored)
	if err != nil {
		return false, err
	}
	tag, err := s.pool.Exec(ctx, buildUpdateStatement(s.table), collection, idKey(id), body)
	if err != nil {
		return false, fmt.Errorf("failed to update %v in %s: %w", id, collection, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) Remove(ctx context.Context, collection string, spec docschema.Spec) ([]map[string]any, error) {
	preds, err := docschema.ParseSpec(spec)
	if err != nil {
		return nil, err
	}
	query, args, err := buildRemoveStatement(s.table, collection, preds)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to remove from %s: %w", collection, err)
	}
	removed, err := scanBodies(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to read removed rows of %s: %w", collection, err)
	}
	return removed, nil
}

func (s *PostgresStore) Count(ctx context.Context, collection string, spec docschema.Spec) (int64, error) {
	preds, err := docschema.ParseSpec(spec)
	if err != nil {
		return 0, err
	}
	query, args, err := buildCountStatement(s.table, collection, preds)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", collection, err)
	}
	return n, nil
}

func scanBodies(rows pgx.Rows) ([]map[string]any, error) {
	defer rows.Close()
	docs := []map[string]any{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		doc, err := decodeBody(raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}

// encodeBody renders a document as JSONB text. Times are written in a
// fixed-width UTC layout so that they order as strings.
func encodeBody(doc map[string]any) (string, error) {
	data, err := json.Marshal(storableValue(normalizeValue(doc)))
	if err != nil {
		return "", fmt.Errorf("failed to encode document: %w", err)
	}
	return string(data), nil
}

func decodeBody(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode document body: %w", err)
	}
	return fromJSONNumbers(doc).(map[string]any), nil
}

func storableValue(v any) any {
	switch val := v.(type) {
	case time.Time:
		return formatStoredTime(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = storableValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = storableValue(item)
		}
		return out
	}
	return v
}

func fromJSONNumbers(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		f, _ := val.Float64()
		return f
	case map[string]any:
		for k, item := range val {
			val[k] = fromJSONNumbers(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = fromJSONNumbers(item)
		}
		return val
	}
	return v
}
