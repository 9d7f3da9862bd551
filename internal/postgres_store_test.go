package internal

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lychee-technology/docschema"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewPostgresStore(mock, "documents")
	require.NoError(t, err)
	return store, mock
}

func TestNewPostgresStore_Validation(t *testing.T) {
	_, err := NewPostgresStore(nil, "documents")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewPostgresStore(mock, "")
	require.Error(t, err)
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

func TestPostgresStore_FindDecodesBodies(t *testing.T) {
	store, mock := newMockStore(t)
	rows := pgxmock.NewRows([]string{"body"}).
		AddRow([]byte(`{"_id":1,"name":"Ann","price":2.5,"tags":["a"],"address":{"_id":1,"city":"Oslo"}}`)).
		AddRow([]byte(`{"_id":2,"name":"Bob","price":3,"tags":[],"address":null}`))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT body FROM "documents" WHERE collection = $1 AND TRUE ORDER BY body #> $2::text[] ASC NULLS FIRST, seq ASC`)).
		WithArgs("orders", []string{"name"}).
		WillReturnRows(rows)

	docs, err := store.Find(context.Background(), "orders", docschema.Spec{}, docschema.FindOptions{
		Sort:   []docschema.SortField{{Field: "name"}},
		Fields: []string{"name", "address.city"},
	})
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{
		{"_id": int64(1), "name": "Ann", "address": map[string]any{"_id": int64(1), "city": "Oslo"}},
		{"_id": int64(2), "name": "Bob"},
	}, docs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindOne(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`LIMIT $4`)).
		WithArgs("orders", `$."_id" ? (@ == $v)`, `{"v":7}`, 1).
		WillReturnRows(pgxmock.NewRows([]string{"body"}))

	doc, err := store.FindOne(context.Background(), "orders", docschema.IDSpec(7), docschema.FindOptions{})
	require.NoError(t, err)
	assert.Nil(t, doc)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_QueryFailure(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT body FROM "documents"`).WillReturnError(assert.AnError)

	_, err := store.Find(context.Background(), "orders", nil, docschema.FindOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to query orders")

	_, err = store.Find(context.Background(), "orders", docschema.Spec{"x": map[string]any{"$in": 3}}, docschema.FindOptions{})
	require.Error(t, err, "malformed specs fail before reaching the database")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Count(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "documents" WHERE collection = $1`)).
		WithArgs("orders", `$."email"`, `$."email" ? (@ == null)`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(4)))

	n, err := store.Count(context.Background(), "orders", docschema.Spec{"email": nil})
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// Writes
// ---------------------------------------------------------------------------

func TestPostgresStore_Insert(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Date(2024, 5, 1, 8, 30, 0, 0, time.FixedZone("CEST", 7200))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "documents" (collection, doc_id, body) VALUES ($1, $2, $3::jsonb)`)).
		WithArgs("orders", "i:3", `{"_id":3,"at":"2024-05-01T06:30:00.000000000Z","name":"Ann"}`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	id, err := store.Insert(context.Background(), "orders", map[string]any{"_id": 3, "name": "Ann", "at": at})
	require.NoError(t, err)
	assert.Equal(t, int64(3), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertErrors(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	_, err := store.Insert(ctx, "orders", map[string]any{"name": "Ann"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no _id")

	mock.ExpectExec(`INSERT INTO "documents"`).WillReturnError(&pgconn.PgError{Code: "23505"})
	_, err = store.Insert(ctx, "orders", map[string]any{"_id": int64(1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate _id 1 in orders")

	mock.ExpectExec(`INSERT INTO "documents"`).WillReturnError(assert.AnError)
	_, err = store.Insert(ctx, "orders", map[string]any{"_id": int64(2)})
	require.ErrorIs(t, err, assert.AnError)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Update(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "documents" SET body = $3::jsonb WHERE collection = $1 AND doc_id = $2`)).
		WithArgs("orders", "i:5", `{"_id":5,"name":"B"}`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE "documents"`).
		WithArgs("orders", "i:6", `{"_id":6}`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	doc := map[string]any{"name": "B"}
	ok, err := store.Update(ctx, "orders", int64(5), doc)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotContains(t, doc, "_id", "the caller's map is not modified")

	ok, err = store.Update(ctx, "orders", int64(6), map[string]any{})
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RemoveReturnsBodies(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`DELETE FROM "documents" WHERE collection = $1 AND`)).
		WillReturnRows(pgxmock.NewRows([]string{"body"}).AddRow([]byte(`{"_id":1}`)).AddRow([]byte(`{"_id":2}`)))

	removed, err := store.Remove(context.Background(), "orders", docschema.Spec{"_id": map[string]any{"$in": []any{1, 2}}})
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"_id": int64(1)}, {"_id": int64(2)}}, removed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_EnsureSchema(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "documents"`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectExec(`CREATE INDEX IF NOT EXISTS "documents_collection_seq_idx"`).WillReturnResult(pgxmock.NewResult("CREATE INDEX", 0))
	mock.ExpectExec(`CREATE INDEX IF NOT EXISTS "documents_body_gin_idx"`).WillReturnError(assert.AnError)

	err := store.EnsureSchema(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create document table documents")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDecodeBody(t *testing.T) {
	doc, err := decodeBody([]byte(`{"big":9007199254740993,"f":1.25,"list":[1,{"n":2}]}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"big":  int64(9007199254740993),
		"f":    1.25,
		"list": []any{int64(1), map[string]any{"n": int64(2)}},
	}, doc)

	_, err = decodeBody([]byte(`[1]`))
	require.Error(t, err)
}

func TestValidatePostgresConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*docschema.DatabaseConfig)
		wantErr string
	}{
		{"defaults", func(c *docschema.DatabaseConfig) {}, ""},
		{"host", func(c *docschema.DatabaseConfig) { c.Host = "" }, "database.host"},
		{"port", func(c *docschema.DatabaseConfig) { c.Port = 70000 }, "database.port"},
		{"database", func(c *docschema.DatabaseConfig) { c.Database = "" }, "database.database"},
		{"pool size", func(c *docschema.DatabaseConfig) { c.MaxConnections = 0 }, "database.maxConnections"},
		{"table", func(c *docschema.DatabaseConfig) { c.TableNames.Documents = "" }, "database.tableNames.documents"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := docschema.DefaultConfig().Database
			cfg.Database = "docs"
			tt.mutate(&cfg)
			err := ValidatePostgresConfig(cfg)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
