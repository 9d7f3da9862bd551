package internal

import (
	"context"
	"testing"
	"time"

	"github.com/lychee-technology/docschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryRecorder_Entries(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	h := NewHistoryRecorder(store, "_history", true)
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	h.withClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	})

	h.Created(ctx, "orders", int64(1), "ann")
	h.Updated(ctx, "orders", int64(1), "", nil)
	h.Updated(ctx, "orders", int64(1), "", []docschema.Change{{"name": "old"}})
	h.Removed(ctx, "orders", int64(1), "bob", map[string]any{"_id": int64(1), "name": "new"})
	h.Created(ctx, "orders", int64(2), "ann")

	entries, err := h.List(ctx, "orders", int64(1))
	require.NoError(t, err)
	require.Len(t, entries, 3, "an empty diff is not recorded")

	assert.Equal(t, docschema.ActionCreated, entries[0].Action)
	assert.Equal(t, "ann", *entries[0].Username)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 1, 0, time.UTC), entries[0].Time)
	assert.Len(t, entries[0].ID, 36)

	assert.Nil(t, entries[1].Username)
	assert.Empty(t, entries[1].Action)
	assert.Equal(t, []docschema.Change{{"name": "old"}}, entries[1].Changes)

	assert.Equal(t, docschema.ActionRemoved, entries[2].Action)
	assert.Equal(t, map[string]any{"_id": int64(1), "name": "new"}, entries[2].Data)
	assert.Equal(t, "orders", entries[2].Collection)
	assert.Equal(t, int64(1), entries[2].DocumentID)
}

func TestHistoryRecorder_Disabled(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	h := NewHistoryRecorder(store, "_history", false)
	h.Created(ctx, "orders", int64(1), "")

	assert.Empty(t, store.Collections())
	entries, err := h.List(ctx, "orders", int64(1))
	require.NoError(t, err)
	assert.Empty(t, entries)

	assert.Nil(t, mustList(t, NewHistoryRecorder(store, "", true)))
}

func mustList(t *testing.T, h *HistoryRecorder) []docschema.HistoryEntry {
	t.Helper()
	entries, err := h.List(context.Background(), "orders", int64(1))
	require.NoError(t, err)
	return entries
}

func TestHistoryRecorder_WriteFailureIsReported(t *testing.T) {
	var failures []string
	RegisterTelemetryEmitter(func(ctx context.Context, name string, labels map[string]string, value any) {
		if name == "docschema_history_failures" {
			failures = append(failures, labels["collection"])
		}
	})
	defer RegisterTelemetryEmitter(nil)

	h := NewHistoryRecorder(failingStore{MemoryStore: NewMemoryStore()}, "_history", true)
	h.Created(context.Background(), "orders", int64(1), "")

	assert.Equal(t, []string{"orders"}, failures)
}

func TestDecodeHistoryEntry_StoredText(t *testing.T) {
	entry := decodeHistoryEntry(map[string]any{
		"_id":        "0190a0c8-0000-7000-8000-000000000000",
		"collection": "orders",
		"id":         int64(4),
		"time":       "2024-05-01T12:00:00.000000000Z",
		"username":   nil,
		"changes":    []any{map[string]any{"a": int64(1)}, "junk"},
	})

	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), entry.Time)
	assert.Nil(t, entry.Username)
	assert.Equal(t, []docschema.Change{{"a": int64(1)}}, entry.Changes)
}
