package internal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lychee-technology/docschema"
	"go.uber.org/zap"
)

// HistoryRecorder appends audit entries to the history collection. Writes
// are best-effort: a failure is logged and never undoes the document write.
type HistoryRecorder struct {
	store      docschema.DocumentStore
	collection string
	enabled    bool
	nowFunc    func() time.Time
}

func NewHistoryRecorder(store docschema.DocumentStore, collection string, enabled bool) *HistoryRecorder {
	return &HistoryRecorder{
		store:      store,
		collection: collection,
		enabled:    enabled && collection != "",
		nowFunc:    time.Now,
	}
}

func (h *HistoryRecorder) withClock(now func() time.Time) {
	if now != nil {
		h.nowFunc = now
	}
}

func (h *HistoryRecorder) Created(ctx context.Context, collection string, id any, username string) {
	h.record(ctx, h.newEntry(collection, id, username, func(e map[string]any) {
		e["action"] = docschema.ActionCreated
	}))
}

// Updated records changes; an empty diff records nothing.
func (h *HistoryRecorder) Updated(ctx context.Context, collection string, id any, username string, changes []docschema.Change) {
	if len(changes) == 0 {
		return
	}
	encoded := make([]any, len(changes))
	for i, c := range changes {
		encoded[i] = map[string]any(c)
	}
	h.record(ctx, h.newEntry(collection, id, username, func(e map[string]any) {
		e["changes"] = encoded
	}))
}

func (h *HistoryRecorder) Removed(ctx context.Context, collection string, id any, username string, data map[string]any) {
	h.record(ctx, h.newEntry(collection, id, username, func(e map[string]any) {
		e["action"] = docschema.ActionRemoved
		e["data"] = copyMapDeep(data)
	}))
}

func (h *HistoryRecorder) newEntry(collection string, id any, username string, fill func(map[string]any)) map[string]any {
	if !h.enabled {
		return nil
	}
	entryID, err := uuid.NewV7()
	if err != nil {
		entryID = uuid.New()
	}
	var user any
	if username != "" {
		user = username
	}
	entry := map[string]any{
		docschema.IDField: entryID.String(),
		"collection":      collection,
		"id":              id,
		"time":            h.nowFunc().UTC(),
		"username":        user,
	}
	fill(entry)
	return entry
}

func (h *HistoryRecorder) record(ctx context.Context, entry map[string]any) {
	if entry == nil {
		return
	}
	if _, err := h.store.Insert(ctx, h.collection, entry); err != nil {
		collection, _ := entry["collection"].(string)
		zap.S().Warnw("Failed to write history entry", "collection", collection, "id", entry["id"], "error", err)
		EmitHistoryFailure(ctx, collection)
	}
}

// List returns the entries of one document ordered by time.
func (h *HistoryRecorder) List(ctx context.Context, collection string, id any) ([]docschema.HistoryEntry, error) {
	if h.collection == "" {
		return nil, nil
	}
	raw, err := h.store.Find(ctx, h.collection, docschema.Spec{"collection": collection, "id": id}, docschema.FindOptions{
		Sort: []docschema.SortField{{Field: "time"}, {Field: docschema.IDField}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read history of %v in %s: %w", id, collection, err)
	}
	entries := make([]docschema.HistoryEntry, 0, len(raw))
	for _, r := range raw {
		entries = append(entries, decodeHistoryEntry(r))
	}
	return entries, nil
}

func decodeHistoryEntry(r map[string]any) docschema.HistoryEntry {
	entry := docschema.HistoryEntry{
		DocumentID: r["id"],
		Data:       r["data"],
	}
	entry.ID, _ = r[docschema.IDField].(string)
	entry.Collection, _ = r["collection"].(string)
	entry.Action, _ = r["action"].(string)
	if user, ok := r["username"].(string); ok {
		entry.Username = &user
	}
	if t, ok := hydrateTime(r["time"]).(time.Time); ok {
		entry.Time = t
	}
	if items, ok := r["changes"].([]any); ok {
		for _, item := range items {
			if m, ok := item.(map[string]any); ok {
				entry.Changes = append(entry.Changes, docschema.Change(m))
			}
		}
	}
	return entry
}
