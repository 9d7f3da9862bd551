package internal

import (
	"bytes"
	"fmt"
	"os"

	"github.com/natefinch/atomic"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const snapshotVersion = 1

// SaveSnapshot writes every collection to path as one BSON document. The
// file is replaced atomically.
func (s *MemoryStore) SaveSnapshot(path string) error {
	s.mu.RLock()
	collections := make(map[string]any, len(s.collections))
	total := 0
	for name, c := range s.collections {
		docs := make([]any, len(c.docs))
		for i, d := range c.docs {
			docs[i] = d
		}
		collections[name] = docs
		total += len(docs)
	}
	data, err := bson.Marshal(map[string]any{
		"version":     snapshotVersion,
		"collections": collections,
	})
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write snapshot %s: %w", path, err)
	}
	zap.S().Debugw("Saved store snapshot", "path", path, "collections", len(collections), "documents", total)
	return nil
}

// LoadSnapshot replaces the store contents with the snapshot at path. A
// missing file leaves the store empty.
func (s *MemoryStore) LoadSnapshot(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read snapshot %s: %w", path, err)
	}
	var raw map[string]any
	if err := bson.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode snapshot %s: %w", path, err)
	}
	decoded, ok := fromBSON(raw["collections"]).(map[string]any)
	if !ok {
		return fmt.Errorf("snapshot %s has no collections", path)
	}

	loaded := make(map[string]*memoryCollection, len(decoded))
	for name, v := range decoded {
		items, _ := v.([]any)
		c := &memoryCollection{}
		for _, item := range items {
			if doc, ok := item.(map[string]any); ok {
				c.docs = append(c.docs, doc)
			}
		}
		c.reindex()
		loaded[name] = c
	}

	s.mu.Lock()
	s.collections = loaded
	s.mu.Unlock()
	zap.S().Debugw("Loaded store snapshot", "path", path, "collections", len(loaded))
	return nil
}

// fromBSON converts decoded BSON values back into engine-native values.
func fromBSON(v any) any {
	switch val := v.(type) {
	case primitive.D:
		out := make(map[string]any, len(val))
		for _, e := range val {
			out[e.Key] = fromBSON(e.Value)
		}
		return out
	case primitive.M:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = fromBSON(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = fromBSON(item)
		}
		return out
	case primitive.A:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = fromBSON(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = fromBSON(item)
		}
		return out
	case primitive.DateTime:
		return val.Time().UTC()
	case int32:
		return int64(val)
	case primitive.Null:
		return nil
	default:
		return normalizeValue(v)
	}
}
