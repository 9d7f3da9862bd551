package internal

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/lychee-technology/docschema"
)

// MemoryStore is a goroutine-safe in-process DocumentStore. Documents are
// normalized and deep-copied on the way in and out, so callers never share
// state with the store.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

type memoryCollection struct {
	docs  []map[string]any
	index map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]*memoryCollection)}
}

func (s *MemoryStore) collection(name string, create bool) *memoryCollection {
	c, ok := s.collections[name]
	if !ok && create {
		c = &memoryCollection{index: make(map[string]int)}
		s.collections[name] = c
	}
	return c
}

func (c *memoryCollection) reindex() {
	c.index = make(map[string]int, len(c.docs))
	for i, d := range c.docs {
		c.index[idKey(d[docschema.IDField])] = i
	}
}

func (s *MemoryStore) Find(ctx context.Context, collection string, spec docschema.Spec, opts docschema.FindOptions) ([]map[string]any, error) {
	preds, err := docschema.ParseSpec(spec)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := s.collection(collection, false)
	if c == nil {
		return []map[string]any{}, nil
	}
	var matched []map[string]any
	for _, d := range c.docs {
		if matchesSpec(d, preds) {
			matched = append(matched, d)
		}
	}
	sortDocuments(matched, opts.Sort)
	matched = pageDocuments(matched, opts.Skip, opts.Limit)

	out := make([]map[string]any, 0, len(matched))
	for _, d := range matched {
		if len(opts.Fields) > 0 {
			out = append(out, ProjectDocument(d, opts.Fields))
		} else {
			out = append(out, copyMapDeep(d))
		}
	}
	return out, nil
}

func (s *MemoryStore) FindOne(ctx context.Context, collection string, spec docschema.Spec, opts docschema.FindOptions) (map[string]any, error) {
	opts.Limit = 1
	docs, err := s.Find(ctx, collection, spec, opts)
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return docs[0], nil
}

func (s *MemoryStore) Insert(ctx context.Context, collection string, doc map[string]any) (any, error) {
	id, ok := doc[docschema.IDField]
	if !ok || id == nil {
		return nil, fmt.Errorf("document in %s has no _id", collection)
	}
	stored := normalizeDocument(doc)
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.collection(collection, true)
	key := idKey(id)
	if _, dup := c.index[key]; dup {
		return nil, fmt.Errorf("duplicate _id %v in %s", id, collection)
	}
	c.index[key] = len(c.docs)
	c.docs = append(c.docs, stored)
	return stored[docschema.IDField], nil
}

func (s *MemoryStore) Update(ctx context.Context, collection string, id any, doc map[string]any) (bool, error) {
	stored := normalizeDocument(doc)
	stored[docschema.IDField] = normalizeValue(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.collection(collection, false)
	if c == nil {
		return false, nil
	}
	pos, ok := c.index[idKey(id)]
	if !ok {
		return false, nil
	}
	c.docs[pos] = stored
	return true, nil
}

func (s *MemoryStore) Remove(ctx context.Context, collection string, spec docschema.Spec) ([]map[string]any, error) {
	preds, err := docschema.ParseSpec(spec)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.collection(collection, false)
	if c == nil {
		return nil, nil
	}
	var removed []map[string]any
	kept := c.docs[:0]
	for _, d := range c.docs {
		if matchesSpec(d, preds) {
			removed = append(removed, copyMapDeep(d))
			continue
		}
		kept = append(kept, d)
	}
	c.docs = kept
	c.reindex()
	return removed, nil
}

func (s *MemoryStore) Count(ctx context.Context, collection string, spec docschema.Spec) (int64, error) {
	preds, err := docschema.ParseSpec(spec)
	if err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := s.collection(collection, false)
	if c == nil {
		return 0, nil
	}
	var n int64
	for _, d := range c.docs {
		if matchesSpec(d, preds) {
			n++
		}
	}
	return n, nil
}

// Collections lists the names of non-empty collections.
func (s *MemoryStore) Collections() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.collections))
	for name, c := range s.collections {
		if len(c.docs) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// sortDocuments orders docs in place; missing and null values sort first
// in ascending order.
func sortDocuments(docs []map[string]any, fields []docschema.SortField) {
	if len(fields) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, f := range fields {
			a := getValueAtPath(docs[i], f.Field)
			b := getValueAtPath(docs[j], f.Field)
			c := orderValues(a, b)
			if c == 0 {
				continue
			}
			if f.Order == docschema.SortOrderDesc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func orderValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if c, ok := compareValues(a, b); ok {
		return c
	}
	return strings.Compare(fmt.Sprintf("%T", a), fmt.Sprintf("%T", b))
}

func pageDocuments(docs []map[string]any, skip, limit int) []map[string]any {
	if skip > 0 {
		if skip >= len(docs) {
			return nil
		}
		docs = docs[skip:]
	}
	if limit > 0 && limit < len(docs) {
		docs = docs[:limit]
	}
	return docs
}
