package internal

import (
	"sort"
	"strings"
	"sync"

	"github.com/lychee-technology/docschema"
)

// RelationIndex stores reference edges keyed by target collection.
type RelationIndex struct {
	mu       sync.RWMutex
	byTarget map[string][]docschema.ReferenceEdge
}

func NewRelationIndex() *RelationIndex {
	return &RelationIndex{byTarget: make(map[string][]docschema.ReferenceEdge)}
}

// Replace drops every edge recorded for source and records edges instead.
func (idx *RelationIndex) Replace(source string, edges []docschema.ReferenceEdge) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for target, list := range idx.byTarget {
		kept := list[:0]
		for _, e := range list {
			if e.Source != source {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			delete(idx.byTarget, target)
		} else {
			idx.byTarget[target] = kept
		}
	}
	for _, e := range edges {
		idx.byTarget[e.Target] = append(idx.byTarget[e.Target], e)
	}
	for target := range idx.byTarget {
		list := idx.byTarget[target]
		sort.SliceStable(list, func(i, j int) bool {
			if list[i].Source != list[j].Source {
				return list[i].Source < list[j].Source
			}
			return strings.Join(list[i].Path, ".") < strings.Join(list[j].Path, ".")
		})
	}
}

// Referrers returns a copy of the edges pointing at target.
func (idx *RelationIndex) Referrers(target string) []docschema.ReferenceEdge {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	list := idx.byTarget[target]
	out := make([]docschema.ReferenceEdge, len(list))
	copy(out, list)
	return out
}

// Targets lists every collection referenced by at least one schema.
func (idx *RelationIndex) Targets() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]string, 0, len(idx.byTarget))
	for t := range idx.byTarget {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// ReferenceEdges lists the reference fields of the schema registered as source.
func ReferenceEdges(source string, schema *docschema.Schema) []docschema.ReferenceEdge {
	return collectEdges(source, schema)
}

// collectEdges walks schema and records every reference field found in it.
func collectEdges(source string, schema *docschema.Schema) []docschema.ReferenceEdge {
	var edges []docschema.ReferenceEdge
	var walk func(s *docschema.Schema, path []string, lists []bool)
	walk = func(s *docschema.Schema, path []string, lists []bool) {
		for _, e := range s.Entries() {
			f := e.Field
			p := append(append([]string(nil), path...), e.Name)
			switch {
			case f.IsObject():
				walk(f.Schema, p, append(append([]bool(nil), lists...), false))
			case f.IsListOfObjects():
				walk(f.Elem.Schema, p, append(append([]bool(nil), lists...), true))
			case f.IsReference():
				edges = append(edges, docschema.ReferenceEdge{
					Source:   source,
					Target:   f.Collection,
					Path:     p,
					Lists:    append(append([]bool(nil), lists...), false),
					Required: f.Required,
				})
			case f.IsListOfReferences():
				edges = append(edges, docschema.ReferenceEdge{
					Source:   source,
					Target:   f.Elem.Collection,
					Path:     p,
					Lists:    append(append([]bool(nil), lists...), false),
					Required: f.Required,
					Many:     true,
				})
			}
		}
	}
	walk(schema, nil, nil)
	return edges
}
