package internal

import (
	"sort"
	"strings"

	"github.com/lychee-technology/docschema"
)

// ProjectDocument copies the requested dotted fields of doc. _id is always
// kept. Paths through lists of objects are applied to every element. An
// empty field list returns nil, meaning no projection.
func ProjectDocument(doc map[string]any, fields []string) map[string]any {
	if len(fields) == 0 || doc == nil {
		return nil
	}
	tree := projectionTree(fields)
	tree[docschema.IDField] = nil
	return projectMap(doc, tree)
}

type projectionNode map[string]projectionNode

func projectionTree(fields []string) projectionNode {
	root := projectionNode{}
	sorted := append([]string(nil), fields...)
	sort.Strings(sorted)
	for _, field := range sorted {
		if field == "" {
			continue
		}
		cur := root
		segments := strings.Split(field, ".")
		for i, seg := range segments {
			child, exists := cur[seg]
			if exists && child == nil {
				// an ancestor is already projected whole
				break
			}
			if i == len(segments)-1 {
				cur[seg] = nil
				break
			}
			if child == nil {
				child = projectionNode{}
				cur[seg] = child
			}
			cur = child
		}
	}
	return root
}

func projectMap(doc map[string]any, tree projectionNode) map[string]any {
	out := make(map[string]any, len(tree))
	for key, sub := range tree {
		val, ok := doc[key]
		if !ok {
			continue
		}
		if sub == nil {
			out[key] = deepCopyValue(val)
			continue
		}
		if projected, keep := projectValue(val, sub); keep {
			out[key] = projected
		}
	}
	return out
}

func projectValue(val any, tree projectionNode) (any, bool) {
	switch v := val.(type) {
	case map[string]any:
		sub := projectionNode{docschema.IDField: nil}
		for k, n := range tree {
			sub[k] = n
		}
		return projectMap(v, sub), true
	case []any:
		out := make([]any, 0, len(v))
		for _, item := range v {
			if projected, keep := projectValue(item, tree); keep {
				out = append(out, projected)
			}
		}
		return out, true
	case *docschema.Ref:
		return deepCopyValue(v), true
	}
	return nil, false
}
