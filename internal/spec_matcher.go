package internal

import (
	"strconv"

	"github.com/lychee-technology/docschema"
)

// resolvePath collects the values reachable by a dotted path. Arrays met
// along the way are traversed element-wise unless the next segment is a
// numeric index. found is false when no branch reaches the final key.
func resolvePath(value any, segments []string) (values []any, found bool) {
	if len(segments) == 0 {
		return []any{value}, true
	}
	switch v := value.(type) {
	case map[string]any:
		next, ok := v[segments[0]]
		if !ok {
			return nil, false
		}
		return resolvePath(next, segments[1:])
	case []any:
		if idx, err := strconv.Atoi(segments[0]); err == nil {
			if idx < 0 || idx >= len(v) {
				return nil, false
			}
			return resolvePath(v[idx], segments[1:])
		}
		for _, item := range v {
			vals, ok := resolvePath(item, segments)
			if ok {
				values = append(values, vals...)
				found = true
			}
		}
		return values, found
	}
	return nil, false
}

// expandArrays adds the elements of array values as candidates, so a
// condition on an array field matches when any element satisfies it.
func expandArrays(values []any) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		out = append(out, v)
		if items, ok := v.([]any); ok {
			out = append(out, items...)
		}
	}
	return out
}

// matchesSpec reports whether doc satisfies every predicate.
func matchesSpec(doc map[string]any, preds []docschema.Predicate) bool {
	for _, p := range preds {
		if !matchesPredicate(doc, p) {
			return false
		}
	}
	return true
}

func matchesPredicate(doc map[string]any, p docschema.Predicate) bool {
	values, found := resolvePath(doc, p.Segments())
	candidates := expandArrays(values)

	switch p.Op {
	case docschema.OpExists:
		want, _ := p.Value.(bool)
		return found == want
	case docschema.OpEq:
		return matchesEquality(found, candidates, p.Value)
	case docschema.OpNe:
		return !matchesEquality(found, candidates, p.Value)
	case docschema.OpIn:
		list, _ := p.Value.([]any)
		for _, item := range list {
			if matchesEquality(found, candidates, item) {
				return true
			}
		}
		return false
	case docschema.OpNin:
		list, _ := p.Value.([]any)
		for _, item := range list {
			if matchesEquality(found, candidates, item) {
				return false
			}
		}
		return true
	case docschema.OpGt, docschema.OpGte, docschema.OpLt, docschema.OpLte:
		for _, c := range candidates {
			cmpResult, ok := compareValues(c, p.Value)
			if !ok {
				continue
			}
			switch p.Op {
			case docschema.OpGt:
				if cmpResult > 0 {
					return true
				}
			case docschema.OpGte:
				if cmpResult >= 0 {
					return true
				}
			case docschema.OpLt:
				if cmpResult < 0 {
					return true
				}
			case docschema.OpLte:
				if cmpResult <= 0 {
					return true
				}
			}
		}
		return false
	}
	return false
}

// matchesEquality treats a null literal as matching missing fields too.
func matchesEquality(found bool, candidates []any, want any) bool {
	if want == nil {
		if !found {
			return true
		}
		for _, c := range candidates {
			if c == nil {
				return true
			}
		}
		return false
	}
	for _, c := range candidates {
		if valuesEqual(c, want) {
			return true
		}
	}
	return false
}
