package docschema

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Spec is a document query: dotted field paths mapped to a literal
// (equality) or to an operator map such as {"$gt": 3}.
type Spec map[string]any

// Operator is a comparison understood by every DocumentStore.
type Operator string

const (
	OpEq     Operator = "$eq"
	OpNe     Operator = "$ne"
	OpIn     Operator = "$in"
	OpNin    Operator = "$nin"
	OpGt     Operator = "$gt"
	OpGte    Operator = "$gte"
	OpLt     Operator = "$lt"
	OpLte    Operator = "$lte"
	OpExists Operator = "$exists"
)

var knownOperators = map[Operator]bool{
	OpEq: true, OpNe: true, OpIn: true, OpNin: true,
	OpGt: true, OpGte: true, OpLt: true, OpLte: true, OpExists: true,
}

// Predicate is one parsed condition of a Spec.
type Predicate struct {
	Path  string
	Op    Operator
	Value any
}

// Segments splits the dotted path.
func (p Predicate) Segments() []string {
	return strings.Split(p.Path, ".")
}

// IDSpec matches the document with the given top-level identity.
func IDSpec(id any) Spec {
	return Spec{IDField: id}
}

// SpecOrID turns a Spec, a plain map or a bare identity into a Spec.
func SpecOrID(v any) Spec {
	switch s := v.(type) {
	case nil:
		return Spec{}
	case Spec:
		return s
	case map[string]any:
		return Spec(s)
	default:
		return IDSpec(v)
	}
}

// ParseSpec flattens a Spec into predicates ordered by path and operator.
func ParseSpec(spec Spec) ([]Predicate, error) {
	preds := make([]Predicate, 0, len(spec))
	for path, raw := range spec {
		if path == "" {
			return nil, fmt.Errorf("empty field path in query")
		}
		ops, isOps, err := operatorMap(raw)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", path, err)
		}
		if !isOps {
			preds = append(preds, Predicate{Path: path, Op: OpEq, Value: raw})
			continue
		}
		for op, val := range ops {
			switch op {
			case OpIn, OpNin:
				list, ok := toList(val)
				if !ok {
					return nil, fmt.Errorf("field %s: %s requires an array", path, op)
				}
				val = list
			case OpExists:
				if _, ok := val.(bool); !ok {
					return nil, fmt.Errorf("field %s: %s requires a boolean", path, op)
				}
			}
			preds = append(preds, Predicate{Path: path, Op: op, Value: val})
		}
	}
	sort.Slice(preds, func(i, j int) bool {
		if preds[i].Path != preds[j].Path {
			return preds[i].Path < preds[j].Path
		}
		return preds[i].Op < preds[j].Op
	})
	return preds, nil
}

// operatorMap reports whether raw is a map made only of operators.
func operatorMap(raw any) (map[Operator]any, bool, error) {
	var m map[string]any
	switch v := raw.(type) {
	case map[string]any:
		m = v
	case Spec:
		m = v
	default:
		return nil, false, nil
	}
	if len(m) == 0 {
		return nil, false, nil
	}
	dollar := 0
	for k := range m {
		if strings.HasPrefix(k, "$") {
			dollar++
		}
	}
	if dollar == 0 {
		return nil, false, nil
	}
	if dollar != len(m) {
		return nil, false, fmt.Errorf("cannot mix operators and fields")
	}
	ops := make(map[Operator]any, len(m))
	for k, v := range m {
		op := Operator(k)
		if !knownOperators[op] {
			return nil, false, fmt.Errorf("unsupported operator %s", k)
		}
		ops[op] = v
	}
	return ops, true, nil
}

func toList(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	if l, ok := v.([]any); ok {
		return l, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
