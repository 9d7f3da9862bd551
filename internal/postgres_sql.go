package internal

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
	"github.com/lychee-technology/docschema"
)

// sqlBuilder accumulates positional arguments for one statement.
type sqlBuilder struct {
	args []any
}

func (b *sqlBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

func quoteTable(table string) string {
	return pq.QuoteIdentifier(table)
}

// jsonPath renders a dotted field path as an SQL/JSON path. Numeric
// segments become array subscripts; everything else is a quoted member.
func jsonPath(segments []string) string {
	var sb strings.Builder
	sb.WriteString("$")
	for _, seg := range segments {
		if _, err := strconv.Atoi(seg); err == nil {
			sb.WriteString("[" + seg + "]")
			continue
		}
		sb.WriteString(`."`)
		sb.WriteString(strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(seg))
		sb.WriteString(`"`)
	}
	return sb.String()
}

// whereClause compiles predicates into a conjunction over the body column.
// Lax-mode paths unwrap arrays, which gives array fields their any-element
// semantics.
func (b *sqlBuilder) whereClause(preds []docschema.Predicate) (string, error) {
	if len(preds) == 0 {
		return "TRUE", nil
	}
	parts := make([]string, 0, len(preds))
	for _, p := range preds {
		clause, err := b.predicate(p)
		if err != nil {
			return "", err
		}
		parts = append(parts, clause)
	}
	return strings.Join(parts, " AND "), nil
}

func (b *sqlBuilder) predicate(p docschema.Predicate) (string, error) {
	path := jsonPath(p.Segments())
	switch p.Op {
	case docschema.OpExists:
		exists := fmt.Sprintf("jsonb_path_exists(body, %s::jsonpath)", b.arg(path))
		if want, _ := p.Value.(bool); want {
			return exists, nil
		}
		return "NOT " + exists, nil
	case docschema.OpEq:
		return b.equality(p, path, p.Value)
	case docschema.OpNe:
		eq, err := b.equality(p, path, p.Value)
		if err != nil {
			return "", err
		}
		return "NOT " + eq, nil
	case docschema.OpIn, docschema.OpNin:
		list, _ := p.Value.([]any)
		if len(list) == 0 {
			if p.Op == docschema.OpIn {
				return "FALSE", nil
			}
			return "TRUE", nil
		}
		alts := make([]string, 0, len(list))
		for _, item := range list {
			eq, err := b.equality(p, path, item)
			if err != nil {
				return "", err
			}
			alts = append(alts, eq)
		}
		in := "(" + strings.Join(alts, " OR ") + ")"
		if p.Op == docschema.OpNin {
			return "NOT " + in, nil
		}
		return in, nil
	case docschema.OpGt, docschema.OpGte, docschema.OpLt, docschema.OpLte:
		return b.comparison(path, comparisonOperators[p.Op], p.Value)
	}
	return "", fmt.Errorf("unsupported operator %s", p.Op)
}

var comparisonOperators = map[docschema.Operator]string{
	docschema.OpEq:  "==",
	docschema.OpGt:  ">",
	docschema.OpGte: ">=",
	docschema.OpLt:  "<",
	docschema.OpLte: "<=",
}

// equality matches a value, or for null also a missing field. Composite
// values are compared as whole JSON documents at the path.
func (b *sqlBuilder) equality(p docschema.Predicate, path string, value any) (string, error) {
	value = storableValue(normalizeValue(value))
	switch value.(type) {
	case nil:
		return fmt.Sprintf("(NOT jsonb_path_exists(body, %s::jsonpath) OR jsonb_path_exists(body, %s::jsonpath))",
			b.arg(path), b.arg(path+" ? (@ == null)")), nil
	case map[string]any, []any:
		encoded, err := json.Marshal(value)
		if err != nil {
			return "", fmt.Errorf("failed to encode query value for %s: %w", p.Path, err)
		}
		return fmt.Sprintf("body #> %s::text[] = %s::jsonb", b.arg(p.Segments()), b.arg(string(encoded))), nil
	}
	return b.comparison(path, "==", value)
}

func (b *sqlBuilder) comparison(path, op string, value any) (string, error) {
	vars, err := json.Marshal(map[string]any{"v": storableValue(normalizeValue(value))})
	if err != nil {
		return "", fmt.Errorf("failed to encode query value: %w", err)
	}
	return fmt.Sprintf("jsonb_path_exists(body, %s::jsonpath, %s::jsonb)",
		b.arg(path+" ? (@ "+op+" $v)"), b.arg(string(vars))), nil
}

// orderClause sorts by JSON values at the given paths. Missing values come
// first ascending and last descending; insertion order breaks ties.
func (b *sqlBuilder) orderClause(fields []docschema.SortField) string {
	parts := make([]string, 0, len(fields)+1)
	for _, f := range fields {
		dir := "ASC NULLS FIRST"
		if f.Order == docschema.SortOrderDesc {
			dir = "DESC NULLS LAST"
		}
		parts = append(parts, fmt.Sprintf("body #> %s::text[] %s", b.arg(strings.Split(f.Field, ".")), dir))
	}
	parts = append(parts, "seq ASC")
	return strings.Join(parts, ", ")
}

func buildFindStatement(table, collection string, preds []docschema.Predicate, opts docschema.FindOptions) (string, []any, error) {
	b := &sqlBuilder{}
	coll := b.arg(collection)
	where, err := b.whereClause(preds)
	if err != nil {
		return "", nil, err
	}
	query := fmt.Sprintf("SELECT body FROM %s WHERE collection = %s AND %s ORDER BY %s",
		quoteTable(table), coll, where, b.orderClause(opts.Sort))
	if opts.Limit > 0 {
		query += " LIMIT " + b.arg(opts.Limit)
	}
	if opts.Skip > 0 {
		query += " OFFSET " + b.arg(opts.Skip)
	}
	return query, b.args, nil
}

func buildCountStatement(table, collection string, preds []docschema.Predicate) (string, []any, error) {
	b := &sqlBuilder{}
	coll := b.arg(collection)
	where, err := b.whereClause(preds)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("SELECT count(*) FROM %s WHERE collection = %s AND %s", quoteTable(table), coll, where), b.args, nil
}

func buildRemoveStatement(table, collection string, preds []docschema.Predicate) (string, []any, error) {
	b := &sqlBuilder{}
	coll := b.arg(collection)
	where, err := b.whereClause(preds)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("DELETE FROM %s WHERE collection = %s AND %s RETURNING body", quoteTable(table), coll, where), b.args, nil
}

func buildInsertStatement(table string) string {
	return fmt.Sprintf("INSERT INTO %s (collection, doc_id, body) VALUES ($1, $2, $3::jsonb)", quoteTable(table))
}

func buildUpdateStatement(table string) string {
	return fmt.Sprintf("UPDATE %s SET body = $3::jsonb WHERE collection = $1 AND doc_id = $2", quoteTable(table))
}

// DocumentTableDDL returns the statements creating the document table and
// its indexes.
func DocumentTableDDL(table string) []string {
	quoted := quoteTable(table)
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	collection TEXT NOT NULL,
	doc_id TEXT NOT NULL,
	seq BIGSERIAL NOT NULL,
	body JSONB NOT NULL,
	PRIMARY KEY (collection, doc_id)
)`, quoted),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (collection, seq)", pq.QuoteIdentifier(table+"_collection_seq_idx"), quoted),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING GIN (body jsonb_path_ops)", pq.QuoteIdentifier(table+"_body_gin_idx"), quoted),
	}
}
