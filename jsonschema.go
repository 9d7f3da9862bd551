package docschema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
)

// definitionMetaSchema describes the JSON form of a collection schema.
// Nested "schema" members are checked level by level while parsing.
const definitionMetaSchema = `{
  "type": "object",
  "additionalProperties": {"$ref": "#/$defs/field"},
  "$defs": {
    "field": {
      "type": "object",
      "required": ["type"],
      "additionalProperties": false,
      "properties": {
        "type": {"enum": ["boolean", "integer", "float", "string", "datetime", "dict", "object", "list", "reference"]},
        "schema": {"type": "object"},
        "collection": {"type": "string", "minLength": 1},
        "fields": {"type": "array", "items": {"type": "string"}},
        "default": {},
        "auto": {"type": "string"},
        "auto_init": {"type": "string"},
        "serialize": {"type": "string"},
        "read_only": {"type": "boolean"},
        "required": {"type": "boolean"},
        "unique": {"type": "boolean"},
        "allowed": {"anyOf": [{"type": "array"}, {"type": "string"}]}
      }
    }
  }
}`

var (
	metaOnce     sync.Once
	metaResolved *jsonschema.Resolved
	metaErr      error
)

func definitionValidator() (*jsonschema.Resolved, error) {
	metaOnce.Do(func() {
		var schema jsonschema.Schema
		if err := json.Unmarshal([]byte(definitionMetaSchema), &schema); err != nil {
			metaErr = fmt.Errorf("failed to unmarshal definition meta schema: %w", err)
			return
		}
		metaResolved, metaErr = schema.Resolve(&jsonschema.ResolveOptions{})
		if metaErr != nil {
			metaErr = fmt.Errorf("failed to resolve definition meta schema: %w", metaErr)
		}
	})
	return metaResolved, metaErr
}

// ParseSchemaDefinition reads a collection schema written as JSON:
//
//	{
//	  "name":  {"type": "string", "required": true},
//	  "tags":  {"type": "list", "schema": {"type": "string"}},
//	  "posts": {"type": "list", "schema": {"type": "dict", "schema": {"title": {"type": "string"}}}},
//	  "owner": {"type": "reference", "collection": "users", "fields": ["name"]}
//	}
//
// Field order is preserved. For a dict "schema" holds the nested fields; for a
// list it holds the element description. Function behaviors (auto, auto_init,
// serialize, and allowed when given as a string) are names bound in funcs.
func ParseSchemaDefinition(data []byte, funcs *FuncRegistry) (*Schema, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	root, err := decodeOrdered(dec)
	if err != nil {
		return nil, fmt.Errorf("invalid schema definition: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("invalid schema definition: trailing data")
	}
	obj, ok := root.(*orderedObject)
	if !ok {
		return nil, fmt.Errorf("invalid schema definition: top level must be an object")
	}
	return parseFields(obj, funcs, "")
}

func parseFields(obj *orderedObject, funcs *FuncRegistry, path string) (*Schema, error) {
	validator, err := definitionValidator()
	if err != nil {
		return nil, err
	}
	if err := validator.Validate(obj.plain()); err != nil {
		where := path
		if where == "" {
			where = "<root>"
		}
		return nil, fmt.Errorf("%s: %w", where, err)
	}
	schema := NewSchema()
	for _, key := range obj.keys {
		field, err := parseField(obj.values[key].(*orderedObject), funcs, JoinPath(path, key))
		if err != nil {
			return nil, err
		}
		schema.Set(key, field)
	}
	return schema, nil
}

func parseField(obj *orderedObject, funcs *FuncRegistry, path string) (*Field, error) {
	typ, _ := obj.values["type"].(string)
	var field *Field
	nested, hasNested := obj.values["schema"].(*orderedObject)
	switch FieldType(typ) {
	case TypeDict, "object":
		if hasNested {
			s, err := parseFields(nested, funcs, path)
			if err != nil {
				return nil, err
			}
			field = Object(s)
		} else if typ == "object" {
			field = Object(NewSchema())
		} else {
			field = Dict()
		}
	case TypeList:
		var elem *Field
		if hasNested {
			e, err := parseElement(nested, funcs, path+"/[]")
			if err != nil {
				return nil, err
			}
			elem = e
		}
		field = List(elem)
	case TypeReference:
		coll, _ := obj.values["collection"].(string)
		if coll == "" {
			return nil, fmt.Errorf("%s: reference requires a collection", path)
		}
		field = Reference(coll)
	default:
		field = &Field{Type: FieldType(typ)}
	}

	if raw, ok := obj.values["fields"].([]any); ok {
		for _, f := range raw {
			field.Fields = append(field.Fields, f.(string))
		}
	}
	if v, ok := obj.values["default"]; ok {
		field.WithDefault(plainValue(v))
	}
	for _, b := range []struct {
		key  string
		slot **Hook
	}{
		{"auto", &field.Auto},
		{"auto_init", &field.AutoInit},
		{"serialize", &field.Serialize},
	} {
		name, ok := obj.values[b.key].(string)
		if !ok {
			continue
		}
		c, found := funcs.Computer(name)
		if !found {
			return nil, fmt.Errorf("%s: %s function %q is not registered", path, b.key, name)
		}
		*b.slot = NewHook(name, c)
	}
	field.ReadOnly, _ = obj.values["read_only"].(bool)
	field.Required, _ = obj.values["required"].(bool)
	field.Unique, _ = obj.values["unique"].(bool)
	switch a := obj.values["allowed"].(type) {
	case string:
		fn, found := funcs.Allowed(a)
		if !found {
			return nil, fmt.Errorf("%s: allowed function %q is not registered", path, a)
		}
		field.WithAllowedFunc(a, fn)
	case []any:
		field.WithAllowed(plainValue(a).([]any)...)
	}
	if err := field.Validate(path); err != nil {
		return nil, err
	}
	return field, nil
}

// parseElement reads the element description of a list, validating it as a
// one-field definition.
func parseElement(obj *orderedObject, funcs *FuncRegistry, path string) (*Field, error) {
	wrapper := &orderedObject{keys: []string{"[]"}, values: map[string]any{"[]": obj}}
	validator, err := definitionValidator()
	if err != nil {
		return nil, err
	}
	if err := validator.Validate(wrapper.plain()); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return parseField(obj, funcs, path)
}

type orderedObject struct {
	keys   []string
	values map[string]any
}

func (o *orderedObject) plain() map[string]any {
	out := make(map[string]any, len(o.keys))
	for _, k := range o.keys {
		out[k] = plainValue(o.values[k])
	}
	return out
}

// plainValue converts decoded values into the engine's native forms.
func plainValue(v any) any {
	switch val := v.(type) {
	case *orderedObject:
		return val.plain()
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = plainValue(item)
		}
		return out
	case json.Number:
		if !strings.ContainsAny(val.String(), ".eE") {
			if i, err := val.Int64(); err == nil {
				return i
			}
		}
		f, _ := val.Float64()
		return f
	default:
		return v
	}
}

func decodeOrdered(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			obj := &orderedObject{values: make(map[string]any)}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key := keyTok.(string)
				val, err := decodeOrdered(dec)
				if err != nil {
					return nil, err
				}
				if _, dup := obj.values[key]; !dup {
					obj.keys = append(obj.keys, key)
				}
				obj.values[key] = val
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return obj, nil
		case '[':
			arr := []any{}
			for dec.More() {
				val, err := decodeOrdered(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return arr, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %v", t)
	default:
		return tok, nil
	}
}
