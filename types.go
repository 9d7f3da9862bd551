package docschema

import (
	"fmt"
)

// FieldType is the discriminator of a schema node
type FieldType string

const (
	TypeBoolean   FieldType = "boolean"
	TypeInteger   FieldType = "integer"
	TypeFloat     FieldType = "float"
	TypeString    FieldType = "string"
	TypeDatetime  FieldType = "datetime"
	TypeDict      FieldType = "dict"
	TypeList      FieldType = "list"
	TypeReference FieldType = "reference"
)

// IDField is the identity key carried by every object-shaped document.
const IDField = "_id"

// Field describes one node of a document schema.
//
// An object is a dict with a nested Schema. A list carries its element
// description in Elem: a list of objects has an object Elem, a list of
// references has a reference Elem. Reference fields name their target
// Collection and the subset of target Fields embedded on expansion.
type Field struct {
	Type       FieldType `json:"type"`
	Schema     *Schema   `json:"schema,omitempty"`
	Elem       *Field    `json:"elem,omitempty"`
	Collection string    `json:"collection,omitempty"`
	Fields     []string  `json:"fields,omitempty"`

	Default    any  `json:"default,omitempty"`
	HasDefault bool `json:"-"`

	Auto      *Hook    `json:"auto,omitempty"`
	AutoInit  *Hook    `json:"auto_init,omitempty"`
	Serialize *Hook    `json:"serialize,omitempty"`
	ReadOnly  bool     `json:"read_only,omitempty"`
	Required  bool     `json:"required,omitempty"`
	Unique    bool     `json:"unique,omitempty"`
	Allowed   *Allowed `json:"allowed,omitempty"`
}

func Boolean() *Field  { return &Field{Type: TypeBoolean} }
func Integer() *Field  { return &Field{Type: TypeInteger} }
func Float() *Field    { return &Field{Type: TypeFloat} }
func String() *Field   { return &Field{Type: TypeString} }
func Datetime() *Field { return &Field{Type: TypeDatetime} }

// Dict is an untyped string-keyed mapping.
func Dict() *Field { return &Field{Type: TypeDict} }

// List is an ordered sequence. A nil elem leaves the elements untyped.
func List(elem *Field) *Field { return &Field{Type: TypeList, Elem: elem} }

// Object is a nested document described by s.
func Object(s *Schema) *Field {
	if s == nil {
		s = NewSchema()
	}
	return &Field{Type: TypeDict, Schema: s}
}

// ListOfObjects is an ordered sequence of nested documents described by s.
func ListOfObjects(s *Schema) *Field { return List(Object(s)) }

// Reference points at a document of collection, embedding fields on read.
func Reference(collection string, fields ...string) *Field {
	return &Field{Type: TypeReference, Collection: collection, Fields: fields}
}

// ListOfReferences is an ordered sequence of references to collection.
func ListOfReferences(collection string, fields ...string) *Field {
	return List(Reference(collection, fields...))
}

func (f *Field) WithDefault(v any) *Field {
	f.Default = v
	f.HasDefault = true
	return f
}

func (f *Field) WithAuto(name string, c Computer) *Field {
	f.Auto = NewHook(name, c)
	return f
}

func (f *Field) WithAutoInit(name string, c Computer) *Field {
	f.AutoInit = NewHook(name, c)
	return f
}

func (f *Field) WithSerialize(name string, c Computer) *Field {
	f.Serialize = NewHook(name, c)
	return f
}

func (f *Field) WithReadOnly() *Field {
	f.ReadOnly = true
	return f
}

func (f *Field) WithRequired() *Field {
	f.Required = true
	return f
}

func (f *Field) WithUnique() *Field {
	f.Unique = true
	return f
}

// WithAllowed restricts the field to a fixed set of values.
func (f *Field) WithAllowed(values ...any) *Field {
	f.Allowed = &Allowed{Values: values}
	return f
}

// WithAllowedFunc restricts the field to the set computed from the sibling document.
func (f *Field) WithAllowedFunc(name string, fn AllowedFunc) *Field {
	f.Allowed = &Allowed{Name: name, Func: fn}
	return f
}

// IsObject reports whether f is a dict with a nested schema.
func (f *Field) IsObject() bool {
	return f != nil && f.Type == TypeDict && f.Schema != nil
}

// IsListOfObjects reports whether f is a list whose elements are objects.
func (f *Field) IsListOfObjects() bool {
	return f != nil && f.Type == TypeList && f.Elem.IsObject()
}

// IsReference reports whether f is a singular reference.
func (f *Field) IsReference() bool {
	return f != nil && f.Type == TypeReference
}

// IsListOfReferences reports whether f is a list whose elements are references.
func (f *Field) IsListOfReferences() bool {
	return f != nil && f.Type == TypeList && f.Elem.IsReference()
}

// IsReadOnly reports whether incoming writes must never set f.
func (f *Field) IsReadOnly() bool {
	return f != nil && (f.ReadOnly || f.Auto != nil || f.AutoInit != nil || f.Serialize != nil)
}

// TypeName is the name used in conversion error messages.
func (f *Field) TypeName() string {
	switch {
	case f.IsListOfObjects():
		return "list of objects"
	case f.IsObject():
		return "object"
	case f.Type == TypeList && f.Elem != nil:
		return "list of " + string(f.Elem.Type) + "s"
	default:
		return string(f.Type)
	}
}

// Clone returns a deep copy of the field tree. Hooks and allowed functions are shared.
func (f *Field) Clone() *Field {
	if f == nil {
		return nil
	}
	c := *f
	c.Schema = f.Schema.Clone()
	c.Elem = f.Elem.Clone()
	if f.Fields != nil {
		c.Fields = append([]string(nil), f.Fields...)
	}
	if f.Allowed != nil {
		a := *f.Allowed
		a.Values = append([]any(nil), f.Allowed.Values...)
		c.Allowed = &a
	}
	return &c
}

// Validate reports shapes no document could satisfy.
func (f *Field) Validate(path string) error {
	switch f.Type {
	case TypeBoolean, TypeInteger, TypeFloat, TypeString, TypeDatetime:
	case TypeDict:
		if f.Schema != nil {
			if err := f.Schema.validate(path); err != nil {
				return err
			}
		}
	case TypeList:
		if f.Elem != nil {
			if f.Elem.Type == TypeList {
				return fmt.Errorf("%s: nested lists are not supported", path)
			}
			if err := f.Elem.Validate(path + "/[]"); err != nil {
				return err
			}
		}
	case TypeReference:
		if f.Collection == "" {
			return fmt.Errorf("%s: reference requires a collection", path)
		}
	default:
		return fmt.Errorf("%s: unknown field type '%s'", path, f.Type)
	}
	if f.Type != TypeReference && len(f.Fields) > 0 {
		return fmt.Errorf("%s: fields are only valid on references", path)
	}
	return nil
}

// SchemaEntry is one named field of a Schema.
type SchemaEntry struct {
	Name  string
	Field *Field
}

// F pairs a field name with its description.
func F(name string, field *Field) SchemaEntry {
	return SchemaEntry{Name: name, Field: field}
}

// Schema is an ordered collection of named fields.
type Schema struct {
	entries []SchemaEntry
	index   map[string]int
}

// NewSchema builds a schema preserving the declaration order of entries.
// A repeated name replaces the earlier declaration in place.
func NewSchema(entries ...SchemaEntry) *Schema {
	s := &Schema{index: make(map[string]int, len(entries))}
	for _, e := range entries {
		s.Set(e.Name, e.Field)
	}
	return s
}

// Field returns the named field, or nil.
func (s *Schema) Field(name string) *Field {
	if s == nil {
		return nil
	}
	i, ok := s.index[name]
	if !ok {
		return nil
	}
	return s.entries[i].Field
}

// Has reports whether name is declared.
func (s *Schema) Has(name string) bool {
	if s == nil {
		return false
	}
	_, ok := s.index[name]
	return ok
}

// Set declares or replaces a field.
func (s *Schema) Set(name string, field *Field) {
	if s.index == nil {
		s.index = make(map[string]int)
	}
	if i, ok := s.index[name]; ok {
		s.entries[i].Field = field
		return
	}
	s.index[name] = len(s.entries)
	s.entries = append(s.entries, SchemaEntry{Name: name, Field: field})
}

// Entries returns the fields in declaration order.
func (s *Schema) Entries() []SchemaEntry {
	if s == nil {
		return nil
	}
	out := make([]SchemaEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Names returns the field names in declaration order.
func (s *Schema) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, len(s.entries))
	for i, e := range s.entries {
		names[i] = e.Name
	}
	return names
}

func (s *Schema) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Clone returns a deep copy of the schema.
func (s *Schema) Clone() *Schema {
	if s == nil {
		return nil
	}
	c := &Schema{
		entries: make([]SchemaEntry, len(s.entries)),
		index:   make(map[string]int, len(s.index)),
	}
	for i, e := range s.entries {
		c.entries[i] = SchemaEntry{Name: e.Name, Field: e.Field.Clone()}
		c.index[e.Name] = i
	}
	return c
}

// Validate reports the first impossible shape found in the tree.
func (s *Schema) Validate() error {
	return s.validate("")
}

func (s *Schema) validate(path string) error {
	for _, e := range s.entries {
		if e.Field == nil {
			return fmt.Errorf("%s: field has no description", JoinPath(path, e.Name))
		}
		if err := e.Field.Validate(JoinPath(path, e.Name)); err != nil {
			return err
		}
	}
	return nil
}

// JoinPath appends key to a slash-separated document path.
func JoinPath(path string, key any) string {
	if path == "" {
		return fmt.Sprint(key)
	}
	return fmt.Sprintf("%s/%v", path, key)
}
