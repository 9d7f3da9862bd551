package docschema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Node is the view of a document handed to computed fields. It links a
// document to the enclosing document for parent and root lookups; the
// link is lookup-only and never part of the stored tree.
type Node struct {
	Data   map[string]any
	parent *Node
}

// NewNode wraps data with an optional parent.
func NewNode(data map[string]any, parent *Node) *Node {
	return &Node{Data: data, parent: parent}
}

// Parent returns the enclosing document, or nil at the top level. The
// parent of an item of a list of objects is the document owning the list.
func (n *Node) Parent() *Node {
	if n == nil {
		return nil
	}
	return n.parent
}

// Root returns the top-level document.
func (n *Node) Root() *Node {
	cur := n
	for cur != nil && cur.parent != nil {
		cur = cur.parent
	}
	return cur
}

// Child wraps a nested document under n.
func (n *Node) Child(data map[string]any) *Node {
	return &Node{Data: data, parent: n}
}

// Get returns the value stored under key.
func (n *Node) Get(key string) any {
	if n == nil || n.Data == nil {
		return nil
	}
	return n.Data[key]
}

// String returns the value under key formatted as text, or "" when absent.
func (n *Node) String(key string) string {
	v := n.Get(key)
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Int returns the value under key as an integer.
func (n *Node) Int(key string) (int64, bool) {
	switch v := n.Get(key).(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	}
	return 0, false
}

// ID returns the document identity, or nil before assignment.
func (n *Node) ID() any {
	return n.Get(IDField)
}

// Computer produces the value of a computed field from the document it belongs to.
type Computer interface {
	Compute(n *Node) (any, error)
}

// ComputeFunc adapts a function to Computer.
type ComputeFunc func(n *Node) (any, error)

func (f ComputeFunc) Compute(n *Node) (any, error) {
	return f(n)
}

// Hook is a named computed-field function attached to a schema field.
type Hook struct {
	Name     string
	Computer Computer
}

func NewHook(name string, c Computer) *Hook {
	return &Hook{Name: name, Computer: c}
}

func (h *Hook) Run(n *Node) (any, error) {
	if h == nil || h.Computer == nil {
		return nil, fmt.Errorf("hook %q has no function bound", h.name())
	}
	return h.Computer.Compute(n)
}

func (h *Hook) name() string {
	if h == nil {
		return ""
	}
	return h.Name
}

func (h *Hook) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.Name)
}

// AllowedFunc computes the permitted values from the sibling document.
type AllowedFunc func(n *Node) []any

// Allowed is either a fixed value set or a named function producing one.
type Allowed struct {
	Values []any
	Name   string
	Func   AllowedFunc
}

// Resolve returns the permitted values for the document n.
func (a *Allowed) Resolve(n *Node) []any {
	if a == nil {
		return nil
	}
	if a.Func != nil {
		return a.Func(n)
	}
	return a.Values
}

func (a *Allowed) MarshalJSON() ([]byte, error) {
	if a.Func != nil || a.Name != "" {
		return json.Marshal(a.Name)
	}
	return json.Marshal(a.Values)
}

// MarshalJSON writes the schema as an object in declaration order.
func (s *Schema) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range s.entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(e.Field)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Ref is the read form of a reference field: the embedded subset of
// the target document, or a not-found marker when the target is gone.
type Ref struct {
	ID         any
	Collection string
	Data       map[string]any
	Schema     *Schema
	Missing    bool
}

// NotFoundMessage is the marker serialized for a dangling reference.
const NotFoundMessage = "reference not found"

// Record is a document returned by a read. View holds the projected copy
// when the read asked for specific fields.
type Record struct {
	Collection string
	Data       map[string]any
	View       map[string]any
	Fields     []string
}

// ID returns the top-level identity of the record.
func (r *Record) ID() any {
	if r == nil || r.Data == nil {
		return nil
	}
	return r.Data[IDField]
}

// Visible returns the projected view if one was requested, else the full document.
func (r *Record) Visible() map[string]any {
	if r.View != nil {
		return r.View
	}
	return r.Data
}

// History actions
const (
	ActionCreated        = "document created"
	ActionRemoved        = "document removed"
	ActionFieldAdded     = "field added"
	ActionFieldRemoved   = "field removed"
	ActionArrayReordered = "array reordered"
)

// Change is one entry of an update diff: a single path mapped either to
// the previous value or to an action descriptor.
type Change map[string]any

// HistoryEntry is one audit record per successful insert, update or remove.
type HistoryEntry struct {
	ID         string    `json:"_id"`
	Collection string    `json:"collection"`
	DocumentID any       `json:"id"`
	Time       time.Time `json:"time"`
	Username   *string   `json:"username"`
	Action     string    `json:"action,omitempty"`
	Data       any       `json:"data,omitempty"`
	Changes    []Change  `json:"changes,omitempty"`
}

// WriteOptions carries per-call write settings.
type WriteOptions struct {
	Username string
	// Direct skips datatype enforcement and behavior validation.
	Direct bool
}
