package docschema

import (
	"sort"
	"sync"
)

// ReferenceEdge records that a field of Source points at documents of Target.
type ReferenceEdge struct {
	Source   string
	Target   string
	Path     []string
	Required bool
	// Lists marks which path segments are lists of objects.
	Lists []bool
	// Many is set for a list of references.
	Many bool
}

// SchemaRegistry provides schema lookup operations.
// Implementations can load schemas from files, databases, or other sources.
type SchemaRegistry interface {
	// Register installs or replaces the schema of a collection.
	Register(name string, schema *Schema) error
	// Get returns the registered schema, with _id injected into every object node.
	Get(name string) (*Schema, error)
	// ListSchemas returns the registered collection names, sorted.
	ListSchemas() []string
	// Referrers returns the reference edges pointing at target, ordered by source.
	Referrers(target string) []ReferenceEdge
}

// FuncRegistry binds names to computed-field and allowed-value functions so
// that schemas loaded from definition files can refer to them.
type FuncRegistry struct {
	mu        sync.RWMutex
	computers map[string]Computer
	allowed   map[string]AllowedFunc
}

func NewFuncRegistry() *FuncRegistry {
	return &FuncRegistry{
		computers: make(map[string]Computer),
		allowed:   make(map[string]AllowedFunc),
	}
}

func (r *FuncRegistry) RegisterComputer(name string, c Computer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.computers[name] = c
}

func (r *FuncRegistry) RegisterComputeFunc(name string, fn func(n *Node) (any, error)) {
	r.RegisterComputer(name, ComputeFunc(fn))
}

func (r *FuncRegistry) RegisterAllowed(name string, fn AllowedFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.allowed[name] = fn
}

func (r *FuncRegistry) Computer(name string) (Computer, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.computers[name]
	return c, ok
}

func (r *FuncRegistry) Allowed(name string) (AllowedFunc, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.allowed[name]
	return fn, ok
}

// Names lists every bound function name, sorted.
func (r *FuncRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.computers)+len(r.allowed))
	for n := range r.computers {
		names = append(names, n)
	}
	for n := range r.allowed {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
