package entity

import (
	"fmt"
	"sync"
)

// Registry holds entity type definitions and answers behavior queries.
// Safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]*Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*Definition)}
}

// Register adds or replaces a definition.
func (r *Registry) Register(def *Definition) error {
	if def == nil || def.Name == "" {
		return fmt.Errorf("entity definition requires a name")
	}
	if def.TableName == "" {
		return fmt.Errorf("entity definition %q requires a table name", def.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[def.Name] = def
	return nil
}

// Unregister removes a definition, reporting whether it existed.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.defs[name]; !ok {
		return false
	}
	delete(r.defs, name)
	return true
}

// Definition returns the definition for a type name.
func (r *Registry) Definition(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[name]
	return def, ok
}

// IsRegistered reports whether a type name is known.
func (r *Registry) IsRegistered(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.defs[name]
	return ok
}

// Types returns all registered type names.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.defs))
	for name := range r.defs {
		out = append(out, name)
	}
	return out
}

// TypesWithBehavior returns the names of all types carrying a behavior.
func (r *Registry) TypesWithBehavior(b Behavior) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for name, def := range r.defs {
		if def.HasBehavior(b) {
			out = append(out, name)
		}
	}
	return out
}

// New creates an entity of a registered type from core data.
func (r *Registry) New(typeName string, core map[string]Value) (*Entity, error) {
	def, ok := r.Definition(typeName)
	if !ok {
		return nil, fmt.Errorf("unknown entity type %q", typeName)
	}
	return New(def, core), nil
}
