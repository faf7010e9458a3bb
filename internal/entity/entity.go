package entity

// Behavior names an optional capability an entity type can carry.
type Behavior string

const (
	BehaviorVersionable Behavior = "versionable"
	BehaviorVariantable Behavior = "variantable"
	BehaviorReviewable  Behavior = "reviewable"
	BehaviorTaggable    Behavior = "taggable"
	BehaviorFolderable  Behavior = "folderable"
)

// Definition is the schema description of an entity type. Core fields
// live as columns on the type's own table, everything else goes through
// dynamic metadata.
type Definition struct {
	Name       string
	TableName  string
	Behaviors  []Behavior
	CoreFields []string
}

// HasBehavior reports whether the type carries the given behavior.
func (d *Definition) HasBehavior(b Behavior) bool {
	for _, have := range d.Behaviors {
		if have == b {
			return true
		}
	}
	return false
}

// isCoreField reports whether the field is stored on the main table.
func (d *Definition) isCoreField(name string) bool {
	for _, f := range d.CoreFields {
		if f == name {
			return true
		}
	}
	return false
}

// Entity wraps a row of core data plus dynamically loaded metadata and
// tracks which fields changed since the last save.
type Entity struct {
	def     *Definition
	core    map[string]Value
	dynamic map[string]Value
	dirty   map[string]struct{}
}

// New creates an entity of the given type from core row data.
func New(def *Definition, core map[string]Value) *Entity {
	data := make(map[string]Value, len(core))
	for k, v := range core {
		data[k] = v
	}
	return &Entity{
		def:     def,
		core:    data,
		dynamic: make(map[string]Value),
		dirty:   make(map[string]struct{}),
	}
}

// Definition returns the entity's type definition.
func (e *Entity) Definition() *Definition { return e.def }

// Type returns the entity type name.
func (e *Entity) Type() string {
	if e.def == nil {
		return "unknown"
	}
	return e.def.Name
}

// UUID returns the entity identifier.
func (e *Entity) UUID() string {
	v, _ := e.Get("uuid")
	return v.Str()
}

// Get returns a field value, dynamic metadata taking precedence over
// core data.
func (e *Entity) Get(name string) (Value, bool) {
	if v, ok := e.dynamic[name]; ok {
		return v, true
	}
	v, ok := e.core[name]
	return v, ok
}

// GetString returns a field as a string, or the fallback when unset.
func (e *Entity) GetString(name, fallback string) string {
	v, ok := e.Get(name)
	if !ok {
		return fallback
	}
	return v.Text()
}

// GetInt returns a field as an integer, or the fallback when unset or
// not coercible.
func (e *Entity) GetInt(name string, fallback int64) int64 {
	v, ok := e.Get(name)
	if !ok {
		return fallback
	}
	coerced, err := v.Coerce(KindInt)
	if err != nil {
		return fallback
	}
	return coerced.Int()
}

// GetBool returns a field as a boolean, or the fallback when unset or
// not coercible.
func (e *Entity) GetBool(name string, fallback bool) bool {
	v, ok := e.Get(name)
	if !ok {
		return fallback
	}
	coerced, err := v.Coerce(KindBool)
	if err != nil {
		return fallback
	}
	return coerced.Bool()
}

// Set stores a field value, routing to core data or dynamic metadata
// based on the definition, and marks the field dirty.
func (e *Entity) Set(name string, v Value) {
	if e.def != nil && e.def.isCoreField(name) {
		e.core[name] = v
	} else {
		e.dynamic[name] = v
	}
	e.dirty[name] = struct{}{}
}

// Has reports whether the field has any value.
func (e *Entity) Has(name string) bool {
	_, inDynamic := e.dynamic[name]
	_, inCore := e.core[name]
	return inDynamic || inCore
}

// CoreData returns a copy of the core fields.
func (e *Entity) CoreData() map[string]Value {
	out := make(map[string]Value, len(e.core))
	if e.def == nil {
		for k, v := range e.core {
			out[k] = v
		}
		return out
	}
	for k, v := range e.core {
		if e.def.isCoreField(k) {
			out[k] = v
		}
	}
	return out
}

// DynamicData returns a copy of the dynamic metadata.
func (e *Entity) DynamicData() map[string]Value {
	out := make(map[string]Value, len(e.dynamic))
	for k, v := range e.dynamic {
		out[k] = v
	}
	return out
}

// Merged returns core data overlaid with dynamic metadata.
func (e *Entity) Merged() map[string]Value {
	out := make(map[string]Value, len(e.core)+len(e.dynamic))
	for k, v := range e.core {
		out[k] = v
	}
	for k, v := range e.dynamic {
		out[k] = v
	}
	return out
}

// IsDirty reports whether the entity has unsaved changes.
func (e *Entity) IsDirty() bool { return len(e.dirty) > 0 }

// DirtyFields returns the names of fields modified since the last save.
func (e *Entity) DirtyFields() []string {
	out := make([]string, 0, len(e.dirty))
	for name := range e.dirty {
		out = append(out, name)
	}
	return out
}

// MarkClean clears dirty state after a save.
func (e *Entity) MarkClean() {
	e.dirty = make(map[string]struct{})
}

// LoadDynamic merges metadata loaded from storage without marking the
// entity dirty.
func (e *Entity) LoadDynamic(metadata map[string]Value) {
	for k, v := range metadata {
		e.dynamic[k] = v
	}
}
