package memory

import (
	"sync"

	"wisp/internal/bytecode"
)

// Registry is the shared string↔IdentID table the loader resolves unit
// names against. Under REUSE_VAR_STRINGS a name already bound resolves to
// its existing id, for cross-unit name sharing. Under
// OVERRIDE_VAR_STRINGS the loader does not look the name up: it takes a
// Fresh id and rebinds the name to it.
type Registry struct {
	mu      sync.Mutex
	byName  map[string]bytecode.IdentID
	nextID  bytecode.IdentID
	hasNext bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]bytecode.IdentID)}
}

// Lookup returns the id bound to name, if any.
func (r *Registry) Lookup(name string) (bytecode.IdentID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byName[name]
	return id, ok
}

// Bind records that name now resolves to id. Rebinding an existing name
// to a different id is legal: it is exactly what OVERRIDE_VAR_STRINGS
// does when two units declare the same name.
func (r *Registry) Bind(name string, id bytecode.IdentID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[name] = id
	if !r.hasNext || id >= r.nextID {
		r.nextID = id + 1
		r.hasNext = true
	}
}

// Fresh returns an id not yet handed out by this registry and reserves
// it, so concurrent loads never collide.
func (r *Registry) Fresh() bytecode.IdentID {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.hasNext = true
	return id
}
