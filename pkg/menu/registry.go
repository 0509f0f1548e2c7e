package menu

import (
	"sort"
	"sync"

	"hermes/pkg/errors"
	"hermes/pkg/logger"
)

// Registry stores menu definitions by name. Definitions register exactly once;
// a duplicate name is a non-fatal warning and the registration is skipped.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]*Definition
	log  *logger.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		defs: make(map[string]*Definition),
		log:  log.With("component", "menu_registry"),
	}
}

// Register validates and stores a definition. An already-registered name is
// skipped with a warning; an invalid definition is rejected with a
// configuration error.
func (r *Registry) Register(def *Definition) error {
	if def == nil {
		return errors.Wrap(errors.ErrConfiguration, "nil menu definition")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.defs[def.Name]; exists {
		r.log.Warnw("Menu already registered, skipping", "menu", def.Name)
		return nil
	}

	if err := def.Validate(); err != nil {
		return err
	}

	r.defs[def.Name] = def
	r.log.Infow("Registered menu", "menu", def.Name, "kind", def.Kind, "actions", len(def.Actions))
	return nil
}

// RegisterAll registers a batch of definitions. A bad definition is logged and
// skipped rather than failing the whole batch, mirroring how file-discovered
// definitions are loaded one by one.
func (r *Registry) RegisterAll(defs ...*Definition) {
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			name := "<nil>"
			if def != nil {
				name = def.Name
			}
			r.log.Errorw("Failed to register menu", "menu", name, "error", err)
		}
	}
}

// Get returns a definition by name.
func (r *Registry) Get(name string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.defs[name]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "menu %q", name)
	}
	return def, nil
}

// Has reports whether a definition is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.defs[name]
	return ok
}

// All returns every registered definition.
func (r *Registry) All() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]*Definition, 0, len(r.defs))
	for _, def := range r.defs {
		defs = append(defs, def)
	}
	return defs
}

// Names returns the registered menu names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered definitions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs)
}

// Clear removes all definitions. Test isolation only.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs = make(map[string]*Definition)
}
