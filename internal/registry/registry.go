// Package registry is the name -> constructor table used to instantiate a
// fresh game plugin when a new lobby is created.
package registry

import "gameforge/internal/plugin"

// Constructor builds a fresh, unstarted game state of one type.
type Constructor func() plugin.Game

// Registry is a read-only-after-setup name -> Constructor table.
// Registration happens before the runtime starts; nothing past that point
// mutates it, so lookups need no locking.
type Registry struct {
	games map[string]Constructor
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{games: make(map[string]Constructor)}
}

// Register adds a constructor under name, overwriting any previous entry.
func (r *Registry) Register(name string, ctor Constructor) {
	r.games[name] = ctor
}

// Build instantiates a fresh game state for name, or reports ok=false if no
// such type is registered.
func (r *Registry) Build(name string) (game plugin.Game, ok bool) {
	ctor, ok := r.games[name]
	if !ok {
		return nil, false
	}
	return ctor(), true
}

// Names returns every registered game type name, in no particular order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.games))
	for name := range r.games {
		names = append(names, name)
	}
	return names
}
