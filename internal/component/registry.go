package component

import (
	"fmt"
	"sort"
)

// Registry maps kind identifiers to their descriptions.
type Registry struct {
	kinds map[string]*Kind
}

// NewRegistry returns a registry holding the given kinds.
func NewRegistry(kinds ...*Kind) (*Registry, error) {
	r := &Registry{kinds: make(map[string]*Kind, len(kinds))}
	for _, k := range kinds {
		if err := r.Register(k); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Default returns a fresh registry with the built-in kinds.
func Default() *Registry {
	r, err := NewRegistry(builtinKinds()...)
	if err != nil {
		panic(fmt.Sprintf("internal error: builtin kinds: %v", err))
	}
	return r
}

// Register adds a kind. Registering the same name twice fails.
func (r *Registry) Register(k *Kind) error {
	if err := k.check(); err != nil {
		return err
	}
	if _, exists := r.kinds[k.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateKind, k.Name)
	}
	r.kinds[k.Name] = k
	return nil
}

// Lookup returns the kind registered under name.
func (r *Registry) Lookup(name string) (*Kind, error) {
	k, ok := r.kinds[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, name)
	}
	return k, nil
}

// Kinds returns the registered kind names in sorted order.
func (r *Registry) Kinds() []string {
	names := make([]string, 0, len(r.kinds))
	for name := range r.kinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New resolves kind in the registry and creates a component of it.
func (r *Registry) New(name, kind string, params Params) (*Component, error) {
	k, err := r.Lookup(kind)
	if err != nil {
		return nil, fmt.Errorf("component %s: %w", name, err)
	}
	return New(name, k, params)
}
