// Package elements is the component registry: the name to definition table
// that decides which element types are upgraded and with what behavior.
// Names are unique; defining a name twice is an error.
package elements

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/conneroisu/shroot/internal/behavior"
	"github.com/conneroisu/shroot/internal/dom"
	"github.com/conneroisu/shroot/internal/registry"
)

var (
	// ErrAlreadyDefined is returned when a name is defined twice.
	ErrAlreadyDefined = errors.New("elements: name already defined")
	// ErrInvalidName is returned for names that are not valid custom
	// element names.
	ErrInvalidName = errors.New("elements: invalid custom element name")
	// ErrNotDefined is returned when upgrading an unknown name.
	ErrNotDefined = errors.New("elements: name not defined")
)

// Definition is what a defined name resolves to.
type Definition struct {
	Name     string
	Behavior behavior.Behavior
	// Version increments every time Upgrade swaps the behavior.
	Version int
	Defined time.Time
}

// Registry holds element definitions.
type Registry struct {
	definitions map[string]*Definition
	waiters     map[string]chan struct{}
	mutex       sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		definitions: make(map[string]*Definition),
		waiters:     make(map[string]chan struct{}),
	}
}

// ValidName reports whether name may be defined.
func ValidName(name string) bool {
	return dom.IsCustomElementName(registry.Key(name))
}

// Define registers b under name. It fails for invalid and duplicate names.
func (r *Registry) Define(name string, b behavior.Behavior) error {
	key := registry.Key(name)
	if !dom.IsCustomElementName(key) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.definitions[key]; exists {
		return fmt.Errorf("%w: %q", ErrAlreadyDefined, key)
	}
	r.definitions[key] = &Definition{
		Name:     key,
		Behavior: b,
		Version:  1,
		Defined:  time.Now(),
	}

	if ch, ok := r.waiters[key]; ok {
		close(ch)
		delete(r.waiters, key)
	}
	return nil
}

// Get returns a copy of the definition for name.
func (r *Registry) Get(name string) (Definition, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	def, ok := r.definitions[registry.Key(name)]
	if !ok {
		return Definition{}, false
	}
	return *def, true
}

// IsDefined reports whether name has a definition.
func (r *Registry) IsDefined(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// WhenDefined returns a channel that is closed once name is defined. For a
// name already defined the channel is closed on return.
func (r *Registry) WhenDefined(name string) <-chan struct{} {
	key := registry.Key(name)

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, ok := r.definitions[key]; ok {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	ch, ok := r.waiters[key]
	if !ok {
		ch = make(chan struct{})
		r.waiters[key] = ch
	}
	return ch
}

// Upgrade swaps the behavior of an existing definition and returns the
// updated definition.
func (r *Registry) Upgrade(name string, b behavior.Behavior) (Definition, error) {
	key := registry.Key(name)

	r.mutex.Lock()
	defer r.mutex.Unlock()

	def, ok := r.definitions[key]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", ErrNotDefined, key)
	}
	def.Behavior = b
	def.Version++
	return *def, nil
}

// Names returns every defined name in order.
func (r *Registry) Names() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	names := make([]string, 0, len(r.definitions))
	for name := range r.definitions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of definitions.
func (r *Registry) Count() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.definitions)
}
