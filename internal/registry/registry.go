// Package registry holds the template registry: the mapping from
// case-insensitive element type identifiers to immutable template records.
package registry

import (
	"sort"
	"sync"
	"time"
)

// TemplateRegistry maps type identifiers to templates. Keys are unique and
// re-registration replaces the previous record.
type TemplateRegistry struct {
	templates map[string]*Template
	mutex     sync.RWMutex
	watchers  []chan TemplateEvent
}

// TemplateEvent represents a change in the registry.
type TemplateEvent struct {
	Type      EventType
	Template  *Template
	Timestamp time.Time
}

// EventType represents the type of registry event.
type EventType int

const (
	EventTypeAdded EventType = iota
	EventTypeUpdated
	EventTypeRemoved
)

// String returns the string representation of the EventType.
func (e EventType) String() string {
	switch e {
	case EventTypeAdded:
		return "added"
	case EventTypeUpdated:
		return "updated"
	case EventTypeRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// NewTemplateRegistry creates an empty registry.
func NewTemplateRegistry() *TemplateRegistry {
	return &TemplateRegistry{
		templates: make(map[string]*Template),
		watchers:  make([]chan TemplateEvent, 0),
	}
}

// Register adds or replaces the template for its type identifier and
// reports whether it was an addition or an update.
func (r *TemplateRegistry) Register(t *Template) EventType {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	eventType := EventTypeAdded
	if _, exists := r.templates[t.TypeID()]; exists {
		eventType = EventTypeUpdated
	}
	r.templates[t.TypeID()] = t

	r.notify(TemplateEvent{Type: eventType, Template: t, Timestamp: time.Now()})
	return eventType
}

// Lookup returns the template registered for typeID, case-insensitively.
func (r *TemplateRegistry) Lookup(typeID string) (*Template, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	t, exists := r.templates[Key(typeID)]
	return t, exists
}

// Contains reports whether typeID is registered.
func (r *TemplateRegistry) Contains(typeID string) bool {
	_, ok := r.Lookup(typeID)
	return ok
}

// All returns every template ordered by type identifier.
func (r *TemplateRegistry) All() []*Template {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	result := make([]*Template, 0, len(r.templates))
	for _, t := range r.templates {
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].TypeID() < result[j].TypeID() })
	return result
}

// Remove deletes the template for typeID. Elements already injected keep
// their content.
func (r *TemplateRegistry) Remove(typeID string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	key := Key(typeID)
	t, exists := r.templates[key]
	if !exists {
		return
	}
	delete(r.templates, key)

	r.notify(TemplateEvent{Type: EventTypeRemoved, Template: t, Timestamp: time.Now()})
}

// Count returns the number of registered templates.
func (r *TemplateRegistry) Count() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return len(r.templates)
}

// Watch returns a channel that receives registry events.
func (r *TemplateRegistry) Watch() <-chan TemplateEvent {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	ch := make(chan TemplateEvent, 100)
	r.watchers = append(r.watchers, ch)
	return ch
}

// UnWatch removes a watcher channel and closes it.
func (r *TemplateRegistry) UnWatch(ch <-chan TemplateEvent) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for i, watcher := range r.watchers {
		if watcher == ch {
			close(watcher)
			r.watchers = append(r.watchers[:i], r.watchers[i+1:]...)
			break
		}
	}
}

// notify must be called with the mutex held.
func (r *TemplateRegistry) notify(event TemplateEvent) {
	for _, watcher := range r.watchers {
		select {
		case watcher <- event:
		default:
			// Skip if channel is full
		}
	}
}
