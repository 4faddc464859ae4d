// Package matcher decides whether a freshly inserted element is an instance
// of a registered component type.
//
// Every inserted element is checked once per insertion. An element whose
// type is not registered at that moment is not remembered; it is only
// matched later if a full scan (catch-up) or a new insertion reports it
// again.
package matcher

import (
	"github.com/conneroisu/shroot/internal/dom"
	"github.com/conneroisu/shroot/internal/registry"
	"golang.org/x/net/html"
)

// Outcome is the result of a match attempt.
type Outcome int

const (
	// Unmatched means the node is not an instance of any known type.
	Unmatched Outcome = iota
	// Matched means the node should be injected with the returned template.
	Matched
	// Deferred means the node's type is waiting for its behavior and the
	// node was queued until Resolve or Abandon.
	Deferred
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case Matched:
		return "matched"
	case Deferred:
		return "deferred"
	default:
		return "unmatched"
	}
}

// Ownership tells the matcher which nodes belong to the engine itself.
type Ownership interface {
	// Owns reports whether n was created by the injector.
	Owns(n *html.Node) bool
}

// Matcher looks inserted elements up in the template registry.
type Matcher struct {
	templates *registry.TemplateRegistry
	owner     Ownership
	pending   map[string][]*html.Node
}

// New creates a matcher over templates. owner may be nil.
func New(templates *registry.TemplateRegistry, owner Ownership) *Matcher {
	return &Matcher{
		templates: templates,
		owner:     owner,
		pending:   make(map[string][]*html.Node),
	}
}

// Match checks one inserted node.
func (m *Matcher) Match(n *html.Node) (*registry.Template, Outcome) {
	if n == nil || n.Type != html.ElementNode {
		return nil, Unmatched
	}
	if m.owner != nil && m.owner.Owns(n) {
		return nil, Unmatched
	}

	key := registry.Key(dom.TagName(n))
	if queue, waiting := m.pending[key]; waiting {
		for _, q := range queue {
			if q == n {
				return nil, Deferred
			}
		}
		m.pending[key] = append(queue, n)
		return nil, Deferred
	}

	t, ok := m.templates.Lookup(key)
	if !ok {
		return nil, Unmatched
	}
	return t, Matched
}

// Defer marks typeID as waiting for its behavior. Instances matched in the
// meantime are queued.
func (m *Matcher) Defer(typeID string) {
	key := registry.Key(typeID)
	if _, ok := m.pending[key]; !ok {
		m.pending[key] = nil
	}
}

// IsPending reports whether typeID is waiting.
func (m *Matcher) IsPending(typeID string) bool {
	_, ok := m.pending[registry.Key(typeID)]
	return ok
}

// Pending returns the number of types waiting.
func (m *Matcher) Pending() int {
	return len(m.pending)
}

// Resolve ends the wait for typeID and returns the queued instances in the
// order they were matched.
func (m *Matcher) Resolve(typeID string) []*html.Node {
	key := registry.Key(typeID)
	queue := m.pending[key]
	delete(m.pending, key)
	return queue
}

// Abandon ends the wait for typeID and drops the queued instances. It
// returns how many were dropped.
func (m *Matcher) Abandon(typeID string) int {
	return len(m.Resolve(typeID))
}

// Candidates returns the elements under root, root included, in document
// order, skipping template contents and nodes owned by the engine.
func (m *Matcher) Candidates(root *html.Node) []*html.Node {
	var out []*html.Node
	dom.WalkElements(root, func(n *html.Node) {
		if m.owner != nil && m.owner.Owns(n) {
			return
		}
		out = append(out, n)
	})
	return out
}
