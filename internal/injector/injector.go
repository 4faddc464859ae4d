// Package injector attaches a component's rendering scope to an element and
// fills it with a fresh copy of the template content.
package injector

import (
	"github.com/conneroisu/shroot/internal/dom"
	shrooterrors "github.com/conneroisu/shroot/internal/errors"
	"github.com/conneroisu/shroot/internal/registry"
	"golang.org/x/net/html"
)

// Injector injects templates into elements of one document. Each element
// is injected at most once; the marker is set before the tree is touched
// and stays set even when injection fails.
type Injector struct {
	doc      *dom.Document
	injected map[*html.Node]string
	owned    map[*html.Node]struct{}
	byType   map[string][]*html.Node
}

// New creates an injector for doc.
func New(doc *dom.Document) *Injector {
	return &Injector{
		doc:      doc,
		injected: make(map[*html.Node]string),
		owned:    make(map[*html.Node]struct{}),
		byType:   make(map[string][]*html.Node),
	}
}

// Inject attaches t to el. It returns false without error when el was
// already injected. Templates without a rendering scope only mark el.
func (i *Injector) Inject(el *html.Node, t *registry.Template) (bool, error) {
	if el == nil || el.Type != html.ElementNode || t == nil {
		return false, shrooterrors.NewInjectionError(shrooterrors.ErrCodeInjectionFailed, "nothing to inject", nil)
	}
	if _, done := i.injected[el]; done {
		return false, nil
	}
	i.injected[el] = t.TypeID()

	if !t.HasScope() {
		i.byType[t.TypeID()] = append(i.byType[t.TypeID()], el)
		return true, nil
	}

	root := i.doc.AttachedShadowRoot(el)
	if root == nil {
		var err error
		root, err = i.doc.AttachShadow(el, dom.ShadowRootInit{Mode: t.Mode()})
		if err != nil {
			return false, shrooterrors.ErrUnsupportedHost(dom.TagName(el), err).
				WithContext("type_id", t.TypeID())
		}
	}

	content := t.Content()
	for _, n := range content {
		dom.Walk(n, func(c *html.Node) bool {
			i.owned[c] = struct{}{}
			return true
		})
	}
	if err := root.ReplaceChildren(content...); err != nil {
		return false, shrooterrors.NewInjectionError(shrooterrors.ErrCodeInjectionFailed, "populate rendering scope", err).
			WithComponent(t.TypeID())
	}
	i.byType[t.TypeID()] = append(i.byType[t.TypeID()], el)
	return true, nil
}

// Injected reports whether el carries the injected marker.
func (i *Injector) Injected(el *html.Node) bool {
	_, ok := i.injected[el]
	return ok
}

// TypeOf returns the type el was injected with.
func (i *Injector) TypeOf(el *html.Node) (string, bool) {
	typeID, ok := i.injected[el]
	return typeID, ok
}

// Owns reports whether n was created by the injector.
func (i *Injector) Owns(n *html.Node) bool {
	_, ok := i.owned[n]
	return ok
}

// Instances returns the elements successfully injected with typeID, in
// injection order.
func (i *Injector) Instances(typeID string) []*html.Node {
	list := i.byType[registry.Key(typeID)]
	out := make([]*html.Node, len(list))
	copy(out, list)
	return out
}

// Count returns the number of injected elements.
func (i *Injector) Count() int {
	return len(i.injected)
}

// Forget drops the bookkeeping for every injected element in n's subtree,
// including the contents of their rendering scopes. Call it for subtrees
// that left the document. It returns the number of elements forgotten.
func (i *Injector) Forget(n *html.Node) int {
	gone := make(map[string]map[*html.Node]struct{})
	i.forget(n, gone)
	if len(gone) == 0 {
		return 0
	}

	forgotten := 0
	for typeID, nodes := range gone {
		forgotten += len(nodes)
		kept := i.byType[typeID][:0]
		for _, el := range i.byType[typeID] {
			if _, drop := nodes[el]; !drop {
				kept = append(kept, el)
			}
		}
		if len(kept) == 0 {
			delete(i.byType, typeID)
			continue
		}
		i.byType[typeID] = kept
	}
	return forgotten
}

func (i *Injector) forget(n *html.Node, gone map[string]map[*html.Node]struct{}) {
	dom.Walk(n, func(c *html.Node) bool {
		delete(i.owned, c)
		typeID, ok := i.injected[c]
		if !ok {
			return true
		}
		delete(i.injected, c)
		if gone[typeID] == nil {
			gone[typeID] = make(map[*html.Node]struct{})
		}
		gone[typeID][c] = struct{}{}
		if root := i.doc.AttachedShadowRoot(c); root != nil {
			for _, child := range root.Children() {
				i.forget(child, gone)
			}
		}
		return true
	})
}
