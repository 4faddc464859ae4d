package dom

import (
	"errors"
	"fmt"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	// ErrHierarchy is returned when a mutation would create a cycle or
	// insert into a node that cannot hold children.
	ErrHierarchy = errors.New("dom: hierarchy request error")
	// ErrNotFound is returned when a reference node is not a child of the
	// given parent.
	ErrNotFound = errors.New("dom: node not found")
	// ErrNotSupported is returned when an element cannot host a shadow root.
	ErrNotSupported = errors.New("dom: operation not supported")
)

// Document is an observable HTML tree. It is not safe for concurrent use;
// confine it to one goroutine, typically through a Loop.
type Document struct {
	root      *html.Node
	shadows   map[*html.Node]*ShadowRoot
	observers []*MutationObserver
	pending   []*MutationObserver
	flushing  bool
}

// NewDocument wraps an existing tree. The root should be an
// html.DocumentNode; any other node is adopted under a fresh one.
func NewDocument(root *html.Node) *Document {
	if root == nil {
		root = &html.Node{Type: html.DocumentNode}
	}
	if root.Type != html.DocumentNode {
		wrapper := &html.Node{Type: html.DocumentNode}
		if root.Parent != nil {
			root.Parent.RemoveChild(root)
		}
		wrapper.AppendChild(root)
		root = wrapper
	}
	return &Document{
		root:    root,
		shadows: make(map[*html.Node]*ShadowRoot),
	}
}

// Root returns the document node.
func (d *Document) Root() *html.Node {
	return d.root
}

// DocumentElement returns the top-level element (usually <html>), or nil.
func (d *Document) DocumentElement() *html.Node {
	for c := d.root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}
	return nil
}

// Body returns the <body> element, or nil.
func (d *Document) Body() *html.Node {
	return d.findTopLevel(atom.Body)
}

// Head returns the <head> element, or nil.
func (d *Document) Head() *html.Node {
	return d.findTopLevel(atom.Head)
}

func (d *Document) findTopLevel(a atom.Atom) *html.Node {
	el := d.DocumentElement()
	if el == nil {
		return nil
	}
	for c := el.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == a {
			return c
		}
	}
	return nil
}

// AppendChild appends child to parent. A child that already has a parent
// is removed from it first, producing a removal record for the old parent.
func (d *Document) AppendChild(parent, child *html.Node) error {
	return d.InsertBefore(parent, child, nil)
}

// InsertBefore inserts child into parent before ref. A nil ref appends.
func (d *Document) InsertBefore(parent, child, ref *html.Node) error {
	if err := d.checkInsert(parent, child, ref); err != nil {
		return err
	}
	if child.Parent != nil {
		if err := d.RemoveChild(child.Parent, child); err != nil {
			return err
		}
	}

	var prev *html.Node
	if ref != nil {
		prev = ref.PrevSibling
	} else {
		prev = parent.LastChild
	}

	parent.InsertBefore(child, ref)

	d.queueRecord(MutationRecord{
		Type:            ChildList,
		Target:          parent,
		AddedNodes:      []*html.Node{child},
		PreviousSibling: prev,
		NextSibling:     ref,
	})
	return nil
}

// InsertNodes inserts a run of detached nodes before ref as one mutation,
// the way a single innerHTML or insertAdjacentHTML call is observed.
func (d *Document) InsertNodes(parent *html.Node, nodes []*html.Node, ref *html.Node) error {
	if len(nodes) == 0 {
		return nil
	}
	for _, n := range nodes {
		if err := d.checkInsert(parent, n, ref); err != nil {
			return err
		}
		if n.Parent != nil {
			return fmt.Errorf("%w: node already attached", ErrHierarchy)
		}
	}

	var prev *html.Node
	if ref != nil {
		prev = ref.PrevSibling
	} else {
		prev = parent.LastChild
	}
	for _, n := range nodes {
		parent.InsertBefore(n, ref)
	}

	added := make([]*html.Node, len(nodes))
	copy(added, nodes)
	d.queueRecord(MutationRecord{
		Type:            ChildList,
		Target:          parent,
		AddedNodes:      added,
		PreviousSibling: prev,
		NextSibling:     ref,
	})
	return nil
}

// RemoveChild detaches child from parent.
func (d *Document) RemoveChild(parent, child *html.Node) error {
	if parent == nil || child == nil || child.Parent != parent {
		return ErrNotFound
	}
	prev, next := child.PrevSibling, child.NextSibling
	parent.RemoveChild(child)

	d.queueRecord(MutationRecord{
		Type:            ChildList,
		Target:          parent,
		RemovedNodes:    []*html.Node{child},
		PreviousSibling: prev,
		NextSibling:     next,
	})
	return nil
}

// ReplaceChildren removes every child of parent and appends nodes, as one
// mutation record.
func (d *Document) ReplaceChildren(parent *html.Node, nodes ...*html.Node) error {
	for _, n := range nodes {
		if err := d.checkInsert(parent, n, nil); err != nil {
			return err
		}
		if n.Parent != nil {
			return fmt.Errorf("%w: node already attached", ErrHierarchy)
		}
	}

	var removed []*html.Node
	for c := parent.FirstChild; c != nil; {
		next := c.NextSibling
		parent.RemoveChild(c)
		removed = append(removed, c)
		c = next
	}
	for _, n := range nodes {
		parent.AppendChild(n)
	}

	if len(removed) == 0 && len(nodes) == 0 {
		return nil
	}
	added := make([]*html.Node, len(nodes))
	copy(added, nodes)
	d.queueRecord(MutationRecord{
		Type:         ChildList,
		Target:       parent,
		AddedNodes:   added,
		RemovedNodes: removed,
	})
	return nil
}

func (d *Document) checkInsert(parent, child, ref *html.Node) error {
	if parent == nil || child == nil {
		return fmt.Errorf("%w: nil node", ErrHierarchy)
	}
	switch parent.Type {
	case html.DocumentNode, html.ElementNode:
	default:
		return fmt.Errorf("%w: parent cannot have children", ErrHierarchy)
	}
	if child.Type == html.DocumentNode {
		return fmt.Errorf("%w: cannot insert a document", ErrHierarchy)
	}
	if IsInclusiveAncestor(child, parent) {
		return fmt.Errorf("%w: child contains parent", ErrHierarchy)
	}
	if ref != nil && ref.Parent != parent {
		return ErrNotFound
	}
	if ref == child {
		return fmt.Errorf("%w: reference is the child itself", ErrHierarchy)
	}
	return nil
}
