package dom

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Children returns n's children as a slice.
func Children(n *html.Node) []*html.Node {
	if n == nil {
		return nil
	}
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, c)
	}
	return out
}

// IsInclusiveAncestor reports whether ancestor is n or one of n's ancestors.
func IsInclusiveAncestor(ancestor, n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == ancestor {
			return true
		}
	}
	return false
}

// CloneNode copies n. Deep clones copy the whole subtree. The clone is
// detached and never shares attribute storage with n. Shadow roots are not
// cloned.
func CloneNode(n *html.Node, deep bool) *html.Node {
	if n == nil {
		return nil
	}
	clone := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
	}
	if len(n.Attr) > 0 {
		clone.Attr = make([]html.Attribute, len(n.Attr))
		copy(clone.Attr, n.Attr)
	}
	if deep {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			clone.AppendChild(CloneNode(c, true))
		}
	}
	return clone
}

// CloneChildren deep-clones every child of n.
func CloneChildren(n *html.Node) []*html.Node {
	if n == nil {
		return nil
	}
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, CloneNode(c, true))
	}
	return out
}

// CloneAll deep-clones each node in nodes.
func CloneAll(nodes []*html.Node) []*html.Node {
	out := make([]*html.Node, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, CloneNode(n, true))
	}
	return out
}

// TagName returns the lowercase local name of an element, or "".
func TagName(n *html.Node) string {
	if n == nil || n.Type != html.ElementNode {
		return ""
	}
	return strings.ToLower(n.Data)
}

// IsElement reports whether n is an element with the given atom.
func IsElement(n *html.Node, a atom.Atom) bool {
	return n != nil && n.Type == html.ElementNode && n.DataAtom == a && n.Namespace == ""
}

// IsTemplate reports whether n is an HTML <template> element.
func IsTemplate(n *html.Node) bool {
	return IsElement(n, atom.Template)
}

// Attr returns the value of the named attribute.
func Attr(n *html.Node, name string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, name) {
			return a.Val, true
		}
	}
	return "", false
}

// HasAttr reports whether n carries the named attribute.
func HasAttr(n *html.Node, name string) bool {
	_, ok := Attr(n, name)
	return ok
}

// SetAttr sets or replaces the named attribute.
func SetAttr(n *html.Node, name, value string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, name) {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: value})
}

// RemoveAttr removes every occurrence of the named attributes.
func RemoveAttr(n *html.Node, names ...string) {
	if n == nil || len(n.Attr) == 0 {
		return
	}
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		drop := false
		for _, name := range names {
			if a.Namespace == "" && strings.EqualFold(a.Key, name) {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, a)
		}
	}
	n.Attr = kept
}

// PreviousElementSibling returns the closest preceding element sibling.
func PreviousElementSibling(n *html.Node) *html.Node {
	if n == nil {
		return nil
	}
	for p := n.PrevSibling; p != nil; p = p.PrevSibling {
		if p.Type == html.ElementNode {
			return p
		}
	}
	return nil
}

// Walk visits n and its descendants in document order. Returning false from
// fn skips the visited node's children.
func Walk(n *html.Node, fn func(*html.Node) bool) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		Walk(c, fn)
		c = next
	}
}

// WalkElements visits the elements under n in document order without
// descending into template contents, which are inert.
func WalkElements(n *html.Node, fn func(*html.Node)) {
	Walk(n, func(c *html.Node) bool {
		if c.Type == html.ElementNode {
			fn(c)
			return !IsTemplate(c)
		}
		return c.Type == html.DocumentNode
	})
}

// GetElementByID returns the first element under root with the given id.
func GetElementByID(root *html.Node, id string) *html.Node {
	var found *html.Node
	Walk(root, func(n *html.Node) bool {
		if found != nil {
			return false
		}
		if n.Type == html.ElementNode {
			if v, ok := Attr(n, "id"); ok && v == id {
				found = n
				return false
			}
		}
		return true
	})
	return found
}

// ElementsByTag returns elements under root whose tag matches,
// case-insensitively, skipping template contents.
func ElementsByTag(root *html.Node, tag string) []*html.Node {
	var out []*html.Node
	WalkElements(root, func(n *html.Node) {
		if strings.EqualFold(n.Data, tag) {
			out = append(out, n)
		}
	})
	return out
}

// TextContent concatenates the text of n's descendants.
func TextContent(n *html.Node) string {
	var b strings.Builder
	Walk(n, func(c *html.Node) bool {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
		return true
	})
	return b.String()
}
