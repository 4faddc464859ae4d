package dom

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ShadowRootModeAttr marks a template as a declarative shadow root.
const ShadowRootModeAttr = "shadowrootmode"

// Parse reads a full HTML document. Declarative shadow roots
// (<template shadowrootmode>) found as element children are attached as
// real shadow roots and removed from the light tree.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	doc := NewDocument(root)
	doc.adoptDeclarativeShadowRoots(root)
	return doc, nil
}

// ParseString is Parse over a string.
func ParseString(markup string) (*Document, error) {
	return Parse(strings.NewReader(markup))
}

// ParseFragment parses markup as the children of context. The returned nodes
// are detached. A nil or non-element context parses as <body> content.
func ParseFragment(markup string, context *html.Node) ([]*html.Node, error) {
	if context == nil || context.Type != html.ElementNode {
		context = &html.Node{Type: html.ElementNode, DataAtom: atom.Body, Data: "body"}
	}
	nodes, err := html.ParseFragment(strings.NewReader(markup), context)
	if err != nil {
		return nil, fmt.Errorf("parse fragment: %w", err)
	}
	return nodes, nil
}

// AppendHTML parses markup in the context of parent and appends the
// resulting nodes as a single mutation, like insertAdjacentHTML.
func (d *Document) AppendHTML(parent *html.Node, markup string) error {
	nodes, err := ParseFragment(markup, parent)
	if err != nil {
		return err
	}
	return d.InsertNodes(parent, nodes, nil)
}

// StreamHTML parses markup in the context of parent and inserts every
// resulting node one at a time in document order, parent before children,
// the way the HTML parser builds a page while it is still arriving. Each
// insertion is a separate mutation record.
func (d *Document) StreamHTML(parent *html.Node, markup string) error {
	nodes, err := ParseFragment(markup, parent)
	if err != nil {
		return err
	}
	for _, n := range nodes {
		if err := d.streamNode(parent, n); err != nil {
			return err
		}
	}
	return nil
}

func (d *Document) streamNode(parent, n *html.Node) error {
	children := Children(n)
	for _, c := range children {
		n.RemoveChild(c)
	}
	if err := d.AppendChild(parent, n); err != nil {
		return err
	}
	for _, c := range children {
		if err := d.streamNode(n, c); err != nil {
			return err
		}
	}
	return nil
}

// adoptDeclarativeShadowRoots converts leading shadow-root templates into
// attached shadow roots. It runs before any observer exists, so it records
// nothing.
func (d *Document) adoptDeclarativeShadowRoots(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if IsTemplate(c) && n.Type == html.ElementNode {
			if v, ok := Attr(c, ShadowRootModeAttr); ok {
				if mode, valid := ParseShadowMode(v); valid && CanHostShadow(n) && d.shadows[n] == nil {
					sr, _ := d.AttachShadow(n, ShadowRootInit{Mode: mode})
					for gc := c.FirstChild; gc != nil; {
						gcNext := gc.NextSibling
						c.RemoveChild(gc)
						sr.fragment.AppendChild(gc)
						gc = gcNext
					}
					n.RemoveChild(c)
					d.adoptDeclarativeShadowRoots(sr.fragment)
					c = next
					continue
				}
			}
		}
		d.adoptDeclarativeShadowRoots(c)
		c = next
	}
}
