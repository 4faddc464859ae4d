package dom

import (
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Render writes the whole document, shadow roots included as declarative
// shadow DOM.
func (d *Document) Render(w io.Writer) error {
	return html.Render(w, d.serializable(d.root))
}

// RenderNode writes n (outer HTML) with any shadow roots inside it.
func (d *Document) RenderNode(w io.Writer, n *html.Node) error {
	return html.Render(w, d.serializable(n))
}

// RenderChildren writes the children of n (inner HTML).
func (d *Document) RenderChildren(w io.Writer, n *html.Node) error {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(w, d.serializable(c)); err != nil {
			return err
		}
	}
	return nil
}

// OuterHTML returns n serialised as a string.
func (d *Document) OuterHTML(n *html.Node) string {
	var b strings.Builder
	_ = d.RenderNode(&b, n)
	return b.String()
}

// InnerHTML returns n's children serialised as a string.
func (d *Document) InnerHTML(n *html.Node) string {
	var b strings.Builder
	_ = d.RenderChildren(&b, n)
	return b.String()
}

// RenderNodes serialises detached nodes without shadow roots.
func RenderNodes(nodes []*html.Node) string {
	var b strings.Builder
	for _, n := range nodes {
		_ = html.Render(&b, n)
	}
	return b.String()
}

// serializable builds a detached copy of n where every shadow host gets a
// leading <template shadowrootmode> child holding its shadow tree.
func (d *Document) serializable(n *html.Node) *html.Node {
	clone := CloneNode(n, false)
	if sr := d.shadows[n]; sr != nil {
		tmpl := &html.Node{
			Type:     html.ElementNode,
			DataAtom: atom.Template,
			Data:     "template",
			Attr:     []html.Attribute{{Key: ShadowRootModeAttr, Val: string(sr.mode)}},
		}
		for c := sr.fragment.FirstChild; c != nil; c = c.NextSibling {
			tmpl.AppendChild(d.serializable(c))
		}
		clone.AppendChild(tmpl)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		clone.AppendChild(d.serializable(c))
	}
	return clone
}
