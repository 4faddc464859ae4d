package dom

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ShadowMode is the visibility of a shadow root.
type ShadowMode string

const (
	ShadowOpen   ShadowMode = "open"
	ShadowClosed ShadowMode = "closed"
)

// ParseShadowMode parses "open" or "closed", case-insensitively.
func ParseShadowMode(s string) (ShadowMode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(ShadowOpen):
		return ShadowOpen, true
	case string(ShadowClosed):
		return ShadowClosed, true
	default:
		return "", false
	}
}

// ShadowRootInit configures AttachShadow.
type ShadowRootInit struct {
	Mode ShadowMode
}

// ShadowRoot is an isolated child tree attached to a host element. Its
// children live under a detached document fragment, so observers of the
// light tree never see changes made inside it.
type ShadowRoot struct {
	doc      *Document
	host     *html.Node
	mode     ShadowMode
	fragment *html.Node
}

// Host returns the element the shadow root is attached to.
func (s *ShadowRoot) Host() *html.Node { return s.host }

// Mode returns the shadow root's visibility.
func (s *ShadowRoot) Mode() ShadowMode { return s.mode }

// Fragment returns the node holding the shadow root's children. Mutate it
// through the ShadowRoot or the Document, never directly.
func (s *ShadowRoot) Fragment() *html.Node { return s.fragment }

// Children returns the shadow root's top-level children.
func (s *ShadowRoot) Children() []*html.Node {
	return Children(s.fragment)
}

// Append appends detached nodes to the shadow root as one mutation.
func (s *ShadowRoot) Append(nodes ...*html.Node) error {
	return s.doc.InsertNodes(s.fragment, nodes, nil)
}

// ReplaceChildren clears the shadow root and appends nodes.
func (s *ShadowRoot) ReplaceChildren(nodes ...*html.Node) error {
	return s.doc.ReplaceChildren(s.fragment, nodes...)
}

// shadowHostElements are the built-in elements allowed to host a shadow
// root; every valid custom element name and every unknown tag is allowed
// as well.
var shadowHostElements = map[atom.Atom]bool{
	atom.Article:    true,
	atom.Aside:      true,
	atom.Blockquote: true,
	atom.Body:       true,
	atom.Div:        true,
	atom.Footer:     true,
	atom.H1:         true,
	atom.H2:         true,
	atom.H3:         true,
	atom.H4:         true,
	atom.H5:         true,
	atom.H6:         true,
	atom.Header:     true,
	atom.Main:       true,
	atom.Nav:        true,
	atom.P:          true,
	atom.Section:    true,
	atom.Span:       true,
}

// CanHostShadow reports whether el may have a shadow root attached.
func CanHostShadow(el *html.Node) bool {
	if el == nil || el.Type != html.ElementNode || el.Namespace != "" {
		return false
	}
	if shadowHostElements[el.DataAtom] {
		return true
	}
	// Tags the parser does not know, custom names or not, behave like
	// HTMLUnknownElement hosts. SVG and MathML reserved names never do.
	if reservedCustomNames[el.Data] {
		return false
	}
	return el.DataAtom == 0 || IsCustomElementName(el.Data)
}

// AttachShadow attaches a new, empty shadow root to host.
func (d *Document) AttachShadow(host *html.Node, init ShadowRootInit) (*ShadowRoot, error) {
	if !CanHostShadow(host) {
		name := "<nil>"
		if host != nil {
			name = host.Data
		}
		return nil, fmt.Errorf("%w: <%s> cannot host a shadow root", ErrNotSupported, name)
	}
	if _, exists := d.shadows[host]; exists {
		return nil, fmt.Errorf("%w: <%s> already hosts a shadow root", ErrNotSupported, host.Data)
	}
	mode := init.Mode
	if mode == "" {
		mode = ShadowOpen
	}
	if mode != ShadowOpen && mode != ShadowClosed {
		return nil, fmt.Errorf("%w: invalid shadow mode %q", ErrNotSupported, mode)
	}

	sr := &ShadowRoot{
		doc:      d,
		host:     host,
		mode:     mode,
		fragment: &html.Node{Type: html.DocumentNode},
	}
	d.shadows[host] = sr
	return sr, nil
}

// ShadowRoot returns host's shadow root when it is open, like
// Element.shadowRoot. Closed roots are not exposed here.
func (d *Document) ShadowRoot(host *html.Node) *ShadowRoot {
	sr := d.shadows[host]
	if sr == nil || sr.mode != ShadowOpen {
		return nil
	}
	return sr
}

// AttachedShadowRoot returns host's shadow root regardless of its mode. It
// is meant for the code that attached the root.
func (d *Document) AttachedShadowRoot(host *html.Node) *ShadowRoot {
	return d.shadows[host]
}

// ShadowHosts returns the number of elements hosting a shadow root.
func (d *Document) ShadowHosts() int {
	return len(d.shadows)
}

// reservedCustomNames are hyphenated names reserved by SVG and MathML.
var reservedCustomNames = map[string]bool{
	"annotation-xml":   true,
	"color-profile":    true,
	"font-face":        true,
	"font-face-src":    true,
	"font-face-uri":    true,
	"font-face-format": true,
	"font-face-name":   true,
	"missing-glyph":    true,
}

// IsCustomElementName reports whether name is a valid custom element name:
// lowercase ASCII letter first, at least one hyphen, no uppercase letters,
// and not one of the reserved names.
func IsCustomElementName(name string) bool {
	if name == "" || reservedCustomNames[name] {
		return false
	}
	if name[0] < 'a' || name[0] > 'z' {
		return false
	}
	if !strings.Contains(name, "-") {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'A' && r <= 'Z':
			return false
		case r == ' ', r == '\t', r == '\n', r == '\f', r == '\r', r == '/', r == '>', r == '=':
			return false
		}
	}
	return true
}
