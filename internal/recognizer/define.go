package recognizer

import (
	"strings"

	"github.com/conneroisu/shroot/internal/dom"
	"github.com/conneroisu/shroot/internal/registry"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DefineTag is the element name of the block declaration form:
//
//	<define name="x-counter">
//	  <template shadowrootmode="closed"><button>+</button></template>
//	  <script src="counter"></script>
//	</define>
//
// The template is optional; without one the component has behavior but no
// rendering scope. The script names the behavior module either through its
// src attribute or its text.
const DefineTag = "define"

// Declarations is a Recognizer that can also judge and snapshot
// declaration nodes found by a full-tree scan.
type Declarations interface {
	Recognizer
	IsDeclaration(n *html.Node) bool
	Snapshot(n *html.Node) (*registry.Template, bool)
}

// DefineRecognizer recognizes <define name> blocks.
type DefineRecognizer struct {
	source     string
	sanitizer  Sanitizer
	recognized map[*html.Node]struct{}
}

// NewDefineRecognizer creates a recognizer for <define> blocks. Only the
// Source and Sanitizer options apply.
func NewDefineRecognizer(opts Options) *DefineRecognizer {
	return &DefineRecognizer{
		source:     opts.Source,
		sanitizer:  opts.Sanitizer,
		recognized: make(map[*html.Node]struct{}),
	}
}

// Recognize inspects the closest element preceding inserted.
func (r *DefineRecognizer) Recognize(inserted *html.Node) (*registry.Template, bool) {
	return r.Snapshot(dom.PreviousElementSibling(inserted))
}

// IsDeclaration reports whether n is a <define> element.
func (r *DefineRecognizer) IsDeclaration(n *html.Node) bool {
	return n != nil && n.Type == html.ElementNode && n.Namespace == "" && strings.EqualFold(n.Data, DefineTag)
}

// Snapshot turns a <define> block into a record.
func (r *DefineRecognizer) Snapshot(n *html.Node) (*registry.Template, bool) {
	if !r.IsDeclaration(n) {
		return nil, false
	}
	if _, done := r.recognized[n]; done {
		return nil, false
	}
	name, _ := dom.Attr(n, "name")
	if strings.TrimSpace(name) == "" {
		return nil, false
	}

	var (
		tmpl   *html.Node
		script *html.Node
	)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch {
		case tmpl == nil && dom.IsTemplate(c):
			tmpl = c
		case script == nil && dom.IsElement(c, atom.Script):
			script = c
		}
	}

	var opts []registry.TemplateOption
	opts = append(opts, registry.WithSource(r.source))
	if script != nil {
		ref, ok := dom.Attr(script, "src")
		if !ok {
			ref = dom.TextContent(script)
		}
		opts = append(opts, registry.WithBehavior(ref))
	}

	mode := dom.ShadowOpen
	var content []*html.Node
	if tmpl == nil {
		opts = append(opts, registry.Shadowless())
	} else {
		if raw, ok := dom.Attr(tmpl, dom.ShadowRootModeAttr); ok {
			parsed, valid := dom.ParseShadowMode(raw)
			if !valid {
				return nil, false
			}
			mode = parsed
		}
		content = dom.CloneChildren(tmpl)
		if r.sanitizer != nil {
			content = r.sanitizer.SanitizeNodes(content)
		}
	}

	r.recognized[n] = struct{}{}
	return registry.NewTemplate(name, mode, content, opts...), true
}
