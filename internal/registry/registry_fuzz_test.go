package registry

import (
	"strings"
	"testing"

	"github.com/conneroisu/shroot/internal/dom"
)

// FuzzTemplateRegistration registers arbitrary type identifiers and markup
// and checks lookups stay case-insensitive and content stays a snapshot.
func FuzzTemplateRegistration(f *testing.F) {
	f.Add("greeting-box", "<p>Hi</p>")
	f.Add("CARD", "<slot></slot><b>x</b>")
	f.Add("<script>alert('xss')</script>", "<script>alert(1)</script>")
	f.Add("", "")
	f.Add("Unicode🎯-box", "<p>🎯</p>")
	f.Add("x-"+strings.Repeat("a", 1000), strings.Repeat("<i>", 50))

	f.Fuzz(func(t *testing.T, typeID, markup string) {
		if len(markup) > 50000 {
			t.Skip("markup too large")
		}

		nodes, err := dom.ParseFragment(markup, nil)
		if err != nil {
			t.Skip("unparseable fragment")
		}

		registry := NewTemplateRegistry()
		tmpl := NewTemplate(typeID, dom.ShadowOpen, nodes)
		registry.Register(tmpl)

		before := tmpl.HTML()
		for _, n := range nodes {
			dom.RemoveAttr(n, "class", "id")
		}
		if tmpl.HTML() != before {
			t.Errorf("template content changed after source edit")
		}

		if _, ok := registry.Lookup(typeID); !ok {
			t.Errorf("registered type %q not found", typeID)
		}
	})
}
