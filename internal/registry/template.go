package registry

import (
	"strings"
	"time"

	"github.com/conneroisu/shroot/internal/dom"
	"golang.org/x/net/html"
	"golang.org/x/text/cases"
)

// Template is one reusable component definition: a type identifier, an
// owned snapshot of the content to inject and the visibility of the
// rendering scope. A Template never changes after it is created; callers
// receive clones of its content, never the stored nodes.
type Template struct {
	typeID     string
	mode       dom.ShadowMode
	content    []*html.Node
	shadowless bool
	behavior   string
	source     string
	created    time.Time
}

// TemplateOption configures NewTemplate.
type TemplateOption func(*Template)

// WithBehavior names the behavior module the component needs before it is
// registered.
func WithBehavior(ref string) TemplateOption {
	return func(t *Template) { t.behavior = strings.TrimSpace(ref) }
}

// WithSource records where the declaration came from, e.g. a page path.
func WithSource(source string) TemplateOption {
	return func(t *Template) { t.source = source }
}

// Shadowless marks a definition that carries behavior but no rendering
// scope, such as a <define> without a <template>.
func Shadowless() TemplateOption {
	return func(t *Template) { t.shadowless = true }
}

// NewTemplate snapshots content into a new record. The nodes are deep
// cloned, so later edits to the declaration never reach the record.
func NewTemplate(typeID string, mode dom.ShadowMode, content []*html.Node, opts ...TemplateOption) *Template {
	if mode == "" {
		mode = dom.ShadowOpen
	}
	t := &Template{
		typeID:  Key(typeID),
		mode:    mode,
		content: dom.CloneAll(content),
		created: time.Now(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Key folds a type identifier for case-insensitive comparison.
func Key(typeID string) string {
	return cases.Fold().String(strings.TrimSpace(typeID))
}

// TypeID returns the folded type identifier.
func (t *Template) TypeID() string { return t.typeID }

// Mode returns the visibility of the rendering scope.
func (t *Template) Mode() dom.ShadowMode { return t.mode }

// Behavior returns the behavior module reference, or "".
func (t *Template) Behavior() string { return t.behavior }

// Source returns where the declaration was found.
func (t *Template) Source() string { return t.source }

// Created returns when the record was snapshotted.
func (t *Template) Created() time.Time { return t.created }

// HasScope reports whether instances get a rendering scope.
func (t *Template) HasScope() bool { return !t.shadowless }

// Content returns a fresh deep copy of the template content.
func (t *Template) Content() []*html.Node {
	return dom.CloneAll(t.content)
}

// HTML serialises the template content.
func (t *Template) HTML() string {
	return dom.RenderNodes(t.content)
}
