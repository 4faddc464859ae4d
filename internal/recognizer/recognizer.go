// Package recognizer turns declaration markup into template records.
//
// A declaration is a <template> carrying a mode attribute and a type
// attribute:
//
//	<template sri-mode="open" sri-tagname="greeting-box"><p>Hi</p></template>
//
// Recognition is driven by arrival order. When a node is inserted, its
// immediately preceding sibling is inspected; if that sibling is a marked
// template it is complete by now and can be snapshotted. A marked template
// that is the last child of its parent is therefore not recognized until
// something is inserted after it, or until a full scan runs.
package recognizer

import (
	"strings"

	"github.com/conneroisu/shroot/internal/dom"
	"github.com/conneroisu/shroot/internal/registry"
	"golang.org/x/net/html"
)

// Default attribute names of the declaration wire format.
const (
	DefaultModeAttr     = "sri-mode"
	DefaultTypeAttr     = "sri-tagname"
	DefaultBehaviorAttr = "sri-behavior"
)

// Recognizer inspects a freshly inserted node and returns the template it
// completes, if any.
type Recognizer interface {
	Recognize(inserted *html.Node) (*registry.Template, bool)
}

// Sanitizer cleans template content before it is stored.
type Sanitizer interface {
	SanitizeNodes(nodes []*html.Node) []*html.Node
}

// Options configures a TemplateRecognizer.
type Options struct {
	ModeAttr     string
	TypeAttr     string
	BehaviorAttr string
	// Source is recorded on every template, typically the page path.
	Source string
	// Sanitizer, when set, filters content before the snapshot.
	Sanitizer Sanitizer
}

// DefaultOptions returns the default wire format.
func DefaultOptions() Options {
	return Options{
		ModeAttr:     DefaultModeAttr,
		TypeAttr:     DefaultTypeAttr,
		BehaviorAttr: DefaultBehaviorAttr,
	}
}

func (o Options) withDefaults() Options {
	if o.ModeAttr == "" {
		o.ModeAttr = DefaultModeAttr
	}
	if o.TypeAttr == "" {
		o.TypeAttr = DefaultTypeAttr
	}
	if o.BehaviorAttr == "" {
		o.BehaviorAttr = DefaultBehaviorAttr
	}
	return o
}

// TemplateRecognizer recognizes marked <template> declarations. Each
// template node yields a record at most once.
type TemplateRecognizer struct {
	opts       Options
	recognized map[*html.Node]struct{}
}

// NewTemplateRecognizer creates a recognizer for the given wire format.
func NewTemplateRecognizer(opts Options) *TemplateRecognizer {
	return &TemplateRecognizer{
		opts:       opts.withDefaults(),
		recognized: make(map[*html.Node]struct{}),
	}
}

// Recognize inspects the node immediately preceding inserted.
func (r *TemplateRecognizer) Recognize(inserted *html.Node) (*registry.Template, bool) {
	if inserted == nil || inserted.PrevSibling == nil {
		return nil, false
	}
	return r.Snapshot(inserted.PrevSibling)
}

// IsDeclaration reports whether n carries the declaration markers,
// regardless of whether its type attribute is usable.
func (r *TemplateRecognizer) IsDeclaration(n *html.Node) bool {
	return dom.IsTemplate(n) && dom.HasAttr(n, r.opts.ModeAttr) && dom.HasAttr(n, r.opts.TypeAttr)
}

// Snapshot turns a marked template into a record. It is used directly by
// full-tree scans, where the template content is known to be complete.
// Malformed declarations, an empty type or an unknown mode, yield nothing.
func (r *TemplateRecognizer) Snapshot(n *html.Node) (*registry.Template, bool) {
	if !r.IsDeclaration(n) {
		return nil, false
	}
	if _, done := r.recognized[n]; done {
		return nil, false
	}

	rawMode, _ := dom.Attr(n, r.opts.ModeAttr)
	mode, ok := dom.ParseShadowMode(rawMode)
	if !ok {
		return nil, false
	}
	typeID, _ := dom.Attr(n, r.opts.TypeAttr)
	if strings.TrimSpace(typeID) == "" {
		return nil, false
	}
	behaviorRef, _ := dom.Attr(n, r.opts.BehaviorAttr)

	clone := dom.CloneNode(n, true)
	dom.RemoveAttr(clone, r.opts.ModeAttr, r.opts.TypeAttr, r.opts.BehaviorAttr)
	content := dom.Children(clone)
	for _, c := range content {
		clone.RemoveChild(c)
	}
	if r.opts.Sanitizer != nil {
		content = r.opts.Sanitizer.SanitizeNodes(content)
	}

	r.recognized[n] = struct{}{}
	return registry.NewTemplate(typeID, mode, content,
		registry.WithBehavior(behaviorRef),
		registry.WithSource(r.opts.Source),
	), true
}

// Recognized returns how many declarations have been snapshotted.
func (r *TemplateRecognizer) Recognized() int {
	return len(r.recognized)
}
