// Package sanitize filters component template content through a bluemonday
// policy before it is stored in the registry.
package sanitize

import (
	"regexp"
	"strings"
	"sync"

	"github.com/conneroisu/shroot/internal/dom"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

var customElementPattern = regexp.MustCompile(`^[a-z][a-z0-9._]*-[a-z0-9._-]*$`)

// Options tunes the policy.
type Options struct {
	// AllowStyles keeps <style> elements, which component templates commonly
	// carry for their scoped styling.
	AllowStyles bool
}

// Sanitizer cleans markup. It is safe for concurrent use.
type Sanitizer struct {
	policy *bluemonday.Policy
}

var (
	defaultOnce      sync.Once
	defaultSanitizer *Sanitizer
)

// Default returns a shared sanitizer with styles allowed.
func Default() *Sanitizer {
	defaultOnce.Do(func() {
		defaultSanitizer = New(Options{AllowStyles: true})
	})
	return defaultSanitizer
}

// New builds a sanitizer on top of bluemonday's UGC policy, extended with
// the elements component templates use: slots, custom elements and the
// part/slot attributes.
func New(opts Options) *Sanitizer {
	policy := bluemonday.UGCPolicy()
	policy.AllowElements("slot", "section", "article", "header", "footer", "nav", "main", "aside", "button")
	policy.AllowElementsMatching(customElementPattern)
	policy.AllowAttrs("name").OnElements("slot")
	policy.AllowAttrs("type", "disabled").OnElements("button")
	policy.AllowAttrs("class", "id", "part", "slot", "role", "title").Globally()
	policy.AllowDataAttributes()

	if opts.AllowStyles {
		policy.AllowElements("style")
		policy.AllowUnsafe(true)
	}

	return &Sanitizer{policy: policy}
}

// SanitizeHTML returns the sanitized markup.
func (s *Sanitizer) SanitizeHTML(markup string) string {
	trimmed := strings.TrimSpace(markup)
	if trimmed == "" {
		return ""
	}
	return s.policy.Sanitize(trimmed)
}

// SanitizeNodes renders nodes, sanitizes the markup and parses it back into
// detached nodes. Content that cannot be reparsed is dropped.
func (s *Sanitizer) SanitizeNodes(nodes []*html.Node) []*html.Node {
	if len(nodes) == 0 {
		return nodes
	}
	cleaned := s.SanitizeHTML(dom.RenderNodes(nodes))
	if cleaned == "" {
		return nil
	}
	out, err := dom.ParseFragment(cleaned, nil)
	if err != nil {
		return nil
	}
	return out
}
