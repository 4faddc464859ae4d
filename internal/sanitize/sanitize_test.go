package sanitize

import (
	"testing"

	"github.com/conneroisu/shroot/internal/dom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func TestSanitizeHTML(t *testing.T) {
	s := New(Options{})

	tests := []struct {
		name     string
		input    string
		contains []string
		excludes []string
	}{
		{
			name:     "script removed",
			input:    `<p>Hi</p><script>alert(1)</script>`,
			contains: []string{"<p>Hi</p>"},
			excludes: []string{"script", "alert"},
		},
		{
			name:     "event handlers removed",
			input:    `<button type="button" onclick="steal()">+</button>`,
			contains: []string{`<button type="button">+</button>`},
			excludes: []string{"onclick"},
		},
		{
			name:     "slots and custom elements kept",
			input:    `<x-icon part="icon"></x-icon><slot name="title"></slot>`,
			contains: []string{`<x-icon part="icon">`, `<slot name="title">`},
		},
		{
			name:     "javascript urls dropped",
			input:    `<a href="javascript:alert(1)">x</a>`,
			excludes: []string{"javascript:"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := s.SanitizeHTML(tt.input)
			for _, want := range tt.contains {
				assert.Contains(t, out, want)
			}
			for _, unwanted := range tt.excludes {
				assert.NotContains(t, out, unwanted)
			}
		})
	}
}

func TestSanitizeHTML_Empty(t *testing.T) {
	assert.Equal(t, "", New(Options{}).SanitizeHTML("   "))
}

func TestSanitizeNodes(t *testing.T) {
	nodes, err := dom.ParseFragment(`<p class="msg" onmouseover="x()">Hi</p><script>bad()</script>`, nil)
	require.NoError(t, err)

	cleaned := Default().SanitizeNodes(nodes)
	assert.Equal(t, `<p class="msg">Hi</p>`, dom.RenderNodes(cleaned))
	assert.Nil(t, Default().SanitizeNodes(mustFragment(t, `<script>only()</script>`)))
}

func TestDefault_IsShared(t *testing.T) {
	assert.Same(t, Default(), Default())
}

func mustFragment(t *testing.T, markup string) []*html.Node {
	t.Helper()
	nodes, err := dom.ParseFragment(markup, nil)
	require.NoError(t, err)
	return nodes
}
