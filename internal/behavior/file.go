package behavior

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/conneroisu/shroot/internal/dom"
	"golang.org/x/net/html"
	"gopkg.in/yaml.v3"
)

// Spec is a declarative behavior read from a file:
//
//	attributes:
//	  role: button
//	remove_attributes: [draggable]
//	classes: [ready]
//	text: Loaded
//
// Attributes and classes apply to the host; text replaces the text of the
// first element in the rendering scope marked with part="label".
type Spec struct {
	Attributes       map[string]string `yaml:"attributes"`
	RemoveAttributes []string          `yaml:"remove_attributes"`
	Classes          []string          `yaml:"classes"`
	Text             string            `yaml:"text"`
}

// Connected implements Behavior.
func (s *Spec) Connected(c Context) error {
	for k, v := range s.Attributes {
		dom.SetAttr(c.Element, k, v)
	}
	dom.RemoveAttr(c.Element, s.RemoveAttributes...)

	if len(s.Classes) > 0 {
		existing, _ := dom.Attr(c.Element, "class")
		classes := strings.Fields(existing)
		for _, class := range s.Classes {
			if !contains(classes, class) {
				classes = append(classes, class)
			}
		}
		dom.SetAttr(c.Element, "class", strings.Join(classes, " "))
	}

	if s.Text != "" && c.Root != nil {
		if label := findPart(c.Root.Fragment(), "label"); label != nil {
			text := &html.Node{Type: html.TextNode, Data: s.Text}
			if err := c.Document.ReplaceChildren(label, text); err != nil {
				return err
			}
		}
	}
	return nil
}

func findPart(root *html.Node, part string) *html.Node {
	var found *html.Node
	dom.Walk(root, func(n *html.Node) bool {
		if found != nil {
			return false
		}
		if v, ok := dom.Attr(n, "part"); ok && contains(strings.Fields(v), part) {
			found = n
			return false
		}
		return true
	})
	return found
}

// FileLoader reads declarative behaviors from a directory. A reference
// "counter" resolves to counter.yml, counter.yaml or counter.json.
type FileLoader struct {
	dir string
}

// NewFileLoader creates a loader rooted at dir.
func NewFileLoader(dir string) *FileLoader {
	return &FileLoader{dir: dir}
}

// Load implements Loader. The read happens on the caller's goroutine; wrap
// the loader in an AsyncLoader to move it off.
func (l *FileLoader) Load(_ context.Context, ref string) *Future {
	name := normalize(ref)
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return Resolved(nil, fmt.Errorf("%w: %q", ErrUnknownBehavior, ref))
	}

	for _, ext := range []string{".yml", ".yaml", ".json"} {
		path := filepath.Join(l.dir, name+ext)
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return Resolved(nil, fmt.Errorf("read behavior %s: %w", path, err))
		}

		var spec Spec
		if err := yaml.Unmarshal(data, &spec); err != nil {
			return Resolved(nil, fmt.Errorf("parse behavior %s: %w", path, err))
		}
		return Resolved(&spec, nil)
	}

	return Resolved(nil, fmt.Errorf("%w: %q", ErrUnknownBehavior, ref))
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
