// Package manifest snapshots a template registry into a portable document
// and loads such snapshots back as declarations.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/conneroisu/shroot/internal/dom"
	shrooterrors "github.com/conneroisu/shroot/internal/errors"
	"github.com/conneroisu/shroot/internal/registry"
	"github.com/natefinch/atomic"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/net/html"
	"gopkg.in/yaml.v3"
)

// Version is the manifest schema version written by this package.
const Version = 1

// Format selects an encoding.
type Format string

const (
	FormatJSON    Format = "json"
	FormatYAML    Format = "yaml"
	FormatTOML    Format = "toml"
	FormatMsgpack Format = "msgpack"
)

// Formats lists the supported formats.
var Formats = []Format{FormatJSON, FormatYAML, FormatTOML, FormatMsgpack}

// ParseFormat accepts a format name, case-insensitively. "yml" and "mp"
// are aliases.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "toml":
		return FormatTOML, nil
	case "msgpack", "mp":
		return FormatMsgpack, nil
	}
	return "", shrooterrors.NewValidationError(shrooterrors.ErrCodeValidationFailed,
		fmt.Sprintf("unsupported manifest format %q", s))
}

// FormatFromPath infers the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	return ParseFormat(strings.TrimPrefix(filepath.Ext(path), "."))
}

// Component is one registered template.
type Component struct {
	TypeID     string `json:"type_id" yaml:"type_id" toml:"type_id" msgpack:"type_id"`
	Mode       string `json:"mode" yaml:"mode" toml:"mode" msgpack:"mode"`
	Behavior   string `json:"behavior,omitempty" yaml:"behavior,omitempty" toml:"behavior,omitempty" msgpack:"behavior,omitempty"`
	Source     string `json:"source,omitempty" yaml:"source,omitempty" toml:"source,omitempty" msgpack:"source,omitempty"`
	Shadowless bool   `json:"shadowless,omitempty" yaml:"shadowless,omitempty" toml:"shadowless,omitempty" msgpack:"shadowless,omitempty"`
	Content    string `json:"content" yaml:"content" toml:"content" msgpack:"content"`
	Instances  int    `json:"instances" yaml:"instances" toml:"instances" msgpack:"instances"`
	// Uses lists the registered types that appear inside Content.
	Uses []string `json:"uses,omitempty" yaml:"uses,omitempty" toml:"uses,omitempty" msgpack:"uses,omitempty"`
}

// Manifest is a registry snapshot.
type Manifest struct {
	Version    int         `json:"version" yaml:"version" toml:"version" msgpack:"version"`
	Source     string      `json:"source,omitempty" yaml:"source,omitempty" toml:"source,omitempty" msgpack:"source,omitempty"`
	Generated  time.Time   `json:"generated" yaml:"generated" toml:"generated" msgpack:"generated"`
	Components []Component `json:"components" yaml:"components" toml:"components" msgpack:"components"`
}

// InstanceCounter reports how many elements were injected per type.
// *injector.Injector implements it.
type InstanceCounter interface {
	Instances(typeID string) []*html.Node
}

// Snapshot builds a manifest from reg, sorted by type id. counter may be
// nil.
func Snapshot(reg *registry.TemplateRegistry, source string, counter InstanceCounter) *Manifest {
	m := &Manifest{
		Version:    Version,
		Source:     source,
		Generated:  time.Now().UTC().Truncate(time.Second),
		Components: []Component{},
	}
	graph := registry.NewDependencyAnalyzer(reg).DependencyGraph()
	for _, t := range reg.All() {
		c := Component{
			TypeID:     t.TypeID(),
			Mode:       string(t.Mode()),
			Behavior:   t.Behavior(),
			Source:     t.Source(),
			Shadowless: !t.HasScope(),
			Content:    t.HTML(),
		}
		if deps := graph[t.TypeID()]; len(deps) > 0 {
			c.Uses = deps
		}
		if counter != nil {
			c.Instances = len(counter.Instances(t.TypeID()))
		}
		m.Components = append(m.Components, c)
	}
	return m
}

// Encode writes m to w.
func (m *Manifest) Encode(w io.Writer, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(m); err != nil {
			return err
		}
		return enc.Close()
	case FormatTOML:
		return toml.NewEncoder(w).Encode(m)
	case FormatMsgpack:
		return msgpack.NewEncoder(w).Encode(m)
	}
	return fmt.Errorf("unsupported manifest format %q", format)
}

// Decode reads a manifest from r.
func Decode(r io.Reader, format Format) (*Manifest, error) {
	m := &Manifest{}
	var err error
	switch format {
	case FormatJSON:
		err = json.NewDecoder(r).Decode(m)
	case FormatYAML:
		err = yaml.NewDecoder(r).Decode(m)
	case FormatTOML:
		_, err = toml.NewDecoder(r).Decode(m)
	case FormatMsgpack:
		err = msgpack.NewDecoder(r).Decode(m)
	default:
		return nil, fmt.Errorf("unsupported manifest format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s manifest: %w", format, err)
	}
	if m.Version > Version {
		return nil, fmt.Errorf("manifest version %d is newer than %d", m.Version, Version)
	}
	return m, nil
}

// WriteFile atomically writes m to path, inferring the format from the
// extension.
func (m *Manifest) WriteFile(path string) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return shrooterrors.NewValidationError(shrooterrors.ErrCodeInvalidPath, err.Error()).WithFile(path)
	}
	var buf bytes.Buffer
	if err := m.Encode(&buf, format); err != nil {
		return shrooterrors.NewInternalError(shrooterrors.ErrCodeInternalError, "encode manifest", err)
	}
	if err := atomic.WriteFile(path, &buf); err != nil {
		return shrooterrors.NewIOError(shrooterrors.ErrCodeInternalError, "write manifest", err).WithFile(path)
	}
	return nil
}

// ReadFile reads a manifest, inferring the format from the extension.
func ReadFile(path string) (*Manifest, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, shrooterrors.NewValidationError(shrooterrors.ErrCodeInvalidPath, err.Error()).WithFile(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, shrooterrors.NewIOError(shrooterrors.ErrCodeFileNotFound, "open manifest", err).WithFile(path)
	}
	defer f.Close()
	return Decode(f, format)
}

// Templates turns the manifest back into records. Components with an
// unknown mode or unparsable content are reported and skipped.
func (m *Manifest) Templates() ([]*registry.Template, error) {
	var (
		out  []*registry.Template
		errs shrooterrors.ValidationErrorCollection
	)
	for i, c := range m.Components {
		field := fmt.Sprintf("components[%d]", i)
		if strings.TrimSpace(c.TypeID) == "" {
			errs.AddField(field+".type_id", "", "type id is required")
			continue
		}
		mode, ok := dom.ParseShadowMode(c.Mode)
		if !ok {
			errs.AddField(field+".mode", c.Mode, "mode must be open or closed")
			continue
		}
		opts := []registry.TemplateOption{registry.WithSource(c.Source)}
		if c.Behavior != "" {
			opts = append(opts, registry.WithBehavior(c.Behavior))
		}
		if c.Shadowless {
			opts = append(opts, registry.Shadowless())
		}
		content, err := dom.ParseFragment(c.Content, nil)
		if err != nil {
			errs.AddField(field+".content", c.TypeID, err.Error())
			continue
		}
		out = append(out, registry.NewTemplate(c.TypeID, mode, content, opts...))
	}
	if errs.HasErrors() {
		return out, errs.ToShrootError()
	}
	return out, nil
}
