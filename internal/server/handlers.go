package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/a-h/templ"
	"github.com/conneroisu/shroot/internal/engine"
	shrooterrors "github.com/conneroisu/shroot/internal/errors"
	"github.com/conneroisu/shroot/internal/manifest"
	"github.com/conneroisu/shroot/internal/page"
	"github.com/conneroisu/shroot/internal/version"
)

// maxFragmentSize bounds the body of a fragment delivery.
const maxFragmentSize = 1 << 20

// FragmentResponse reports the outcome of a fragment delivery.
type FragmentResponse struct {
	Page   string       `json:"page"`
	Target string       `json:"target,omitempty"`
	Mode   string       `json:"mode"`
	Stats  engine.Stats `json:"stats"`
}

// UpgradeResponse reports how many instances received the new behavior.
type UpgradeResponse struct {
	Page     string `json:"page"`
	Type     string `json:"type"`
	Behavior string `json:"behavior"`
	Upgraded int    `json:"upgraded"`
}

type errorResponse struct {
	Error       string   `json:"error"`
	Code        string   `json:"code,omitempty"`
	Type        string   `json:"type,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	names, err := s.store.Names()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	live := make(map[string]bool)
	for _, name := range s.store.Live() {
		live[name] = true
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := IndexPage(names, live).Render(r.Context(), w); err != nil {
		s.logger.Warn(r.Context(), err, "Failed to render index")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":  "healthy",
		"version": version.Get().Short(),
		"uptime":  time.Since(s.started).Round(time.Second).String(),
		"pages":   len(s.store.Live()),
		"clients": s.hub.Count(),
	}
	writeJSON(w, http.StatusOK, health)
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	p, err := s.store.Get(r.Context(), name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out, err := p.Render(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var extras []templ.Component
	if s.config.Development.ErrorOverlay {
		extras = append(extras, ErrorOverlay(p.Issues()))
	}
	if s.config.Development.HotReload {
		extras = append(extras, ReloadScript(name))
	}
	out, err = injectBeforeBodyEnd(r.Context(), out, extras...)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = io.WriteString(w, out)
}

func (s *Server) handleFragments(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	mode, err := page.ParseDeliveryMode(r.URL.Query().Get("mode"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	target := r.URL.Query().Get("target")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxFragmentSize))
	if err != nil {
		s.writeError(w, r, shrooterrors.NewValidationError(shrooterrors.ErrCodeValidationFailed,
			"fragment body too large or unreadable"))
		return
	}

	p, err := s.store.Get(r.Context(), name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	stats, err := p.Deliver(r.Context(), target, string(body), mode)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.hub.Broadcast(UpdateMessage{Type: MessageFragment, Page: name, Target: target})
	writeJSON(w, http.StatusOK, FragmentResponse{
		Page:   name,
		Target: target,
		Mode:   string(mode),
		Stats:  stats,
	})
}

func (s *Server) handleComponents(w http.ResponseWriter, r *http.Request) {
	format := manifest.FormatJSON
	if q := r.URL.Query().Get("format"); q != "" {
		var err error
		if format, err = manifest.ParseFormat(q); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	p, err := s.store.Get(r.Context(), r.PathValue("name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	m, err := p.Manifest(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", contentType(format))
	if err := m.Encode(w, format); err != nil {
		s.logger.Warn(r.Context(), err, "Failed to encode manifest", "format", string(format))
	}
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	name, typeID := r.PathValue("name"), r.PathValue("type")
	ref := r.URL.Query().Get("behavior")
	if ref == "" {
		s.writeError(w, r, shrooterrors.NewValidationError(shrooterrors.ErrCodeValidationFailed,
			"behavior query parameter is required"))
		return
	}

	p, err := s.store.Get(r.Context(), name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	n, err := p.Upgrade(r.Context(), typeID, ref)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, UpgradeResponse{Page: name, Type: typeID, Behavior: ref, Upgraded: n})
}

func (s *Server) handleIssues(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.Get(r.Context(), r.PathValue("name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	issues := p.Issues()
	if issues == nil {
		issues = []shrooterrors.Issue{}
	}
	writeJSON(w, http.StatusOK, issues)
}

func (s *Server) handleCatchUp(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.Get(r.Context(), r.PathValue("name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := p.CatchUp(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p.Stats())
}

// writeError logs err and answers with a JSON body and a status derived
// from its type.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	s.errors.Handle(r.Context(), err)

	resp := errorResponse{Error: err.Error()}
	var se *shrooterrors.ShrootError
	if errors.As(err, &se) {
		resp.Code = se.Code
		resp.Type = string(se.Type)
		resp.Suggestions = s.suggestions(err)
	}
	writeJSON(w, statusFor(err), resp)
}

func (s *Server) suggestions(err error) []string {
	sc := &shrooterrors.SuggestionContext{
		PagesDir:     s.store.Dir(),
		BehaviorsDir: s.config.Behaviors.Dir,
		Port:         s.config.Server.Port,
	}
	if names, lerr := s.store.Names(); lerr == nil {
		sc.Pages = names
	}
	var titles []string
	for _, suggestion := range shrooterrors.Suggest(err, sc) {
		titles = append(titles, suggestion.Title)
	}
	return titles
}

func statusFor(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	var se *shrooterrors.ShrootError
	if !errors.As(err, &se) {
		return http.StatusInternalServerError
	}
	switch se.Code {
	case shrooterrors.ErrCodePageNotFound, shrooterrors.ErrCodeFileNotFound:
		return http.StatusNotFound
	}
	switch se.Type {
	case shrooterrors.ErrorTypeSecurity:
		return http.StatusForbidden
	case shrooterrors.ErrorTypeValidation:
		return http.StatusBadRequest
	case shrooterrors.ErrorTypeBehavior:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func contentType(format manifest.Format) string {
	switch format {
	case manifest.FormatYAML:
		return "application/yaml"
	case manifest.FormatTOML:
		return "application/toml"
	case manifest.FormatMsgpack:
		return "application/msgpack"
	}
	return "application/json"
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
