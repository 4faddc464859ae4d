// Package server is the development server: it serves expanded pages from
// the page store, accepts fragments into live documents and tells browsers
// to reload when page files change.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/conneroisu/shroot/internal/config"
	shrooterrors "github.com/conneroisu/shroot/internal/errors"
	"github.com/conneroisu/shroot/internal/logging"
	"github.com/conneroisu/shroot/internal/page"
	"github.com/conneroisu/shroot/internal/watcher"
)

// Server serves live pages with reload notifications.
type Server struct {
	config  *config.Config
	store   *page.Store
	hub     *Hub
	watcher *watcher.FileWatcher
	logger  logging.Logger
	errors  *shrooterrors.ErrorHandler
	started time.Time

	serverMutex  sync.RWMutex
	httpServer   *http.Server
	shutdownOnce sync.Once
}

// New creates a server over store. The watcher is only created when hot
// reload is enabled.
func New(cfg *config.Config, store *page.Store, logger logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.WithComponent("server")

	s := &Server{
		config:  cfg,
		store:   store,
		logger:  logger,
		errors:  shrooterrors.NewErrorHandler(logger, nil),
		started: time.Now(),
	}
	s.hub = NewHub(logger, OriginChecker(cfg.Server.Host, cfg.Server.Port, cfg.Server.AllowedOrigins))

	if cfg.Development.HotReload {
		fw, err := watcher.NewFileWatcher(cfg.Development.Debounce, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create file watcher: %w", err)
		}
		s.watcher = fw
	}
	return s, nil
}

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /pages/{name...}", s.handlePage)
	mux.HandleFunc("POST /api/pages/{name}/fragments", s.handleFragments)
	mux.HandleFunc("GET /api/pages/{name}/components", s.handleComponents)
	mux.HandleFunc("POST /api/pages/{name}/components/{type}/upgrade", s.handleUpgrade)
	mux.HandleFunc("GET /api/pages/{name}/issues", s.handleIssues)
	mux.HandleFunc("POST /api/pages/{name}/catch-up", s.handleCatchUp)
	mux.Handle("GET /ws", s.hub)

	return s.addMiddleware(mux)
}

// Start runs the hub and the watcher, then serves HTTP until ctx is done
// or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Server.Host, fmt.Sprint(s.config.Server.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return shrooterrors.NewIOError(shrooterrors.ErrCodeInternalError, "listen on "+addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if err := s.startWatcher(ctx); err != nil {
		ln.Close()
		return err
	}
	go s.hub.Run(ctx)

	s.serverMutex.Lock()
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Serving pages", "addr", ln.Addr().String(), "dir", s.store.Dir(),
		"hot_reload", s.config.Development.HotReload)
	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func (s *Server) startWatcher(ctx context.Context) error {
	if s.watcher == nil {
		return nil
	}
	s.watcher.AddFilter(watcher.NoHiddenFilter)
	s.watcher.AddFilter(watcher.ExtensionFilter(s.config.Pages.Extensions...))
	s.watcher.AddFilter(watcher.ExcludeFilter(s.config.Pages.Exclude...))
	s.watcher.AddHandler(s.handleFileChange)

	if err := s.watcher.AddRecursive(s.store.Dir()); err != nil {
		return shrooterrors.NewIOError(shrooterrors.ErrCodeFileNotFound, "watch page directory", err).
			WithFile(s.store.Dir())
	}
	return s.watcher.Start(ctx)
}

// handleFileChange drops live pages whose files changed and tells their
// browsers to reload.
func (s *Server) handleFileChange(events []watcher.ChangeEvent) error {
	for _, event := range events {
		name, ok := s.store.Invalidate(event.Path)
		if !ok {
			continue
		}
		s.logger.Info(context.Background(), "Page changed", "page", name, "event", event.Type.String())
		s.hub.Broadcast(UpdateMessage{Type: MessageReload, Page: name})
	}
	return nil
}

// Shutdown stops the HTTP server, the watcher and every live page.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.serverMutex.RLock()
		server := s.httpServer
		s.serverMutex.RUnlock()

		if server != nil {
			if shutdownErr := server.Shutdown(ctx); shutdownErr != nil {
				err = fmt.Errorf("shutdown http server: %w", shutdownErr)
			}
		}
		if s.watcher != nil {
			if stopErr := s.watcher.Stop(); stopErr != nil && err == nil {
				err = fmt.Errorf("stop watcher: %w", stopErr)
			}
		}
		s.store.Close()
		s.logger.Info(ctx, "Server stopped")
	})
	return err
}

// statusResponseWriter records the status for request logging.
type statusResponseWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusResponseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return http.NewResponseController(w.ResponseWriter).Hijack()
}

// Unwrap lets http.ResponseController and websocket.Accept reach the
// underlying writer.
func (w *statusResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// applySecurityHeaders sets the headers every response carries. Pages are
// never framed by other origins and content types are never sniffed.
func applySecurityHeaders(h http.Header) {
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Frame-Options", "SAMEORIGIN")
	h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
	h.Set("X-DNS-Prefetch-Control", "off")
	h.Set("Cross-Origin-Opener-Policy", "same-origin")
}

func (s *Server) addMiddleware(handler http.Handler) http.Handler {
	allowOrigin := OriginChecker(s.config.Server.Host, s.config.Server.Port, s.config.Server.AllowedOrigins)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		applySecurityHeaders(w.Header())

		if origin := r.Header.Get("Origin"); origin != "" && allowOrigin(r) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		rw := &statusResponseWriter{ResponseWriter: w, status: http.StatusOK}
		handler.ServeHTTP(rw, r)

		s.logger.Debug(r.Context(), "Request served",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.status,
			"duration", time.Since(start).String())
	})
}
