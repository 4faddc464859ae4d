package page

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/conneroisu/shroot/internal/behavior"
	"github.com/conneroisu/shroot/internal/config"
	shrooterrors "github.com/conneroisu/shroot/internal/errors"
	"github.com/conneroisu/shroot/internal/logging"
	"github.com/conneroisu/shroot/internal/manifest"
	"github.com/conneroisu/shroot/internal/recognizer"
	"github.com/conneroisu/shroot/internal/sanitize"
)

// OptionsFromConfig builds page options from the declarations and
// behaviors sections of cfg.
func OptionsFromConfig(cfg *config.Config, logger logging.Logger) (Options, error) {
	d := cfg.Declarations

	var sanitizer recognizer.Sanitizer
	if d.Sanitize {
		if d.AllowStyles {
			sanitizer = sanitize.Default()
		} else {
			sanitizer = sanitize.New(sanitize.Options{})
		}
	}

	recognizers := func(source string) []recognizer.Declarations {
		opts := recognizer.Options{
			ModeAttr:     d.ModeAttr,
			TypeAttr:     d.TypeAttr,
			BehaviorAttr: d.BehaviorAttr,
			Source:       source,
			Sanitizer:    sanitizer,
		}
		list := []recognizer.Declarations{recognizer.NewTemplateRecognizer(opts)}
		if d.Define {
			list = append(list, recognizer.NewDefineRecognizer(opts))
		}
		return list
	}

	opts := Options{
		Recognizers:  recognizers,
		Loader:       NewLoader(cfg.Behaviors),
		ScanSubtrees: d.ScanSubtrees,
		Logger:       logger,
	}

	if d.Manifest != "" {
		m, err := manifest.ReadFile(d.Manifest)
		if err != nil {
			return Options{}, err
		}
		templates, err := m.Templates()
		if err != nil {
			return Options{}, err
		}
		opts.Preload = templates
	}
	return opts, nil
}

// NewLoader builds the behavior loader: the built-in catalog, then files
// under cfg.Dir, loaded asynchronously.
func NewLoader(cfg config.BehaviorsConfig) behavior.Loader {
	loaders := behavior.FirstLoader{behavior.NewStaticLoader(behavior.NewCatalog())}
	if cfg.Dir != "" {
		loaders = append(loaders, behavior.NewFileLoader(cfg.Dir))
	}
	return behavior.NewAsyncLoader(loaders,
		behavior.WithTimeout(cfg.LoadTimeout),
		behavior.WithDelay(cfg.Delay))
}

// Store opens pages from a directory on demand and keeps them live until
// they are invalidated.
type Store struct {
	dir        string
	extensions []string
	exclude    []string
	opts       Options
	logger     logging.Logger

	mutex sync.Mutex
	pages map[string]*Page
}

// NewStore creates a store over the pages section of cfg.
func NewStore(cfg config.PagesConfig, opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Store{
		dir:        cfg.Dir,
		extensions: cfg.Extensions,
		exclude:    cfg.Exclude,
		opts:       opts,
		logger:     logger.WithComponent("pages"),
		pages:      make(map[string]*Page),
	}
}

// Dir returns the page directory.
func (s *Store) Dir() string { return s.dir }

// Names lists the pages on disk, relative to the directory and without
// extension, sorted.
func (s *Store) Names() ([]string, error) {
	var names []string
	err := filepath.WalkDir(s.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != s.dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if name, ok := s.NameOf(path); ok {
			names = append(names, name)
		}
		return nil
	})
	if err != nil {
		return nil, shrooterrors.NewIOError(shrooterrors.ErrCodeFileNotFound, "list pages", err).WithFile(s.dir)
	}
	sort.Strings(names)
	return names, nil
}

// NameOf maps a file path to a page name. It reports false for files that
// are not pages.
func (s *Store) NameOf(path string) (string, bool) {
	rel, err := filepath.Rel(s.dir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	base := filepath.Base(rel)
	for _, pattern := range s.exclude {
		if matched, _ := filepath.Match(pattern, base); matched {
			return "", false
		}
	}
	ext := filepath.Ext(rel)
	for _, allowed := range s.extensions {
		if strings.EqualFold(ext, allowed) {
			return filepath.ToSlash(strings.TrimSuffix(rel, ext)), true
		}
	}
	return "", false
}

// resolve maps a page name to its file, rejecting names that escape the
// directory.
func (s *Store) resolve(name string) (string, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(name))
	if clean != "/"+filepath.FromSlash(name) || strings.Contains(name, "..") {
		return "", shrooterrors.ErrPathTraversal(name)
	}
	for _, ext := range s.extensions {
		path := filepath.Join(s.dir, clean+ext)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			if _, ok := s.NameOf(path); ok {
				return path, nil
			}
		}
	}
	return "", shrooterrors.ErrPageNotFound(name)
}

// Get returns the live page called name, opening it on first use.
func (s *Store) Get(ctx context.Context, name string) (*Page, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if p, ok := s.pages[name]; ok {
		return p, nil
	}

	path, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	markup, err := os.ReadFile(path)
	if err != nil {
		return nil, shrooterrors.NewIOError(shrooterrors.ErrCodeFileNotFound, "read page", err).WithFile(path)
	}
	p, err := Open(ctx, name, path, string(markup), s.opts)
	if err != nil {
		return nil, err
	}
	s.pages[name] = p
	return p, nil
}

// Invalidate closes the live page for the file at path, if any, so the next
// Get reopens it. It returns the page name and whether path was a page.
func (s *Store) Invalidate(path string) (string, bool) {
	name, ok := s.NameOf(path)
	if !ok {
		return "", false
	}

	s.mutex.Lock()
	p, live := s.pages[name]
	delete(s.pages, name)
	s.mutex.Unlock()

	if live {
		p.Close()
		s.logger.Debug(context.Background(), "Page invalidated", "page", name)
	}
	return name, true
}

// Live returns the names of the pages currently open, sorted.
func (s *Store) Live() []string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	names := make([]string, 0, len(s.pages))
	for name := range s.pages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close closes every live page.
func (s *Store) Close() {
	s.mutex.Lock()
	pages := s.pages
	s.pages = make(map[string]*Page)
	s.mutex.Unlock()

	for _, p := range pages {
		p.Close()
	}
}
