// Package page hosts live documents. Each page owns a document, the loop
// that serializes access to it and an engine subscribed to it, so markup
// delivered later is registered and injected the same way the initial
// parse was.
package page

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"time"

	"github.com/conneroisu/shroot/internal/behavior"
	"github.com/conneroisu/shroot/internal/dom"
	"github.com/conneroisu/shroot/internal/engine"
	shrooterrors "github.com/conneroisu/shroot/internal/errors"
	"github.com/conneroisu/shroot/internal/logging"
	"github.com/conneroisu/shroot/internal/manifest"
	"github.com/conneroisu/shroot/internal/recognizer"
	"github.com/conneroisu/shroot/internal/registry"
)

// DeliveryMode selects how a fragment enters the document.
type DeliveryMode string

const (
	// Stream inserts node by node, as a parser streaming a response does.
	Stream DeliveryMode = "stream"
	// Append inserts the parsed fragment as a single mutation.
	Append DeliveryMode = "append"
)

// ParseDeliveryMode accepts "stream" and "append"; empty means Stream.
func ParseDeliveryMode(s string) (DeliveryMode, error) {
	switch DeliveryMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", Stream:
		return Stream, nil
	case Append:
		return Append, nil
	}
	return "", shrooterrors.NewValidationError(shrooterrors.ErrCodeValidationFailed, "unknown delivery mode: "+s)
}

// Options configures every page built from it.
type Options struct {
	// Recognizers builds fresh recognizers per page, since recognizers
	// remember the declarations they have seen.
	Recognizers func(source string) []recognizer.Declarations
	Loader      behavior.Loader
	// Preload records are registered before the catch-up scan.
	Preload      []*registry.Template
	ScanSubtrees bool
	Logger       logging.Logger
	// SettleTimeout bounds waiting for behavior loads. Zero means 10s.
	SettleTimeout time.Duration
	// ErrorLimit caps the issues kept per page. Zero means no cap.
	ErrorLimit int
}

// Page is one live document.
type Page struct {
	name      string
	source    string
	loop      *dom.Loop
	engine    *engine.Engine
	collector *shrooterrors.Collector
	logger    logging.Logger
	settle    time.Duration
	cancel    context.CancelFunc
	loaded    time.Time
	closeOnce sync.Once
}

// Open parses markup as a full document, starts its loop and engine and
// runs a catch-up scan. The returned page is settled.
func Open(ctx context.Context, name, source, markup string, opts Options) (*Page, error) {
	doc, err := dom.ParseString(markup)
	if err != nil {
		return nil, shrooterrors.NewIOError(shrooterrors.ErrCodeInternalError, "parse page", err).WithFile(source)
	}

	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.SettleTimeout <= 0 {
		opts.SettleTimeout = 10 * time.Second
	}
	logger := opts.Logger.WithComponent("page").With("page", name)

	loop := dom.NewLoop(doc)
	loop.OnPanic = func(err error) {
		logger.Error(context.Background(), err, "Document task panicked")
	}
	collector := shrooterrors.NewCollector(opts.ErrorLimit)

	cfg := engine.Config{
		Loader:       opts.Loader,
		Scheduler:    loop,
		Logger:       opts.Logger,
		Notifier:     collector,
		ScanSubtrees: opts.ScanSubtrees,
		Source:       source,
	}
	if opts.Recognizers != nil {
		cfg.Recognizers = opts.Recognizers(source)
	}
	eng := engine.New(doc, cfg)

	runCtx, cancel := context.WithCancel(context.Background())
	go func() { _ = loop.Run(runCtx) }()

	p := &Page{
		name:      name,
		source:    source,
		loop:      loop,
		engine:    eng,
		collector: collector,
		logger:    logger,
		settle:    opts.SettleTimeout,
		cancel:    cancel,
		loaded:    time.Now(),
	}

	err = loop.Do(ctx, func(*dom.Document) error {
		if err := eng.Start(); err != nil {
			return err
		}
		eng.Preload(opts.Preload)
		eng.CatchUp()
		return nil
	})
	if err != nil {
		p.Close()
		return nil, err
	}
	if err := p.Settle(ctx); err != nil {
		p.Close()
		return nil, err
	}

	stats := eng.Stats()
	logger.Info(ctx, "Page loaded",
		"registered", stats.Registered,
		"injected", stats.Injected,
		"issues", len(collector.Issues()))
	return p, nil
}

// Name returns the page name.
func (p *Page) Name() string { return p.name }

// Source returns the page's file path.
func (p *Page) Source() string { return p.source }

// Loaded returns when the page was opened.
func (p *Page) Loaded() time.Time { return p.loaded }

// Engine returns the page's engine.
func (p *Page) Engine() *engine.Engine { return p.engine }

// Settle waits for pending behavior loads, bounded by the settle timeout.
func (p *Page) Settle(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.settle)
	defer cancel()
	if err := p.engine.Settle(ctx); err != nil {
		return shrooterrors.NewBehaviorError(shrooterrors.ErrCodeBehaviorLoad, "behavior loads did not settle", err).
			WithFile(p.source)
	}
	return nil
}

// Deliver inserts markup at the end of the element with id target, or of
// <body> when target is empty, and waits until the engine has processed
// it and any behavior loads it started.
func (p *Page) Deliver(ctx context.Context, target, markup string, mode DeliveryMode) (engine.Stats, error) {
	err := p.loop.Do(ctx, func(doc *dom.Document) error {
		parent := doc.Body()
		if target != "" {
			parent = dom.GetElementByID(doc.Root(), target)
		}
		if parent == nil {
			return shrooterrors.NewValidationError(shrooterrors.ErrCodeValidationFailed, "no element with id "+target).
				WithFile(p.source)
		}
		if mode == Append {
			return doc.AppendHTML(parent, markup)
		}
		return doc.StreamHTML(parent, markup)
	})
	if err != nil {
		return engine.Stats{}, err
	}
	if err := p.Settle(ctx); err != nil {
		return p.engine.Stats(), err
	}
	stats := p.engine.Stats()
	p.logger.Debug(ctx, "Fragment delivered", "target", target, "mode", string(mode), "injected", stats.Injected)
	return stats, nil
}

// CatchUp runs another full scan.
func (p *Page) CatchUp(ctx context.Context) error {
	if err := p.loop.Do(ctx, func(*dom.Document) error {
		p.engine.CatchUp()
		return nil
	}); err != nil {
		return err
	}
	return p.Settle(ctx)
}

// Render serializes the document with every rendering scope as declarative
// shadow DOM.
func (p *Page) Render(ctx context.Context) (string, error) {
	var buf bytes.Buffer
	err := p.loop.Do(ctx, func(doc *dom.Document) error {
		return doc.Render(&buf)
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Inspect runs fn on the document goroutine.
func (p *Page) Inspect(ctx context.Context, fn func(doc *dom.Document) error) error {
	return p.loop.Do(ctx, fn)
}

// Manifest snapshots the page's registry.
func (p *Page) Manifest(ctx context.Context) (*manifest.Manifest, error) {
	var m *manifest.Manifest
	err := p.loop.Do(ctx, func(*dom.Document) error {
		m = manifest.Snapshot(p.engine.Templates(), p.source, p.engine.Injector())
		return nil
	})
	return m, err
}

// Upgrade swaps the behavior of a defined type on this page.
func (p *Page) Upgrade(ctx context.Context, typeID, ref string) (int, error) {
	return p.engine.Upgrade(ctx, typeID, ref)
}

// Stats returns the engine counters.
func (p *Page) Stats() engine.Stats { return p.engine.Stats() }

// Issues returns the errors reported while processing the page.
func (p *Page) Issues() []shrooterrors.Issue { return p.collector.Issues() }

// Close stops the engine and the loop. It is safe to call more than once.
func (p *Page) Close() {
	p.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = p.loop.Do(ctx, func(*dom.Document) error {
			p.engine.Stop()
			return nil
		})
		p.cancel()
		<-p.loop.Done()
	})
}
