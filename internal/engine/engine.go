// Package engine is the registration and injection engine. It subscribes to
// a document's mutation feed and, for every batch of inserted nodes, first
// registers the declarations they complete and then injects the instances
// they contain, so a declaration and its first instance arriving together
// still match.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/conneroisu/shroot/internal/behavior"
	"github.com/conneroisu/shroot/internal/dom"
	"github.com/conneroisu/shroot/internal/elements"
	shrooterrors "github.com/conneroisu/shroot/internal/errors"
	"github.com/conneroisu/shroot/internal/injector"
	"github.com/conneroisu/shroot/internal/logging"
	"github.com/conneroisu/shroot/internal/matcher"
	"github.com/conneroisu/shroot/internal/recognizer"
	"github.com/conneroisu/shroot/internal/registry"
	"golang.org/x/net/html"
)

// Config wires the engine's collaborators. Zero fields get defaults.
type Config struct {
	// Feed defaults to the document itself.
	Feed Feed
	// Templates may be shared between engines, e.g. for manifests.
	Templates *registry.TemplateRegistry
	Elements  *elements.Registry
	// Recognizers default to a TemplateRecognizer with the default
	// attribute names.
	Recognizers []recognizer.Declarations
	// Loader defaults to the built-in behavior catalog.
	Loader behavior.Loader
	// Scheduler receives behavior load completions. It defaults to Inline.
	Scheduler Scheduler
	Logger    logging.Logger
	// Notifier receives every structured error the engine reports.
	Notifier shrooterrors.Notifier
	// ScanSubtrees also checks the descendants of inserted nodes.
	ScanSubtrees bool
	// Source names the document in logs and errors.
	Source string
}

// Stats counts what the engine has done.
type Stats struct {
	Batches        int `json:"batches" yaml:"batches" toml:"batches" msgpack:"batches"`
	Registered     int `json:"registered" yaml:"registered" toml:"registered" msgpack:"registered"`
	Ignored        int `json:"ignored" yaml:"ignored" toml:"ignored" msgpack:"ignored"`
	Injected       int `json:"injected" yaml:"injected" toml:"injected" msgpack:"injected"`
	Deferred       int `json:"deferred" yaml:"deferred" toml:"deferred" msgpack:"deferred"`
	Dropped        int `json:"dropped" yaml:"dropped" toml:"dropped" msgpack:"dropped"`
	Failed         int `json:"failed" yaml:"failed" toml:"failed" msgpack:"failed"`
	BehaviorErrors int `json:"behavior_errors" yaml:"behavior_errors" toml:"behavior_errors" msgpack:"behavior_errors"`
	PendingLoads   int `json:"pending_loads" yaml:"pending_loads" toml:"pending_loads" msgpack:"pending_loads"`
}

// pendingLoad is a declaration waiting for its behavior.
type pendingLoad struct {
	template   *registry.Template
	generation int
}

// Engine runs on the goroutine that owns its document. Start, Stop,
// CatchUp and the batch handler must all run there; Settle, Upgrade and
// Stats may be called from anywhere.
type Engine struct {
	doc         *dom.Document
	feed        Feed
	templates   *registry.TemplateRegistry
	elements    *elements.Registry
	recognizers []recognizer.Declarations
	matcher     *matcher.Matcher
	injector    *injector.Injector
	loader      behavior.Loader
	scheduler   Scheduler
	logger      logging.Logger
	errors      *shrooterrors.ErrorHandler
	scanAll     bool
	source      string

	subscription dom.Subscription
	generations  map[string]int
	pending      map[string]pendingLoad
	loads        *loadTracker
	ctx          context.Context

	statsMutex sync.Mutex
	stats      Stats
}

// New creates an engine for doc. It does nothing until Start or CatchUp.
func New(doc *dom.Document, cfg Config) *Engine {
	if cfg.Feed == nil {
		cfg.Feed = doc
	}
	if cfg.Templates == nil {
		cfg.Templates = registry.NewTemplateRegistry()
	}
	if cfg.Elements == nil {
		cfg.Elements = elements.NewRegistry()
	}
	if len(cfg.Recognizers) == 0 {
		opts := recognizer.DefaultOptions()
		opts.Source = cfg.Source
		cfg.Recognizers = []recognizer.Declarations{recognizer.NewTemplateRecognizer(opts)}
	}
	if cfg.Loader == nil {
		cfg.Loader = behavior.NewStaticLoader(behavior.NewCatalog())
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = Inline
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	logger := cfg.Logger.WithComponent("engine")
	if cfg.Source != "" {
		logger = logger.With("source", cfg.Source)
	}

	inj := injector.New(doc)
	return &Engine{
		doc:         doc,
		feed:        cfg.Feed,
		templates:   cfg.Templates,
		elements:    cfg.Elements,
		recognizers: cfg.Recognizers,
		matcher:     matcher.New(cfg.Templates, inj),
		injector:    inj,
		loader:      cfg.Loader,
		scheduler:   cfg.Scheduler,
		logger:      logger,
		errors:      shrooterrors.NewErrorHandler(logger, cfg.Notifier),
		scanAll:     cfg.ScanSubtrees,
		source:      cfg.Source,
		generations: make(map[string]int),
		pending:     make(map[string]pendingLoad),
		loads:       newLoadTracker(),
		ctx:         context.Background(),
	}
}

// Templates returns the template registry.
func (e *Engine) Templates() *registry.TemplateRegistry { return e.templates }

// Elements returns the component registry.
func (e *Engine) Elements() *elements.Registry { return e.elements }

// Injector returns the injector, mainly for inspection.
func (e *Engine) Injector() *injector.Injector { return e.injector }

// Start subscribes to the feed for the subtree rooted at the document
// element. Calling Start on a started engine does nothing.
func (e *Engine) Start() error {
	if e.subscription != nil {
		return nil
	}
	target := e.doc.DocumentElement()
	if target == nil {
		return shrooterrors.NewInternalError(shrooterrors.ErrCodeInternalError, "document has no document element", nil)
	}
	sub, err := e.feed.Subscribe(target, dom.ObserveOptions{ChildList: true, Subtree: true}, e.handleBatch)
	if err != nil {
		return fmt.Errorf("subscribe to mutation feed: %w", err)
	}
	e.subscription = sub
	e.logger.Debug(e.ctx, "Engine started")
	return nil
}

// Stop unsubscribes. A batch being processed runs to completion. Stop is
// safe to call when the engine is not started.
func (e *Engine) Stop() {
	if e.subscription == nil {
		return
	}
	e.subscription.Disconnect()
	e.subscription = nil
	e.logger.Debug(e.ctx, "Engine stopped")
}

// Running reports whether the engine is subscribed.
func (e *Engine) Running() bool {
	return e.subscription != nil
}

// CatchUp scans the current tree once: every declaration first, in
// document order, then every element not injected yet.
func (e *Engine) CatchUp() {
	root := e.doc.Root()
	dom.WalkElements(root, func(n *html.Node) {
		for _, r := range e.recognizers {
			if !r.IsDeclaration(n) {
				continue
			}
			if t, ok := r.Snapshot(n); ok {
				e.register(t)
			}
		}
	})
	for _, n := range e.matcher.Candidates(root) {
		e.matchNode(n)
	}
}

// Preload registers records that did not come from the document, e.g. a
// manifest, as if their declarations had just been recognized.
func (e *Engine) Preload(templates []*registry.Template) {
	for _, t := range templates {
		e.register(t)
	}
}

// Settle waits until every behavior load started so far has finished and
// its completion has run. It must not be called from the goroutine that
// runs the scheduler's work. Once a scheduler that can stop has stopped,
// Settle returns nil without waiting for completions that will never run.
func (e *Engine) Settle(ctx context.Context) error {
	return e.loads.wait(ctx, stoppedSignal(e.scheduler))
}

// Stats returns a snapshot of the counters.
func (e *Engine) Stats() Stats {
	e.statsMutex.Lock()
	defer e.statsMutex.Unlock()
	s := e.stats
	s.PendingLoads = e.loads.inflight()
	return s
}

func (e *Engine) count(fn func(s *Stats)) {
	e.statsMutex.Lock()
	fn(&e.stats)
	e.statsMutex.Unlock()
}

// handleBatch is the feed callback: declarations pass, then instances pass.
func (e *Engine) handleBatch(records []dom.MutationRecord, _ *dom.MutationObserver) {
	defer func() {
		if r := recover(); r != nil {
			e.report(shrooterrors.NewInternalError(shrooterrors.ErrCodeInternalError,
				"batch handler panicked", fmt.Errorf("%v", r)))
		}
	}()
	e.count(func(s *Stats) { s.Batches++ })

	seen := make(map[*html.Node]struct{})
	var inserted []*html.Node
	for _, record := range records {
		for _, n := range record.RemovedNodes {
			if !dom.IsInclusiveAncestor(e.doc.Root(), n) {
				e.injector.Forget(n)
			}
		}
		for _, n := range record.AddedNodes {
			if _, dup := seen[n]; dup {
				continue
			}
			seen[n] = struct{}{}
			if e.injector.Owns(n) || inTemplateContent(n) {
				continue
			}
			inserted = append(inserted, n)
		}
	}

	for _, n := range inserted {
		for _, r := range e.recognizers {
			if t, ok := r.Recognize(n); ok {
				e.register(t)
			}
		}
		if e.scanAll {
			e.scanDeclarations(n)
		}
	}

	checked := make(map[*html.Node]struct{})
	for _, n := range inserted {
		candidates := []*html.Node{n}
		if e.scanAll {
			candidates = e.matcher.Candidates(n)
		}
		for _, c := range candidates {
			if _, dup := checked[c]; dup {
				continue
			}
			checked[c] = struct{}{}
			e.matchNode(c)
		}
	}
}

// scanDeclarations snapshots declarations below n whose content arrived
// together with them.
func (e *Engine) scanDeclarations(n *html.Node) {
	dom.WalkElements(n, func(c *html.Node) {
		if c == n {
			return
		}
		for _, r := range e.recognizers {
			if r.IsDeclaration(c) {
				if t, ok := r.Snapshot(c); ok {
					e.register(t)
				}
			}
		}
	})
}

// register makes t live. Templates with a behavior reference wait for the
// behavior to load; their instances are queued until then.
func (e *Engine) register(t *registry.Template) {
	typeID := t.TypeID()
	if typeID == "" {
		e.count(func(s *Stats) { s.Ignored++ })
		e.report(shrooterrors.NewDeclarationError(shrooterrors.ErrCodeMalformedDeclaration,
			"declaration has an empty type id"))
		return
	}

	e.generations[typeID]++
	generation := e.generations[typeID]

	if t.Behavior() == "" {
		delete(e.pending, typeID)
		e.activate(t, nil)
		return
	}

	e.pending[typeID] = pendingLoad{template: t, generation: generation}
	e.matcher.Defer(typeID)
	e.logger.Debug(e.ctx, "Loading behavior", "type_id", typeID, "behavior", t.Behavior())

	future := e.loader.Load(e.ctx, t.Behavior())
	if future.Ready() {
		e.finishLoad(typeID, generation, future)
		return
	}

	e.loads.add()
	go func() {
		<-future.Done()
		queued := e.scheduler.Post(func() {
			defer e.loads.done()
			e.finishLoad(typeID, generation, future)
		})
		if !queued {
			e.loads.done()
		}
	}()
}

// finishLoad completes a pending registration unless a newer declaration
// for the same type superseded it.
func (e *Engine) finishLoad(typeID string, generation int, future *behavior.Future) {
	p, ok := e.pending[typeID]
	if !ok || p.generation != generation || e.generations[typeID] != generation {
		return
	}
	delete(e.pending, typeID)

	b, err := future.Result()
	if err != nil {
		dropped := e.matcher.Abandon(typeID)
		e.count(func(s *Stats) { s.Dropped += dropped })
		e.report(shrooterrors.ErrBehaviorLoad(typeID, p.template.Behavior(), err).
			WithContext("dropped_instances", dropped))
		return
	}
	e.activate(p.template, b)
}

// activate registers t, defines or updates its element definition and
// injects any instances queued while it was pending.
func (e *Engine) activate(t *registry.Template, b behavior.Behavior) {
	typeID := t.TypeID()
	event := e.templates.Register(t)
	e.count(func(s *Stats) { s.Registered++ })

	switch {
	case !elements.ValidName(typeID):
		// Plain tag names get the template but no element definition.
		if b != nil {
			e.report(shrooterrors.NewDeclarationError(shrooterrors.ErrCodeInvalidName,
				"behavior "+t.Behavior()+" ignored: not a custom element name").WithComponent(typeID))
		}
	case e.elements.IsDefined(typeID):
		if b != nil {
			if _, err := e.elements.Upgrade(typeID, b); err != nil {
				e.report(err)
			}
		}
	default:
		if err := e.elements.Define(typeID, b); err != nil {
			e.report(shrooterrors.NewValidationError(shrooterrors.ErrCodeDuplicateDefinition, err.Error()).
				WithComponent(typeID))
		}
	}
	e.logger.Info(e.ctx, "Component registered", "type_id", typeID, "event", event.String(), "mode", string(t.Mode()))

	root := e.doc.Root()
	for _, n := range e.matcher.Resolve(typeID) {
		if !dom.IsInclusiveAncestor(root, n) {
			e.count(func(s *Stats) { s.Dropped++ })
			continue
		}
		e.inject(n, t)
	}
}

func (e *Engine) matchNode(n *html.Node) {
	t, outcome := e.matcher.Match(n)
	switch outcome {
	case matcher.Matched:
		e.inject(n, t)
	case matcher.Deferred:
		e.count(func(s *Stats) { s.Deferred++ })
	}
}

func (e *Engine) inject(n *html.Node, t *registry.Template) {
	ok, err := e.injector.Inject(n, t)
	if err != nil {
		e.count(func(s *Stats) { s.Failed++ })
		e.report(err)
		return
	}
	if !ok {
		return
	}
	e.count(func(s *Stats) { s.Injected++ })
	e.logger.Debug(e.ctx, "Element injected", "type_id", t.TypeID())

	def, defined := e.elements.Get(t.TypeID())
	if defined && def.Behavior != nil {
		e.connect(def.Behavior, n, t.TypeID())
	}
}

// connect runs a behavior against one element. Errors and panics are
// reported and never escape.
func (e *Engine) connect(b behavior.Behavior, el *html.Node, typeID string) {
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = shrooterrors.NewBehaviorError(shrooterrors.ErrCodeBehaviorPanic, "behavior panicked", fmt.Errorf("%v", r))
			}
		}()
		err = b.Connected(behavior.Context{
			Document: e.doc,
			Element:  el,
			Root:     e.doc.AttachedShadowRoot(el),
			TypeID:   typeID,
		})
	}()
	if err != nil {
		e.count(func(s *Stats) { s.BehaviorErrors++ })
		var se *shrooterrors.ShrootError
		if !errors.As(err, &se) {
			se = shrooterrors.NewBehaviorError(shrooterrors.ErrCodeBehaviorFailed, "behavior failed", err)
		}
		if se.Component == "" {
			se.WithComponent(typeID)
		}
		e.report(se)
	}
}

// Upgrade loads a new behavior for an already defined type, swaps it into
// the element definition and runs it against every element injected with
// that type. It returns how many elements were upgraded. Upgrade blocks on
// the load, so call it off the document goroutine when the loader is
// asynchronous.
func (e *Engine) Upgrade(ctx context.Context, typeID, ref string) (int, error) {
	typeID = registry.Key(typeID)
	b, err := e.loader.Load(ctx, ref).Wait(ctx)
	if err != nil {
		return 0, shrooterrors.ErrBehaviorLoad(typeID, ref, err)
	}

	result := make(chan error, 1)
	upgraded := 0
	queued := e.scheduler.Post(func() {
		if _, err := e.elements.Upgrade(typeID, b); err != nil {
			result <- err
			return
		}
		for _, el := range e.injector.Instances(typeID) {
			e.connect(b, el, typeID)
			upgraded++
		}
		result <- nil
	})
	if !queued {
		return 0, ErrSchedulerStopped
	}

	select {
	case err := <-result:
		return upgraded, err
	case <-stoppedSignal(e.scheduler):
		select {
		case err := <-result:
			return upgraded, err
		default:
			return 0, ErrSchedulerStopped
		}
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (e *Engine) report(err error) {
	var se *shrooterrors.ShrootError
	if e.source != "" && errors.As(err, &se) && se.FilePath == "" {
		se.WithFile(e.source)
	}
	e.errors.Handle(e.ctx, err)
}

// inTemplateContent reports whether n sits inside a <template>, whose
// content is inert.
func inTemplateContent(n *html.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if dom.IsTemplate(p) {
			return true
		}
	}
	return false
}
