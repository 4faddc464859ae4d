package behavior

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrUnknownBehavior is returned when a reference names nothing.
var ErrUnknownBehavior = errors.New("behavior: unknown reference")

// Loader resolves a behavior reference. Load must not block; slow work
// belongs behind the returned future.
type Loader interface {
	Load(ctx context.Context, ref string) *Future
}

// Catalog maps behavior names to behaviors.
type Catalog struct {
	behaviors map[string]Behavior
	mutex     sync.RWMutex
}

// NewCatalog returns a catalog holding the built-in behaviors.
func NewCatalog() *Catalog {
	c := &Catalog{behaviors: make(map[string]Behavior)}
	for name, b := range builtins() {
		c.behaviors[name] = b
	}
	return c
}

// Register adds or replaces a named behavior.
func (c *Catalog) Register(name string, b Behavior) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.behaviors[normalize(name)] = b
}

// Lookup returns the behavior registered under name.
func (c *Catalog) Lookup(name string) (Behavior, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	b, ok := c.behaviors[normalize(name)]
	return b, ok
}

// Names returns the registered names in order.
func (c *Catalog) Names() []string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	names := make([]string, 0, len(c.behaviors))
	for name := range c.behaviors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalize(ref string) string {
	return strings.ToLower(strings.TrimSpace(ref))
}

// StaticLoader resolves references from a catalog synchronously. The
// returned futures are always complete.
type StaticLoader struct {
	catalog *Catalog
}

// NewStaticLoader creates a loader over catalog.
func NewStaticLoader(catalog *Catalog) *StaticLoader {
	return &StaticLoader{catalog: catalog}
}

// Load implements Loader.
func (l *StaticLoader) Load(_ context.Context, ref string) *Future {
	if b, ok := l.catalog.Lookup(ref); ok {
		return Resolved(b, nil)
	}
	return Resolved(nil, fmt.Errorf("%w: %q", ErrUnknownBehavior, ref))
}

// AsyncLoader resolves references off the calling goroutine, the way a
// module loader fetches a script. Each load is bounded by Timeout.
type AsyncLoader struct {
	next    Loader
	timeout time.Duration
	delay   time.Duration
}

// AsyncOption configures an AsyncLoader.
type AsyncOption func(*AsyncLoader)

// WithTimeout bounds every load. Zero means no bound.
func WithTimeout(d time.Duration) AsyncOption {
	return func(l *AsyncLoader) { l.timeout = d }
}

// WithDelay adds latency before each load, for simulating slow modules.
func WithDelay(d time.Duration) AsyncOption {
	return func(l *AsyncLoader) { l.delay = d }
}

// NewAsyncLoader wraps next so that its loads complete asynchronously.
func NewAsyncLoader(next Loader, opts ...AsyncOption) *AsyncLoader {
	l := &AsyncLoader{next: next}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load implements Loader.
func (l *AsyncLoader) Load(ctx context.Context, ref string) *Future {
	future := NewFuture()

	go func() {
		loadCtx := ctx
		if l.timeout > 0 {
			var cancel context.CancelFunc
			loadCtx, cancel = context.WithTimeout(ctx, l.timeout)
			defer cancel()
		}

		if l.delay > 0 {
			timer := time.NewTimer(l.delay)
			select {
			case <-timer.C:
			case <-loadCtx.Done():
				timer.Stop()
				future.Resolve(nil, fmt.Errorf("load %q: %w", ref, loadCtx.Err()))
				return
			}
		}

		b, err := l.next.Load(loadCtx, ref).Wait(loadCtx)
		if err != nil {
			future.Resolve(nil, fmt.Errorf("load %q: %w", ref, err))
			return
		}
		future.Resolve(b, nil)
	}()

	return future
}

// FirstLoader tries loaders in order and returns the first success.
type FirstLoader []Loader

// Load implements Loader. Loaders are consulted one after another, waiting
// for each to resolve.
func (fl FirstLoader) Load(ctx context.Context, ref string) *Future {
	future := NewFuture()
	go func() {
		var errs []error
		for _, l := range fl {
			b, err := l.Load(ctx, ref).Wait(ctx)
			if err == nil {
				future.Resolve(b, nil)
				return
			}
			errs = append(errs, err)
		}
		if len(errs) == 0 {
			errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownBehavior, ref))
		}
		future.Resolve(nil, errors.Join(errs...))
	}()
	return future
}
