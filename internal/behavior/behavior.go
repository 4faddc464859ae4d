// Package behavior provides the optional per-component behavior that runs
// when an element is upgraded, and the loaders that resolve a behavior
// reference into one.
package behavior

import (
	"context"
	"sync"

	"github.com/conneroisu/shroot/internal/dom"
	"golang.org/x/net/html"
)

// Context is what a behavior sees when an element is connected.
type Context struct {
	Document *dom.Document
	Element  *html.Node
	// Root is the element's rendering scope, nil for shadowless types.
	Root   *dom.ShadowRoot
	TypeID string
}

// Behavior runs against every upgraded instance of a component type. It is
// called on the goroutine that owns the document.
type Behavior interface {
	Connected(c Context) error
}

// Func adapts a function to Behavior.
type Func func(c Context) error

// Connected implements Behavior.
func (f Func) Connected(c Context) error { return f(c) }

// Chain runs behaviors in order and stops at the first error.
func Chain(behaviors ...Behavior) Behavior {
	return Func(func(c Context) error {
		for _, b := range behaviors {
			if b == nil {
				continue
			}
			if err := b.Connected(c); err != nil {
				return err
			}
		}
		return nil
	})
}

// Future is the handle for a behavior that may still be loading.
type Future struct {
	done     chan struct{}
	once     sync.Once
	behavior Behavior
	err      error
}

// NewFuture returns an unresolved future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolved returns a future that is already complete.
func Resolved(b Behavior, err error) *Future {
	f := NewFuture()
	f.Resolve(b, err)
	return f
}

// Resolve completes the future. Only the first call has an effect.
func (f *Future) Resolve(b Behavior, err error) {
	f.once.Do(func() {
		f.behavior = b
		f.err = err
		close(f.done)
	})
}

// Done is closed once the future is resolved.
func (f *Future) Done() <-chan struct{} { return f.done }

// Ready reports whether the future is resolved.
func (f *Future) Ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Result returns the outcome. It must only be called once Done is closed.
func (f *Future) Result() (Behavior, error) {
	return f.behavior, f.err
}

// Wait blocks until the future resolves or ctx ends.
func (f *Future) Wait(ctx context.Context) (Behavior, error) {
	select {
	case <-f.done:
		return f.behavior, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
