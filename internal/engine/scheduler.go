package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/conneroisu/shroot/internal/dom"
	"golang.org/x/net/html"
)

// Feed is the mutation notification service the engine subscribes to.
// *dom.Document implements it.
type Feed interface {
	Subscribe(target *html.Node, opts dom.ObserveOptions, callback dom.MutationCallback) (dom.Subscription, error)
}

// Scheduler runs work on the goroutine that owns the document. Post
// reports false when fn will never run. *dom.Loop implements it.
type Scheduler interface {
	Post(fn func()) bool
}

// ErrSchedulerStopped is returned when work could not be handed to the
// scheduler because it has shut down.
var ErrSchedulerStopped = errors.New("engine: scheduler stopped")

// stoppable schedulers close Done when they shut down and discard whatever
// they still had queued.
type stoppable interface {
	Done() <-chan struct{}
}

// stoppedSignal returns the shutdown channel of s, or nil when s never
// stops.
func stoppedSignal(s Scheduler) <-chan struct{} {
	if st, ok := s.(stoppable); ok {
		return st.Done()
	}
	return nil
}

// SchedulerFunc adapts a function to Scheduler.
type SchedulerFunc func(fn func())

// Post implements Scheduler.
func (f SchedulerFunc) Post(fn func()) bool {
	f(fn)
	return true
}

// Inline runs posted work immediately on the posting goroutine. It is only
// safe when behavior loads resolve synchronously or the caller serializes
// document access itself.
var Inline Scheduler = SchedulerFunc(func(fn func()) { fn() })

// loadTracker counts behavior loads that have not finished yet.
type loadTracker struct {
	mutex sync.Mutex
	count int
	idle  chan struct{}
}

func newLoadTracker() *loadTracker {
	idle := make(chan struct{})
	close(idle)
	return &loadTracker{idle: idle}
}

func (t *loadTracker) add() {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.count == 0 {
		t.idle = make(chan struct{})
	}
	t.count++
}

func (t *loadTracker) done() {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.count == 0 {
		return
	}
	t.count--
	if t.count == 0 {
		close(t.idle)
	}
}

func (t *loadTracker) inflight() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.count
}

// wait blocks until no load is in flight. A closed stopped channel ends
// the wait early: completions queued on a stopped scheduler never run.
func (t *loadTracker) wait(ctx context.Context, stopped <-chan struct{}) error {
	for {
		t.mutex.Lock()
		if t.count == 0 {
			t.mutex.Unlock()
			return nil
		}
		idle := t.idle
		t.mutex.Unlock()

		select {
		case <-idle:
		case <-stopped:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
