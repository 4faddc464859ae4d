package dom

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrLoopClosed is returned by Do once the loop has stopped.
var ErrLoopClosed = errors.New("dom: loop closed")

// Loop runs tasks against a Document one at a time on a single goroutine.
// After every task it flushes the document, so mutation records produced by
// a task are delivered before the next task starts.
type Loop struct {
	doc    *Document
	mutex  sync.Mutex
	tasks  []func()
	wake   chan struct{}
	done   chan struct{}
	closed bool

	// OnPanic receives panics recovered from tasks. The loop keeps running.
	OnPanic func(err error)
}

// NewLoop creates a loop for doc. Call Run to start processing.
func NewLoop(doc *Document) *Loop {
	return &Loop{
		doc:  doc,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Document returns the document the loop owns.
func (l *Loop) Document() *Document { return l.doc }

// Post queues fn without waiting and reports whether it was queued. Tasks
// posted after the loop stopped are rejected, and tasks still queued when
// it stops are discarded; watch Done to notice the latter.
func (l *Loop) Post(fn func()) bool {
	l.mutex.Lock()
	if l.closed {
		l.mutex.Unlock()
		return false
	}
	l.tasks = append(l.tasks, fn)
	l.mutex.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Do runs fn on the loop and waits for it, including the flush that
// follows it.
func (l *Loop) Do(ctx context.Context, fn func(doc *Document) error) error {
	result := make(chan error, 1)
	queued := l.Post(func() {
		defer func() {
			if r := recover(); r != nil {
				result <- fmt.Errorf("dom: loop task panicked: %v", r)
			}
		}()
		result <- fn(l.doc)
	})
	if !queued {
		return ErrLoopClosed
	}

	select {
	case err := <-result:
		return err
	case <-l.done:
		select {
		case err := <-result:
			return err
		default:
			return ErrLoopClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes tasks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	defer func() {
		l.mutex.Lock()
		l.closed = true
		l.tasks = nil
		l.mutex.Unlock()
		close(l.done)
	}()

	for {
		for {
			task, ok := l.next()
			if !ok {
				break
			}
			if err := l.runTask(task); err != nil && l.OnPanic != nil {
				l.OnPanic(err)
			}
			if ctx.Err() != nil {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-l.wake:
		}
	}
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} { return l.done }

func (l *Loop) next() (func(), bool) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if len(l.tasks) == 0 {
		return nil, false
	}
	task := l.tasks[0]
	l.tasks[0] = nil
	l.tasks = l.tasks[1:]
	return task, true
}

func (l *Loop) runTask(task func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dom: loop task panicked: %v", r)
		}
	}()
	task()
	l.doc.Flush()
	return nil
}
