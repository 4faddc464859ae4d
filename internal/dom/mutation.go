package dom

import (
	"fmt"

	"golang.org/x/net/html"
)

// RecordType names the kind of change a MutationRecord describes.
type RecordType string

// ChildList records report inserted and removed children.
const ChildList RecordType = "childList"

// MutationRecord describes one child-list change.
type MutationRecord struct {
	Type            RecordType
	Target          *html.Node
	AddedNodes      []*html.Node
	RemovedNodes    []*html.Node
	PreviousSibling *html.Node
	NextSibling     *html.Node
}

// ObserveOptions selects which changes an observer receives.
type ObserveOptions struct {
	ChildList bool
	Subtree   bool
}

// MutationCallback receives a batch of records in the order the mutations
// happened.
type MutationCallback func(records []MutationRecord, observer *MutationObserver)

// Subscription is the handle returned by Subscribe.
type Subscription interface {
	Disconnect()
}

type observation struct {
	target  *html.Node
	options ObserveOptions
}

// MutationObserver collects records for the nodes it observes and hands
// them to its callback at the next Flush.
type MutationObserver struct {
	doc          *Document
	callback     MutationCallback
	observations []observation
	records      []MutationRecord
	queued       bool
}

// NewMutationObserver creates an observer bound to this document.
func (d *Document) NewMutationObserver(callback MutationCallback) *MutationObserver {
	o := &MutationObserver{doc: d, callback: callback}
	d.observers = append(d.observers, o)
	return o
}

// Subscribe creates an observer and starts observing target with it.
func (d *Document) Subscribe(target *html.Node, opts ObserveOptions, callback MutationCallback) (Subscription, error) {
	o := d.NewMutationObserver(callback)
	if err := o.Observe(target, opts); err != nil {
		o.Disconnect()
		return nil, err
	}
	return o, nil
}

// Observe starts (or updates) observation of target.
func (o *MutationObserver) Observe(target *html.Node, opts ObserveOptions) error {
	if target == nil {
		return fmt.Errorf("%w: nil observation target", ErrHierarchy)
	}
	if !opts.ChildList {
		return fmt.Errorf("%w: childList must be observed", ErrNotSupported)
	}
	if !o.registered() {
		o.doc.observers = append(o.doc.observers, o)
	}
	for i := range o.observations {
		if o.observations[i].target == target {
			o.observations[i].options = opts
			return nil
		}
	}
	o.observations = append(o.observations, observation{target: target, options: opts})
	return nil
}

// Disconnect stops all observation and drops undelivered records. A batch
// already being delivered runs to completion.
func (o *MutationObserver) Disconnect() {
	o.observations = nil
	o.records = nil
	for i, other := range o.doc.observers {
		if other == o {
			o.doc.observers = append(o.doc.observers[:i], o.doc.observers[i+1:]...)
			break
		}
	}
}

// TakeRecords returns and clears the undelivered records.
func (o *MutationObserver) TakeRecords() []MutationRecord {
	records := o.records
	o.records = nil
	return records
}

func (o *MutationObserver) registered() bool {
	for _, other := range o.doc.observers {
		if other == o {
			return true
		}
	}
	return false
}

func (o *MutationObserver) interested(target *html.Node) bool {
	for _, obs := range o.observations {
		if !obs.options.ChildList {
			continue
		}
		if obs.target == target {
			return true
		}
		if obs.options.Subtree && IsInclusiveAncestor(obs.target, target) {
			return true
		}
	}
	return false
}

func (d *Document) queueRecord(record MutationRecord) {
	for _, o := range d.observers {
		if !o.interested(record.Target) {
			continue
		}
		o.records = append(o.records, record)
		if !o.queued {
			o.queued = true
			d.pending = append(d.pending, o)
		}
	}
}

// Pending reports whether any records are waiting for delivery.
func (d *Document) Pending() bool {
	return len(d.pending) > 0
}

// Flush delivers queued records. Records produced by callbacks are
// delivered in the same checkpoint, after the current round. Nested calls
// from inside a callback are no-ops.
func (d *Document) Flush() {
	if d.flushing {
		return
	}
	d.flushing = true
	defer func() { d.flushing = false }()

	for len(d.pending) > 0 {
		round := d.pending
		d.pending = nil
		for _, o := range round {
			o.queued = false
			records := o.TakeRecords()
			if len(records) == 0 || o.callback == nil {
				continue
			}
			o.callback(records, o)
		}
	}
}
