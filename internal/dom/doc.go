// Package dom provides a small, observable document model on top of
// golang.org/x/net/html node trees.
//
// A Document owns a parsed tree and routes every child-list change through
// its own methods so that registered MutationObservers receive ordered
// batches of records. Records are queued when a mutation happens and
// delivered later, at the next Flush (the microtask checkpoint), in FIFO
// order per observer. The package also provides the encapsulated rendering
// scope primitive (ShadowRoot) that the upstream HTML node type lacks, and a
// Loop that serialises all access to a Document on a single goroutine.
//
// Rendering emits declarative shadow DOM: every attached shadow root is
// serialised as a leading <template shadowrootmode="..."> child of its host,
// and Parse turns such templates back into attached shadow roots.
package dom
