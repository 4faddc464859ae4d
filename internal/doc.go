// Package internal contains the core implementation packages for shroot.
//
// # Package Organization
//
// The internal packages are organized by functional domain:
//
//   - dom: HTML node helpers, the observable document and its event loop
//   - registry: template records keyed by case-insensitive type identifier
//   - recognizer: turns <template> declarations into registered templates
//   - matcher: finds elements whose tag names a registered type
//   - injector: attaches shadow roots and clones template content into them
//   - behavior: behavior catalog and asynchronous loaders
//   - engine: batches mutation records and drives the passes above
//   - elements: the element definition registry and upgrade queue
//   - page: live pages and the store that opens them on demand
//   - manifest: registry snapshots in json, yaml, toml and msgpack
//   - sanitize: optional cleaning of declaration content
//   - server: HTTP routes, live reload over WebSocket and views
//   - watcher: debounced file system monitoring
//   - config, logging, errors, version: the ambient stack
//
// # Inter-Package Communication
//
//   - The document emits mutation records; the engine is their only observer
//   - Every document change happens on the page loop goroutine
//   - The watcher invalidates pages in the store and the server broadcasts
//     reloads to connected viewers
//   - Errors raised while processing a page end up in the page's collector
//
// For detailed documentation, see the individual package documentation.
package internal
