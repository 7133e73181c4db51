// Package spec is the BG-process scenario specification: its typed model,
// the loader that parses and validates a JSON document, the canonical
// export, and the editing Session that keeps an in-memory tree consistent
// through the notification bus.
//
// Load is all-or-nothing: it either returns a complete Specification with
// its instrument registry and snapshot timeline, or a *LoadError and
// nothing else.
package spec
