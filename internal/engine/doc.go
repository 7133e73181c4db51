// Package engine implements the specification node plumbing and the
// notification bus that keeps every live node consistent.
//
// ARCHITECTURE:
//
// Containers:
// A node never owns its value outright. It owns a slot in a parent
// container: a property of an object or an element of an array. Writing a
// valid value stores it in the slot; writing an invalid value deletes the
// slot. Array elements are located by value identity, not by index.
//
// Bindings:
// Binding is the shared implementation of the node contract
// (Value, SetValue, IsValid, Remove). Node variants inject a validity
// predicate and a reaction to external changes instead of overriding
// methods.
//
// Bus:
// Every node is attached to a Bus. A write that changes its container
// broadcasts a Notification to every other live node, in attach order.
// Reactions may write in turn; the depth of a broadcast travels in the
// Notification and is passed back explicitly, so there is no hidden
// counter. A broadcast started at depth 0 is followed by one
// KindSpecificationChanged pass so nodes that reacted to the first pass
// are observed by the others.
//
// CRITICAL PATTERNS:
//
// Registration order:
// Delivery order equals attach order. The root node is attached first
// so it has re-exported before any later node reads the tree.
//
// Arena:
// Nodes live in an append-only arena. Destroy tombstones an entry and
// bumps its generation; a broadcast in flight skips tombstones and never
// visits nodes attached after it started. Using a tombstoned handle
// returns an UNKNOWN_NODE RuntimeError.
//
// Depth cap:
// Broadcasts at or beyond the maximum depth are dropped and recorded.
// Together with the single extra pass this bounds deliveries per edit.
//
// The bus is single-threaded: all mutation and delivery happen on the
// caller's goroutine in direct call/return.
package engine
