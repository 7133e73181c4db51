package engine

import (
	"log/slog"

	"github.com/roach88/bgproces/internal/ir"
)

// DefaultMaxDepth is the default depth cap of a Bus.
//
// Depth 0 is an edit, depth 1 a reaction to it, and so on. Eight levels
// leave room for derived-value chains (date -> activity -> momentopname)
// while keeping runaway reactions finite.
const DefaultMaxDepth = 8

// Bus delivers notifications to every live node.
//
// INVARIANTS:
//   - entries are append-only; delivery order equals attach order
//   - a destroyed entry keeps its slot (tombstone) with a bumped generation
//   - a broadcast visits only entries that existed when it started
//   - depth is carried by the Notification, never stored on the bus
type Bus struct {
	entries []entry
	live    int
	seq     int64

	maxDepth   int
	singlePass bool
	logger     *slog.Logger
	metrics    *Metrics

	stats Stats
}

type entry struct {
	listener  Listener
	gen       uint32
	live      bool
	delivered int
}

// Stats counts bus activity since creation or the last ResetStats.
type Stats struct {
	Broadcasts int
	Deliveries int
	Dropped    int
	LastDrop   *RuntimeError
}

// BusOption allows configuration of bus parameters.
type BusOption func(*Bus)

// WithMaxDepth sets the depth cap.
//
// Default: 8 (DefaultMaxDepth)
// Values below 1 are ignored.
func WithMaxDepth(depth int) BusOption {
	return func(b *Bus) {
		if depth >= 1 {
			b.maxDepth = depth
		}
	}
}

// WithSinglePass disables the KindSpecificationChanged second pass.
func WithSinglePass() BusOption {
	return func(b *Bus) {
		b.singlePass = true
	}
}

// WithLogger sets the logger for dropped broadcasts.
func WithLogger(logger *slog.Logger) BusOption {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithMetrics records broadcasts, deliveries and drops in m.
func WithMetrics(m *Metrics) BusOption {
	return func(b *Bus) {
		b.metrics = m
	}
}

// NewBus creates an empty bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		maxDepth: DefaultMaxDepth,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Attach registers l and returns its handle. l receives every broadcast
// started after this call, except its own.
func (b *Bus) Attach(l Listener) NodeID {
	b.entries = append(b.entries, entry{listener: l, gen: 1, live: true})
	b.live++
	b.metrics.setLive(b.live)
	return NodeID{index: uint32(len(b.entries)), gen: 1}
}

// Destroy removes the node from the live set. A stale or unknown handle
// leaves the bus unchanged and returns an UNKNOWN_NODE RuntimeError.
func (b *Bus) Destroy(id NodeID) error {
	e := b.lookup(id)
	if e == nil {
		return NewUnknownNodeError(id)
	}
	e.live = false
	e.listener = nil
	e.gen++
	b.live--
	b.metrics.setLive(b.live)
	return nil
}

// IsLive reports whether id names a live node.
func (b *Bus) IsLive(id NodeID) bool {
	return b.lookup(id) != nil
}

// Listener returns the listener behind a live handle.
func (b *Bus) Listener(id NodeID) (Listener, error) {
	e := b.lookup(id)
	if e == nil {
		return nil, NewUnknownNodeError(id)
	}
	return e.listener, nil
}

// Live returns the number of live nodes.
func (b *Bus) Live() int {
	return b.live
}

// MaxDepth returns the depth cap.
func (b *Bus) MaxDepth() int {
	return b.maxDepth
}

func (b *Bus) lookup(id NodeID) *entry {
	if id.index == 0 || int(id.index) > len(b.entries) {
		return nil
	}
	e := &b.entries[id.index-1]
	if !e.live || e.gen != id.gen {
		return nil
	}
	return e
}

// Broadcast delivers a notification from src to every other live node.
//
// depth is the depth the caller runs at: 0 for an edit, or the Depth of
// the Notification being reacted to. Receivers see depth+1. When depth is
// 0 a KindSpecificationChanged pass follows (unless disabled), so nodes
// that changed in reaction to the first pass are seen by all others.
//
// A broadcast at depth >= MaxDepth is dropped; the returned error is a
// RuntimeError with ErrCodeDepthExceeded. Callers may ignore it: the drop
// is logged and counted.
func (b *Bus) Broadcast(src NodeID, kind Kind, path string, payload ir.IRValue, depth int) error {
	if depth >= b.maxDepth {
		err := NewDepthError(src, path, depth, b.maxDepth)
		b.stats.Dropped++
		b.stats.LastDrop = err
		b.metrics.dropped()
		b.logger.Warn("notification dropped at depth cap",
			"source", src.String(),
			"kind", string(kind),
			"path", path,
			"depth", depth,
			"max_depth", b.maxDepth,
		)
		return err
	}

	b.deliver(src, kind, path, payload, depth)

	if depth == 0 && !b.singlePass && kind != KindSpecificationChanged {
		b.deliver(src, KindSpecificationChanged, path, nil, depth)
	}
	return nil
}

func (b *Bus) deliver(src NodeID, kind Kind, path string, payload ir.IRValue, depth int) {
	b.seq++
	b.stats.Broadcasts++
	b.metrics.broadcast(kind)

	n := Notification{
		Seq:     b.seq,
		Source:  src,
		Kind:    kind,
		Path:    path,
		Payload: payload,
		Depth:   depth + 1,
	}

	// Entries attached during delivery are not visited by this broadcast
	end := len(b.entries)
	for i := 0; i < end; i++ {
		// Index every time: a reaction may grow (and move) the arena
		e := &b.entries[i]
		if !e.live {
			continue
		}
		if src.index == uint32(i+1) && src.gen == e.gen {
			continue
		}
		e.delivered++
		b.stats.Deliveries++
		b.metrics.delivery()
		e.listener.OnExternalChange(n)
	}
}

// Deliveries returns how many notifications the node received since the
// last ResetStats. Stale handles report 0.
func (b *Bus) Deliveries(id NodeID) int {
	e := b.lookup(id)
	if e == nil {
		return 0
	}
	return e.delivered
}

// Stats returns the bus counters.
func (b *Bus) Stats() Stats {
	return b.stats
}

// ResetStats zeroes every counter, including per-node deliveries.
func (b *Bus) ResetStats() {
	b.stats = Stats{}
	for i := range b.entries {
		b.entries[i].delivered = 0
	}
}
