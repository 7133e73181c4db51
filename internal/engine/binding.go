package engine

import (
	"github.com/roach88/bgproces/internal/ir"
)

// Binding implements Node on top of a Container and a Bus.
//
// Variants customise it with hooks rather than overriding methods:
//   - Valid strengthens the validity predicate (default: value defined)
//   - React handles notifications from other nodes
//
// A Binding attaches itself to the bus on creation and stays attached
// until Destroy.
type Binding struct {
	bus       *Bus
	id        NodeID
	path      string
	container Container
	value     ir.IRValue

	valid func(ir.IRValue) bool
	react func(b *Binding, n Notification)
}

// BindingOption configures a Binding.
type BindingOption func(*Binding)

// WithValid sets an additional validity predicate. It is only consulted
// for defined values.
func WithValid(fn func(ir.IRValue) bool) BindingOption {
	return func(b *Binding) {
		b.valid = fn
	}
}

// WithReact sets the reaction to external notifications.
func WithReact(fn func(b *Binding, n Notification)) BindingOption {
	return func(b *Binding) {
		b.react = fn
	}
}

// NewBinding creates a node for the slot c, attaches it to bus and loads
// its current value from the slot. path names the slot in logs and
// notifications.
func NewBinding(bus *Bus, path string, c Container, opts ...BindingOption) *Binding {
	b := &Binding{
		bus:       bus,
		path:      path,
		container: c,
		value:     c.Lookup(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.id = bus.Attach(b)
	return b
}

// ID returns the bus handle.
func (b *Binding) ID() NodeID {
	return b.id
}

// Path returns the slot path.
func (b *Binding) Path() string {
	return b.path
}

// Container returns the slot.
func (b *Binding) Container() Container {
	return b.container
}

// Value returns the in-memory value, which may be invalid and therefore
// absent from the tree.
func (b *Binding) Value() ir.IRValue {
	return b.value
}

// IsValid reports whether the current value belongs in the tree.
func (b *Binding) IsValid() bool {
	if b.value == nil {
		return false
	}
	if b.valid != nil {
		return b.valid(b.value)
	}
	return true
}

// SetValue is Apply at depth 0, for edits that do not react to anything.
func (b *Binding) SetValue(v ir.IRValue) {
	_ = b.Apply(v, 0)
}

// Apply replaces the value and writes it into the slot when valid, or
// deletes the slot when not. A notification is broadcast exactly when the
// slot changed. depth is the Depth of the notification being reacted to,
// or 0 for an edit.
func (b *Binding) Apply(v ir.IRValue, depth int) error {
	b.value = v
	var changed bool
	if b.IsValid() {
		changed = b.container.Store(v)
	} else {
		changed = b.container.Delete()
	}
	if !changed {
		return nil
	}
	return b.bus.Broadcast(b.id, KindValueChanged, b.path, v, depth)
}

// Touch re-broadcasts the current value without writing, for in-place
// edits of a stored object or array.
func (b *Binding) Touch(depth int) error {
	return b.bus.Broadcast(b.id, KindValueChanged, b.path, b.value, depth)
}

// Remove deletes the slot regardless of the current value's validity.
// The in-memory value is kept.
func (b *Binding) Remove() {
	_ = b.RemoveAt(0)
}

// RemoveAt is Remove at an explicit depth.
func (b *Binding) RemoveAt(depth int) error {
	if !b.container.Delete() {
		return nil
	}
	return b.bus.Broadcast(b.id, KindRemoved, b.path, nil, depth)
}

// Reload replaces the in-memory value with what the slot holds, without
// notifying. Used after the tree was replaced wholesale.
func (b *Binding) Reload() {
	b.value = b.container.Lookup()
}

// OnExternalChange implements Listener.
func (b *Binding) OnExternalChange(n Notification) {
	if b.react != nil {
		b.react(b, n)
	}
}

// Destroy detaches the node from the bus. The slot is left as is.
// Destroying a node twice is harmless.
func (b *Binding) Destroy() {
	_ = b.bus.Destroy(b.id)
}

// Bus returns the bus the node is attached to.
func (b *Binding) Bus() *Bus {
	return b.bus
}

var _ Node = (*Binding)(nil)
