package engine

import (
	"fmt"

	"github.com/roach88/bgproces/internal/ir"
)

// NodeID is a stable handle into the bus arena. The generation detects
// handles that outlived their node.
type NodeID struct {
	index uint32
	gen   uint32
}

// NoNode is the zero NodeID; it never identifies a live node.
var NoNode = NodeID{}

// IsZero reports whether id is NoNode.
func (id NodeID) IsZero() bool {
	return id == NoNode
}

func (id NodeID) String() string {
	if id.IsZero() {
		return "node#-"
	}
	return fmt.Sprintf("node#%d.%d", id.index-1, id.gen)
}

// Kind classifies a notification.
type Kind string

const (
	// KindValueChanged is sent when a node stored or replaced its value.
	KindValueChanged Kind = "value-changed"

	// KindRemoved is sent when a node deleted its slot.
	KindRemoved Kind = "removed"

	// KindSpecificationChanged is the generic second-pass notification.
	KindSpecificationChanged Kind = "specification-changed"

	// KindReloaded is sent when the whole tree was replaced.
	KindReloaded Kind = "reloaded"
)

// Notification is delivered to OnExternalChange.
//
// Depth is the depth at which the receiver runs: a reaction that writes
// must pass it to Apply so the bus can bound the chain.
type Notification struct {
	Seq     int64
	Source  NodeID
	Kind    Kind
	Path    string
	Payload ir.IRValue
	Depth   int
}

// Listener receives notifications from a Bus.
type Listener interface {
	OnExternalChange(n Notification)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(n Notification)

// OnExternalChange implements Listener.
func (f ListenerFunc) OnExternalChange(n Notification) {
	f(n)
}

// Node is the capability interface of a specification node.
type Node interface {
	Listener
	ID() NodeID
	Value() ir.IRValue
	SetValue(v ir.IRValue)
	IsValid() bool
	Remove()
}
