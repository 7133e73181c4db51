package engine

import (
	"github.com/roach88/bgproces/internal/ir"
)

// Container is the slot a node writes its value into.
//
// Lookup returns the stored value, or nil when the slot is absent.
// Store and Delete report whether the parent actually changed: storing
// the same reference again, or deleting an absent slot, is a no-op.
type Container interface {
	Lookup() ir.IRValue
	Store(v ir.IRValue) bool
	Delete() bool
}

// RootContainer holds the whole tree.
type RootContainer struct {
	value ir.IRValue
}

// Root creates a container holding obj.
func Root(obj ir.IRObject) *RootContainer {
	return &RootContainer{value: obj}
}

// Object returns the root as an object, or nil.
func (c *RootContainer) Object() ir.IRObject {
	obj, _ := c.value.(ir.IRObject)
	return obj
}

func (c *RootContainer) Lookup() ir.IRValue {
	return c.value
}

func (c *RootContainer) Store(v ir.IRValue) bool {
	if c.value != nil && ir.Same(c.value, v) {
		return false
	}
	c.value = v
	return true
}

func (c *RootContainer) Delete() bool {
	if c.value == nil {
		return false
	}
	c.value = nil
	return true
}

// PropertyContainer is a key of an object held by a parent container.
type PropertyContainer struct {
	parent Container
	key    string
}

// Property creates a container for parent[key]. The parent object is
// created on first Store when it does not exist yet.
func Property(parent Container, key string) *PropertyContainer {
	return &PropertyContainer{parent: parent, key: key}
}

// Key returns the property name.
func (c *PropertyContainer) Key() string {
	return c.key
}

func (c *PropertyContainer) object() ir.IRObject {
	obj, _ := c.parent.Lookup().(ir.IRObject)
	return obj
}

func (c *PropertyContainer) Lookup() ir.IRValue {
	return c.object()[c.key]
}

func (c *PropertyContainer) Store(v ir.IRValue) bool {
	obj := c.object()
	if obj == nil {
		obj = ir.IRObject{}
		c.parent.Store(obj)
	}
	if prev, ok := obj[c.key]; ok && ir.Same(prev, v) {
		return false
	}
	obj[c.key] = v
	return true
}

func (c *PropertyContainer) Delete() bool {
	obj := c.object()
	if _, ok := obj[c.key]; !ok {
		return false
	}
	delete(obj, c.key)
	return true
}

// ElementContainer is a member of an array held by a parent container.
// Membership is by value identity (ir.Same): the element is wherever its
// current value is, regardless of index.
type ElementContainer struct {
	parent  Container
	current ir.IRValue
}

// Element creates a container for a not-yet-stored element of parent.
func Element(parent Container) *ElementContainer {
	return &ElementContainer{parent: parent}
}

// ElementOf creates a container for an element already stored in parent.
func ElementOf(parent Container, current ir.IRValue) *ElementContainer {
	return &ElementContainer{parent: parent, current: current}
}

func (c *ElementContainer) array() ir.IRArray {
	arr, _ := c.parent.Lookup().(ir.IRArray)
	return arr
}

func (c *ElementContainer) index(arr ir.IRArray) int {
	if c.current == nil {
		return -1
	}
	for i, elem := range arr {
		if ir.Same(elem, c.current) {
			return i
		}
	}
	return -1
}

// Index returns the element's position, or -1 when absent.
func (c *ElementContainer) Index() int {
	return c.index(c.array())
}

func (c *ElementContainer) Lookup() ir.IRValue {
	arr := c.array()
	if i := c.index(arr); i >= 0 {
		return arr[i]
	}
	return nil
}

func (c *ElementContainer) Store(v ir.IRValue) bool {
	arr := c.array()
	if i := c.index(arr); i >= 0 {
		c.current = v
		if ir.Same(arr[i], v) {
			return false
		}
		arr[i] = v
		return true
	}
	c.current = v
	next := make(ir.IRArray, len(arr), len(arr)+1)
	copy(next, arr)
	c.parent.Store(append(next, v))
	return true
}

func (c *ElementContainer) Delete() bool {
	arr := c.array()
	i := c.index(arr)
	if i < 0 {
		return false
	}
	next := make(ir.IRArray, 0, len(arr)-1)
	next = append(next, arr[:i]...)
	next = append(next, arr[i+1:]...)
	c.parent.Store(next)
	return true
}

// ValueContainer exposes the in-memory value of a node as a container.
// Child nodes edit a composite value through it, so they can build the
// value up before it is valid enough for the node to store it. The node
// itself stores the result when it reacts to the child's notification.
type ValueContainer struct {
	node *Binding
}

// ValueOf creates a container for node's in-memory value.
func ValueOf(node *Binding) *ValueContainer {
	return &ValueContainer{node: node}
}

func (c *ValueContainer) Lookup() ir.IRValue {
	return c.node.value
}

func (c *ValueContainer) Store(v ir.IRValue) bool {
	if c.node.value != nil && ir.Same(c.node.value, v) {
		return false
	}
	c.node.value = v
	return true
}

func (c *ValueContainer) Delete() bool {
	if c.node.value == nil {
		return false
	}
	c.node.value = nil
	return true
}
