package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected while propagating a change.
//
// Runtime errors include:
//   - Depth exceeded: a reaction chain reached the bus depth cap
//   - Unknown node: a stale or foreign NodeID was used
//
// RuntimeError includes structured fields for diagnostics.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Source identifies the node that triggered the error.
	Source NodeID

	// Path is the tree path of the source node, if known.
	Path string

	// Depth is the broadcast depth at which the error occurred.
	Depth int
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeDepthExceeded indicates a broadcast at or past the depth cap.
	ErrCodeDepthExceeded RuntimeErrorCode = "DEPTH_EXCEEDED"

	// ErrCodeUnknownNode indicates a NodeID that is not live on the bus.
	ErrCodeUnknownNode RuntimeErrorCode = "UNKNOWN_NODE"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (node=%s, path=%s, depth=%d)", e.Code, e.Message, e.Source, e.Path, e.Depth)
	}
	return fmt.Sprintf("%s: %s (node=%s, depth=%d)", e.Code, e.Message, e.Source, e.Depth)
}

// IsDepthError returns true if the error is a depth exceeded error.
// Uses errors.As to handle wrapped errors.
func IsDepthError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeDepthExceeded
	}
	return false
}

// IsUnknownNodeError returns true if the error is an unknown node error.
// Uses errors.As to handle wrapped errors.
func IsUnknownNodeError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeUnknownNode
	}
	return false
}

// NewDepthError creates a RuntimeError for a dropped broadcast.
func NewDepthError(source NodeID, path string, depth, maxDepth int) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeDepthExceeded,
		Message: fmt.Sprintf("broadcast dropped at depth %d (max %d)", depth, maxDepth),
		Source:  source,
		Path:    path,
		Depth:   depth,
	}
}

// NewUnknownNodeError creates a RuntimeError for a NodeID that is not live.
func NewUnknownNodeError(id NodeID) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeUnknownNode,
		Message: "node is not attached to this bus",
		Source:  id,
	}
}
