package spec

import (
	"github.com/roach88/bgproces/internal/ir"
)

// Export returns the canonical JSON of a loaded specification.
func Export(s *Specification) (string, error) {
	return ir.Export(s.Document())
}

// ExportDocument returns the canonical JSON of a raw document tree:
// internal keys and empty substructures pruned, keys sorted, four-space
// indent, no trailing whitespace.
func ExportDocument(doc ir.IRObject) (string, error) {
	return ir.Export(doc)
}
