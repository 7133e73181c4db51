package compiler

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/bgproces/internal/spec"
)

//go:embed schema.cue
var schemaCUE string

// SchemaDefinition is the schema the sources are unified with.
const SchemaDefinition = "#Specificatie"

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// IsCompileError returns true if the error is a CompileError.
func IsCompileError(err error) bool {
	var ce *CompileError
	return errors.As(err, &ce)
}

// Compiler turns CUE sources into specifications. A Compiler holds a CUE
// context and is not safe for concurrent use.
type Compiler struct {
	ctx    *cue.Context
	schema cue.Value
}

// New compiles the embedded schema.
func New() (*Compiler, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile schema: %w", formatCUEError(err))
	}
	def := v.LookupPath(cue.ParsePath(SchemaDefinition))
	if !def.Exists() {
		return nil, fmt.Errorf("schema has no %s", SchemaDefinition)
	}
	return &Compiler{ctx: ctx, schema: def}, nil
}

// ToJSON checks src against the schema and returns the document as JSON.
// name is used in error positions.
func (c *Compiler) ToJSON(name string, src []byte) ([]byte, error) {
	v := c.ctx.CompileBytes(src, cue.Filename(name))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	unified := c.schema.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	data, err := unified.MarshalJSON()
	if err != nil {
		return nil, formatCUEError(err)
	}
	return data, nil
}

// CompileSource checks src and loads the result.
func (c *Compiler) CompileSource(name string, src []byte, opts ...spec.LoadOption) (*spec.Specification, error) {
	data, err := c.ToJSON(name, src)
	if err != nil {
		return nil, err
	}
	return spec.Load(data, opts...)
}

// CompileFile reads, checks and loads a CUE file.
func (c *Compiler) CompileFile(path string, opts ...spec.LoadOption) (*spec.Specification, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return c.CompileSource(path, src, opts...)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	first := errs[0]
	field := "cue"
	if path := first.Path(); len(path) > 0 {
		field = strings.Join(path, ".")
	}
	positions := cueerrors.Positions(first)
	if len(positions) > 0 {
		return &CompileError{
			Field:   field,
			Message: first.Error(),
			Pos:     positions[0],
		}
	}

	return &CompileError{Field: field, Message: first.Error()}
}
