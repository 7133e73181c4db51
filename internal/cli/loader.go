package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue/token"

	"github.com/roach88/bgproces/internal/compiler"
	"github.com/roach88/bgproces/internal/ir"
	"github.com/roach88/bgproces/internal/spec"
)

// Error code constants shared by all commands. Scenario errors found by
// the loader keep their own codes (E100-E109).
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeReadFailed  = "E002" // File read error
	ErrCodeUnsupported = "E003" // Input is neither .json nor .cue
	ErrCodeCompile     = "E004" // CUE source does not satisfy the schema
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeStore       = "E006" // Export journal unavailable
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeLint        = "E008" // Lint findings under --strict
	ErrCodeScript      = "E009" // Edit script cannot be read
)

// LoadError describes why an input file could not be turned into a
// specification.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
	Err     error
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// ExitCode is ExitFailure for a scenario that is read but invalid, and
// ExitCommandError when the input could not be read at all.
func (e *LoadError) ExitCode() int {
	switch e.Code {
	case ErrCodeNotFound, ErrCodeReadFailed, ErrCodeUnsupported, ErrCodeGeneric:
		return ExitCommandError
	default:
		return ExitFailure
	}
}

// Input is a scenario file that loaded successfully.
type Input struct {
	Path     string
	Document ir.IRObject // the document as written, before loading
	Spec     *spec.Specification
}

// ReadDocument returns the JSON document of a scenario file. CUE files
// are checked against the scenario schema first.
func ReadDocument(path string) ([]byte, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("file not found: %s", path), Err: err}
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeReadFailed, Message: fmt.Sprintf("read %s: %v", path, err), Err: err}
		}
		return data, nil

	case ".cue":
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeReadFailed, Message: fmt.Sprintf("read %s: %v", path, err), Err: err}
		}
		c, err := compiler.New()
		if err != nil {
			return nil, &LoadError{Code: ErrCodeGeneric, Message: err.Error(), Err: err}
		}
		data, err := c.ToJSON(path, src)
		if err != nil {
			return nil, convertCompileError(err)
		}
		return data, nil

	default:
		return nil, &LoadError{
			Code:    ErrCodeUnsupported,
			Message: fmt.Sprintf("unsupported input %s: expected .json or .cue", filepath.Base(path)),
		}
	}
}

// LoadInput reads and loads a scenario file.
func LoadInput(path string, opts ...spec.LoadOption) (*Input, error) {
	data, err := ReadDocument(path)
	if err != nil {
		return nil, err
	}

	s, err := spec.Load(data, opts...)
	if err != nil {
		return nil, convertSpecError(err)
	}

	// Load succeeded, so the document decodes.
	doc, err := ir.DecodeObject(data)
	if err != nil {
		return nil, convertSpecError(err)
	}
	return &Input{Path: path, Document: doc, Spec: s}, nil
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    ErrCodeCompile,
			Message: fmt.Sprintf("%s: %s", compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
			Err:     err,
		}
	}
	return &LoadError{Code: ErrCodeCompile, Message: err.Error(), Err: err}
}

// convertSpecError keeps the loader's code and location.
func convertSpecError(err error) *LoadError {
	var le *spec.LoadError
	if errors.As(err, &le) {
		msg := le.Message
		if le.Path != "" {
			msg = le.Path + ": " + msg
		}
		return &LoadError{Code: le.Code, Message: msg, Err: err}
	}
	return &LoadError{Code: spec.ErrCodeMalformedJSON, Message: err.Error(), Err: err}
}

// failLoad reports a LoadError (or any error) through formatter.
func failLoad(formatter *OutputFormatter, err error) error {
	var le *LoadError
	if errors.As(err, &le) {
		var details interface{}
		if le.Pos.IsValid() {
			details = map[string]interface{}{
				"file":   le.Pos.Filename(),
				"line":   le.Pos.Line(),
				"column": le.Pos.Column(),
			}
		}
		return formatter.Fail(le.ExitCode(), le.Code, le.Message, details)
	}
	return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
}
