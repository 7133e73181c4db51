package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/bgproces/internal/momentopname"
)

// DefaultSessionID is used when a script does not name its session.
const DefaultSessionID = "harness-session"

// Script defines a scripted editing session.
type Script struct {
	// Name uniquely identifies this script. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this script validates.
	Description string `yaml:"description"`

	// SessionID is the fixed id of the session (journal key).
	SessionID string `yaml:"session_id,omitempty"`

	// BevoegdGezag, BGCode and Startdatum are set before the first step
	// when present.
	BevoegdGezag string `yaml:"bevoegd_gezag,omitempty"`
	BGCode       string `yaml:"bg_code,omitempty"`
	Startdatum   string `yaml:"startdatum,omitempty"`

	// Steps are the edits, in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final session.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one edit.
type Step struct {
	// Op is one of the Op constants.
	Op string `yaml:"op"`

	// Project selects the activity list; empty means Overig.
	Project string `yaml:"project,omitempty"`

	// Activity is the index of the activity in its list. Without it the
	// step targets the root (or the baseline).
	Activity *int `yaml:"activity,omitempty"`

	// Branch selects a momentopname of the activity, or the baseline when
	// it is Uitgangssituatie.
	Branch string `yaml:"branch,omitempty"`

	// Property names the property set or removed.
	Property string `yaml:"property,omitempty"`

	// Value is the value set: a string, number, or annotation payload.
	Value any `yaml:"value,omitempty"`

	// Soort is the activity soort (add_activity).
	Soort string `yaml:"soort,omitempty"`

	// Tijdstip is the day offset of a new activity (add_activity).
	Tijdstip *float64 `yaml:"tijdstip,omitempty"`

	// Code selects an instrument; Type allocates a new one instead.
	Code string `yaml:"code,omitempty"`
	Type string `yaml:"type,omitempty"`

	// Kind is new (default), withdrawn or revert (set_version).
	Kind string `yaml:"kind,omitempty"`

	// Annotation is the annotation tag (annotate).
	Annotation string `yaml:"annotation,omitempty"`

	// Document is an inline JSON document; File a .json or .cue file
	// relative to the script (load).
	Document string `yaml:"document,omitempty"`
	File     string `yaml:"file,omitempty"`

	// ExpectError makes the step pass only when it fails with an error
	// containing this text (a load error code, or part of a message).
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Step operations.
const (
	OpSet         = "set"
	OpRemove      = "remove"
	OpAddActivity = "add_activity"
	OpSetVersion  = "set_version"
	OpAnnotate    = "annotate"
	OpLoad        = "load"
)

// Assertion validates the final session.
type Assertion struct {
	// Type specifies the assertion type (see the Assert constants).
	Type string `yaml:"type"`

	// Path is a JSON pointer into the export (export_contains, export_absent).
	Path string `yaml:"path,omitempty"`

	// Value is the expected value at Path; nil only checks presence.
	Value any `yaml:"value,omitempty"`

	// Valid is the expected outcome of validation; nil means true.
	Valid *bool `yaml:"valid,omitempty"`

	// Code is the expected load error code (load_error, valid).
	Code string `yaml:"code,omitempty"`

	// Count is the expected number of calls or entries.
	Count *int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertExportContains = "export_contains"
	AssertExportAbsent   = "export_absent"
	AssertValid          = "valid"
	AssertLoadError      = "load_error"
	AssertListenerCalls  = "listener_calls"
	AssertJournalEntries = "journal_entries"
)

// LoadScript reads and parses a script YAML file. File references in load
// steps are resolved relative to the script's directory.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScript(path string) (*Script, error) {
	return LoadScriptWithBasePath(path, filepath.Dir(path))
}

// LoadScriptWithBasePath reads and parses a script YAML file, resolving
// file references relative to basePath.
func LoadScriptWithBasePath(path, basePath string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var script Script
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&script); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	for i, step := range script.Steps {
		if step.File != "" && !filepath.IsAbs(step.File) && basePath != "" {
			script.Steps[i].File = filepath.Join(basePath, step.File)
		}
	}

	if err := validateScript(&script); err != nil {
		return nil, fmt.Errorf("invalid script: %w", err)
	}

	return &script, nil
}

// validateScript checks that required fields are present and valid.
func validateScript(s *Script) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateStep validates a single step based on its operation.
func validateStep(index int, s *Step) error {
	switch s.Op {
	case "":
		return fmt.Errorf("steps[%d]: op is required", index)
	case OpSet:
		if s.Property == "" {
			return fmt.Errorf("steps[%d]: property is required for set", index)
		}
	case OpRemove:
		if s.Property == "" && s.Activity == nil && s.Branch == "" {
			return fmt.Errorf("steps[%d]: remove needs a property, activity or branch", index)
		}
	case OpAddActivity:
		if s.Soort == "" {
			return fmt.Errorf("steps[%d]: soort is required for add_activity", index)
		}
	case OpSetVersion:
		if s.Code == "" && s.Type == "" {
			return fmt.Errorf("steps[%d]: code or type is required for set_version", index)
		}
		if _, err := parseKind(s.Kind); err != nil {
			return fmt.Errorf("steps[%d]: %w", index, err)
		}
	case OpAnnotate:
		if s.Code == "" || s.Annotation == "" {
			return fmt.Errorf("steps[%d]: code and annotation are required for annotate", index)
		}
	case OpLoad:
		if (s.Document == "") == (s.File == "") {
			return fmt.Errorf("steps[%d]: load needs exactly one of document or file", index)
		}
		if s.File != "" {
			if _, err := os.Stat(s.File); os.IsNotExist(err) {
				return fmt.Errorf("steps[%d]: file not found: %s", index, s.File)
			}
		}
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, s.Op)
	}
	if s.Activity != nil && *s.Activity < 0 {
		return fmt.Errorf("steps[%d]: activity must be non-negative", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertExportContains, AssertExportAbsent:
		if a.Path == "" || a.Path[0] != '/' {
			return fmt.Errorf("assertions[%d]: path must be a JSON pointer for %s", index, a.Type)
		}
	case AssertValid:
	case AssertLoadError:
		if a.Code == "" {
			return fmt.Errorf("assertions[%d]: code is required for load_error", index)
		}
	case AssertListenerCalls, AssertJournalEntries:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for %s", index, a.Type)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

func parseKind(kind string) (momentopname.ChangeKind, error) {
	switch kind {
	case "", momentopname.NewVersion.String():
		return momentopname.NewVersion, nil
	case momentopname.Withdrawn.String():
		return momentopname.Withdrawn, nil
	case momentopname.Revert.String():
		return momentopname.Revert, nil
	default:
		return 0, fmt.Errorf("unknown version kind %q", kind)
	}
}
