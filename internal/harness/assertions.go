package harness

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/bgproces/internal/ir"
	"github.com/roach88/bgproces/internal/spec"
	"github.com/roach88/bgproces/internal/store"
)

// AssertionContext gives assertions access to the session and journal.
type AssertionContext struct {
	Session   *spec.Session
	Store     *store.Store
	SessionID string
	Ctx       context.Context
}

// AssertionError is returned when an assertion fails.
// It includes the final export to help debug the failure.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
	Export   string // Final export for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if e.Export != "" {
		fmt.Fprintf(&buf, "\nExport:\n%s\n", e.Export)
	}

	return buf.String()
}

// EvaluateAssertions checks every assertion and returns the failure
// messages, in assertion order.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var failures []string
	for i, a := range assertions {
		if err := evaluateAssertion(result, a, actx); err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

func evaluateAssertion(result *Result, a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertExportContains:
		return assertExportContains(result.Export, a)
	case AssertExportAbsent:
		return assertExportAbsent(result.Export, a)
	case AssertValid:
		return assertValid(actx.Session, a)
	case AssertLoadError:
		return assertLoadError(result, a)
	case AssertListenerCalls:
		return assertCount(AssertListenerCalls, "listener calls", result.ListenerCalls, a)
	case AssertJournalEntries:
		records, err := actx.Store.History(actx.Ctx, actx.SessionID)
		if err != nil {
			return fmt.Errorf("read journal: %w", err)
		}
		return assertCount(AssertJournalEntries, "journal entries", len(records), a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func assertExportContains(export string, a Assertion) error {
	got, found, err := lookupExport(export, a.Path)
	if err != nil {
		return err
	}
	if !found {
		return &AssertionError{
			Type:     AssertExportContains,
			Expected: fmt.Sprintf("a value at %s", a.Path),
			Actual:   "nothing there",
			Export:   export,
		}
	}
	if a.Value == nil {
		return nil
	}

	want, err := ir.FromGo(a.Value)
	if err != nil {
		return fmt.Errorf("expected value at %s: %w", a.Path, err)
	}
	if !ir.Equal(want, got) {
		return &AssertionError{
			Type:     AssertExportContains,
			Expected: fmt.Sprintf("%s = %s", a.Path, render(want)),
			Actual:   fmt.Sprintf("%s = %s", a.Path, render(got)),
			Export:   export,
		}
	}
	return nil
}

func assertExportAbsent(export string, a Assertion) error {
	got, found, err := lookupExport(export, a.Path)
	if err != nil {
		return err
	}
	if found {
		return &AssertionError{
			Type:     AssertExportAbsent,
			Expected: fmt.Sprintf("nothing at %s", a.Path),
			Actual:   render(got),
			Export:   export,
		}
	}
	return nil
}

func assertValid(sess *spec.Session, a Assertion) error {
	want := a.Valid == nil || *a.Valid
	err := sess.Validate()

	switch {
	case want && err != nil:
		return &AssertionError{
			Type:     AssertValid,
			Expected: "specification loads",
			Actual:   err.Error(),
		}
	case !want && err == nil:
		return &AssertionError{
			Type:     AssertValid,
			Expected: "specification is rejected",
			Actual:   "it loads",
		}
	case !want && a.Code != "":
		var le *spec.LoadError
		if !errors.As(err, &le) || le.Code != a.Code {
			return &AssertionError{
				Type:     AssertValid,
				Expected: fmt.Sprintf("rejected with %s", a.Code),
				Actual:   err.Error(),
			}
		}
	}
	return nil
}

func assertLoadError(result *Result, a Assertion) error {
	if result.LoadErrorCode != a.Code {
		actual := result.LoadErrorCode
		if actual == "" {
			actual = "no failed load"
		}
		return &AssertionError{
			Type:     AssertLoadError,
			Expected: fmt.Sprintf("last load failed with %s", a.Code),
			Actual:   actual,
		}
	}
	return nil
}

func assertCount(typ, what string, got int, a Assertion) error {
	if got != *a.Count {
		return &AssertionError{
			Type:     typ,
			Expected: fmt.Sprintf("%d %s", *a.Count, what),
			Actual:   fmt.Sprintf("%d %s", got, what),
		}
	}
	return nil
}

// lookupExport resolves a JSON pointer (RFC 6901) in an export.
func lookupExport(export, pointer string) (ir.IRValue, bool, error) {
	doc, err := ir.Decode([]byte(export))
	if err != nil {
		return nil, false, fmt.Errorf("decode export: %w", err)
	}

	cur := doc
	for _, token := range strings.Split(pointer, "/")[1:] {
		token = strings.ReplaceAll(strings.ReplaceAll(token, "~1", "/"), "~0", "~")
		switch val := cur.(type) {
		case ir.IRObject:
			next, ok := val[token]
			if !ok {
				return nil, false, nil
			}
			cur = next
		case ir.IRArray:
			i, err := strconv.Atoi(token)
			if err != nil || i < 0 || i >= len(val) {
				return nil, false, nil
			}
			cur = val[i]
		default:
			return nil, false, nil
		}
	}
	return cur, true, nil
}

func render(v ir.IRValue) string {
	data, err := ir.Encode(v, "")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
