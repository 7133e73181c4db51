package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(i int) *int {
	return &i
}

func floatPtr(f float64) *float64 {
	return &f
}

func writeScript(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "script.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// =============================================================================
// Loading
// =============================================================================

func TestLoadScript_Valid(t *testing.T) {
	script, err := LoadScript("testdata/scripts/build_scenario.yaml")
	require.NoError(t, err)

	assert.Equal(t, "build_scenario", script.Name)
	assert.Equal(t, "script-1", script.SessionID)
	assert.Equal(t, "Gemeente", script.BevoegdGezag)
	assert.Equal(t, "0344", script.BGCode)
	require.Len(t, script.Steps, 4)
	assert.Equal(t, OpSetVersion, script.Steps[0].Op)
	assert.Nil(t, script.Steps[0].Activity)
	assert.Equal(t, 0, *script.Steps[2].Activity)
	assert.Equal(t, 10.0, *script.Steps[1].Tijdstip)
	assert.Equal(t, "Omgevingsplan", script.Steps[3].Value)
	assert.Len(t, script.Assertions, 4)
}

func TestLoadScript_ResolvesFiles(t *testing.T) {
	script, err := LoadScript("testdata/scripts/load_cue.yaml")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("testdata", "specs", "scenario.cue"), script.Steps[0].File)
}

func TestLoadScript_UnknownField(t *testing.T) {
	path := writeScript(t, `
name: typo
description: "misspelled key"
steps:
  - op: set
    property: BGCode
    value: "0344"
assertion:
  - type: valid
`)
	_, err := LoadScript(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScript_MissingFile(t *testing.T) {
	_, err := LoadScript(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read script file")
}

func TestValidateScript(t *testing.T) {
	valid := func() Script {
		return Script{
			Name:        "s",
			Description: "d",
			Steps:       []Step{{Op: OpSet, Property: "BGCode", Value: "0344"}},
			Assertions:  []Assertion{{Type: AssertValid}},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Script)
		wantErr string
	}{
		{"valid", func(*Script) {}, ""},
		{"no name", func(s *Script) { s.Name = "" }, "name is required"},
		{"no description", func(s *Script) { s.Description = "" }, "description is required"},
		{"no steps", func(s *Script) { s.Steps = nil }, "steps list is required"},
		{"no assertions", func(s *Script) { s.Assertions = nil }, "assertions list is required"},
		{"no op", func(s *Script) { s.Steps[0].Op = "" }, "steps[0]: op is required"},
		{"unknown op", func(s *Script) { s.Steps[0].Op = "rename" }, `unknown op "rename"`},
		{"set without property", func(s *Script) { s.Steps[0].Property = "" }, "property is required for set"},
		{"remove without target", func(s *Script) { s.Steps[0] = Step{Op: OpRemove} }, "remove needs"},
		{"add_activity without soort", func(s *Script) { s.Steps[0] = Step{Op: OpAddActivity} }, "soort is required"},
		{"set_version without code", func(s *Script) { s.Steps[0] = Step{Op: OpSetVersion} }, "code or type is required"},
		{"bad kind", func(s *Script) { s.Steps[0] = Step{Op: OpSetVersion, Code: "reg_01", Kind: "gone"} }, `unknown version kind "gone"`},
		{"annotate without annotation", func(s *Script) { s.Steps[0] = Step{Op: OpAnnotate, Code: "reg_01"} }, "code and annotation"},
		{"load without source", func(s *Script) { s.Steps[0] = Step{Op: OpLoad} }, "exactly one of document or file"},
		{"load with missing file", func(s *Script) { s.Steps[0] = Step{Op: OpLoad, File: "/nonexistent/x.json"} }, "file not found"},
		{"negative activity", func(s *Script) { s.Steps[0] = Step{Op: OpRemove, Activity: intPtr(-1)} }, "non-negative"},
		{"no assertion type", func(s *Script) { s.Assertions[0].Type = "" }, "type is required"},
		{"unknown assertion", func(s *Script) { s.Assertions[0].Type = "trace_contains" }, "unknown assertion type"},
		{"relative path", func(s *Script) { s.Assertions[0] = Assertion{Type: AssertExportAbsent, Path: "BGCode"} }, "JSON pointer"},
		{"load_error without code", func(s *Script) { s.Assertions[0] = Assertion{Type: AssertLoadError} }, "code is required"},
		{"count missing", func(s *Script) { s.Assertions[0] = Assertion{Type: AssertListenerCalls} }, "count is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(&s)
			err := validateScript(&s)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
