package compiler

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bgproces/internal/instrument"
	"github.com/roach88/bgproces/internal/ir"
	"github.com/roach88/bgproces/internal/spec"
)

const scenarioCUE = `
BevoegdGezag: "Gemeente"
BGCode:       "0344"
Startdatum:   "2024-01-01"

Uitgangssituatie: reg_01: true

Projecten: P1: [{
	Soort:    "Maak branch"
	Tijdstip: 1
	Basis:    "Uitgangssituatie"
	B1: gio_01: true
}, {
	Soort:    "Wijziging"
	Tijdstip: 10.5
	B1: reg_01: {
		"_json":     true
		Citeertitel: "Plan"
	}
}]
`

func newCompiler(t *testing.T) *Compiler {
	t.Helper()
	c, err := New()
	require.NoError(t, err)
	return c
}

// =============================================================================
// ToJSON
// =============================================================================

func TestToJSON_Scenario(t *testing.T) {
	c := newCompiler(t)

	data, err := c.ToJSON("scenario.cue", []byte(scenarioCUE))
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "Gemeente", doc["BevoegdGezag"])
	assert.Equal(t, "0344", doc["BGCode"])

	acts := doc["Projecten"].(map[string]any)["P1"].([]any)
	require.Len(t, acts, 2)
	wijziging := acts[1].(map[string]any)
	assert.Equal(t, 10.5, wijziging["Tijdstip"])
	reg := wijziging["B1"].(map[string]any)["reg_01"].(map[string]any)
	assert.Equal(t, true, reg["_json"])
	assert.Equal(t, "Plan", reg["Citeertitel"])
}

func TestToJSON_SchemaErrors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		field string
	}{
		{
			name:  "unknown authority",
			src:   `BevoegdGezag: "Provincie", BGCode: "pv26"`,
			field: "BevoegdGezag",
		},
		{
			name:  "empty BGCode",
			src:   `BevoegdGezag: "Rijk", BGCode: ""`,
			field: "BGCode",
		},
		{
			name:  "bad date",
			src:   `BevoegdGezag: "Rijk", BGCode: "mnre1034", Startdatum: "1-1-2024"`,
			field: "Startdatum",
		},
		{
			name:  "version must be bool, null or object",
			src:   `BevoegdGezag: "Rijk", BGCode: "mnre1034", Uitgangssituatie: reg_01: "yes"`,
			field: "Uitgangssituatie.reg_01",
		},
		{
			name:  "soort must be a string",
			src:   `BevoegdGezag: "Rijk", BGCode: "mnre1034", Overig: [{Soort: 3}]`,
			field: "Overig.0.Soort",
		},
	}

	c := newCompiler(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.ToJSON("bad.cue", []byte(tt.src))
			require.Error(t, err)
			require.True(t, IsCompileError(err), "got %T: %v", err, err)

			var ce *CompileError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestToJSON_SyntaxError(t *testing.T) {
	c := newCompiler(t)

	_, err := c.ToJSON("broken.cue", []byte(`BevoegdGezag: {`))
	require.Error(t, err)
	assert.True(t, IsCompileError(err))
	assert.Contains(t, err.Error(), "broken.cue:")
}

func TestCompileError_Format(t *testing.T) {
	err := &CompileError{Field: "BGCode", Message: "empty"}
	assert.Equal(t, "BGCode: empty", err.Error())
	assert.False(t, IsCompileError(errors.New("other")))
}

// =============================================================================
// CompileSource / CompileFile
// =============================================================================

func TestCompileSource_LoadsSpecification(t *testing.T) {
	c := newCompiler(t)

	sp, err := c.CompileSource("scenario.cue", []byte(scenarioCUE))
	require.NoError(t, err)

	assert.Equal(t, instrument.Gemeente, sp.BevoegdGezag)
	assert.Equal(t, "2024-01-01", sp.Startdatum)
	require.Len(t, sp.Projecten, 1)
	assert.Len(t, sp.Projecten[0].Activities, 2)
	assert.Equal(t, []string{"reg_01", "gio_01"}, sp.Registry.AllKnownCodes())
}

func TestCompileSource_LoadErrorPassesThrough(t *testing.T) {
	c := newCompiler(t)
	src := `
BevoegdGezag: "Gemeente"
BGCode:       "0344"
Startdatum:   "2024-01-01"
Projecten: P1: [{Soort: "Wijziging", B1: reg_01: true}]
`
	_, err := c.CompileSource("scenario.cue", []byte(src))
	require.Error(t, err)
	assert.False(t, IsCompileError(err))
	require.True(t, spec.IsLoadError(err))
	assert.ErrorIs(t, err, spec.ErrMissingTimestamp)
}

func TestCompileSource_UnknownSoortIsSkipped(t *testing.T) {
	c := newCompiler(t)
	src := `
BevoegdGezag: "Rijk"
BGCode:       "1034"
Startdatum:   "2024-01-01"
Overig: [{Soort: "Publicatie", Tijdstip: 3}, {Soort: "Download", Tijdstip: 4, Branch: "B1"}]
`
	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(logs, nil))

	sp, err := c.CompileSource("scenario.cue", []byte(src), spec.WithLogger(logger))
	require.NoError(t, err)
	require.Len(t, sp.Overig, 1)
	assert.Equal(t, spec.Download, sp.Overig[0].Type.Soort)
	assert.Contains(t, logs.String(), "skipping activity of unknown soort")
	assert.Contains(t, logs.String(), "soort=Publicatie")

	doc, err := c.ToJSON("scenario.cue", []byte(src))
	require.NoError(t, err)
	obj, err := ir.DecodeObject(doc)
	require.NoError(t, err)
	var codes []string
	for _, f := range Lint(obj) {
		codes = append(codes, f.Code)
	}
	assert.Contains(t, codes, WarnUnknownSoort)
}

func TestCompileSource_LoadOptions(t *testing.T) {
	c := newCompiler(t)
	reg := instrument.NewRegistry()

	_, err := c.CompileSource("scenario.cue", []byte(scenarioCUE), spec.WithRegistry(reg))
	require.NoError(t, err)
	assert.Equal(t, []string{"reg_01", "gio_01"}, reg.AllKnownCodes())
}

func TestCompileFile(t *testing.T) {
	c := newCompiler(t)
	path := filepath.Join(t.TempDir(), "scenario.cue")
	require.NoError(t, os.WriteFile(path, []byte(scenarioCUE), 0o644))

	sp, err := c.CompileFile(path)
	require.NoError(t, err)
	assert.Equal(t, "0344", sp.BGCode)

	_, err = c.CompileFile(filepath.Join(t.TempDir(), "missing.cue"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
