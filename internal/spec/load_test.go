package spec

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bgproces/internal/instrument"
	"github.com/roach88/bgproces/internal/ir"
	"github.com/roach88/bgproces/internal/momentopname"
)

const scenario = `{
	"BevoegdGezag": "Gemeente",
	"BGCode": "0344",
	"Beschrijving": "Omgevingsplan Utrecht",
	"Startdatum": "2024-01-01",
	"Uitgangssituatie": {"reg_01": true, "gio_01": true},
	"Projecten": {
		"P1": [
			{"Soort": "Maak branch", "Tijdstip": 1, "Basis": "Uitgangssituatie", "B1": {"reg_01": true}},
			{"Soort": "Wijziging", "Tijdstip": 10, "Beschrijving": "Nieuwe regels",
				"B1": {"reg_01": {"_json": true, "Citeertitel": "Plan", "Symbolisatie": "x"}, "gio_02": true}},
			{"Soort": "Vaststellingsbesluit", "Tijdstip": 20.5, "Besluit": "b_01", "B1": {"gio_01": false}}
		]
	},
	"Overig": [
		{"Soort": "Download", "Tijdstip": 0, "Branch": "B1"}
	]
}`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func capturingLogger() (*slog.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

func mustLoad(t *testing.T, data string, opts ...LoadOption) *Specification {
	t.Helper()
	opts = append([]LoadOption{WithLogger(discardLogger())}, opts...)
	s, err := Load([]byte(data), opts...)
	require.NoError(t, err)
	return s
}

func versionCode(t *testing.T, m *momentopname.Momentopname, reg *instrument.Registry, code string) *instrument.Instrumentversie {
	t.Helper()
	inst, ok := reg.LookupCode(code)
	require.True(t, ok, "%s not registered", code)
	v, ok := m.GetInstrument(inst)
	require.True(t, ok, "no version of %s in %s[%d]", code, m.Target, m.Index)
	return v
}

// ============================================================================
// Successful loads
// ============================================================================

func TestLoad_Scenario(t *testing.T) {
	s := mustLoad(t, scenario)

	assert.Equal(t, instrument.Gemeente, s.BevoegdGezag)
	assert.Equal(t, "0344", s.BGCode)
	assert.Equal(t, "Omgevingsplan Utrecht", s.Beschrijving)
	assert.Equal(t, "2024-01-01", s.Startdatum)
	assert.Equal(t, "gm0344", s.Authority().Code())

	require.Len(t, s.Projecten, 1)
	p1 := s.Projecten[0]
	assert.Equal(t, "P1", p1.Name)
	require.Len(t, p1.Activities, 3)
	assert.Equal(t, MaakBranch, p1.Activities[0].Type.Soort)
	assert.Equal(t, "Nieuwe regels", p1.Activities[1].Beschrijving)
	assert.Equal(t, 20.5, p1.Activities[2].Tijdstip)
	require.Len(t, s.Overig, 1)
	assert.Equal(t, ir.IRString("B1"), s.Overig[0].Props[PropBranch])

	assert.Equal(t, []string{"b_01", "reg_01", "gio_01", "gio_02"}, s.Registry.AllKnownCodes())
}

func TestLoad_TimelineVersions(t *testing.T) {
	s := mustLoad(t, scenario)
	tl := s.Timeline

	base := tl.Baseline()
	require.NotNil(t, base)
	assert.Equal(t, "1", versionCode(t, base, s.Registry, "reg_01").VersionCode)
	assert.Equal(t, "1", versionCode(t, base, s.Registry, "gio_01").VersionCode)

	snaps := tl.Snapshots("B1")
	require.Len(t, snaps, 3)
	assert.Equal(t, "/Projecten/P1/0", snaps[0].Ref)
	assert.Equal(t, "2", versionCode(t, snaps[0], s.Registry, "reg_01").VersionCode)

	reg := versionCode(t, snaps[1], s.Registry, "reg_01")
	assert.Equal(t, "3", reg.VersionCode)
	assert.Equal(t, ir.IRObject{"Citeertitel": ir.IRString("Plan")}, reg.Annotations)
	assert.Equal(t, "/akn/nl/act/gm0344/2024/reg_01/nld@2024;3", reg.ExpressionID)
	assert.Equal(t, "1", versionCode(t, snaps[1], s.Registry, "gio_02").VersionCode)

	withdrawn := versionCode(t, snaps[2], s.Registry, "gio_01")
	assert.True(t, withdrawn.Withdrawn)
	assert.False(t, versionCode(t, snaps[1], s.Registry, "gio_01").Withdrawn)
	assert.Equal(t, time.Date(2024, 1, 21, 12, 0, 0, 0, time.UTC), snaps[2].CreatedAt)
}

func TestLoad_ReplayOrderFollowsTijdstip(t *testing.T) {
	s := mustLoad(t, `{
		"BevoegdGezag": "Gemeente", "BGCode": "0344", "Startdatum": "2024-01-01",
		"Projecten": {
			"P1": [
				{"Soort": "Wijziging", "Tijdstip": 20, "B1": {"reg_01": true}},
				{"Soort": "Wijziging", "Tijdstip": 5, "B1": {"reg_01": true}}
			]
		}
	}`)

	snaps := s.Timeline.Snapshots("B1")
	require.Len(t, snaps, 2)
	assert.Equal(t, "/Projecten/P1/1", snaps[0].Ref)
	assert.Equal(t, "/Projecten/P1/0", snaps[1].Ref)
	assert.Equal(t, "2", versionCode(t, snaps[1], s.Registry, "reg_01").VersionCode)
}

func TestLoad_VersionCodesUniqueAcrossBranches(t *testing.T) {
	s := mustLoad(t, `{
		"BevoegdGezag": "Rijk", "BGCode": "0001", "Startdatum": "2024-01-01",
		"Uitgangssituatie": {"reg_01": true},
		"Projecten": {
			"P1": [{"Soort": "Wijziging", "Tijdstip": 1, "B1": {"reg_01": true}}],
			"P2": [{"Soort": "Wijziging", "Tijdstip": 2, "B2": {"reg_01": true}}]
		}
	}`)

	b1 := versionCode(t, s.Timeline.Latest("B1"), s.Registry, "reg_01")
	b2 := versionCode(t, s.Timeline.Latest("B2"), s.Registry, "reg_01")
	assert.NotEqual(t, b1.VersionCode, b2.VersionCode)
	assert.Equal(t, "/akn/nl/act/mnre0001/2024/reg_01", b1.Instrument.WorkID)
}

func TestLoad_BasisBranch(t *testing.T) {
	s := mustLoad(t, `{
		"BevoegdGezag": "Gemeente", "BGCode": "0344", "Startdatum": "2024-01-01",
		"Uitgangssituatie": {"reg_01": true},
		"Projecten": {
			"P1": [
				{"Soort": "Wijziging", "Tijdstip": 1, "B1": {"gio_01": true}},
				{"Soort": "Maak branch", "Tijdstip": 2, "Basis": "B1", "B2": {"pdf_01": true}}
			]
		}
	}`)

	b2 := s.Timeline.Latest("B2")
	require.NotNil(t, b2)
	assert.Equal(t, 3, b2.Len(), "B2 inherits reg_01 from the baseline and gio_01 from B1")
}

func TestLoad_RevertRestoresBaselineVersion(t *testing.T) {
	s := mustLoad(t, `{
		"BevoegdGezag": "Gemeente", "BGCode": "0344", "Startdatum": "2024-01-01",
		"Uitgangssituatie": {"reg_01": true},
		"Projecten": {
			"P1": [
				{"Soort": "Wijziging", "Tijdstip": 1, "B1": {"reg_01": true}},
				{"Soort": "Wijziging", "Tijdstip": 2, "B1": {"reg_01": null}}
			]
		}
	}`)

	snaps := s.Timeline.Snapshots("B1")
	require.Len(t, snaps, 2)
	assert.Equal(t, "2", versionCode(t, snaps[0], s.Registry, "reg_01").VersionCode)
	assert.Equal(t, "1", versionCode(t, snaps[1], s.Registry, "reg_01").VersionCode)
}

func TestLoad_DefaultStartdatum(t *testing.T) {
	start := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	s := mustLoad(t, `{
		"BevoegdGezag": "Gemeente", "BGCode": "0344",
		"Uitgangssituatie": {"reg_01": true}
	}`, WithDefaultStartdatum(start))

	assert.Empty(t, s.Startdatum)
	assert.Equal(t, start, s.Start())
	inst, ok := s.Registry.LookupCode("reg_01")
	require.True(t, ok)
	assert.Equal(t, 2023, inst.Year)
}

func TestLoad_UnknownSoortIsSkipped(t *testing.T) {
	logger, buf := capturingLogger()
	s, err := Load([]byte(`{
		"BevoegdGezag": "Gemeente", "BGCode": "0344",
		"Overig": [{"Soort": "Koffie zetten"}, {"Soort": "Download"}]
	}`), WithLogger(logger))
	require.NoError(t, err)

	require.Len(t, s.Overig, 1)
	assert.Equal(t, Download, s.Overig[0].Type.Soort)
	assert.Contains(t, buf.String(), "skipping activity of unknown soort")
}

func TestLoad_ForbiddenAnnotationIsDropped(t *testing.T) {
	logger, buf := capturingLogger()
	s, err := Load([]byte(`{
		"BevoegdGezag": "Gemeente", "BGCode": "0344", "Startdatum": "2024-01-01",
		"Uitgangssituatie": {"gio_01": {"_json": true, "Symbolisatie": "s.xml", "NonSTOP": 1}}
	}`), WithLogger(logger))
	require.NoError(t, err)

	require.Len(t, s.Uitgangssituatie, 1)
	assert.Equal(t, ir.IRObject{"Symbolisatie": ir.IRString("s.xml")}, s.Uitgangssituatie[0].Annotations)
	assert.Contains(t, buf.String(), "NonSTOP")
}

func TestLoad_PropertyOfOtherSoortIsDropped(t *testing.T) {
	s := mustLoad(t, `{
		"BevoegdGezag": "Gemeente", "BGCode": "0344",
		"Overig": [{"Soort": "Download", "Ontvanger": "LVBB"}]
	}`)

	require.Len(t, s.Overig, 1)
	assert.Empty(t, s.Overig[0].Props)
}

// ============================================================================
// Load errors
// ============================================================================

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		code     string
		sentinel error
		path     string
	}{
		{
			name:     "not json",
			data:     `{"BevoegdGezag": `,
			code:     ErrCodeMalformedJSON,
			sentinel: ErrMalformedJSON,
		},
		{
			name:     "root not object",
			data:     `[]`,
			code:     ErrCodeMalformedJSON,
			sentinel: ErrMalformedJSON,
		},
		{
			name:     "missing authority",
			data:     `{"BGCode": "0344"}`,
			code:     ErrCodeUnknownAuthority,
			sentinel: ErrUnknownAuthority,
			path:     "/BevoegdGezag",
		},
		{
			name:     "unknown authority",
			data:     `{"BevoegdGezag": "Provincie", "BGCode": "pv26"}`,
			code:     ErrCodeUnknownAuthority,
			sentinel: ErrUnknownAuthority,
			path:     "/BevoegdGezag",
		},
		{
			name:     "missing bg code",
			data:     `{"BevoegdGezag": "Gemeente"}`,
			code:     ErrCodeMissingBGCode,
			sentinel: ErrMissingBGCode,
			path:     "/BGCode",
		},
		{
			name:     "empty bg code",
			data:     `{"BevoegdGezag": "Gemeente", "BGCode": ""}`,
			code:     ErrCodeMissingBGCode,
			sentinel: ErrMissingBGCode,
			path:     "/BGCode",
		},
		{
			name:     "invalid date",
			data:     `{"BevoegdGezag": "Gemeente", "BGCode": "0344", "Startdatum": "1-1-2024"}`,
			code:     ErrCodeInvalidDate,
			sentinel: ErrInvalidDate,
			path:     "/Startdatum",
		},
		{
			name:     "baseline without start date",
			data:     `{"BevoegdGezag": "Gemeente", "BGCode": "0344", "Uitgangssituatie": {"reg_01": true}}`,
			code:     ErrCodeMissingTimestamp,
			sentinel: ErrMissingTimestamp,
			path:     "/Uitgangssituatie",
		},
		{
			name: "branch without tijdstip",
			data: `{"BevoegdGezag": "Gemeente", "BGCode": "0344", "Startdatum": "2024-01-01",
				"Projecten": {"P1": [{"Soort": "Wijziging", "B1": {"reg_01": true}}]}}`,
			code:     ErrCodeMissingTimestamp,
			sentinel: ErrMissingTimestamp,
			path:     "/Projecten/P1/0",
		},
		{
			name: "version without code",
			data: `{"BevoegdGezag": "Gemeente", "BGCode": "0344", "Startdatum": "2024-01-01",
				"Uitgangssituatie": {"reg_01": "v1"}}`,
			code:     ErrCodeMissingVersionCode,
			sentinel: ErrMissingVersionCode,
			path:     "/Uitgangssituatie/reg_01",
		},
		{
			name: "withdraw unknown instrument",
			data: `{"BevoegdGezag": "Gemeente", "BGCode": "0344", "Startdatum": "2024-01-01",
				"Projecten": {"P1": [{"Soort": "Wijziging", "Tijdstip": 1, "B1": {"reg_01": false}}]}}`,
			code:     ErrCodeMissingVersionCode,
			sentinel: ErrMissingVersionCode,
			path:     "/Projecten/P1/0/B1",
		},
		{
			name: "branch reuse",
			data: `{"BevoegdGezag": "Gemeente", "BGCode": "0344", "Startdatum": "2024-01-01",
				"Projecten": {
					"P1": [{"Soort": "Wijziging", "Tijdstip": 1, "B1": {"reg_01": true}}],
					"P2": [{"Soort": "Wijziging", "Tijdstip": 2, "B1": {"reg_02": true}}]
				}}`,
			code:     ErrCodeBranchReuse,
			sentinel: ErrBranchReuse,
			path:     "/Projecten/P2/0/B1",
		},
		{
			name: "branch reuse by overig",
			data: `{"BevoegdGezag": "Gemeente", "BGCode": "0344", "Startdatum": "2024-01-01",
				"Projecten": {"P1": [{"Soort": "Wijziging", "Tijdstip": 1, "B1": {"reg_01": true}}]},
				"Overig": [{"Soort": "Wijziging", "Tijdstip": 2, "B1": {"reg_02": true}}]}`,
			code:     ErrCodeBranchReuse,
			sentinel: ErrBranchReuse,
			path:     "/Overig/0/B1",
		},
		{
			name: "duplicate initial version",
			data: `{"BevoegdGezag": "Gemeente", "BGCode": "0344", "Startdatum": "2024-01-01",
				"Uitgangssituatie": {"reg_01": true, "reg_01": true}}`,
			code:     ErrCodeDuplicateInitialVersion,
			sentinel: ErrDuplicateInitialVersion,
			path:     "/Uitgangssituatie",
		},
		{
			name: "reserved branch name",
			data: `{"BevoegdGezag": "Gemeente", "BGCode": "0344", "Startdatum": "2024-01-01",
				"Projecten": {"P1": [{"Soort": "Wijziging", "Tijdstip": 1, "Uitgangssituatie": {"reg_01": true}}]}}`,
			code:     ErrCodeReservedBranchName,
			sentinel: ErrReservedBranchName,
			path:     "/Projecten/P1/0/Uitgangssituatie",
		},
		{
			name: "tijdstip not a number",
			data: `{"BevoegdGezag": "Gemeente", "BGCode": "0344",
				"Overig": [{"Soort": "Download", "Tijdstip": "morgen"}]}`,
			code:     ErrCodeMalformedJSON,
			sentinel: ErrMalformedJSON,
			path:     "/Overig/0/Tijdstip",
		},
		{
			name: "projecten not an object",
			data: `{"BevoegdGezag": "Gemeente", "BGCode": "0344", "Projecten": []}`,
			code:     ErrCodeMalformedJSON,
			sentinel: ErrMalformedJSON,
			path:     "/Projecten",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Load([]byte(tt.data), WithLogger(discardLogger()))
			require.Error(t, err)
			assert.Nil(t, s)
			assert.True(t, IsLoadError(err))
			assert.ErrorIs(t, err, tt.sentinel)

			var le *LoadError
			require.True(t, errors.As(err, &le))
			assert.Equal(t, tt.code, le.Code)
			if tt.path != "" {
				assert.Equal(t, tt.path, le.Path)
			}
		})
	}
}

func TestLoad_BranchReuseExample(t *testing.T) {
	_, err := Load([]byte(`{"BevoegdGezag": "Gemeente", "BGCode": "0344",
		"Projecten": {
			"P1": [{"Soort": "Wijziging", "B1": {"reg_01": true}}],
			"P2": [{"Soort": "Wijziging", "B1": {"reg_01": true}}]
		}}`), WithLogger(discardLogger()))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBranchReuse)
}

func TestLoad_CollisionAcrossAuthorities(t *testing.T) {
	reg := instrument.NewRegistry()
	_, err := reg.Register(instrument.Regeling, "reg_01",
		instrument.Authority{Kind: instrument.Gemeente, BGCode: "0363"},
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	_, err = Load([]byte(`{"BevoegdGezag": "Gemeente", "BGCode": "0344", "Startdatum": "2024-01-01",
		"Uitgangssituatie": {"reg_01": true}}`), WithRegistry(reg), WithLogger(discardLogger()))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInstrumentConflict)
	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, ErrCodeInstrumentConflict, le.Code)
}

// ============================================================================
// Injected registry
// ============================================================================

func TestLoad_RegistryMergedOnSuccess(t *testing.T) {
	reg := instrument.NewRegistry()
	reg.Reserve("reg_05")

	s := mustLoad(t, scenario, WithRegistry(reg))

	assert.Equal(t, s.Registry.AllKnownCodes(), reg.AllKnownCodes())
	assert.True(t, reg.IsPending("reg_05"))
	assert.Equal(t, "reg_02", reg.FreeCode(instrument.Regeling))
}

func TestLoad_RegistryUntouchedOnError(t *testing.T) {
	reg := instrument.NewRegistry()

	_, err := Load([]byte(`{"BevoegdGezag": "Gemeente", "BGCode": "0344", "Startdatum": "2024-01-01",
		"Uitgangssituatie": {"reg_01": true},
		"Projecten": {"P1": [{"Soort": "Wijziging", "B1": {"gio_01": true}}]}}`),
		WithRegistry(reg), WithLogger(discardLogger()))

	require.Error(t, err)
	assert.Zero(t, reg.Len())
}

func TestLoad_DoesNotModifyDocument(t *testing.T) {
	doc, err := ir.DecodeObject([]byte(scenario))
	require.NoError(t, err)
	before := ir.Clone(doc)

	_, err = LoadDocument(doc, WithLogger(discardLogger()))
	require.NoError(t, err)
	assert.True(t, ir.Equal(before, doc))
}
