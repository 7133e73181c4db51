package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func codesOf(result CodesResult) []string {
	out := make([]string, len(result.Codes))
	for i, c := range result.Codes {
		out[i] = c.Code
	}
	return out
}

func TestCodesAll(t *testing.T) {
	out, err := execute(t, NewCodesCommand, jsonOpts(), testdata("scenario.json"))
	require.NoError(t, err)

	var result CodesResult
	decodeResponse(t, out, &result)
	assert.Equal(t, []string{"b_01", "reg_01", "gio_01", "gio_02"}, codesOf(result))
	assert.Empty(t, result.Next)
	assert.Equal(t, "Regeling", result.Codes[1].Type)
	assert.Contains(t, result.Codes[1].WorkID, "gm0344")
}

func TestCodesByType(t *testing.T) {
	tests := []struct {
		typ       string
		wantCodes []string
		wantNext  string
	}{
		{"gio", []string{"gio_01", "gio_02"}, "gio_03"},
		{"Regeling", []string{"reg_01"}, "reg_02"},
		{"b", []string{"b_01"}, "b_02"},
		{"pdf", []string{}, "pdf_01"},
	}

	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			out, err := execute(t, NewCodesCommand, jsonOpts(), testdata("scenario.json"), "--type", tt.typ)
			require.NoError(t, err)

			var result CodesResult
			decodeResponse(t, out, &result)
			assert.Equal(t, tt.wantCodes, codesOf(result))
			assert.Equal(t, tt.wantNext, result.Next)
		})
	}
}

func TestCodesText(t *testing.T) {
	out, err := execute(t, NewCodesCommand, textOpts(), testdata("scenario.json"), "--type", "gio")
	require.NoError(t, err)

	assert.Contains(t, out, "gio_01")
	assert.Contains(t, out, "gio_02")
	assert.NotContains(t, out, "reg_01")
	assert.Contains(t, out, "next: gio_03\n")
}

func TestCodesUnknownType(t *testing.T) {
	out, err := execute(t, NewCodesCommand, textOpts(), testdata("scenario.json"), "--type", "ow")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, `unknown instrument type "ow"`)
}
