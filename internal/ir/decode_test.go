package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeScalars(t *testing.T) {
	tests := []struct {
		input    string
		expected IRValue
	}{
		{`"x"`, IRString("x")},
		{`12`, IRInt(12)},
		{`-3`, IRInt(-3)},
		{`1.5`, IRFloat(1.5)},
		{`2.0`, IRInt(2)},
		{`true`, IRBool(true)},
		{`false`, IRBool(false)},
		{`null`, IRNull{}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v, err := Decode([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, v)
		})
	}
}

func TestDecodeNested(t *testing.T) {
	v, err := Decode([]byte(`{"Projecten":{"P1":[{"Soort":"Wijziging","B1":{"reg_01":true}}]}}`))
	require.NoError(t, err)

	expected := IRObject{
		"Projecten": IRObject{
			"P1": IRArray{
				IRObject{
					"Soort": IRString("Wijziging"),
					"B1":    IRObject{"reg_01": IRBool(true)},
				},
			},
		},
	}
	assert.True(t, Equal(expected, v))
}

func TestDecodeDuplicateKey(t *testing.T) {
	_, err := Decode([]byte(`{"Uitgangssituatie":{"reg_01":true,"reg_01":true}}`))
	require.Error(t, err)
	assert.True(t, IsDuplicateKeyError(err))

	var de *DuplicateKeyError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "/Uitgangssituatie", de.Path)
	assert.Equal(t, "reg_01", de.Key)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ``},
		{"truncated", `{"a":`},
		{"trailing data", `{} {}`},
		{"syntax", `{a:1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestDecodeObjectRejectsNonObject(t *testing.T) {
	_, err := DecodeObject([]byte(`[1,2]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "array")
}
