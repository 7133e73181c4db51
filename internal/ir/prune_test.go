package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestIsEmpty(t *testing.T) {
	tests := []struct {
		name  string
		input IRValue
		want  bool
	}{
		{"undefined", nil, true},
		{"empty string", IRString(""), true},
		{"empty array", IRArray{}, true},
		{"empty object", IRObject{}, true},
		{"array of empties", IRArray{IRString(""), IRObject{}}, true},
		{"object of empties", IRObject{"a": IRArray{}, "b": IRObject{"c": IRString("")}}, true},
		{"internal keys only", IRObject{"__owner": IRString("x")}, true},
		{"null is a value", IRNull{}, false},
		{"false is a value", IRBool(false), false},
		{"zero is a value", IRInt(0), false},
		{"nested value", IRObject{"a": IRObject{"b": IRNull{}}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsEmpty(tt.input))
		})
	}
}

func TestPruneBottomUp(t *testing.T) {
	root := IRObject{
		"BGCode":       IRString("9999"),
		"Beschrijving": IRString(""),
		"Overig":       IRArray{},
		"Projecten":    IRObject{"P1": IRArray{}},
		"__session":    IRString("internal"),
		"Uitgangssituatie": IRObject{
			"reg_01": IRBool(true),
			"gio_01": IRNull{},
			"leeg":   IRObject{"x": IRArray{IRObject{}}},
		},
	}

	pruned, ok := Prune(root)
	require.True(t, ok)

	expected := IRObject{
		"BGCode": IRString("9999"),
		"Uitgangssituatie": IRObject{
			"reg_01": IRBool(true),
			"gio_01": IRNull{},
		},
	}
	assert.True(t, Equal(expected, pruned), "got %v", pruned)

	// Original untouched
	assert.Contains(t, root, "Beschrijving")
	assert.Contains(t, root, "__session")
}

func TestPruneArrayKeepsOrder(t *testing.T) {
	pruned, ok := Prune(IRArray{IRString("a"), IRObject{}, IRString("b")})
	require.True(t, ok)
	assert.Equal(t, IRArray{IRString("a"), IRString("b")}, pruned)
}

func TestExportDropsEmptySubstructures(t *testing.T) {
	root := IRObject{
		"BevoegdGezag": IRString("Gemeente"),
		"BGCode":       IRString("9999"),
		"Beschrijving": IRString(""),
		"Overig":       IRArray{},
		"Projecten":    IRObject{"P1": IRArray{}},
	}

	out, err := Export(root)
	require.NoError(t, err)
	assert.Equal(t, "{\n    \"BGCode\": \"9999\",\n    \"BevoegdGezag\": \"Gemeente\"\n}", out)
	assert.NotContains(t, out, "Beschrijving")
	assert.NotContains(t, out, "Overig")
	assert.NotContains(t, out, "Projecten")
}

func TestExportEmptyRoot(t *testing.T) {
	out, err := Export(IRObject{"Beschrijving": IRString("")})
	require.NoError(t, err)
	assert.Equal(t, "{}", out)
}

// irValue generates arbitrary (possibly empty) document fragments.
func irValue(depth int) *rapid.Generator[IRValue] {
	return rapid.Custom(func(t *rapid.T) IRValue {
		kind := rapid.IntRange(0, 6).Draw(t, "kind")
		if depth <= 0 && kind >= 5 {
			kind = 0
		}
		switch kind {
		case 0:
			return IRString(rapid.SampledFrom([]string{"", "x", "Wijziging"}).Draw(t, "s"))
		case 1:
			return IRInt(rapid.Int64Range(-5, 5).Draw(t, "i"))
		case 2:
			return IRBool(rapid.Bool().Draw(t, "b"))
		case 3:
			return IRNull{}
		case 4:
			return IRFloat(0.5)
		case 5:
			n := rapid.IntRange(0, 3).Draw(t, "n")
			arr := make(IRArray, n)
			for i := range arr {
				arr[i] = irValue(depth-1).Draw(t, "elem")
			}
			return arr
		default:
			keys := rapid.SliceOfDistinct(rapid.SampledFrom([]string{"a", "b", "__x", "P1"}), rapid.ID[string]).Draw(t, "keys")
			obj := make(IRObject, len(keys))
			for _, k := range keys {
				obj[k] = irValue(depth-1).Draw(t, "member")
			}
			return obj
		}
	})
}

func TestPruneProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		v := irValue(3).Draw(t, "value")

		pruned, ok := Prune(v)
		if !ok {
			if !IsEmpty(v) {
				t.Fatalf("Prune dropped non-empty value %v", v)
			}
			return
		}

		// Nothing empty survives pruning
		if IsEmpty(pruned) {
			t.Fatalf("pruned value %v is empty", pruned)
		}

		// Pruning is idempotent
		again, ok := Prune(pruned)
		if !ok || !Equal(pruned, again) {
			t.Fatalf("Prune not idempotent: %v vs %v", pruned, again)
		}
	})
}

func TestExportIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		v := irValue(3).Draw(t, "value")
		root, ok := v.(IRObject)
		if !ok {
			root = IRObject{"v": v}
		}

		first, err := Export(root)
		if err != nil {
			t.Fatal(err)
		}
		second, err := Export(root)
		if err != nil {
			t.Fatal(err)
		}
		if first != second {
			t.Fatalf("exports differ:\n%s\n%s", first, second)
		}

		// Re-decoding the export and exporting again is stable
		back, err := DecodeObject([]byte(first))
		if err != nil {
			t.Fatal(err)
		}
		third, err := Export(back)
		if err != nil {
			t.Fatal(err)
		}
		if first != third {
			t.Fatalf("export not stable under decode:\n%s\n%s", first, third)
		}
	})
}
