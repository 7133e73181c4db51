package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Encode produces deterministic JSON for v.
//
// With indent == "" the output is compact; otherwise every nesting level is
// indented by indent and keys are separated from values by ": ", matching
// the layout of JSON.stringify(v, null, indent).
//
// Differences from encoding/json:
//  1. Object keys sorted by UTF-16 code units (not UTF-8 bytes)
//  2. No HTML escaping (< > & are NOT escaped)
//  3. Strings are NFC normalized
//  4. Undefined (nil) object members are omitted, nil array elements become null
func Encode(v IRValue, indent string) ([]byte, error) {
	if v == nil {
		return nil, fmt.Errorf("undefined value cannot be encoded")
	}
	var buf bytes.Buffer
	if err := encodeValue(&buf, v, indent, 0); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeValue(buf *bytes.Buffer, v IRValue, indent string, level int) error {
	switch val := v.(type) {
	case nil, IRNull:
		buf.WriteString("null")
	case IRString:
		s, err := encodeString(string(val))
		if err != nil {
			return err
		}
		buf.Write(s)
	case IRInt:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case IRFloat:
		s, err := formatFloat(float64(val))
		if err != nil {
			return err
		}
		buf.WriteString(s)
	case IRBool:
		buf.WriteString(strconv.FormatBool(bool(val)))
	case IRArray:
		return encodeArray(buf, val, indent, level)
	case IRObject:
		return encodeObject(buf, val, indent, level)
	default:
		return fmt.Errorf("unsupported type for JSON encoding: %T", v)
	}
	return nil
}

func encodeArray(buf *bytes.Buffer, arr IRArray, indent string, level int) error {
	if len(arr) == 0 {
		buf.WriteString("[]")
		return nil
	}

	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		newline(buf, indent, level+1)
		if err := encodeValue(buf, elem, indent, level+1); err != nil {
			return fmt.Errorf("array[%d]: %w", i, err)
		}
	}
	newline(buf, indent, level)
	buf.WriteByte(']')
	return nil
}

func encodeObject(buf *bytes.Buffer, obj IRObject, indent string, level int) error {
	keys := make([]string, 0, len(obj))
	for _, k := range obj.SortedKeys() {
		if obj[k] != nil {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		buf.WriteString("{}")
		return nil
	}

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		newline(buf, indent, level+1)

		keyBytes, err := encodeString(k)
		if err != nil {
			return fmt.Errorf("key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')
		if indent != "" {
			buf.WriteByte(' ')
		}

		if err := encodeValue(buf, obj[k], indent, level+1); err != nil {
			return fmt.Errorf("value for key %q: %w", k, err)
		}
	}
	newline(buf, indent, level)
	buf.WriteByte('}')
	return nil
}

func newline(buf *bytes.Buffer, indent string, level int) {
	if indent == "" {
		return
	}
	buf.WriteByte('\n')
	buf.WriteString(strings.Repeat(indent, level))
}

// formatFloat renders a float in its shortest round-trip form.
// NaN and Inf have no JSON representation.
func formatFloat(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("number %v has no JSON representation", f)
	}
	abs := math.Abs(f)
	if abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		return strconv.FormatFloat(f, 'e', -1, 64), nil
	}
	return strconv.FormatFloat(f, 'f', -1, 64), nil
}

// encodeString produces a JSON string with NFC normalization.
// - No HTML escaping (<, >, & are NOT escaped)
// - U+2028 (LINE SEPARATOR) and U+2029 (PARAGRAPH SEPARATOR) are NOT escaped
// - Only control characters (U+0000-U+001F), backslash, and quote are escaped
func encodeString(s string) ([]byte, error) {
	normalized := norm.NFC.String(s)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false) // CRITICAL: <, >, & must NOT be escaped
	if err := enc.Encode(normalized); err != nil {
		return nil, err
	}

	// json.Encoder adds trailing newline, remove it
	result := bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})
	return unescapeLineSeparators(result), nil
}

// unescapeLineSeparators converts \u2028 and \u2029 escape sequences emitted
// by encoding/json back to literal characters, but preserves \\u2028 (an
// escaped backslash followed by the text "u2028").
func unescapeLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}

	result := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] == '\\' && i+1 < len(data) {
			if data[i+1] == 'u' && i+5 < len(data) && string(data[i+2:i+5]) == "202" &&
				(data[i+5] == '8' || data[i+5] == '9') {
				if data[i+5] == '8' {
					result = append(result, "\u2028"...)
				} else {
					result = append(result, "\u2029"...)
				}
				i += 5
				continue
			}
			// Any other escape: copy both bytes so an escaped backslash
			// never starts a new escape sequence.
			result = append(result, data[i], data[i+1])
			i++
			continue
		}
		result = append(result, data[i])
	}
	return result
}
