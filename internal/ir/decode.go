package ir

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// DuplicateKeyError reports an object key that occurs twice in the same
// JSON object. encoding/json silently keeps the last one; a specification
// must not, because the first occurrence would be lost without notice.
type DuplicateKeyError struct {
	Path string // JSON-pointer-like path of the object holding the key
	Key  string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate key %q in %s", e.Key, e.Path)
}

// IsDuplicateKeyError returns true if the error is a DuplicateKeyError.
// Uses errors.As to handle wrapped errors.
func IsDuplicateKeyError(err error) bool {
	var de *DuplicateKeyError
	return errors.As(err, &de)
}

// Decode parses a single JSON document into an IRValue.
//
// Unlike json.Unmarshal into any:
//   - duplicate keys are an error (*DuplicateKeyError)
//   - integral numbers become IRInt, others IRFloat
//   - null becomes IRNull (never Go nil)
//   - trailing data after the document is an error
func Decode(data []byte) (IRValue, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeValue(dec, "/")
	if err != nil {
		return nil, err
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unexpected data after JSON document")
	}
	return v, nil
}

// DecodeObject is Decode for documents that must be a JSON object.
func DecodeObject(data []byte) (IRObject, error) {
	v, err := Decode(data)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(IRObject)
	if !ok {
		return nil, fmt.Errorf("expected JSON object at top level, got %s", typeName(v))
	}
	return obj, nil
}

func decodeValue(dec *json.Decoder, path string) (IRValue, error) {
	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("unexpected end of JSON input at %s", path)
		}
		return nil, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return decodeObject(dec, path)
		case '[':
			return decodeArray(dec, path)
		default:
			return nil, fmt.Errorf("unexpected delimiter %q at %s", t, path)
		}
	case string:
		return IRString(t), nil
	case bool:
		return IRBool(t), nil
	case nil:
		return IRNull{}, nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return IRInt(i), nil
		}
		f, err := strconv.ParseFloat(string(t), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %s at %s: %w", t, path, err)
		}
		return number(f), nil
	default:
		return nil, fmt.Errorf("unexpected token %v at %s", tok, path)
	}
}

func decodeObject(dec *json.Decoder, path string) (IRObject, error) {
	obj := IRObject{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key at %s, got %v", path, tok)
		}
		if _, dup := obj[key]; dup {
			return nil, &DuplicateKeyError{Path: path, Key: key}
		}
		val, err := decodeValue(dec, childPath(path, key))
		if err != nil {
			return nil, err
		}
		obj[key] = val
	}
	// Consume closing '}'
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return obj, nil
}

func decodeArray(dec *json.Decoder, path string) (IRArray, error) {
	arr := IRArray{}
	for i := 0; dec.More(); i++ {
		val, err := decodeValue(dec, childPath(path, strconv.Itoa(i)))
		if err != nil {
			return nil, err
		}
		arr = append(arr, val)
	}
	// Consume closing ']'
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return arr, nil
}

func childPath(path, key string) string {
	if path == "/" {
		return "/" + key
	}
	return path + "/" + key
}

func typeName(v IRValue) string {
	switch v.(type) {
	case nil:
		return "undefined"
	case IRNull:
		return "null"
	case IRString:
		return "string"
	case IRInt, IRFloat:
		return "number"
	case IRBool:
		return "boolean"
	case IRArray:
		return "array"
	case IRObject:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
