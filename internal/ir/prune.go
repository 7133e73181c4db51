package ir

import (
	"bytes"
	"fmt"
	"strings"
)

// InternalKeyPrefix marks object keys reserved for back-references (owner
// pointers, cached derivations). They live in the in-memory tree only.
const InternalKeyPrefix = "__"

// ExportIndent is the fixed indent of exported documents.
const ExportIndent = "    "

// IsInternalKey reports whether key is reserved for in-memory use.
func IsInternalKey(key string) bool {
	return strings.HasPrefix(key, InternalKeyPrefix)
}

// IsEmpty reports whether v carries no information for an export:
// undefined, the empty string, an empty array or object, or an array or
// object whose every element is itself empty. Internal keys do not count.
// null, false and 0 are NOT empty: they are meaningful values.
func IsEmpty(v IRValue) bool {
	switch val := v.(type) {
	case nil:
		return true
	case IRString:
		return val == ""
	case IRArray:
		for _, elem := range val {
			if !IsEmpty(elem) {
				return false
			}
		}
		return true
	case IRObject:
		for k, elem := range val {
			if !IsInternalKey(k) && !IsEmpty(elem) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Prune returns a copy of v with internal keys removed and every empty
// value dropped, bottom-up: an object that only becomes empty once its
// children are pruned is itself dropped. The second result is false when
// v as a whole is empty. v is never modified.
func Prune(v IRValue) (IRValue, bool) {
	switch val := v.(type) {
	case nil:
		return nil, false
	case IRString:
		if val == "" {
			return nil, false
		}
		return val, true
	case IRArray:
		out := make(IRArray, 0, len(val))
		for _, elem := range val {
			if pruned, ok := Prune(elem); ok {
				out = append(out, pruned)
			}
		}
		if len(out) == 0 {
			return nil, false
		}
		return out, true
	case IRObject:
		out := make(IRObject, len(val))
		for k, elem := range val {
			if IsInternalKey(k) {
				continue
			}
			if pruned, ok := Prune(elem); ok {
				out[k] = pruned
			}
		}
		if len(out) == 0 {
			return nil, false
		}
		return out, true
	default:
		return v, true
	}
}

// Export serializes a specification root: prune, encode with ExportIndent,
// trim trailing whitespace. A root that prunes away entirely exports as {}.
func Export(root IRObject) (string, error) {
	pruned, ok := Prune(root)
	if !ok {
		return "{}", nil
	}
	data, err := Encode(pruned, ExportIndent)
	if err != nil {
		return "", fmt.Errorf("export: %w", err)
	}
	return string(bytes.TrimRight(data, " \t\r\n")), nil
}
