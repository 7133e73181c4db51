package instrument

import (
	"slices"

	"github.com/roach88/bgproces/internal/ir"
)

// Annotation is the JSON key of an annotation an instrument version may carry.
type Annotation string

const (
	Citeertitel          Annotation = "Citeertitel"
	Toelichtingsrelaties Annotation = "Toelichtingsrelaties"
	NonSTOP              Annotation = "NonSTOP"
	Symbolisatie         Annotation = "Symbolisatie"
)

// JSONMarker is the key that tags an instrument version spec written as an
// object: {"_json": true, "Citeertitel": ...}.
const JSONMarker = "_json"

// permittedAnnotations is the annotation-permission matrix. It gates which
// annotation keys survive both interactive editing and loading.
var permittedAnnotations = map[TypeTag][]Annotation{
	Besluit:  {Citeertitel},
	Regeling: {Citeertitel, Toelichtingsrelaties, NonSTOP},
	GIO:      {Citeertitel, Symbolisatie},
	PDF:      {Citeertitel},
}

// PermittedAnnotations returns the annotations a type accepts, in matrix order.
func PermittedAnnotations(tag TypeTag) []Annotation {
	return slices.Clone(permittedAnnotations[tag])
}

// Permits reports whether instruments of type tag accept annotation a.
func Permits(tag TypeTag, a Annotation) bool {
	return slices.Contains(permittedAnnotations[tag], a)
}

// FilterAnnotations copies the permitted annotations of obj. Keys that are
// not permitted for the type are returned in dropped (sorted) so callers can
// log them; the JSON marker is neither kept nor reported.
func FilterAnnotations(tag TypeTag, obj ir.IRObject) (kept ir.IRObject, dropped []string) {
	kept = ir.IRObject{}
	for _, key := range obj.SortedKeys() {
		if key == JSONMarker {
			continue
		}
		if Permits(tag, Annotation(key)) {
			kept[key] = ir.Clone(obj[key])
			continue
		}
		dropped = append(dropped, key)
	}
	return kept, dropped
}
