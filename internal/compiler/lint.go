package compiler

import (
	"fmt"
	"slices"
	"sort"

	"github.com/roach88/bgproces/internal/instrument"
	"github.com/roach88/bgproces/internal/ir"
	"github.com/roach88/bgproces/internal/momentopname"
	"github.com/roach88/bgproces/internal/spec"
)

// Lint finding codes (W200-W299)
const (
	WarnUnknownSoort           = "W201" // activity skipped by the loader
	WarnAnnotationNotPermitted = "W202" // annotation dropped for instrument type
	WarnPropertyNotPermitted   = "W203" // property dropped for activity soort
	WarnNotInstrumentCode      = "W204" // snapshot key skipped
	WarnUnknownKey             = "W205" // top-level key ignored
	WarnMissingTijdstip        = "W206" // activity cannot be placed on the timeline
	WarnUnknownBasis           = "W207" // Basis names no branch
	WarnBasisCycle             = "W208" // Basis references form a cycle
)

// Finding is one lint result. Field is a JSON pointer into the document.
type Finding struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (f Finding) String() string {
	return fmt.Sprintf("[%s] %s: %s", f.Code, f.Field, f.Message)
}

var topLevelKeys = []string{
	spec.KeyBevoegdGezag, spec.KeyBGCode, spec.KeyBeschrijving, spec.KeyStartdatum,
	spec.KeyUitgangssituatie, spec.KeyProjecten, spec.KeyOverig,
}

// Lint reports everything the loader tolerates silently. It returns all
// findings (does not fail-fast), sorted by field. Structural errors are
// left to the loader.
func Lint(doc ir.IRObject) []Finding {
	l := &linter{branches: map[string]bool{}}

	for _, key := range doc.SortedKeys() {
		if !slices.Contains(topLevelKeys, key) {
			l.add("/"+key, WarnUnknownKey, "unknown top-level key %q is ignored", key)
		}
	}

	if obj, ok := doc[spec.KeyUitgangssituatie].(ir.IRObject); ok {
		l.snapshot("/"+spec.KeyUitgangssituatie, obj)
	}
	if obj, ok := doc[spec.KeyProjecten].(ir.IRObject); ok {
		for _, name := range obj.SortedKeys() {
			l.activities("/"+spec.KeyProjecten+"/"+name, obj[name])
		}
	}
	l.activities("/"+spec.KeyOverig, doc[spec.KeyOverig])

	for _, ref := range l.bases {
		if ref.basis == momentopname.Uitgangssituatie || l.branches[ref.basis] {
			continue
		}
		l.add(ref.path, WarnUnknownBasis, "Basis %q is not created by any activity", ref.basis)
	}

	for _, w := range AnalyzeBasis(doc) {
		l.findings = append(l.findings, Finding{Field: w.Field, Message: w.Message, Code: WarnBasisCycle})
	}

	sort.SliceStable(l.findings, func(i, j int) bool {
		return l.findings[i].Field < l.findings[j].Field
	})
	return l.findings
}

type basisRef struct {
	path  string
	basis string
}

type linter struct {
	findings []Finding
	branches map[string]bool
	bases    []basisRef
}

func (l *linter) add(field, code, format string, args ...any) {
	l.findings = append(l.findings, Finding{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
		Code:    code,
	})
}

func (l *linter) activities(path string, v ir.IRValue) {
	arr, ok := v.(ir.IRArray)
	if !ok {
		return
	}
	for i, elem := range arr {
		if obj, ok := elem.(ir.IRObject); ok {
			l.activity(fmt.Sprintf("%s/%d", path, i), obj)
		}
	}
}

func (l *linter) activity(path string, obj ir.IRObject) {
	soort, _ := obj.String(spec.PropSoort)
	typ, ok := spec.LookupSoort(soort)
	if !ok {
		l.add(path+"/"+spec.PropSoort, WarnUnknownSoort, "activity of unknown soort %q is skipped", soort)
		return
	}

	var branches int
	for _, key := range obj.SortedKeys() {
		switch {
		case typ.Permits(key):
		case typ.IsBranchKey(key):
			branches++
			l.branches[key] = true
			if snap, ok := obj[key].(ir.IRObject); ok {
				l.snapshot(path+"/"+key, snap)
			}
		default:
			l.add(path+"/"+key, WarnPropertyNotPermitted, "property %q is not permitted for %s", key, typ.Soort)
		}
	}

	_, hasBesluit := obj[spec.PropBesluit]
	if _, ok := obj[spec.PropTijdstip]; !ok && (branches > 0 || hasBesluit) {
		l.add(path, WarnMissingTijdstip, "%s has no Tijdstip", typ.Soort)
	}
	if basis, ok := obj.String(spec.PropBasis); ok && basis != "" && typ.Permits(spec.PropBasis) {
		l.bases = append(l.bases, basisRef{path: path + "/" + spec.PropBasis, basis: basis})
	}
}

func (l *linter) snapshot(path string, obj ir.IRObject) {
	for _, key := range obj.SortedKeys() {
		if key == spec.PropSoort {
			continue
		}
		tag, _, ok := instrument.ParseCode(key)
		if !ok {
			l.add(path+"/"+key, WarnNotInstrumentCode, "%q is not an instrument code", key)
			continue
		}
		val, ok := obj[key].(ir.IRObject)
		if !ok {
			continue
		}
		_, dropped := instrument.FilterAnnotations(tag, val)
		for _, d := range dropped {
			l.add(path+"/"+key+"/"+d, WarnAnnotationNotPermitted, "annotation %q is not permitted for %s", d, tag)
		}
	}
}
