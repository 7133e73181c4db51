package instrument

import (
	"fmt"
	"time"

	"github.com/roach88/bgproces/internal/ir"
)

// Instrumentversie is one version of an instrument.
//
// A version is part of a specification only while VersionCode is defined;
// a version without one is logically absent.
type Instrumentversie struct {
	Instrument   *Instrument
	VersionCode  string
	ExpressionID string
	Annotations  ir.IRObject
	Withdrawn    bool
}

// NewVersion creates a version of inst with the given code, created at createdAt.
func NewVersion(inst *Instrument, versionCode string, createdAt time.Time, annotations ir.IRObject) *Instrumentversie {
	v := &Instrumentversie{
		Instrument:  inst,
		Annotations: ir.CloneObject(annotations),
	}
	v.SetVersionCode(versionCode, createdAt)
	return v
}

// ExpressionID derives the expression identifier of a version:
//
//	AKN:  <work>/nld@<year>;<versionCode>
//	JOIN: <work>@<year>;<versionCode>
func ExpressionID(inst *Instrument, versionCode string, year int) string {
	if inst.Type.IsAKN() {
		return fmt.Sprintf("%s/nld@%d;%s", inst.WorkID, year, versionCode)
	}
	return fmt.Sprintf("%s@%d;%s", inst.WorkID, year, versionCode)
}

// SetVersionCode assigns the version code and re-derives the expression id.
// An empty code makes the version invalid.
func (v *Instrumentversie) SetVersionCode(code string, createdAt time.Time) {
	v.VersionCode = code
	if code == "" {
		v.ExpressionID = ""
		return
	}
	v.ExpressionID = ExpressionID(v.Instrument, code, createdAt.Year())
}

// IsValid reports whether the version has a version code.
func (v *Instrumentversie) IsValid() bool {
	return v != nil && v.VersionCode != ""
}

// Annotation returns the payload of annotation a, if any.
func (v *Instrumentversie) Annotation(a Annotation) (ir.IRValue, bool) {
	val, ok := v.Annotations[string(a)]
	return val, ok
}

// SetAnnotation stores an annotation payload if the instrument type permits
// it. Returns false (and stores nothing) otherwise.
func (v *Instrumentversie) SetAnnotation(a Annotation, payload ir.IRValue) bool {
	if !Permits(v.Instrument.Type, a) {
		return false
	}
	if v.Annotations == nil {
		v.Annotations = ir.IRObject{}
	}
	if payload == nil {
		delete(v.Annotations, string(a))
		return true
	}
	v.Annotations[string(a)] = payload
	return true
}

// Clone returns a copy sharing only the immutable Instrument.
func (v *Instrumentversie) Clone() *Instrumentversie {
	if v == nil {
		return nil
	}
	return &Instrumentversie{
		Instrument:   v.Instrument,
		VersionCode:  v.VersionCode,
		ExpressionID: v.ExpressionID,
		Annotations:  ir.CloneObject(v.Annotations),
		Withdrawn:    v.Withdrawn,
	}
}
