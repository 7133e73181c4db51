package spec

import (
	"math"
	"time"

	"github.com/roach88/bgproces/internal/instrument"
	"github.com/roach88/bgproces/internal/ir"
	"github.com/roach88/bgproces/internal/momentopname"
)

// Top-level document keys.
const (
	KeyBevoegdGezag     = "BevoegdGezag"
	KeyBGCode           = "BGCode"
	KeyBeschrijving     = "Beschrijving"
	KeyStartdatum       = "Startdatum"
	KeyUitgangssituatie = momentopname.Uitgangssituatie
	KeyProjecten        = "Projecten"
	KeyOverig           = "Overig"
)

// DateLayout is the layout of Startdatum.
const DateLayout = "2006-01-02"

// Specification is a loaded and validated scenario.
type Specification struct {
	BevoegdGezag instrument.AuthorityKind
	BGCode       string
	Beschrijving string
	Startdatum   string // DateLayout, or "" when absent

	Uitgangssituatie []InstrumentChange
	Projecten        []Project // sorted by name
	Overig           []Activity

	// Registry holds every instrument the scenario mentions.
	Registry *instrument.Registry

	// Timeline holds the snapshots produced by replaying the scenario.
	Timeline *momentopname.Timeline

	start time.Time // parsed Startdatum or the loader default
}

// Project is a named list of activities.
type Project struct {
	Name       string
	Activities []Activity
}

// Activity is one entry of a project or of Overig.
type Activity struct {
	Type         ActivityType
	Tijdstip     float64 // days after Startdatum
	HasTijdstip  bool
	Beschrijving string

	// Props holds the variant-specific properties present in the document.
	Props ir.IRObject

	// Branches holds the snapshot descriptions of a change activity,
	// sorted by branch name.
	Branches []Branch
}

// Branch describes the snapshot an activity produces on one branch.
type Branch struct {
	Name    string
	Soort   string // optional branch kind
	Changes []InstrumentChange
}

// InstrumentChange is one instrument entry of a snapshot description.
type InstrumentChange struct {
	Code        string
	Kind        momentopname.ChangeKind
	Annotations ir.IRObject

	// Explicit is set when the document used the object form.
	Explicit bool
}

// Authority returns the bevoegd gezag the scenario is scoped to.
func (s *Specification) Authority() instrument.Authority {
	return instrument.Authority{Kind: s.BevoegdGezag, BGCode: s.BGCode}
}

// Start returns the date day 0 refers to, or the zero time when unknown.
func (s *Specification) Start() time.Time {
	return s.start
}

// CreatedAt converts a Tijdstip to a point in time.
func (s *Specification) CreatedAt(tijdstip float64) (time.Time, bool) {
	if s.start.IsZero() {
		return time.Time{}, false
	}
	return AddDays(s.start, tijdstip), true
}

// AddDays adds a possibly fractional number of days to t. Whole days use
// calendar arithmetic; the fraction is added as hours.
func AddDays(t time.Time, days float64) time.Time {
	whole := math.Trunc(days)
	frac := days - whole
	return t.AddDate(0, 0, int(whole)).Add(time.Duration(frac * 24 * float64(time.Hour)))
}

// Activities returns the activities of a project, or Overig for "".
func (s *Specification) Activities(project string) []Activity {
	if project == "" {
		return s.Overig
	}
	for _, p := range s.Projecten {
		if p.Name == project {
			return p.Activities
		}
	}
	return nil
}

// Value renders the change in its document form.
func (c InstrumentChange) Value() ir.IRValue {
	switch c.Kind {
	case momentopname.Withdrawn:
		return ir.IRBool(false)
	case momentopname.Revert:
		return ir.IRNull{}
	}
	if !c.Explicit && len(c.Annotations) == 0 {
		return ir.IRBool(true)
	}
	obj := ir.CloneObject(c.Annotations)
	if obj == nil {
		obj = ir.IRObject{}
	}
	obj[instrument.JSONMarker] = ir.IRBool(true)
	return obj
}

func (c InstrumentChange) change() momentopname.Change {
	return momentopname.Change{Code: c.Code, Kind: c.Kind, Annotations: c.Annotations}
}

// Document renders the specification back to its JSON tree. Export of the
// result is the canonical form of the scenario.
func (s *Specification) Document() ir.IRObject {
	doc := ir.IRObject{
		KeyBevoegdGezag: ir.IRString(s.BevoegdGezag),
		KeyBGCode:       ir.IRString(s.BGCode),
	}
	if s.Beschrijving != "" {
		doc[KeyBeschrijving] = ir.IRString(s.Beschrijving)
	}
	if s.Startdatum != "" {
		doc[KeyStartdatum] = ir.IRString(s.Startdatum)
	}
	if len(s.Uitgangssituatie) > 0 {
		doc[KeyUitgangssituatie] = changesDocument(s.Uitgangssituatie, nil)
	}
	if len(s.Projecten) > 0 {
		projecten := ir.IRObject{}
		for _, p := range s.Projecten {
			projecten[p.Name] = activitiesDocument(p.Activities)
		}
		doc[KeyProjecten] = projecten
	}
	if len(s.Overig) > 0 {
		doc[KeyOverig] = activitiesDocument(s.Overig)
	}
	return doc
}

func activitiesDocument(acts []Activity) ir.IRArray {
	arr := make(ir.IRArray, len(acts))
	for i, a := range acts {
		arr[i] = a.Document()
	}
	return arr
}

// Document renders the activity in its document form.
func (a Activity) Document() ir.IRObject {
	obj := ir.CloneObject(a.Props)
	if obj == nil {
		obj = ir.IRObject{}
	}
	obj[PropSoort] = ir.IRString(a.Type.Soort)
	if a.HasTijdstip {
		obj[PropTijdstip] = numberValue(a.Tijdstip)
	}
	if a.Beschrijving != "" {
		obj[PropBeschrijving] = ir.IRString(a.Beschrijving)
	}
	for _, b := range a.Branches {
		var extra ir.IRObject
		if b.Soort != "" {
			extra = ir.IRObject{PropSoort: ir.IRString(b.Soort)}
		}
		obj[b.Name] = changesDocument(b.Changes, extra)
	}
	return obj
}

func changesDocument(changes []InstrumentChange, extra ir.IRObject) ir.IRObject {
	obj := ir.CloneObject(extra)
	if obj == nil {
		obj = ir.IRObject{}
	}
	for _, c := range changes {
		obj[c.Code] = c.Value()
	}
	return obj
}

func numberValue(f float64) ir.IRValue {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return ir.IRInt(int64(f))
	}
	return ir.IRFloat(f)
}
