package spec

import (
	"fmt"
	"time"

	"github.com/roach88/bgproces/internal/engine"
	"github.com/roach88/bgproces/internal/instrument"
	"github.com/roach88/bgproces/internal/ir"
	"github.com/roach88/bgproces/internal/momentopname"
)

func nonEmptyString(v ir.IRValue) bool {
	s, ok := v.(ir.IRString)
	return ok && s != ""
}

func knownAuthority(v ir.IRValue) bool {
	_, ok := instrument.ParseAuthorityKind(stringOf(v))
	return ok
}

func validDate(v ir.IRValue) bool {
	s, ok := v.(ir.IRString)
	if !ok {
		return false
	}
	_, err := time.Parse(DateLayout, string(s))
	return err == nil
}

func isNumber(v ir.IRValue) bool {
	_, ok := ir.AsNumber(v)
	return ok
}

// ============================================================================
// Scalar properties
// ============================================================================

// PropertyNode edits a scalar property.
type PropertyNode struct {
	*engine.Binding
}

// Set stores a string value; the empty string removes the property.
func (p *PropertyNode) Set(value string) {
	p.SetValue(ir.IRString(value))
}

// String returns the in-memory value as a string.
func (p *PropertyNode) String() string {
	return stringOf(p.Value())
}

func (s *Session) property(key string, valid func(ir.IRValue) bool) *PropertyNode {
	if p, ok := s.props[key]; ok {
		return p
	}
	p := &PropertyNode{s.bind("/"+key, engine.Property(s.root, key), valid, nil)}
	s.props[key] = p
	return p
}

// BevoegdGezag edits the authority kind; values other than Gemeente and
// Rijk are kept in memory but not stored.
func (s *Session) BevoegdGezag() *PropertyNode {
	return s.property(KeyBevoegdGezag, knownAuthority)
}

// BGCode edits the authority code.
func (s *Session) BGCode() *PropertyNode {
	return s.property(KeyBGCode, nonEmptyString)
}

// Beschrijving edits the scenario description.
func (s *Session) Beschrijving() *PropertyNode {
	return s.property(KeyBeschrijving, nonEmptyString)
}

// ============================================================================
// Dates
// ============================================================================

// DateNode edits Startdatum.
type DateNode struct {
	*engine.Binding
}

// Startdatum edits the date day 0 refers to.
func (s *Session) Startdatum() *DateNode {
	if s.startdatum == nil {
		s.startdatum = &DateNode{s.bind("/"+KeyStartdatum, engine.Property(s.root, KeyStartdatum), validDate, nil)}
	}
	return s.startdatum
}

// Set stores the date part of t.
func (d *DateNode) Set(t time.Time) {
	d.SetValue(ir.IRString(t.Format(DateLayout)))
}

// SetString stores a date as text; text that is not YYYY-MM-DD is kept
// in memory only.
func (d *DateNode) SetString(text string) {
	d.SetValue(ir.IRString(text))
}

// Date returns the parsed date.
func (d *DateNode) Date() (time.Time, bool) {
	if !d.IsValid() {
		return time.Time{}, false
	}
	t, _ := time.Parse(DateLayout, stringOf(d.Value()))
	return t, true
}

// TijdstipNode edits the Tijdstip of an activity and derives its date.
// The derived date is cached until Startdatum or the Tijdstip changes.
type TijdstipNode struct {
	*engine.Binding
	s      *Session
	cached *time.Time
}

// Set stores a day offset.
func (t *TijdstipNode) Set(days float64) {
	t.SetValue(numberValue(days))
}

// Clear removes the day offset.
func (t *TijdstipNode) Clear() {
	t.SetValue(nil)
}

// SetValue stores v and drops the cached date.
func (t *TijdstipNode) SetValue(v ir.IRValue) {
	t.cached = nil
	t.Binding.SetValue(v)
}

// Days returns the day offset.
func (t *TijdstipNode) Days() (float64, bool) {
	return ir.AsNumber(t.Value())
}

// Date returns Startdatum plus the day offset.
func (t *TijdstipNode) Date() (time.Time, bool) {
	if t.cached != nil {
		return *t.cached, true
	}
	days, ok := t.Days()
	if !ok {
		return time.Time{}, false
	}
	start, ok := t.s.startDate()
	if !ok {
		return time.Time{}, false
	}
	at := AddDays(start, days)
	t.cached = &at
	return at, true
}

// ============================================================================
// Activities
// ============================================================================

// ActivityNode edits one activity of a project or of Overig.
type ActivityNode struct {
	*engine.Binding
	s       *Session
	project string
	el      *engine.ElementContainer

	tijdstip     *TijdstipNode
	beschrijving *PropertyNode
	props        map[string]*PropertyNode
	branches     map[string]*MomentopnameNode
}

func knownActivity(v ir.IRValue) bool {
	obj, ok := v.(ir.IRObject)
	if !ok {
		return false
	}
	_, known := LookupSoort(stringOf(obj[PropSoort]))
	return known
}

// AddActivity appends an activity of the given soort to project, or to
// Overig when project is "".
func (s *Session) AddActivity(project string, soort Soort) (*ActivityNode, error) {
	if _, ok := LookupSoort(string(soort)); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSoort, soort)
	}
	a := s.activity(project, engine.Element(activitiesContainer(s.root, project)))
	a.SetValue(ir.IRObject{PropSoort: ir.IRString(soort)})
	return a, nil
}

// Activities returns nodes for the activities of project (Overig for "")
// in document order.
func (s *Session) Activities(project string) []*ActivityNode {
	c := activitiesContainer(s.root, project)
	arr, _ := c.Lookup().(ir.IRArray)

	out := make([]*ActivityNode, 0, len(arr))
	for _, elem := range arr {
		out = append(out, s.activityFor(project, c, elem))
	}
	return out
}

// Projects returns the project names in the tree, sorted.
func (s *Session) Projects() []string {
	projecten, _ := s.root.Object().Object(KeyProjecten)
	return projecten.SortedKeys()
}

func (s *Session) activityFor(project string, c engine.Container, elem ir.IRValue) *ActivityNode {
	for _, a := range s.activities {
		if a.project == project && a.Value() != nil && ir.Same(a.Value(), elem) {
			return a
		}
	}
	return s.activity(project, engine.ElementOf(c, elem))
}

func (s *Session) activity(project string, el *engine.ElementContainer) *ActivityNode {
	a := &ActivityNode{
		s:        s,
		project:  project,
		el:       el,
		props:    make(map[string]*PropertyNode),
		branches: make(map[string]*MomentopnameNode),
	}
	a.Binding = s.bind(activitiesPath(project)+"/-", el, knownActivity, nil)
	s.activities = append(s.activities, a)
	return a
}

// Project returns the owning project, "" for Overig.
func (a *ActivityNode) Project() string {
	return a.project
}

// Path returns the document path of the activity, or "" while it is not
// in the tree.
func (a *ActivityNode) Path() string {
	i := a.el.Index()
	if i < 0 {
		return ""
	}
	return fmt.Sprintf("%s/%d", activitiesPath(a.project), i)
}

// Type returns the taxonomy entry of the activity.
func (a *ActivityNode) Type() (ActivityType, bool) {
	obj, _ := a.Value().(ir.IRObject)
	return LookupSoort(stringOf(obj[PropSoort]))
}

func (a *ActivityNode) object() engine.Container {
	return engine.ValueOf(a.Binding)
}

// Tijdstip edits the day offset of the activity.
func (a *ActivityNode) Tijdstip() *TijdstipNode {
	if a.tijdstip == nil {
		t := &TijdstipNode{s: a.s}
		t.Binding = a.s.bind(a.childPath(PropTijdstip), engine.Property(a.object(), PropTijdstip), isNumber,
			func(b *engine.Binding, n engine.Notification) {
				if n.Kind == engine.KindReloaded || n.Path == "/"+KeyStartdatum {
					t.cached = nil
				}
			})
		a.tijdstip = t
	}
	return a.tijdstip
}

// Beschrijving edits the activity description.
func (a *ActivityNode) Beschrijving() *PropertyNode {
	if a.beschrijving == nil {
		a.beschrijving = &PropertyNode{a.s.bind(a.childPath(PropBeschrijving), engine.Property(a.object(), PropBeschrijving), nonEmptyString, nil)}
	}
	return a.beschrijving
}

// Prop edits a variant-specific property such as Basis or Besluit.
func (a *ActivityNode) Prop(name string) (*PropertyNode, error) {
	typ, _ := a.Type()
	if !typ.Permits(name) || name == PropSoort {
		return nil, fmt.Errorf("%w: %s on %q", ErrPropertyNotPermitted, name, typ.Soort)
	}
	switch name {
	case PropTijdstip:
		return nil, fmt.Errorf("%w: use Tijdstip()", ErrPropertyNotPermitted)
	case PropBeschrijving:
		return a.Beschrijving(), nil
	}
	if p, ok := a.props[name]; ok {
		return p, nil
	}
	p := &PropertyNode{a.s.bind(a.childPath(name), engine.Property(a.object(), name), nonEmptyString, nil)}
	a.props[name] = p
	return p, nil
}

// Branch edits the snapshot description the activity produces on a
// branch. Branch names are unique across projects and Uitgangssituatie is
// reserved; violations are reported without touching the tree.
func (a *ActivityNode) Branch(name string) (*MomentopnameNode, error) {
	if m, ok := a.branches[name]; ok {
		return m, nil
	}
	typ, _ := a.Type()
	if !typ.IsChange {
		return nil, fmt.Errorf("%w: %q", ErrNotChangeActivity, typ.Soort)
	}
	if name == momentopname.Uitgangssituatie {
		return nil, fmt.Errorf("%q: %w", name, ErrReservedBranchName)
	}
	if !typ.IsBranchKey(name) {
		return nil, fmt.Errorf("%w: %s is a property of %q", ErrPropertyNotPermitted, name, typ.Soort)
	}
	if owner, ok := a.s.branchClaim(name, a.project); ok {
		return nil, fmt.Errorf("%q in %s and %s: %w", name, ownerName(owner), ownerName(a.project), ErrBranchReuse)
	}

	// The Tijdstip node must be attached before the branch so it drops its
	// cached date before the branch re-evaluates.
	t := a.Tijdstip()
	m := a.s.momentopname(a.childPath(name), engine.Property(a.object(), name), name, a, t.Date)
	a.branches[name] = m
	return m, nil
}

// Remove deletes the activity from its list.
func (a *ActivityNode) Remove() {
	a.Binding.Remove()
}

func (a *ActivityNode) destroy() {
	for _, m := range a.branches {
		m.destroy()
	}
	if a.tijdstip != nil {
		a.tijdstip.Destroy()
	}
	if a.beschrijving != nil {
		a.beschrijving.Destroy()
	}
	for _, p := range a.props {
		p.Destroy()
	}
	a.Binding.Destroy()
}

func (a *ActivityNode) childPath(key string) string {
	return a.Binding.Path() + "/" + key
}

// ============================================================================
// Momentopnamen
// ============================================================================

// MomentopnameNode edits a snapshot description: the baseline or one
// branch of a change activity.
//
// It is stored only while valid: it holds at least one instrument and its
// creation time is known. It re-evaluates on every notification, so
// setting Startdatum or the activity's Tijdstip inserts it and clearing
// them deletes it.
type MomentopnameNode struct {
	*engine.Binding
	s         *Session
	branch    string
	activity  *ActivityNode // nil for the baseline
	createdAt func() (time.Time, bool)
	removed   bool
	versions  map[string]*VersionNode
}

func (s *Session) momentopname(path string, c engine.Container, branch string, activity *ActivityNode, createdAt func() (time.Time, bool)) *MomentopnameNode {
	m := &MomentopnameNode{
		s:         s,
		branch:    branch,
		activity:  activity,
		createdAt: createdAt,
		versions:  make(map[string]*VersionNode),
	}
	m.Binding = s.bind(path, c, m.valid, func(b *engine.Binding, n engine.Notification) {
		if n.Kind == engine.KindReloaded || m.removed {
			return
		}
		_ = b.Apply(b.Value(), n.Depth)
	})
	return m
}

// Baseline edits Uitgangssituatie.
func (s *Session) Baseline() *MomentopnameNode {
	if s.baseline == nil {
		s.baseline = s.momentopname("/"+KeyUitgangssituatie, engine.Property(s.root, KeyUitgangssituatie),
			momentopname.Uitgangssituatie, nil, s.startDate)
	}
	return s.baseline
}

func (m *MomentopnameNode) valid(v ir.IRValue) bool {
	obj, ok := v.(ir.IRObject)
	if !ok {
		return false
	}
	if _, ok := m.createdAt(); !ok {
		return false
	}
	// A branch another project already stored is never stored twice.
	if m.activity != nil {
		if _, taken := m.s.branchOwner(m.branch, m.activity.project); taken {
			return false
		}
	}
	for key := range obj {
		if instrument.IsCode(key) {
			return true
		}
	}
	return false
}

// BranchName returns the branch, Uitgangssituatie for the baseline.
func (m *MomentopnameNode) BranchName() string {
	return m.branch
}

// IsBaseline reports whether m edits Uitgangssituatie.
func (m *MomentopnameNode) IsBaseline() bool {
	return m.activity == nil
}

// CreatedAt returns the creation time, if known.
func (m *MomentopnameNode) CreatedAt() (time.Time, bool) {
	return m.createdAt()
}

// SetSoort sets the optional branch kind.
func (m *MomentopnameNode) SetSoort(soort string) {
	m.removed = false
	obj := ir.CloneObject(asObject(m.Value()))
	if soort == "" {
		delete(obj, PropSoort)
	} else {
		obj[PropSoort] = ir.IRString(soort)
	}
	m.SetValue(obj)
}

// Codes returns the instrument codes in the description, sorted.
func (m *MomentopnameNode) Codes() []string {
	var codes []string
	obj := asObject(m.Value())
	for _, key := range obj.SortedKeys() {
		if instrument.IsCode(key) {
			codes = append(codes, key)
		}
	}
	return codes
}

// Instrument edits the entry of an instrument code.
func (m *MomentopnameNode) Instrument(code string) (*VersionNode, error) {
	tag, _, ok := instrument.ParseCode(code)
	if !ok {
		return nil, fmt.Errorf("%w: %q", instrument.ErrInvalidCode, code)
	}
	if v, ok := m.versions[code]; ok {
		return v, nil
	}
	m.s.registry.Reserve(code)

	v := &VersionNode{m: m, code: code, tag: tag}
	v.Binding = m.s.bind(m.Binding.Path()+"/"+code, engine.Property(engine.ValueOf(m.Binding), code), nil, nil)
	m.versions[code] = v
	return v, nil
}

// NewInstrument allocates a free code of the given type and returns the
// node for it. The code is reserved until the session ends.
func (m *MomentopnameNode) NewInstrument(tag instrument.TypeTag) (*VersionNode, error) {
	code := m.s.registry.FreeCode(tag)
	if code == "" {
		return nil, fmt.Errorf("no free %s code", tag)
	}
	return m.Instrument(code)
}

// Remove deletes the description. It stays deleted until edited again.
func (m *MomentopnameNode) Remove() {
	m.removed = true
	m.Binding.Remove()
}

func (m *MomentopnameNode) destroy() {
	for _, v := range m.versions {
		v.Destroy()
	}
	m.Binding.Destroy()
}

// Snapshot returns the snapshot built from this description in the
// current timeline.
func (m *MomentopnameNode) Snapshot() (*momentopname.Momentopname, error) {
	tl, err := m.s.Timeline()
	if err != nil {
		return nil, err
	}
	var snap *momentopname.Momentopname
	if m.IsBaseline() {
		snap = tl.Baseline()
	} else {
		snap = tl.Find(m.branch, m.activity.Path())
	}
	if snap == nil {
		return nil, fmt.Errorf("%s: no snapshot in the current timeline", m.Binding.Path())
	}
	return snap, nil
}

func asObject(v ir.IRValue) ir.IRObject {
	obj, _ := v.(ir.IRObject)
	if obj == nil {
		return ir.IRObject{}
	}
	return obj
}

// ============================================================================
// Instrument versions
// ============================================================================

// VersionNode edits one instrument entry of a snapshot description:
// true (new version), false (withdrawn), null (revert to baseline) or an
// annotated new version.
type VersionNode struct {
	*engine.Binding
	m    *MomentopnameNode
	code string
	tag  instrument.TypeTag
}

// Code returns the instrument code.
func (v *VersionNode) Code() string {
	return v.code
}

// Type returns the instrument type.
func (v *VersionNode) Type() instrument.TypeTag {
	return v.tag
}

func (v *VersionNode) set(val ir.IRValue) {
	v.m.removed = false
	v.SetValue(val)
}

// SetNew makes the entry a new version, keeping annotations if any.
func (v *VersionNode) SetNew() {
	if _, ok := v.Value().(ir.IRObject); ok {
		return
	}
	v.set(ir.IRBool(true))
}

// SetWithdrawn marks the instrument withdrawn.
func (v *VersionNode) SetWithdrawn() {
	v.set(ir.IRBool(false))
}

// SetRevert restores the baseline version.
func (v *VersionNode) SetRevert() {
	v.set(ir.IRNull{})
}

// SetAnnotation sets (or with a nil payload clears) an annotation and
// makes the entry an annotated new version. Annotations the instrument
// type does not permit are dropped and reported as false.
func (v *VersionNode) SetAnnotation(a instrument.Annotation, payload ir.IRValue) bool {
	if !instrument.Permits(v.tag, a) {
		v.m.s.logger.Warn("dropping annotation not permitted for instrument type",
			"tag", string(a), "type", string(v.tag), "path", v.Binding.Path())
		return false
	}
	obj := ir.IRObject{}
	if cur, ok := v.Value().(ir.IRObject); ok {
		obj = ir.CloneObject(cur)
	}
	obj[instrument.JSONMarker] = ir.IRBool(true)
	if payload == nil {
		delete(obj, string(a))
	} else {
		obj[string(a)] = ir.Clone(payload)
	}
	v.set(obj)
	return true
}

// Annotations returns the annotation payloads of the entry.
func (v *VersionNode) Annotations() ir.IRObject {
	cur, _ := v.Value().(ir.IRObject)
	kept, _ := instrument.FilterAnnotations(v.tag, cur)
	return kept
}

// Kind returns what the entry does, if it is set.
func (v *VersionNode) Kind() (momentopname.ChangeKind, bool) {
	switch val := v.Value().(type) {
	case ir.IRBool:
		if val {
			return momentopname.NewVersion, true
		}
		return momentopname.Withdrawn, true
	case ir.IRNull:
		return momentopname.Revert, true
	case ir.IRObject:
		return momentopname.NewVersion, true
	default:
		return 0, false
	}
}

// Version returns the instrument version the entry resolves to in the
// current timeline, with its version code and expression id.
func (v *VersionNode) Version() (*instrument.Instrumentversie, error) {
	snap, err := v.m.Snapshot()
	if err != nil {
		return nil, err
	}
	sp, err := v.m.s.Specification()
	if err != nil {
		return nil, err
	}
	inst, ok := sp.Registry.LookupCode(v.code)
	if !ok {
		return nil, fmt.Errorf("%s: instrument not registered", v.code)
	}
	version, ok := snap.GetInstrument(inst)
	if !ok {
		return nil, fmt.Errorf("%s: no version in snapshot", v.code)
	}
	return version, nil
}
