package spec

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/roach88/bgproces/internal/instrument"
	"github.com/roach88/bgproces/internal/ir"
	"github.com/roach88/bgproces/internal/momentopname"
)

// LoadOption configures Load.
type LoadOption func(*loadConfig)

type loadConfig struct {
	registry     *instrument.Registry
	defaultStart time.Time
	logger       *slog.Logger
}

// WithRegistry merges the loaded instruments into reg on success. Codes
// already in reg keep their identity; reg is untouched when Load fails.
func WithRegistry(reg *instrument.Registry) LoadOption {
	return func(c *loadConfig) {
		c.registry = reg
	}
}

// WithDefaultStartdatum sets the day 0 used when the document has no
// Startdatum.
func WithDefaultStartdatum(t time.Time) LoadOption {
	return func(c *loadConfig) {
		c.defaultStart = t
	}
}

// WithLogger sets the logger for skipped activities and dropped
// annotations.
func WithLogger(logger *slog.Logger) LoadOption {
	return func(c *loadConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Load parses and validates a specification document.
//
// Load either succeeds completely or returns a *LoadError; no partial
// Specification is ever returned and an injected registry is only
// updated on success.
func Load(data []byte, opts ...LoadOption) (*Specification, error) {
	doc, err := ir.DecodeObject(data)
	if err != nil {
		var de *ir.DuplicateKeyError
		if errors.As(err, &de) && instrument.IsCode(de.Key) {
			return nil, newLoadError(de.Path, fmt.Errorf("%s: %w", de.Key, ErrDuplicateInitialVersion))
		}
		return nil, newLoadError("", fmt.Errorf("%w: %v", ErrMalformedJSON, err))
	}
	return LoadDocument(doc, opts...)
}

// LoadDocument is Load for an already decoded document. doc is not
// modified.
func LoadDocument(doc ir.IRObject, opts ...LoadOption) (*Specification, error) {
	cfg := loadConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	l := &loader{cfg: cfg, owners: make(map[string]string)}
	s, err := l.load(doc)
	if err != nil {
		return nil, err
	}
	return s, nil
}

type loader struct {
	cfg    loadConfig
	owners map[string]string // branch -> project, "" for Overig
}

func (l *loader) load(doc ir.IRObject) (*Specification, error) {
	s := &Specification{}

	kind, ok := instrument.ParseAuthorityKind(stringOf(doc[KeyBevoegdGezag]))
	if !ok {
		return nil, newLoadError("/"+KeyBevoegdGezag, fmt.Errorf("%w: got %s", ErrUnknownAuthority, describe(doc[KeyBevoegdGezag])))
	}
	s.BevoegdGezag = kind

	bgCode, ok := doc.String(KeyBGCode)
	if !ok || bgCode == "" {
		return nil, newLoadError("/"+KeyBGCode, ErrMissingBGCode)
	}
	s.BGCode = bgCode

	if v, present := doc[KeyBeschrijving]; present {
		text, ok := v.(ir.IRString)
		if !ok {
			return nil, malformed("/"+KeyBeschrijving, "expected string, got %s", describe(v))
		}
		s.Beschrijving = string(text)
	}

	s.start = l.cfg.defaultStart
	if v, present := doc[KeyStartdatum]; present {
		text, _ := v.(ir.IRString)
		start, err := time.Parse(DateLayout, string(text))
		if err != nil {
			return nil, newLoadError("/"+KeyStartdatum, fmt.Errorf("%w: got %s", ErrInvalidDate, describe(v)))
		}
		s.Startdatum = string(text)
		s.start = start
	}

	if v, present := doc[KeyUitgangssituatie]; present {
		obj, ok := v.(ir.IRObject)
		if !ok {
			return nil, malformed("/"+KeyUitgangssituatie, "expected object, got %s", describe(v))
		}
		changes, _, err := l.instruments("/"+KeyUitgangssituatie, obj)
		if err != nil {
			return nil, err
		}
		s.Uitgangssituatie = changes
	}

	if v, present := doc[KeyProjecten]; present {
		obj, ok := v.(ir.IRObject)
		if !ok {
			return nil, malformed("/"+KeyProjecten, "expected object, got %s", describe(v))
		}
		for _, name := range obj.SortedKeys() {
			path := "/" + KeyProjecten + "/" + name
			acts, err := l.activities(path, name, obj[name])
			if err != nil {
				return nil, err
			}
			s.Projecten = append(s.Projecten, Project{Name: name, Activities: acts})
		}
	}

	if v, present := doc[KeyOverig]; present {
		acts, err := l.activities("/"+KeyOverig, "", v)
		if err != nil {
			return nil, err
		}
		s.Overig = acts
	}

	if err := l.replay(s); err != nil {
		return nil, err
	}
	return s, nil
}

func (l *loader) activities(path, project string, v ir.IRValue) ([]Activity, error) {
	arr, ok := v.(ir.IRArray)
	if !ok {
		return nil, malformed(path, "expected array, got %s", describe(v))
	}
	var out []Activity
	for i, elem := range arr {
		act, ok, err := l.activity(fmt.Sprintf("%s/%d", path, i), project, elem)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, act)
		}
	}
	return out, nil
}

// activity parses one activity. ok is false for an activity of unknown
// Soort, which is skipped.
func (l *loader) activity(path, project string, v ir.IRValue) (Activity, bool, error) {
	obj, ok := v.(ir.IRObject)
	if !ok {
		return Activity{}, false, malformed(path, "expected object, got %s", describe(v))
	}

	soort := stringOf(obj[PropSoort])
	typ, known := LookupSoort(soort)
	if !known {
		l.cfg.logger.Warn("skipping activity of unknown soort", "soort", soort, "path", path)
		return Activity{}, false, nil
	}

	act := Activity{Type: typ}
	if v, present := obj[PropTijdstip]; present {
		days, ok := ir.AsNumber(v)
		if !ok {
			return Activity{}, false, malformed(path+"/"+PropTijdstip, "expected number, got %s", describe(v))
		}
		act.Tijdstip = days
		act.HasTijdstip = true
	}
	if v, present := obj[PropBeschrijving]; present {
		text, ok := v.(ir.IRString)
		if !ok {
			return Activity{}, false, malformed(path+"/"+PropBeschrijving, "expected string, got %s", describe(v))
		}
		act.Beschrijving = string(text)
	}

	for _, key := range obj.SortedKeys() {
		switch {
		case slices.Contains(BaseProperties, key):
		case slices.Contains(typ.Extra, key):
			if act.Props == nil {
				act.Props = ir.IRObject{}
			}
			act.Props[key] = ir.Clone(obj[key])
		case typ.IsBranchKey(key):
			branch, err := l.branch(path+"/"+key, project, key, obj[key])
			if err != nil {
				return Activity{}, false, err
			}
			act.Branches = append(act.Branches, branch)
		default:
			l.cfg.logger.Warn("dropping property not permitted for soort", "soort", soort, "path", path+"/"+key)
		}
	}
	return act, true, nil
}

func (l *loader) branch(path, project, name string, v ir.IRValue) (Branch, error) {
	if name == momentopname.Uitgangssituatie {
		return Branch{}, newLoadError(path, fmt.Errorf("%q: %w", name, ErrReservedBranchName))
	}
	if owner, ok := l.owners[name]; ok && owner != project {
		return Branch{}, newLoadError(path, fmt.Errorf("%q in %s and %s: %w", name, ownerName(owner), ownerName(project), ErrBranchReuse))
	}
	l.owners[name] = project

	obj, ok := v.(ir.IRObject)
	if !ok {
		return Branch{}, malformed(path, "expected object, got %s", describe(v))
	}
	changes, soort, err := l.instruments(path, obj)
	if err != nil {
		return Branch{}, err
	}
	return Branch{Name: name, Soort: soort, Changes: changes}, nil
}

// instruments parses a snapshot description. The optional Soort key is
// returned separately; other keys that are not instrument codes are
// skipped.
func (l *loader) instruments(path string, obj ir.IRObject) ([]InstrumentChange, string, error) {
	var changes []InstrumentChange
	var soort string
	for _, key := range obj.SortedKeys() {
		if key == PropSoort {
			soort = stringOf(obj[key])
			continue
		}
		tag, _, ok := instrument.ParseCode(key)
		if !ok {
			l.cfg.logger.Warn("skipping key that is not an instrument code", "path", path+"/"+key)
			continue
		}

		c := InstrumentChange{Code: key}
		switch val := obj[key].(type) {
		case ir.IRBool:
			if !val {
				c.Kind = momentopname.Withdrawn
			}
		case ir.IRNull:
			c.Kind = momentopname.Revert
		case ir.IRObject:
			kept, dropped := instrument.FilterAnnotations(tag, val)
			for _, d := range dropped {
				l.cfg.logger.Warn("dropping annotation not permitted for instrument type",
					"tag", d, "type", string(tag), "path", path+"/"+key)
			}
			c.Explicit = true
			if len(kept) > 0 {
				c.Annotations = kept
			}
		default:
			return nil, "", newLoadError(path+"/"+key, fmt.Errorf("%s is %s: %w", key, describe(val), ErrMissingVersionCode))
		}
		changes = append(changes, c)
	}
	return changes, soort, nil
}

// replay registers instruments and builds the snapshot timeline.
func (l *loader) replay(s *Specification) error {
	reg := instrument.NewRegistry()
	if l.cfg.registry != nil {
		reg = l.cfg.registry.Clone()
	}
	tl := momentopname.NewTimeline(reg, s.Authority())

	if !s.start.IsZero() {
		var changes []momentopname.Change
		for _, c := range s.Uitgangssituatie {
			changes = append(changes, c.change())
		}
		if _, err := tl.SetBaseline(s.start, changes); err != nil {
			return newLoadError("/"+KeyUitgangssituatie, err)
		}
	} else if len(s.Uitgangssituatie) > 0 {
		return newLoadError("/"+KeyUitgangssituatie, fmt.Errorf("no Startdatum: %w", ErrMissingTimestamp))
	}

	for _, e := range l.ordered(s) {
		if err := l.apply(s, tl, e); err != nil {
			return err
		}
	}

	if l.cfg.registry != nil {
		if err := l.cfg.registry.Merge(reg); err != nil {
			return newLoadError("", err)
		}
	}
	s.Registry = reg
	s.Timeline = tl
	return nil
}

type scheduled struct {
	path    string
	project string
	act     Activity
}

// ordered returns every activity in replay order: by Tijdstip, ties in
// document order (projects by name, then Overig). Activities without a
// Tijdstip keep their place at the end.
func (l *loader) ordered(s *Specification) []scheduled {
	var out []scheduled
	for _, p := range s.Projecten {
		for i, a := range p.Activities {
			out = append(out, scheduled{fmt.Sprintf("/%s/%s/%d", KeyProjecten, p.Name, i), p.Name, a})
		}
	}
	for i, a := range s.Overig {
		out = append(out, scheduled{fmt.Sprintf("/%s/%d", KeyOverig, i), "", a})
	}
	slices.SortStableFunc(out, func(a, b scheduled) int {
		switch {
		case a.act.HasTijdstip != b.act.HasTijdstip:
			if a.act.HasTijdstip {
				return -1
			}
			return 1
		case a.act.Tijdstip < b.act.Tijdstip:
			return -1
		case a.act.Tijdstip > b.act.Tijdstip:
			return 1
		default:
			return 0
		}
	})
	return out
}

func (l *loader) apply(s *Specification, tl *momentopname.Timeline, e scheduled) error {
	needsTime := len(e.act.Branches) > 0 || e.act.Props[PropBesluit] != nil
	if !needsTime {
		return nil
	}

	createdAt, ok := s.CreatedAt(e.act.Tijdstip)
	if !e.act.HasTijdstip || !ok {
		return newLoadError(e.path, fmt.Errorf("%s without Tijdstip or Startdatum: %w", e.act.Type.Soort, ErrMissingTimestamp))
	}

	if code, ok := e.act.Props[PropBesluit].(ir.IRString); ok {
		if err := registerBesluit(tl.Registry(), s.Authority(), string(code), createdAt); err != nil {
			return newLoadError(e.path+"/"+PropBesluit, err)
		}
	}

	basis := stringOf(e.act.Props[PropBasis])
	for _, b := range e.act.Branches {
		step := momentopname.Step{Project: e.project, Branch: b.Name, Basis: basis, CreatedAt: createdAt, Ref: e.path}
		for _, c := range b.Changes {
			step.Changes = append(step.Changes, c.change())
		}
		if _, err := tl.Apply(step); err != nil {
			return newLoadError(e.path+"/"+b.Name, err)
		}
	}
	return nil
}

// registerBesluit registers the decision an Ontwerpbesluit or
// Vaststellingsbesluit refers to. Values that are not Besluit codes are
// left alone.
func registerBesluit(reg *instrument.Registry, authority instrument.Authority, code string, createdAt time.Time) error {
	tag, _, ok := instrument.ParseCode(code)
	if !ok || tag != instrument.Besluit {
		return nil
	}
	if inst, ok := reg.LookupCode(code); ok {
		if inst.AuthorityCode != authority.Code() {
			return fmt.Errorf("%w: %s belongs to %s", ErrInstrumentConflict, code, inst.AuthorityCode)
		}
		return nil
	}
	_, err := reg.Register(tag, code, authority, createdAt)
	return err
}

func stringOf(v ir.IRValue) string {
	s, _ := v.(ir.IRString)
	return string(s)
}

func describe(v ir.IRValue) string {
	switch val := v.(type) {
	case nil:
		return "nothing"
	case ir.IRString:
		return fmt.Sprintf("%q", string(val))
	case ir.IRNull:
		return "null"
	case ir.IRBool:
		return fmt.Sprintf("%t", bool(val))
	case ir.IRInt, ir.IRFloat:
		f, _ := ir.AsNumber(val)
		return fmt.Sprintf("%v", f)
	case ir.IRArray:
		return "an array"
	case ir.IRObject:
		return "an object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func ownerName(project string) string {
	if project == "" {
		return KeyOverig
	}
	return fmt.Sprintf("project %q", project)
}
