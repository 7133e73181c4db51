package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/bgproces/internal/compiler"
	"github.com/roach88/bgproces/internal/engine"
	"github.com/roach88/bgproces/internal/instrument"
	"github.com/roach88/bgproces/internal/ir"
	"github.com/roach88/bgproces/internal/momentopname"
	"github.com/roach88/bgproces/internal/spec"
	"github.com/roach88/bgproces/internal/store"
	"github.com/roach88/bgproces/internal/testutil"
)

// Option configures a run.
type Option func(*options)

type options struct {
	store       *store.Store
	logger      *slog.Logger
	sessionOpts []spec.SessionOption
}

// WithStore journals the run's exports in st instead of a fresh
// in-memory store. The caller keeps ownership of st.
func WithStore(st *store.Store) Option {
	return func(o *options) {
		o.store = st
	}
}

// WithLogger sets the logger of the session and the journal recorder.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithSessionOptions passes extra options to the session the script edits,
// after the fixed id and the logger.
func WithSessionOptions(opts ...spec.SessionOption) Option {
	return func(o *options) {
		o.sessionOpts = append(o.sessionOpts, opts...)
	}
}

// Harness executes the steps of one script against one session.
type Harness struct {
	session  *spec.Session
	clock    *testutil.DeterministicClock
	compiler *compiler.Compiler
	result   *Result
}

// Run executes a script and returns the result.
//
// Each run edits a fresh session with a fixed id. Exports are journaled in
// a fresh in-memory store unless WithStore is given. Step failures and
// failed assertions are reported in the result; the error return is for
// failures of the harness itself.
func Run(script *Script, opts ...Option) (*Result, error) {
	cfg := options{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&cfg)
	}

	st := cfg.store
	if st == nil {
		var err error
		st, err = store.Open(":memory:")
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory store: %w", err)
		}
		defer st.Close()
	}

	sessionID := script.SessionID
	if sessionID == "" {
		sessionID = DefaultSessionID
	}
	sessOpts := append([]spec.SessionOption{
		spec.WithIDGenerator(engine.NewFixedGenerator(sessionID)),
		spec.WithSessionLogger(cfg.logger),
	}, cfg.sessionOpts...)
	sess := spec.NewSession(sessOpts...)
	defer sess.Close()

	h := &Harness{
		session: sess,
		clock:   testutil.NewDeterministicClock(),
		result:  NewResult(),
	}
	h.prelude(script)

	ctx := context.Background()
	sess.RegisterChangeListener(func(string) {
		h.result.ListenerCalls++
	})
	sess.RegisterChangeListener(st.Recorder(ctx, sessionID, cfg.logger))

	for i, step := range script.Steps {
		h.execute(i, step)
	}
	h.result.Export = sess.Export()

	actx := &AssertionContext{
		Session:   sess,
		Store:     st,
		SessionID: sessionID,
		Ctx:       ctx,
	}
	for _, msg := range EvaluateAssertions(h.result, script.Assertions, actx) {
		h.result.AddError(msg)
	}

	return h.result, nil
}

// prelude sets the root properties the script declares. It runs before
// listeners are registered, so it is not counted as a change.
func (h *Harness) prelude(script *Script) {
	if script.BevoegdGezag != "" {
		h.session.BevoegdGezag().Set(script.BevoegdGezag)
	}
	if script.BGCode != "" {
		h.session.BGCode().Set(script.BGCode)
	}
	if script.Startdatum != "" {
		h.session.Startdatum().SetString(script.Startdatum)
	}
}

func (h *Harness) execute(index int, step Step) {
	before := h.session.Export()
	target, err := h.apply(step)

	ev := StepEvent{
		Seq:     h.clock.Next(),
		Op:      step.Op,
		Target:  target,
		Changed: h.session.Export() != before,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	h.result.AddStep(ev)

	switch {
	case step.ExpectError == "" && err != nil:
		h.result.AddError(fmt.Sprintf("steps[%d] %s: %v", index, step.Op, err))
	case step.ExpectError != "" && err == nil:
		h.result.AddError(fmt.Sprintf("steps[%d] %s: expected error %q, got none", index, step.Op, step.ExpectError))
	case step.ExpectError != "" && !matchesError(err, step.ExpectError):
		h.result.AddError(fmt.Sprintf("steps[%d] %s: expected error %q, got %v", index, step.Op, step.ExpectError, err))
	}
}

// matchesError accepts a load error code or part of the message.
func matchesError(err error, want string) bool {
	var le *spec.LoadError
	if errors.As(err, &le) && le.Code == want {
		return true
	}
	return strings.Contains(err.Error(), want)
}

func (h *Harness) apply(step Step) (string, error) {
	switch step.Op {
	case OpSet:
		return h.set(step)
	case OpRemove:
		return h.remove(step)
	case OpAddActivity:
		return h.addActivity(step)
	case OpSetVersion:
		return h.setVersion(step)
	case OpAnnotate:
		return h.annotate(step)
	case OpLoad:
		return h.load(step)
	default:
		return "", fmt.Errorf("unknown op %q", step.Op)
	}
}

func (h *Harness) set(step Step) (string, error) {
	if step.Branch != "" {
		if step.Property != spec.PropSoort {
			return "", fmt.Errorf("only Soort can be set on a momentopname, got %q", step.Property)
		}
		m, err := h.momentopname(step)
		if err != nil {
			return "", err
		}
		m.SetSoort(textOf(step.Value))
		return m.Path(), nil
	}

	if step.Activity == nil {
		p, err := h.rootProperty(step.Property)
		if err != nil {
			return "", err
		}
		if d, ok := p.(*spec.DateNode); ok {
			d.SetString(textOf(step.Value))
		} else {
			p.(*spec.PropertyNode).Set(textOf(step.Value))
		}
		return p.Path(), nil
	}

	a, err := h.activity(step)
	if err != nil {
		return "", err
	}
	if step.Property == spec.PropTijdstip {
		days, ok := numberOf(step.Value)
		if !ok {
			return "", fmt.Errorf("%s must be a number, got %v", spec.PropTijdstip, step.Value)
		}
		t := a.Tijdstip()
		t.Set(days)
		return t.Path(), nil
	}
	p, err := a.Prop(step.Property)
	if err != nil {
		return "", err
	}
	p.Set(textOf(step.Value))
	return p.Path(), nil
}

func (h *Harness) remove(step Step) (string, error) {
	switch {
	case step.Activity == nil && step.Branch != "":
		m, err := h.momentopname(step)
		if err != nil {
			return "", err
		}
		m.Remove()
		return m.Path(), nil
	case step.Activity == nil:
		p, err := h.rootProperty(step.Property)
		if err != nil {
			return "", err
		}
		p.Remove()
		return p.Path(), nil
	}

	a, err := h.activity(step)
	if err != nil {
		return "", err
	}
	switch {
	case step.Branch != "":
		m, err := a.Branch(step.Branch)
		if err != nil {
			return "", err
		}
		m.Remove()
		return m.Path(), nil
	case step.Property == spec.PropTijdstip:
		t := a.Tijdstip()
		t.Clear()
		return t.Path(), nil
	case step.Property != "":
		p, err := a.Prop(step.Property)
		if err != nil {
			return "", err
		}
		p.Remove()
		return p.Path(), nil
	default:
		path := a.Path()
		a.Remove()
		return path, nil
	}
}

func (h *Harness) addActivity(step Step) (string, error) {
	a, err := h.session.AddActivity(step.Project, spec.Soort(step.Soort))
	if err != nil {
		return "", err
	}
	if step.Tijdstip != nil {
		a.Tijdstip().Set(*step.Tijdstip)
	}
	return a.Path(), nil
}

func (h *Harness) setVersion(step Step) (string, error) {
	v, err := h.version(step)
	if err != nil {
		return "", err
	}
	kind, err := parseKind(step.Kind)
	if err != nil {
		return "", err
	}
	switch kind {
	case momentopname.Withdrawn:
		v.SetWithdrawn()
	case momentopname.Revert:
		v.SetRevert()
	default:
		v.SetNew()
	}
	return v.Path(), nil
}

func (h *Harness) annotate(step Step) (string, error) {
	v, err := h.version(step)
	if err != nil {
		return "", err
	}
	var payload ir.IRValue
	if step.Value != nil {
		payload, err = ir.FromGo(step.Value)
		if err != nil {
			return "", fmt.Errorf("annotation %s: %w", step.Annotation, err)
		}
	}
	if !v.SetAnnotation(instrument.Annotation(step.Annotation), payload) {
		return v.Path(), fmt.Errorf("annotation %s not permitted for %s", step.Annotation, v.Type())
	}
	return v.Path(), nil
}

func (h *Harness) load(step Step) (string, error) {
	data := []byte(step.Document)
	if step.File != "" {
		var err error
		data, err = h.readDocument(step.File)
		if err != nil {
			return "", err
		}
	}

	_, err := h.session.Load(data)
	var le *spec.LoadError
	switch {
	case errors.As(err, &le):
		h.result.LoadErrorCode = le.Code
	case err == nil:
		h.result.LoadErrorCode = ""
	}
	return "", err
}

// readDocument reads a JSON document, compiling .cue files first.
func (h *Harness) readDocument(path string) ([]byte, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if filepath.Ext(path) != ".cue" {
		return src, nil
	}
	if h.compiler == nil {
		if h.compiler, err = compiler.New(); err != nil {
			return nil, err
		}
	}
	return h.compiler.ToJSON(path, src)
}

// pathNode is the part of the node API remove and set share.
type pathNode interface {
	Path() string
	Remove()
}

func (h *Harness) rootProperty(name string) (pathNode, error) {
	switch name {
	case spec.KeyBevoegdGezag:
		return h.session.BevoegdGezag(), nil
	case spec.KeyBGCode:
		return h.session.BGCode(), nil
	case spec.KeyBeschrijving:
		return h.session.Beschrijving(), nil
	case spec.KeyStartdatum:
		return h.session.Startdatum(), nil
	default:
		return nil, fmt.Errorf("unknown root property %q", name)
	}
}

func (h *Harness) activity(step Step) (*spec.ActivityNode, error) {
	acts := h.session.Activities(step.Project)
	i := *step.Activity
	if i >= len(acts) {
		where := spec.KeyOverig
		if step.Project != "" {
			where = "project " + step.Project
		}
		return nil, fmt.Errorf("no activity %d in %s (has %d)", i, where, len(acts))
	}
	return acts[i], nil
}

func (h *Harness) momentopname(step Step) (*spec.MomentopnameNode, error) {
	if step.Activity == nil {
		if step.Branch == "" || step.Branch == momentopname.Uitgangssituatie {
			return h.session.Baseline(), nil
		}
		return nil, fmt.Errorf("branch %q needs an activity", step.Branch)
	}
	a, err := h.activity(step)
	if err != nil {
		return nil, err
	}
	return a.Branch(step.Branch)
}

func (h *Harness) version(step Step) (*spec.VersionNode, error) {
	m, err := h.momentopname(step)
	if err != nil {
		return nil, err
	}
	if step.Code != "" {
		return m.Instrument(step.Code)
	}
	tag, err := instrument.ParseTypeTag(step.Type)
	if err != nil {
		return nil, err
	}
	return m.NewInstrument(tag)
}

func textOf(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}

func numberOf(v any) (float64, bool) {
	switch val := v.(type) {
	case int:
		return float64(val), true
	case float64:
		return val, true
	default:
		return 0, false
	}
}
