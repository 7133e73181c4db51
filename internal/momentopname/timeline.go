package momentopname

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/roach88/bgproces/internal/instrument"
	"github.com/roach88/bgproces/internal/ir"
)

var (
	// ErrMissingTimestamp is returned for a snapshot without creation time.
	ErrMissingTimestamp = errors.New("momentopname has no creation time")

	// ErrMissingVersionCode is returned when a change needs an existing
	// version (withdraw, revert) and none is available.
	ErrMissingVersionCode = errors.New("instrument version has no version code")

	// ErrBranchReuse is returned when a second project uses a branch name.
	ErrBranchReuse = errors.New("branch name already used by another project")

	// ErrReservedBranchName is returned for a branch named Uitgangssituatie.
	ErrReservedBranchName = errors.New("branch name is reserved")

	// ErrDuplicateInitialVersion is returned when one step creates the
	// initial version of the same work twice.
	ErrDuplicateInitialVersion = errors.New("instrument registered twice as initial version")
)

// ChangeKind is what a step does to one instrument.
type ChangeKind int

const (
	// NewVersion creates the next version of the instrument (JSON true or object).
	NewVersion ChangeKind = iota
	// Withdrawn withdraws the instrument (JSON false).
	Withdrawn
	// Revert restores the baseline version (JSON null).
	Revert
)

func (k ChangeKind) String() string {
	switch k {
	case NewVersion:
		return "new"
	case Withdrawn:
		return "withdrawn"
	case Revert:
		return "revert"
	default:
		return fmt.Sprintf("ChangeKind(%d)", int(k))
	}
}

// Change is one instrument entry of a step.
type Change struct {
	Code        string
	Kind        ChangeKind
	Annotations ir.IRObject // New only; filtered by the annotation matrix
}

// Step produces one snapshot on a branch.
type Step struct {
	Project   string // owning project; "" for the Overig bucket
	Branch    string
	Basis     string // branch to start from when Branch has no snapshot yet
	CreatedAt time.Time
	Changes   []Change
	Ref       string // copied to the snapshot
}

// Timeline replays the steps of a scenario into snapshots.
//
// INVARIANTS:
//   - a branch name is claimed by exactly one project
//   - version codes are unique per work across all branches
type Timeline struct {
	registry  *instrument.Registry
	authority instrument.Authority

	baseline *Momentopname
	branches map[string][]*Momentopname
	owners   map[string]string
	order    []string // branch names in order of first use
	applied  []*Momentopname
	seq      map[string]int // work id -> last version number
}

// NewTimeline creates an empty timeline registering instruments in reg.
func NewTimeline(reg *instrument.Registry, authority instrument.Authority) *Timeline {
	return &Timeline{
		registry:  reg,
		authority: authority,
		branches:  make(map[string][]*Momentopname),
		owners:    make(map[string]string),
		seq:       make(map[string]int),
	}
}

// SetBaseline builds the Uitgangssituatie snapshot. It must be called before
// Apply when the scenario has a baseline.
func (t *Timeline) SetBaseline(createdAt time.Time, changes []Change) (*Momentopname, error) {
	if createdAt.IsZero() {
		return nil, fmt.Errorf("%s: %w", Uitgangssituatie, ErrMissingTimestamp)
	}
	m := New(Uitgangssituatie, 0, createdAt, nil)
	if err := t.applyChanges(m, changes); err != nil {
		return nil, fmt.Errorf("%s: %w", Uitgangssituatie, err)
	}
	t.baseline = m
	t.applied = append(t.applied, m)
	return m, nil
}

// Claim records that project uses branch. A branch already claimed by a
// different project is ErrBranchReuse.
func (t *Timeline) Claim(project, branch string) error {
	if branch == Uitgangssituatie {
		return fmt.Errorf("%q: %w", branch, ErrReservedBranchName)
	}
	owner, ok := t.owners[branch]
	if !ok {
		t.owners[branch] = project
		t.order = append(t.order, branch)
		return nil
	}
	if owner != project {
		return fmt.Errorf("%q in %s and %s: %w", branch, describeOwner(owner), describeOwner(project), ErrBranchReuse)
	}
	return nil
}

// Apply builds the next snapshot of step.Branch.
//
// The predecessor is the last snapshot on the branch; for a branch without
// snapshots it is the last snapshot of step.Basis, and otherwise the
// baseline.
func (t *Timeline) Apply(step Step) (*Momentopname, error) {
	if err := t.Claim(step.Project, step.Branch); err != nil {
		return nil, err
	}
	if step.CreatedAt.IsZero() {
		return nil, fmt.Errorf("branch %q: %w", step.Branch, ErrMissingTimestamp)
	}

	snapshots := t.branches[step.Branch]
	m := New(step.Branch, len(snapshots), step.CreatedAt, t.predecessor(step))
	m.Ref = step.Ref
	if err := t.applyChanges(m, step.Changes); err != nil {
		return nil, fmt.Errorf("branch %q: %w", step.Branch, err)
	}

	t.branches[step.Branch] = append(snapshots, m)
	t.applied = append(t.applied, m)
	return m, nil
}

func (t *Timeline) predecessor(step Step) *Momentopname {
	if prev := t.Latest(step.Branch); prev != nil {
		return prev
	}
	if step.Basis != "" && step.Basis != Uitgangssituatie {
		if prev := t.Latest(step.Basis); prev != nil {
			return prev
		}
	}
	return t.baseline
}

func (t *Timeline) applyChanges(m *Momentopname, changes []Change) error {
	created := make(map[string]bool)
	for _, c := range changes {
		switch c.Kind {
		case NewVersion:
			inst, err := t.instrumentFor(c.Code, m.CreatedAt)
			if err != nil {
				return err
			}
			if created[inst.WorkID] {
				return fmt.Errorf("%s: %w", c.Code, ErrDuplicateInitialVersion)
			}
			created[inst.WorkID] = true

			kept, _ := instrument.FilterAnnotations(inst.Type, c.Annotations)
			m.Set(instrument.NewVersion(inst, t.nextVersion(inst.WorkID), m.CreatedAt, kept))

		case Withdrawn:
			inst, ok := t.registry.LookupCode(c.Code)
			if !ok {
				return fmt.Errorf("withdraw %s: %w", c.Code, ErrMissingVersionCode)
			}
			prev, ok := m.GetInstrument(inst)
			if !ok || !prev.IsValid() {
				return fmt.Errorf("withdraw %s: %w", c.Code, ErrMissingVersionCode)
			}
			prev.Withdrawn = true

		case Revert:
			inst, ok := t.registry.LookupCode(c.Code)
			if !ok || t.baseline == nil || t.baseline == m {
				return fmt.Errorf("revert %s: %w", c.Code, ErrMissingVersionCode)
			}
			base, ok := t.baseline.GetInstrument(inst)
			if !ok || !base.IsValid() {
				return fmt.Errorf("revert %s: %w", c.Code, ErrMissingVersionCode)
			}
			m.Set(base.Clone())

		default:
			return fmt.Errorf("%s: unknown change kind %v", c.Code, c.Kind)
		}
	}
	return nil
}

// instrumentFor returns the instrument behind code, registering it on first
// use. A code known under another authority is a conflict.
func (t *Timeline) instrumentFor(code string, createdAt time.Time) (*instrument.Instrument, error) {
	if inst, ok := t.registry.LookupCode(code); ok {
		if inst.AuthorityCode != t.authority.Code() {
			return nil, fmt.Errorf("%w: %s belongs to %s", instrument.ErrWorkIDConflict, code, inst.AuthorityCode)
		}
		return inst, nil
	}
	tag, _, ok := instrument.ParseCode(code)
	if !ok {
		return nil, fmt.Errorf("%w: %q", instrument.ErrInvalidCode, code)
	}
	return t.registry.Register(tag, code, t.authority, createdAt)
}

func (t *Timeline) nextVersion(workID string) string {
	t.seq[workID]++
	return strconv.Itoa(t.seq[workID])
}

// Baseline returns the Uitgangssituatie snapshot, or nil.
func (t *Timeline) Baseline() *Momentopname {
	return t.baseline
}

// Branches returns branch names in order of first use.
func (t *Timeline) Branches() []string {
	return append([]string(nil), t.order...)
}

// Owner returns the project that claimed branch.
func (t *Timeline) Owner(branch string) (string, bool) {
	owner, ok := t.owners[branch]
	return owner, ok
}

// Snapshots returns the snapshots of branch in index order.
func (t *Timeline) Snapshots(branch string) []*Momentopname {
	return append([]*Momentopname(nil), t.branches[branch]...)
}

// Latest returns the last snapshot of branch, or nil.
func (t *Timeline) Latest(branch string) *Momentopname {
	if branch == Uitgangssituatie {
		return t.baseline
	}
	snapshots := t.branches[branch]
	if len(snapshots) == 0 {
		return nil
	}
	return snapshots[len(snapshots)-1]
}

// Find returns the snapshot of branch built by the step with ref.
func (t *Timeline) Find(branch, ref string) *Momentopname {
	for _, m := range t.branches[branch] {
		if m.Ref == ref {
			return m
		}
	}
	return nil
}

// All returns every snapshot in the order it was built.
func (t *Timeline) All() []*Momentopname {
	return append([]*Momentopname(nil), t.applied...)
}

// Registry returns the registry the timeline registers instruments in.
func (t *Timeline) Registry() *instrument.Registry {
	return t.registry
}

func describeOwner(project string) string {
	if project == "" {
		return "Overig"
	}
	return "project " + strconv.Quote(project)
}
