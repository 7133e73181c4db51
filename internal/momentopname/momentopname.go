package momentopname

import (
	"slices"
	"time"

	"github.com/roach88/bgproces/internal/instrument"
)

// Uitgangssituatie is the target of the baseline snapshot. It is reserved
// and may not be used as a branch name.
const Uitgangssituatie = "Uitgangssituatie"

// Momentopname is one versioned state of a branch at a point in time.
type Momentopname struct {
	Target    string // Uitgangssituatie or a branch name
	Index     int    // position within the branch, from 0
	CreatedAt time.Time
	Ref       string // caller's reference to the step that built it

	versions map[instrument.TypeTag]map[string]*instrument.Instrumentversie
}

// New creates a snapshot of target. Every version held by predecessor is
// cloned into the new snapshot. predecessor may be nil.
func New(target string, index int, createdAt time.Time, predecessor *Momentopname) *Momentopname {
	m := &Momentopname{
		Target:    target,
		Index:     index,
		CreatedAt: createdAt,
		versions:  make(map[instrument.TypeTag]map[string]*instrument.Instrumentversie),
	}
	if predecessor != nil {
		for _, v := range predecessor.Versions() {
			m.Set(v.Clone())
		}
	}
	return m
}

// Set stores v under its instrument's type and work id, replacing any
// version of the same work.
func (m *Momentopname) Set(v *instrument.Instrumentversie) {
	tag := v.Instrument.Type
	byWork, ok := m.versions[tag]
	if !ok {
		byWork = make(map[string]*instrument.Instrumentversie)
		m.versions[tag] = byWork
	}
	byWork[v.Instrument.WorkID] = v
}

// Get returns the version of the work, if the snapshot holds one.
func (m *Momentopname) Get(tag instrument.TypeTag, workID string) (*instrument.Instrumentversie, bool) {
	v, ok := m.versions[tag][workID]
	return v, ok
}

// GetInstrument is Get keyed by the instrument itself.
func (m *Momentopname) GetInstrument(inst *instrument.Instrument) (*instrument.Instrumentversie, bool) {
	return m.Get(inst.Type, inst.WorkID)
}

// Remove drops the version of the work. Returns false if there was none.
func (m *Momentopname) Remove(tag instrument.TypeTag, workID string) bool {
	byWork, ok := m.versions[tag]
	if !ok {
		return false
	}
	if _, ok := byWork[workID]; !ok {
		return false
	}
	delete(byWork, workID)
	if len(byWork) == 0 {
		delete(m.versions, tag)
	}
	return true
}

// Versions returns the held versions ordered by type, then instrument code.
func (m *Momentopname) Versions() []*instrument.Instrumentversie {
	var out []*instrument.Instrumentversie
	for _, tag := range instrument.AllTypes {
		byWork := m.versions[tag]
		start := len(out)
		for _, v := range byWork {
			out = append(out, v)
		}
		slices.SortFunc(out[start:], func(a, b *instrument.Instrumentversie) int {
			_, an, _ := instrument.ParseCode(a.Instrument.Code)
			_, bn, _ := instrument.ParseCode(b.Instrument.Code)
			return an - bn
		})
	}
	return out
}

// Len returns the number of held versions.
func (m *Momentopname) Len() int {
	n := 0
	for _, byWork := range m.versions {
		n += len(byWork)
	}
	return n
}

// IsValid reports whether the snapshot has a creation time and owns at
// least one instrument version.
func (m *Momentopname) IsValid() bool {
	return m != nil && !m.CreatedAt.IsZero() && m.Len() > 0
}
