package instrument

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// MaxCodeNumber is the largest number FreeCode hands out (three digits).
const MaxCodeNumber = 999

var (
	// ErrWorkIDConflict is returned when a short code is registered again
	// under a different work id (another authority or creation year).
	ErrWorkIDConflict = errors.New("instrument code already registered with a different work id")

	// ErrInvalidCode is returned for codes that do not match the type's prefix.
	ErrInvalidCode = errors.New("invalid instrument code")
)

// Registry is the single source of truth for instrument identity within a
// session. It is keyed by work id and also indexes short codes.
//
// INVARIANTS:
//   - no two registered instruments share a work id
//   - no two registered instruments share a short code
//   - codes are kept sorted at insertion time, so a slice returned by
//     AllKnownCodes never changes under a caller iterating it
//
// A Registry is not safe for concurrent use; sessions are single-threaded.
type Registry struct {
	byWork  map[string]*Instrument
	byCode  map[string]*Instrument
	pending map[string]bool
	codes   []string // all registered codes, sorted by (type, number)
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byWork:  make(map[string]*Instrument),
		byCode:  make(map[string]*Instrument),
		pending: make(map[string]bool),
	}
}

// Register creates and stores the instrument identified by (tag, code,
// authority, creation year).
//
// Registering a work id that is already known is idempotent: the existing
// instrument is returned and nothing changes. Registering a known code under
// a different work id returns ErrWorkIDConflict.
func (r *Registry) Register(tag TypeTag, code string, authority Authority, createdAt time.Time) (*Instrument, error) {
	codeTag, _, ok := ParseCode(code)
	if !ok || codeTag != tag {
		return nil, fmt.Errorf("%w: %q is not a %s code", ErrInvalidCode, code, tag)
	}

	inst := NewInstrument(tag, code, authority, createdAt)
	if existing, ok := r.byWork[inst.WorkID]; ok {
		return existing, nil
	}
	if existing, ok := r.byCode[code]; ok {
		return nil, fmt.Errorf("%w: %s is %s, not %s", ErrWorkIDConflict, code, existing.WorkID, inst.WorkID)
	}

	r.insert(inst)
	return inst, nil
}

// Lookup returns the instrument with the given work id.
func (r *Registry) Lookup(workID string) (*Instrument, bool) {
	inst, ok := r.byWork[workID]
	return inst, ok
}

// LookupCode returns the instrument registered under a short code.
func (r *Registry) LookupCode(code string) (*Instrument, bool) {
	inst, ok := r.byCode[code]
	return inst, ok
}

// Reserve marks a code as pending: it is not registered yet (no creation
// year is known) but FreeCode must not hand it out again.
// Returns false if the code is already registered or pending.
func (r *Registry) Reserve(code string) bool {
	if _, ok := r.byCode[code]; ok || r.pending[code] {
		return false
	}
	r.pending[code] = true
	return true
}

// Release drops a pending reservation. Registered codes are unaffected.
func (r *Registry) Release(code string) {
	delete(r.pending, code)
}

// IsPending reports whether code is reserved but not registered.
func (r *Registry) IsPending(code string) bool {
	return r.pending[code]
}

// FreeCode returns the code with the smallest number, scanning from 1
// upward, that is neither registered nor pending for the type. The result
// depends only on the set of used codes, never on insertion order.
// Returns "" when all MaxCodeNumber codes are taken.
func (r *Registry) FreeCode(tag TypeTag) string {
	for n := 1; n <= MaxCodeNumber; n++ {
		code := FormatCode(tag, n)
		if _, used := r.byCode[code]; used || r.pending[code] {
			continue
		}
		return code
	}
	return ""
}

// AllKnownCodes returns registered codes in sorted order, optionally
// restricted to the given types. The returned slice is a copy.
func (r *Registry) AllKnownCodes(tags ...TypeTag) []string {
	if len(tags) == 0 {
		return slices.Clone(r.codes)
	}
	out := make([]string, 0, len(r.codes))
	for _, code := range r.codes {
		if slices.Contains(tags, r.byCode[code].Type) {
			out = append(out, code)
		}
	}
	return out
}

// Instruments returns registered instruments ordered like AllKnownCodes.
func (r *Registry) Instruments() []*Instrument {
	out := make([]*Instrument, len(r.codes))
	for i, code := range r.codes {
		out[i] = r.byCode[code]
	}
	return out
}

// Len returns the number of registered instruments.
func (r *Registry) Len() int {
	return len(r.byWork)
}

// compareCodes orders codes by type (AllTypes order) then number, so
// reg_100 sorts after reg_99.
func compareCodes(a, b string) int {
	at, an, _ := ParseCode(a)
	bt, bn, _ := ParseCode(b)
	if at != bt {
		return slices.Index(AllTypes, at) - slices.Index(AllTypes, bt)
	}
	return an - bn
}

// Clone returns an independent registry holding the same instruments and
// reservations. Instruments themselves are immutable and shared.
func (r *Registry) Clone() *Registry {
	out := NewRegistry()
	for k, v := range r.byWork {
		out.byWork[k] = v
	}
	for k, v := range r.byCode {
		out.byCode[k] = v
	}
	for k, v := range r.pending {
		out.pending[k] = v
	}
	out.codes = slices.Clone(r.codes)
	return out
}

// Reset replaces every instrument and reservation of r with those of
// other. r keeps its identity, so callers holding it see the new contents.
func (r *Registry) Reset(other *Registry) {
	*r = *other.Clone()
}

// Merge registers every instrument of other that r does not know yet.
// It checks all of them first, so on ErrWorkIDConflict r is unchanged.
func (r *Registry) Merge(other *Registry) error {
	var add []*Instrument
	for _, inst := range other.Instruments() {
		if _, ok := r.byWork[inst.WorkID]; ok {
			continue
		}
		if existing, ok := r.byCode[inst.Code]; ok {
			return fmt.Errorf("%w: %s is %s, not %s", ErrWorkIDConflict, inst.Code, existing.WorkID, inst.WorkID)
		}
		add = append(add, inst)
	}
	for _, inst := range add {
		r.insert(inst)
	}
	return nil
}

func (r *Registry) insert(inst *Instrument) {
	r.byWork[inst.WorkID] = inst
	r.byCode[inst.Code] = inst
	delete(r.pending, inst.Code)

	i, _ := slices.BinarySearchFunc(r.codes, inst.Code, compareCodes)
	r.codes = slices.Insert(r.codes, i, inst.Code)
}
