package instrument

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TypeTag identifies the kind of legal instrument.
type TypeTag string

const (
	Besluit  TypeTag = "Besluit"
	Regeling TypeTag = "Regeling"
	GIO      TypeTag = "GIO"
	PDF      TypeTag = "PDF"
)

// AllTypes lists the type tags in presentation order.
var AllTypes = []TypeTag{Besluit, Regeling, GIO, PDF}

var typePrefixes = map[TypeTag]string{
	Besluit:  "b",
	Regeling: "reg",
	GIO:      "gio",
	PDF:      "pdf",
}

// Prefix returns the code prefix of the type (b, reg, gio, pdf).
func (t TypeTag) Prefix() string {
	return typePrefixes[t]
}

// IsValid reports whether t is one of the four known type tags.
func (t TypeTag) IsValid() bool {
	_, ok := typePrefixes[t]
	return ok
}

// IsAKN reports whether works of this type are identified in the AKN
// namespace. GIO and PDF live in the JOIN namespace.
func (t TypeTag) IsAKN() bool {
	return t == Besluit || t == Regeling
}

// ParseTypeTag accepts a type tag or its code prefix, case-insensitively.
func ParseTypeTag(s string) (TypeTag, error) {
	for _, tag := range AllTypes {
		if strings.EqualFold(s, string(tag)) || strings.EqualFold(s, tag.Prefix()) {
			return tag, nil
		}
	}
	return "", fmt.Errorf("unknown instrument type %q", s)
}

// FormatCode renders the short code for the n-th instrument of a type:
// zero-padded to two digits, three from 100 upward.
func FormatCode(tag TypeTag, n int) string {
	return fmt.Sprintf("%s_%02d", tag.Prefix(), n)
}

// ParseCode splits an instrument code such as "reg_01" into its type tag and
// number. ok is false for anything that is not an instrument code.
func ParseCode(code string) (tag TypeTag, n int, ok bool) {
	prefix, digits, found := strings.Cut(code, "_")
	if !found || len(digits) < 2 || len(digits) > 3 {
		return "", 0, false
	}
	for _, t := range AllTypes {
		if t.Prefix() != prefix {
			continue
		}
		n, err := strconv.Atoi(digits)
		if err != nil || n <= 0 {
			return "", 0, false
		}
		// Canonical form only: reg_1 and reg_001 are not codes
		if FormatCode(t, n) != code {
			return "", 0, false
		}
		return t, n, true
	}
	return "", 0, false
}

// IsCode reports whether key names an instrument.
func IsCode(key string) bool {
	_, _, ok := ParseCode(key)
	return ok
}

// AuthorityKind is the kind of bevoegd gezag.
type AuthorityKind string

const (
	Gemeente AuthorityKind = "Gemeente"
	Rijk     AuthorityKind = "Rijk"
)

// ParseAuthorityKind accepts exactly the two known kinds.
func ParseAuthorityKind(s string) (AuthorityKind, bool) {
	switch AuthorityKind(s) {
	case Gemeente, Rijk:
		return AuthorityKind(s), true
	default:
		return "", false
	}
}

// Authority scopes instrument identifiers to one bevoegd gezag.
type Authority struct {
	Kind   AuthorityKind
	BGCode string
}

// Code returns the authority code used in work identifiers:
// gm<BGCode> for a municipality, mnre<BGCode> for the state.
func (a Authority) Code() string {
	switch a.Kind {
	case Gemeente:
		return "gm" + a.BGCode
	case Rijk:
		return "mnre" + a.BGCode
	default:
		return a.BGCode
	}
}

// WorkID derives the work identifier of an instrument.
//
//	Besluit:  /akn/nl/bill/gm0344/2024/b_01
//	Regeling: /akn/nl/act/gm0344/2024/reg_01
//	GIO, PDF: /join/id/regdata/gm0344/2024/gio_01
func WorkID(tag TypeTag, authorityCode string, year int, code string) string {
	switch tag {
	case Besluit:
		return fmt.Sprintf("/akn/nl/bill/%s/%d/%s", authorityCode, year, code)
	case Regeling:
		return fmt.Sprintf("/akn/nl/act/%s/%d/%s", authorityCode, year, code)
	default:
		return fmt.Sprintf("/join/id/regdata/%s/%d/%s", authorityCode, year, code)
	}
}

// Instrument is the immutable identity of a legal instrument.
type Instrument struct {
	Type          TypeTag
	Code          string
	WorkID        string
	AuthorityCode string
	Year          int
}

// NewInstrument derives the identity of an instrument created at createdAt.
func NewInstrument(tag TypeTag, code string, authority Authority, createdAt time.Time) *Instrument {
	year := createdAt.Year()
	return &Instrument{
		Type:          tag,
		Code:          code,
		WorkID:        WorkID(tag, authority.Code(), year, code),
		AuthorityCode: authority.Code(),
		Year:          year,
	}
}

func (i *Instrument) String() string {
	return i.WorkID
}
