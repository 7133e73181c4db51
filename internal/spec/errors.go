package spec

import (
	"errors"
	"fmt"

	"github.com/roach88/bgproces/internal/instrument"
	"github.com/roach88/bgproces/internal/momentopname"
)

// Load error codes.
const (
	ErrCodeMalformedJSON           = "E100"
	ErrCodeUnknownAuthority        = "E101"
	ErrCodeMissingBGCode           = "E102"
	ErrCodeMissingTimestamp        = "E103"
	ErrCodeMissingVersionCode      = "E104"
	ErrCodeBranchReuse             = "E105"
	ErrCodeDuplicateInitialVersion = "E106"
	ErrCodeReservedBranchName      = "E107"
	ErrCodeInstrumentConflict      = "E108"
	ErrCodeInvalidDate             = "E109"
)

var (
	ErrMalformedJSON    = errors.New("malformed specification")
	ErrUnknownAuthority = errors.New("BevoegdGezag must be Gemeente or Rijk")
	ErrMissingBGCode    = errors.New("BGCode is required")
	ErrInvalidDate      = errors.New("date must be formatted YYYY-MM-DD")

	ErrMissingTimestamp        = momentopname.ErrMissingTimestamp
	ErrMissingVersionCode      = momentopname.ErrMissingVersionCode
	ErrBranchReuse             = momentopname.ErrBranchReuse
	ErrDuplicateInitialVersion = momentopname.ErrDuplicateInitialVersion
	ErrReservedBranchName      = momentopname.ErrReservedBranchName
	ErrInstrumentConflict      = instrument.ErrWorkIDConflict
)

// codes maps sentinels to load error codes, most specific first.
var codes = []struct {
	err  error
	code string
}{
	{ErrUnknownAuthority, ErrCodeUnknownAuthority},
	{ErrMissingBGCode, ErrCodeMissingBGCode},
	{ErrInvalidDate, ErrCodeInvalidDate},
	{ErrMissingTimestamp, ErrCodeMissingTimestamp},
	{ErrMissingVersionCode, ErrCodeMissingVersionCode},
	{ErrBranchReuse, ErrCodeBranchReuse},
	{ErrDuplicateInitialVersion, ErrCodeDuplicateInitialVersion},
	{ErrReservedBranchName, ErrCodeReservedBranchName},
	{ErrInstrumentConflict, ErrCodeInstrumentConflict},
	{instrument.ErrInvalidCode, ErrCodeMalformedJSON},
	{ErrMalformedJSON, ErrCodeMalformedJSON},
}

// LoadError is returned by Load. Err wraps one of the sentinels above, so
// callers test the kind with errors.Is.
type LoadError struct {
	Code    string
	Path    string // JSON-pointer-like location, "" for the document
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %s", e.Code, e.Path, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// IsLoadError returns true if the error is a LoadError.
// Uses errors.As to handle wrapped errors.
func IsLoadError(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}

// newLoadError classifies err by the sentinel it wraps.
func newLoadError(path string, err error) *LoadError {
	code := ErrCodeMalformedJSON
	for _, c := range codes {
		if errors.Is(err, c.err) {
			code = c.code
			break
		}
	}
	return &LoadError{Code: code, Path: path, Message: err.Error(), Err: err}
}

func malformed(path, format string, args ...any) *LoadError {
	return newLoadError(path, fmt.Errorf("%w: %s", ErrMalformedJSON, fmt.Sprintf(format, args...)))
}
