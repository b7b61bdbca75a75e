package profusion

import "github.com/pkg/errors"

// Sentinel errors returned (wrapped, with context) by constructors and
// by Save/Load. Match with errors.Is.
var (
	// ErrInvalidParameters signals a construction-time constraint
	// violation: capacity, error ratio, bin size or scalable
	// configuration out of range.
	ErrInvalidParameters = errors.New("profusion: invalid parameters")

	// ErrFormat signals a filter file that cannot be decoded: corrupt
	// gzip, invalid JSON, wrong type tag, missing fields or a payload
	// of unexpected length. A failed Load leaves the receiver unchanged.
	ErrFormat = errors.New("profusion: malformed filter file")

	// ErrOutOfRange signals an inner-filter index outside [0, Blooms()).
	ErrOutOfRange = errors.New("profusion: bloom index out of range")
)
