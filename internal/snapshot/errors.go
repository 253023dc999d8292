package snapshot

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrChecksumMismatch   = errors.New("snapshot: checksum mismatch: file may be corrupted")
	ErrInvalidMagic       = errors.New("snapshot: invalid magic bytes")
	ErrUnsupportedVersion = errors.New("snapshot: unsupported format version")
	ErrHeaderTooLarge     = errors.New("snapshot: header exceeds maximum size")
	ErrMissingVector      = errors.New("snapshot: vector not found")
	ErrDimensionMismatch  = errors.New("snapshot: vector length does not match")
)

// ValidationError provides detailed information about a malformed vector table.
type ValidationError struct {
	Type    string // e.g. "offset_overlap", "out_of_bounds"
	Vector  string // primary vector involved
	Vector2 string // secondary vector, for overlaps
	Details string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Vector2 != "" {
		return fmt.Sprintf("%s: vectors %q and %q: %s", e.Type, e.Vector, e.Vector2, e.Details)
	}
	if e.Vector != "" {
		return fmt.Sprintf("%s: vector %q: %s", e.Type, e.Vector, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Details)
}
