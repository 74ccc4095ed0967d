package serialization

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrChecksumMismatch   = errors.New("checksum mismatch: file may be corrupted")
	ErrInvalidMagic       = errors.New("invalid magic bytes")
	ErrUnsupportedVersion = errors.New("unsupported format version")
	ErrHeaderTooLarge     = errors.New("header exceeds maximum size")
	ErrMissingSection     = errors.New("section not found")
	ErrNoConfig           = errors.New("snapshot has no embedded configuration")
)

// ValidationError provides detailed information about validation failures.
type ValidationError struct {
	Type     string // e.g. "offset_overlap", "out_of_bounds"
	Section  string // primary section involved
	Section2 string // secondary section (overlaps)
	Details  string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Section2 != "" {
		return fmt.Sprintf("%s: sections %q and %q: %s", e.Type, e.Section, e.Section2, e.Details)
	}
	if e.Section != "" {
		return fmt.Sprintf("%s: section %q: %s", e.Type, e.Section, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Details)
}
