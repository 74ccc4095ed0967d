package serialization

import (
	"fmt"
	"sort"
	"strings"
)

// Validation limits for security and resource protection.
const (
	MaxHeaderSize     = 100 * 1024 * 1024
	MaxSectionCount   = 64
	MaxSectionNameLen = 256
)

// ValidationLevel controls the strictness of validation.
type ValidationLevel int

const (
	// ValidationStrict checks names, lengths and section bounds (default).
	ValidationStrict ValidationLevel = iota
	// ValidationNormal checks names and lengths only.
	ValidationNormal
	// ValidationNone skips validation. Use only with trusted input.
	ValidationNone
)

// ValidateSectionOffsets checks that sections neither overlap nor extend
// past the data section.
func ValidateSectionOffsets(sections []Section, dataSize int64) error {
	sorted := make([]Section, len(sections))
	copy(sorted, sections)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Offset < sorted[j].Offset
	})

	for i, s := range sorted {
		if s.Offset < 0 || s.Size < 0 {
			return &ValidationError{
				Type:    "negative_offset",
				Section: s.Name,
				Details: fmt.Sprintf("offset=%d, size=%d", s.Offset, s.Size),
			}
		}
		if s.Offset+s.Size > dataSize {
			return &ValidationError{
				Type:    "out_of_bounds",
				Section: s.Name,
				Details: fmt.Sprintf("offset %d + size %d > data_size %d", s.Offset, s.Size, dataSize),
			}
		}
		if i < len(sorted)-1 {
			next := sorted[i+1]
			if s.Offset+s.Size > next.Offset {
				return &ValidationError{
					Type:     "offset_overlap",
					Section:  s.Name,
					Section2: next.Name,
					Details: fmt.Sprintf("regions [%d-%d] and [%d-%d] overlap",
						s.Offset, s.Offset+s.Size, next.Offset, next.Offset+next.Size),
				}
			}
		}
	}
	return nil
}

// ValidateSectionName rejects empty, oversized and control-character names.
func ValidateSectionName(name string) error {
	if name == "" {
		return &ValidationError{Type: "invalid_name", Details: "empty section name"}
	}
	if len(name) > MaxSectionNameLen {
		return &ValidationError{
			Type:    "name_too_long",
			Section: name,
			Details: fmt.Sprintf("length %d > max %d", len(name), MaxSectionNameLen),
		}
	}
	if strings.ContainsAny(name, "\x00/\\") {
		return &ValidationError{
			Type:    "invalid_name",
			Section: name,
			Details: "contains a null byte or path separator",
		}
	}
	return nil
}

// ValidateHeader checks a decoded header against the data section size.
func ValidateHeader(h *Header, dataSize int64, level ValidationLevel) error {
	if level == ValidationNone {
		return nil
	}
	if len(h.Sections) > MaxSectionCount {
		return &ValidationError{
			Type:    "too_many_sections",
			Details: fmt.Sprintf("got %d, max %d", len(h.Sections), MaxSectionCount),
		}
	}
	seen := make(map[string]bool, len(h.Sections))
	for _, s := range h.Sections {
		if err := ValidateSectionName(s.Name); err != nil {
			return err
		}
		if seen[s.Name] {
			return &ValidationError{Type: "duplicate_section", Section: s.Name, Details: "declared twice"}
		}
		seen[s.Name] = true
		if s.DType != DTypeFloat64 {
			return &ValidationError{Type: "invalid_dtype", Section: s.Name, Details: s.DType}
		}
		if s.Size != int64(s.Length)*Float64Size {
			return &ValidationError{
				Type:    "size_mismatch",
				Section: s.Name,
				Details: fmt.Sprintf("%d values need %d bytes, header says %d", s.Length, int64(s.Length)*Float64Size, s.Size),
			}
		}
	}
	if level == ValidationStrict {
		return ValidateSectionOffsets(h.Sections, dataSize)
	}
	return nil
}
