package keygroup

import (
	"errors"
	"fmt"
)

// MaxKeyGroups is the exclusive upper bound for key-group indices.
// The value 0xFFFF itself is reserved as the end-of-key-group mark in
// the snapshot wire format and must never be a real index.
const MaxKeyGroups = 0xFFFF

// Errors for range construction.
var (
	ErrInvalidRange = errors.New("keygroup: invalid range")
)

// Range is a contiguous, inclusive range [Start, End] of key-group
// indices owned by one backend instance.
type Range struct {
	Start int
	End   int
}

// NewRange creates a validated key-group range.
// It requires 0 <= start <= end < MaxKeyGroups.
func NewRange(start, end int) (Range, error) {
	if start < 0 || end < start || end >= MaxKeyGroups {
		return Range{}, fmt.Errorf("%w: [%d, %d]", ErrInvalidRange, start, end)
	}
	return Range{Start: start, End: end}, nil
}

// Contains reports whether the given key-group index falls in the range.
func (r Range) Contains(keyGroup int) bool {
	return keyGroup >= r.Start && keyGroup <= r.End
}

// Count returns the number of key groups in the range.
func (r Range) Count() int {
	return r.End - r.Start + 1
}

// Intersect returns the overlap of two ranges and whether it is non-empty.
func (r Range) Intersect(other Range) (Range, bool) {
	start := r.Start
	if other.Start > start {
		start = other.Start
	}
	end := r.End
	if other.End < end {
		end = other.End
	}
	if start > end {
		return Range{}, false
	}
	return Range{Start: start, End: end}, true
}

// String implements fmt.Stringer.
func (r Range) String() string {
	return fmt.Sprintf("KeyGroupRange[%d, %d]", r.Start, r.End)
}
