// File: internal/taint/range.go
package taint

import (
	"errors"
	"fmt"
)

// Construction and derivation errors. Malformed parameters are rejected
// synchronously, never clamped or coerced.
var (
	ErrInvalidLength = errors.New("taint range length must be positive")
	ErrNegativeStart = errors.New("taint range start must be non-negative")
	ErrShiftBounds   = errors.New("shifted taint range start would be negative")
)

// Fingerprint is an opaque comparable key derived from a range's
// (start, length, source) triple. Equal triples always produce equal
// fingerprints, which gives O(1) equality and set deduplication.
type Fingerprint uint64

// TaintRange marks a contiguous span [Start, Start+Length) of a tracked
// value as originating from one Source. Offsets and lengths are in bytes.
//
// Ranges are immutable snapshots: they are never validated against the
// value after registration, and every "modifying" operation returns a new
// range.
type TaintRange struct {
	start  int
	length int
	source Source
}

// NewRange constructs a range covering [start, start+length). It fails on
// non-positive length or negative start.
func NewRange(start, length int, source Source) (TaintRange, error) {
	if length <= 0 {
		return TaintRange{}, fmt.Errorf("%w: got %d", ErrInvalidLength, length)
	}
	if start < 0 {
		return TaintRange{}, fmt.Errorf("%w: got %d", ErrNegativeStart, start)
	}
	return TaintRange{start: start, length: length, source: source}, nil
}

// Start returns the byte offset of the first tainted byte.
func (r TaintRange) Start() int { return r.start }

// Length returns the span length in bytes. Always positive.
func (r TaintRange) Length() int { return r.length }

// End returns the exclusive upper bound of the span.
func (r TaintRange) End() int { return r.start + r.length }

// Source returns the origin descriptor this span is attributed to.
func (r TaintRange) Source() Source { return r.source }

// Shift returns a copy of r moved by delta bytes. It fails if the shifted
// start would be negative; r itself is never modified.
func (r TaintRange) Shift(delta int) (TaintRange, error) {
	if r.start+delta < 0 {
		return TaintRange{}, fmt.Errorf("%w: start %d, delta %d", ErrShiftBounds, r.start, delta)
	}
	return TaintRange{start: r.start + delta, length: r.length, source: r.source}, nil
}

// Clip intersects r with the window [lo, hi). The second return value is
// false when the intersection is empty.
func (r TaintRange) Clip(lo, hi int) (TaintRange, bool) {
	start := max(r.start, lo)
	end := min(r.End(), hi)
	if start >= end {
		return TaintRange{}, false
	}
	return TaintRange{start: start, length: end - start, source: r.source}, true
}

// Fingerprint returns the range's deduplication key. Stable across
// processes for equal content.
func (r TaintRange) Fingerprint() Fingerprint {
	h := r.source.key()
	h = (h ^ uint64(r.start)) * fnvPrime
	h = (h ^ uint64(r.length)) * fnvPrime
	return Fingerprint(h)
}
