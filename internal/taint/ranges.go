// File: internal/taint/ranges.go
package taint

import "sort"

// The range combination algebra. Every function is pure: inputs are never
// mutated, results are freshly allocated. Callers hand in well-formed
// ranges (construction already rejected malformed ones), so nothing here
// can fail except an out-of-domain shift.

// ShiftRanges returns a copy of rs with every range moved by delta.
func ShiftRanges(rs []TaintRange, delta int) ([]TaintRange, error) {
	if len(rs) == 0 {
		return nil, nil
	}
	out := make([]TaintRange, 0, len(rs))
	for _, r := range rs {
		shifted, err := r.Shift(delta)
		if err != nil {
			return nil, err
		}
		out = append(out, shifted)
	}
	return out, nil
}

// ConcatRanges computes the range set of a value assembled as left ++ right,
// where leftLen is the byte length of the left operand. Left ranges are
// copied unshifted; right ranges are shifted by leftLen. The relative order
// of left's ranges, then right's, is preserved: taint order reflects
// assembly order, and the shifted right ranges cannot precede the left ones
// by construction.
func ConcatRanges(left []TaintRange, leftLen int, right []TaintRange) []TaintRange {
	if len(left) == 0 && len(right) == 0 {
		return nil
	}
	out := make([]TaintRange, 0, len(left)+len(right))
	out = append(out, left...)
	for _, r := range right {
		// leftLen is non-negative, so the shift cannot go out of domain.
		shifted, _ := r.Shift(leftLen)
		out = append(out, shifted)
	}
	return out
}

// SliceRanges computes the range set of value[lo:hi]: each range is clipped
// to the window and rebased to the slice start. Ranges clipped to nothing
// are dropped.
func SliceRanges(rs []TaintRange, lo, hi int) []TaintRange {
	var out []TaintRange
	for _, r := range rs {
		clipped, ok := r.Clip(lo, hi)
		if !ok {
			continue
		}
		rebased, _ := clipped.Shift(-lo)
		out = append(out, rebased)
	}
	return out
}

// Fragment is one piece of a value assembled from multiple parts, as in
// formatting or join operations. A literal (untainted) fragment carries no
// ranges and contributes only Length to the running offset.
type Fragment struct {
	Ranges []TaintRange
	Length int
}

// Literal returns an untainted fragment of n bytes.
func Literal(n int) Fragment { return Fragment{Length: n} }

// JoinRanges computes the range set of a value built by concatenating the
// given fragments in order. Equivalent to repeated ConcatRanges.
func JoinRanges(fragments []Fragment) []TaintRange {
	var out []TaintRange
	offset := 0
	for _, f := range fragments {
		for _, r := range f.Ranges {
			shifted, _ := r.Shift(offset)
			out = append(out, shifted)
		}
		offset += f.Length
	}
	return out
}

// NormalizeRanges orders rs by start and merges adjacent or overlapping
// ranges that share the same Source into a single covering range. Ranges
// from different Sources are never merged, even when they overlap: both are
// retained as multi-provenance evidence. Exact duplicates collapse.
//
// The sort is stable, so ranges with equal starts keep their insertion
// order and the truncation tie-break in CapRanges stays deterministic.
func NormalizeRanges(rs []TaintRange) []TaintRange {
	if len(rs) == 0 {
		return nil
	}
	sorted := make([]TaintRange, len(rs))
	copy(sorted, rs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].start < sorted[j].start
	})

	out := make([]TaintRange, 0, len(sorted))
	// Last emitted range per source, so same-source spans merge even when a
	// differently-sourced range sits between them in start order.
	last := make(map[uint64]int, 4)
	for _, r := range sorted {
		k := r.source.key()
		if idx, ok := last[k]; ok && r.start <= out[idx].End() {
			if r.End() > out[idx].End() {
				out[idx].length = r.End() - out[idx].start
			}
			continue
		}
		out = append(out, r)
		last[k] = len(out) - 1
	}
	return out
}

// CapRanges bounds a range set to at most maxRanges entries. Ranges nearer
// the end of the value are dropped first, preserving earliest-origin
// evidence; ties on start are broken by insertion order. The input must
// already be in ascending start order (NormalizeRanges output), so the
// policy reduces to keeping the first maxRanges entries. The second return
// value is the number of ranges dropped.
func CapRanges(rs []TaintRange, maxRanges int) ([]TaintRange, int) {
	if maxRanges <= 0 || len(rs) <= maxRanges {
		return rs, 0
	}
	dropped := len(rs) - maxRanges
	return rs[:maxRanges:maxRanges], dropped
}

// FindByFingerprint returns the first range in rs with the given
// fingerprint.
func FindByFingerprint(rs []TaintRange, fp Fingerprint) (TaintRange, bool) {
	for _, r := range rs {
		if r.Fingerprint() == fp {
			return r, true
		}
	}
	return TaintRange{}, false
}
