// File: internal/taint/source.go
package taint

// Source describes where a tainted value entered the system: the input's
// name (e.g. a parameter name), its Origin category, and the original
// untrusted value, retained for evidence reporting.
//
// A Source is immutable once created. Equality is by content, so two
// independently constructed Sources describing the same input compare equal
// and deduplicate naturally in maps and evidence tables.
type Source struct {
	name   string
	origin Origin
	value  string
}

// NewSource constructs a Source. Construction is pure and always succeeds.
func NewSource(name string, origin Origin, value string) Source {
	return Source{name: name, origin: origin, value: value}
}

// Name returns the input's name, typically the parameter, header, or cookie
// name the value arrived under.
func (s Source) Name() string { return s.name }

// Origin returns the input's category.
func (s Source) Origin() Origin { return s.origin }

// Value returns the original untrusted value.
func (s Source) Value() string { return s.value }

// key folds the source's identity into a 64-bit value used by range
// fingerprints. FNV-1a over the three content fields, with a separator to
// keep ("ab","c") and ("a","bc") distinct.
func (s Source) key() uint64 {
	h := fnvOffset
	h = fnvFold(h, s.name)
	h = fnvByte(h, 0x1f)
	h = fnvFold(h, string(s.origin))
	h = fnvByte(h, 0x1f)
	h = fnvFold(h, s.value)
	return h
}

const (
	fnvOffset uint64 = 14695981039346656037
	fnvPrime  uint64 = 1099511628211
)

func fnvFold(h uint64, s string) uint64 {
	for i := 0; i < len(s); i++ {
		h = (h ^ uint64(s[i])) * fnvPrime
	}
	return h
}

func fnvByte(h uint64, b byte) uint64 {
	return (h ^ uint64(b)) * fnvPrime
}
