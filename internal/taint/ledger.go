// File: internal/taint/ledger.go
package taint

import "sync"

// NativeID is the host value's transient identity as reported by the
// instrumentation layer (an address, interned-object id, or similar).
// Native identities are recycled once a value is collected, so the ledger
// never trusts one alone; see Probe.
type NativeID uint64

// Probe is a lightweight consistency check captured at registration time:
// the value's byte length plus its first and last byte. A lookup whose
// presented probe disagrees with the recorded one indicates the native
// identity was collected and reassigned to an unrelated value.
type Probe struct {
	Size int
	Head byte
	Tail byte
}

// ProbeString captures a probe for a string value.
func ProbeString(s string) Probe {
	if len(s) == 0 {
		return Probe{}
	}
	return Probe{Size: len(s), Head: s[0], Tail: s[len(s)-1]}
}

// ProbeBytes captures a probe for a byte-slice value.
func ProbeBytes(b []byte) Probe {
	if len(b) == 0 {
		return Probe{}
	}
	return Probe{Size: len(b), Head: b[0], Tail: b[len(b)-1]}
}

// record is an immutable snapshot of one tracked value. Records are
// replaced as a whole on every registration, never mutated in place, so a
// concurrent reader always observes a consistent range set.
type record struct {
	trackingID uint64
	generation uint64
	probe      Probe
	ranges     []TaintRange
}

// Ledger maps native identities to tracking records. All mutation goes
// through a single mutex; lookups take the read side and never block each
// other. The ledger does not mint tracking ids; the Tracker passes them in.
type Ledger struct {
	mu         sync.RWMutex
	records    map[NativeID]*record
	maxTracked int
}

// NewLedger creates an empty ledger bounded to maxTracked live records.
func NewLedger(maxTracked int) *Ledger {
	return &Ledger{
		records:    make(map[NativeID]*record),
		maxTracked: maxTracked,
	}
}

// Register creates or replaces the record for id. Replacing a record whose
// probe differs from the previous one bumps the generation counter: the
// native identity has been recycled for a different logical value and the
// old ranges must not survive. The boolean result is false when the ledger
// is at capacity and id is not already tracked; the registration is dropped
// rather than evicting live records.
func (l *Ledger) Register(id NativeID, trackingID uint64, probe Probe, ranges []TaintRange) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev, exists := l.records[id]
	if !exists && len(l.records) >= l.maxTracked {
		return false
	}

	var generation uint64
	if exists {
		generation = prev.generation
		if prev.probe != probe {
			generation++
		}
	}
	l.records[id] = &record{
		trackingID: trackingID,
		generation: generation,
		probe:      probe,
		ranges:     ranges,
	}
	return true
}

// Lookup returns the range set recorded for id, if the presented probe
// still matches. On a mismatch the entry is stale (collected-and-reused
// identity): it is evicted and the caller sees absent, exactly as if the
// value had never been tainted. The returned slice is the record's own
// immutable snapshot and must not be modified.
func (l *Ledger) Lookup(id NativeID, probe Probe) ([]TaintRange, bool) {
	l.mu.RLock()
	rec, ok := l.records[id]
	l.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if rec.probe == probe {
		return rec.ranges, true
	}
	l.evictStale(id, rec)
	return nil, false
}

// TrackingID returns the tracking id recorded for id without a probe check.
func (l *Ledger) TrackingID(id NativeID) (uint64, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.records[id]
	if !ok {
		return 0, false
	}
	return rec.trackingID, true
}

// Generation returns the reuse counter for id.
func (l *Ledger) Generation(id NativeID) (uint64, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.records[id]
	if !ok {
		return 0, false
	}
	return rec.generation, true
}

// Forget evicts the record for id. Used by instrumentation when a value is
// known to be released, bounding ledger growth without waiting for a probe
// mismatch. Reports whether a record was present.
func (l *Ledger) Forget(id NativeID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.records[id]
	if ok {
		delete(l.records, id)
	}
	return ok
}

// Len returns the number of live records.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Reset drops every record.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = make(map[NativeID]*record)
}

// evictStale removes id only if it still points at the same snapshot the
// failed lookup saw; a concurrent re-registration wins.
func (l *Ledger) evictStale(id NativeID, seen *record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.records[id]; ok && cur == seen {
		delete(l.records, id)
	}
}
