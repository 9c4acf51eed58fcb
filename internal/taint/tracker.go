// File: internal/taint/tracker.go
package taint

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Tracker errors.
var (
	ErrNotConfigured     = errors.New("tracker has not been configured; call Setup first")
	ErrInvalidMaxRanges  = errors.New("max ranges per value must be positive")
	ErrInvalidMaxTracked = errors.New("max tracked values must be positive")
)

// Limits bounds the memory a Tracker may consume.
type Limits struct {
	// MaxRangesPerValue caps the range set recorded for a single value.
	// Overflow is handled by deterministic truncation, not an error.
	MaxRangesPerValue int
	// MaxTrackedValues caps the number of live ledger records.
	MaxTrackedValues int
}

// Validate rejects non-positive limits.
func (l Limits) Validate() error {
	if l.MaxRangesPerValue <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidMaxRanges, l.MaxRangesPerValue)
	}
	if l.MaxTrackedValues <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidMaxTracked, l.MaxTrackedValues)
	}
	return nil
}

// Stats are diagnostic counters for conditions the engine recovers from
// automatically. They exist so the surrounding system can report them as
// metrics; nothing in the engine raises on these paths.
type Stats struct {
	// TruncatedRanges counts ranges dropped by the capacity bound.
	TruncatedRanges uint64
	// RejectedRegistrations counts registrations dropped because the ledger
	// was at MaxTrackedValues.
	RejectedRegistrations uint64
	// StaleEvictions counts records evicted after a probe mismatch revealed
	// a recycled native identity.
	StaleEvictions uint64
}

// trackerState is the whole of the Tracker's configurable state. Setup
// swaps the pointer to a fresh state in one atomic store, so concurrent
// readers observe either the old configuration or the new one, never a mix.
type trackerState struct {
	instanceID string
	limits     Limits
	ledger     *Ledger

	truncated uint64
	rejected  uint64
	stale     uint64
}

// Tracker is the process- or request-scoped taint tracking context. It
// binds the identity ledger, the monotonic tracking-id counter, and the
// configured limits. All methods are safe for concurrent use; no method
// performs I/O or blocks beyond plain mutual exclusion inside the ledger.
type Tracker struct {
	state  atomic.Pointer[trackerState]
	nextID atomic.Uint64
	logger *zap.Logger
}

// NewTracker creates an unconfigured Tracker. Every operation except NewID
// reports ErrNotConfigured (or absent, for lookups) until Setup succeeds.
func NewTracker(logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{logger: logger.Named("tracker")}
}

// Setup (re)initializes the tracking state with the given limits. It is
// idempotent in the documented sense: a second call replaces the prior
// configuration and clears all prior records in a single point-in-time
// cutover. An invalid configuration is rejected without touching the
// existing state. The tracking-id counter is preserved across Setups so
// ids never repeat within the process.
func (t *Tracker) Setup(limits Limits) error {
	if err := limits.Validate(); err != nil {
		return fmt.Errorf("tracker setup: %w", err)
	}
	state := &trackerState{
		instanceID: uuid.New().String()[:8],
		limits:     limits,
		ledger:     NewLedger(limits.MaxTrackedValues),
	}
	prev := t.state.Swap(state)
	if prev != nil {
		t.logger.Info("Tracking context reset; prior records discarded.",
			zap.String("instance_id", state.instanceID),
			zap.Int("prior_records", prev.ledger.Len()),
		)
	} else {
		t.logger.Debug("Tracking context configured.",
			zap.String("instance_id", state.instanceID),
			zap.Int("max_ranges_per_value", limits.MaxRangesPerValue),
			zap.Int("max_tracked_values", limits.MaxTrackedValues),
		)
	}
	return nil
}

// NewID mints the next process-unique tracking id. Monotonic, never
// repeated for the life of the Tracker, and usable before Setup so the
// instrumentation layer can pre-allocate ids.
func (t *Tracker) NewID() uint64 {
	return t.nextID.Add(1)
}

// Register associates ranges with the value identified by native. The range
// set is normalized (same-source overlap merge) and bounded to
// MaxRangesPerValue before it is stored; overflow increments the truncation
// counter. The assigned tracking id is returned. A registration dropped at
// the MaxTrackedValues bound returns the id it would have used with ok
// false.
func (t *Tracker) Register(native NativeID, probe Probe, ranges []TaintRange) (trackingID uint64, ok bool, err error) {
	state := t.state.Load()
	if state == nil {
		return 0, false, ErrNotConfigured
	}

	normalized := NormalizeRanges(ranges)
	capped, dropped := CapRanges(normalized, state.limits.MaxRangesPerValue)
	if dropped > 0 {
		atomic.AddUint64(&state.truncated, uint64(dropped))
	}

	trackingID = t.NewID()
	if !state.ledger.Register(native, trackingID, probe, capped) {
		atomic.AddUint64(&state.rejected, 1)
		return trackingID, false, nil
	}
	return trackingID, true, nil
}

// Taint is the fresh-taint entry point: it records a single range covering
// the whole of value, attributed to source. Empty values are not tracked.
func (t *Tracker) Taint(native NativeID, value string, source Source) (uint64, bool, error) {
	if len(value) == 0 {
		return 0, false, nil
	}
	r, err := NewRange(0, len(value), source)
	if err != nil {
		return 0, false, err
	}
	return t.Register(native, ProbeString(value), []TaintRange{r})
}

// Ranges returns the range set recorded for native, or absent when the
// value was never tainted, was forgotten, or its identity was detected as
// recycled. The returned slice is shared and must not be modified.
func (t *Tracker) Ranges(native NativeID, probe Probe) ([]TaintRange, bool) {
	state := t.state.Load()
	if state == nil {
		return nil, false
	}
	before := state.ledger.Len()
	rs, ok := state.ledger.Lookup(native, probe)
	if !ok && state.ledger.Len() < before {
		atomic.AddUint64(&state.stale, 1)
	}
	return rs, ok
}

// IsTainted reports whether native has a live, non-empty range set.
func (t *Tracker) IsTainted(native NativeID, probe Probe) bool {
	rs, ok := t.Ranges(native, probe)
	return ok && len(rs) > 0
}

// Forget evicts the record for native, if any.
func (t *Tracker) Forget(native NativeID) {
	if state := t.state.Load(); state != nil {
		state.ledger.Forget(native)
	}
}

// Tracked returns the number of live ledger records.
func (t *Tracker) Tracked() int {
	state := t.state.Load()
	if state == nil {
		return 0
	}
	return state.ledger.Len()
}

// Limits returns the active limits. The zero value is returned before
// Setup.
func (t *Tracker) Limits() Limits {
	state := t.state.Load()
	if state == nil {
		return Limits{}
	}
	return state.limits
}

// Stats snapshots the diagnostic counters of the current state. Counters
// restart at zero on Setup, together with the records they describe.
func (t *Tracker) Stats() Stats {
	state := t.state.Load()
	if state == nil {
		return Stats{}
	}
	return Stats{
		TruncatedRanges:       atomic.LoadUint64(&state.truncated),
		RejectedRegistrations: atomic.LoadUint64(&state.rejected),
		StaleEvictions:        atomic.LoadUint64(&state.stale),
	}
}
