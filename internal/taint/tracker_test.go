// File: internal/taint/tracker_test.go
package taint

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"
)

func newTestTracker(t *testing.T, limits Limits) *Tracker {
	t.Helper()
	tracker := NewTracker(zaptest.NewLogger(t))
	require.NoError(t, tracker.Setup(limits))
	return tracker
}

func TestTrackerSetupValidation(t *testing.T) {
	tracker := NewTracker(zaptest.NewLogger(t))

	tests := []struct {
		name    string
		limits  Limits
		wantErr error
	}{
		{"valid", Limits{MaxRangesPerValue: 8, MaxTrackedValues: 32}, nil},
		{"zero max ranges", Limits{MaxRangesPerValue: 0, MaxTrackedValues: 32}, ErrInvalidMaxRanges},
		{"negative max ranges", Limits{MaxRangesPerValue: -1, MaxTrackedValues: 32}, ErrInvalidMaxRanges},
		{"zero max tracked", Limits{MaxRangesPerValue: 8, MaxTrackedValues: 0}, ErrInvalidMaxTracked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tracker.Setup(tt.limits)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestTrackerRejectedSetupKeepsPriorState(t *testing.T) {
	tracker := newTestTracker(t, Limits{MaxRangesPerValue: 8, MaxTrackedValues: 32})

	src := NewSource("username", OriginParameter, "alice")
	_, ok, err := tracker.Taint(1, "alice", src)
	require.NoError(t, err)
	require.True(t, ok)

	// A rejected reconfiguration must not touch the live state.
	require.Error(t, tracker.Setup(Limits{MaxRangesPerValue: 0, MaxTrackedValues: 0}))
	assert.Equal(t, 8, tracker.Limits().MaxRangesPerValue)
	assert.True(t, tracker.IsTainted(1, ProbeString("alice")))
}

func TestTrackerSetupResetsRecords(t *testing.T) {
	tracker := newTestTracker(t, Limits{MaxRangesPerValue: 8, MaxTrackedValues: 32})

	src := NewSource("username", OriginParameter, "alice")
	firstID, ok, err := tracker.Taint(1, "alice", src)
	require.NoError(t, err)
	require.True(t, ok)

	// Reconfiguring clears prior records but keeps ids monotonic.
	require.NoError(t, tracker.Setup(Limits{MaxRangesPerValue: 4, MaxTrackedValues: 32}))
	_, found := tracker.Ranges(1, ProbeString("alice"))
	assert.False(t, found, "records registered before a reset must be absent")
	assert.Equal(t, 4, tracker.Limits().MaxRangesPerValue)

	nextID := tracker.NewID()
	assert.Greater(t, nextID, firstID, "ids never repeat across Setup calls")
}

func TestTrackerNewIDMonotonic(t *testing.T) {
	tracker := NewTracker(zaptest.NewLogger(t))
	prev := tracker.NewID()
	for i := 0; i < 100; i++ {
		next := tracker.NewID()
		require.Greater(t, next, prev)
		prev = next
	}
}

func TestTrackerUnconfigured(t *testing.T) {
	tracker := NewTracker(zaptest.NewLogger(t))

	src := NewSource("username", OriginParameter, "alice")
	_, _, err := tracker.Taint(1, "alice", src)
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, ok := tracker.Ranges(1, ProbeString("alice"))
	assert.False(t, ok)
	assert.Equal(t, 0, tracker.Tracked())
	assert.Equal(t, Limits{}, tracker.Limits())
	assert.Equal(t, Stats{}, tracker.Stats())
}

func TestTrackerTaintAndLookup(t *testing.T) {
	tracker := newTestTracker(t, Limits{MaxRangesPerValue: 8, MaxTrackedValues: 32})

	src := NewSource("username", OriginParameter, "alice")
	id, ok, err := tracker.Taint(1, "alice", src)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotZero(t, id)

	rs, found := tracker.Ranges(1, ProbeString("alice"))
	require.True(t, found)
	require.Len(t, rs, 1)
	assert.Equal(t, 0, rs[0].Start())
	assert.Equal(t, 5, rs[0].Length())
	assert.Equal(t, src, rs[0].Source())

	t.Run("empty values are not tracked", func(t *testing.T) {
		_, ok, err := tracker.Taint(2, "", src)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("forget makes the record absent", func(t *testing.T) {
		tracker.Forget(1)
		assert.False(t, tracker.IsTainted(1, ProbeString("alice")))
	})
}

func TestTrackerRegisterNormalizesAndCaps(t *testing.T) {
	tracker := newTestTracker(t, Limits{MaxRangesPerValue: 3, MaxTrackedValues: 32})
	src := NewSource("username", OriginParameter, "alice")

	// Ten disjoint single-byte ranges over a 20-byte value.
	var rs []TaintRange
	for i := 0; i < 10; i++ {
		rs = append(rs, mustRange(t, i*2, 1, src))
	}
	_, ok, err := tracker.Register(5, Probe{Size: 20}, rs)
	require.NoError(t, err)
	require.True(t, ok)

	got, found := tracker.Ranges(5, Probe{Size: 20})
	require.True(t, found)
	assert.Len(t, got, 3, "range sets are bounded by MaxRangesPerValue")
	assert.Equal(t, 0, got[0].Start(), "earliest ranges survive truncation")
	assert.Equal(t, uint64(7), tracker.Stats().TruncatedRanges)

	t.Run("overlapping same-source input is merged before capping", func(t *testing.T) {
		overlapping := []TaintRange{
			mustRange(t, 0, 6, src),
			mustRange(t, 4, 6, src),
			mustRange(t, 9, 3, src),
		}
		_, ok, err := tracker.Register(6, Probe{Size: 12}, overlapping)
		require.NoError(t, err)
		require.True(t, ok)
		got, _ := tracker.Ranges(6, Probe{Size: 12})
		require.Len(t, got, 1)
		assert.Equal(t, 12, got[0].Length())
	})
}

func TestTrackerMaxTrackedValues(t *testing.T) {
	tracker := newTestTracker(t, Limits{MaxRangesPerValue: 8, MaxTrackedValues: 2})
	src := NewSource("username", OriginParameter, "alice")

	for i := 1; i <= 2; i++ {
		_, ok, err := tracker.Taint(NativeID(i), "alice", src)
		require.NoError(t, err)
		require.True(t, ok)
	}

	// The third registration is dropped and counted, not an error.
	_, ok, err := tracker.Taint(3, "alice", src)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, uint64(1), tracker.Stats().RejectedRegistrations)
	assert.Equal(t, 2, tracker.Tracked())
}

func TestTrackerStaleEvictionCounter(t *testing.T) {
	tracker := newTestTracker(t, Limits{MaxRangesPerValue: 8, MaxTrackedValues: 32})
	src := NewSource("username", OriginParameter, "alice")

	_, ok, err := tracker.Taint(1, "alice", src)
	require.NoError(t, err)
	require.True(t, ok)

	_, found := tracker.Ranges(1, ProbeString("mallory!"))
	assert.False(t, found)
	assert.Equal(t, uint64(1), tracker.Stats().StaleEvictions)
}

func TestTrackerConcurrentUse(t *testing.T) {
	tracker := newTestTracker(t, Limits{MaxRangesPerValue: 8, MaxTrackedValues: 4096})

	const (
		writers   = 8
		perWriter = 200
	)

	var g errgroup.Group
	for w := 0; w < writers; w++ {
		w := w
		g.Go(func() error {
			for i := 0; i < perWriter; i++ {
				value := fmt.Sprintf("value-%d-%d", w, i)
				native := NativeID(w*perWriter + i + 1)
				src := NewSource("p", OriginParameter, value)
				if _, _, err := tracker.Taint(native, value, src); err != nil {
					return err
				}
				if _, ok := tracker.Ranges(native, ProbeString(value)); !ok {
					return fmt.Errorf("own registration for %d not visible", native)
				}
			}
			return nil
		})
	}
	// Concurrent readers over the whole identity space.
	for r := 0; r < 4; r++ {
		g.Go(func() error {
			for i := 0; i < writers*perWriter; i++ {
				rs, ok := tracker.Ranges(NativeID(i+1), ProbeString(fmt.Sprintf("value-%d-%d", i/perWriter, i%perWriter)))
				if ok && len(rs) == 0 {
					return fmt.Errorf("present record with empty range set for %d", i+1)
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, writers*perWriter, tracker.Tracked())
}

func TestTrackerConcurrentIDs(t *testing.T) {
	tracker := NewTracker(zaptest.NewLogger(t))

	const goroutines = 16
	const perGoroutine = 500

	var mu sync.Mutex
	seen := make(map[uint64]struct{}, goroutines*perGoroutine)

	var g errgroup.Group
	for i := 0; i < goroutines; i++ {
		g.Go(func() error {
			local := make([]uint64, 0, perGoroutine)
			for j := 0; j < perGoroutine; j++ {
				local = append(local, tracker.NewID())
			}
			mu.Lock()
			defer mu.Unlock()
			for _, id := range local {
				if _, dup := seen[id]; dup {
					return fmt.Errorf("duplicate tracking id %d", id)
				}
				seen[id] = struct{}{}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Len(t, seen, goroutines*perGoroutine)
}
