package keywheel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	kwerrors "github.com/keywheel/keywheel/pkg/errors"
)

func TestNew_ZeroCredentials(t *testing.T) {
	_, err := New(WithMetrics(false))
	require.Error(t, err)
	require.True(t, kwerrors.IsConfiguration(err))
}

func TestNew_DuplicateIDs(t *testing.T) {
	_, err := New(
		WithMetrics(false),
		WithCredential("a", nil, nil),
		WithCredential("a", nil, nil),
	)
	require.Error(t, err)
	require.True(t, kwerrors.IsConfiguration(err))
	require.Contains(t, err.Error(), `"a"`)
}

func TestEnsureAvailable_PinsCurrentWithCapacity(t *testing.T) {
	s, _ := newTestScheduler(t, 2, "a", "b")

	first, err := s.EnsureAvailable()
	require.NoError(t, err)

	// While the held credential has capacity, it stays selected.
	second, err := s.EnsureAvailable()
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	requireConserved(t, s, 2)
}

func TestRotate_PrefersCapacity(t *testing.T) {
	s, _ := newTestScheduler(t, 1, "a", "b", "c")

	// Exhaust a, keep b and c fresh.
	entry, err := s.EnsureAvailable()
	require.NoError(t, err)
	require.Equal(t, "a", entry.ID, "ties break by id")
	require.NoError(t, s.RecordUse("a"))

	next, err := s.Rotate()
	require.NoError(t, err)
	require.True(t, next.Window.HasCapacity(),
		"rotation must return a credential with capacity while one exists")
	require.NotEqual(t, "a", next.ID)
	requireConserved(t, s, 3)
}

func TestRotate_SingleCredentialIdempotent(t *testing.T) {
	s, _ := newTestScheduler(t, 10, "only")

	for i := 0; i < 5; i++ {
		entry, err := s.Rotate()
		require.NoError(t, err)
		require.Equal(t, "only", entry.ID)
		require.Equal(t, 0, s.PoolSize())
	}
}

func TestRotate_ExhaustionReturnsSoonestReset(t *testing.T) {
	s, clock := newTestScheduler(t, 1, "a", "b")

	// Use a at t0, b at t0+10s. Both exhausted; a resets first.
	entry, err := s.EnsureAvailable()
	require.NoError(t, err)
	require.Equal(t, "a", entry.ID)
	require.NoError(t, s.RecordUse("a"))

	clock.Advance(10 * time.Second)
	entry, err = s.EnsureAvailable()
	require.NoError(t, err)
	require.Equal(t, "b", entry.ID)
	require.NoError(t, s.RecordUse("b"))

	entry, err = s.Rotate()
	require.NoError(t, err)
	require.Equal(t, "a", entry.ID, "the credential whose window opens first wins")
	require.False(t, entry.Window.HasCapacity())

	// The fallback's reset is no later than any other credential's.
	aNext := entry.Window.NextAvailable()
	for id, other := range s.entries {
		require.False(t, other.Window.NextAvailable().Before(aNext),
			"credential %s resets before the selected fallback", id)
	}
	requireConserved(t, s, 2)
}

func TestScenario_SixCallsExhaustThreeCredentials(t *testing.T) {
	s, clock := newTestScheduler(t, 2, "A", "B", "C")

	// Six sequential uses at distinct times exhaust all three
	// credentials, two uses each.
	uses := make(map[string]int)
	var lastSecondUse string
	for i := 0; i < 6; i++ {
		entry, err := s.EnsureAvailable()
		require.NoError(t, err)
		require.True(t, entry.Window.HasCapacity(),
			"call %d should still find capacity", i)

		require.NoError(t, s.RecordUse(entry.ID))
		uses[entry.ID]++
		if uses[entry.ID] == 2 {
			lastSecondUse = entry.ID
		}
		clock.Advance(time.Second)
		requireConserved(t, s, 3)
	}

	require.Equal(t, map[string]int{"A": 2, "B": 2, "C": 2}, uses)

	// Seventh call: everything is exhausted. It must not fail, and it
	// must return the credential whose second use is oldest, which is
	// any of them except the one that recorded its second use last.
	entry, err := s.EnsureAvailable()
	require.NoError(t, err)
	require.NotEqual(t, lastSecondUse, entry.ID)

	selectedAt := entry.Window.NextAvailable()
	for id, other := range s.entries {
		require.False(t, other.Window.NextAvailable().Before(selectedAt),
			"credential %s would reset before the selected %s", id, entry.ID)
	}
	requireConserved(t, s, 3)

	// Once the selected credential's window opens, normal service
	// resumes with it.
	clock.Advance(time.Minute)
	again, err := s.EnsureAvailable()
	require.NoError(t, err)
	require.True(t, again.Window.HasCapacity())
}

func TestRotate_PoolConservationAcrossManyCalls(t *testing.T) {
	s, clock := newTestScheduler(t, 2, "a", "b", "c", "d")

	for i := 0; i < 50; i++ {
		entry, err := s.Rotate()
		require.NoError(t, err)
		requireConserved(t, s, 4)

		// No duplicate IDs: the held entry must not also be pooled.
		require.False(t, s.pool.Contains(entry.ID))

		if i%3 == 0 {
			require.NoError(t, s.RecordUse(entry.ID))
		}
		if i%7 == 0 {
			clock.Advance(20 * time.Second)
		}
	}
}

func TestRelease(t *testing.T) {
	s, _ := newTestScheduler(t, 2, "a", "b")

	entry, err := s.EnsureAvailable()
	require.NoError(t, err)
	require.Equal(t, 1, s.PoolSize())
	require.Equal(t, entry.ID, s.CurrentID())

	require.NoError(t, s.Release(entry))
	require.Equal(t, 2, s.PoolSize())
	require.Equal(t, "", s.CurrentID())
	requireConserved(t, s, 2)

	// Releasing an already-pooled entry must not duplicate it.
	require.NoError(t, s.Release(entry))
	require.Equal(t, 2, s.PoolSize())

	require.Error(t, s.Release(&Entry{ID: "ghost"}))
	require.NoError(t, s.Release(nil))
}

func TestRecordUse_UnknownCredential(t *testing.T) {
	s, _ := newTestScheduler(t, 2, "a")

	err := s.RecordUse("ghost")
	require.Error(t, err)
	require.True(t, kwerrors.IsUnknownCredential(err))
}

func TestCustomWindowPerCredential(t *testing.T) {
	clock := newFakeClock()
	tight := NewSlidingWindow(1, time.Minute)

	s, err := New(
		WithMetrics(false),
		WithClock(clock.Now),
		WithWindow(100, time.Minute),
		WithCredential("tight", nil, tight),
		WithCredential("roomy", nil, nil),
	)
	require.NoError(t, err)

	require.NoError(t, s.RecordUse("tight"))

	entry, err := s.Rotate()
	require.NoError(t, err)
	require.Equal(t, "roomy", entry.ID, "the credential with its own exhausted window is skipped")
}

func TestSize(t *testing.T) {
	s, _ := newTestScheduler(t, 1, "a", "b", "c")
	require.Equal(t, 3, s.Size())
}
