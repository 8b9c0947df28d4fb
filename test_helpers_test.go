package keywheel

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock for deterministic tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// newTestScheduler builds a scheduler with ids as credentials, each
// allowing limit requests per minute, driven by the returned clock.
func newTestScheduler(t *testing.T, limit int, ids ...string) (*Scheduler, *fakeClock) {
	t.Helper()

	clock := newFakeClock()
	opts := []Option{
		WithClock(clock.Now),
		WithWindow(limit, time.Minute),
		WithMetrics(false),
	}
	for _, id := range ids {
		opts = append(opts, WithCredential(id, nil, nil))
	}

	s, err := New(opts...)
	require.NoError(t, err)
	return s, clock
}

// requireConserved asserts the pool invariant: pooled entries plus the
// checked-out one equal the configured credential set.
func requireConserved(t *testing.T, s *Scheduler, total int) {
	t.Helper()

	held := 0
	if s.CurrentID() != "" {
		held = 1
	}
	require.Equal(t, total, s.PoolSize()+held,
		"pool size %d + held %d must equal configured %d", s.PoolSize(), held, total)
}
