// Package window implements sliding-window usage tracking for rate-limited
// credentials. A window answers "may one more request go out now?" and
// "when does the next slot open?" without ever initiating the wait itself.
package window

import (
	"sync"
	"time"

	"github.com/keywheel/keywheel/pkg/credential"
)

// Sliding tracks request timestamps over a trailing window.
// It allows at most limit requests within any trailing span of length.
type Sliding struct {
	mu     sync.Mutex
	limit  int
	length time.Duration
	used   []time.Time // ascending usage timestamps, pruned lazily
	now    func() time.Time
}

var _ credential.Window = (*Sliding)(nil)

// NewSliding creates a sliding window allowing limit requests per length.
// now is the clock source; pass nil to use time.Now.
func NewSliding(limit int, length time.Duration, now func() time.Time) *Sliding {
	if limit < 1 {
		limit = 1
	}
	if length <= 0 {
		length = time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &Sliding{
		limit:  limit,
		length: length,
		used:   make([]time.Time, 0, limit),
		now:    now,
	}
}

// HasCapacity reports whether fewer than limit requests were recorded in
// the trailing window.
func (s *Sliding) HasCapacity() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prune(s.now())
	return len(s.used) < s.limit
}

// NextAvailable returns the time at which a slot opens. When capacity
// already exists it returns the current time, so callers can treat any
// value at or before now as "usable immediately". A clock that moved
// backward can make this value sit in the past; callers must clamp
// negative waits to zero.
func (s *Sliding) NextAvailable() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.prune(now)
	if len(s.used) < s.limit {
		return now
	}
	// The slot frees when the marker holding it ages out.
	return s.used[len(s.used)-s.limit].Add(s.length)
}

// RecordUse appends a usage marker at the current time. Called by the
// transport layer once per request attempt, success or failure.
func (s *Sliding) RecordUse() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.prune(now)
	s.used = append(s.used, now)
}

// SetLimit updates the per-window request limit. Used by config hot
// reload; the recorded usage is kept as-is.
func (s *Sliding) SetLimit(limit int) {
	if limit < 1 {
		limit = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limit = limit
}

// Limit returns the current per-window request limit.
func (s *Sliding) Limit() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limit
}

// Used returns the number of in-window usage markers.
func (s *Sliding) Used() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prune(s.now())
	return len(s.used)
}

// prune drops markers that aged out of the trailing window.
// Callers must hold mu.
func (s *Sliding) prune(now time.Time) {
	cutoff := now.Add(-s.length)
	i := 0
	for i < len(s.used) && !s.used[i].After(cutoff) {
		i++
	}
	if i > 0 {
		s.used = append(s.used[:0], s.used[i:]...)
	}
}
