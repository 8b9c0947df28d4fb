package keywheel

import (
	"context"
	"time"

	"github.com/keywheel/keywheel/internal/metrics"
	"github.com/keywheel/keywheel/pkg/credential"
)

// RoundTrip performs one request attempt with the selected credential.
// The entry's Client holds whatever handle the caller registered.
type RoundTrip func(ctx context.Context, entry *credential.Entry) error

// Do runs one request through the scheduler: it selects a credential,
// waits outside the scheduler's critical section until that credential's
// window opens (when every credential was exhausted), applies the
// optional global rate smoother, invokes fn, and records the attempt in
// the credential's window win or lose.
//
// Cancellation while waiting is safe: the pool was fully restored before
// the wait began, so an abandoned wait leaves no inconsistent state.
func (s *Scheduler) Do(ctx context.Context, fn RoundTrip) error {
	entry, err := s.EnsureAvailable()
	if err != nil {
		return err
	}

	if err := s.awaitWindow(ctx, entry); err != nil {
		return err
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	callErr := fn(ctx, entry)

	// Every attempt counts against the quota, including failures; the
	// provider saw the request either way.
	_ = s.RecordUse(entry.ID)

	return callErr
}

// awaitWindow blocks until entry's window opens or ctx is done.
func (s *Scheduler) awaitWindow(ctx context.Context, entry *credential.Entry) error {
	if entry.Window.HasCapacity() {
		return nil
	}

	wait := entry.Window.NextAvailable().Sub(s.clock())
	if wait <= 0 {
		// Clock regression or a slot that opened since selection.
		return nil
	}

	if s.metricsEnabled {
		metrics.ResetWaitSeconds.Observe(wait.Seconds())
	}
	s.logger.RedactedDebug("waiting for credential window",
		"credential", entry.ID,
		"wait", wait,
	)

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
