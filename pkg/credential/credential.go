// Package credential defines the contracts shared between the rotation
// scheduler and the rate-window implementations.
package credential

import "time"

// Window answers capacity questions for a single credential.
//
// Design principles:
//   - Thread-safe: all methods must be safe for concurrent use
//   - Cheap: HasCapacity and NextAvailable are called on every rotation scan
//   - One owner for writes: only the transport layer calls RecordUse;
//     the scheduler never mutates a window
type Window interface {
	// HasCapacity reports whether one more request fits in the
	// trailing window right now.
	HasCapacity() bool

	// NextAvailable returns the earliest time at which HasCapacity
	// would become true, assuming no further RecordUse calls.
	// When capacity already exists it returns the current time.
	NextAvailable() time.Time

	// RecordUse appends a usage marker at the current time.
	// Expired markers may be evicted lazily as a side effect.
	RecordUse()
}

// Entry associates a credential with its client handle and rate window.
// Exactly one Entry exists per configured credential for the lifetime of
// the scheduler; the set of IDs is fixed at construction.
type Entry struct {
	// ID uniquely identifies the credential. Stable for the process
	// lifetime.
	ID string

	// Client is the caller-owned handle used to perform I/O with this
	// credential. The scheduler never touches it.
	Client any

	// Window is shared with the transport layer, which records usage
	// into it after every request attempt.
	Window Window
}
