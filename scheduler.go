package keywheel

import (
	"fmt"
	"sync"
	"time"

	"github.com/keywheel/keywheel/internal/credpool"
	"github.com/keywheel/keywheel/internal/metrics"
	"github.com/keywheel/keywheel/internal/observability"
	"github.com/keywheel/keywheel/internal/window"
	"github.com/keywheel/keywheel/pkg/credential"
	kwerrors "github.com/keywheel/keywheel/pkg/errors"
	"golang.org/x/time/rate"
)

// Scheduler rotates requests across a fixed set of rate-limited
// credentials. At most one credential is checked out at a time; the rest
// wait in a pool ordered by next-available time.
//
// Invariant: pooled entries plus the checked-out entry always equal the
// configured credential set, with no duplicates, before and after every
// operation.
type Scheduler struct {
	mu      sync.Mutex
	pool    *credpool.Pool
	entries map[string]*credential.Entry
	current *credential.Entry

	clock          func() time.Time
	logger         *observability.Logger
	metricsEnabled bool
	limiter        *rate.Limiter
}

// New creates a scheduler over the configured credentials. At least one
// credential is required; a zero-credential scheduler is a configuration
// error, not something to retry.
func New(opts ...Option) (*Scheduler, error) {
	cfg := defaultSchedulerConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if len(cfg.creds) == 0 {
		return nil, kwerrors.NewConfigurationError("no credentials configured")
	}

	s := &Scheduler{
		pool:           credpool.New(),
		entries:        make(map[string]*credential.Entry, len(cfg.creds)),
		clock:          cfg.clock,
		logger:         observability.Wrap(cfg.logger, observability.NewRedactor()),
		metricsEnabled: cfg.metricsEnabled,
	}
	if cfg.maxRate > 0 {
		burst := cfg.maxBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.maxRate), burst)
	}

	now := cfg.clock()
	for _, spec := range cfg.creds {
		if spec.id == "" {
			return nil, kwerrors.NewConfigurationError("credential id must not be empty")
		}
		if _, dup := s.entries[spec.id]; dup {
			return nil, kwerrors.NewConfigurationError(
				fmt.Sprintf("duplicate credential id %q", spec.id))
		}

		w := spec.window
		if w == nil {
			limit := cfg.defaultLimit
			if spec.limit > 0 {
				limit = spec.limit
			}
			w = window.NewSliding(limit, cfg.defaultLength, cfg.clock)
		}
		if cfg.redisClient != nil {
			if local, ok := w.(*window.Sliding); ok {
				w = window.NewMirror(local, window.MirrorConfig{
					Client:  cfg.redisClient,
					Key:     cfg.redisPrefix + spec.id,
					Timeout: cfg.redisTimeout,
					Logger:  cfg.logger,
					Now:     cfg.clock,
				})
			}
		}

		entry := &credential.Entry{ID: spec.id, Client: spec.client, Window: w}
		s.entries[spec.id] = entry
		s.pool.Enqueue(entry, now)
	}
	s.observePoolSize()

	return s, nil
}

// EnsureAvailable returns the credential to use for the next request:
// the currently held one when it still has capacity, otherwise the
// result of a rotation. The returned entry may lack capacity when every
// credential is exhausted; callers should then wait until its window's
// NextAvailable before sending (Do does this).
func (s *Scheduler) EnsureAvailable() (*credential.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil && s.current.Window.HasCapacity() {
		return s.current, nil
	}
	return s.rotateLocked()
}

// Rotate switches to the best credential right now: the soonest-available
// entry with capacity when one exists, else the entry whose window opens
// first. It never sleeps and never fails outside of misconfiguration.
func (s *Scheduler) Rotate() (*credential.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rotateLocked()
}

// rotateLocked runs the scan-and-fallback selection. Callers must hold
// mu: the pool is in a temporarily inconsistent state (entries pulled
// out but not yet restored) for the whole body.
func (s *Scheduler) rotateLocked() (*credential.Entry, error) {
	if len(s.entries) == 0 {
		return nil, kwerrors.NewConfigurationError("no credentials configured")
	}

	// The held credential rejoins the scan; rotation replaces current
	// directly, with no window where nothing is held on success.
	if s.current != nil {
		s.enqueueAtAvailability(s.current)
		s.current = nil
	}

	tried := make(map[string]struct{}, len(s.entries))
	var pulled []*credential.Entry

	for {
		entry, ok := s.pool.PopNext()
		if !ok {
			break
		}
		pulled = append(pulled, entry)

		if entry.Window.HasCapacity() {
			s.checkout(entry, pulled, metrics.OutcomeCapacity)
			return entry, nil
		}

		tried[entry.ID] = struct{}{}
		if len(tried) == len(s.entries) {
			break
		}
	}

	if len(pulled) == 0 {
		// Nothing pooled and nothing held: the scheduler was never
		// initialized properly.
		return nil, kwerrors.NewConfigurationError("credential pool is empty")
	}

	// Exhaustion path. Time may have advanced during the scan, so give
	// every pulled entry one more capacity check before settling for a
	// wait. This is best-effort; a race here only costs latency.
	for _, entry := range pulled {
		if entry.Window.HasCapacity() {
			s.checkout(entry, pulled, metrics.OutcomeRecheck)
			return entry, nil
		}
	}

	winner := pulled[0]
	winnerAt := winner.Window.NextAvailable()
	for _, entry := range pulled[1:] {
		if at := entry.Window.NextAvailable(); at.Before(winnerAt) {
			winner, winnerAt = entry, at
		}
	}

	if s.metricsEnabled {
		metrics.ExhaustionTotal.Inc()
	}
	s.logger.RedactedInfo("all credentials exhausted, selecting soonest reset",
		"credential", winner.ID,
		"next_available", winnerAt,
	)
	s.checkout(winner, pulled, metrics.OutcomeExhausted)
	return winner, nil
}

// checkout installs winner as current and restores every other pulled
// entry into the pool at its current availability time.
func (s *Scheduler) checkout(winner *credential.Entry, pulled []*credential.Entry, outcome string) {
	for _, entry := range pulled {
		if entry.ID == winner.ID {
			continue
		}
		s.enqueueAtAvailability(entry)
	}
	s.current = winner

	if s.metricsEnabled {
		metrics.RotationsTotal.WithLabelValues(winner.ID, outcome).Inc()
	}
	s.observePoolSize()
	s.logger.RedactedDebug("credential checked out",
		"credential", winner.ID,
		"outcome", outcome,
		"pool_size", s.pool.Size(),
	)
}

// enqueueAtAvailability parks an entry at now when it has capacity, else
// at its window's next opening.
func (s *Scheduler) enqueueAtAvailability(entry *credential.Entry) {
	at := s.clock()
	if !entry.Window.HasCapacity() {
		at = entry.Window.NextAvailable()
	}
	s.pool.Enqueue(entry, at)
}

// Release returns a checked-out entry to the pool and clears current if
// it was the held one. Useful for callers that do not pin a long-lived
// credential across requests.
func (s *Scheduler) Release(entry *credential.Entry) error {
	if entry == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	configured, ok := s.entries[entry.ID]
	if !ok {
		return kwerrors.NewUnknownCredentialError(entry.ID)
	}
	if s.current != nil && s.current.ID == entry.ID {
		s.current = nil
	}
	if !s.pool.Contains(entry.ID) {
		s.enqueueAtAvailability(configured)
	}
	s.observePoolSize()
	return nil
}

// RecordUse records one request attempt against the credential's window.
// The transport layer calls this after every attempt, success or failure.
func (s *Scheduler) RecordUse(id string) error {
	s.mu.Lock()
	entry, ok := s.entries[id]
	s.mu.Unlock()
	if !ok {
		return kwerrors.NewUnknownCredentialError(id)
	}

	entry.Window.RecordUse()
	if s.metricsEnabled {
		metrics.UsesRecorded.WithLabelValues(id).Inc()
	}
	return nil
}

// ApplyConfig applies the mutable parts of a reloaded configuration:
// per-credential window limits. The credential set itself is fixed at
// construction, so unknown IDs are ignored. Wire this to a
// ConfigManager with OnChange.
func (s *Scheduler) ApplyConfig(cfg *Config) {
	if cfg == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, entry := range s.entries {
		adjustable, ok := entry.Window.(interface{ SetLimit(int) })
		if !ok {
			continue
		}
		adjustable.SetLimit(cfg.LimitFor(id))
	}
	s.logger.RedactedDebug("window limits applied from config")
}

// PoolSize returns the number of credentials currently parked in the
// pool. The checked-out credential, if any, is not counted.
func (s *Scheduler) PoolSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pool.Size()
}

// CurrentID returns the ID of the checked-out credential, or "" when
// none is held.
func (s *Scheduler) CurrentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ""
	}
	return s.current.ID
}

// Size returns the number of configured credentials.
func (s *Scheduler) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Scheduler) observePoolSize() {
	if s.metricsEnabled {
		metrics.PoolSize.Set(float64(s.pool.Size()))
	}
}
