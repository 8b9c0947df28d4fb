package keywheel

import (
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/keywheel/keywheel/pkg/credential"
)

// schedulerConfig holds all configuration collected from Options.
type schedulerConfig struct {
	creds []credentialSpec

	defaultLimit  int
	defaultLength time.Duration

	clock          func() time.Time
	logger         *slog.Logger
	metricsEnabled bool

	maxRate  float64
	maxBurst int

	redisClient  redis.UniversalClient
	redisPrefix  string
	redisTimeout time.Duration
}

type credentialSpec struct {
	id     string
	client any
	window credential.Window

	// limit, when positive, overrides the default window limit for this
	// credential. The window itself is built inside New so the folded
	// clock and Redis mirror apply to it. Ignored when window is set.
	limit int
}

// Option is a function that configures the Scheduler.
type Option func(*schedulerConfig)

// defaultSchedulerConfig returns sensible defaults.
func defaultSchedulerConfig() *schedulerConfig {
	return &schedulerConfig{
		defaultLimit:   60,
		defaultLength:  time.Minute,
		clock:          time.Now,
		logger:         slog.Default(),
		metricsEnabled: true,
		redisPrefix:    "keywheel:usage:",
	}
}

// WithCredential registers a credential. client is the caller-owned
// handle returned inside the selected Entry; the scheduler never touches
// it. w overrides the default window for this credential; pass nil to
// use the limit and length from WithWindow.
//
// Credential IDs must be unique; New fails on duplicates.
func WithCredential(id string, client any, w credential.Window) Option {
	return func(c *schedulerConfig) {
		c.creds = append(c.creds, credentialSpec{id: id, client: client, window: w})
	}
}

// withCredentialLimit registers a credential whose window is built by New
// from the folded options, with limit overriding the default when
// positive. Used by FromConfig for per-credential limits.
func withCredentialLimit(id string, client any, limit int) Option {
	return func(c *schedulerConfig) {
		c.creds = append(c.creds, credentialSpec{id: id, client: client, limit: limit})
	}
}

// WithWindow sets the default per-credential rate window: limit requests
// per trailing length. Defaults to 60 per minute.
func WithWindow(limit int, length time.Duration) Option {
	return func(c *schedulerConfig) {
		c.defaultLimit = limit
		c.defaultLength = length
	}
}

// WithClock replaces the clock source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(c *schedulerConfig) {
		if now != nil {
			c.clock = now
		}
	}
}

// WithLogger sets the logger. Log output passes through a secret
// redactor before being written.
func WithLogger(logger *slog.Logger) Option {
	return func(c *schedulerConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics enables or disables Prometheus metric observation.
// Enabled by default.
func WithMetrics(enabled bool) Option {
	return func(c *schedulerConfig) {
		c.metricsEnabled = enabled
	}
}

// WithMaxRate adds a global send-rate smoother applied in Do across all
// credentials, on top of the per-credential windows. rps is requests per
// second; burst is the number of requests that may go out back to back.
func WithMaxRate(rps float64, burst int) Option {
	return func(c *schedulerConfig) {
		c.maxRate = rps
		c.maxBurst = burst
	}
}

// WithRedisMirror shares every sliding window through a Redis sorted set
// so that several processes using the same credentials observe a
// combined usage window. keyPrefix defaults to "keywheel:usage:";
// timeout bounds each Redis round trip. Redis failures degrade to the
// local window and are logged, never surfaced.
func WithRedisMirror(client redis.UniversalClient, keyPrefix string, timeout time.Duration) Option {
	return func(c *schedulerConfig) {
		c.redisClient = client
		if keyPrefix != "" {
			c.redisPrefix = keyPrefix
		}
		c.redisTimeout = timeout
	}
}
