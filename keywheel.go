// Package keywheel schedules outbound API requests across several
// interchangeable, independently rate-limited credentials. It never
// exceeds any single credential's quota, prefers credentials with spare
// capacity, and when every credential is exhausted it hands back the
// soonest-available one instead of failing, leaving the wait to the
// caller.
//
// Basic usage:
//
//	sched, err := keywheel.New(
//	    keywheel.WithWindow(60, time.Minute),
//	    keywheel.WithCredential("workspace-a", clientA, nil),
//	    keywheel.WithCredential("workspace-b", clientB, nil),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	err = sched.Do(ctx, func(ctx context.Context, entry *keywheel.Entry) error {
//	    api := entry.Client.(*myAPIClient)
//	    return api.Fetch(ctx)
//	})
//
// Lower-level callers drive the scheduler directly: EnsureAvailable
// before every request, RecordUse after every attempt.
package keywheel

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/keywheel/keywheel/internal/config"
	"github.com/keywheel/keywheel/internal/observability"
	"github.com/keywheel/keywheel/internal/window"
	"github.com/keywheel/keywheel/pkg/credential"
	kwerrors "github.com/keywheel/keywheel/pkg/errors"
)

// Version is the current version of keywheel.
const Version = "1.2.0"

// Re-export core types for convenience.
type (
	// Entry associates a credential ID, its client handle, and its
	// rate window.
	Entry = credential.Entry

	// Window answers capacity questions for a single credential.
	Window = credential.Window

	// SchedulerError is the typed error for configuration problems.
	SchedulerError = kwerrors.SchedulerError
)

// Re-export configuration types.
type (
	// Config is the yaml-backed scheduler configuration.
	Config = config.Config

	// CredentialConfig defines one rate-limited credential.
	CredentialConfig = config.CredentialConfig

	// ConfigManager watches a config file and hot-reloads mutable
	// settings.
	ConfigManager = config.Manager
)

// LoadConfig reads and validates a yaml configuration file.
func LoadConfig(path string) (*Config, error) {
	return config.LoadFromFile(path)
}

// NewConfigManager creates a hot-reloading configuration manager.
func NewConfigManager(path string, logger *slog.Logger) (*ConfigManager, error) {
	return config.NewManager(path, logger)
}

// NewSlidingWindow creates a standalone sliding window for use with
// WithCredential when a credential needs its own limit or length.
func NewSlidingWindow(limit int, length time.Duration) *window.Sliding {
	return window.NewSliding(limit, length, nil)
}

// FromConfig builds a scheduler from a validated configuration.
// newClient constructs the caller-owned client handle for each
// credential; pass nil to leave Entry.Client unset. Extra options are
// applied after the config-derived ones and take precedence.
func FromConfig(cfg *Config, newClient func(id, secret string) any, opts ...Option) (*Scheduler, error) {
	if cfg == nil {
		return nil, kwerrors.NewConfigurationError("nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, kwerrors.NewConfigurationError(err.Error())
	}

	base := []Option{
		WithLogger(configLogger(cfg.Logging)),
		WithMetrics(cfg.Metrics.Enabled),
		WithWindow(cfg.RateLimit.Requests, cfg.RateLimit.Window),
	}

	var rdb redis.UniversalClient
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		base = append(base, WithRedisMirror(rdb, cfg.Redis.KeyPrefix, cfg.Redis.Timeout))
	}

	for _, cred := range cfg.Credentials {
		var client any
		if newClient != nil {
			client = newClient(cred.ID, cred.Secret)
		}
		// Per-credential limit overrides resolve inside New, after the
		// options are folded, so the configured clock and Redis mirror
		// apply to them too.
		base = append(base, withCredentialLimit(cred.ID, client, cred.Limit))
	}

	return New(append(base, opts...)...)
}

func configLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	l := observability.NewLogger(observability.LoggerConfig{
		Level:      level,
		Output:     os.Stderr,
		JSONFormat: strings.ToLower(cfg.Format) != "text",
	}, observability.NewRedactor())
	return l.Slog()
}
