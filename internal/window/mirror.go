package window

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/keywheel/keywheel/pkg/credential"
)

const (
	maxSortedSetScore = "+inf"

	// defaultMirrorTimeout bounds every Redis round trip so a slow or
	// unreachable backend never stalls a rotation scan for long.
	defaultMirrorTimeout = 100 * time.Millisecond
)

// Mirror is a sliding window shared across processes through a Redis
// sorted set. Each usage marker is a uuid member scored by its unix-milli
// timestamp, so several schedulers holding the same credential observe a
// combined window.
//
// The wrapped local window stays authoritative when Redis is unreachable:
// every read falls back to it and every error is logged, never surfaced.
// That mirrors the fail-open behavior of distributed limiters elsewhere
// in the ecosystem, where rate accounting must not fail requests.
type Mirror struct {
	local   *Sliding
	client  redis.UniversalClient
	key     string
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

var _ credential.Window = (*Mirror)(nil)

// MirrorConfig configures a Redis-mirrored window.
type MirrorConfig struct {
	Client  redis.UniversalClient
	Key     string        // sorted-set key, typically "keywheel:usage:<credential id>"
	Timeout time.Duration // per-call Redis timeout (default 100ms)
	Logger  *slog.Logger
	Now     func() time.Time // clock source; nil means time.Now
}

// NewMirror wraps local with Redis write-through and shared reads.
func NewMirror(local *Sliding, cfg MirrorConfig) *Mirror {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultMirrorTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Mirror{
		local:   local,
		client:  cfg.Client,
		key:     cfg.Key,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
		now:     cfg.Now,
	}
}

// HasCapacity counts in-window markers in the shared set. Falls back to
// the local window on any Redis error.
func (m *Mirror) HasCapacity() bool {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	count, err := m.inWindowCount(ctx)
	if err != nil {
		m.logger.Debug("mirror read failed, using local window",
			"key", m.key, "error", err)
		return m.local.HasCapacity()
	}
	return count < int64(m.local.Limit())
}

// NextAvailable returns the time at which the shared window opens a slot.
// Falls back to the local window on any Redis error.
func (m *Mirror) NextAvailable() time.Time {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	now := m.now()
	count, err := m.inWindowCount(ctx)
	if err != nil {
		m.logger.Debug("mirror read failed, using local window",
			"key", m.key, "error", err)
		return m.local.NextAvailable()
	}

	limit := int64(m.local.Limit())
	if count < limit {
		return now
	}

	// The in-window marker at offset count-limit (oldest first) is the
	// one whose expiry frees a slot. The range is restricted by score so
	// expired markers still sitting in the set, pruned only on the next
	// RecordUse, cannot shift the offset.
	cutoff := now.Add(-m.local.length)
	members, err := m.client.ZRangeByScoreWithScores(ctx, m.key, &redis.ZRangeBy{
		Min:    strconv.FormatInt(cutoff.UnixMilli(), 10),
		Max:    maxSortedSetScore,
		Offset: count - limit,
		Count:  1,
	}).Result()
	if err != nil || len(members) == 0 {
		m.logger.Debug("mirror rank read failed, using local window",
			"key", m.key, "error", err)
		return m.local.NextAvailable()
	}
	opened := time.UnixMilli(int64(members[0].Score)).Add(m.local.length)
	return opened
}

// RecordUse writes the marker both locally and through to Redis. The
// Redis write prunes expired markers in the same pipeline, following the
// sorted-set sliding-window idiom.
func (m *Mirror) RecordUse() {
	m.local.RecordUse()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	now := m.now()
	minimum := now.Add(-m.local.length)

	p := m.client.Pipeline()
	p.ZRemRangeByScore(ctx, m.key, "0", strconv.FormatInt(minimum.UnixMilli(), 10))
	p.ZAdd(ctx, m.key, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: uuid.NewString(),
	})
	p.Expire(ctx, m.key, m.local.length*2)
	if _, err := p.Exec(ctx); err != nil {
		m.logger.Warn("mirror write failed, marker recorded locally only",
			"key", m.key, "error", err)
	}
}

// SetLimit updates the per-window request limit on the local window; the
// shared set carries no limit of its own.
func (m *Mirror) SetLimit(limit int) {
	m.local.SetLimit(limit)
}

func (m *Mirror) inWindowCount(ctx context.Context) (int64, error) {
	minimum := m.now().Add(-m.local.length)
	return m.client.ZCount(ctx, m.key,
		strconv.FormatInt(minimum.UnixMilli(), 10), maxSortedSetScore).Result()
}
