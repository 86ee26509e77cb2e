package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/chorepoints/internal/domain"
	"github.com/phrazzld/chorepoints/internal/platform/logger"
	"github.com/phrazzld/chorepoints/internal/service"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// DefaultLeaderboardTTL bounds how stale a cached leaderboard page can be
// when an invalidation is lost.
const DefaultLeaderboardTTL = 30 * time.Second

// LeaderboardCache stores leaderboard pages as JSON under
// chorepoints:leaderboard:page:{generation}:{window}:{limit}. Invalidate bumps
// the generation counter at chorepoints:leaderboard:gen, so pages cached
// before an invalidation are never read again. Concurrent misses for the same
// page share a single load.
type LeaderboardCache struct {
	client *goredis.Client
	prefix string
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
}

var _ service.LeaderboardCache = (*LeaderboardCache)(nil)

// NewLeaderboardCache creates a LeaderboardCache. A non-positive ttl selects
// DefaultLeaderboardTTL.
func NewLeaderboardCache(client *goredis.Client, ttl time.Duration, log *slog.Logger) *LeaderboardCache {
	if ttl <= 0 {
		ttl = DefaultLeaderboardTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &LeaderboardCache{
		client: client,
		prefix: KeyPrefix + "leaderboard:",
		ttl:    ttl,
		logger: log.With(slog.String("component", "leaderboard_cache")),
	}
}

func (c *LeaderboardCache) genKey() string {
	return c.prefix + "gen"
}

func (c *LeaderboardCache) key(gen int64, window domain.LeaderboardWindow, limit int) string {
	return fmt.Sprintf("%spage:%d:%s:%d", c.prefix, gen, window, limit)
}

// generation returns the current invalidation count, 0 before the first one.
func (c *LeaderboardCache) generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, c.genKey()).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Fetch implements service.LeaderboardCache. Redis failures fall through to
// load so the leaderboard stays available without the cache.
func (c *LeaderboardCache) Fetch(
	ctx context.Context,
	window domain.LeaderboardWindow,
	limit int,
	load func(context.Context) ([]domain.LeaderboardEntry, error),
) ([]domain.LeaderboardEntry, error) {
	log := logger.FromContextOrDefault(ctx, c.logger)

	gen, err := c.generation(ctx)
	if err != nil {
		log.Warn("leaderboard cache read failed", slog.String("error", err.Error()))
		return load(ctx)
	}
	key := c.key(gen, window, limit)

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var board []domain.LeaderboardEntry
		if jsonErr := json.Unmarshal(data, &board); jsonErr == nil {
			return board, nil
		}
		log.Warn("discarding unreadable leaderboard page", slog.String("key", key))
	case !errors.Is(err, goredis.Nil):
		log.Warn("leaderboard cache read failed", slog.String("error", err.Error()))
		return load(ctx)
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		board, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.store(ctx, gen, key, board)
		return board, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.LeaderboardEntry), nil
}

// store caches a page loaded under gen. A page whose load overlapped an
// invalidation may predate the write that caused it, so it is dropped.
func (c *LeaderboardCache) store(ctx context.Context, gen int64, key string, board []domain.LeaderboardEntry) {
	log := logger.FromContextOrDefault(ctx, c.logger)

	current, err := c.generation(ctx)
	if err != nil || current != gen {
		log.Debug("skipping leaderboard page invalidated during load",
			slog.String("key", key),
			slog.Int64("generation", current))
		return
	}
	data, err := json.Marshal(board)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		log.Warn("leaderboard cache write failed", slog.String("error", err.Error()))
	}
}

// Invalidate implements service.LeaderboardCache. It bumps the generation so
// later reads miss, then deletes the pages it has orphaned.
func (c *LeaderboardCache) Invalidate(ctx context.Context) error {
	if err := c.client.Incr(ctx, c.genKey()).Err(); err != nil {
		return fmt.Errorf("leaderboard cache generation: %w", err)
	}

	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, c.prefix+"page:*", 100).Result()
		if err != nil {
			return fmt.Errorf("leaderboard cache scan: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("leaderboard cache delete: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
