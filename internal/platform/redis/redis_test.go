package redis

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/chorepoints/internal/domain"
	"github.com/phrazzld/chorepoints/internal/events"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testClient connects to REDIS_ADDR (default localhost:6379) and skips the
// test when nothing is listening.
func testClient(t *testing.T) *goredis.Client {
	t.Helper()

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := goredis.NewClient(&goredis.Options{Addr: addr, DialTimeout: time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("redis not reachable at %s: %v", addr, err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// testPrefix isolates a test's keys from other runs.
func testPrefix() string {
	return KeyPrefix + "test:" + uuid.NewString() + ":"
}

// newTestCache returns a LeaderboardCache under a fresh prefix and removes
// its keys when the test ends.
func newTestCache(t *testing.T) *LeaderboardCache {
	t.Helper()
	client := testClient(t)
	cache := NewLeaderboardCache(client, time.Minute, nil)
	cache.prefix = testPrefix()
	t.Cleanup(func() {
		ctx := context.Background()
		_ = cache.Invalidate(ctx)
		_ = client.Del(ctx, cache.genKey()).Err()
	})
	return cache
}

func TestLeaderboardCache_FetchAndInvalidate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cache := newTestCache(t)

	actor := uuid.New()
	var loads atomic.Int32
	load := func(context.Context) ([]domain.LeaderboardEntry, error) {
		loads.Add(1)
		return []domain.LeaderboardEntry{{Rank: 1, ActorID: actor, TotalPoints: 80}}, nil
	}

	first, err := cache.Fetch(ctx, domain.WindowWeekly, 10, load)
	require.NoError(t, err)
	second, err := cache.Fetch(ctx, domain.WindowWeekly, 10, load)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), loads.Load())

	_, err = cache.Fetch(ctx, domain.WindowMonthly, 10, load)
	require.NoError(t, err)
	assert.Equal(t, int32(2), loads.Load(), "windows are cached separately")

	require.NoError(t, cache.Invalidate(ctx))
	_, err = cache.Fetch(ctx, domain.WindowWeekly, 10, load)
	require.NoError(t, err)
	assert.Equal(t, int32(3), loads.Load())
}

func TestLeaderboardCache_InvalidateDuringLoad(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cache := newTestCache(t)

	before := []domain.LeaderboardEntry{{Rank: 1, ActorID: uuid.New(), TotalPoints: 40}}
	after := []domain.LeaderboardEntry{{Rank: 1, ActorID: uuid.New(), TotalPoints: 41}}
	var loads atomic.Int32
	load := func(ctx context.Context) ([]domain.LeaderboardEntry, error) {
		if loads.Add(1) == 1 {
			// A points write commits and invalidates after this load read
			// the ledger.
			require.NoError(t, cache.Invalidate(ctx))
			return before, nil
		}
		return after, nil
	}

	first, err := cache.Fetch(ctx, domain.WindowWeekly, 10, load)
	require.NoError(t, err)
	assert.Equal(t, before, first)

	exists, err := cache.client.Exists(ctx, cache.key(0, domain.WindowWeekly, 10)).Result()
	require.NoError(t, err)
	assert.Zero(t, exists, "a page loaded across an invalidation is not cached")

	second, err := cache.Fetch(ctx, domain.WindowWeekly, 10, load)
	require.NoError(t, err)
	assert.Equal(t, after, second)
	assert.Equal(t, int32(2), loads.Load())

	third, err := cache.Fetch(ctx, domain.WindowWeekly, 10, load)
	require.NoError(t, err)
	assert.Equal(t, after, third)
	assert.Equal(t, int32(2), loads.Load(), "the fresh page is cached under the new generation")
}

func TestLeaderboardCache_LoadErrorIsNotCached(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cache := newTestCache(t)

	boom := errors.New("database down")
	_, err := cache.Fetch(ctx, domain.WindowAllTime, 5, func(context.Context) ([]domain.LeaderboardEntry, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	board, err := cache.Fetch(ctx, domain.WindowAllTime, 5, func(context.Context) ([]domain.LeaderboardEntry, error) {
		return []domain.LeaderboardEntry{}, nil
	})
	require.NoError(t, err)
	assert.Empty(t, board)
}

func TestLeaderboardCache_FailsOpenWithoutRedis(t *testing.T) {
	t.Parallel()

	client := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewLeaderboardCache(client, time.Minute, nil)

	board, err := cache.Fetch(context.Background(), domain.WindowAllTime, 10,
		func(context.Context) ([]domain.LeaderboardEntry, error) {
			return []domain.LeaderboardEntry{{Rank: 1, ActorID: uuid.New(), TotalPoints: 1}}, nil
		})
	require.NoError(t, err)
	assert.Len(t, board, 1)
	assert.Error(t, cache.Invalidate(context.Background()))
}

func TestNotificationPublisher_HandleNotification(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := testClient(t)
	channel := testPrefix() + "notifications"

	sub := client.Subscribe(ctx, channel)
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	publisher := NewNotificationPublisher(client, channel, nil)
	n := events.NewNotification(uuid.New(), "Task Due Soon", "Your task is due soon.", events.CategoryTaskDue)
	require.NoError(t, publisher.HandleNotification(ctx, n))

	select {
	case msg := <-sub.Channel():
		expected, err := n.Marshal()
		require.NoError(t, err)
		assert.JSONEq(t, string(expected), msg.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("notification was not published")
	}
}

func TestRateLimiter_Allow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	limiter := NewRateLimiter(testClient(t), 3, time.Minute)
	limiter.prefix = testPrefix()
	key := "actor-1"
	t.Cleanup(func() { _ = limiter.Reset(context.Background(), key) })

	for i := 0; i < 3; i++ {
		res, err := limiter.Allow(ctx, key)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d", i)
		assert.Equal(t, 2-i, res.Remaining)
	}

	res, err := limiter.Allow(ctx, key)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.True(t, res.ResetAt.After(time.Now()))

	other, err := limiter.Allow(ctx, "actor-2")
	require.NoError(t, err)
	assert.True(t, other.Allowed, "keys are limited independently")
	_ = limiter.Reset(ctx, "actor-2")

	require.NoError(t, limiter.Reset(ctx, key))
	res, err = limiter.Allow(ctx, key)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestRateLimiter_ConcurrentRequestsRespectLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	limiter := NewRateLimiter(testClient(t), 5, time.Minute)
	limiter.prefix = testPrefix()
	t.Cleanup(func() { _ = limiter.Reset(context.Background(), "burst") })

	var (
		wg      sync.WaitGroup
		allowed atomic.Int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := limiter.Allow(ctx, "burst")
			if assert.NoError(t, err) && res.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(5), allowed.Load())
}
