package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/phrazzld/chorepoints/internal/config"
	goredis "github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces every key this application writes.
const KeyPrefix = "chorepoints:"

// NewClient connects to the Redis server named in cfg and verifies the
// connection with a PING.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}
