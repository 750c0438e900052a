// AngelaMos | 2026
// redis.go

package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flightscheduly/backend/internal/config"
)

const (
	redisClientName     = "flightscheduly-auth"
	redisConnectRetries = 3
	redisPingTimeout    = 5 * time.Second
)

// Redis backs rate limiting. The auth flow itself never depends on it, so a
// Redis outage degrades limits to the in-process fallback.
type Redis struct {
	Client *redis.Client
}

func NewRedis(ctx context.Context, cfg config.RedisConfig) (*Redis, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	opts.ClientName = redisClientName
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.PoolTimeout = 30 * time.Second
	opts.ConnMaxIdleTime = 5 * time.Minute

	client := redis.NewClient(opts)
	r := &Redis{Client: client}

	backoff := 500 * time.Millisecond
	for attempt := 1; ; attempt++ {
		err = r.Ping(ctx)
		if err == nil {
			return r, nil
		}
		if attempt == redisConnectRetries {
			break
		}

		slog.Warn("redis not reachable, retrying",
			"attempt", attempt,
			"error", err,
		)

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			_ = client.Close() //nolint:errcheck // cleanup on cancellation
			return nil, ctx.Err()
		}
	}

	_ = client.Close() //nolint:errcheck // cleanup on connection failure
	return nil, fmt.Errorf("connect redis: %w", err)
}

func (r *Redis) Close() error {
	if r.Client != nil {
		return r.Client.Close()
	}
	return nil
}

func (r *Redis) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()

	if err := r.Client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}

	return nil
}

func (r *Redis) PoolStats() *redis.PoolStats {
	return r.Client.PoolStats()
}
