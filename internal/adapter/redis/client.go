package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

// NewClient parses a redis:// URL, installs the metrics hook when an observer
// is given followed by the circuit breaker, and verifies the connection.
func NewClient(ctx context.Context, redisURL string, observer CommandObserver) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	rdb := goredis.NewClient(opts)
	if observer != nil {
		rdb.AddHook(&MetricsHook{observer: observer})
	}
	rdb.AddHook(NewBreakerHook())

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return rdb, nil
}
