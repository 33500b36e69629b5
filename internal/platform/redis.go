package platform

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis wraps the go-redis client. A nil *Redis means caching is off.
type Redis struct {
	*redis.Client
}

// ConnectRedis returns nil, nil when url is empty.
func ConnectRedis(ctx context.Context, url string) (*Redis, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Redis{Client: client}, nil
}

// Cmdable returns nil for a nil receiver so callers can pass it straight to an interface.
func (r *Redis) Cmdable() redis.Cmdable {
	if r == nil {
		return nil
	}
	return r.Client
}

func (r *Redis) Close() error {
	if r == nil {
		return nil
	}
	return r.Client.Close()
}
