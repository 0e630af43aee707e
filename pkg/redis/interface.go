package redis

import (
	"context"
	"time"
)

//go:generate mockgen -source=interface.go -destination=mock/interface_mock.go -package=mock

// Client is the interface for the Redis operations used by the engine.
type Client interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Ping(ctx context.Context) error

	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Del(ctx context.Context, keys ...string) (int64, error)
	HSet(ctx context.Context, key string, values map[string]any) (int64, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
}
