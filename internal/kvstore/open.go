package kvstore

import (
	"context"
	"fmt"
)

// connection settings for Open
type Options struct {
	Backend     string
	RedisURL    string
	DatabaseURL string
}

// builds the configured backend
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case BackendMemory, "":
		return NewMemoryStore(), nil
	case BackendRedis:
		if opts.RedisURL == "" {
			return nil, fmt.Errorf("redis backend requires a redis URL")
		}
		return NewRedisStoreFromURL(opts.RedisURL)
	case BackendPostgres:
		if opts.DatabaseURL == "" {
			return nil, fmt.Errorf("postgres backend requires a database URL")
		}
		return NewPostgresStoreFromURL(ctx, opts.DatabaseURL)
	default:
		return nil, fmt.Errorf("unsupported kv backend: %s", opts.Backend)
	}
}
