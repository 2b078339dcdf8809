// Package kvstore is the gateway's only durable state: a namespaced
// get/put store with per-key expiry. Components never share a key.
package kvstore

import (
	"context"
	"errors"
	"time"
)

// returned by Get when the key is absent or expired
var ErrNotFound = errors.New("kvstore: key not found")

// simple get/put with expiry
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}

// implemented by backends that offer a provider-native atomic increment.
// the first increment of a key sets its expiry.
type Counter interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// backend names accepted by KV_BACKEND
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)
