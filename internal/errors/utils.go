package errors

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
)

// error categories for log classification
const (
	CategoryStore    = "store"
	CategoryNetwork  = "network"
	CategoryUpstream = "upstream"
	CategoryTimeout  = "timeout"
	CategoryCanceled = "canceled"
	CategoryUnknown  = "unknown"
)

// buckets an error for logs; never shown to clients
func Category(err error) string {
	if err == nil {
		return CategoryUnknown
	}

	// context errors
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}

	if errors.Is(err, context.Canceled) {
		return CategoryCanceled
	}

	// store errors
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return CategoryStore
	}

	var redisErr redis.Error
	if errors.As(err, &redisErr) {
		return CategoryStore
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return CategoryTimeout
		}

		return CategoryNetwork
	}

	// fallback to string matching for unknown error types
	errMsg := strings.ToLower(err.Error())

	if strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "deadline") {
		return CategoryTimeout
	}

	if strings.Contains(errMsg, "upstream") {
		return CategoryUpstream
	}

	if strings.Contains(errMsg, "connection") || strings.Contains(errMsg, "dial") {
		return CategoryNetwork
	}

	return CategoryUnknown
}
