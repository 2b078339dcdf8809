// Package ratelimit keeps the gateway-wide daily request counter for the
// free tier.
//
// The counter is a read-then-write, not an atomic increment: N requests that
// race on the same pre-increment value all write count+1, so the ceiling can
// be overshot by up to N-1. That slack is accepted for a free service. Setting
// Config.Atomic switches to the store's native increment when it has one.
package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"codeberg.org/freetier/gateway/internal/failpolicy"
	"codeberg.org/freetier/gateway/internal/kvstore"
	"codeberg.org/freetier/gateway/internal/logger"
)

const (
	// Remaining when limiting is disabled
	Unlimited = -1

	keyDailyCounter = "ratelimit:daily:%s"
	keyAtomicSuffix = ":atomic"
	counterTTL      = 24 * time.Hour
	dateLayout      = "2006-01-02"
)

// stored under the UTC date key
type DailyCounter struct {
	Count int    `json:"count"`
	Date  string `json:"date"`
}

type Config struct {
	Enabled bool
	Limit   int
	Policy  failpolicy.Policy

	// use the store's atomic increment when available
	Atomic bool
}

type Result struct {
	Allowed   bool
	Remaining int
	Limit     int
	ResetAt   time.Time
}

type Limiter struct {
	store  kvstore.Store
	config Config
	now    func() time.Time
}

type Option func(*Limiter)

// overrides the wall clock
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

func New(store kvstore.Store, config Config, opts ...Option) *Limiter {
	l := &Limiter{
		store:  store,
		config: config,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(l)
	}

	if l.config.Atomic {
		if _, ok := store.(kvstore.Counter); !ok {
			logger.Warn("atomic daily counter requested but store has no increment primitive, using read-then-write")
			l.config.Atomic = false
		}
	}

	return l
}

func (l *Limiter) Enabled() bool {
	return l.config.Enabled
}

func (l *Limiter) Limit() int {
	return l.config.Limit
}

// admits and counts one request, or denies it without touching the counter
func (l *Limiter) CheckAndConsume(ctx context.Context) Result {
	now := l.now().UTC()
	resetAt := NextReset(now)

	if !l.config.Enabled {
		return Result{Allowed: true, Remaining: Unlimited, Limit: l.config.Limit, ResetAt: resetAt}
	}

	if l.config.Atomic {
		return l.consumeAtomic(ctx, now, resetAt)
	}

	key := DailyKey(now)

	counter, err := l.read(ctx, key)
	if err != nil {
		return l.onStoreFault(err, "read", key, resetAt)
	}

	if counter.Count >= l.config.Limit {
		return Result{Allowed: false, Remaining: 0, Limit: l.config.Limit, ResetAt: resetAt}
	}

	next := DailyCounter{Count: counter.Count + 1, Date: now.Format(dateLayout)}
	if err := l.write(ctx, key, next); err != nil {
		return l.onStoreFault(err, "write", key, resetAt)
	}

	return Result{
		Allowed:   true,
		Remaining: l.config.Limit - next.Count,
		Limit:     l.config.Limit,
		ResetAt:   resetAt,
	}
}

// reports the current state without consuming
func (l *Limiter) Status(ctx context.Context) Result {
	now := l.now().UTC()
	resetAt := NextReset(now)

	if !l.config.Enabled {
		return Result{Allowed: true, Remaining: Unlimited, Limit: l.config.Limit, ResetAt: resetAt}
	}

	key := DailyKey(now)
	if l.config.Atomic {
		key += keyAtomicSuffix
	}

	counter, err := l.read(ctx, key)
	if err != nil {
		return l.onStoreFault(err, "read", key, resetAt)
	}

	remaining := l.config.Limit - counter.Count
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:   remaining > 0,
		Remaining: remaining,
		Limit:     l.config.Limit,
		ResetAt:   resetAt,
	}
}

func (l *Limiter) consumeAtomic(ctx context.Context, now, resetAt time.Time) Result {
	key := DailyKey(now) + keyAtomicSuffix

	n, err := l.store.(kvstore.Counter).Incr(ctx, key, counterTTL)
	if err != nil {
		return l.onStoreFault(err, "increment", key, resetAt)
	}

	if n > int64(l.config.Limit) {
		return Result{Allowed: false, Remaining: 0, Limit: l.config.Limit, ResetAt: resetAt}
	}

	return Result{
		Allowed:   true,
		Remaining: l.config.Limit - int(n),
		Limit:     l.config.Limit,
		ResetAt:   resetAt,
	}
}

func (l *Limiter) onStoreFault(err error, op, key string, resetAt time.Time) Result {
	logger.ErrorErr(err, "daily counter unavailable",
		"op", op,
		"key", key,
		"policy", l.config.Policy.String(),
	)

	if l.config.Policy.Allows() {
		return Result{Allowed: true, Remaining: l.config.Limit, Limit: l.config.Limit, ResetAt: resetAt}
	}

	return Result{Allowed: false, Remaining: 0, Limit: l.config.Limit, ResetAt: resetAt}
}

// a missing key is a zero count; atomic keys hold a bare integer
func (l *Limiter) read(ctx context.Context, key string) (DailyCounter, error) {
	raw, err := l.store.Get(ctx, key)
	if errors.Is(err, kvstore.ErrNotFound) {
		return DailyCounter{}, nil
	}

	if err != nil {
		return DailyCounter{}, err
	}

	var counter DailyCounter
	if err := json.Unmarshal(raw, &counter); err == nil {
		return counter, nil
	}

	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return DailyCounter{}, fmt.Errorf("failed to decode daily counter: %w", err)
	}

	return DailyCounter{Count: n}, nil
}

func (l *Limiter) write(ctx context.Context, key string, counter DailyCounter) error {
	raw, err := json.Marshal(counter)
	if err != nil {
		return fmt.Errorf("failed to encode daily counter: %w", err)
	}

	return l.store.Put(ctx, key, raw, counterTTL)
}

// store key for the UTC calendar day containing t
func DailyKey(t time.Time) string {
	return fmt.Sprintf(keyDailyCounter, t.UTC().Format(dateLayout))
}

// next UTC midnight strictly after t
func NextReset(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}
