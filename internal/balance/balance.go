// Package balance tracks the remaining spend on the managed key. The last
// snapshot is cached in the key-value store; the account API is only called
// once the cached copy is older than the TTL, and a stale copy is preferred
// over nothing when the account API is down.
package balance

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
	keySnapshot = "balance:snapshot"

	DefaultTTL                  = 5 * time.Minute
	DefaultSafetyMargin         = 0.50
	DefaultPlaceholderRemaining = 1.00
)

// remaining spend as of CheckedAt, in USD
type Snapshot struct {
	Remaining float64   `json:"remaining"`
	Limit     float64   `json:"limit"`
	Usage     float64   `json:"usage"`
	CheckedAt time.Time `json:"checkedAt"`
}

type Config struct {
	// how long a cached snapshot is served without asking upstream
	TTL time.Duration

	// balances at or below this are treated as exhausted
	SafetyMargin float64

	// Remaining reported when failing open with no snapshot at all
	PlaceholderRemaining float64

	Policy failpolicy.Policy
}

func DefaultConfig() Config {
	return Config{
		TTL:                  DefaultTTL,
		SafetyMargin:         DefaultSafetyMargin,
		PlaceholderRemaining: DefaultPlaceholderRemaining,
		Policy:               failpolicy.FailOpen,
	}
}

type Result struct {
	Available bool
	Remaining float64
	Limit     float64
	Cached    bool
	CheckedAt time.Time

	// false when Remaining is a placeholder
	Known bool
}

type Checker struct {
	store   kvstore.Store
	fetcher Fetcher
	config  Config
	now     func() time.Time
}

type Option func(*Checker)

func WithClock(now func() time.Time) Option {
	return func(c *Checker) {
		c.now = now
	}
}

func NewChecker(store kvstore.Store, fetcher Fetcher, config Config, opts ...Option) *Checker {
	if config.TTL <= 0 {
		config.TTL = DefaultTTL
	}

	c := &Checker{
		store:   store,
		fetcher: fetcher,
		config:  config,
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// the exhaustion threshold in USD
func (c *Checker) SafetyMargin() float64 {
	return c.config.SafetyMargin
}

func (c *Checker) Check(ctx context.Context) Result {
	cached, err := c.readCache(ctx)
	if err != nil {
		logger.ErrorErr(err, "balance cache read failed")
	}

	if cached != nil && c.now().Sub(cached.CheckedAt) < c.config.TTL {
		return c.result(cached, true)
	}

	fresh, err := c.fetcher.FetchBalance(ctx)
	if err == nil {
		if werr := c.writeCache(ctx, fresh); werr != nil {
			logger.ErrorErr(werr, "balance cache write failed")
		}
		return c.result(fresh, false)
	}

	if cached != nil {
		logger.Warn("account API unavailable, serving stale balance",
			"error", err,
			"age", c.now().Sub(cached.CheckedAt).String(),
		)
		return c.result(cached, true)
	}

	logger.ErrorErr(err, "account API unavailable and no cached balance",
		"policy", c.config.Policy.String(),
	)

	return Result{
		Available: c.config.Policy.Allows(),
		Remaining: c.config.PlaceholderRemaining,
		Cached:    false,
		CheckedAt: c.now().UTC(),
		Known:     false,
	}
}

func (c *Checker) result(s *Snapshot, cached bool) Result {
	return Result{
		Available: s.Remaining > c.config.SafetyMargin,
		Remaining: s.Remaining,
		Limit:     s.Limit,
		Cached:    cached,
		CheckedAt: s.CheckedAt,
		Known:     true,
	}
}

func (c *Checker) readCache(ctx context.Context) (*Snapshot, error) {
	raw, err := c.store.Get(ctx, keySnapshot)
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	var snapshot Snapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode balance snapshot: %w", err)
	}

	return &snapshot, nil
}

func (c *Checker) writeCache(ctx context.Context, s *Snapshot) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode balance snapshot: %w", err)
	}

	// kept without expiry; freshness is judged by CheckedAt so an outage of
	// any length still falls back to the last known balance
	return c.store.Put(ctx, keySnapshot, raw, 0)
}
