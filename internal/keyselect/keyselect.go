// Package keyselect decides which credential and model tier serve a
// request. Every call is a fresh decision derived from the current daily
// counter and balance snapshot; there is no persisted "current tier".
package keyselect

import (
	"context"
	"time"

	"codeberg.org/freetier/gateway/internal/balance"
	"codeberg.org/freetier/gateway/internal/ratelimit"
)

type Tier string

const (
	TierPaidCentral  Tier = "paid-central"
	TierFree         Tier = "free"
	TierUserSupplied Tier = "user-supplied"
)

type Origin string

const (
	OriginManaged      Origin = "managed"
	OriginUserSupplied Origin = "user-supplied"
	OriginNone         Origin = "none"
)

type Failure string

const (
	FailureNone              Failure = ""
	FailureNoCredential      Failure = "NoCredential"
	FailureDailyLimitReached Failure = "DailyLimitReached"
	FailureFreeKeyExhausted  Failure = "FreeKeyExhausted"
)

type RateLimiter interface {
	CheckAndConsume(ctx context.Context) ratelimit.Result
}

type BalanceChecker interface {
	Check(ctx context.Context) balance.Result
}

type Config struct {
	ManagedCredential string

	// zero-retention model served while the paid balance lasts; empty means
	// the caller's requested model
	PaidModel string

	// degraded model served once the balance is exhausted; empty means
	// there is no free tier and exhaustion is a failure
	FreeModel string
}

type Request struct {
	// supplied directly by the caller; always wins
	UserCredential string

	// only used when the managed key can't serve the request
	FallbackCredential string

	RequestedModel string

	// set when the daily limiter already ran for this request
	Consumed *ratelimit.Result
}

type Selection struct {
	Credential     string
	Origin         Origin
	Tier           Tier
	ModelID        string
	ZeroRetention  bool
	RemainingToday *int
	Failure        Failure

	// only set for daily limit decisions
	ResetAt time.Time
}

func (s Selection) OK() bool {
	return s.Failure == FailureNone
}

type Selector struct {
	limiter RateLimiter
	balance BalanceChecker
	config  Config
}

func New(limiter RateLimiter, checker BalanceChecker, config Config) *Selector {
	return &Selector{
		limiter: limiter,
		balance: checker,
		config:  config,
	}
}

func (s *Selector) ManagedConfigured() bool {
	return s.config.ManagedCredential != ""
}

// reports whether an exhausted balance degrades instead of failing
func (s *Selector) HasFreeTier() bool {
	return s.config.FreeModel != ""
}

func (s *Selector) Select(ctx context.Context, req Request) Selection {
	if req.UserCredential != "" {
		return userSupplied(req.UserCredential, req.RequestedModel)
	}

	if s.config.ManagedCredential == "" {
		if req.FallbackCredential != "" {
			return userSupplied(req.FallbackCredential, req.RequestedModel)
		}

		return Selection{Origin: OriginNone, Failure: FailureNoCredential}
	}

	rate := req.Consumed
	if rate == nil {
		r := s.limiter.CheckAndConsume(ctx)
		rate = &r
	}

	if !rate.Allowed {
		if req.FallbackCredential != "" {
			return userSupplied(req.FallbackCredential, req.RequestedModel)
		}

		return Selection{
			Origin:  OriginNone,
			Failure: FailureDailyLimitReached,
			ResetAt: rate.ResetAt,
		}
	}

	remaining := remainingToday(rate)

	bal := s.balance.Check(ctx)
	if bal.Available {
		return Selection{
			Credential:     s.config.ManagedCredential,
			Origin:         OriginManaged,
			Tier:           TierPaidCentral,
			ModelID:        firstNonEmpty(s.config.PaidModel, req.RequestedModel),
			ZeroRetention:  true,
			RemainingToday: remaining,
		}
	}

	if req.FallbackCredential != "" {
		return userSupplied(req.FallbackCredential, req.RequestedModel)
	}

	if s.config.FreeModel == "" {
		return Selection{Origin: OriginNone, Failure: FailureFreeKeyExhausted}
	}

	return Selection{
		Credential:     s.config.ManagedCredential,
		Origin:         OriginManaged,
		Tier:           TierFree,
		ModelID:        s.config.FreeModel,
		RemainingToday: remaining,
	}
}

func userSupplied(credential, model string) Selection {
	return Selection{
		Credential: credential,
		Origin:     OriginUserSupplied,
		Tier:       TierUserSupplied,
		ModelID:    model,
	}
}

// nil when the limiter is disabled
func remainingToday(r *ratelimit.Result) *int {
	if r.Remaining == ratelimit.Unlimited {
		return nil
	}

	remaining := r.Remaining
	return &remaining
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}
