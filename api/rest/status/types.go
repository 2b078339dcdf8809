package status

import (
	"context"

	"codeberg.org/freetier/gateway/internal/balance"
	"codeberg.org/freetier/gateway/internal/ratelimit"
)

// Response is the public-safe view of the free tier. Dollar amounts are
// never included.
type Response struct {
	FreeAvailable        bool   `json:"freeAvailable"`
	DailyRemaining       *int   `json:"dailyRemaining"` // null when limiting is disabled
	DailyLimit           *int   `json:"dailyLimit"`
	BalanceKnown         bool   `json:"balanceKnown"`
	ResetAt              string `json:"resetAt"`
	Tier                 string `json:"tier"`
	ZeroRetentionEnabled bool   `json:"zeroRetentionEnabled"`
}

type DailyLimiter interface {
	Enabled() bool
	Status(ctx context.Context) ratelimit.Result
}

type BalanceChecker interface {
	Check(ctx context.Context) balance.Result
}

type Tiering interface {
	ManagedConfigured() bool
	HasFreeTier() bool
}

type Deps struct {
	Limiter DailyLimiter
	Balance BalanceChecker
	Tiering Tiering
}
