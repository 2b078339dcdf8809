package analyze

import (
	"context"
	"encoding/json"

	"codeberg.org/freetier/gateway/internal/botdefense"
	"codeberg.org/freetier/gateway/internal/keyselect"
	"codeberg.org/freetier/gateway/internal/llm"
	"codeberg.org/freetier/gateway/internal/ratelimit"
)

// request headers; each wins over its body field
const (
	HeaderTurnstileToken = "X-Turnstile-Token"
	HeaderSessionToken   = "X-Session-Token"
	HeaderUserAPIKey     = "X-User-Api-Key"
	HeaderFallbackAPIKey = "X-Fallback-Api-Key"
)

// response headers exposed to browsers
const (
	HeaderKeySource     = "x-key-source"
	HeaderTier          = "x-tier"
	HeaderFreeRemaining = "x-free-remaining"
	HeaderNewSession    = "x-session-token"
)

// x-key-source values
const (
	KeySourceFree = "free"
	KeySourceUser = "user"
)

type Message struct {
	Role    string  `json:"role" binding:"required,oneof=user assistant system"`
	Content *string `json:"content" binding:"required"`
}

// Request represents the body of an analysis call
type Request struct {
	Model       string    `json:"model" binding:"required"`
	Messages    []Message `json:"messages" binding:"required,min=1,dive"`
	Temperature *float64  `json:"temperature,omitempty" binding:"omitempty,gte=0,lte=2"`
	MaxTokens   *int      `json:"max_tokens,omitempty" binding:"omitempty,gt=0"`

	TurnstileToken string `json:"turnstileToken,omitempty"`
	SessionToken   string `json:"sessionToken,omitempty"`
	UserAPIKey     string `json:"userApiKey,omitempty"`
	FallbackAPIKey string `json:"fallbackApiKey,omitempty"`
}

type Defense interface {
	Check(ctx context.Context, proof botdefense.Proof) botdefense.Outcome
}

type DailyLimiter interface {
	Enabled() bool
	CheckAndConsume(ctx context.Context) ratelimit.Result
}

type KeySelector interface {
	ManagedConfigured() bool
	Select(ctx context.Context, req keyselect.Request) keyselect.Selection
}

type Upstream interface {
	ChatCompletion(ctx context.Context, apiKey string, req llm.ChatRequest) (json.RawMessage, error)
}

type Deps struct {
	Defense  Defense
	Limiter  DailyLimiter
	Selector KeySelector
	Upstream Upstream
}
