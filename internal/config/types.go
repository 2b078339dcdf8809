package config

import (
	"time"

	"codeberg.org/freetier/gateway/internal/failpolicy"
)

type Config struct {
	Port        string
	Environment string

	// "*" alone means any origin
	AllowedOrigins []string

	TurnstileEnabled   bool
	TurnstileSecretKey string
	TurnstileVerifyURL string

	DailyLimitEnabled bool
	DailyRequestLimit int
	RateLimitAtomic   bool

	// signs session tokens; independent of the turnstile secret
	SessionTokenSecret string

	ManagedAPIKey   string
	UpstreamBaseURL string
	UpstreamRPS     float64
	PaidModel       string
	FreeModel       string

	BalanceCacheTTL     time.Duration
	BalanceSafetyMargin float64

	// applied to the daily counter and the balance cache
	FailPolicy failpolicy.Policy

	KVBackend   string
	RedisURL    string
	DatabaseURL string

	// ulule formatted rate, e.g. "60-M"
	IPRateLimit string

	// proxies whose X-Forwarded-For is believed; empty trusts none
	TrustedProxies []string

	// "cloudflare" or "google" to take the client IP from the platform header
	TrustedPlatform string
}

func (c *Config) AllowsAnyOrigin() bool {
	for _, origin := range c.AllowedOrigins {
		if origin == "*" {
			return true
		}
	}

	return false
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

type MonitorFlags struct {
	URL      string
	Interval time.Duration
}
