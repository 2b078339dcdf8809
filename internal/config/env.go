package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/ulule/limiter/v3"

	"codeberg.org/freetier/gateway/internal/balance"
	"codeberg.org/freetier/gateway/internal/failpolicy"
	"codeberg.org/freetier/gateway/internal/kvstore"
	"codeberg.org/freetier/gateway/internal/sessiontoken"
)

// TRUSTED_PLATFORM values
const (
	PlatformCloudflare = "cloudflare"
	PlatformGoogle     = "google"
)

const (
	defaultPort              = "8080"
	defaultDailyRequestLimit = 500
	defaultIPRateLimit       = "60-M"
	defaultUpstreamRPS       = 50
)

// loads configuration from environment variables
func LoadEnvironmentVariables() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		_ = err // not an error - production environments may not have .env file
	}

	return Parse(os.Getenv)
}

// builds and validates a Config from a getenv-style lookup
func Parse(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		Port:               getenv("PORT"),
		Environment:        getenv("ENVIRONMENT"),
		TurnstileSecretKey: getenv("TURNSTILE_SECRET_KEY"),
		TurnstileVerifyURL: getenv("TURNSTILE_VERIFY_URL"),
		SessionTokenSecret: getenv("SESSION_TOKEN_SECRET"),
		ManagedAPIKey:      getenv("MANAGED_API_KEY"),
		UpstreamBaseURL:    getenv("UPSTREAM_BASE_URL"),
		PaidModel:          getenv("PAID_MODEL"),
		FreeModel:          getenv("FREE_MODEL"),
		KVBackend:          strings.ToLower(getenv("KV_BACKEND")),
		RedisURL:           getenv("REDIS_URL"),
		DatabaseURL:        getenv("DATABASE_URL"),
		IPRateLimit:        getenv("IP_RATE_LIMIT"),
		TrustedProxies:     splitList(getenv("TRUSTED_PROXIES")),
		TrustedPlatform:    strings.ToLower(getenv("TRUSTED_PLATFORM")),
	}

	if cfg.Port == "" {
		cfg.Port = defaultPort
	}

	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	if cfg.KVBackend == "" {
		cfg.KVBackend = kvstore.BackendMemory
	}

	if cfg.IPRateLimit == "" {
		cfg.IPRateLimit = defaultIPRateLimit
	}

	cfg.AllowedOrigins = splitList(getenv("ALLOWED_ORIGINS"))
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}

	var err error

	// turnstile defaults to on whenever a secret is provisioned
	if cfg.TurnstileEnabled, err = parseBool(getenv, "TURNSTILE_ENABLED", cfg.TurnstileSecretKey != ""); err != nil {
		return nil, err
	}

	if cfg.DailyLimitEnabled, err = parseBool(getenv, "DAILY_LIMIT_ENABLED", true); err != nil {
		return nil, err
	}

	if cfg.RateLimitAtomic, err = parseBool(getenv, "RATE_LIMIT_ATOMIC", false); err != nil {
		return nil, err
	}

	if cfg.DailyRequestLimit, err = parseInt(getenv, "DAILY_REQUEST_LIMIT", defaultDailyRequestLimit); err != nil {
		return nil, err
	}

	if cfg.UpstreamRPS, err = parseFloat(getenv, "UPSTREAM_RPS", defaultUpstreamRPS); err != nil {
		return nil, err
	}

	if cfg.BalanceSafetyMargin, err = parseFloat(getenv, "BALANCE_SAFETY_MARGIN", balance.DefaultSafetyMargin); err != nil {
		return nil, err
	}

	if cfg.BalanceCacheTTL, err = parseDuration(getenv, "BALANCE_CACHE_TTL", balance.DefaultTTL); err != nil {
		return nil, err
	}

	if cfg.FailPolicy, err = failpolicy.Parse(getenv("FAIL_POLICY")); err != nil {
		return nil, fmt.Errorf("FAIL_POLICY: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("PORT must be a number, got %q", c.Port)
	}

	if c.TurnstileEnabled && c.TurnstileSecretKey == "" {
		return fmt.Errorf("TURNSTILE_SECRET_KEY environment variable is required when TURNSTILE_ENABLED is true")
	}

	if c.SessionTokenSecret != "" && len(c.SessionTokenSecret) < sessiontoken.MinSecretLength {
		return fmt.Errorf("SESSION_TOKEN_SECRET must be at least %d bytes", sessiontoken.MinSecretLength)
	}

	if c.DailyLimitEnabled && c.DailyRequestLimit <= 0 {
		return fmt.Errorf("DAILY_REQUEST_LIMIT must be positive when DAILY_LIMIT_ENABLED is true")
	}

	if c.BalanceSafetyMargin < 0 {
		return fmt.Errorf("BALANCE_SAFETY_MARGIN must not be negative")
	}

	if c.BalanceCacheTTL <= 0 {
		return fmt.Errorf("BALANCE_CACHE_TTL must be positive")
	}

	if c.UpstreamRPS <= 0 {
		return fmt.Errorf("UPSTREAM_RPS must be positive")
	}

	switch c.KVBackend {
	case kvstore.BackendMemory:
	case kvstore.BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL environment variable is required for the redis backend")
		}
	case kvstore.BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL environment variable is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown KV_BACKEND %q", c.KVBackend)
	}

	if _, err := limiter.NewRateFromFormatted(c.IPRateLimit); err != nil {
		return fmt.Errorf("IP_RATE_LIMIT: %w", err)
	}

	for _, proxy := range c.TrustedProxies {
		if net.ParseIP(proxy) == nil {
			if _, _, err := net.ParseCIDR(proxy); err != nil {
				return fmt.Errorf("TRUSTED_PROXIES: %q is not an IP or CIDR", proxy)
			}
		}
	}

	switch c.TrustedPlatform {
	case "", PlatformCloudflare, PlatformGoogle:
	default:
		return fmt.Errorf("unknown TRUSTED_PLATFORM %q", c.TrustedPlatform)
	}

	return nil
}

func splitList(value string) []string {
	var out []string

	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}

	return out
}

func parseBool(getenv func(string) string, key string, fallback bool) (bool, error) {
	raw := getenv(key)
	if raw == "" {
		return fallback, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", key, raw)
	}

	return val, nil
}

func parseInt(getenv func(string) string, key string, fallback int) (int, error) {
	raw := getenv(key)
	if raw == "" {
		return fallback, nil
	}

	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, raw)
	}

	return val, nil
}

func parseFloat(getenv func(string) string, key string, fallback float64) (float64, error) {
	raw := getenv(key)
	if raw == "" {
		return fallback, nil
	}

	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number, got %q", key, raw)
	}

	return val, nil
}

// accepts Go durations ("5m") or plain seconds ("300")
func parseDuration(getenv func(string) string, key string, fallback time.Duration) (time.Duration, error) {
	raw := getenv(key)
	if raw == "" {
		return fallback, nil
	}

	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration, got %q", key, raw)
	}

	return val, nil
}
