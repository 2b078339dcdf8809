package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/freetier/gateway/internal/failpolicy"
	"codeberg.org/freetier/gateway/internal/kvstore"
)

func lookup(env map[string]string) func(string) string {
	return func(key string) string { return env[key] }
}

var strongSecret = strings.Repeat("s", 32)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse(lookup(nil))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.True(t, cfg.AllowsAnyOrigin())
	assert.False(t, cfg.TurnstileEnabled)
	assert.True(t, cfg.DailyLimitEnabled)
	assert.Equal(t, 500, cfg.DailyRequestLimit)
	assert.False(t, cfg.RateLimitAtomic)
	assert.Equal(t, 5*time.Minute, cfg.BalanceCacheTTL)
	assert.Equal(t, 0.50, cfg.BalanceSafetyMargin)
	assert.Equal(t, failpolicy.FailOpen, cfg.FailPolicy)
	assert.Equal(t, kvstore.BackendMemory, cfg.KVBackend)
	assert.Equal(t, "60-M", cfg.IPRateLimit)
	assert.Empty(t, cfg.TrustedProxies, "no proxy is trusted unless configured")
	assert.Empty(t, cfg.TrustedPlatform)
	assert.False(t, cfg.IsProduction())
}

func TestParse_FullEnvironment(t *testing.T) {
	cfg, err := Parse(lookup(map[string]string{
		"PORT":                  "9090",
		"ENVIRONMENT":           "production",
		"ALLOWED_ORIGINS":       "https://app.example, https://beta.example ,",
		"TURNSTILE_SECRET_KEY":  "ts-secret",
		"DAILY_REQUEST_LIMIT":   "25",
		"RATE_LIMIT_ATOMIC":     "true",
		"SESSION_TOKEN_SECRET":  strongSecret,
		"MANAGED_API_KEY":       "sk-managed",
		"PAID_MODEL":            "vendor/paid",
		"FREE_MODEL":            "vendor/free:free",
		"BALANCE_CACHE_TTL":     "90",
		"BALANCE_SAFETY_MARGIN": "1.25",
		"FAIL_POLICY":           "closed",
		"KV_BACKEND":            "Redis",
		"REDIS_URL":             "redis://localhost:6379/0",
		"IP_RATE_LIMIT":         "10-S",
		"UPSTREAM_RPS":          "2.5",
		"TRUSTED_PROXIES":       "10.0.0.0/8, 192.0.2.7",
		"TRUSTED_PLATFORM":      "Cloudflare",
	}))
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, []string{"https://app.example", "https://beta.example"}, cfg.AllowedOrigins)
	assert.False(t, cfg.AllowsAnyOrigin())
	assert.True(t, cfg.TurnstileEnabled, "a provisioned secret turns verification on")
	assert.Equal(t, 25, cfg.DailyRequestLimit)
	assert.True(t, cfg.RateLimitAtomic)
	assert.Equal(t, 90*time.Second, cfg.BalanceCacheTTL)
	assert.Equal(t, 1.25, cfg.BalanceSafetyMargin)
	assert.Equal(t, failpolicy.FailClosed, cfg.FailPolicy)
	assert.Equal(t, kvstore.BackendRedis, cfg.KVBackend)
	assert.Equal(t, 2.5, cfg.UpstreamRPS)
	assert.Equal(t, []string{"10.0.0.0/8", "192.0.2.7"}, cfg.TrustedProxies)
	assert.Equal(t, PlatformCloudflare, cfg.TrustedPlatform)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"turnstile without secret", map[string]string{"TURNSTILE_ENABLED": "true"}},
		{"weak session secret", map[string]string{"SESSION_TOKEN_SECRET": "short"}},
		{"zero limit", map[string]string{"DAILY_REQUEST_LIMIT": "0"}},
		{"non-numeric limit", map[string]string{"DAILY_REQUEST_LIMIT": "lots"}},
		{"bad bool", map[string]string{"DAILY_LIMIT_ENABLED": "sometimes"}},
		{"bad port", map[string]string{"PORT": "http"}},
		{"bad ttl", map[string]string{"BALANCE_CACHE_TTL": "soon"}},
		{"negative margin", map[string]string{"BALANCE_SAFETY_MARGIN": "-1"}},
		{"unknown backend", map[string]string{"KV_BACKEND": "etcd"}},
		{"redis without url", map[string]string{"KV_BACKEND": "redis"}},
		{"postgres without url", map[string]string{"KV_BACKEND": "postgres"}},
		{"bad ip rate", map[string]string{"IP_RATE_LIMIT": "fast"}},
		{"bad fail policy", map[string]string{"FAIL_POLICY": "maybe"}},
		{"zero upstream rps", map[string]string{"UPSTREAM_RPS": "0"}},
		{"bad trusted proxy", map[string]string{"TRUSTED_PROXIES": "proxy.internal"}},
		{"unknown platform", map[string]string{"TRUSTED_PLATFORM": "heroku"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(lookup(tt.env))
			assert.Error(t, err)
		})
	}
}

func TestParse_LimitDisabledAllowsZero(t *testing.T) {
	cfg, err := Parse(lookup(map[string]string{
		"DAILY_LIMIT_ENABLED": "false",
		"DAILY_REQUEST_LIMIT": "0",
	}))
	require.NoError(t, err)
	assert.False(t, cfg.DailyLimitEnabled)
}

func TestParseMonitorFlags(t *testing.T) {
	flags := parseMonitorFlags([]string{"-url", "https://gw.example", "-interval", "10s"})
	assert.Equal(t, "https://gw.example", flags.URL)
	assert.Equal(t, 10*time.Second, flags.Interval)

	flags = parseMonitorFlags([]string{"-interval", "10ms"})
	assert.Equal(t, time.Second, flags.Interval)
}
