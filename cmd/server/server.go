package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"codeberg.org/freetier/gateway/internal/balance"
	"codeberg.org/freetier/gateway/internal/botdefense"
	"codeberg.org/freetier/gateway/internal/config"
	"codeberg.org/freetier/gateway/internal/keyselect"
	"codeberg.org/freetier/gateway/internal/kvstore"
	"codeberg.org/freetier/gateway/internal/llm"
	"codeberg.org/freetier/gateway/internal/logger"
	"codeberg.org/freetier/gateway/internal/ratelimit"
	"codeberg.org/freetier/gateway/internal/sessiontoken"
	"codeberg.org/freetier/gateway/internal/turnstile"
)

const (
	// how often expired rows are purged from the postgres store
	janitorInterval = 10 * time.Minute

	burstKeyPrefix = "gateway:burst"
)

// opens the configured store and builds the server around it
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	store, err := kvstore.Open(ctx, kvstore.Options{
		Backend:     cfg.KVBackend,
		RedisURL:    cfg.RedisURL,
		DatabaseURL: cfg.DatabaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.KVBackend, err)
	}

	srv, err := newServerWithStore(cfg, store)
	if err != nil {
		store.Close() //nolint:errcheck,gosec // best-effort cleanup on init failure
		return nil, err
	}

	return srv, nil
}

// wires every component onto an already-open store
func newServerWithStore(cfg *config.Config, store kvstore.Store) (*Server, error) {
	limiterInstance := ratelimit.New(store, ratelimit.Config{
		Enabled: cfg.DailyLimitEnabled,
		Limit:   cfg.DailyRequestLimit,
		Policy:  cfg.FailPolicy,
		Atomic:  cfg.RateLimitAtomic,
	})

	account := balance.NewAccountClient(balance.AccountConfig{
		BaseURL: cfg.UpstreamBaseURL,
		APIKey:  cfg.ManagedAPIKey,
	})

	balanceConfig := balance.DefaultConfig()
	balanceConfig.TTL = cfg.BalanceCacheTTL
	balanceConfig.SafetyMargin = cfg.BalanceSafetyMargin
	balanceConfig.Policy = cfg.FailPolicy

	checker := balance.NewChecker(store, account, balanceConfig)

	selector := keyselect.New(limiterInstance, checker, keyselect.Config{
		ManagedCredential: cfg.ManagedAPIKey,
		PaidModel:         cfg.PaidModel,
		FreeModel:         cfg.FreeModel,
	})

	verifier := turnstile.NewVerifier(turnstile.Config{
		Enabled:   cfg.TurnstileEnabled,
		SecretKey: cfg.TurnstileSecretKey,
		VerifyURL: cfg.TurnstileVerifyURL,
	})

	issuer := sessiontoken.NewIssuer()
	defense := botdefense.New(verifier, issuer, cfg.SessionTokenSecret)

	upstream := llm.NewClient(llm.Config{
		BaseURL:           cfg.UpstreamBaseURL,
		RequestsPerSecond: cfg.UpstreamRPS,
	})

	burst, err := newBurstLimiter(cfg, store)
	if err != nil {
		return nil, err
	}

	router := gin.New()
	if err := configureClientIP(router, cfg); err != nil {
		return nil, err
	}

	bgCtx, stopBackground := context.WithCancel(context.Background())

	if pg, ok := store.(*kvstore.PostgresStore); ok {
		pg.StartJanitor(bgCtx, janitorInterval, func(err error) {
			logger.ErrorErr(err, "failed to purge expired kv rows")
		})
	}

	server := &Server{
		config:         cfg,
		store:          store,
		limiter:        limiterInstance,
		balance:        checker,
		selector:       selector,
		defense:        defense,
		upstream:       upstream,
		burst:          burst,
		router:         router,
		stopBackground: stopBackground,
	}

	RegisterRoutes(router, server)

	if cfg.IsProduction() && cfg.AllowsAnyOrigin() {
		logger.Warn("ALLOWED_ORIGINS is '*' in production; any site can spend the free quota")
	}

	logger.Info("gateway initialized",
		"kv_backend", cfg.KVBackend,
		"upstream", upstream.BaseURL(),
		"turnstile_enabled", cfg.TurnstileEnabled,
		"sessions_enabled", defense.SessionsEnabled(),
		"session_lifetime", issuer.Lifetime().String(),
		"daily_limit_enabled", cfg.DailyLimitEnabled,
		"daily_limit", limiterInstance.Limit(),
		"managed_key", selector.ManagedConfigured(),
		"free_tier", selector.HasFreeTier(),
		"safety_margin", checker.SafetyMargin(),
		"fail_policy", cfg.FailPolicy.String(),
		"trusted_proxies", len(cfg.TrustedProxies),
		"trusted_platform", cfg.TrustedPlatform,
	)

	return server, nil
}

// only configured proxies may set the client IP the burst limiter keys on
func configureClientIP(router *gin.Engine, cfg *config.Config) error {
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return fmt.Errorf("invalid trusted proxies: %w", err)
	}

	switch cfg.TrustedPlatform {
	case config.PlatformCloudflare:
		router.TrustedPlatform = gin.PlatformCloudflare
	case config.PlatformGoogle:
		router.TrustedPlatform = gin.PlatformGoogleAppEngine
	}

	return nil
}

// shares the redis backend when there is one, otherwise keeps buckets in process
func newBurstLimiter(cfg *config.Config, store kvstore.Store) (gin.HandlerFunc, error) {
	rate, err := limiter.NewRateFromFormatted(cfg.IPRateLimit)
	if err != nil {
		return nil, fmt.Errorf("invalid IP rate limit: %w", err)
	}

	var burstStore limiter.Store

	if rs, ok := store.(*kvstore.RedisStore); ok {
		burstStore, err = sredis.NewStoreWithOptions(rs.Client(), limiter.StoreOptions{
			Prefix:   burstKeyPrefix,
			MaxRetry: 3,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis burst store: %w", err)
		}
	} else {
		burstStore = memory.NewStoreWithOptions(limiter.StoreOptions{
			Prefix:          burstKeyPrefix,
			CleanUpInterval: time.Minute,
		})
	}

	return BurstLimiterMiddleware(burstStore, rate, cfg.FailPolicy), nil
}

func (s *Server) Close() error {
	s.stopBackground()
	return s.store.Close()
}
