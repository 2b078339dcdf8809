package main

import (
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"

	"codeberg.org/freetier/gateway/api/rest/analyze"
	apierrors "codeberg.org/freetier/gateway/internal/errors"
	"codeberg.org/freetier/gateway/internal/failpolicy"
	"codeberg.org/freetier/gateway/internal/logger"
)

const headerRequestID = "X-Request-Id"

// headers browsers may read from our responses
var exposedHeaders = []string{
	analyze.HeaderKeySource,
	analyze.HeaderFreeRemaining,
	analyze.HeaderTier,
	analyze.HeaderNewSession,
	strings.ToLower(headerRequestID),
}

// converts panics into a generic 500
func RecoveryMiddleware() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.FromContext(c.Request.Context()).Error("panic recovered",
			"panic", recovered,
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
		)

		c.AbortWithStatusJSON(http.StatusInternalServerError, apierrors.ErrorResponse{
			Success:   false,
			Error:     "internal error",
			ErrorCode: apierrors.CodeInternalError,
		})
	})
}

// tags each request with an ID and a request-scoped logger, then logs the outcome
func RequestLoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(headerRequestID)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.NewString()
		}

		c.Header(headerRequestID, requestID)

		log := logger.With("request_id", requestID)
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context(), log))

		start := time.Now()
		c.Next()

		log.Debug("request completed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

// matches request origins against the configured allow-list
type originPolicy struct {
	any     bool
	allowed map[string]struct{}
}

func newOriginPolicy(origins []string) *originPolicy {
	p := &originPolicy{allowed: make(map[string]struct{}, len(origins))}

	for _, origin := range origins {
		if origin == "*" {
			p.any = true
			continue
		}

		p.allowed[normalizeOrigin(origin)] = struct{}{}
	}

	return p
}

func (p *originPolicy) Allows(origin string) bool {
	if p.any {
		return true
	}

	_, ok := p.allowed[normalizeOrigin(origin)]
	return ok
}

func normalizeOrigin(origin string) string {
	return strings.TrimRight(strings.ToLower(strings.TrimSpace(origin)), "/")
}

// rejects disallowed origins before any quota or balance state is touched.
// Requests without an Origin header are not browser cross-origin calls and
// pass through.
func OriginGuardMiddleware(policy *originPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && !policy.Allows(origin) {
			logger.FromContext(c.Request.Context()).Info("origin rejected", "origin", origin)
			apierrors.OriginNotAllowed(c)
			return
		}

		c.Next()
	}
}

func CORSMiddleware(policy *originPolicy) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOriginFunc: policy.Allows,
		AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{
			"Content-Type",
			analyze.HeaderTurnstileToken,
			analyze.HeaderSessionToken,
			analyze.HeaderUserAPIKey,
			analyze.HeaderFallbackAPIKey,
			headerRequestID,
		},
		ExposeHeaders: exposedHeaders,
		MaxAge:        24 * time.Hour,
	})
}

// answers any OPTIONS request the CORS layer didn't, including unknown paths
func PreflightMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// per-client burst limiter, independent of the daily counter
func BurstLimiterMiddleware(store limiter.Store, rate limiter.Rate, policy failpolicy.Policy) gin.HandlerFunc {
	instance := limiter.New(store, rate)

	return mgin.NewMiddleware(instance,
		mgin.WithLimitReachedHandler(func(c *gin.Context) {
			apierrors.TooManyRequests(c)
		}),
		mgin.WithErrorHandler(func(c *gin.Context, err error) {
			logger.FromContext(c.Request.Context()).Error("burst limiter unavailable",
				"error", err,
				"policy", policy.String(),
			)

			if policy.Allows() {
				c.Next()
				return
			}

			apierrors.InternalError(c, "burst limiter unavailable", err)
		}),
	)
}

func NoRouteHandler(c *gin.Context) {
	apierrors.NotFound(c)
}

// answers 405 with the methods the path does support
func NoMethodHandler(router *gin.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var allowed []string

		for _, route := range router.Routes() {
			if route.Path == c.Request.URL.Path {
				allowed = append(allowed, route.Method)
			}
		}

		if len(allowed) > 0 {
			sort.Strings(allowed)
			c.Header("Allow", strings.Join(allowed, ", "))
		}

		apierrors.MethodNotAllowed(c)
	}
}
