package errors

import (
	"net/http"
	"time"

	"codeberg.org/freetier/gateway/internal/logger"
	"github.com/gin-gonic/gin"
)

// Error Handling Guidelines:
//
// For HTTP REST handlers and middleware:
//   - Use errors.DailyLimitReached(), errors.InternalError(), etc.
//     These abort the gin chain and write the response
//   - Only InternalError and UpstreamFailed log; the business outcomes are
//     expected traffic
//   - Never put upstream or store error text in a response
//
// For internal packages:
//   - Return wrapped errors with context using fmt.Errorf("context: %w", err)
//   - Infrastructure faults the gateway fails open on are logged where they
//     are swallowed, never surfaced with their own code

// stable error codes
const (
	CodeTurnstileFailed   = "TurnstileFailed"
	CodeDailyLimitReached = "DailyLimitReached"
	CodeFreeKeyExhausted  = "FreeKeyExhausted"
	CodeNoAPIKey          = "NoApiKey"
	CodeInvalidRequest    = "InvalidRequest"
	CodeOriginNotAllowed  = "OriginNotAllowed"
	CodeInternalError     = "InternalError"
	CodeNotFound          = "NotFound"
	CodeMethodNotAllowed  = "MethodNotAllowed"
	CodeTooManyRequests   = "TooManyRequests"
)

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Success:   false,
		Error:     message,
		ErrorCode: code,
	})
}

// returns a 401 when bot or session verification fails
func TurnstileFailed(c *gin.Context) {
	abort(c, http.StatusUnauthorized, CodeTurnstileFailed, "bot verification failed")
}

// returns a 429 with the next reset time
func DailyLimitReached(c *gin.Context, resetAt time.Time) {
	response := ErrorResponse{
		Success:   false,
		Error:     "daily free request limit reached",
		ErrorCode: CodeDailyLimitReached,
	}

	if !resetAt.IsZero() {
		response.ResetAt = resetAt.UTC().Format(time.RFC3339)
	}

	c.AbortWithStatusJSON(http.StatusTooManyRequests, response)
}

// returns a 402 when the managed budget can't serve the request
func FreeKeyExhausted(c *gin.Context) {
	abort(c, http.StatusPaymentRequired, CodeFreeKeyExhausted, "free tier credit exhausted, supply your own API key")
}

// returns a 402 when no credential is available at all
func NoAPIKey(c *gin.Context) {
	abort(c, http.StatusPaymentRequired, CodeNoAPIKey, "no API key available, supply your own API key")
}

// returns a 400 for malformed bodies
func InvalidRequest(c *gin.Context, message string) {
	if message == "" {
		message = "invalid request"
	}

	abort(c, http.StatusBadRequest, CodeInvalidRequest, message)
}

// returns a 403 for origins outside the allow-list
func OriginNotAllowed(c *gin.Context) {
	abort(c, http.StatusForbidden, CodeOriginNotAllowed, "origin not allowed")
}

// returns a 500, logging the cause server-side only
func InternalError(c *gin.Context, message string, err error) {
	if message == "" {
		message = "an error occurred"
	}

	logger.FromContext(c.Request.Context()).Error(message,
		"error", err,
		"category", Category(err),
		"path", c.Request.URL.Path,
		"method", c.Request.Method,
	)

	abort(c, http.StatusInternalServerError, CodeInternalError, "internal error")
}

// returns a 502 for upstream failures; the upstream body is never echoed
func UpstreamFailed(c *gin.Context, err error) {
	logger.FromContext(c.Request.Context()).Error("upstream request failed",
		"error", err,
		"category", Category(err),
		"path", c.Request.URL.Path,
	)

	abort(c, http.StatusBadGateway, CodeInternalError, "upstream request failed")
}

// returns a 429 for per-client bursts
func TooManyRequests(c *gin.Context) {
	abort(c, http.StatusTooManyRequests, CodeTooManyRequests, "too many requests")
}

func NotFound(c *gin.Context) {
	abort(c, http.StatusNotFound, CodeNotFound, "not found")
}

func MethodNotAllowed(c *gin.Context) {
	abort(c, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "method not allowed")
}
