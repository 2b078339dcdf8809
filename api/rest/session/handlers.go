package session

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"codeberg.org/freetier/gateway/api/rest/analyze"
	"codeberg.org/freetier/gateway/internal/botdefense"
	apierrors "codeberg.org/freetier/gateway/internal/errors"
	"github.com/gin-gonic/gin"
)

const maxBodyBytes = 16 << 10

// Handler godoc
// @Summary Exchange a Turnstile token for a session token
// @Description Verifies one Turnstile token and returns a short-lived session token that covers the parallel /analyze calls of one document.
// @Tags session
// @Accept json
// @Produce json
// @Param X-Turnstile-Token header string false "Turnstile token"
// @Param request body Request false "Turnstile token in the body"
// @Success 200 {object} Response
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /session [post]
func Handler(exchanger Exchanger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)

		var req Request
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			apierrors.InvalidRequest(c, "body must be a JSON object")
			return
		}

		token := strings.TrimSpace(c.GetHeader(analyze.HeaderTurnstileToken))
		if token == "" {
			token = strings.TrimSpace(req.TurnstileToken)
		}

		minted, err := exchanger.Exchange(c.Request.Context(), token)

		switch {
		case errors.Is(err, botdefense.ErrSessionsDisabled):
			apierrors.NotFound(c)
			return
		case errors.Is(err, botdefense.ErrVerificationFailed):
			apierrors.TurnstileFailed(c)
			return
		case err != nil:
			apierrors.InternalError(c, "failed to issue session token", err)
			return
		}

		c.JSON(http.StatusOK, Response{
			Success:      true,
			SessionToken: minted.Value,
			ExpiresAt:    minted.ExpiresAt.UTC().Format(time.RFC3339),
		})
	}
}
