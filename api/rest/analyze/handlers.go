package analyze

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	apierrors "codeberg.org/freetier/gateway/internal/errors"
	"codeberg.org/freetier/gateway/internal/botdefense"
	"codeberg.org/freetier/gateway/internal/keyselect"
	"codeberg.org/freetier/gateway/internal/llm"
	"codeberg.org/freetier/gateway/internal/logger"
	"codeberg.org/freetier/gateway/internal/ratelimit"
	"github.com/gin-gonic/gin"
)

const maxBodyBytes = 1 << 20

// Handler godoc
// @Summary Proxy a chat completion
// @Description Verifies bot or session proof, applies the daily free-tier limit, picks a credential and model tier, and forwards the request upstream. The upstream JSON is returned unchanged.
// @Tags analyze
// @Accept json
// @Produce json
// @Param X-Turnstile-Token header string false "Turnstile token"
// @Param X-Session-Token header string false "Session token from POST /session"
// @Param X-User-Api-Key header string false "Caller's own upstream key"
// @Param request body Request true "Completion request"
// @Success 200 {object} object
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 402 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Failure 429 {object} errors.ErrorResponse
// @Failure 502 {object} errors.ErrorResponse
// @Router /analyze [post]
func Handler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		log := logger.FromContext(ctx)

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)

		var req Request
		if err := c.ShouldBindJSON(&req); err != nil {
			log.Debug("invalid analyze body", "error", err)
			apierrors.InvalidRequest(c, "model and a non-empty messages array of {role, content} are required")
			return
		}

		if strings.TrimSpace(req.Model) == "" {
			apierrors.InvalidRequest(c, "model must not be blank")
			return
		}

		proof := botdefense.Proof{
			TurnstileToken: headerOr(c, HeaderTurnstileToken, req.TurnstileToken),
			SessionToken:   headerOr(c, HeaderSessionToken, req.SessionToken),
		}

		outcome := deps.Defense.Check(ctx, proof)
		if !outcome.Passed {
			log.Info("bot verification rejected", "method", outcome.Method, "reason", outcome.Reason)
			apierrors.TurnstileFailed(c)
			return
		}

		userKey := headerOr(c, HeaderUserAPIKey, req.UserAPIKey)

		selReq := keyselect.Request{
			UserCredential:     userKey,
			FallbackCredential: headerOr(c, HeaderFallbackAPIKey, req.FallbackAPIKey),
			RequestedModel:     req.Model,
		}

		// only managed-key traffic spends the daily quota
		if userKey == "" && deps.Limiter.Enabled() && deps.Selector.ManagedConfigured() {
			rate := deps.Limiter.CheckAndConsume(ctx)
			if !rate.Allowed && selReq.FallbackCredential == "" {
				apierrors.DailyLimitReached(c, rate.ResetAt)
				return
			}

			selReq.Consumed = &rate
		}

		sel := deps.Selector.Select(ctx, selReq)

		switch sel.Failure {
		case keyselect.FailureNone:
		case keyselect.FailureDailyLimitReached:
			apierrors.DailyLimitReached(c, sel.ResetAt)
			return
		case keyselect.FailureFreeKeyExhausted:
			apierrors.FreeKeyExhausted(c)
			return
		default:
			apierrors.NoAPIKey(c)
			return
		}

		upstreamReq := llm.ChatRequest{
			Model:       sel.ModelID,
			Messages:    toMessages(req.Messages),
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
		}

		if sel.ZeroRetention {
			upstreamReq.Provider = llm.ZeroRetention()
		}

		body, err := deps.Upstream.ChatCompletion(ctx, sel.Credential, upstreamReq)
		if err != nil {
			if errors.Is(err, llm.ErrUpstreamRateLimited) {
				log.Warn("upstream rate limited", "tier", sel.Tier)
				apierrors.DailyLimitReached(c, ratelimit.NextReset(time.Now()))
				return
			}

			apierrors.UpstreamFailed(c, err)
			return
		}

		setProvenance(c, sel)

		if outcome.Minted != nil {
			c.Header(HeaderNewSession, outcome.Minted.Value)
		}

		log.Info("analysis served",
			"tier", sel.Tier,
			"model", sel.ModelID,
			"proof", outcome.Method,
		)

		c.Data(http.StatusOK, "application/json; charset=utf-8", body)
	}
}

func setProvenance(c *gin.Context, sel keyselect.Selection) {
	source := KeySourceUser
	if sel.Origin == keyselect.OriginManaged {
		source = KeySourceFree
	}

	c.Header(HeaderKeySource, source)
	c.Header(HeaderTier, string(sel.Tier))

	if sel.Origin == keyselect.OriginManaged && sel.RemainingToday != nil {
		c.Header(HeaderFreeRemaining, strconv.Itoa(*sel.RemainingToday))
	}
}

func headerOr(c *gin.Context, header, fallback string) string {
	if v := strings.TrimSpace(c.GetHeader(header)); v != "" {
		return v
	}

	return strings.TrimSpace(fallback)
}

func toMessages(in []Message) []llm.Message {
	out := make([]llm.Message, 0, len(in))

	for _, m := range in {
		out = append(out, llm.Message{Role: m.Role, Content: *m.Content})
	}

	return out
}
