package status

import (
	"net/http"
	"time"

	"codeberg.org/freetier/gateway/internal/keyselect"
	"github.com/gin-gonic/gin"
)

// Handler godoc
// @Summary Free tier status
// @Description Read-only summary of today's free quota and the tier a managed request would get. Never consumes quota.
// @Tags status
// @Produce json
// @Success 200 {object} Response
// @Router /status [get]
func Handler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		rate := deps.Limiter.Status(ctx)

		resp := Response{
			ResetAt: rate.ResetAt.UTC().Format(time.RFC3339),
			Tier:    string(keyselect.TierUserSupplied),
		}

		if deps.Limiter.Enabled() {
			remaining, limit := rate.Remaining, rate.Limit
			resp.DailyRemaining = &remaining
			resp.DailyLimit = &limit
		}

		if !deps.Tiering.ManagedConfigured() {
			c.JSON(http.StatusOK, resp)
			return
		}

		bal := deps.Balance.Check(ctx)
		resp.BalanceKnown = bal.Known

		switch {
		case bal.Available:
			resp.Tier = string(keyselect.TierPaidCentral)
			resp.ZeroRetentionEnabled = true
		case deps.Tiering.HasFreeTier():
			resp.Tier = string(keyselect.TierFree)
		}

		resp.FreeAvailable = rate.Allowed && resp.Tier != string(keyselect.TierUserSupplied)

		c.JSON(http.StatusOK, resp)
	}
}
