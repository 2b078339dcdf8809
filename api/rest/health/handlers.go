package health

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Handler godoc
// @Summary Liveness probe
// @Description Reports that the process is serving. Touches no dependencies.
// @Tags health
// @Produce json
// @Success 200 {object} Response
// @Router /health [get]
func Handler(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
