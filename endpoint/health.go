package endpoint

import (
	"time"

	"github.com/ariebrainware/educe-api/config"
	"github.com/ariebrainware/educe-api/middleware"
	"github.com/ariebrainware/educe-api/util"
	"github.com/gin-gonic/gin"
)

// Health godoc
// @Summary      Health check
// @Tags         Health
// @Produce      json
// @Success      200 {object} util.APIResponse
// @Router       /health [get]
func Health(c *gin.Context) {
	status := "OK"
	if db := middleware.GetDB(c); db != nil {
		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			status = "DEGRADED"
		}
	}
	util.CallSuccessOK(c, util.APISuccessParams{
		Msg: "Service is healthy",
		Data: gin.H{
			"status":    status,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"service":   config.LoadConfig().AppName,
		},
	})
}
