package middleware

import (
	"fmt"
	"time"

	"github.com/ariebrainware/educe-api/util"
	"github.com/gin-gonic/gin"
)

// EndpointCallLogger records every request as an activity event once the
// handler finished.
func EndpointCallLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()

		userID, _ := GetUserID(c)
		role, _ := GetRole(c)

		details := map[string]interface{}{
			"method":      c.Request.Method,
			"path":        c.FullPath(),
			"raw_path":    c.Request.URL.Path,
			"status":      status,
			"duration_ms": time.Since(start).Milliseconds(),
		}
		if q := c.Request.URL.RawQuery; q != "" {
			details["query"] = q
		}

		util.LogActivity(util.ActivityEvent{
			Type:      util.EventEndpointCall,
			UserID:    userID,
			Role:      role,
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
			Message:   fmt.Sprintf("%s %s -> %d", c.Request.Method, c.Request.URL.Path, status),
			Details:   details,
		})
	}
}
