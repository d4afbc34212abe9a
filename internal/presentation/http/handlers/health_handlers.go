package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// GetHealth handles GET /api/v1/health
func GetHealth(c *gin.Context) {
	tenantCtx, ok := requireTenant(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	start := time.Now()
	if err := tenantCtx.Database.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"tenantId": tenantCtx.TenantID,
			"database": gin.H{"ok": false, "error": err.Error()},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"tenantId": tenantCtx.TenantID,
		"database": gin.H{
			"ok":      true,
			"driver":  tenantCtx.Database.Driver,
			"latency": time.Since(start).String(),
		},
	})
}
