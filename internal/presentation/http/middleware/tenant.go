// Package middleware provides HTTP middleware for the presentation layer.
package middleware

import (
	"errors"
	"net/http"
	"time"

	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/tenant"
	"github.com/gin-gonic/gin"
)

const tenantKey = "tenant"

// TenantMiddleware resolves the request's tenant and stores its context.
func TenantMiddleware(tenantManager *tenant.Manager) gin.HandlerFunc {
	logger := tenantManager.GetLogger()

	return func(c *gin.Context) {
		start := time.Now()

		tenantCtx, err := tenantManager.GetContext(c)
		if err != nil {
			switch {
			case errors.Is(err, tenant.ErrMissingTenant):
				logger.Tenant().Warn("Tenant header missing", "path", c.Request.URL.Path)
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "X-Tenant-ID header or tenantId query param is required"})
			case errors.Is(err, tenant.ErrUnknownTenant):
				c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "tenant not found"})
			default:
				logger.Tenant().Error("Tenant context failed", "error", err, "path", c.Request.URL.Path)
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "tenant unavailable"})
			}
			return
		}

		logger.Tenant().Debug("Tenant context resolved successfully",
			"tenantId", tenantCtx.TenantID,
			"duration", time.Since(start),
			"database", tenantCtx.GetDatabaseInfo(),
		)

		SetTenantContext(c, tenantCtx)
		c.Next()
	}
}

// SetTenantContext stores the tenant context on the gin context.
func SetTenantContext(c *gin.Context, tenantCtx *tenant.Context) {
	c.Set(tenantKey, tenantCtx)
}

// GetTenantContext retrieves the tenant context from gin context.
func GetTenantContext(c *gin.Context) (*tenant.Context, bool) {
	tenantCtx, exists := c.Get(tenantKey)
	if !exists {
		return nil, false
	}

	ctx, ok := tenantCtx.(*tenant.Context)
	return ctx, ok
}
