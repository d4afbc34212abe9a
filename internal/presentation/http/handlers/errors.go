// Package handlers provides HTTP request handlers for the presentation layer.
package handlers

import (
	"errors"
	"net/http"

	"github.com/AtRiskMedia/splittest-go/internal/application/services"
	"github.com/AtRiskMedia/splittest-go/internal/domain/entities/splittest"
	"github.com/AtRiskMedia/splittest-go/internal/domain/repositories"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/tenant"
	"github.com/AtRiskMedia/splittest-go/internal/presentation/http/middleware"
	"github.com/gin-gonic/gin"
)

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, splittest.ErrExperimentNotFound), errors.Is(err, splittest.ErrCohortNotFound):
		return http.StatusNotFound
	case errors.Is(err, splittest.ErrSlugConflict), errors.Is(err, repositories.ErrUsernameTaken):
		return http.StatusConflict
	case errors.Is(err, splittest.ErrImmutableField),
		errors.Is(err, splittest.ErrInvalidWeight),
		errors.Is(err, splittest.ErrInvalidSlug),
		errors.Is(err, splittest.ErrNameRequired):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrInvalidCredentials):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, logger *logging.ChanneledLogger, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		tenantID := ""
		if tenantCtx, ok := middleware.GetTenantContext(c); ok {
			tenantID = tenantCtx.TenantID
		}
		logger.System().Error("Request failed", "path", c.Request.URL.Path, "tenantId", tenantID, "error", err)
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func requireTenant(c *gin.Context) (*tenant.Context, bool) {
	tenantCtx, exists := middleware.GetTenantContext(c)
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "tenant context not found"})
		return nil, false
	}
	return tenantCtx, true
}
