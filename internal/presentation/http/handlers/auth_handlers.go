package handlers

import (
	"net/http"
	"time"

	"github.com/AtRiskMedia/splittest-go/internal/application/services"
	"github.com/AtRiskMedia/splittest-go/internal/domain/entities/splittest"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/splittest-go/internal/presentation/http/middleware"
	"github.com/gin-gonic/gin"
)

// LoginRequest represents the login request payload
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthHandlers contains all authentication-related HTTP handlers
type AuthHandlers struct {
	authService *services.AuthService
	cookieName  string
	logger      *logging.ChanneledLogger
}

// NewAuthHandlers creates auth handlers with injected dependencies
func NewAuthHandlers(authService *services.AuthService, cookieName string, logger *logging.ChanneledLogger) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
		cookieName:  cookieName,
		logger:      logger,
	}
}

// PostLogin handles POST /api/v1/auth/login
func (h *AuthHandlers) PostLogin(c *gin.Context) {
	tenantCtx, ok := requireTenant(c)
	if !ok {
		return
	}

	start := time.Now()
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	result, err := h.authService.Login(c.Request.Context(), tenantCtx, req.Username, req.Password)
	if err != nil {
		h.logger.Auth().Warn("Login failed", "tenantId", tenantCtx.TenantID, "username", req.Username, "error", err)
		respondError(c, h.logger, err)
		return
	}

	maxAge := int(time.Until(result.ExpiresAt).Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookieName, result.Token, maxAge, "/", "", c.Request.TLS != nil, true)

	h.logger.Auth().Info("Login successful", "tenantId", tenantCtx.TenantID, "userId", result.UserID, "staff", result.Staff, "duration", time.Since(start))
	c.JSON(http.StatusOK, result)
}

// PostLogout handles POST /api/v1/auth/logout
func (h *AuthHandlers) PostLogout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookieName, "", -1, "/", "", c.Request.TLS != nil, true)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GetAuthStatus handles GET /api/v1/auth/status
func (h *AuthHandlers) GetAuthStatus(c *gin.Context) {
	switch user := middleware.GetUser(c).(type) {
	case splittest.Authenticated:
		c.JSON(http.StatusOK, gin.H{"authenticated": true, "userId": user.ID, "staff": user.Staff})
	default:
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
	}
}
