package middleware

import (
	"net/http"
	"strings"

	"github.com/AtRiskMedia/splittest-go/internal/application/services"
	"github.com/AtRiskMedia/splittest-go/internal/domain/entities/splittest"
	"github.com/gin-gonic/gin"
)

const userKey = "user"

// AuthMiddleware resolves the bearer token or auth cookie into a user.
// Missing or invalid tokens leave the request anonymous.
func AuthMiddleware(authService *services.AuthService, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var user splittest.User = splittest.Anonymous{}
		if tenantCtx, ok := GetTenantContext(c); ok {
			user = authService.Authenticate(c.Request.Context(), tenantCtx, requestToken(c, cookieName))
		}
		c.Set(userKey, user)
		c.Next()
	}
}

func requestToken(c *gin.Context, cookieName string) string {
	if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	token, _ := c.Cookie(cookieName)
	return token
}

// RequireStaff rejects requests that are not from a staff account.
func RequireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch user := GetUser(c).(type) {
		case splittest.Authenticated:
			if user.Staff {
				c.Next()
				return
			}
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "staff access required"})
		default:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		}
	}
}

// GetUser returns the request's user, Anonymous when unresolved.
func GetUser(c *gin.Context) splittest.User {
	if value, exists := c.Get(userKey); exists {
		if user, ok := value.(splittest.User); ok {
			return user
		}
	}
	return splittest.Anonymous{}
}
