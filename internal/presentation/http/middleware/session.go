package middleware

import (
	"net/http"

	"github.com/AtRiskMedia/splittest-go/internal/application/services"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/caching/types"
	"github.com/AtRiskMedia/splittest-go/pkg/config"
	"github.com/gin-gonic/gin"
)

const sessionKey = "session"

// SessionMiddleware loads the visitor session named by the session cookie,
// issuing a new one when needed, and saves it once the handlers finish. The
// cookie is re-sent on every request so its expiry slides with the server's
// idle timeout.
func SessionMiddleware(sessionService *services.SessionService, settings *config.Settings) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantCtx, ok := GetTenantContext(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "tenant context not found"})
			return
		}

		cookieValue, _ := c.Cookie(settings.SessionCookieName)
		session, _ := sessionService.Resume(tenantCtx, cookieValue)
		splitTests := tenantCtx.SplitTestSettings()
		c.Writer.Header().Add("Set-Cookie", FormatSetCookie(&http.Cookie{
			Name:     settings.SessionCookieName,
			Value:    session.SessionID,
			Path:     "/",
			Domain:   splitTests.CookieDomain,
			MaxAge:   int(settings.SessionTTL.Seconds()),
			Secure:   splitTests.CookieSecure,
			HttpOnly: true,
			SameSite: splitTests.CookieSameSite,
		}))

		c.Set(sessionKey, session)
		c.Next()

		sessionService.Save(tenantCtx, session)
	}
}

// GetSession retrieves the visitor session from gin context.
func GetSession(c *gin.Context) (*types.SessionData, bool) {
	value, exists := c.Get(sessionKey)
	if !exists {
		return nil, false
	}
	session, ok := value.(*types.SessionData)
	return session, ok
}
