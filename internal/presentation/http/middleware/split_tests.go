package middleware

import (
	"net/http"
	"sync"

	"github.com/AtRiskMedia/splittest-go/internal/application/services"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/observability/logging"
	"github.com/gin-gonic/gin"
)

// SplitTestsKey holds the experiment slug to cohort slug map.
const SplitTestsKey = "splitTests"

const splitTestStateKey = "splitTestState"

// cookieWriter adds the split test cookies to the headers right before the
// response is first written.
type cookieWriter struct {
	gin.ResponseWriter
	once  sync.Once
	flush func(http.Header)
}

func (w *cookieWriter) syncCookies() {
	w.once.Do(func() { w.flush(w.ResponseWriter.Header()) })
}

func (w *cookieWriter) WriteHeader(code int) {
	w.syncCookies()
	w.ResponseWriter.WriteHeader(code)
}

func (w *cookieWriter) WriteHeaderNow() {
	w.syncCookies()
	w.ResponseWriter.WriteHeaderNow()
}

func (w *cookieWriter) Write(data []byte) (int, error) {
	w.syncCookies()
	return w.ResponseWriter.Write(data)
}

func (w *cookieWriter) WriteString(s string) (int, error) {
	w.syncCookies()
	return w.ResponseWriter.WriteString(s)
}

// SplitTestMiddleware reconciles the session's cohort assignments before the
// handler runs and writes the matching cookies with the response. It must run
// inside TenantMiddleware, AuthMiddleware and SessionMiddleware.
func SplitTestMiddleware(coordinator *services.RequestCoordinator, logger *logging.ChanneledLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantCtx, ok := GetTenantContext(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "tenant context not found"})
			return
		}
		session, ok := GetSession(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "session not found"})
			return
		}

		state := services.NewRequestState(GetUser(c), session, ReadCookies(c.Request))
		if err := coordinator.Reconcile(c.Request.Context(), tenantCtx, state); err != nil {
			logger.SplitTest().Error("Split test assignment failed",
				"tenantId", tenantCtx.TenantID,
				"phase", state.Phase.String(),
				"path", c.Request.URL.Path,
				"error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "split test assignment unavailable"})
			return
		}

		c.Set(SplitTestsKey, state.SlugMap)
		c.Set(splitTestStateKey, state)

		settings := tenantCtx.SplitTestSettings()
		writer := &cookieWriter{
			ResponseWriter: c.Writer,
			flush: func(header http.Header) {
				for _, cookie := range coordinator.ResponseCookies(settings, state) {
					header.Add("Set-Cookie", FormatSetCookie(cookie))
				}
			},
		}
		c.Writer = writer

		c.Next()

		writer.syncCookies()
		state.Phase = services.PhaseDone
	}
}

// GetSplitTests returns the experiment slug to cohort slug map.
func GetSplitTests(c *gin.Context) map[string]string {
	if value, exists := c.Get(SplitTestsKey); exists {
		if slugs, ok := value.(map[string]string); ok {
			return slugs
		}
	}
	return map[string]string{}
}

// GetSplitTestState returns the reconciled request state.
func GetSplitTestState(c *gin.Context) (*services.RequestState, bool) {
	value, exists := c.Get(splitTestStateKey)
	if !exists {
		return nil, false
	}
	state, ok := value.(*services.RequestState)
	return state, ok
}
