package services

import (
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/caching/types"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/security"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/tenant"
)

// SessionService loads and persists visitor sessions in the tenant cache.
type SessionService struct {
	logger *logging.ChanneledLogger
}

// NewSessionService creates a new session service
func NewSessionService(logger *logging.ChanneledLogger) *SessionService {
	return &SessionService{logger: logger}
}

// Resume returns the session named by the cookie value. An unknown but well
// formed id is recreated under the same id so the browser cookie stays
// stable across restarts. Anything else gets a fresh ULID. The second return
// reports whether the cookie must be (re)issued.
func (s *SessionService) Resume(tenantCtx *tenant.Context, sessionID string) (*types.SessionData, bool) {
	if security.IsULID(sessionID) {
		if session, found := tenantCtx.CacheManager.GetSession(tenantCtx.TenantID, sessionID); found {
			return session, false
		}
		s.logger.Cache().Debug("Session recreated", "tenantId", tenantCtx.TenantID, "sessionId", sessionID)
		return types.NewSessionData(sessionID), false
	}

	session := types.NewSessionData(security.GenerateULID())
	s.logger.Cache().Debug("Session started", "tenantId", tenantCtx.TenantID, "sessionId", session.SessionID)
	return session, true
}

// Save stores the session and refreshes its activity time.
func (s *SessionService) Save(tenantCtx *tenant.Context, session *types.SessionData) {
	tenantCtx.CacheManager.SetSession(tenantCtx.TenantID, session)
}
