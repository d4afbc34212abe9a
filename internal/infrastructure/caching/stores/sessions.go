package stores

import (
	"sync"
	"time"

	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/caching/types"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/observability/logging"
)

// SessionsStore implements visitor session caching with tenant isolation
type SessionsStore struct {
	tenantCaches map[string]*types.TenantSessionCache
	mu           sync.RWMutex
	logger       *logging.ChanneledLogger
}

// NewSessionsStore creates a new sessions cache store
func NewSessionsStore(logger *logging.ChanneledLogger) *SessionsStore {
	if logger != nil {
		logger.Cache().Info("Initializing sessions cache store")
	}
	return &SessionsStore{
		tenantCaches: make(map[string]*types.TenantSessionCache),
		logger:       logger,
	}
}

// InitializeTenant creates cache structures for a tenant
func (ss *SessionsStore) InitializeTenant(tenantID string) {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.tenantCaches[tenantID] == nil {
		ss.tenantCaches[tenantID] = &types.TenantSessionCache{
			Sessions: make(map[string]*types.SessionData),
		}
		if ss.logger != nil {
			ss.logger.Cache().Debug("Tenant session cache initialized", "tenantId", tenantID)
		}
	}
}

// GetTenantCache safely retrieves a tenant's session cache
func (ss *SessionsStore) GetTenantCache(tenantID string) (*types.TenantSessionCache, bool) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	cache, exists := ss.tenantCaches[tenantID]
	return cache, exists
}

// GetSession retrieves a copy of the session data by session ID
func (ss *SessionsStore) GetSession(tenantID, sessionID string) (*types.SessionData, bool) {
	start := time.Now()
	cache, exists := ss.GetTenantCache(tenantID)
	if !exists {
		if ss.logger != nil {
			ss.logger.Cache().Debug("Cache operation", "operation", "get", "type", "session", "tenantId", tenantID, "hit", false, "reason", "tenant_not_initialized", "duration", time.Since(start))
		}
		return nil, false
	}

	cache.Mu.RLock()
	defer cache.Mu.RUnlock()

	session, found := cache.Sessions[sessionID]
	if ss.logger != nil {
		ss.logger.Cache().Debug("Cache operation", "operation", "get", "type", "session", "tenantId", tenantID, "hit", found, "duration", time.Since(start))
	}
	if !found {
		return nil, false
	}
	return session.Clone(), true
}

// SetSession stores a copy of the session and refreshes its activity time
func (ss *SessionsStore) SetSession(tenantID string, session *types.SessionData) {
	if session == nil {
		return
	}
	start := time.Now()
	cache, exists := ss.GetTenantCache(tenantID)
	if !exists {
		ss.InitializeTenant(tenantID)
		cache, _ = ss.GetTenantCache(tenantID)
	}

	stored := session.Clone()
	stored.LastActivity = time.Now().UTC()

	cache.Mu.Lock()
	cache.Sessions[stored.SessionID] = stored
	cache.Mu.Unlock()

	if ss.logger != nil {
		ss.logger.Cache().Debug("Cache operation", "operation", "set", "type", "session", "tenantId", tenantID, "duration", time.Since(start))
	}
}

// DeleteSession removes a session
func (ss *SessionsStore) DeleteSession(tenantID, sessionID string) {
	cache, exists := ss.GetTenantCache(tenantID)
	if !exists {
		return
	}
	cache.Mu.Lock()
	delete(cache.Sessions, sessionID)
	cache.Mu.Unlock()
}

// PurgeExpiredSessions removes sessions idle for longer than ttl
func (ss *SessionsStore) PurgeExpiredSessions(tenantID string, ttl time.Duration) int {
	cache, exists := ss.GetTenantCache(tenantID)
	if !exists {
		return 0
	}

	cache.Mu.Lock()
	defer cache.Mu.Unlock()

	purged := 0
	for sessionID, session := range cache.Sessions {
		if time.Since(session.LastActivity) > ttl {
			delete(cache.Sessions, sessionID)
			purged++
		}
	}

	if purged > 0 && ss.logger != nil {
		ss.logger.Cache().Info("Expired sessions purged", "tenantId", tenantID, "count", purged)
	}
	return purged
}

// SessionCount returns the number of cached sessions for a tenant
func (ss *SessionsStore) SessionCount(tenantID string) int {
	cache, exists := ss.GetTenantCache(tenantID)
	if !exists {
		return 0
	}
	cache.Mu.RLock()
	defer cache.Mu.RUnlock()
	return len(cache.Sessions)
}
