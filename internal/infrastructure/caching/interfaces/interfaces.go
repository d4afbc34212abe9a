// Package interfaces defines the cache contracts used by services and repositories.
package interfaces

import (
	"time"

	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/caching/types"
)

// ActiveSetCache is a keyed blob store for the active set parts. Writes
// never expire and each key is read and written atomically on its own.
type ActiveSetCache interface {
	GetActiveSetPart(tenantID, key string) ([]byte, bool, error)
	SetActiveSetPart(tenantID, key string, value []byte) error
	InvalidateActiveSet(tenantID string) error
}

// SessionCache holds per-tenant visitor sessions.
type SessionCache interface {
	// GetSession returns a copy that the caller may mutate freely.
	GetSession(tenantID, sessionID string) (*types.SessionData, bool)
	SetSession(tenantID string, session *types.SessionData)
	DeleteSession(tenantID, sessionID string)
	PurgeExpiredSessions(tenantID string, ttl time.Duration) int
	SessionCount(tenantID string) int
}

// Cache is the full cache surface exposed by the manager.
type Cache interface {
	ActiveSetCache
	SessionCache
	InitializeTenant(tenantID string)
	TenantIDs() []string
	Close() error
}
