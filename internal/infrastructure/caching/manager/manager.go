// Package manager provides centralized cache operations with proper tenant isolation
package manager

import (
	"sync"
	"time"

	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/caching/interfaces"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/caching/stores"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/caching/types"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/observability/logging"
)

var _ interfaces.Cache = (*Manager)(nil)

// ActiveSetBackend is a store able to hold active set parts.
type ActiveSetBackend interface {
	interfaces.ActiveSetCache
	InitializeTenant(tenantID string)
	TenantIDs() []string
	Close() error
}

// garbageCollector is implemented by backends that need periodic compaction.
type garbageCollector interface {
	RunGC() (int, error)
}

// Manager provides centralized cache operations by delegating to specialized stores.
type Manager struct {
	mu             sync.RWMutex
	lastAccessed   map[string]time.Time
	activeSetStore ActiveSetBackend
	sessionsStore  *stores.SessionsStore
	logger         *logging.ChanneledLogger
}

// NewManager wires a manager over the given active set backend.
func NewManager(activeSet ActiveSetBackend, logger *logging.ChanneledLogger) *Manager {
	if logger != nil {
		logger.Cache().Info("Initializing cache manager", "stores", []string{"active_set", "sessions"})
	}

	return &Manager{
		lastAccessed:   make(map[string]time.Time),
		activeSetStore: activeSet,
		sessionsStore:  stores.NewSessionsStore(logger),
		logger:         logger,
	}
}

// NewMemoryManager is a manager backed entirely by process memory.
func NewMemoryManager(logger *logging.ChanneledLogger) *Manager {
	return NewManager(stores.NewActiveSetStore(logger), logger)
}

// InitializeTenant prepares every store for the tenant
func (m *Manager) InitializeTenant(tenantID string) {
	m.activeSetStore.InitializeTenant(tenantID)
	m.sessionsStore.InitializeTenant(tenantID)
	m.touch(tenantID)
}

// TenantIDs lists tenants that have been initialized
func (m *Manager) TenantIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.lastAccessed))
	for id := range m.lastAccessed {
		ids = append(ids, id)
	}
	return ids
}

// LastAccessed reports when the tenant's caches were last used
func (m *Manager) LastAccessed(tenantID string) (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.lastAccessed[tenantID]
	return t, ok
}

func (m *Manager) touch(tenantID string) {
	m.mu.Lock()
	m.lastAccessed[tenantID] = time.Now().UTC()
	m.mu.Unlock()
}

// =============================================================================
// Active Set Operations
// =============================================================================

func (m *Manager) GetActiveSetPart(tenantID, key string) ([]byte, bool, error) {
	m.touch(tenantID)
	return m.activeSetStore.GetActiveSetPart(tenantID, key)
}

func (m *Manager) SetActiveSetPart(tenantID, key string, value []byte) error {
	m.touch(tenantID)
	return m.activeSetStore.SetActiveSetPart(tenantID, key, value)
}

func (m *Manager) InvalidateActiveSet(tenantID string) error {
	return m.activeSetStore.InvalidateActiveSet(tenantID)
}

// CompactActiveSet runs backend garbage collection when the backend has any.
func (m *Manager) CompactActiveSet() (int, error) {
	gc, ok := m.activeSetStore.(garbageCollector)
	if !ok {
		return 0, nil
	}
	return gc.RunGC()
}

// =============================================================================
// Session Operations
// =============================================================================

func (m *Manager) GetSession(tenantID, sessionID string) (*types.SessionData, bool) {
	return m.sessionsStore.GetSession(tenantID, sessionID)
}

func (m *Manager) SetSession(tenantID string, session *types.SessionData) {
	m.touch(tenantID)
	m.sessionsStore.SetSession(tenantID, session)
}

func (m *Manager) DeleteSession(tenantID, sessionID string) {
	m.sessionsStore.DeleteSession(tenantID, sessionID)
}

func (m *Manager) PurgeExpiredSessions(tenantID string, ttl time.Duration) int {
	return m.sessionsStore.PurgeExpiredSessions(tenantID, ttl)
}

func (m *Manager) SessionCount(tenantID string) int {
	return m.sessionsStore.SessionCount(tenantID)
}

// Close releases the active set backend.
func (m *Manager) Close() error {
	if m.logger != nil {
		m.logger.Cache().Info("Closing cache manager")
	}
	return m.activeSetStore.Close()
}
