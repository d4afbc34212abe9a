// Package stores provides concrete cache store implementations
package stores

import (
	"sync"
	"time"

	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/caching/types"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/observability/logging"
)

// ActiveSetStore keeps active set parts in process memory with tenant isolation.
// Entries never expire; they are replaced by rebuilds.
type ActiveSetStore struct {
	tenantCaches map[string]*types.TenantActiveSetCache
	mu           sync.RWMutex
	logger       *logging.ChanneledLogger
}

// NewActiveSetStore creates a new in-memory active set store
func NewActiveSetStore(logger *logging.ChanneledLogger) *ActiveSetStore {
	if logger != nil {
		logger.Cache().Info("Initializing in-memory active set store")
	}
	return &ActiveSetStore{
		tenantCaches: make(map[string]*types.TenantActiveSetCache),
		logger:       logger,
	}
}

// InitializeTenant creates cache structures for a tenant
func (s *ActiveSetStore) InitializeTenant(tenantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tenantCaches[tenantID] == nil {
		s.tenantCaches[tenantID] = &types.TenantActiveSetCache{
			Parts: make(map[string][]byte),
		}
		if s.logger != nil {
			s.logger.Cache().Debug("Tenant active set cache initialized", "tenantId", tenantID)
		}
	}
}

// GetTenantCache safely retrieves a tenant's active set cache
func (s *ActiveSetStore) GetTenantCache(tenantID string) (*types.TenantActiveSetCache, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cache, exists := s.tenantCaches[tenantID]
	return cache, exists
}

// GetActiveSetPart returns a copy of the stored blob.
func (s *ActiveSetStore) GetActiveSetPart(tenantID, key string) ([]byte, bool, error) {
	start := time.Now()
	cache, exists := s.GetTenantCache(tenantID)
	if !exists {
		if s.logger != nil {
			s.logger.Cache().Debug("Cache operation", "operation", "get", "type", "active_set", "tenantId", tenantID, "key", key, "hit", false, "reason", "tenant_not_initialized", "duration", time.Since(start))
		}
		return nil, false, nil
	}

	cache.Mu.RLock()
	defer cache.Mu.RUnlock()

	value, found := cache.Parts[key]
	if s.logger != nil {
		s.logger.LogCacheOperation("get", key, found, time.Since(start), tenantID)
	}
	if !found {
		return nil, false, nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, true, nil
}

// SetActiveSetPart stores a blob with no expiry.
func (s *ActiveSetStore) SetActiveSetPart(tenantID, key string, value []byte) error {
	start := time.Now()
	cache, exists := s.GetTenantCache(tenantID)
	if !exists {
		s.InitializeTenant(tenantID)
		cache, _ = s.GetTenantCache(tenantID)
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	cache.Mu.Lock()
	cache.Parts[key] = stored
	cache.LastUpdated = time.Now().UTC()
	cache.Mu.Unlock()

	if s.logger != nil {
		s.logger.Cache().Debug("Cache operation", "operation", "set", "type", "active_set", "tenantId", tenantID, "key", key, "bytes", len(value), "duration", time.Since(start))
	}
	return nil
}

// InvalidateActiveSet drops every part for the tenant.
func (s *ActiveSetStore) InvalidateActiveSet(tenantID string) error {
	cache, exists := s.GetTenantCache(tenantID)
	if !exists {
		return nil
	}

	cache.Mu.Lock()
	cache.Parts = make(map[string][]byte)
	cache.LastUpdated = time.Now().UTC()
	cache.Mu.Unlock()

	if s.logger != nil {
		s.logger.Cache().Info("Active set invalidated", "tenantId", tenantID)
	}
	return nil
}

// TenantIDs lists initialized tenants.
func (s *ActiveSetStore) TenantIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.tenantCaches))
	for id := range s.tenantCaches {
		ids = append(ids, id)
	}
	return ids
}

func (s *ActiveSetStore) Close() error { return nil }
