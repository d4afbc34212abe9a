// Package tenant manages tenant-specific configurations and context,
// isolating multi-tenancy logic from the rest of the application.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/caching/interfaces"
	schema "github.com/AtRiskMedia/splittest-go/internal/infrastructure/database"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/splittest-go/pkg/config"
	"github.com/gin-gonic/gin"
)

// Manager coordinates tenant detection and context creation
type Manager struct {
	settings       *config.Settings
	detector       *Detector
	cacheManager   interfaces.Cache
	pool           *Pool
	contexts       map[string]*Context
	contextMutexes sync.Map // per-tenant creation locks
	globalMutex    sync.RWMutex
	logger         *logging.ChanneledLogger
}

// NewManager creates and initializes a new tenant manager.
func NewManager(settings *config.Settings, cacheManager interfaces.Cache, logger *logging.ChanneledLogger) (*Manager, error) {
	detector, err := NewDetector(settings.ConfigDir(), settings.MultiTenant, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tenant detector: %w", err)
	}

	return &Manager{
		settings:     settings,
		detector:     detector,
		cacheManager: cacheManager,
		pool:         NewPool(settings, logger),
		contexts:     make(map[string]*Context),
		logger:       logger,
	}, nil
}

// GetContext creates or retrieves a tenant context for the request
func (m *Manager) GetContext(c *gin.Context) (*Context, error) {
	tenantID, err := m.detector.DetectTenant(c)
	if err != nil {
		return nil, fmt.Errorf("tenant detection failed: %w", err)
	}
	return m.ContextFor(c.Request.Context(), tenantID)
}

// ContextFor returns the cached context for tenantID, creating it on first use.
func (m *Manager) ContextFor(ctx context.Context, tenantID string) (*Context, error) {
	if tc := m.cached(tenantID); tc != nil {
		return tc, nil
	}

	tenantMutexInterface, _ := m.contextMutexes.LoadOrStore(tenantID, &sync.Mutex{})
	tenantMutex := tenantMutexInterface.(*sync.Mutex)

	tenantMutex.Lock()
	defer tenantMutex.Unlock()

	if tc := m.cached(tenantID); tc != nil {
		return tc, nil
	}

	return m.createContext(ctx, tenantID)
}

func (m *Manager) cached(tenantID string) *Context {
	m.globalMutex.RLock()
	defer m.globalMutex.RUnlock()
	if tc, exists := m.contexts[tenantID]; exists && tc.Database != nil && m.pool.Touch(tc.Config) {
		return tc
	}
	return nil
}

// createContext loads config, opens the database, ensures the schema and
// initializes the tenant caches.
func (m *Manager) createContext(ctx context.Context, tenantID string) (*Context, error) {
	start := time.Now()
	cfg, err := LoadTenantConfig(m.settings, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tenant config: %w", err)
	}

	db, err := m.pool.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}

	if err := schema.NewTableCreator().CreateSchema(ctx, db.Conn); err != nil {
		return nil, fmt.Errorf("failed to ensure schema for tenant %s: %w", tenantID, err)
	}

	m.cacheManager.InitializeTenant(tenantID)

	tc := &Context{
		TenantID:     tenantID,
		Config:       cfg,
		Database:     db,
		Status:       m.detector.GetTenantStatus(tenantID),
		CacheManager: m.cacheManager,
		Logger:       m.logger,
	}

	m.globalMutex.Lock()
	m.contexts[tenantID] = tc
	m.globalMutex.Unlock()

	m.logger.Tenant().Info("Tenant context created", "tenantId", tenantID, "database", db.GetConnectionInfo(), "duration", time.Since(start))
	return tc, nil
}

// PreActivateAllTenants opens every registered tenant and marks it active.
func (m *Manager) PreActivateAllTenants(ctx context.Context) error {
	var failed []error
	for _, tenantID := range m.detector.TenantIDs() {
		tc, err := m.ContextFor(ctx, tenantID)
		if err == nil {
			err = tc.Database.Ping(ctx)
		}
		if err != nil {
			m.logger.Startup().Error("Tenant pre-activation failed", "tenantId", tenantID, "error", err)
			failed = append(failed, fmt.Errorf("tenant %s: %w", tenantID, err))
			continue
		}
		m.detector.UpdateTenantStatus(tenantID, StatusActive, tc.Config.DatabaseDriver)
		tc.Status = StatusActive
	}
	return errors.Join(failed...)
}

// ActiveTenantIDs lists tenants that have been activated.
func (m *Manager) ActiveTenantIDs() ([]string, error) {
	return m.detector.ActiveTenantIDs()
}

// GetCacheManager returns the cache manager for external access
func (m *Manager) GetCacheManager() interfaces.Cache {
	return m.cacheManager
}

// GetDetector returns the detector for external access
func (m *Manager) GetDetector() *Detector {
	return m.detector
}

// GetPool returns the connection pool for the cleanup worker.
func (m *Manager) GetPool() *Pool {
	return m.pool
}

// GetLogger returns the logger for middleware access
func (m *Manager) GetLogger() *logging.ChanneledLogger {
	return m.logger
}

// Close drops all tenant contexts and closes their connections.
func (m *Manager) Close() error {
	m.globalMutex.Lock()
	m.contexts = make(map[string]*Context)
	m.globalMutex.Unlock()
	return m.pool.CloseAll()
}
