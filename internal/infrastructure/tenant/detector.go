// Package tenant provides tenant detection and validation.
package tenant

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/observability/logging"
	"github.com/gin-gonic/gin"
)

// TenantHeader carries the tenant id in multi-tenant mode.
const TenantHeader = "X-Tenant-ID"

var (
	ErrMissingTenant = errors.New("missing tenant ID header in multi-tenant mode")
	ErrUnknownTenant = errors.New("unknown tenant")
)

// Detector handles tenant detection from HTTP requests
type Detector struct {
	mu          sync.RWMutex
	registry    *TenantRegistry
	configDir   string
	multiTenant bool
	logger      *logging.ChanneledLogger
}

// NewDetector creates a new tenant detector
func NewDetector(configDir string, multiTenant bool, logger *logging.ChanneledLogger) (*Detector, error) {
	registry, err := LoadTenantRegistry(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load tenant registry: %w", err)
	}

	return &Detector{
		registry:    registry,
		configDir:   configDir,
		multiTenant: multiTenant,
		logger:      logger,
	}, nil
}

// DetectTenant extracts tenant ID from request and auto-registers if needed
func (d *Detector) DetectTenant(c *gin.Context) (string, error) {
	tenantID := DefaultTenantID

	if d.multiTenant {
		tenantID = c.GetHeader(TenantHeader)
		if tenantID == "" {
			tenantID = c.Query("tenantId")
		}
		if tenantID == "" {
			return "", ErrMissingTenant
		}
	}

	d.mu.RLock()
	_, exists := d.registry.Tenants[tenantID]
	d.mu.RUnlock()
	if exists {
		return tenantID, nil
	}

	if tenantID != DefaultTenantID && !d.hasConfigDirectory(tenantID) {
		return "", fmt.Errorf("%w: %s", ErrUnknownTenant, tenantID)
	}

	d.mu.Lock()
	d.registry.Tenants[tenantID] = TenantInfo{
		TenantID: tenantID,
		Domains:  []string{"*"},
		Status:   StatusInactive,
	}
	d.mu.Unlock()
	d.logger.Tenant().Info("Tenant auto-registered", "tenantId", tenantID)

	return tenantID, nil
}

// hasConfigDirectory checks if a tenant has a config directory
func (d *Detector) hasConfigDirectory(tenantID string) bool {
	if strings.ContainsAny(tenantID, `/\.`) {
		return false
	}
	info, err := os.Stat(filepath.Join(d.configDir, tenantID))
	return err == nil && info.IsDir()
}

// ValidateDomain checks if the request domain is allowed for the tenant
func (d *Detector) ValidateDomain(tenantID, domain string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	tenantInfo, exists := d.registry.Tenants[tenantID]
	if !exists {
		return false
	}

	for _, allowedDomain := range tenantInfo.Domains {
		if allowedDomain == "*" || strings.EqualFold(allowedDomain, domain) {
			return true
		}
	}
	return false
}

// GetTenantStatus returns the current status of a tenant
func (d *Detector) GetTenantStatus(tenantID string) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if tenantInfo, exists := d.registry.Tenants[tenantID]; exists {
		return tenantInfo.Status
	}
	return "unknown"
}

// UpdateTenantStatus updates the cached registry status
func (d *Detector) UpdateTenantStatus(tenantID, status, driver string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if tenantInfo, exists := d.registry.Tenants[tenantID]; exists {
		tenantInfo.Status = status
		if driver != "" {
			tenantInfo.DatabaseDriver = driver
		}
		d.registry.Tenants[tenantID] = tenantInfo
	}
}

// TenantIDs lists every registered tenant.
func (d *Detector) TenantIDs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ids := make([]string, 0, len(d.registry.Tenants))
	for id := range d.registry.Tenants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ActiveTenantIDs lists tenants marked active.
func (d *Detector) ActiveTenantIDs() ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ids := make([]string, 0, len(d.registry.Tenants))
	for id, info := range d.registry.Tenants {
		if info.Status == StatusActive {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
