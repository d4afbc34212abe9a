// Package services provides startup warming orchestration
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/caching/cleanup"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/observability/metrics"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/tenant"
)

// TenantContexts resolves tenant contexts for background work.
type TenantContexts interface {
	ActiveTenantIDs() ([]string, error)
	ContextFor(ctx context.Context, tenantID string) (*tenant.Context, error)
}

// WarmingService rebuilds the active set of every active tenant at startup.
type WarmingService struct {
	activeSet *ActiveSetService
	reporter  *cleanup.Reporter
	logger    *logging.ChanneledLogger
}

// NewWarmingService creates a new warming service
func NewWarmingService(activeSet *ActiveSetService, reporter *cleanup.Reporter, logger *logging.ChanneledLogger) *WarmingService {
	return &WarmingService{activeSet: activeSet, reporter: reporter, logger: logger}
}

// WarmAllTenants warms every active tenant and reports how many failed.
func (ws *WarmingService) WarmAllTenants(ctx context.Context, tenants TenantContexts) error {
	start := time.Now()

	tenantIDs, err := tenants.ActiveTenantIDs()
	if err != nil {
		return fmt.Errorf("failed to get active tenants: %w", err)
	}

	ws.reporter.LogHeader(fmt.Sprintf("Cache Warming for %d Tenants", len(tenantIDs)))

	var successCount int
	for _, tenantID := range tenantIDs {
		tenantCtx, err := tenants.ContextFor(ctx, tenantID)
		if err == nil {
			err = ws.WarmTenant(ctx, tenantCtx)
		}
		if err != nil {
			ws.reporter.LogError(fmt.Sprintf("Failed to warm tenant %s", tenantID), err)
			continue
		}
		successCount++
	}

	duration := time.Since(start)
	ws.reporter.LogSubHeader(fmt.Sprintf("Cache Warming Completed in %v", duration))
	ws.reporter.LogSuccess("%d/%d tenants warmed successfully", successCount, len(tenantIDs))
	ws.logger.Startup().Info("Cache warming completed", "tenants", len(tenantIDs), "warmed", successCount, "duration", duration)

	if successCount < len(tenantIDs) {
		return fmt.Errorf("warming failed for %d tenants", len(tenantIDs)-successCount)
	}
	return nil
}

// WarmTenant rebuilds one tenant's active set.
func (ws *WarmingService) WarmTenant(ctx context.Context, tenantCtx *tenant.Context) error {
	ws.reporter.LogStage("Warming active set for %s", tenantCtx.TenantID)
	snapshot, err := ws.activeSet.RebuildWithTrigger(ctx, tenantCtx, metrics.TriggerWarm)
	if err != nil {
		return fmt.Errorf("active set warming failed: %w", err)
	}
	ws.reporter.LogSuccess("%d split tests, %d cohorts active", len(snapshot.ExperimentActiveUUIDs), len(snapshot.CohortActiveUUIDs))
	return nil
}
