// Package container provides dependency injection for all singleton services
package container

import (
	"github.com/AtRiskMedia/splittest-go/internal/application/services"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/caching/cleanup"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/caching/interfaces"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/tenant"
	"github.com/AtRiskMedia/splittest-go/pkg/config"
)

// Container holds all singleton services and infrastructure dependencies
type Container struct {
	// Split test services
	ActiveSetService   *services.ActiveSetService
	AssignmentService  *services.AssignmentService
	RequestCoordinator *services.RequestCoordinator
	ExperimentService  *services.ExperimentService
	SeedService        *services.SeedService

	// Supporting services
	AuthService    *services.AuthService
	SessionService *services.SessionService
	WarmingService *services.WarmingService

	// Infrastructure Dependencies
	Settings      *config.Settings
	TenantManager *tenant.Manager
	CacheManager  interfaces.Cache
	Logger        *logging.ChanneledLogger
}

// NewContainer creates and wires all singleton services
func NewContainer(settings *config.Settings, tenantManager *tenant.Manager, cacheManager interfaces.Cache, logger *logging.ChanneledLogger) *Container {
	activeSet := services.NewActiveSetService(logger)
	assigner := services.NewAssignmentService(logger)
	reporter := cleanup.NewReporter(cacheManager, nil)

	return &Container{
		ActiveSetService:   activeSet,
		AssignmentService:  assigner,
		RequestCoordinator: services.NewRequestCoordinator(activeSet, assigner, logger),
		ExperimentService:  services.NewExperimentService(activeSet, logger),
		SeedService:        services.NewSeedService(activeSet, logger),

		AuthService:    services.NewAuthService(settings.TokenTTL, logger),
		SessionService: services.NewSessionService(logger),
		WarmingService: services.NewWarmingService(activeSet, reporter, logger),

		Settings:      settings,
		TenantManager: tenantManager,
		CacheManager:  cacheManager,
		Logger:        logger,
	}
}
