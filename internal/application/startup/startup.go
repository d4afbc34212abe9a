// Package startup prepares the application server
package startup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/AtRiskMedia/splittest-go/internal/application/container"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/caching/cleanup"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/caching/interfaces"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/caching/manager"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/caching/stores"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/observability/telemetry"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/tenant"
	"github.com/AtRiskMedia/splittest-go/internal/presentation/http/server"
	"github.com/AtRiskMedia/splittest-go/pkg/config"
)

// Runtime is the wired application shared by the server and the CLI commands.
type Runtime struct {
	Settings      *config.Settings
	Logger        *logging.ChanneledLogger
	Cache         interfaces.Cache
	TenantManager *tenant.Manager
	Container     *container.Container
}

// NewLogger builds the channeled logger from settings.
func NewLogger(settings *config.Settings) (*logging.ChanneledLogger, error) {
	level, channelLevels, err := logging.ParseLevelSpec(settings.LogLevel)
	if err != nil {
		return nil, err
	}

	cfg := logging.DefaultLoggerConfig()
	cfg.DefaultLevel = level
	cfg.ChannelLevels = channelLevels
	cfg.JSONFormat = !strings.EqualFold(settings.LogFormat, "text")
	cfg.OutputToFile = settings.LogToFile
	cfg.LogDirectory = settings.LogDirectory
	return logging.NewChanneledLogger(cfg)
}

// NewCache selects the active set backend named by CACHE_BACKEND.
func NewCache(settings *config.Settings, logger *logging.ChanneledLogger) (interfaces.Cache, error) {
	switch settings.CacheBackend {
	case "badger":
		store, err := stores.OpenBadgerActiveSetStore(stores.BadgerConfig{
			Path:           settings.BadgerPath,
			InMemory:       settings.BadgerInMemory,
			GCDiscardRatio: settings.BadgerGCRatio,
		}, logger)
		if err != nil {
			return nil, err
		}
		return manager.NewManager(store, logger), nil
	default:
		return manager.NewMemoryManager(logger), nil
	}
}

// Bootstrap wires logging, caches, tenants and services without serving.
func Bootstrap(settings *config.Settings) (*Runtime, error) {
	logger, err := NewLogger(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	cacheManager, err := NewCache(settings, logger)
	if err != nil {
		logger.Close()
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}

	tenantManager, err := tenant.NewManager(settings, cacheManager, logger)
	if err != nil {
		cacheManager.Close()
		logger.Close()
		return nil, fmt.Errorf("failed to initialize tenant manager: %w", err)
	}

	return &Runtime{
		Settings:      settings,
		Logger:        logger,
		Cache:         cacheManager,
		TenantManager: tenantManager,
		Container:     container.NewContainer(settings, tenantManager, cacheManager, logger),
	}, nil
}

// Close releases tenant connections, the cache backend and log files.
func (rt *Runtime) Close() error {
	return errors.Join(
		rt.TenantManager.Close(),
		rt.Cache.Close(),
		rt.Logger.Close(),
	)
}

// Initialize performs the complete multi-tenant startup sequence and serves
// until SIGINT or SIGTERM.
func Initialize(settings *config.Settings) error {
	start := time.Now().UTC()

	if !settings.MultiTenant {
		if err := tenant.RegisterTenant(settings.ConfigDir(), tenant.DefaultTenantID); err != nil {
			return fmt.Errorf("failed to provision default tenant: %w", err)
		}
	}

	rt, err := Bootstrap(settings)
	if err != nil {
		return err
	}
	defer rt.Close()
	logger := rt.Logger

	shutdownTracing, err := telemetry.Init(telemetry.Config{
		ServiceName:    settings.ServiceName,
		ServiceVersion: settings.ServiceVersion,
		TraceExporter:  settings.TraceExporter,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	ctx, cancelBackgroundTasks := context.WithCancel(context.Background())
	defer cancelBackgroundTasks()

	// Step 1: Activate registered tenants
	logger.Startup().Info("Starting tenant pre-activation...")
	if err := rt.TenantManager.PreActivateAllTenants(ctx); err != nil {
		logger.Startup().Warn("Some tenants failed to activate", "error", err)
	}

	activeTenants, err := rt.TenantManager.ActiveTenantIDs()
	if err != nil {
		return fmt.Errorf("failed to list active tenants: %w", err)
	}
	logger.Startup().Info("Tenant activation complete", "activeTenants", len(activeTenants))

	// Step 2: Warm the active set for every tenant
	startWarmTime := time.Now()
	if err := rt.Container.WarmingService.WarmAllTenants(ctx, rt.TenantManager); err != nil {
		logger.Startup().Error("Cache warming failed", "error", err.Error(), "duration", time.Since(startWarmTime))
	} else {
		logger.Startup().Info("Cache warming completed successfully", "duration", time.Since(startWarmTime))
	}

	// Step 3: Start background cleanup worker
	cleanupWorker := cleanup.NewWorker(rt.Cache, rt.TenantManager, rt.TenantManager.GetPool(), cleanup.NewConfig(settings), logger)
	go cleanupWorker.Start(ctx)

	// Step 4: Start HTTP server
	httpServer := server.New(rt.Container)

	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- httpServer.Start()
	}()

	logger.Startup().Info("Application startup complete",
		"totalDuration", time.Since(start),
		"activeTenants", len(activeTenants),
		"port", settings.Port)

	select {
	case <-gracefulShutdown:
		logger.Shutdown().Info("Shutdown signal received, starting graceful shutdown...")
	case err := <-serverErr:
		if err != nil {
			logger.System().Error("HTTP server failed", "error", err.Error())
			return err
		}
	}

	shutdownStart := time.Now()
	cancelBackgroundTasks()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Shutdown().Error("Error during server shutdown", "error", err.Error())
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Shutdown().Error("Error flushing traces", "error", err.Error())
	}

	logger.Shutdown().Info("Application shutdown complete",
		"totalUptime", time.Since(start),
		"shutdownDuration", time.Since(shutdownStart))
	return nil
}
