// Package cleanup provides background worker
package cleanup

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/caching/interfaces"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/observability/metrics"
)

// TenantLister returns the tenants whose caches should be swept.
type TenantLister interface {
	ActiveTenantIDs() ([]string, error)
}

// Compactor is implemented by caches whose backend needs periodic GC.
type Compactor interface {
	CompactActiveSet() (int, error)
}

// PoolCleaner closes idle tenant database connections.
type PoolCleaner interface {
	CleanupStaleConnections(maxIdle time.Duration) int
}

// Worker handles background cache cleanup operations
type Worker struct {
	cache   interfaces.Cache
	tenants TenantLister
	pools   PoolCleaner
	config  *Config
	logger  *logging.ChanneledLogger
	out     io.Writer
}

// NewWorker creates a new cleanup worker with injected configuration
func NewWorker(cache interfaces.Cache, tenants TenantLister, pools PoolCleaner, config *Config, logger *logging.ChanneledLogger) *Worker {
	return &Worker{
		cache:   cache,
		tenants: tenants,
		pools:   pools,
		config:  config,
		logger:  logger,
		out:     os.Stdout,
	}
}

// Start begins the cleanup worker routine, using the configured interval
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.config.CleanupInterval)
	defer ticker.Stop()

	w.logger.System().Info("Cache cleanup worker started", "interval", w.config.CleanupInterval, "verbose", w.config.VerboseReporting)

	for {
		select {
		case <-ctx.Done():
			w.logger.Shutdown().Info("Cache cleanup worker stopping")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce executes one sweep over every active tenant and returns the
// number of sessions purged.
func (w *Worker) RunOnce(ctx context.Context) int {
	start := time.Now()

	tenants, err := w.tenants.ActiveTenantIDs()
	if err != nil {
		w.logger.Cache().Error("Cache cleanup failed to get active tenants", "error", err)
		return 0
	}

	if w.config.VerboseReporting {
		reporter := NewReporter(w.cache, w.out)
		reporter.LogStage("PERIODIC CACHE CLEANUP")
		for _, tenantID := range tenants {
			_, _ = io.WriteString(w.out, reporter.GenerateTenantReport(tenantID))
		}
	}

	totalPurged := 0
	for _, tenantID := range tenants {
		select {
		case <-ctx.Done():
			return totalPurged
		default:
		}
		purged := w.cache.PurgeExpiredSessions(tenantID, w.config.SessionTTL)
		if purged > 0 {
			metrics.SessionsExpiredTotal.WithLabelValues(tenantID).Add(float64(purged))
		}
		totalPurged += purged
	}

	if compactor, ok := w.cache.(Compactor); ok {
		if rewrites, err := compactor.CompactActiveSet(); err != nil {
			w.logger.Cache().Warn("Active set compaction failed", "error", err)
		} else if rewrites > 0 {
			w.logger.Cache().Debug("Active set compacted", "rewrites", rewrites)
		}
	}

	closed := 0
	if w.pools != nil {
		closed = w.pools.CleanupStaleConnections(w.config.CleanupInterval * 2)
	}

	duration := time.Since(start)
	if totalPurged > 0 || closed > 0 {
		w.logger.Cache().Info("Cache cleanup finished", "sessionsPurged", totalPurged, "connectionsClosed", closed, "tenants", len(tenants), "duration", duration)
	} else if w.config.VerboseReporting {
		w.logger.Cache().Info("Cache cleanup completed, nothing expired", "duration", duration)
	}
	return totalPurged
}
