// Package tenant provides database abstraction for multi-tenant support.
package tenant

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/persistence/database"
	"github.com/AtRiskMedia/splittest-go/pkg/config"
)

// Database is a tenant's handle on its pooled connection.
type Database struct {
	Conn     *database.DB
	TenantID string
	Driver   string
}

// GetConnectionInfo describes the connection for logs and health output.
func (db *Database) GetConnectionInfo() string {
	return fmt.Sprintf("%s (tenant: %s) (pooled)", db.Driver, db.TenantID)
}

// Ping checks the connection.
func (db *Database) Ping(ctx context.Context) error {
	return db.Conn.PingContext(ctx)
}

type pooledConn struct {
	db       *database.DB
	lastUsed time.Time
}

// Pool keeps one *sql.DB per tenant data source.
type Pool struct {
	mu       sync.Mutex
	conns    map[string]*pooledConn
	settings *config.Settings
	logger   *logging.ChanneledLogger
}

// NewPool creates an empty connection pool.
func NewPool(settings *config.Settings, logger *logging.ChanneledLogger) *Pool {
	return &Pool{
		conns:    make(map[string]*pooledConn),
		settings: settings,
		logger:   logger,
	}
}

func poolKey(cfg *Config) string {
	switch cfg.DatabaseDriver {
	case DriverLibSQL, DriverPostgres:
		return fmt.Sprintf("%s:%s", cfg.DatabaseDriver, cfg.TenantID)
	default:
		return fmt.Sprintf("sqlite:%s", cfg.SQLitePath)
	}
}

// Open returns the pooled connection for the tenant, dialing it when needed.
func (p *Pool) Open(ctx context.Context, cfg *Config) (*Database, error) {
	key := poolKey(cfg)

	p.mu.Lock()
	defer p.mu.Unlock()

	if pooled, exists := p.conns[key]; exists {
		if err := pooled.db.PingContext(ctx); err == nil {
			pooled.lastUsed = time.Now()
			return &Database{Conn: pooled.db, TenantID: cfg.TenantID, Driver: cfg.DatabaseDriver}, nil
		}
		pooled.db.Close()
		delete(p.conns, key)
	}

	if cfg.DatabaseDriver == DriverSQLite {
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	driverName, dsn := cfg.DataSource()
	db, err := database.NewConnectionWithLogger(ctx, driverName, dsn, p.logger)
	if err != nil {
		return nil, fmt.Errorf("tenant %s degraded: %s connection failed: %w", cfg.TenantID, driverName, err)
	}

	db.SetMaxOpenConns(p.settings.DBMaxOpenConns)
	db.SetMaxIdleConns(p.settings.DBMaxIdleConns)
	db.SetConnMaxLifetime(p.settings.DBConnMaxLifetime)
	db.SetConnMaxIdleTime(p.settings.DBConnMaxIdleTime)

	p.conns[key] = &pooledConn{db: db, lastUsed: time.Now()}

	return &Database{Conn: db, TenantID: cfg.TenantID, Driver: cfg.DatabaseDriver}, nil
}

// CleanupStaleConnections closes pools that are dead or unused for maxIdle.
func (p *Pool) CleanupStaleConnections(maxIdle time.Duration) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	removed := 0
	for key, pooled := range p.conns {
		reason := ""
		if err := pooled.db.Ping(); err != nil {
			reason = "dead"
		} else if maxIdle > 0 && time.Since(pooled.lastUsed) > maxIdle && pooled.db.Stats().InUse == 0 {
			reason = "idle"
		}
		if reason == "" {
			continue
		}
		pooled.db.Close()
		delete(p.conns, key)
		removed++
		p.logger.Database().Info("Database pool cleanup removed connection", "pool", key, "reason", reason)
	}
	return removed
}

// Touch marks the tenant's pool as in use and reports whether it is still open.
func (p *Pool) Touch(cfg *Config) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	pooled, ok := p.conns[poolKey(cfg)]
	if ok {
		pooled.lastUsed = time.Now()
	}
	return ok
}

// Stats reports per-pool connection statistics.
func (p *Pool) Stats() map[string]map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()

	info := make(map[string]map[string]any)
	for key, pooled := range p.conns {
		stats := pooled.db.Stats()
		info[key] = map[string]any{
			"maxOpen":      stats.MaxOpenConnections,
			"open":         stats.OpenConnections,
			"inUse":        stats.InUse,
			"idle":         stats.Idle,
			"waitCount":    stats.WaitCount,
			"waitDuration": stats.WaitDuration.String(),
			"lastUsed":     pooled.lastUsed.UTC(),
		}
	}
	return info
}

// CloseAll closes every pooled connection.
func (p *Pool) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for key, pooled := range p.conns {
		if err := pooled.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.conns, key)
	}
	return firstErr
}
