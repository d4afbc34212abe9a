// Package tenant provides tenant context management for multi-tenant support.
package tenant

import (
	"github.com/AtRiskMedia/splittest-go/internal/domain/repositories"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/caching/interfaces"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/persistence/splittest"
	"github.com/AtRiskMedia/splittest-go/pkg/config"
)

// Context holds tenant-specific request context
type Context struct {
	TenantID     string
	Config       *Config
	Database     *Database
	Status       string
	CacheManager interfaces.Cache
	Logger       *logging.ChanneledLogger
}

// SplitTestSettings returns the tenant's cookie and session settings.
func (ctx *Context) SplitTestSettings() config.SplitTestSettings {
	if ctx.Config == nil {
		return config.DefaultSplitTestSettings()
	}
	return ctx.Config.SplitTests
}

// IsActive returns true if the tenant is active
func (ctx *Context) IsActive() bool {
	return ctx.Status == StatusActive
}

// GetDatabaseInfo returns database connection information for logging
func (ctx *Context) GetDatabaseInfo() string {
	if ctx.Database != nil {
		return ctx.Database.GetConnectionInfo()
	}
	return "no database connection"
}

// =============================================================================
// Repository Factory Methods
// =============================================================================

// ExperimentRepo returns an experiment repository instance
func (ctx *Context) ExperimentRepo() repositories.ExperimentRepository {
	return splittest.NewExperimentRepository(ctx.Database.Conn, ctx.Logger)
}

// CohortRepo returns a cohort repository instance
func (ctx *Context) CohortRepo() repositories.CohortRepository {
	return splittest.NewCohortRepository(ctx.Database.Conn, ctx.Logger)
}

// AssignmentRepo returns an assignment repository instance
func (ctx *Context) AssignmentRepo() repositories.AssignmentRepository {
	return splittest.NewAssignmentRepository(ctx.Database.Conn, ctx.Logger)
}

// UserRepo returns a user repository instance
func (ctx *Context) UserRepo() repositories.UserRepository {
	return splittest.NewUserRepository(ctx.Database.Conn, ctx.Logger)
}
