package services

import (
	"context"
	"database/sql"
	"testing"

	"github.com/AtRiskMedia/splittest-go/internal/domain/entities/splittest"
	"github.com/AtRiskMedia/splittest-go/internal/domain/repositories"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/caching/manager"
	schema "github.com/AtRiskMedia/splittest-go/internal/infrastructure/database"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/persistence/database"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/tenant"
	"github.com/AtRiskMedia/splittest-go/pkg/config"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	ctx context.Context
	raw *sql.DB
	tc  *tenant.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	raw, err := sql.Open("sqlite3", "file::memory:?_foreign_keys=on")
	require.NoError(t, err)
	raw.SetMaxOpenConns(1)
	t.Cleanup(func() { raw.Close() })

	db := database.Wrap(raw, database.DialectSQLite)
	require.NoError(t, schema.NewTableCreator().CreateSchema(context.Background(), db))

	cache := manager.NewMemoryManager(nil)
	cache.InitializeTenant(tenant.DefaultTenantID)

	return &fixture{
		ctx: context.Background(),
		raw: raw,
		tc: &tenant.Context{
			TenantID: tenant.DefaultTenantID,
			Config: &tenant.Config{
				TenantID:       tenant.DefaultTenantID,
				DatabaseDriver: tenant.DriverSQLite,
				JWTSecret:      "test-secret",
				SplitTests:     config.DefaultSplitTestSettings(),
			},
			Database:     &tenant.Database{Conn: db, TenantID: tenant.DefaultTenantID, Driver: tenant.DriverSQLite},
			Status:       tenant.StatusActive,
			CacheManager: cache,
			Logger:       logging.NewNopLogger(),
		},
	}
}

func (f *fixture) experiment(t *testing.T, slug string, active bool) *splittest.Experiment {
	t.Helper()
	exp := &splittest.Experiment{UUID: uuid.NewString(), Slug: slug, Name: slug, IsActive: active, SiteID: f.tc.TenantID}
	require.NoError(t, f.tc.ExperimentRepo().Store(f.ctx, exp))
	return exp
}

func (f *fixture) cohort(t *testing.T, exp *splittest.Experiment, slug string, weight int, active bool) *splittest.Cohort {
	t.Helper()
	c := &splittest.Cohort{UUID: uuid.NewString(), Slug: slug, Name: slug, IsActive: active, Weight: weight, ExperimentID: exp.ID}
	require.NoError(t, f.tc.CohortRepo().Store(f.ctx, c))
	return c
}

func (f *fixture) user(t *testing.T, name string) splittest.Authenticated {
	t.Helper()
	u := &repositories.User{Username: name, PasswordHash: "x"}
	require.NoError(t, f.tc.UserRepo().Store(f.ctx, u))
	return splittest.Authenticated{ID: u.ID}
}

func (f *fixture) assignmentCount(t *testing.T) int {
	t.Helper()
	var n int
	require.NoError(t, f.raw.QueryRow(`SELECT COUNT(*) FROM assignments`).Scan(&n))
	return n
}

// fixedRand always draws the same offset, clamped into range.
func fixedRand(v int) IntN {
	return func(n int) int {
		if v >= n {
			return n - 1
		}
		return v
	}
}

func newServices(logger *logging.ChanneledLogger, intN IntN) (*ActiveSetService, *AssignmentService, *RequestCoordinator) {
	activeSet := NewActiveSetService(logger)
	assigner := NewAssignmentServiceWithRand(intN, logger)
	return activeSet, assigner, NewRequestCoordinator(activeSet, assigner, logger)
}
