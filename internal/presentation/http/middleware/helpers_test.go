package middleware

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/AtRiskMedia/splittest-go/internal/application/services"
	"github.com/AtRiskMedia/splittest-go/internal/domain/entities/splittest"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/caching/manager"
	schema "github.com/AtRiskMedia/splittest-go/internal/infrastructure/database"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/persistence/database"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/tenant"
	"github.com/AtRiskMedia/splittest-go/pkg/config"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTenantContext(t *testing.T) *tenant.Context {
	t.Helper()
	raw, err := sql.Open("sqlite3", "file::memory:?_foreign_keys=on")
	require.NoError(t, err)
	raw.SetMaxOpenConns(1)
	t.Cleanup(func() { raw.Close() })

	db := database.Wrap(raw, database.DialectSQLite)
	require.NoError(t, schema.NewTableCreator().CreateSchema(context.Background(), db))

	cache := manager.NewMemoryManager(nil)
	cache.InitializeTenant(tenant.DefaultTenantID)

	return &tenant.Context{
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
	}
}

func seedExperiment(t *testing.T, tc *tenant.Context, slug string, cohortWeights map[string]int) (*splittest.Experiment, map[string]*splittest.Cohort) {
	t.Helper()
	ctx := context.Background()
	exp := &splittest.Experiment{UUID: uuid.NewString(), Slug: slug, Name: slug, IsActive: true, SiteID: tc.TenantID}
	require.NoError(t, tc.ExperimentRepo().Store(ctx, exp))

	cohorts := make(map[string]*splittest.Cohort, len(cohortWeights))
	for cohortSlug, weight := range cohortWeights {
		c := &splittest.Cohort{UUID: uuid.NewString(), Slug: cohortSlug, Name: cohortSlug, IsActive: true, Weight: weight, ExperimentID: exp.ID}
		require.NoError(t, tc.CohortRepo().Store(ctx, c))
		cohorts[cohortSlug] = c
	}
	return exp, cohorts
}

func testSettings() *config.Settings {
	return &config.Settings{
		SessionCookieName: "splittest_session",
		SessionTTL:        time.Hour,
		AuthCookieName:    "splittest_auth",
		TokenTTL:          time.Hour,
	}
}

// withTenant stands in for TenantMiddleware.
func withTenant(tc *tenant.Context) gin.HandlerFunc {
	return func(c *gin.Context) {
		SetTenantContext(c, tc)
		c.Next()
	}
}

func newSplitTestRouter(tc *tenant.Context, handler gin.HandlerFunc) *gin.Engine {
	logger := logging.NewNopLogger()
	activeSet := services.NewActiveSetService(logger)
	assigner := services.NewAssignmentService(logger)
	coordinator := services.NewRequestCoordinator(activeSet, assigner, logger)
	settings := testSettings()

	r := gin.New()
	r.Use(withTenant(tc))
	r.Use(AuthMiddleware(services.NewAuthService(settings.TokenTTL, logger), settings.AuthCookieName))
	r.GET("/split-tests",
		SessionMiddleware(services.NewSessionService(logger), settings),
		SplitTestMiddleware(coordinator, logger),
		handler,
	)
	return r
}
